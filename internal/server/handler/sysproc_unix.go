//go:build unix

package handler

import (
	"errors"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// isolate starts the child in its own process group so that killing it also
// reaches anything it spawned and still holding its output pipes.
func isolate(c *exec.Cmd) {
	c.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func killTree(p *os.Process) error {
	err := unix.Kill(-p.Pid, unix.SIGKILL)
	switch {
	case errors.Is(err, unix.ESRCH):
		return os.ErrProcessDone
	case err != nil:
		return p.Kill()
	}
	return nil
}
