package handler

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/yndnr/remotely/internal/core/domain"
	"github.com/yndnr/remotely/internal/server/state"
	"github.com/yndnr/remotely/internal/telemetry/logger"
)

// process is a child started by proc_run.
type process struct {
	id   uint64
	cmd  string
	args []string

	c       *exec.Cmd
	stdinMu sync.Mutex
	stdin   io.WriteCloser

	// reapMu is held while the child is reaped. After that its pid, and so
	// its process group id, may belong to someone else.
	reapMu sync.Mutex
	reaped bool
}

// signalGroup kills a child together with its process group.
var signalGroup = killTree

func (p *process) ID() uint64 {
	return p.id
}

// Kill kills the child. Killing a child that already exited is not an error.
// While the child is being reaped only the child itself is signalled.
func (p *process) Kill() error {
	var err error
	if p.reapMu.TryLock() {
		if !p.reaped {
			err = signalGroup(p.c.Process)
		}
		p.reapMu.Unlock()
	} else {
		err = p.c.Process.Kill()
	}
	if err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("kill process %d: %w", p.id, err)
	}
	return nil
}

// reap waits for the child to exit and releases its resources.
func (p *process) reap() error {
	p.reapMu.Lock()
	defer p.reapMu.Unlock()
	err := p.c.Wait()
	p.reaped = true
	return err
}

// pipes are the parent and child ends of a child's stdio.
type pipes struct {
	stdinR, stdinW   *os.File
	stdoutR, stdoutW *os.File
	stderrR, stderrW *os.File
}

// openPipes creates the stdio pipes for c. On error nothing stays open.
func openPipes(c *exec.Cmd) (*pipes, error) {
	pp := &pipes{}
	var err error
	if pp.stdinR, pp.stdinW, err = os.Pipe(); err != nil {
		return nil, err
	}
	if pp.stdoutR, pp.stdoutW, err = os.Pipe(); err != nil {
		pp.close()
		return nil, err
	}
	if pp.stderrR, pp.stderrW, err = os.Pipe(); err != nil {
		pp.close()
		return nil, err
	}
	c.Stdin, c.Stdout, c.Stderr = pp.stdinR, pp.stdoutW, pp.stderrW
	return pp, nil
}

// closeChild closes the ends the started child now owns.
func (pp *pipes) closeChild() {
	closeFiles(pp.stdinR, pp.stdoutW, pp.stderrW)
}

func (pp *pipes) close() {
	pp.closeChild()
	closeFiles(pp.stdinW, pp.stdoutR, pp.stderrR)
}

func closeFiles(files ...*os.File) {
	for _, f := range files {
		if f != nil {
			f.Close()
		}
	}
}

func (p *process) write(b []byte) error {
	p.stdinMu.Lock()
	defer p.stdinMu.Unlock()
	_, err := p.stdin.Write(b)
	return err
}

func (h *Local) procRun(c *call, d domain.RequestData) (domain.ResponseData, error) {
	if d.Cmd == "" {
		return domain.ResponseData{}, fmt.Errorf("cmd: %w", errMissingField)
	}

	p := &process{cmd: d.Cmd, args: d.Args, c: exec.Command(d.Cmd, d.Args...)}
	isolate(p.c)
	pp, err := openPipes(p.c)
	if err != nil {
		return domain.ResponseData{}, err
	}
	p.stdin = pp.stdinW

	release, err := c.out.Retain()
	if err != nil {
		pp.close()
		return domain.ResponseData{}, err
	}
	if err := p.c.Start(); err != nil {
		release()
		pp.close()
		return domain.ResponseData{}, err
	}
	pp.closeChild()

	c.state.WithClient(c.clientID, func(cs *state.ClientState) error {
		p.id = cs.NextProcessID()
		cs.TrackProcess(p)
		return nil
	})

	log := logger.L(c.ctx).With("proc_id", p.id)
	log.Info("process started", "cmd", d.Cmd, "pid", p.c.Process.Pid)

	c.after = append(c.after, func() {
		go h.supervise(c, p, pp.stdoutR, pp.stderrR, release)
	})
	return domain.ResponseData{Type: domain.ResProcStart, ProcID: p.id}, nil
}

// supervise forwards output of p until it exits, then reports proc_done and
// forgets p.
func (h *Local) supervise(c *call, p *process, stdout, stderr io.ReadCloser, release func()) {
	defer release()
	log := logger.L(c.ctx).With("proc_id", p.id)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		h.pump(c, p.id, domain.ResProcStdout, stdout)
	}()
	go func() {
		defer wg.Done()
		h.pump(c, p.id, domain.ResProcStderr, stderr)
	}()
	wg.Wait()
	stdout.Close()
	stderr.Close()

	// Forget p before reaping so proc_kill and proc_list stop seeing it.
	c.state.WithExistingClient(c.clientID, func(cs *state.ClientState) error {
		cs.UntrackProcess(p.id)
		return nil
	})
	err := p.reap()
	code := p.c.ProcessState.ExitCode()
	done := domain.ResponseData{Type: domain.ResProcDone, ProcID: p.id, Success: err == nil}
	if code >= 0 {
		done.Code = &code
	}

	p.stdinMu.Lock()
	p.stdin.Close()
	p.stdinMu.Unlock()

	if err := c.out.Send(c.ctx, domain.NewResponse(c.req.Tenant, c.req.ID, done)); err != nil {
		log.Debug("dropping process exit", "error", err)
	}
	log.Info("process exited", "success", done.Success, "code", code)
}

// pump sends r in chunks until EOF. Once sending fails the rest of r is
// drained so the child never blocks on a full pipe.
func (h *Local) pump(c *call, id uint64, typ domain.ResponseType, r io.Reader) {
	buf := make([]byte, h.outputChunk)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			out := domain.ResponseData{Type: typ, ProcID: id, Data: append([]byte(nil), buf[:n]...)}
			if serr := c.out.Send(c.ctx, domain.NewResponse(c.req.Tenant, c.req.ID, out)); serr != nil {
				io.Copy(io.Discard, r)
				return
			}
		}
		if err != nil {
			return
		}
	}
}

func lookupProcess(c *call, id uint64) (*process, error) {
	var p *process
	c.state.WithExistingClient(c.clientID, func(cs *state.ClientState) error {
		if tracked, ok := cs.Process(id); ok {
			p, _ = tracked.(*process)
		}
		return nil
	})
	if p == nil {
		return nil, fmt.Errorf("process %d: %w", id, errProcessNotFound)
	}
	return p, nil
}

func procKill(c *call, d domain.RequestData) (domain.ResponseData, error) {
	p, err := lookupProcess(c, d.ProcID)
	if err != nil {
		return domain.ResponseData{}, err
	}
	return ok(), p.Kill()
}

func procStdin(c *call, d domain.RequestData) (domain.ResponseData, error) {
	p, err := lookupProcess(c, d.ProcID)
	if err != nil {
		return domain.ResponseData{}, err
	}
	data := d.Data
	if len(data) == 0 {
		data = []byte(d.Text)
	}
	return ok(), p.write(data)
}

func procList(c *call) (domain.ResponseData, error) {
	res := domain.ResponseData{Type: domain.ResProcEntries, Processes: []domain.ProcessEntry{}}
	c.state.WithExistingClient(c.clientID, func(cs *state.ClientState) error {
		for _, id := range cs.ProcessIDs() {
			if p, found := cs.Process(id); found {
				if lp, isLocal := p.(*process); isLocal {
					res.Processes = append(res.Processes, domain.ProcessEntry{ID: lp.id, Cmd: lp.cmd, Args: lp.args})
				}
			}
		}
		return nil
	})
	return res, nil
}
