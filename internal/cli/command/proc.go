package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/remotely/internal/client"
	"github.com/yndnr/remotely/internal/core/domain"
)

const stdinChunk = 32 << 10

// ProcCommand returns the process subcommand group.
func ProcCommand() *cli.Command {
	return &cli.Command{
		Name:  "proc",
		Usage: "Process commands",
		Subcommands: []*cli.Command{
			{
				Name:      "run",
				Usage:     "Run a remote command and stream its output",
				ArgsUsage: "CMD [ARGS...]",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "stdin",
						Usage: "Forward local stdin to the process",
					},
					&cli.BoolFlag{
						Name:    "detach",
						Aliases: []string{"d"},
						Usage:   "Print the process id and return (shell only)",
					},
				},
				Action: procRun,
			},
			{
				Name:   "list",
				Usage:  "List processes started on this connection",
				Action: procList,
			},
			{
				Name:      "kill",
				Usage:     "Kill a process started on this connection",
				ArgsUsage: "ID",
				Action:    procKill,
			},
			{
				Name:      "write",
				Usage:     "Send text to the stdin of a process started on this connection",
				ArgsUsage: "ID TEXT",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "no-newline", Aliases: []string{"n"}, Usage: "Do not append a newline"},
				},
				Action: procWrite,
			},
		},
	}
}

func procRun(c *cli.Context) error {
	if c.NArg() < 1 {
		return fmt.Errorf("run: missing command (usage: %s %s)", c.Command.FullName(), c.Command.ArgsUsage)
	}
	if c.Bool("stdin") && inShell(c) {
		return errors.New("--stdin is not available in the shell; use proc write")
	}
	if c.Bool("detach") && !inShell(c) {
		return errors.New("--detach only makes sense in the shell; processes die with their connection")
	}

	mgr, release, err := EnsureConnected(c)
	if err != nil {
		return err
	}
	defer release()
	cl, err := mgr.Client()
	if err != nil {
		return err
	}

	req := cl.NewRequest(domain.RequestData{
		Type: domain.ReqProcRun,
		Cmd:  c.Args().First(),
		Args: c.Args().Tail(),
	})

	var events <-chan *domain.Response
	stop := func() {}
	if !c.Bool("detach") {
		events, stop = mgr.Watch(req.ID)
	}
	defer stop()

	ctx, cancel := requestContext(c)
	resp, err := cl.Send(ctx, req)
	cancel()
	if err != nil {
		return err
	}
	if len(resp.Payload) != 1 {
		return fmt.Errorf("unexpected response with %d entries", len(resp.Payload))
	}
	if err := client.EntryError(resp.Payload[0]); err != nil {
		return err
	}
	if err := expect(resp.Payload[0], domain.ResProcStart); err != nil {
		return err
	}
	id := resp.Payload[0].ProcID

	if c.Bool("detach") {
		_, err := fmt.Fprintln(c.App.Writer, id)
		return err
	}

	if c.Bool("stdin") {
		go forwardStdin(c.Context, cl, id, c.App.Reader)
	}
	return streamProcess(c, events)
}

// streamProcess copies process output until the process is done and maps
// its exit status onto the CLI exit code.
func streamProcess(c *cli.Context, events <-chan *domain.Response) error {
	for {
		select {
		case <-c.Context.Done():
			return c.Context.Err()
		case resp, ok := <-events:
			if !ok {
				return errors.New("connection closed before the process finished")
			}
			for _, d := range resp.Payload {
				switch d.Type {
				case domain.ResProcStdout:
					_, _ = c.App.Writer.Write(d.Data)
				case domain.ResProcStderr:
					_, _ = c.App.ErrWriter.Write(d.Data)
				case domain.ResProcDone:
					return exitStatus(d)
				}
			}
		}
	}
}

func exitStatus(d domain.ResponseData) error {
	if d.Success {
		return nil
	}
	if d.Code != nil {
		return cli.Exit(fmt.Sprintf("process exited with code %d", *d.Code), *d.Code)
	}
	return cli.Exit("process terminated by signal", 1)
}

// forwardStdin sends r to the process until EOF or a failed send.
func forwardStdin(ctx context.Context, cl *client.Client, id uint64, r io.Reader) {
	buf := make([]byte, stdinChunk)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			data := append([]byte(nil), buf[:n]...)
			res, sendErr := cl.Do(ctx, domain.RequestData{Type: domain.ReqProcStdin, ProcID: id, Data: data})
			if sendErr != nil || client.EntryError(res[0]) != nil {
				return
			}
		}
		if err != nil {
			return
		}
	}
}

func procList(c *cli.Context) error {
	if !inShell(c) {
		return errors.New("list only makes sense in the shell; processes die with their connection")
	}
	res, err := doOne(c, domain.RequestData{Type: domain.ReqProcList})
	if err != nil {
		return err
	}
	if err := expect(res, domain.ResProcEntries); err != nil {
		return err
	}
	return render(c, res.Processes)
}

func parseProcID(s string) (uint64, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid process id %q", s)
	}
	return id, nil
}

func procKill(c *cli.Context) error {
	if err := requireArgs(c, 1); err != nil {
		return err
	}
	id, err := parseProcID(c.Args().First())
	if err != nil {
		return err
	}
	res, err := doOne(c, domain.RequestData{Type: domain.ReqProcKill, ProcID: id})
	if err != nil {
		return err
	}
	return expect(res, domain.ResOk)
}

func procWrite(c *cli.Context) error {
	if err := requireArgs(c, 2); err != nil {
		return err
	}
	id, err := parseProcID(c.Args().Get(0))
	if err != nil {
		return err
	}
	text := c.Args().Get(1)
	if !c.Bool("no-newline") {
		text += "\n"
	}
	res, err := doOne(c, domain.RequestData{Type: domain.ReqProcStdin, ProcID: id, Data: []byte(text)})
	if err != nil {
		return err
	}
	return expect(res, domain.ResOk)
}

// backgroundPrinter prints output of detached processes in the shell.
func backgroundPrinter(w, errW io.Writer) func(*domain.Response) {
	return func(resp *domain.Response) {
		for _, d := range resp.Payload {
			switch d.Type {
			case domain.ResProcStdout:
				fmt.Fprintf(w, "[%d] %s", d.ProcID, d.Data)
			case domain.ResProcStderr:
				fmt.Fprintf(errW, "[%d] %s", d.ProcID, d.Data)
			case domain.ResProcDone:
				status := "done"
				if d.Code != nil {
					status = fmt.Sprintf("exited %d", *d.Code)
				} else if !d.Success {
					status = "killed"
				}
				fmt.Fprintf(w, "[%d] %s\n", d.ProcID, status)
			}
		}
	}
}
