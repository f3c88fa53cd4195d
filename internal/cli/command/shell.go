package command

import (
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/remotely/internal/cli/repl"
)

// ShellCommand starts an interactive shell sharing one connection.
func ShellCommand() *cli.Command {
	return &cli.Command{
		Name:  "shell",
		Usage: "Run commands interactively over one connection",
		Action: func(c *cli.Context) error {
			if inShell(c) {
				return errors.New("already in a shell")
			}
			mgr := GetConnectionManager(c)
			mgr.SetBackground(backgroundPrinter(c.App.Writer, c.App.ErrWriter))

			if err := connect(c, mgr); err != nil {
				fmt.Fprintf(c.App.ErrWriter, "not connected: %v\n", err)
			}
			defer func() {
				if mgr.IsConnected() {
					_ = mgr.Disconnect()
				}
			}()

			inner := App()
			inner.Metadata = map[string]any{
				metaConnMgr: mgr,
				metaShell:   true,
			}
			inner.Reader = c.App.Reader
			inner.Writer = c.App.Writer
			inner.ErrWriter = c.App.ErrWriter
			inheritFlags(inner, c)

			r := repl.New(inner, c.App.Reader, c.App.Writer)
			r.Prompt = func() string {
				if !mgr.IsConnected() {
					return "remotely (disconnected)> "
				}
				return "remotely " + describeConn(mgr.Current()) + "> "
			}
			fmt.Fprintln(c.App.Writer, `Type "help" for commands, "exit" to leave.`)
			return r.Run(c.Context)
		},
	}
}

// inheritFlags makes the shell's global flag values the defaults of every
// command line run inside it.
func inheritFlags(app *cli.App, c *cli.Context) {
	for _, f := range app.Flags {
		switch f := f.(type) {
		case *cli.StringFlag:
			if v := c.String(f.Name); v != "-" {
				f.Value = v
			}
		case *cli.DurationFlag:
			f.Value = c.Duration(f.Name)
		case *cli.BoolFlag:
			f.Value = c.Bool(f.Name)
		}
	}
}
