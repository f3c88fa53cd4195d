package command

import (
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/remotely/internal/cli/connection"
)

// ConnectCommand connects the shell to a server. Outside the shell every
// command dials on its own.
func ConnectCommand() *cli.Command {
	return &cli.Command{
		Name:      "connect",
		Usage:     "Connect the shell to a server (uses --session, --host or the profile)",
		ArgsUsage: "[PROFILE]",
		Action: func(c *cli.Context) error {
			if !inShell(c) {
				return errors.New("connect is only available in the shell")
			}
			if c.NArg() > 1 {
				return requireArgs(c, 1)
			}
			if name := c.Args().First(); name != "" {
				if err := c.Set("profile", name); err != nil {
					return err
				}
			}
			mgr := GetConnectionManager(c)
			if err := connect(c, mgr); err != nil {
				return err
			}
			_, err := fmt.Fprintf(c.App.Writer, "connected to %s\n", describe(c))
			return err
		},
	}
}

// DisconnectCommand closes the shell's connection.
func DisconnectCommand() *cli.Command {
	return &cli.Command{
		Name:  "disconnect",
		Usage: "Close the shell's connection",
		Action: func(c *cli.Context) error {
			if !inShell(c) {
				return errors.New("disconnect is only available in the shell")
			}
			mgr := GetConnectionManager(c)
			if !mgr.IsConnected() {
				return errors.New("not connected")
			}
			return mgr.Disconnect()
		},
	}
}

// describe names the current connection for messages.
func describe(c *cli.Context) string {
	mgr := GetConnectionManager(c)
	if mgr == nil {
		return ""
	}
	return describeConn(mgr.Current())
}

func describeConn(conn *connection.Connection) string {
	if conn == nil {
		return ""
	}
	addr := fmt.Sprintf("%s:%d", conn.Session.Host, conn.Session.Port)
	if conn.Name != "" {
		return conn.Name + " (" + addr + ")"
	}
	return addr
}
