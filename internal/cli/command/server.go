package command

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/remotely/internal/cli/connection"
	"github.com/yndnr/remotely/internal/infra/tlsroots"
	"github.com/yndnr/remotely/internal/server/httpserver"
	"github.com/yndnr/remotely/internal/server/localserver"
	"github.com/yndnr/remotely/internal/server/remoteserver"
	"github.com/yndnr/remotely/internal/server/state"
)

// ServerCommand returns the server management subcommand group. These
// commands talk to the server's local socket or metrics endpoint, not the
// remote protocol.
func ServerCommand() *cli.Command {
	socketFlag := func() cli.Flag {
		return &cli.StringFlag{
			Name:    "socket",
			Usage:   "Server local management socket (defaults to the profile's)",
			EnvVars: []string{"REMOTELY_SOCKET"},
		}
	}
	return &cli.Command{
		Name:  "server",
		Usage: "Manage a server running on this host",
		Subcommands: []*cli.Command{
			{
				Name:   "status",
				Usage:  "Show server status",
				Flags:  []cli.Flag{socketFlag()},
				Action: serverStatus,
			},
			{
				Name:   "clients",
				Usage:  "List clients with state on the server",
				Flags:  []cli.Flag{socketFlag()},
				Action: serverClients,
			},
			{
				Name:   "connections",
				Usage:  "List live connections",
				Flags:  []cli.Flag{socketFlag()},
				Action: serverConnections,
			},
			{
				Name:      "log-level",
				Usage:     "Show or change the server log level",
				ArgsUsage: "[LEVEL]",
				Flags:     []cli.Flag{socketFlag()},
				Action:    serverLogLevel,
			},
			{
				Name:  "shutdown",
				Usage: "Shut the server down gracefully",
				Flags: []cli.Flag{
					socketFlag(),
					&cli.BoolFlag{Name: "force", Aliases: []string{"f"}, Usage: "Do not ask for confirmation"},
				},
				Action: serverShutdown,
			},
			{
				Name:  "health",
				Usage: "Query the server's /healthz endpoint",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "metrics",
						Usage:   "Metrics HTTP address (defaults to the profile's)",
						EnvVars: []string{"REMOTELY_METRICS"},
					},
					&cli.StringFlag{Name: "ca", Usage: "CA file to verify an https endpoint"},
					&cli.StringFlag{Name: "cert", Usage: "Client certificate for an endpoint requiring one"},
					&cli.StringFlag{Name: "key", Usage: "Key for --cert"},
				},
				Action: serverHealth,
			},
		},
	}
}

func socketClient(c *cli.Context) (*connection.SocketClient, error) {
	path := c.String("socket")
	if path == "" {
		p, err := resolveProfile(c)
		if err != nil {
			return nil, err
		}
		path = p.Socket
	}
	if path == "" {
		return nil, errors.New("no socket: pass --socket or set it on the profile")
	}
	sc := connection.NewSocketClient(path)
	if err := sc.Connect(); err != nil {
		return nil, err
	}
	return sc, nil
}

// socketQuery runs cmd on the local socket and renders the decoded data.
func socketQuery(c *cli.Context, cmd string, target any) error {
	sc, err := socketClient(c)
	if err != nil {
		return err
	}
	defer sc.Close()
	if err := sc.ExecuteInto(cmd, target); err != nil {
		return err
	}
	return render(c, target)
}

func serverStatus(c *cli.Context) error {
	return socketQuery(c, "status", &localserver.Status{})
}

func serverClients(c *cli.Context) error {
	var clients []state.ClientInfo
	return socketQuery(c, "clients", &clients)
}

func serverConnections(c *cli.Context) error {
	var conns []remoteserver.ConnInfo
	return socketQuery(c, "connections", &conns)
}

func serverLogLevel(c *cli.Context) error {
	if c.NArg() > 1 {
		return requireArgs(c, 1)
	}
	cmd := "log-level"
	if c.NArg() == 1 {
		cmd += " " + c.Args().First()
	}
	return socketQuery(c, cmd, &map[string]string{})
}

func serverShutdown(c *cli.Context) error {
	if !c.Bool("force") && !inShell(c) {
		fmt.Fprint(c.App.Writer, "Shut the server down? [y/N] ")
		var answer string
		_, _ = fmt.Fscanln(c.App.Reader, &answer)
		if answer != "y" && answer != "Y" && answer != "yes" {
			return errors.New("aborted")
		}
	}
	sc, err := socketClient(c)
	if err != nil {
		return err
	}
	defer sc.Close()
	if _, err := sc.Execute("shutdown"); err != nil {
		return err
	}
	_, err = fmt.Fprintln(c.App.Writer, "shutdown requested")
	return err
}

func serverHealth(c *cli.Context) error {
	addr := c.String("metrics")
	if addr == "" {
		p, err := resolveProfile(c)
		if err != nil {
			return err
		}
		addr = p.Metrics
	}
	if addr == "" {
		return errors.New("no metrics address: pass --metrics or set it on the profile")
	}

	tlsCfg, err := healthTLS(c)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Context, ParseGlobalFlags(c).Timeout)
	defer cancel()
	var health httpserver.HealthStatus
	if err := connection.NewEndpoint(addr, tlsCfg).GetJSON(ctx, "/healthz", &health); err != nil {
		return err
	}
	return render(c, health)
}

// healthTLS builds the client TLS settings from --ca, --cert and --key. It
// returns nil when none is given.
func healthTLS(c *cli.Context) (*tls.Config, error) {
	if c.String("ca") == "" && c.String("cert") == "" {
		return nil, nil
	}
	pool := tlsroots.NewPool()
	if ca := c.String("ca"); ca != "" {
		if err := pool.AddCertFile(ca); err != nil {
			return nil, err
		}
	}
	cfg := pool.ClientConfig()
	if cert := c.String("cert"); cert != "" {
		pair, err := tls.LoadX509KeyPair(cert, c.String("key"))
		if err != nil {
			return nil, fmt.Errorf("client certificate: %w", err)
		}
		cfg.Certificates = []tls.Certificate{pair}
	}
	return cfg, nil
}
