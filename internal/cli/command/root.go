package command

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/remotely/internal/cli/config"
	"github.com/yndnr/remotely/internal/cli/connection"
	"github.com/yndnr/remotely/internal/cli/output"
	"github.com/yndnr/remotely/internal/client"
	"github.com/yndnr/remotely/internal/core/domain"
	"github.com/yndnr/remotely/internal/infra/buildinfo"
	"github.com/yndnr/remotely/internal/net/transport"
	"github.com/yndnr/remotely/internal/telemetry/logger"
	"github.com/yndnr/remotely/pkg/crypto/adaptive"
)

// Metadata keys shared between the app and the shell.
const (
	metaConnMgr = "connMgr"
	metaConfig  = "cliConfig"
	metaShell   = "shell"
)

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:    "remotely-cli",
		Usage:   "Run filesystem and process actions on a remotely server",
		Version: buildinfo.String(),
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			FSCommand(),
			ProcCommand(),
			SystemCommand(),
			ServerCommand(),
			ProfileCommand(),
			ConnectCommand(),
			DisconnectCommand(),
			ShellCommand(),
		},
		Before: func(c *cli.Context) error {
			if _, err := output.ParseFormat(c.String("output")); err != nil {
				return err
			}
			if c.App.Metadata[metaConnMgr] == nil {
				c.App.Metadata[metaConnMgr] = connection.NewManager()
			}
			cfg, err := config.Load(c.String("config"))
			if err != nil {
				return err
			}
			c.App.Metadata[metaConfig] = cfg
			return nil
		},
	}
}

// globalFlags returns the global CLI flags.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "session",
			Aliases: []string{"s"},
			Usage:   `Session string printed by the server ("REMOTELY DATA host port key"), or "-" to read it from stdin`,
			EnvVars: []string{"REMOTELY_SESSION"},
		},
		&cli.StringFlag{
			Name:    "host",
			Usage:   "Host to dial, replacing the session host",
			EnvVars: []string{"REMOTELY_HOST"},
		},
		&cli.StringFlag{
			Name:    "profile",
			Usage:   "Saved profile to use",
			EnvVars: []string{"REMOTELY_PROFILE"},
		},
		&cli.StringFlag{
			Name:    "config",
			Usage:   "CLI configuration file",
			EnvVars: []string{"REMOTELY_CLI_CONFIG"},
			Value:   config.DefaultConfigPath(),
		},
		&cli.StringFlag{
			Name:    "cipher",
			Usage:   "Cipher to offer: auto, aes-gcm or chacha20 (must match the server)",
			EnvVars: []string{"REMOTELY_CIPHER"},
			Value:   string(adaptive.CipherAuto),
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "Timeout for connecting and for each request",
			Value: 30 * time.Second,
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Output format: table, json, yaml",
			Value:   "table",
		},
		&cli.BoolFlag{
			Name:    "wide",
			Aliases: []string{"w"},
			Usage:   "Show wide output (more columns)",
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"V"},
			Usage:   "Enable verbose output",
		},
	}
}

// GlobalFlags defines flags available to all commands.
type GlobalFlags struct {
	Session string
	Host    string
	Profile string
	Config  string
	Cipher  string
	Timeout time.Duration

	// Output format
	Output string // table, json, yaml
	Wide   bool

	Verbose bool
}

// ParseGlobalFlags extracts global flags from context.
func ParseGlobalFlags(c *cli.Context) *GlobalFlags {
	return &GlobalFlags{
		Session: c.String("session"),
		Host:    c.String("host"),
		Profile: c.String("profile"),
		Config:  c.String("config"),
		Cipher:  c.String("cipher"),
		Timeout: c.Duration("timeout"),
		Output:  c.String("output"),
		Wide:    c.Bool("wide"),
		Verbose: c.Bool("verbose"),
	}
}

// GetConnectionManager retrieves the connection manager from context.
func GetConnectionManager(c *cli.Context) *connection.Manager {
	if mgr, ok := c.App.Metadata[metaConnMgr].(*connection.Manager); ok {
		return mgr
	}
	return nil
}

// GetCLIConfig retrieves the loaded CLI configuration from context.
func GetCLIConfig(c *cli.Context) *config.CLIConfig {
	if cfg, ok := c.App.Metadata[metaConfig].(*config.CLIConfig); ok {
		return cfg
	}
	return config.Default()
}

func inShell(c *cli.Context) bool {
	v, _ := c.App.Metadata[metaShell].(bool)
	return v
}

// resolveProfile returns the selected profile, if any.
func resolveProfile(c *cli.Context) (config.Profile, error) {
	p, _, err := GetCLIConfig(c).Profile(c.String("profile"))
	return p, err
}

// resolveSession picks the session from the flag, then the profile. The
// host flag, then the profile host, replace the session host.
func resolveSession(c *cli.Context) (*connection.Connection, error) {
	flags := ParseGlobalFlags(c)
	name := ""
	raw := flags.Session
	host := flags.Host

	if raw == "-" {
		line, err := readLine(c)
		if err != nil {
			return nil, err
		}
		raw = line
	}
	if raw == "" {
		p, err := resolveProfile(c)
		if err != nil {
			return nil, err
		}
		if p.Session == "" {
			return nil, errors.New("no session: pass --session, set REMOTELY_SESSION or select a profile")
		}
		name = flags.Profile
		if name == "" {
			name = GetCLIConfig(c).CurrentProfile
		}
		raw = p.Session
		if host == "" {
			host = p.Host
		}
	}

	sess, err := domain.ParseSession(raw)
	if err != nil {
		return nil, err
	}
	if host == "" && sess.Host == domain.UnspecifiedHost {
		host = "localhost"
	}
	if host != "" {
		if sess, err = sess.WithHost(host); err != nil {
			return nil, err
		}
	}
	return &connection.Connection{Name: name, Session: sess}, nil
}

func clientOptions(c *cli.Context) (client.Options, error) {
	flags := ParseGlobalFlags(c)
	cipher, err := adaptive.ParseCipherType(flags.Cipher)
	if err != nil {
		return client.Options{}, err
	}
	level := "error"
	if flags.Verbose {
		level = "debug"
	}
	log, err := logger.New(logger.Config{Level: level, Format: "text", Output: c.App.ErrWriter})
	if err != nil {
		return client.Options{}, err
	}
	return client.Options{
		Transport: transport.Options{Cipher: cipher},
		Logger:    log,
	}, nil
}

// readLine reads one trimmed line of stdin.
func readLine(c *cli.Context) (string, error) {
	line, err := bufio.NewReader(c.App.Reader).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read session from stdin: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// connect dials the resolved session on mgr.
func connect(c *cli.Context, mgr *connection.Manager) error {
	conn, err := resolveSession(c)
	if err != nil {
		return err
	}
	opts, err := clientOptions(c)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Context, ParseGlobalFlags(c).Timeout)
	defer cancel()
	if err := mgr.Connect(ctx, conn, opts); err != nil {
		return fmt.Errorf("connect %s:%d: %w", conn.Session.Host, conn.Session.Port, err)
	}
	return nil
}

// EnsureConnected returns a connected manager. Outside the shell it dials
// for this command only and release disconnects.
func EnsureConnected(c *cli.Context) (mgr *connection.Manager, release func(), err error) {
	mgr = GetConnectionManager(c)
	if mgr == nil {
		return nil, nil, errors.New("connection manager not initialized")
	}
	if mgr.IsConnected() {
		return mgr, func() {}, nil
	}
	if inShell(c) {
		return nil, nil, errors.New("not connected; use connect")
	}
	if err := connect(c, mgr); err != nil {
		return nil, nil, err
	}
	return mgr, func() { _ = mgr.Disconnect() }, nil
}

// requestContext bounds one request by the timeout flag.
func requestContext(c *cli.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Context, ParseGlobalFlags(c).Timeout)
}

// doOne sends a single-entry request and returns its result. Error entries
// become errors.
func doOne(c *cli.Context, data domain.RequestData) (domain.ResponseData, error) {
	mgr, release, err := EnsureConnected(c)
	if err != nil {
		return domain.ResponseData{}, err
	}
	defer release()

	cl, err := mgr.Client()
	if err != nil {
		return domain.ResponseData{}, err
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	res, err := cl.Do(ctx, data)
	if err != nil {
		return domain.ResponseData{}, err
	}
	if err := client.EntryError(res[0]); err != nil {
		return res[0], err
	}
	return res[0], nil
}

// expect checks the result type of a successful entry.
func expect(d domain.ResponseData, want domain.ResponseType) error {
	if d.Type != want {
		return fmt.Errorf("unexpected response %s, want %s", d.Type, want)
	}
	return nil
}

// render writes data in the selected output format.
// Without --output the config file's default_output applies.
func render(c *cli.Context, data any) error {
	flags := ParseGlobalFlags(c)
	name := flags.Output
	if !c.IsSet("output") {
		if cfg := GetCLIConfig(c); cfg != nil && cfg.DefaultOutput != "" {
			name = cfg.DefaultOutput
		}
	}
	format, err := output.ParseFormat(name)
	if err != nil {
		return err
	}
	return output.NewFormatter(format, flags.Wide).Format(c.App.Writer, data)
}

// requireArgs checks the positional argument count.
func requireArgs(c *cli.Context, n int) error {
	if c.NArg() != n {
		return fmt.Errorf("%s: expected %d argument(s), got %d (usage: %s %s)",
			c.Command.Name, n, c.NArg(), c.Command.FullName(), c.Command.ArgsUsage)
	}
	return nil
}

// PrintError prints an error message to stderr.
func PrintError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
}
