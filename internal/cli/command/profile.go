package command

import (
	"errors"
	"fmt"
	"sort"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/remotely/internal/cli/config"
	"github.com/yndnr/remotely/internal/core/domain"
)

// ProfileCommand returns the profile subcommand group.
func ProfileCommand() *cli.Command {
	return &cli.Command{
		Name:  "profile",
		Usage: "Manage saved connection profiles",
		Subcommands: []*cli.Command{
			{
				Name:    "list",
				Aliases: []string{"ls"},
				Usage:   "List profiles",
				Action:  profileList,
			},
			{
				Name:      "add",
				Usage:     "Add or replace a profile",
				ArgsUsage: "NAME",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "session", Usage: "Session string (\"-\" reads stdin)", Required: true},
					&cli.StringFlag{Name: "host", Usage: "Host replacing the session host"},
					&cli.StringFlag{Name: "socket", Usage: "Server local management socket"},
					&cli.StringFlag{Name: "metrics", Usage: "Server metrics HTTP address"},
					&cli.BoolFlag{Name: "use", Usage: "Make it the current profile"},
				},
				Action: profileAdd,
			},
			{
				Name:      "use",
				Usage:     "Select the current profile",
				ArgsUsage: "NAME",
				Action:    profileUse,
			},
			{
				Name:      "remove",
				Aliases:   []string{"rm"},
				Usage:     "Remove a profile",
				ArgsUsage: "NAME",
				Action:    profileRemove,
			},
			{
				Name:      "show",
				Usage:     "Show a profile with its key masked",
				ArgsUsage: "[NAME]",
				Action:    profileShow,
			},
		},
	}
}

type profileView struct {
	Name    string `json:"name" yaml:"name"`
	Current bool   `json:"current" yaml:"current"`
	Session string `json:"session" yaml:"session"`
	Host    string `json:"host,omitempty" yaml:"host,omitempty"`
	Socket  string `json:"socket,omitempty" yaml:"socket,omitempty" table:"wide"`
	Metrics string `json:"metrics,omitempty" yaml:"metrics,omitempty" table:"wide"`
}

func newProfileView(cfg *config.CLIConfig, name string, p config.Profile) profileView {
	session := p.Session
	if s, err := domain.ParseSession(p.Session); err == nil {
		session = s.String()
	}
	return profileView{
		Name:    name,
		Current: cfg.CurrentProfile == name,
		Session: session,
		Host:    p.Host,
		Socket:  p.Socket,
		Metrics: p.Metrics,
	}
}

func profileList(c *cli.Context) error {
	cfg := GetCLIConfig(c)
	names := make([]string, 0, len(cfg.Profiles))
	for name := range cfg.Profiles {
		names = append(names, name)
	}
	sort.Strings(names)

	views := make([]profileView, 0, len(names))
	for _, name := range names {
		views = append(views, newProfileView(cfg, name, cfg.Profiles[name]))
	}
	if len(views) == 0 {
		_, err := fmt.Fprintln(c.App.Writer, "no profiles")
		return err
	}
	return render(c, views)
}

func profileAdd(c *cli.Context) error {
	if err := requireArgs(c, 1); err != nil {
		return err
	}
	name := c.Args().First()

	raw := c.String("session")
	if raw == "-" {
		line, err := readLine(c)
		if err != nil {
			return err
		}
		raw = line
	}
	sess, err := domain.ParseSession(raw)
	if err != nil {
		return err
	}
	if host := c.String("host"); host != "" {
		if _, err := sess.WithHost(host); err != nil {
			return err
		}
	}

	cfg := GetCLIConfig(c)
	if cfg.Profiles == nil {
		cfg.Profiles = make(map[string]config.Profile)
	}
	cfg.Profiles[name] = config.Profile{
		Session: sess.UnprotectedString(),
		Host:    c.String("host"),
		Socket:  c.String("socket"),
		Metrics: c.String("metrics"),
	}
	if c.Bool("use") || cfg.CurrentProfile == "" {
		cfg.CurrentProfile = name
	}
	if err := config.Save(cfg, c.String("config")); err != nil {
		return err
	}
	_, err = fmt.Fprintf(c.App.Writer, "profile %s saved\n", name)
	return err
}

func profileUse(c *cli.Context) error {
	if err := requireArgs(c, 1); err != nil {
		return err
	}
	name := c.Args().First()
	cfg := GetCLIConfig(c)
	if _, ok := cfg.Profiles[name]; !ok {
		return &config.ProfileError{Name: name, Err: config.ErrNoProfile}
	}
	cfg.CurrentProfile = name
	if err := config.Save(cfg, c.String("config")); err != nil {
		return err
	}
	_, err := fmt.Fprintf(c.App.Writer, "using profile %s\n", name)
	return err
}

func profileRemove(c *cli.Context) error {
	if err := requireArgs(c, 1); err != nil {
		return err
	}
	name := c.Args().First()
	cfg := GetCLIConfig(c)
	if _, ok := cfg.Profiles[name]; !ok {
		return &config.ProfileError{Name: name, Err: config.ErrNoProfile}
	}
	delete(cfg.Profiles, name)
	if cfg.CurrentProfile == name {
		cfg.CurrentProfile = ""
	}
	return config.Save(cfg, c.String("config"))
}

func profileShow(c *cli.Context) error {
	if c.NArg() > 1 {
		return requireArgs(c, 1)
	}
	cfg := GetCLIConfig(c)
	name := c.Args().First()
	if name == "" {
		name = c.String("profile")
	}
	if name == "" {
		name = cfg.CurrentProfile
	}
	if name == "" {
		return errors.New("no profile selected")
	}
	p, _, err := cfg.Profile(name)
	if err != nil {
		return err
	}
	return render(c, newProfileView(cfg, name, p))
}
