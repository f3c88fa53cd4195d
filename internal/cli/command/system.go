package command

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/remotely/internal/core/domain"
	"github.com/yndnr/remotely/internal/infra/buildinfo"
)

// SystemCommand returns the system subcommand group.
func SystemCommand() *cli.Command {
	return &cli.Command{
		Name:  "system",
		Usage: "Remote host and local build information",
		Subcommands: []*cli.Command{
			{
				Name:   "info",
				Usage:  "Show the server host's platform and working directory",
				Action: systemInfo,
			},
			{
				Name:  "version",
				Usage: "Show CLI build information",
				Action: func(c *cli.Context) error {
					return render(c, buildinfo.Get())
				},
			},
		},
	}
}

// systemInfoView is the rendered form of domain.SystemInfo.
type systemInfoView struct {
	Family     string `json:"family" yaml:"family"`
	OS         string `json:"os" yaml:"os"`
	Arch       string `json:"arch" yaml:"arch"`
	CurrentDir string `json:"current_dir" yaml:"current_dir"`
	Separator  string `json:"main_separator" yaml:"main_separator"`
}

func systemInfo(c *cli.Context) error {
	res, err := doOne(c, domain.RequestData{Type: domain.ReqSystemInfo})
	if err != nil {
		return err
	}
	if err := expect(res, domain.ResSystemInfo); err != nil {
		return err
	}
	if res.System == nil {
		return fmt.Errorf("system_info response without system info")
	}
	s := res.System
	return render(c, systemInfoView{
		Family:     s.Family,
		OS:         s.OS,
		Arch:       s.Arch,
		CurrentDir: s.CurrentDir,
		Separator:  s.MainSep,
	})
}
