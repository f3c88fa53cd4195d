package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/remotely/internal/core/domain"
	"github.com/yndnr/remotely/internal/infra/buildinfo"
)

func main() {
	if err := app().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func app() *cli.App {
	return &cli.App{
		Name:    "remotely-server",
		Usage:   "Serve remote filesystem and process requests",
		Version: buildinfo.String(),
		Commands: []*cli.Command{
			listenCommand(),
			{
				Name:  "key",
				Usage: "Print a new random key in hex, for use as security.key_file",
				Action: func(c *cli.Context) error {
					key, err := domain.GenerateSecretKey()
					if err != nil {
						return err
					}
					_, err = fmt.Fprintln(c.App.Writer, key.UnprotectedHex())
					return err
				},
			},
		},
	}
}
