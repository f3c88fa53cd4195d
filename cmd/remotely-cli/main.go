package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/yndnr/remotely/internal/cli/command"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := command.App()
	if err := app.RunContext(ctx, os.Args); err != nil {
		command.PrintError("%v", err)
		os.Exit(1)
	}
}
