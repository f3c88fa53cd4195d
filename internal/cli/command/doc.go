// Package command provides CLI command definitions for remotely-cli.
//
// This package defines all CLI commands using urfave/cli/v2:
//
//   - root.go: App, global flags, connection and output helpers
//   - fs.go: Filesystem subcommand group
//   - proc.go: Process subcommand group
//   - system.go: Remote system information and local version
//   - server.go: Local management socket and health commands
//   - profile.go: Saved connection profiles
//   - connect.go: Connection commands for the interactive shell
//   - shell.go: Interactive shell over one connection
//
// Remote commands dial the server for the duration of one command unless
// they run inside the shell, where the connection is shared.
package command
