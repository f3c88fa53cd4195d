// Package main provides the entry point for remotely-cli.
//
// The CLI runs filesystem and process actions on a remotely server, either
// one command per connection or interactively in a shell sharing one
// connection. It also manages saved profiles and talks to a server's local
// management socket.
//
// Usage:
//
//	remotely-cli --session "$(cat session)" fs ls /tmp
//	remotely-server listen | remotely-cli -s - proc run uname -a
//	remotely-cli profile add --session "..." --host build01 build
//	remotely-cli --profile build shell
package main
