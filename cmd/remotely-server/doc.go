// Package main provides the entry point for remotely-server.
//
// The server binds the first free port of its configured range, prints a
// session line for clients and then serves remote filesystem and process
// requests until it is idle for too long, the listener fails or it receives
// SIGINT or SIGTERM.
//
// Next to the remote protocol it can run:
//
//   - an HTTP endpoint with /metrics and /healthz
//   - a unix socket for local management (status, clients, shutdown)
//
// Usage:
//
//	remotely-server listen [flags]
//	remotely-server listen --config /etc/remotely/server.yaml
//	remotely-server key > server.key
package main
