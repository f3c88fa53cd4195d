// Package connection provides connection management for remotely-cli.
//
//   - manager.go: the remote connection and routing of process output
//   - socket.go: client for the server's local management socket
//   - http.go: JSON client for the server's health and metrics endpoint
package connection
