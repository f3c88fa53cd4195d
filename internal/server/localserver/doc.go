// Package localserver provides the Unix socket server for local management.
//
// The socket speaks a line protocol: each request is one line holding a
// command and its arguments, and each reply is one JSON document on its own
// line (see Reply). Commands:
//
//   - status: version, address, uptime and counters
//   - clients: per-client state
//   - connections: live connections
//   - log-level [level]: read or change the log level
//   - shutdown: stop the server gracefully
//
// Access is controlled by file system permissions; the socket is created
// with mode 0600.
package localserver
