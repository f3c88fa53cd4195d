// Package config holds remotely-server settings: the listen address and
// port range, connection limits, the metrics endpoint, the local socket,
// the session key and logging.
//
// Values are layered by internal/infra/confloader on top of Default. Verify
// reports every invalid setting at once. A *ServerConfig logs itself
// through slog with key material replaced by its source.
package config
