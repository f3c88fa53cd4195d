// Package logger provides structured logging for remotely on top of
// log/slog.
//
// Every logger built by New shares one level, so a running server can be
// made more or less verbose through its local socket or by editing
// log.level in its configuration file.
//
// Records pass through a redacting handler before they are written. It
// masks the key of any session string ("REMOTELY DATA host port key"),
// bare hex keys, and the values of attributes whose names suggest secrets.
package logger
