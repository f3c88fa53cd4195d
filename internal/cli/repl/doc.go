// Package repl runs CLI commands interactively.
//
// Each input line is split into arguments, honouring single quotes, double
// quotes and backslash escapes, and run through the same urfave/cli
// application used for one-shot commands. The builtins exit, quit and
// history are handled here. Lines are kept in a history file between
// sessions.
package repl
