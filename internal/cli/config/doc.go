// Package config defines the remotely-cli configuration file.
//
// The file (default ~/.remotely/cli.yaml) stores named profiles so that a
// session string does not have to be pasted on every call. It holds session
// keys in plaintext and is therefore written with mode 0600.
package config
