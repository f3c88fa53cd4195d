// Package tlsroots loads TLS material for the metrics endpoint.
//
//   - roots.go: CA pools for verifying peers, and the server/client configs
//   - watcher.go: a serving certificate reloaded when its files change
package tlsroots
