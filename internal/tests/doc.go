// Package tests holds end-to-end tests that run a real server on a loopback
// listener and drive it through the client package.
package tests
