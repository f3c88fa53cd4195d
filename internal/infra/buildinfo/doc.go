// Package buildinfo provides build information for remotely.
//
// Version, Commit and BuildTime are injected via ldflags:
//
//	go build -ldflags "-X github.com/yndnr/remotely/internal/infra/buildinfo.Version=v1.0.0"
//
// When Commit or BuildTime are not injected they are read from the VCS
// stamp the Go toolchain embeds in the binary, if any.
package buildinfo
