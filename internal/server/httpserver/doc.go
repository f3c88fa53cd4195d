// Package httpserver provides the operational HTTP endpoint of
// remotely-server.
//
// It serves Prometheus metrics and a health document. Remote operations are
// never exposed over HTTP; they only travel over the encrypted transport.
//
// Endpoints:
//
//   - GET /metrics: Prometheus exposition
//   - GET /healthz: liveness plus client and process counts
//
// Every route passes through RequestID, Recover and AccessLog. An optional
// allow list restricts callers by IP or CIDR.
package httpserver
