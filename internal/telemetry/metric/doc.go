// Package metric provides Prometheus metrics for remotely.
//
// This package implements metrics collection and exposition:
//
//   - prometheus.go: metric registry, recorders and the HTTP handler
//   - collector.go: a collector reading live server state at scrape time
//
// Metrics include:
//
//   - Connection counts (active, accepted, rejected, failed handshakes)
//   - Request and response counts by payload type
//   - Handler errors and response queue stalls
//   - Bytes on the wire in each direction
//
// Metrics are exposed at /metrics in Prometheus format.
package metric
