package metric

import "github.com/prometheus/client_golang/prometheus"

// StateSource reports live server state at scrape time.
type StateSource interface {
	ClientCount() int
	ProcessCount() int
}

// StateCollector exports a StateSource as gauges.
type StateCollector struct {
	src       StateSource
	clients   *prometheus.Desc
	processes *prometheus.Desc
}

// NewStateCollector creates a collector over src.
func NewStateCollector(src StateSource) *StateCollector {
	return &StateCollector{
		src: src,
		clients: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "clients"),
			"Clients with live server state.", nil, nil),
		processes: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "processes"),
			"Processes tracked for clients.", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *StateCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.clients
	ch <- c.processes
}

// Collect implements prometheus.Collector.
func (c *StateCollector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(c.clients, prometheus.GaugeValue, float64(c.src.ClientCount()))
	ch <- prometheus.MustNewConstMetric(c.processes, prometheus.GaugeValue, float64(c.src.ProcessCount()))
}
