// Package metrics defines the Prometheus instruments shared across the
// engine: job throughput and latency, HTTP request counters, record insert
// counters, and observed queue depth.
package metrics
