// Package metric provides Prometheus metrics for rsvpguard.
//
// A Registry owns its own prometheus.Registry so tests can build isolated
// instances. Every recording method is safe on a nil *Registry, which lets
// components run without metrics wired in.
//
// Metrics are exposed at /metrics in Prometheus text format.
package metric
