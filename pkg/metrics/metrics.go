// Package metrics exposes the middleware's Prometheus instrumentation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the collectors the middleware records. Collectors are
// registered on a dedicated registry so tests can construct isolated
// instances without global-registration collisions.
type Metrics struct {
	registry *prometheus.Registry

	// Requests counts handled HTTP requests by route and status code.
	Requests *prometheus.CounterVec

	// CacheLookups counts handler invocations per endpoint. Together with
	// the UpstreamDuration sample count (one per cache miss) this yields
	// the cache hit rate.
	CacheLookups *prometheus.CounterVec

	// UpstreamDuration observes the latency of upstream router calls, one
	// sample per actual upstream round trip.
	UpstreamDuration *prometheus.HistogramVec
}

// New creates and registers the middleware's collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ikmw_requests_total",
				Help: "HTTP requests handled, by route and status code.",
			},
			[]string{"path", "status"},
		),
		CacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ikmw_cache_lookups_total",
				Help: "Monitoring endpoint lookups, cached or not.",
			},
			[]string{"endpoint"},
		),
		UpstreamDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "ikmw_upstream_duration_seconds",
				Help: "Duration of upstream router API operations.",
			},
			[]string{"endpoint"},
		),
	}
	m.registry.MustRegister(m.Requests, m.CacheLookups, m.UpstreamDuration)
	return m
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
