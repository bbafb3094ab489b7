// Package metrics provides Prometheus metrics for the dispatcher and relay.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors. Each Metrics owns its registry so tests and
// multiple servers in one process do not collide.
type Metrics struct {
	registry *prometheus.Registry

	// RPC dispatcher metrics
	RPCRequestsTotal    *prometheus.CounterVec
	RPCRequestDuration  *prometheus.HistogramVec
	RPCRequestsInFlight prometheus.Gauge

	// Relay metrics
	RelayRequestsTotal   *prometheus.CounterVec
	RelayRequestDuration *prometheus.HistogramVec
	RelayClientErrors    *prometheus.CounterVec

	StartTime time.Time
}

// New creates and registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	m := &Metrics{registry: reg, StartTime: time.Now()}

	m.RPCRequestsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcpvisio_rpc_requests_total",
			Help: "Total number of dispatched RPC requests",
		},
		[]string{"method", "outcome"},
	)

	m.RPCRequestDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mcpvisio_rpc_request_duration_seconds",
			Help:    "Duration of dispatched RPC requests in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"method"},
	)

	m.RPCRequestsInFlight = f.NewGauge(
		prometheus.GaugeOpts{
			Name: "mcpvisio_rpc_requests_in_flight",
			Help: "Number of RPC requests currently being processed",
		},
	)

	m.RelayRequestsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcpvisio_relay_requests_total",
			Help: "Total number of relay HTTP requests served",
		},
		[]string{"route", "status"},
	)

	m.RelayRequestDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mcpvisio_relay_request_duration_seconds",
			Help:    "Duration of relay HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	m.RelayClientErrors = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcpvisio_relay_client_errors_total",
			Help: "Relay client calls that failed in transport",
		},
		[]string{"route"},
	)

	f.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "mcpvisio_uptime_seconds",
			Help: "Seconds since the process started serving",
		},
		func() float64 { return time.Since(m.StartTime).Seconds() },
	)

	return m
}

// RecordRPC records a dispatched request. outcome is "success", "error" or
// a JSON-RPC error code.
func (m *Metrics) RecordRPC(method, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.RPCRequestsTotal.WithLabelValues(method, outcome).Inc()
	m.RPCRequestDuration.WithLabelValues(method).Observe(d.Seconds())
}

// RecordRelay records a relay request.
func (m *Metrics) RecordRelay(route, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.RelayRequestsTotal.WithLabelValues(route, status).Inc()
	m.RelayRequestDuration.WithLabelValues(route).Observe(d.Seconds())
}

// RecordRelayClientError counts a transport failure on the relay client.
func (m *Metrics) RecordRelayClientError(route string) {
	if m == nil {
		return
	}
	m.RelayClientErrors.WithLabelValues(route).Inc()
}

// InFlight increments the in-flight gauge and returns its decrement.
func (m *Metrics) InFlight() func() {
	if m == nil {
		return func() {}
	}
	m.RPCRequestsInFlight.Inc()
	return m.RPCRequestsInFlight.Dec
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
