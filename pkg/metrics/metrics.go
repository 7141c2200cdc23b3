// Package metrics defines the Prometheus metric collectors used by the lookup
// server and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the server.
type Metrics struct {
	ConnectionsTotal      *prometheus.CounterVec
	ConnectionsInFlight   prometheus.Gauge
	QueriesTotal          *prometheus.CounterVec
	QueryDuration         *prometheus.HistogramVec
	SnapshotLoadsTotal    *prometheus.CounterVec
	SnapshotLoadDuration  *prometheus.HistogramVec
	SnapshotLines         prometheus.Gauge
	CacheHitsTotal        prometheus.Counter
	CacheMissesTotal      prometheus.Counter
	AdmissionRejectsTotal *prometheus.CounterVec
	CircuitBreakerState   *prometheus.GaugeVec

	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
}

// New creates all collectors and registers them with reg. A nil reg uses
// the process-wide default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		ConnectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "linematch_connections_total",
				Help: "Connections by admission status (accepted, rejected, handshake_failed).",
			},
			[]string{"status"},
		),
		ConnectionsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "linematch_connections_in_flight",
				Help: "Number of connections currently being handled.",
			},
		),
		QueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "linematch_queries_total",
				Help: "Queries by reply (exists, not_found, malformed, unavailable, error).",
			},
			[]string{"result"},
		),
		QueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "linematch_query_duration_seconds",
				Help:    "Time from request read to reply written.",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"mode"},
		),
		SnapshotLoadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "linematch_snapshot_loads_total",
				Help: "Corpus file reads by mode (cached, reread) and status.",
			},
			[]string{"mode", "status"},
		),
		SnapshotLoadDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "linematch_snapshot_load_duration_seconds",
				Help:    "Time to read and sort the corpus file.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"mode"},
		),
		SnapshotLines: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "linematch_snapshot_lines",
				Help: "Line count of the most recently loaded snapshot.",
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "linematch_cache_hits_total",
				Help: "Cached-mode requests served from the populated snapshot.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "linematch_cache_misses_total",
				Help: "Cached-mode requests that found the cache empty.",
			},
		),
		AdmissionRejectsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "linematch_admission_rejections_total",
				Help: "Connections refused by the admission limiter.",
			},
			[]string{"reason"},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "linematch_circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "linematch_http_requests_total",
				Help: "Admin and analytics HTTP requests by method, path and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "linematch_http_request_duration_seconds",
				Help:    "Admin and analytics HTTP request latency.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "linematch_http_requests_in_flight",
				Help: "HTTP requests currently being served.",
			},
		),
	}

	reg.MustRegister(
		m.ConnectionsTotal,
		m.ConnectionsInFlight,
		m.QueriesTotal,
		m.QueryDuration,
		m.SnapshotLoadsTotal,
		m.SnapshotLoadDuration,
		m.SnapshotLines,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.AdmissionRejectsTotal,
		m.CircuitBreakerState,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
