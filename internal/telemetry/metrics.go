// Package telemetry wires metrics and tracing for the gateway.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for Intentgate.
// Pass to components that need to record metrics.
type Metrics struct {
	Decisions          *prometheus.CounterVec
	EnforceDuration    prometheus.Histogram
	EmbedCacheHits     prometheus.Counter
	EmbedCacheMisses   prometheus.Counter
	ActiveSessions     prometheus.Gauge
	SweptSessionsTotal prometheus.Counter
	InstallsTotal      *prometheus.CounterVec
	RequestsTotal      *prometheus.CounterVec
	RequestDuration    *prometheus.HistogramVec
}

// NewMetrics creates and registers all metrics with the given registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		Decisions: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "intentgate",
				Name:      "decisions_total",
				Help:      "Total enforcement decisions",
			},
			[]string{"result", "reason"}, // result=allow/block
		),
		EnforceDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "intentgate",
				Name:      "enforce_duration_seconds",
				Help:      "End-to-end enforcement latency in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),
		EmbedCacheHits: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "intentgate",
				Name:      "embed_cache_hits_total",
				Help:      "Embedding cache hits",
			},
		),
		EmbedCacheMisses: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "intentgate",
				Name:      "embed_cache_misses_total",
				Help:      "Embedding cache misses",
			},
		),
		ActiveSessions: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "intentgate",
				Name:      "active_sessions",
				Help:      "Number of live agent sessions",
			},
		),
		SweptSessionsTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "intentgate",
				Name:      "swept_sessions_total",
				Help:      "Sessions removed by the expiry sweeper",
			},
		),
		InstallsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "intentgate",
				Name:      "boundary_installs_total",
				Help:      "Boundary install and remove operations",
			},
			[]string{"operation", "status"}, // operation=install/remove, status=ok/error
		),
		RequestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "intentgate",
				Name:      "http_requests_total",
				Help:      "Total HTTP API requests processed",
			},
			[]string{"method", "status"}, // status=ok/error
		),
		RequestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "intentgate",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP API request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),
	}
}
