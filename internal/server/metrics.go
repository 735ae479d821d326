package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "docqa"

// serverMetrics holds all Prometheus metrics owned by the HTTP server.
// Collectors are registered against the configured registry so tests can use
// an isolated one.
type serverMetrics struct {
	// askRequestsTotal counts completed POST /api/ask requests by outcome:
	// "ok", "invalid", "timeout" or "error".
	askRequestsTotal *prometheus.CounterVec

	// askDurationSeconds is the end-to-end latency of POST /api/ask.
	askDurationSeconds *prometheus.HistogramVec

	// askInFlight is the number of questions currently being answered.
	askInFlight prometheus.Gauge

	// askSources is the number of cited fragments per answer.
	askSources prometheus.Histogram

	// httpRequestsTotal counts every request by method, chi route pattern
	// and status code.
	httpRequestsTotal *prometheus.CounterVec

	// httpDurationSeconds is the request latency by method and route pattern.
	httpDurationSeconds *prometheus.HistogramVec
}

func newServerMetrics(reg prometheus.Registerer) *serverMetrics {
	factory := promauto.With(reg)

	return &serverMetrics{
		askRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "ask",
			Name:      "requests_total",
			Help:      "Total number of /api/ask requests completed, partitioned by outcome.",
		}, []string{"outcome"}),

		askDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "ask",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of /api/ask requests, retrieval and generation included.",
			Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"outcome"}),

		askInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "ask",
			Name:      "in_flight",
			Help:      "Number of /api/ask requests currently being answered.",
		}),

		askSources: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "ask",
			Name:      "sources",
			Help:      "Number of fragments cited per answer.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		}),

		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests, partitioned by method, route and status code.",
		}, []string{"method", "handler", "code"}),

		httpDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "duration_seconds",
			Help:      "Latency of HTTP requests handled by the server.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "handler"}),
	}
}
