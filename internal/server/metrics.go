package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metric label values shared across registrations.
const (
	// labelHandler is the "handler" label value used to partition metrics by
	// the logical endpoint name rather than the raw URL path.
	labelHandler = "handler"
)

// Query and sync outcome label values.
const (
	outcomeOK                = "ok"
	outcomeDegraded          = "degraded"
	outcomeInvalid           = "invalid"
	outcomeError             = "error"
	outcomeSourceUnavailable = "source_unavailable"
	outcomeTimeout           = "timeout"
)

// serverMetrics holds all Prometheus metrics owned by the HTTP server.
// A single instance is created in New and stored on Server so that tests can
// inject a fresh prometheus.Registry without polluting the default one.
type serverMetrics struct {
	// queryRequestsTotal counts answered questions, partitioned by intent and
	// outcome: "ok", "degraded", "invalid" or "error".
	queryRequestsTotal *prometheus.CounterVec

	// queryDurationSeconds records the end-to-end latency of /api/v1/query.
	queryDurationSeconds prometheus.Histogram

	// syncRunsTotal counts synchronization requests by outcome.
	syncRunsTotal *prometheus.CounterVec

	// syncDurationSeconds records the duration of completed synchronizations.
	syncDurationSeconds prometheus.Histogram

	// indexedDocuments is the last observed document count of the index.
	indexedDocuments prometheus.Gauge

	// httpRequestsTotal counts all HTTP requests handled by the mux,
	// partitioned by method, path pattern, and status code.
	httpRequestsTotal *prometheus.CounterVec

	// httpDurationSeconds records the latency of all HTTP requests.
	httpDurationSeconds *prometheus.HistogramVec
}

// newServerMetrics registers all server metrics against reg and returns the
// populated serverMetrics.
func newServerMetrics(reg prometheus.Registerer) *serverMetrics {
	factory := promauto.With(reg)

	return &serverMetrics{
		queryRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "erag",
			Subsystem: "query",
			Name:      "requests_total",
			Help:      "Total number of questions handled, partitioned by intent and outcome.",
		}, []string{"intent", "outcome"}),

		queryDurationSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "erag",
			Subsystem: "query",
			Name:      "duration_seconds",
			Help:      "Latency of /api/v1/query from receipt to response.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),

		syncRunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "erag",
			Subsystem: "sync",
			Name:      "runs_total",
			Help:      "Total number of synchronization requests, partitioned by outcome.",
		}, []string{"outcome"}),

		syncDurationSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "erag",
			Subsystem: "sync",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of completed synchronization runs.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60},
		}),

		indexedDocuments: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "erag",
			Subsystem: "index",
			Name:      "documents",
			Help:      "Number of documents in the index at the last count.",
		}),

		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "erag",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled by the server, partitioned by method, handler, and status code.",
		}, []string{"method", labelHandler, "code"}),

		httpDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "erag",
			Subsystem: "http",
			Name:      "duration_seconds",
			Help:      "Latency of HTTP requests handled by the server.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", labelHandler}),
	}
}

// instrument wraps h with the HTTP request counter and latency histogram,
// labelled with the logical handler name.
func (m *serverMetrics) instrument(name string, h http.Handler) http.Handler {
	labels := prometheus.Labels{labelHandler: name}
	return promhttp.InstrumentHandlerDuration(
		m.httpDurationSeconds.MustCurryWith(labels),
		promhttp.InstrumentHandlerCounter(m.httpRequestsTotal.MustCurryWith(labels), h),
	)
}
