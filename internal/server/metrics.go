package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metric label values shared across registrations.
const (
	// labelHandler is the "handler" label value used to partition metrics by
	// the logical endpoint name rather than the raw URL path.
	labelHandler = "handler"
)

// serverMetrics holds all Prometheus metrics owned by the HTTP server.
// A single instance is created in newServer so that tests can inject a
// fresh prometheus.Registry without polluting the default one.
type serverMetrics struct {
	// queryRequestsTotal counts /api/query requests by outcome: ok, invalid,
	// provider_error, timeout or error.
	queryRequestsTotal *prometheus.CounterVec

	// queryDurationSeconds records the wall-clock duration of agent runs.
	queryDurationSeconds *prometheus.HistogramVec

	// queryIterations records how many cycles successful runs took.
	queryIterations prometheus.Histogram

	// queryConfidence records the final confidence of successful runs.
	queryConfidence prometheus.Histogram

	// queryInFlight is the number of agent runs currently executing.
	queryInFlight prometheus.Gauge

	// stepErrorsTotal counts failed runs and searches by the phase that failed.
	stepErrorsTotal *prometheus.CounterVec

	// httpRequestsTotal counts all HTTP requests handled by the mux,
	// partitioned by method, handler, and status code.
	httpRequestsTotal *prometheus.CounterVec

	// httpDurationSeconds records the latency of all HTTP requests.
	httpDurationSeconds *prometheus.HistogramVec

	// rateLimitedTotal counts requests rejected by the per-IP limiter.
	rateLimitedTotal prometheus.Counter
}

// newServerMetrics registers all server metrics against reg.
func newServerMetrics(reg prometheus.Registerer) *serverMetrics {
	factory := promauto.With(reg)

	return &serverMetrics{
		queryRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docarag",
			Subsystem: "query",
			Name:      "requests_total",
			Help:      "Total number of /api/query requests completed, partitioned by outcome.",
		}, []string{"outcome"}),

		queryDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "docarag",
			Subsystem: "query",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of agent runs.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"outcome"}),

		queryIterations: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "docarag",
			Subsystem: "query",
			Name:      "iterations",
			Help:      "Number of rephrase-retrieve-generate-evaluate cycles per successful run.",
			Buckets:   []float64{1, 2, 3, 4, 5},
		}),

		queryConfidence: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "docarag",
			Subsystem: "query",
			Name:      "confidence",
			Help:      "Final answer confidence per successful run.",
			Buckets:   prometheus.LinearBuckets(0.1, 0.1, 10),
		}),

		queryInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "docarag",
			Subsystem: "query",
			Name:      "in_flight",
			Help:      "Number of agent runs currently executing.",
		}),

		stepErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docarag",
			Subsystem: "agent",
			Name:      "step_errors_total",
			Help:      "Total number of aborted runs and searches, partitioned by the phase that failed.",
		}, []string{"phase"}),

		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docarag",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled by the server, partitioned by method, handler, and status code.",
		}, []string{"method", labelHandler, "code"}),

		httpDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "docarag",
			Subsystem: "http",
			Name:      "duration_seconds",
			Help:      "Latency of HTTP requests handled by the server.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", labelHandler}),

		rateLimitedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "docarag",
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Total number of requests rejected by the per-IP rate limiter.",
		}),
	}
}

// instrument records request count and latency for the named handler.
func (s *Server) instrument(name string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rw, r)
		s.metrics.httpDurationSeconds.WithLabelValues(r.Method, name).Observe(time.Since(start).Seconds())
		s.metrics.httpRequestsTotal.WithLabelValues(r.Method, name, strconv.Itoa(rw.status)).Inc()
	})
}
