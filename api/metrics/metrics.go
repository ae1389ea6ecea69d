// Package metrics exposes Prometheus metrics for the API and its
// collaborators.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BuildInfo carries the build version labels, set once at startup.
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "askdb_build_info",
		Help: "Build information",
	}, []string{"version", "commit", "date"})

	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "askdb_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "askdb_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	anthropicRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "askdb_anthropic_requests_total",
		Help: "Total Anthropic API requests",
	}, []string{"operation", "status"})

	anthropicRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "askdb_anthropic_request_duration_seconds",
		Help:    "Anthropic API request duration in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"operation"})

	anthropicTokensTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "askdb_anthropic_tokens_total",
		Help: "Total Anthropic tokens used",
	}, []string{"direction"})

	mongoQueriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "askdb_mongodb_queries_total",
		Help: "Total MongoDB queries executed",
	}, []string{"status"})

	mongoQueryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "askdb_mongodb_query_duration_seconds",
		Help:    "MongoDB query duration in seconds",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})
)

// RecordAnthropicRequest records an Anthropic API call outcome.
func RecordAnthropicRequest(operation string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	anthropicRequestsTotal.WithLabelValues(operation, status).Inc()
	anthropicRequestDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordAnthropicTokens records token usage for an Anthropic API call.
func RecordAnthropicTokens(input, output int64) {
	anthropicTokensTotal.WithLabelValues("input").Add(float64(input))
	anthropicTokensTotal.WithLabelValues("output").Add(float64(output))
}

// RecordMongoQuery records a MongoDB query outcome.
func RecordMongoQuery(duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	mongoQueriesTotal.WithLabelValues(status).Inc()
	mongoQueryDuration.Observe(duration.Seconds())
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware records request counts and latency per route.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		httpRequestsTotal.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(rec.status)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
	})
}
