// Package metrics exposes Prometheus collectors for the decompile service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests, labeled by method and code.",
		},
		[]string{"method", "code"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, labeled by method and route.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"method", "route"},
	)

	pipelineRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sb2gs_pipeline_runs_total",
			Help: "Total number of decompile pipeline runs, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	pipelineStageDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sb2gs_pipeline_stage_duration_seconds",
			Help:    "Histogram of time spent in each pipeline stage.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"stage"},
	)

	assetFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sb2gs_asset_fetches_total",
			Help: "Total number of asset downloads, labeled by status.",
		},
		[]string{"status"},
	)

	assetBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sb2gs_asset_bytes_total",
			Help: "Total number of asset bytes downloaded.",
		},
	)

	rateLimitDelaySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sb2gs_upstream_rate_limit_delay_seconds",
			Help:    "Time outbound requests spent waiting on the per-host rate limiter.",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"host"},
	)

	activeDecompiles = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sb2gs_active_decompiles",
			Help: "Number of workers currently running the decompiler.",
		},
	)
)

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObservePipelineRun counts one finished pipeline run.
func ObservePipelineRun(outcome string) {
	pipelineRunsTotal.WithLabelValues(outcome).Inc()
}

// ObserveStage records how long a pipeline stage took.
func ObserveStage(stage string, duration time.Duration) {
	pipelineStageDurationSeconds.WithLabelValues(stage).Observe(duration.Seconds())
}

// ObserveAssetFetch counts one asset download and its size.
func ObserveAssetFetch(status string, bytesFetched int) {
	assetFetchesTotal.WithLabelValues(status).Inc()
	if bytesFetched > 0 {
		assetBytesTotal.Add(float64(bytesFetched))
	}
}

// ObserveRateLimitDelay records time spent waiting for a rate limit token.
func ObserveRateLimitDelay(host string, duration time.Duration) {
	rateLimitDelaySeconds.WithLabelValues(host).Observe(duration.Seconds())
}

// IncActiveDecompiles increments the active decompiles gauge.
func IncActiveDecompiles() {
	activeDecompiles.Inc()
}

// DecActiveDecompiles decrements the active decompiles gauge.
func DecActiveDecompiles() {
	activeDecompiles.Dec()
}
