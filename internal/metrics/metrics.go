// Package metrics exposes Prometheus collectors for search runs.
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
	searchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitesearch_searches_total",
			Help: "Total number of (topic, site) searches, labeled by site and outcome.",
		},
		[]string{"site", "outcome"},
	)

	fetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitesearch_fetches_total",
			Help: "Total number of page fetches, labeled by mode (static or render) and outcome.",
		},
		[]string{"mode", "outcome"},
	)

	fallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitesearch_render_fallbacks_total",
			Help: "Total number of searches that fell back to a rendered fetch, labeled by site.",
		},
		[]string{"site"},
	)

	recordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitesearch_records_total",
			Help: "Total number of content records extracted, labeled by site.",
		},
		[]string{"site"},
	)

	skippedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitesearch_results_skipped_total",
			Help: "Total number of search results skipped, labeled by site and reason.",
		},
		[]string{"site", "reason"},
	)

	sinkRowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitesearch_sink_rows_total",
			Help: "Total number of rows handed to record sinks, labeled by sink and outcome.",
		},
		[]string{"sink", "outcome"},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitesearch_http_requests_total",
			Help: "Total number of status server requests, labeled by method and code.",
		},
		[]string{"method", "code"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sitesearch_http_request_duration_seconds",
			Help:    "Histogram of status server request latencies, labeled by method and route.",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"method", "route"},
	)
)

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveSearch counts a finished (topic, site) search.
func ObserveSearch(site, outcome string) {
	searchesTotal.WithLabelValues(site, outcome).Inc()
}

// ObserveFetch counts one page fetch.
func ObserveFetch(mode, outcome string) {
	fetchesTotal.WithLabelValues(mode, outcome).Inc()
}

// ObserveFallback counts a rendering fallback.
func ObserveFallback(site string) {
	fallbacksTotal.WithLabelValues(site).Inc()
}

// ObserveRecord counts an extracted record.
func ObserveRecord(site string) {
	recordsTotal.WithLabelValues(site).Inc()
}

// ObserveSkip counts a skipped search result.
func ObserveSkip(site, reason string) {
	skippedTotal.WithLabelValues(site, reason).Inc()
}

// ObserveSinkRow counts one row written to (or dropped by) a sink.
func ObserveSinkRow(sink, outcome string) {
	sinkRowsTotal.WithLabelValues(sink, outcome).Inc()
}

// ObserveHTTPRequest records a status server request.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
