// Package metrics exposes Prometheus collectors for the resolution pipeline.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	downloadsTotal             *prometheus.CounterVec
	downloadRetriesTotal       *prometheus.CounterVec
	downloadBytesTotal         *prometheus.CounterVec
	extractionsTotal           *prometheus.CounterVec
	entriesTotal               *prometheus.CounterVec
	graphWriteFailuresTotal    prometheus.Counter
	activeWorkers              prometheus.Gauge
	hostGateWaitSeconds        *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		downloadsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "newsgraph_downloads_total",
				Help: "Total number of page downloads, labeled by site and outcome.",
			},
			[]string{"site", "outcome"},
		)

		downloadRetriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "newsgraph_download_retries_total",
				Help: "Total number of download retries, labeled by site.",
			},
			[]string{"site"},
		)

		downloadBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "newsgraph_download_bytes_total",
				Help: "Total number of bytes downloaded, labeled by site.",
			},
			[]string{"site"},
		)

		extractionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "newsgraph_extractions_total",
				Help: "Extraction strategy outcomes, labeled by strategy and outcome.",
			},
			[]string{"strategy", "outcome"},
		)

		entriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "newsgraph_entries_total",
				Help: "Feed entries processed, labeled by result.",
			},
			[]string{"result"},
		)

		graphWriteFailuresTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "newsgraph_graph_write_failures_total",
				Help: "Graph projection upserts that failed and were skipped.",
			},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "newsgraph_active_workers",
				Help: "Number of workers currently processing a feed.",
			},
		)

		hostGateWaitSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "newsgraph_host_gate_wait_seconds",
				Help:    "Histogram of time spent waiting for a per-host download slot.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"host"},
		)

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
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// ObserveDownload records the final outcome of a download.
func ObserveDownload(site string, outcome string, bytesFetched int) {
	Init()
	sanitizedSite := SanitizeSite(site)
	downloadsTotal.WithLabelValues(sanitizedSite, outcome).Inc()
	if bytesFetched > 0 {
		downloadBytesTotal.WithLabelValues(sanitizedSite).Add(float64(bytesFetched))
	}
}

// ObserveDownloadRetry increments the retry counter for a site.
func ObserveDownloadRetry(site string) {
	Init()
	downloadRetriesTotal.WithLabelValues(SanitizeSite(site)).Inc()
}

// ObserveExtraction records a strategy outcome.
func ObserveExtraction(strategy, outcome string) {
	Init()
	extractionsTotal.WithLabelValues(strategy, outcome).Inc()
}

// ObserveEntry records how a feed entry was handled.
func ObserveEntry(result string) {
	Init()
	entriesTotal.WithLabelValues(result).Inc()
}

// ObserveGraphWriteFailure increments the graph failure counter.
func ObserveGraphWriteFailure() {
	Init()
	graphWriteFailuresTotal.Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	activeWorkers.Dec()
}

// ObserveHostGateWait records the duration of a per-host slot wait.
func ObserveHostGateWait(host string, duration time.Duration) {
	Init()
	hostGateWaitSeconds.WithLabelValues(host).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
