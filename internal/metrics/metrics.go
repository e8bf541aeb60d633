// Package metrics exposes Prometheus collectors for the campaign crawler.
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
	crawlRunsTotal             *prometheus.CounterVec
	itemsTotal                 *prometheus.CounterVec
	savedTotal                 *prometheus.CounterVec
	qualityScore               *prometheus.GaugeVec
	deadlineMethodTotal        *prometheus.CounterVec
	fetchTotal                 *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	rateLimitDelaysSeconds     *prometheus.HistogramVec
	throttledTotal             *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		crawlRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "campaign_crawl_runs_total",
				Help: "Source crawls, labeled by source and outcome.",
			},
			[]string{"source", "status"},
		)

		itemsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "campaign_items_total",
				Help: "Campaign records seen per pipeline stage.",
			},
			[]string{"source", "stage"},
		)

		savedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "campaign_saved_total",
				Help: "Campaign rows upserted, labeled by source.",
			},
			[]string{"source"},
		)

		qualityScore = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "campaign_quality_score",
				Help: "Quality score (0-100) of the latest batch per source.",
			},
			[]string{"source"},
		)

		deadlineMethodTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "campaign_deadline_method_total",
				Help: "Deadline resolutions, labeled by source and method.",
			},
			[]string{"source", "method"},
		)

		fetchTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "campaign_fetch_total",
				Help: "Page fetches, labeled by kind (static, rendered, detail) and status.",
			},
			[]string{"kind", "status"},
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
				Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 30, 120, 480},
			},
			[]string{"method", "route"},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "campaign_host_politeness_delay_seconds",
				Help:    "Histogram of outbound per-host politeness waits.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"host"},
		)

		throttledTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_throttled_requests_total",
				Help: "Inbound requests rejected by the rate limiter, labeled by path.",
			},
			[]string{"path"},
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
	return promhttp.Handler()
}

// ObserveRun counts one source crawl.
func ObserveRun(source string, success bool) {
	Init()
	status := "success"
	if !success {
		status = "failure"
	}
	crawlRunsTotal.WithLabelValues(source, status).Inc()
}

// ObserveItems adds n records seen at a pipeline stage (parsed, deduped, valid).
func ObserveItems(source, stage string, n int) {
	Init()
	if n > 0 {
		itemsTotal.WithLabelValues(source, stage).Add(float64(n))
	}
}

// ObserveSaved adds n upserted rows.
func ObserveSaved(source string, n int) {
	Init()
	if n > 0 {
		savedTotal.WithLabelValues(source).Add(float64(n))
	}
}

// SetQualityScore records the latest batch score for source.
func SetQualityScore(source string, score int) {
	Init()
	qualityScore.WithLabelValues(source).Set(float64(score))
}

// ObserveDeadlineMethod counts one deadline resolution.
func ObserveDeadlineMethod(source, method string) {
	Init()
	deadlineMethodTotal.WithLabelValues(source, method).Inc()
}

// ObserveFetch counts one fetch attempt.
func ObserveFetch(kind string, err error) {
	Init()
	status := "ok"
	if err != nil {
		status = "error"
	}
	fetchTotal.WithLabelValues(kind, status).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveRateLimitDelay records the duration of a politeness wait.
func ObserveRateLimitDelay(host string, duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(host).Observe(duration.Seconds())
}

// ObserveThrottled counts one rejected inbound request.
func ObserveThrottled(path string) {
	Init()
	throttledTotal.WithLabelValues(path).Inc()
}
