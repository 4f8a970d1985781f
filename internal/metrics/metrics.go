// Package metrics exposes Prometheus collectors for the web connector.
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

// Page outcomes recorded by ObservePage.
const (
	OutcomeIndexed     = "indexed"
	OutcomeRedirected  = "redirected"
	OutcomeSkipped     = "skipped"
	OutcomeProbeFailed = "probe_failed"
	OutcomeRateLimited = "rate_limited"
	OutcomeFault       = "session_fault"
	OutcomeConfirmed   = "confirmed"
)

var (
	pagesTotal              *prometheus.CounterVec
	bytesTotal              *prometheus.CounterVec
	fetchDurationSeconds    *prometheus.HistogramVec
	rateLimitDeferralsTotal *prometheus.CounterVec
	rateLimitDelaysSeconds  *prometheus.HistogramVec
	sessionRestartsTotal    *prometheus.CounterVec
	batchesTotal            *prometheus.CounterVec
	documentsTotal          prometheus.Counter
	httpRequestsTotal       *prometheus.CounterVec
	httpRequestDurationSecs *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		pagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webconnector_pages_total",
				Help: "Total number of URLs handled, labeled by site and outcome.",
			},
			[]string{"site", "outcome"},
		)

		bytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webconnector_bytes_total",
				Help: "Total number of body bytes fetched, labeled by site.",
			},
			[]string{"site"},
		)

		fetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "webconnector_fetch_duration_seconds",
				Help:    "Histogram of fetch latencies, labeled by fetch kind.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"kind"},
		)

		rateLimitDeferralsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webconnector_rate_limit_deferrals_total",
				Help: "Total number of URLs deferred after a 429 response, labeled by site.",
			},
			[]string{"site"},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "webconnector_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)

		sessionRestartsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webconnector_session_restarts_total",
				Help: "Total number of rendering session restarts, labeled by reason.",
			},
			[]string{"reason"},
		)

		batchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webconnector_batches_total",
				Help: "Total number of batches emitted, labeled by kind.",
			},
			[]string{"kind"},
		)

		documentsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "webconnector_documents_total",
				Help: "Total number of documents emitted.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSecs = promauto.NewHistogramVec(
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
	return promhttp.Handler()
}

// ObservePage records the outcome for one URL and the bytes fetched for it.
func ObservePage(rawURL, outcome string, bytesFetched int) {
	Init()
	site := SanitizeSite(rawURL)
	pagesTotal.WithLabelValues(site, outcome).Inc()
	if bytesFetched > 0 {
		bytesTotal.WithLabelValues(site).Add(float64(bytesFetched))
	}
}

// ObserveFetch records how long a fetch of the given kind took.
func ObserveFetch(kind string, duration time.Duration) {
	Init()
	fetchDurationSeconds.WithLabelValues(kind).Observe(duration.Seconds())
}

// ObserveRateLimitDeferral counts a URL pushed back by a 429.
func ObserveRateLimitDeferral(rawURL string) {
	Init()
	rateLimitDeferralsTotal.WithLabelValues(SanitizeSite(rawURL)).Inc()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveSessionRestart counts a rendering session teardown scheduled for restart.
func ObserveSessionRestart(reason string) {
	Init()
	sessionRestartsTotal.WithLabelValues(reason).Inc()
}

// ObserveBatch records an emitted batch of the given kind ("documents" or "slim").
func ObserveBatch(kind string, size int) {
	Init()
	batchesTotal.WithLabelValues(kind).Inc()
	if kind == "documents" {
		documentsTotal.Add(float64(size))
	}
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSecs.WithLabelValues(method, route).Observe(duration.Seconds())
}
