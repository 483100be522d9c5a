// Package metrics exposes Prometheus collectors for the jobscout service.
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
	postingsScrapedTotal       *prometheus.CounterVec
	postingsNewTotal           *prometheus.CounterVec
	postingsDuplicateTotal     *prometheus.CounterVec
	sourceFailuresTotal        *prometheus.CounterVec
	matchScore                 prometheus.Histogram
	semanticFallbackTotal      prometheus.Counter
	artifactsGeneratedTotal    *prometheus.CounterVec
	runsTotal                  *prometheus.CounterVec
	runDurationSeconds         prometheus.Histogram
	sessionHealth              *prometheus.GaugeVec
	rateLimitDelaySeconds      *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// SessionStates lists every label value of the session health gauge.
var SessionStates = []string{"healthy", "invalid", "missing", "untested"}

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		postingsScrapedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobscout_postings_scraped_total",
				Help: "Raw postings returned by source adapters, labeled by source.",
			},
			[]string{"source"},
		)

		postingsNewTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobscout_postings_new_total",
				Help: "Postings persisted for the first time, labeled by source.",
			},
			[]string{"source"},
		)

		postingsDuplicateTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobscout_postings_duplicate_total",
				Help: "Postings skipped because their canonical URL was already known.",
			},
			[]string{"source"},
		)

		sourceFailuresTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobscout_source_failures_total",
				Help: "Source tasks that failed or panicked, labeled by source.",
			},
			[]string{"source"},
		)

		matchScore = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "jobscout_match_score",
				Help:    "Distribution of final blended match scores.",
				Buckets: prometheus.LinearBuckets(1, 1, 10),
			},
		)

		semanticFallbackTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "jobscout_semantic_fallback_total",
				Help: "Scores that fell back to the lexical score alone.",
			},
		)

		artifactsGeneratedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobscout_artifacts_generated_total",
				Help: "Tailored artifacts generated, labeled by status.",
			},
			[]string{"status"},
		)

		runsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobscout_runs_total",
				Help: "Pipeline runs, labeled by terminal status.",
			},
			[]string{"status"},
		)

		runDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "jobscout_run_duration_seconds",
				Help:    "Wall-clock duration of pipeline runs.",
				Buckets: []float64{10, 30, 60, 120, 300, 600, 1200, 2400},
			},
		)

		sessionHealth = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "jobscout_session_health",
				Help: "Current session health; 1 for the active state, 0 otherwise.",
			},
			[]string{"state"},
		)

		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "jobscout_rate_limit_delay_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
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
	return promhttp.Handler()
}

// ObserveScraped counts raw postings an adapter returned.
func ObserveScraped(source string, n int) {
	Init()
	if n > 0 {
		postingsScrapedTotal.WithLabelValues(source).Add(float64(n))
	}
}

// ObserveNewPosting counts a persisted posting.
func ObserveNewPosting(source string) {
	Init()
	postingsNewTotal.WithLabelValues(source).Inc()
}

// ObserveDuplicate counts a posting skipped as already known.
func ObserveDuplicate(source string) {
	Init()
	postingsDuplicateTotal.WithLabelValues(source).Inc()
}

// ObserveSourceFailure counts a failed source task.
func ObserveSourceFailure(source string) {
	Init()
	sourceFailuresTotal.WithLabelValues(source).Inc()
}

// ObserveMatch records a final score and whether the semantic stage contributed.
func ObserveMatch(score float64, semantic bool) {
	Init()
	matchScore.Observe(score)
	if !semantic {
		semanticFallbackTotal.Inc()
	}
}

// ObserveArtifact counts a generation attempt by status ("success" or "error").
func ObserveArtifact(status string) {
	Init()
	artifactsGeneratedTotal.WithLabelValues(status).Inc()
}

// ObserveRun records a finished run.
func ObserveRun(status string, duration time.Duration) {
	Init()
	runsTotal.WithLabelValues(status).Inc()
	runDurationSeconds.Observe(duration.Seconds())
}

// SetSessionHealth marks state as the active session state.
func SetSessionHealth(state string) {
	Init()
	for _, s := range SessionStates {
		v := 0.0
		if s == state {
			v = 1
		}
		sessionHealth.WithLabelValues(s).Set(v)
	}
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	rateLimitDelaySeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
