// Package metrics exposes Prometheus collectors for the creator crawler.
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
	candidatesTotal            *prometheus.CounterVec
	discoveredTotal            *prometheus.CounterVec
	checkpointSkipsTotal       prometheus.Counter
	discoveryStopsTotal        *prometheus.CounterVec
	profileFetchSeconds        prometheus.Histogram
	storeWriteSeconds          *prometheus.HistogramVec
	rateLimitDelaysSeconds     *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		candidatesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "creatorcrawl_candidates_total",
				Help: "Dispatched candidates, labeled by outcome and error kind.",
			},
			[]string{"outcome", "error_kind"},
		)

		discoveredTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "creatorcrawl_discovered_total",
				Help: "Candidates enumerated from feeds, labeled by provenance kind.",
			},
			[]string{"provenance"},
		)

		checkpointSkipsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "creatorcrawl_checkpoint_skips_total",
				Help: "Discovered candidates skipped because they were already checkpointed.",
			},
		)

		discoveryStopsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "creatorcrawl_discovery_stops_total",
				Help: "Feed discovery passes, labeled by why they stopped.",
			},
			[]string{"reason"},
		)

		profileFetchSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "creatorcrawl_profile_fetch_seconds",
				Help:    "Histogram of profile navigation and render latency.",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
			},
		)

		storeWriteSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "creatorcrawl_store_write_seconds",
				Help:    "Histogram of durable store write latency, labeled by store.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
			[]string{"store"},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "creatorcrawl_rate_limit_delays_seconds",
				Help:    "Histogram of pacing wait durations.",
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

// ObserveCandidate counts one dispatched candidate.
func ObserveCandidate(outcome, errorKind string) {
	Init()
	candidatesTotal.WithLabelValues(outcome, errorKind).Inc()
}

// ObserveDiscovered counts candidates enumerated from a feed.
func ObserveDiscovered(provenance string, n int) {
	Init()
	if n > 0 {
		discoveredTotal.WithLabelValues(provenance).Add(float64(n))
	}
}

// ObserveCheckpointSkip counts a candidate skipped by the checkpoint gate.
func ObserveCheckpointSkip() {
	Init()
	checkpointSkipsTotal.Inc()
}

// ObserveDiscoveryStop records why a discovery pass ended ("cap" or "stagnant").
func ObserveDiscoveryStop(reason string) {
	Init()
	discoveryStopsTotal.WithLabelValues(reason).Inc()
}

// ObserveProfileFetch records profile navigation latency.
func ObserveProfileFetch(duration time.Duration) {
	Init()
	profileFetchSeconds.Observe(duration.Seconds())
}

// ObserveStoreWrite records a durable write against store ("checkpoint" or "results").
func ObserveStoreWrite(store string, duration time.Duration) {
	Init()
	storeWriteSeconds.WithLabelValues(store).Observe(duration.Seconds())
}

// ObserveRateLimitDelay records the duration of a pacing wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
