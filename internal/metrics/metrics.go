// Package metrics exposes Prometheus collectors for the status API and the
// transfer jobs the CLI runs. Job lifecycle metrics live in the progress
// Prometheus sink.
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
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	transferBytesTotal         *prometheus.CounterVec
	transfersTotal             *prometheus.CounterVec
	rateLimitDelaySeconds      *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "asyncjob_http_requests_total",
				Help: "Total number of status API requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "asyncjob_http_request_duration_seconds",
				Help:    "Histogram of status API latencies, labeled by method and route.",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"method", "route"},
		)

		transferBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "asyncjob_transfer_bytes_total",
				Help: "Bytes moved by transfer jobs, labeled by operation and host.",
			},
			[]string{"op", "host"},
		)

		transfersTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "asyncjob_transfers_total",
				Help: "Transfer jobs finished, labeled by operation and status.",
			},
			[]string{"op", "status"},
		)

		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "asyncjob_rate_limit_delay_seconds",
				Help:    "Time downloads spent waiting on the per-host rate limiter.",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
			},
			[]string{"host"},
		)
	})
}

// SanitizeHost extracts a lowercase hostname from a URL.
// It returns "unknown" if the URL is invalid.
func SanitizeHost(rawURL string) string {
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

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveTransfer records one finished transfer. target is the URL for
// downloads and the storage backend for uploads; local copies pass "".
func ObserveTransfer(op, target string, bytes int64, err error) {
	Init()
	status := "success"
	if err != nil {
		status = "error"
	}
	transfersTotal.WithLabelValues(op, status).Inc()
	if bytes <= 0 {
		return
	}
	host := "local"
	if target != "" {
		host = SanitizeHost(target)
	}
	transferBytesTotal.WithLabelValues(op, host).Add(float64(bytes))
}

// ObserveRateLimitDelay records how long a download waited for its host's
// limiter.
func ObserveRateLimitDelay(host string, d time.Duration) {
	Init()
	rateLimitDelaySeconds.WithLabelValues(host).Observe(d.Seconds())
}
