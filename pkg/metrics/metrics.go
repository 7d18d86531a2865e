package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP request latency in seconds.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "path", "status"},
	)

	// Outbound provider API call latency in milliseconds.
	ProviderCallLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "provider_call_latency_ms",
			Help:    "External provider API call latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10), // 10ms to ~10s
		},
		[]string{"provider", "call", "status"},
	)

	// Messages fetched and cached per sync.
	SyncMessagesCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_messages_count",
			Help: "Total number of provider messages fetched and cached",
		},
		[]string{"provider", "folder"},
	)

	// Task automation outcomes.
	TaskAutomationCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "task_automation_count",
			Help: "Total number of processed sent-message events",
		},
		[]string{"outcome"}, // outcome: created, deduped, skipped, rejected
	)

	// Token refresh attempts.
	TokenRefreshCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "token_refresh_count",
			Help: "Total number of OAuth token refresh attempts",
		},
		[]string{"provider", "status"}, // status: success, failed
	)

	// Webhook calls rejected by the rate limiter.
	RateLimitRejectedCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rate_limit_rejected_count",
			Help: "Total number of requests rejected by the rate limiter",
		},
	)
)

// RecordHTTPRequestDuration records HTTP request latency.
func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// RecordProviderCall records an outbound provider API call.
func RecordProviderCall(provider, call, status string, duration time.Duration) {
	ProviderCallLatency.WithLabelValues(provider, call, status).Observe(float64(duration.Milliseconds()))
}

// IncrementSyncMessages increases the fetched-message counter.
func IncrementSyncMessages(provider, folder string, n int) {
	SyncMessagesCount.WithLabelValues(provider, folder).Add(float64(n))
}

// IncrementTaskAutomation increases the automation outcome counter.
func IncrementTaskAutomation(outcome string) {
	TaskAutomationCount.WithLabelValues(outcome).Inc()
}

// IncrementTokenRefresh increases the token refresh counter.
func IncrementTokenRefresh(provider, status string) {
	TokenRefreshCount.WithLabelValues(provider, status).Inc()
}
