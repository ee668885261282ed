package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Tracks the number of outbound API calls to Sportiva.
	SportivaRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sportiva_api_requests_total",
			Help: "Total number of Sportiva API requests made (by endpoint, method and status).",
		},
		[]string{"endpoint", "method", "status"},
	)

	// Measures duration of API requests to Sportiva.
	SportivaRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sportiva_api_request_duration_seconds",
			Help:    "Duration of Sportiva API requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms → ~16s
		},
		[]string{"endpoint", "method"},
	)

	// Counts token refresh attempts by outcome ("success" / "failure").
	TokenRefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sportiva_token_refresh_total",
			Help: "Total number of session token refresh attempts by outcome.",
		},
		[]string{"outcome"},
	)

	// Number of requests currently parked waiting for an in-flight refresh.
	RefreshWaiters = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sportiva_refresh_waiters",
			Help: "Requests currently queued behind an in-flight token refresh.",
		},
	)

	NATSPublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nats_publish_total",
			Help: "NATS publish attempts by subject and result.",
		},
		[]string{"subject", "result"},
	)

	NATSMessageLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nats_publish_duration_seconds",
			Help:    "Latency of NATS publishes in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
		[]string{"subject"},
	)
)

// ObserveDuration records the time taken since start into the given histogram.
func ObserveDuration(v any, start time.Time, labels ...string) {
	duration := time.Since(start).Seconds()

	switch metric := v.(type) {
	case *prometheus.HistogramVec:
		metric.WithLabelValues(labels...).Observe(duration)
	case *prometheus.SummaryVec:
		metric.WithLabelValues(labels...).Observe(duration)
	default:
		// silently ignore counters; they're not meant for duration tracking
	}
}

func IncSportivaRequest(endpoint, method, status string) {
	SportivaRequestsTotal.WithLabelValues(endpoint, method, status).Inc()
}

func IncTokenRefresh(outcome string) {
	TokenRefreshTotal.WithLabelValues(outcome).Inc()
}

func IncNATSMessage(subject, result string) {
	NATSPublishTotal.WithLabelValues(subject, result).Inc()
}
