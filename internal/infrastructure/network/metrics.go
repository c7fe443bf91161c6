package network

import "github.com/prometheus/client_golang/prometheus"

var (
	requestAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "network_request_attempts_total",
			Help: "HTTP request attempts by endpoint and outcome kind",
		},
		[]string{"endpoint", "outcome"},
	)
	requestRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "network_request_retries_total",
			Help: "Retries scheduled after a failed attempt",
		},
		[]string{"endpoint"},
	)
	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "network_request_duration_seconds",
			Help: "Latency of a single HTTP attempt",
		},
		[]string{"endpoint", "method"},
	)
	rateLimitWaits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "network_rate_limit_waits_total",
			Help: "Requests delayed by the per-endpoint minimum interval",
		},
		[]string{"endpoint"},
	)
	tokenRefreshes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "network_token_refreshes_total",
			Help: "Auth token refresh calls by result",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(requestAttempts)
	prometheus.MustRegister(requestRetries)
	prometheus.MustRegister(requestDuration)
	prometheus.MustRegister(rateLimitWaits)
	prometheus.MustRegister(tokenRefreshes)
}
