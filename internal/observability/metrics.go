package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FetchTotal counts completed view fetches by view and outcome
	// (success, error, stale).
	FetchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "postly_fetch_total",
		Help: "Total number of view fetches by outcome",
	}, []string{"view", "outcome"})

	// StaleResponsesDiscarded counts responses dropped because a newer request
	// for the same view was issued.
	StaleResponsesDiscarded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "postly_stale_responses_discarded_total",
		Help: "Total number of superseded fetch responses discarded",
	}, []string{"view"})

	// MutationTotal counts mutations by kind and outcome.
	MutationTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "postly_mutation_total",
		Help: "Total number of mutations by kind and outcome",
	}, []string{"kind", "outcome"})

	// APIRequestDuration records API round-trip latency.
	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "postly_api_request_duration_seconds",
		Help:    "Postly API request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	// TokenRefreshTotal counts access-token refresh attempts.
	TokenRefreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "postly_token_refresh_total",
		Help: "Total number of access token refresh attempts by outcome",
	}, []string{"outcome"})

	// RedisErrorRate counts session store Redis errors by operation type.
	RedisErrorRate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "postly_redis_error_rate_total",
		Help: "Total number of Redis errors by operation type",
	}, []string{"operation"})
)

// TrackRequest returns a function that records request latency when called
// with the final status label.
func TrackRequest(method, route string) func(status string) {
	start := time.Now()
	return func(status string) {
		APIRequestDuration.WithLabelValues(method, route, status).Observe(time.Since(start).Seconds())
	}
}
