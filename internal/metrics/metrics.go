// Package metrics holds the Prometheus instruments exported on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	UpstreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "uangku_upstream_requests_total",
			Help: "Calls to the remote account API by operation and outcome",
		},
		[]string{"operation", "outcome"}, // outcome: success, upstream_error, network_error, no_token
	)

	UpstreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "uangku_upstream_request_duration_seconds",
			Help:    "Latency of calls to the remote account API",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	LoginAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "uangku_login_attempts_total",
			Help: "Login attempts by result",
		},
		[]string{"result"}, // success, invalid_credentials, token_missing, transient
	)

	SyncMutations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "uangku_sync_mutations_total",
			Help: "Create and delete mutations by result",
		},
		[]string{"operation", "result"}, // result: reconciled, rollback, busy, reconcile_failed
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "uangku_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)
)

// ObserveUpstream records one upstream call.
func ObserveUpstream(operation, outcome string, started time.Time) {
	UpstreamRequests.WithLabelValues(operation, outcome).Inc()
	UpstreamDuration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
}
