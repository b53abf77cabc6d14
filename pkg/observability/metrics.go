// Package observability provides Prometheus metrics for monitoring the
// casegate request pipeline.
package observability

import "github.com/prometheus/client_golang/prometheus"

// APIBuckets defines histogram buckets suited for CRUD API latencies,
// ranging from 5ms to 10s.
var APIBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

var (
	// RequestsTotal counts all pipeline requests by method, route, and status class.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "casegate_requests_total",
			Help: "Total requests",
		},
		[]string{"method", "route", "status"},
	)

	// RequestDuration records request duration in seconds by method and route.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "casegate_request_duration_seconds",
			Help:    "Request duration",
			Buckets: APIBuckets,
		},
		[]string{"method", "route"},
	)

	// AuthFailuresTotal counts rejected authentication attempts by credential source.
	AuthFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "casegate_auth_failures_total",
			Help: "Authentication failures",
		},
		[]string{"source"},
	)

	// RateLimitRejectedTotal counts requests rejected by the rate limiter.
	RateLimitRejectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "casegate_ratelimit_rejected_total",
			Help: "Rate limit rejections",
		},
	)

	// HealthGateRejectedTotal counts requests refused while the data store was unreachable.
	HealthGateRejectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "casegate_healthgate_rejected_total",
			Help: "Health gate rejections",
		},
	)

	// UsageSamplesTotal counts API-key usage samples by recording outcome.
	UsageSamplesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "casegate_usage_samples_total",
			Help: "API key usage samples",
		},
		[]string{"outcome"},
	)

	// VersionConflictsTotal counts optimistic-lock conflicts by entity type.
	VersionConflictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "casegate_version_conflicts_total",
			Help: "Optimistic concurrency conflicts",
		},
		[]string{"entity"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		AuthFailuresTotal,
		RateLimitRejectedTotal,
		HealthGateRejectedTotal,
		UsageSamplesTotal,
		VersionConflictsTotal,
	)
}
