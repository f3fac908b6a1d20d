package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "tablestore"

var (
	// RequestCounter counts all HTTP requests with labels
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// RequestDurationHistogram records request duration in seconds
	RequestDurationHistogram = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	// FilterCacheLookups counts filter cache reads by result (hit, miss, error)
	FilterCacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "filter_cache_lookups_total",
			Help:      "Filter result cache lookups by result",
		},
		[]string{"result"},
	)

	// FilterCacheEvictions counts entries removed from the filter cache by reason
	FilterCacheEvictions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "filter_cache_evictions_total",
			Help:      "Filter result cache entries removed, by reason",
		},
		[]string{"reason"},
	)

	// PermissionSweepRevocations counts expired grants deleted by the sweep
	PermissionSweepRevocations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "permission_sweep_revocations_total",
			Help:      "Expired grants deleted by the permission sweep, by resource type",
		},
		[]string{"resource_type"},
	)

	// ProvisioningFailures counts templates that failed to provision
	ProvisioningFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provisioning_failures_total",
			Help:      "Template provisioning failures by error code",
		},
		[]string{"code"},
	)

	// RateLimitRejections counts requests rejected by the rate limiter
	RateLimitRejections = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_rejections_total",
			Help:      "Requests rejected by the rate limiter",
		},
	)
)

var registerOnce sync.Once

// Register registers every collector with the default registry. Safe to call more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			RequestCounter,
			RequestDurationHistogram,
			FilterCacheLookups,
			FilterCacheEvictions,
			PermissionSweepRevocations,
			ProvisioningFailures,
			RateLimitRejections,
		)
	})
}
