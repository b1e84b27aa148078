// Package metrics defines the Prometheus collectors of the stories service.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// registerOnce ensures Register() is idempotent.
var registerOnce sync.Once

// HTTP metrics.
var (
	// HTTPRequestsTotal counts HTTP requests by method, route pattern and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stories_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPRequestDuration observes request latency in seconds.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stories_http_request_duration_seconds",
			Help:    "Request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// Storage and domain metrics.
var (
	// StorageOperationsTotal counts object store calls by operation and outcome.
	StorageOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stories_storage_operations_total",
			Help: "Object store operations by type and status",
		},
		[]string{"operation", "status"},
	)

	// StorageOperationDuration observes object store call latency in seconds.
	StorageOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stories_storage_operation_duration_seconds",
			Help:    "Object store call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// ObjectsCreatedTotal counts created sessions and stories.
	ObjectsCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stories_objects_created_total",
			Help: "Objects created by type",
		},
		[]string{"type"},
	)

	// ObjectsDeletedTotal counts deleted sessions and stories.
	ObjectsDeletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stories_objects_deleted_total",
			Help: "Objects deleted by type",
		},
		[]string{"type"},
	)

	// QuotaRejectionsTotal counts creates refused because the user hit the limit.
	QuotaRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stories_quota_rejections_total",
			Help: "Create requests rejected by quota",
		},
		[]string{"type"},
	)

	// TokenValidationsTotal counts identity provider lookups by outcome.
	TokenValidationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stories_token_validations_total",
			Help: "Bearer token validations by result",
		},
		[]string{"result"},
	)
)

// Register registers all collectors with the default registry.
// It is safe to call multiple times; subsequent calls are no-ops.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			HTTPRequestsTotal,
			HTTPRequestDuration,
			StorageOperationsTotal,
			StorageOperationDuration,
			ObjectsCreatedTotal,
			ObjectsDeletedTotal,
			QuotaRejectionsTotal,
			TokenValidationsTotal,
		)
	})
}

// Status returns the status label for an operation outcome.
func Status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
