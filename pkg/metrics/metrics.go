// Package metrics provides Prometheus metrics for connpool. It tracks pool
// lifecycle operations, factory resolutions, reconfiguration decisions, and
// unpooled test connections.
//
// # Basic Usage
//
//	timer := metrics.NewTimer("create")
//	err := manager.Create(ctx, desc)
//	metrics.ObserveOperation("create", timer.Stop(), err)
//
//	metrics.ReconfigActions.WithLabelValues(action.String()).Inc()
//
// # Metric Types
//
// Counter: Monotonically increasing values (e.g., factories created)
// Gauge: Values that can go up or down (e.g., registered pools)
// Histogram: Distribution of values (e.g., operation latency)
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LifecycleOperations counts lifecycle operations by outcome.
	// Labels: operation (create/delete/recreate/reconfigure/...), status (success/error)
	LifecycleOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "connpool_lifecycle_operations_total",
			Help: "Total number of pool lifecycle operations",
		},
		[]string{"operation", "status"},
	)

	// LifecycleLatency tracks the duration of lifecycle operations in seconds.
	LifecycleLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "connpool_lifecycle_duration_seconds",
			Help: "Duration of pool lifecycle operations in seconds",
			Buckets: []float64{
				0.001, // 1ms - cache hits
				0.01,  // 10ms - local factories
				0.1,   // 100ms - remote handshakes
				0.5,
				1,
				5, // 5s - retried creations
				30,
			},
		},
		[]string{"operation"},
	)

	// FactoryResolutions counts factory resolutions.
	// Labels: result (cached/created/error)
	FactoryResolutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "connpool_factory_resolutions_total",
			Help: "Total number of connection factory resolutions",
		},
		[]string{"result"},
	)

	// ReconfigActions counts reconfiguration decisions by action.
	ReconfigActions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "connpool_reconfig_actions_total",
			Help: "Reconfiguration decisions by resulting action",
		},
		[]string{"action"},
	)

	// RegisteredPools tracks the number of pools with a resolved factory.
	RegisteredPools = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "connpool_registered_pools",
			Help: "Number of pools with a registered connection factory",
		},
	)

	// RollbackFailures counts compensating actions that failed.
	RollbackFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "connpool_rollback_failures_total",
			Help: "Compensating actions that failed after an operation error",
		},
		[]string{"operation"},
	)

	// TestConnections counts unpooled test connections by outcome.
	TestConnections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "connpool_test_connections_total",
			Help: "Unpooled connections created for testing",
		},
		[]string{"status"},
	)

	// PhysicalConnections tracks open physical connections per pool.
	// Labels: pool, state (active/idle)
	PhysicalConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "connpool_physical_connections",
			Help: "Physical connections held by pools",
		},
		[]string{"pool", "state"},
	)

	// PoolHealth reports 1 for healthy, 0.5 for degraded and 0 for unhealthy pools.
	PoolHealth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "connpool_pool_health",
			Help: "Pool health as reported by periodic pings",
		},
		[]string{"pool"},
	)
)

// ObserveOperation records the outcome and duration of a lifecycle operation.
func ObserveOperation(operation string, d time.Duration, err error) {
	LifecycleOperations.WithLabelValues(operation, Status(err)).Inc()
	LifecycleLatency.WithLabelValues(operation).Observe(d.Seconds())
}

// Status maps an error to a status label.
func Status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// Timer provides a simple timing mechanism for measuring operation durations.
type Timer struct {
	start time.Time
	name  string
}

// NewTimer creates a new timer and starts timing immediately.
func NewTimer(name string) *Timer {
	return &Timer{
		start: time.Now(),
		name:  name,
	}
}

// Name returns the name the timer was created with.
func (t *Timer) Name() string {
	return t.name
}

// Stop returns the elapsed duration since creation. It can be called more than once.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}
