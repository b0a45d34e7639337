// Package metrics defines the prometheus instruments exposed by lockd.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// AcquireCounter tracks granted acquires, reentrant ones included.
	AcquireCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lockd_acquire_total",
		Help: "Total number of granted lock acquisitions",
	})
	// ConflictCounter tracks acquires rejected because the key was held.
	ConflictCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lockd_conflict_total",
		Help: "Total number of lock acquisitions rejected as conflicts",
	})
	// HeartbeatCounter tracks heartbeat renewals by outcome.
	HeartbeatCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lockd_heartbeat_total",
		Help: "Total number of heartbeat requests by outcome",
	}, []string{"renewed"})
	// ReleaseCounter tracks release requests by outcome.
	ReleaseCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lockd_release_total",
		Help: "Total number of release requests by outcome",
	}, []string{"released"})
	// StorageErrorCounter tracks operations that failed against the backend.
	StorageErrorCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lockd_storage_errors_total",
		Help: "Total number of operations that failed because the backend was unavailable",
	})
)

// NewRegistry creates a new Prometheus registry.
func NewRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

// RegisterLockMetrics registers the lockd metrics on the provided registry.
func RegisterLockMetrics(reg prometheus.Registerer) {
	reg.MustRegister(AcquireCounter, ConflictCounter, HeartbeatCounter, ReleaseCounter, StorageErrorCounter)
}
