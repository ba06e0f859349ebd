package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// modulesRegistered counts units whose routes were bound
	modulesRegistered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "addonhost_modules_registered_total",
			Help: "Total addon units registered at startup or by enable-module",
		},
	)

	// moduleFailures counts units skipped by error type
	moduleFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "addonhost_module_failures_total",
			Help: "Total addon units skipped by failure type",
		},
		[]string{"type"},
	)

	// lifecycleOps counts runtime lifecycle operations
	lifecycleOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "addonhost_lifecycle_operations_total",
			Help: "Total lifecycle operations by operation and result",
		},
		[]string{"operation", "result"},
	)
)

func recordLifecycle(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	lifecycleOps.WithLabelValues(op, result).Inc()
}
