// Package metrics exposes Prometheus collectors for mount operations and
// registry drift.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the mount manager's collectors.
//
// All methods are safe on a nil receiver, so callers pass nil when
// metrics are disabled.
type Metrics struct {
	// OperationsTotal counts mount/unmount/list calls by result.
	// result is "success" or an error kind.
	OperationsTotal *prometheus.CounterVec

	// OperationDuration tracks how long each operation blocked.
	OperationDuration *prometheus.HistogramVec

	// MountsActive is the number of records in the mounted state.
	MountsActive prometheus.Gauge

	// DriftTotal counts reconciler findings (stale, resynced, evicted, unmanaged).
	DriftTotal *prometheus.CounterVec

	// ReconcileErrors counts failed reads of the OS mount table.
	ReconcileErrors prometheus.Counter
}

// New creates the collectors and registers them with reg when reg is not nil.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		OperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sambamount_operations_total",
				Help: "Mount manager operations by operation and result",
			},
			[]string{"operation", "result"},
		),
		OperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sambamount_operation_duration_seconds",
				Help:    "Mount manager operation duration in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"operation"},
		),
		MountsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "sambamount_mounts_active",
				Help: "Registry records currently in the mounted state",
			},
		),
		DriftTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sambamount_drift_total",
				Help: "Reconciler findings by kind",
			},
			[]string{"kind"},
		),
		ReconcileErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "sambamount_reconcile_errors_total",
				Help: "Failed reads of the OS mount table",
			},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.OperationsTotal,
			m.OperationDuration,
			m.MountsActive,
			m.DriftTotal,
			m.ReconcileErrors,
		)
	}

	return m
}

// RecordOperation records the outcome of one operation.
// result is "success" or the error kind.
func (m *Metrics) RecordOperation(operation, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.OperationsTotal.WithLabelValues(operation, result).Inc()
	m.OperationDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// SetActive sets the mounted-record gauge.
func (m *Metrics) SetActive(n int) {
	if m == nil {
		return
	}
	m.MountsActive.Set(float64(n))
}

// RecordDrift adds n findings of the given kind.
func (m *Metrics) RecordDrift(kind string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.DriftTotal.WithLabelValues(kind).Add(float64(n))
}

// RecordReconcileError counts a failed table read.
func (m *Metrics) RecordReconcileError() {
	if m == nil {
		return
	}
	m.ReconcileErrors.Inc()
}
