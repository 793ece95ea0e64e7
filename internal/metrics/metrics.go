// Package metrics provides Prometheus metrics for action execution and sandbox sync.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	actionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "artifactsync_actions_total",
			Help: "Total number of actions that reached a terminal status",
		},
		[]string{"kind", "status"},
	)

	sandboxOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "artifactsync_sandbox_operations_total",
			Help: "Total number of sandbox operations by outcome (direct, queued, rejected, abandoned, failed)",
		},
		[]string{"op", "outcome"},
	)

	sandboxPending = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "artifactsync_sandbox_pending_operations",
			Help: "Number of sandbox operations waiting for a driver, per link",
		},
		[]string{"link"},
	)

	reconciledFilesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "artifactsync_reconciled_files_total",
			Help: "Total number of files repaired by reconciliation",
		},
	)
)

// RecordAction records an action reaching a terminal status.
func RecordAction(kind, status string) {
	actionsTotal.WithLabelValues(kind, status).Inc()
}

// RecordSandboxOp records the outcome of a sandbox operation.
func RecordSandboxOp(op, outcome string) {
	sandboxOperationsTotal.WithLabelValues(op, outcome).Inc()
}

// SetSandboxPending sets the pending queue depth of one link.
func SetSandboxPending(link string, n int) {
	sandboxPending.WithLabelValues(link).Set(float64(n))
}

// RecordReconciled adds n repaired files.
func RecordReconciled(n int) {
	reconciledFilesTotal.Add(float64(n))
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
