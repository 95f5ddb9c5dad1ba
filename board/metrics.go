package board

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts board operations.
type Metrics struct {
	Moves         prometheus.Counter
	MoveFailures  prometheus.Counter
	Deletes       prometheus.Counter
	Reconciled    *prometheus.CounterVec
	ReconcileRuns *prometheus.CounterVec
}

// NewMetrics registers the board counters with reg. A nil reg yields
// unregistered counters.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Moves: factory.NewCounter(prometheus.CounterOpts{
			Name: "board_moves_total",
			Help: "Total number of committed task moves",
		}),
		MoveFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "board_move_failures_total",
			Help: "Total number of task moves rolled back after a failed write",
		}),
		Deletes: factory.NewCounter(prometheus.CounterOpts{
			Name: "board_tasks_deleted_total",
			Help: "Total number of tasks deleted",
		}),
		Reconciled: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "board_reconciled_tasks_total",
			Help: "Tasks inspected by reconciliation by outcome",
		}, []string{"outcome"}), // updated or unchanged
		ReconcileRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "board_reconcile_runs_total",
			Help: "Reconciliation runs by result",
		}, []string{"result"}),
	}
}
