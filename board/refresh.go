package board

import (
	"context"
	"time"

	"github.com/azzy787/task-board-mvp/domain"
	log "github.com/sirupsen/logrus"
)

// RefreshFailedMessage is shown when reconciliation could not finish.
const RefreshFailedMessage = "Failed to refresh"

// Report counts the outcome of a reconciliation run.
type Report struct {
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
}

// Reconciler repairs stored tasks so every record renders with consistent
// fields. It never creates or deletes tasks.
type Reconciler struct {
	store   Store
	metrics *Metrics
	now     func() time.Time
}

// NewReconciler builds a reconciler. store should bypass any read cache.
func NewReconciler(store Store, metrics *Metrics) *Reconciler {
	return &Reconciler{store: store, metrics: metrics, now: time.Now}
}

// Run patches every inconsistent task. The first failed write aborts the run
// and the counts so far are returned with the error.
func (r *Reconciler) Run(ctx context.Context) (Report, error) {
	var rep Report
	recs, err := r.store.ListTasks(ctx)
	if err != nil {
		r.observe(rep, "error")
		return rep, domain.Persistence("refresh", RefreshFailedMessage, err)
	}
	now := r.now()
	for _, rec := range recs {
		if err := ctx.Err(); err != nil {
			r.observe(rep, "canceled")
			return rep, err
		}
		patch := domain.NormalizePatch(rec, now)
		if patch.Empty() {
			rep.Unchanged++
			continue
		}
		if err := r.store.UpdateTask(ctx, rec.ID, patch); err != nil {
			log.WithField("task", rec.ID).WithError(err).Error("reconcile write failed")
			r.observe(rep, "error")
			return rep, domain.Persistence("refresh", RefreshFailedMessage, err)
		}
		rep.Updated++
	}
	r.observe(rep, "ok")
	log.WithFields(log.Fields{"updated": rep.Updated, "unchanged": rep.Unchanged}).Info("reconciliation finished")
	return rep, nil
}

func (r *Reconciler) observe(rep Report, result string) {
	if r.metrics == nil {
		return
	}
	r.metrics.Reconciled.WithLabelValues("updated").Add(float64(rep.Updated))
	r.metrics.Reconciled.WithLabelValues("unchanged").Add(float64(rep.Unchanged))
	r.metrics.ReconcileRuns.WithLabelValues(result).Inc()
}
