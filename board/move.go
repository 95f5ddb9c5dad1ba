package board

import (
	"context"
	"time"

	"github.com/azzy787/task-board-mvp/domain"
	log "github.com/sirupsen/logrus"
)

// MoveFailedMessage is shown when a move could not be persisted.
const MoveFailedMessage = "Failed to move task, try again."

// Mover commits card moves: it splices the card into place, derives an order
// key from its new neighbours, persists status and order and rolls the splice
// back when the write fails.
type Mover struct {
	store   Store
	metrics *Metrics
	now     func() time.Time
}

// NewMover builds a mover. metrics may be nil.
func NewMover(store Store, metrics *Metrics) *Mover {
	return &Mover{store: store, metrics: metrics, now: time.Now}
}

// Move places task id into the status column before beforeID and persists
// the result. An empty or unknown beforeID appends to the column. Concurrent
// moves of the same card are not serialised; the last write wins.
func (m *Mover) Move(ctx context.Context, v *ViewState, id string, status domain.Status, beforeID string) (domain.Task, error) {
	if !status.Valid() {
		return domain.Task{}, &domain.ValidationError{Field: "status", Message: "Unknown status " + string(status)}
	}
	from, fromIdx := v.find(id)
	if from == nil {
		return domain.Task{}, domain.ErrNotFound
	}
	to := v.Column(status)

	card := from.remove(fromIdx)
	at := len(to.Cards)
	if beforeID != "" && beforeID != id {
		if i := to.index(beforeID); i >= 0 {
			at = i
		}
	}
	to.insert(at, card)

	var prev, next *float64
	if at > 0 {
		o := to.Cards[at-1].Order
		prev = &o
	}
	if at+1 < len(to.Cards) {
		o := to.Cards[at+1].Order
		next = &o
	}
	order := domain.ComputeOrder(prev, next, m.now())

	err := m.store.UpdateTask(ctx, id, domain.TaskPatch{Status: &status, Order: &order})
	if err != nil {
		to.remove(to.index(id))
		from.insert(fromIdx, card)
		v.ApplyFilter()
		if m.metrics != nil {
			m.metrics.MoveFailures.Inc()
		}
		log.WithFields(log.Fields{"task": id, "status": status}).WithError(err).Warn("move rolled back")
		return domain.Task{}, &domain.PersistenceError{Op: "move", Message: MoveFailedMessage, Err: err}
	}

	card.Status = status
	card.Order = order
	card.HasOrder = true
	v.syncTask(card)
	v.ApplyFilter()
	if m.metrics != nil {
		m.metrics.Moves.Inc()
	}
	log.WithFields(log.Fields{"task": id, "status": status, "order": order}).Debug("task moved")
	return card.Task, nil
}
