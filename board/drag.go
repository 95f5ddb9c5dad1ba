package board

import (
	"context"
	"errors"

	"github.com/azzy787/task-board-mvp/domain"
)

// ErrDragState is returned for a drag event that does not fit the current
// phase.
var ErrDragState = errors.New("invalid drag transition")

// DragPhase is the state of a drag interaction.
type DragPhase int

const (
	DragIdle DragPhase = iota
	DragDragging
)

func (p DragPhase) String() string {
	if p == DragDragging {
		return "dragging"
	}
	return "idle"
}

// CardBox is the on-screen geometry of a card in the target column.
type CardBox struct {
	ID       string  `json:"id"`
	Top      float64 `json:"top"`
	Height   float64 `json:"height"`
	Dragging bool    `json:"dragging,omitempty"`
}

// InsertBefore returns the id of the first non-dragging card whose vertical
// midpoint lies below pointer y, or "" to append.
func InsertBefore(layout []CardBox, y float64) string {
	for _, b := range layout {
		if b.Dragging {
			continue
		}
		if y < b.Top+b.Height/2 {
			return b.ID
		}
	}
	return ""
}

// Drag drives one drag interaction: Start, any number of Over, then Drop or
// Cancel. Both terminal events return the drag to idle.
type Drag struct {
	view  *ViewState
	mover *Mover

	phase  DragPhase
	taskID string
	over   domain.Status
}

// NewDrag returns an idle drag bound to a view.
func NewDrag(view *ViewState, mover *Mover) *Drag {
	return &Drag{view: view, mover: mover}
}

func (d *Drag) Phase() DragPhase      { return d.phase }
func (d *Drag) TaskID() string        { return d.taskID }
func (d *Drag) Target() domain.Status { return d.over }

// Start picks up a card.
func (d *Drag) Start(taskID string) error {
	if d.phase != DragIdle {
		return ErrDragState
	}
	if d.view.Card(taskID) == nil {
		return domain.ErrNotFound
	}
	d.phase = DragDragging
	d.taskID = taskID
	d.over = ""
	return nil
}

// Over marks the column under the pointer.
func (d *Drag) Over(status domain.Status) error {
	if d.phase != DragDragging {
		return ErrDragState
	}
	if !status.Valid() {
		return &domain.ValidationError{Field: "status", Message: "Unknown status " + string(status)}
	}
	d.over = status
	return nil
}

// Drop releases the card into status before beforeID. An empty status drops
// into the hovered column.
func (d *Drag) Drop(ctx context.Context, status domain.Status, beforeID string) (domain.Task, error) {
	if d.phase != DragDragging {
		return domain.Task{}, ErrDragState
	}
	if status == "" {
		status = d.over
	}
	id := d.taskID
	d.reset()
	return d.mover.Move(ctx, d.view, id, status, beforeID)
}

// DropAt resolves the insertion point from the target column layout.
func (d *Drag) DropAt(ctx context.Context, status domain.Status, layout []CardBox, y float64) (domain.Task, error) {
	return d.Drop(ctx, status, InsertBefore(layout, y))
}

// Cancel abandons the drag without changes.
func (d *Drag) Cancel() error {
	if d.phase != DragDragging {
		return ErrDragState
	}
	d.reset()
	return nil
}

func (d *Drag) reset() {
	d.phase = DragIdle
	d.taskID = ""
	d.over = ""
}
