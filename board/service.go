package board

import (
	"context"
	"errors"
	"time"

	"github.com/azzy787/task-board-mvp/domain"
	log "github.com/sirupsen/logrus"
)

// Service runs board operations against a store.
type Service struct {
	store      Store
	mover      *Mover
	reconciler *Reconciler
	metrics    *Metrics
	now        func() time.Time
}

// NewService wires a board service. fresh is read by reconciliation and
// should bypass caches; when nil, store is used. metrics may be nil.
func NewService(store, fresh Store, metrics *Metrics) *Service {
	if fresh == nil {
		fresh = store
	}
	return &Service{
		store:      store,
		mover:      NewMover(store, metrics),
		reconciler: NewReconciler(fresh, metrics),
		metrics:    metrics,
		now:        time.Now,
	}
}

// Tasks returns all tasks ordered by order key, with view defaults applied.
func (s *Service) Tasks(ctx context.Context) ([]domain.Task, error) {
	recs, err := s.store.ListTasks(ctx)
	if err != nil {
		return nil, domain.Persistence("list", "Failed to load tasks", err)
	}
	domain.SortRecords(recs)
	out := make([]domain.Task, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.Task())
	}
	return out, nil
}

// Create validates the input and stores a new task.
func (s *Service) Create(ctx context.Context, in domain.TaskInput) (domain.Task, error) {
	t, err := domain.NewTask(in, s.now())
	if err != nil {
		return domain.Task{}, err
	}
	rec, err := s.store.CreateTask(ctx, t)
	if err != nil {
		return domain.Task{}, domain.Persistence("create", "Failed to create task", err)
	}
	log.WithField("task", rec.ID).Info("task created")
	return rec.Task(), nil
}

// Update applies a sanitized field level edit.
func (s *Service) Update(ctx context.Context, id string, p domain.TaskPatch) error {
	if id == "" {
		return &domain.ValidationError{Field: "id", Message: "Task id is required"}
	}
	clean, err := domain.EditPatch(p)
	if err != nil {
		return err
	}
	if err := s.store.UpdateTask(ctx, id, clean); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return domain.Persistence("update", "Failed to update task", err)
	}
	return nil
}

// DeleteTasks removes the unique non-empty ids in one batch and returns how
// many were requested.
func (s *Service) DeleteTasks(ctx context.Context, ids []string) (int, error) {
	ids = UniqueIDs(ids)
	if len(ids) == 0 {
		return 0, nil
	}
	if err := s.store.DeleteTasks(ctx, ids); err != nil {
		return 0, domain.Persistence("delete", "Failed to delete tasks", err)
	}
	if s.metrics != nil {
		s.metrics.Deletes.Add(float64(len(ids)))
	}
	log.WithField("count", len(ids)).Info("tasks deleted")
	return len(ids), nil
}

// Move drags a task into status before beforeID on a fresh view of the
// board.
func (s *Service) Move(ctx context.Context, id string, status domain.Status, beforeID string) (domain.Task, error) {
	v, err := s.View(ctx, Filter{})
	if err != nil {
		return domain.Task{}, err
	}
	return s.drop(ctx, v, id, status, func(d *Drag) (domain.Task, error) {
		return d.Drop(ctx, status, beforeID)
	})
}

// MoveAt drags a task into status at pointer y over the given column layout.
func (s *Service) MoveAt(ctx context.Context, id string, status domain.Status, layout []CardBox, y float64) (domain.Task, error) {
	v, err := s.View(ctx, Filter{})
	if err != nil {
		return domain.Task{}, err
	}
	return s.drop(ctx, v, id, status, func(d *Drag) (domain.Task, error) {
		return d.DropAt(ctx, status, layout, y)
	})
}

func (s *Service) drop(ctx context.Context, v *ViewState, id string, status domain.Status, release func(*Drag) (domain.Task, error)) (domain.Task, error) {
	d := NewDrag(v, s.mover)
	if err := d.Start(id); err != nil {
		return domain.Task{}, err
	}
	if err := d.Over(status); err != nil {
		_ = d.Cancel()
		return domain.Task{}, err
	}
	return release(d)
}

// Mover exposes the move committer for callers holding their own view.
func (s *Service) Mover() *Mover { return s.mover }

// invalidator is implemented by stores that keep a read cache.
type invalidator interface {
	Invalidate(ctx context.Context)
}

// Refresh runs reconciliation once. Repairs bypass the read cache, so the
// cache is dropped afterwards, also when the run stopped part way.
func (s *Service) Refresh(ctx context.Context) (Report, error) {
	rep, err := s.reconciler.Run(ctx)
	if c, ok := s.store.(invalidator); ok && rep.Updated > 0 {
		c.Invalidate(context.WithoutCancel(ctx))
	}
	return rep, err
}

// Title returns the board title, defaulting when none is stored.
func (s *Service) Title(ctx context.Context) (string, error) {
	meta, err := s.store.GetMeta(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.DefaultBoardTitle, nil
	}
	if err != nil {
		return "", domain.Persistence("title", "Failed to load board title", err)
	}
	if meta.Title == "" {
		return domain.DefaultBoardTitle, nil
	}
	return meta.Title, nil
}

// SetTitle stores a sanitized board title and returns it.
func (s *Service) SetTitle(ctx context.Context, title string) (string, error) {
	title = domain.SanitizeBoardTitle(title)
	if err := s.store.PutMeta(ctx, domain.BoardMeta{Title: title}); err != nil {
		return "", domain.Persistence("title", "Failed to save board title", err)
	}
	return title, nil
}

// View renders the whole board with the filter applied.
func (s *Service) View(ctx context.Context, f Filter) (*ViewState, error) {
	recs, err := s.store.ListTasks(ctx)
	if err != nil {
		return nil, domain.Persistence("list", "Failed to load tasks", err)
	}
	return s.RenderView(ctx, recs, f), nil
}

// RenderView renders an already fetched snapshot.
func (s *Service) RenderView(ctx context.Context, recs []domain.Record, f Filter) *ViewState {
	v := NewViewState()
	if title, err := s.Title(ctx); err == nil {
		v.Title = title
	} else {
		log.WithError(err).Warn("board title unavailable")
	}
	v.Filter = f
	v.Render(recs)
	return v
}
