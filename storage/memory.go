package storage

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/azzy787/task-board-mvp/domain"
)

// Memory is an in-process board store for local runs and tests. It notifies
// its own change listeners after every write.
type Memory struct {
	board string
	now   func() time.Time

	mu     sync.RWMutex
	tasks  map[string]map[string]any
	order  []string
	meta   *domain.BoardMeta
	subs   map[chan domain.Change]struct{}
	notify Notifier
}

// NewMemory returns an empty board. notify may be nil.
func NewMemory(board string, notify Notifier) *Memory {
	return &Memory{
		board:  board,
		now:    time.Now,
		tasks:  map[string]map[string]any{},
		subs:   map[chan domain.Change]struct{}{},
		notify: notify,
	}
}

// Seed stores raw records as they are, without sanitising.
func (m *Memory) Seed(recs ...domain.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range recs {
		if _, ok := m.tasks[r.ID]; !ok {
			m.order = append(m.order, r.ID)
		}
		m.tasks[r.ID] = copyFields(r.Fields)
	}
}

func (m *Memory) ListTasks(ctx context.Context) ([]domain.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Record, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, domain.Record{ID: id, Fields: copyFields(m.tasks[id])})
	}
	return out, nil
}

func (m *Memory) CreateTask(ctx context.Context, t domain.Task) (domain.Record, error) {
	t.ID = uuid.NewString()
	rec := domain.RecordFromTask(t, m.now().UTC())
	m.mu.Lock()
	m.tasks[rec.ID] = copyFields(rec.Fields)
	m.order = append(m.order, rec.ID)
	m.mu.Unlock()
	m.publish(ctx, domain.ChangeCreate, rec.ID)
	return rec, nil
}

func (m *Memory) UpdateTask(ctx context.Context, id string, p domain.TaskPatch) error {
	m.mu.Lock()
	cur, ok := m.tasks[id]
	if !ok {
		m.mu.Unlock()
		return domain.ErrNotFound
	}
	for k, v := range domain.PatchFields(p, m.now().UTC()) {
		cur[k] = v
	}
	if p.ClearDueDate {
		delete(cur, domain.FieldLegacyDue)
	}
	m.mu.Unlock()
	m.publish(ctx, domain.ChangeUpdate, id)
	return nil
}

func (m *Memory) DeleteTasks(ctx context.Context, ids []string) error {
	m.mu.Lock()
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
		delete(m.tasks, id)
	}
	kept := m.order[:0]
	for _, id := range m.order {
		if !drop[id] {
			kept = append(kept, id)
		}
	}
	m.order = kept
	m.mu.Unlock()
	m.publish(ctx, domain.ChangeDelete, ids...)
	return nil
}

func (m *Memory) GetMeta(ctx context.Context) (domain.BoardMeta, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.meta == nil {
		return domain.BoardMeta{}, domain.ErrNotFound
	}
	return *m.meta, nil
}

func (m *Memory) PutMeta(ctx context.Context, meta domain.BoardMeta) error {
	m.mu.Lock()
	m.meta = &meta
	m.mu.Unlock()
	m.publish(ctx, domain.ChangeMeta)
	return nil
}

// Changes streams change notices until ctx is done.
func (m *Memory) Changes(ctx context.Context) (<-chan domain.Change, error) {
	ch := make(chan domain.Change, 16)
	m.mu.Lock()
	m.subs[ch] = struct{}{}
	m.mu.Unlock()
	go func() {
		<-ctx.Done()
		m.mu.Lock()
		delete(m.subs, ch)
		close(ch)
		m.mu.Unlock()
	}()
	return ch, nil
}

func (m *Memory) publish(ctx context.Context, op domain.ChangeOp, ids ...string) {
	c := domain.Change{Board: m.board, Op: op, IDs: ids, At: m.now().UTC()}
	m.mu.RLock()
	for ch := range m.subs {
		select {
		case ch <- c:
		default:
		}
	}
	m.mu.RUnlock()
	if m.notify != nil {
		if err := m.notify.Notify(ctx, c); err != nil {
			log.WithFields(log.Fields{"board": m.board, "op": op}).WithError(err).Warn("change notification failed")
		}
	}
}

func copyFields(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
