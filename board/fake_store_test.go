package board

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/azzy787/task-board-mvp/domain"
)

type fakeStore struct {
	recs     []domain.Record
	meta     *domain.BoardMeta
	updates  []string
	deletes  [][]string
	failOn   map[string]error
	failList error
	failDel  error
	nextID   int
}

func newFakeStore(recs ...domain.Record) *fakeStore {
	return &fakeStore{recs: recs, failOn: map[string]error{}}
}

func rec(id string, fields map[string]any) domain.Record {
	return domain.Record{ID: id, Fields: fields}
}

func (f *fakeStore) ListTasks(ctx context.Context) ([]domain.Record, error) {
	if f.failList != nil {
		return nil, f.failList
	}
	out := make([]domain.Record, len(f.recs))
	copy(out, f.recs)
	return out, nil
}

func (f *fakeStore) CreateTask(ctx context.Context, t domain.Task) (domain.Record, error) {
	f.nextID++
	t.ID = fmt.Sprintf("new-%d", f.nextID)
	r := domain.RecordFromTask(t, time.UnixMilli(0))
	f.recs = append(f.recs, r)
	return r, nil
}

func (f *fakeStore) UpdateTask(ctx context.Context, id string, p domain.TaskPatch) error {
	f.updates = append(f.updates, id)
	if err, ok := f.failOn[id]; ok {
		return err
	}
	for i := range f.recs {
		if f.recs[i].ID == id {
			for k, v := range domain.PatchFields(p, time.UnixMilli(0)) {
				f.recs[i].Fields[k] = v
			}
			return nil
		}
	}
	return domain.ErrNotFound
}

func (f *fakeStore) DeleteTasks(ctx context.Context, ids []string) error {
	f.deletes = append(f.deletes, ids)
	if f.failDel != nil {
		return f.failDel
	}
	drop := map[string]bool{}
	for _, id := range ids {
		drop[id] = true
	}
	kept := f.recs[:0]
	for _, r := range f.recs {
		if !drop[r.ID] {
			kept = append(kept, r)
		}
	}
	f.recs = kept
	return nil
}

func (f *fakeStore) GetMeta(ctx context.Context) (domain.BoardMeta, error) {
	if f.meta == nil {
		return domain.BoardMeta{}, domain.ErrNotFound
	}
	return *f.meta, nil
}

func (f *fakeStore) PutMeta(ctx context.Context, meta domain.BoardMeta) error {
	f.meta = &meta
	return nil
}

func (f *fakeStore) field(id, name string) any {
	for _, r := range f.recs {
		if r.ID == id {
			return r.Fields[name]
		}
	}
	return nil
}

var errBackend = errors.New("backend unavailable")
