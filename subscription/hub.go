package subscription

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/azzy787/task-board-mvp/domain"
)

// Source yields change signals until ctx is done.
type Source interface {
	Changes(ctx context.Context) (<-chan domain.Change, error)
}

// Fetcher reads the full task collection.
type Fetcher interface {
	ListTasks(ctx context.Context) ([]domain.Record, error)
}

// Snapshot is the full collection as of one change. Err is set when the
// fetch failed; Records is then empty.
type Snapshot struct {
	Records []domain.Record
	Err     error
	At      time.Time
}

// Hub turns change signals into full snapshots and fans them out to
// subscribers. Slow subscribers only ever see the latest snapshot.
type Hub struct {
	fetch  Fetcher
	source Source

	mu   sync.Mutex
	subs map[*Subscription]struct{}
	last *Snapshot
}

// NewHub builds a hub. Run must be called for changes to reach subscribers.
func NewHub(fetch Fetcher, source Source) *Hub {
	return &Hub{fetch: fetch, source: source, subs: map[*Subscription]struct{}{}}
}

// Run consumes the change source until ctx is done.
func (h *Hub) Run(ctx context.Context) error {
	changes, err := h.source.Changes(ctx)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case c, ok := <-changes:
			if !ok {
				return nil
			}
			log.WithFields(log.Fields{"board": c.Board, "op": c.Op}).Debug("change received")
			h.Refresh(ctx)
		}
	}
}

// Refresh fetches a snapshot and delivers it to every subscriber.
func (h *Hub) Refresh(ctx context.Context) {
	snap := h.load(ctx)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.remember(snap)
	for s := range h.subs {
		s.offer(snap)
	}
}

func (h *Hub) load(ctx context.Context) Snapshot {
	recs, err := h.fetch.ListTasks(ctx)
	if err != nil {
		log.WithError(err).Error("snapshot fetch failed")
		return Snapshot{Err: err, At: time.Now()}
	}
	domain.SortRecords(recs)
	return Snapshot{Records: recs, At: time.Now()}
}

// Subscribe registers a subscriber. The current snapshot is delivered
// immediately. The subscription ends when ctx is done or Cancel is called.
func (h *Hub) Subscribe(ctx context.Context) *Subscription {
	s := &Subscription{ch: make(chan Snapshot, 1), hub: h, done: make(chan struct{})}
	s.C = s.ch

	h.mu.Lock()
	first := h.last
	h.subs[s] = struct{}{}
	h.mu.Unlock()

	if first == nil {
		snap := h.load(ctx)
		first = &snap
	}
	h.mu.Lock()
	if h.last != nil {
		first = h.last
	} else {
		h.remember(*first)
	}
	if _, ok := h.subs[s]; ok {
		s.offer(*first)
	}
	h.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			s.Cancel()
		case <-s.done:
		}
	}()
	return s
}

// remember keeps snap for later subscribers. Failed loads are not kept so
// the next subscriber fetches again. Callers hold h.mu.
func (h *Hub) remember(snap Snapshot) {
	if snap.Err != nil {
		h.last = nil
		return
	}
	h.last = &snap
}

// Len returns the number of active subscribers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Subscription is a live query handle. C yields full snapshots and is
// closed on Cancel.
type Subscription struct {
	C <-chan Snapshot

	ch   chan Snapshot
	hub  *Hub
	once sync.Once
	done chan struct{}
}

// offer replaces any undelivered snapshot with snap. Callers hold hub.mu.
func (s *Subscription) offer(snap Snapshot) {
	select {
	case <-s.ch:
	default:
	}
	s.ch <- snap
}

// Cancel stops delivery and closes C. It is safe to call more than once.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		delete(s.hub.subs, s)
		close(s.ch)
		s.hub.mu.Unlock()
		close(s.done)
	})
}
