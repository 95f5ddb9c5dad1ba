package subscription

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/azzy787/task-board-mvp/domain"
	"github.com/azzy787/task-board-mvp/storage"
)

// Queue is the durable side of the relay.
type Queue interface {
	Receive(ctx context.Context, n int32) ([]storage.ChangeMessage, error)
	Delete(ctx context.Context, id, receipt string) error
}

// Notifier forwards a change notice.
type Notifier interface {
	Notify(ctx context.Context, c domain.Change) error
}

// Relay moves change notices from the queue to a notifier, usually a
// RedisPublisher. A message is deleted only after it was forwarded, so a
// failed publish is retried once the message becomes visible again.
type Relay struct {
	queue Queue
	out   Notifier
	batch int32
	idle  time.Duration
}

func NewRelay(queue Queue, out Notifier) *Relay {
	return &Relay{queue: queue, out: out, batch: 32, idle: time.Second}
}

// Run relays until ctx is done.
func (r *Relay) Run(ctx context.Context) {
	for ctx.Err() == nil {
		n, err := r.Once(ctx)
		if err != nil {
			log.WithError(err).Warn("relay receive failed")
		}
		if n == 0 || err != nil {
			select {
			case <-ctx.Done():
			case <-time.After(r.idle):
			}
		}
	}
}

// Once relays a single batch and returns how many notices were forwarded.
func (r *Relay) Once(ctx context.Context) (int, error) {
	msgs, err := r.queue.Receive(ctx, r.batch)
	if err != nil {
		return 0, err
	}
	forwarded := 0
	for _, m := range msgs {
		if err := r.out.Notify(ctx, m.Change); err != nil {
			log.WithField("message", m.ID).WithError(err).Warn("relay publish failed")
			continue
		}
		if err := r.queue.Delete(ctx, m.ID, m.PopReceipt); err != nil {
			log.WithField("message", m.ID).WithError(err).Warn("relay delete failed")
		}
		forwarded++
	}
	return forwarded, nil
}
