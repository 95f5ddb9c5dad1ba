package subscription

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/azzy787/task-board-mvp/domain"
)

func TestRedisPublisherToSource(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	src := NewRedisSource(client, "board-updates", "b1")
	changes, err := src.Changes(ctx)
	if err != nil {
		t.Fatalf("changes: %v", err)
	}

	pub := NewRedisPublisher(client, "board-updates")
	if err := pub.Notify(ctx, domain.Change{Board: "other", Op: domain.ChangeCreate}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := pub.Notify(ctx, domain.Change{Board: "b1", Op: domain.ChangeDelete, IDs: []string{"t1"}}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := client.Publish(ctx, "board-updates", "not json").Err(); err != nil {
		t.Fatalf("publish junk: %v", err)
	}

	select {
	case c := <-changes:
		if c.Board != "b1" || c.Op != domain.ChangeDelete || len(c.IDs) != 1 {
			t.Fatalf("unexpected change %+v", c)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for change")
	}

	cancel()
	select {
	case _, ok := <-changes:
		if ok {
			t.Fatalf("expected no further changes")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("source did not stop")
	}
}
