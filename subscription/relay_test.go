package subscription

import (
	"context"
	"errors"
	"testing"

	"github.com/azzy787/task-board-mvp/domain"
	"github.com/azzy787/task-board-mvp/storage"
)

type fakeQueue struct {
	msgs    []storage.ChangeMessage
	deleted []string
}

func (q *fakeQueue) Receive(ctx context.Context, n int32) ([]storage.ChangeMessage, error) {
	out := q.msgs
	q.msgs = nil
	return out, nil
}

func (q *fakeQueue) Delete(ctx context.Context, id, receipt string) error {
	q.deleted = append(q.deleted, id)
	return nil
}

type fakeNotifier struct {
	got  []domain.Change
	fail map[domain.ChangeOp]bool
}

func (n *fakeNotifier) Notify(ctx context.Context, c domain.Change) error {
	if n.fail[c.Op] {
		return errors.New("publish failed")
	}
	n.got = append(n.got, c)
	return nil
}

func TestRelayForwardsAndDeletes(t *testing.T) {
	q := &fakeQueue{msgs: []storage.ChangeMessage{
		{ID: "m1", PopReceipt: "r1", Change: domain.Change{Board: "b1", Op: domain.ChangeCreate}},
		{ID: "m2", PopReceipt: "r2", Change: domain.Change{Board: "b1", Op: domain.ChangeMeta}},
	}}
	out := &fakeNotifier{fail: map[domain.ChangeOp]bool{domain.ChangeMeta: true}}
	n, err := NewRelay(q, out).Once(context.Background())
	if err != nil {
		t.Fatalf("once: %v", err)
	}
	if n != 1 || len(out.got) != 1 || out.got[0].Op != domain.ChangeCreate {
		t.Fatalf("expected one forwarded notice, got %d", n)
	}
	if len(q.deleted) != 1 || q.deleted[0] != "m1" {
		t.Fatalf("expected only forwarded message deleted, got %v", q.deleted)
	}
}
