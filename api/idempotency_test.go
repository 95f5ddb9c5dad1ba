package api

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newDeduper(t *testing.T) (*RedisDeduper, *miniredis.Miniredis) {
	t.Helper()
	m, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(m.Close)
	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() {
		if cerr := client.Close(); cerr != nil {
			t.Logf("redis close: %v", cerr)
		}
	})
	return NewRedisDeduper(client, time.Minute), m
}

func TestRedisDeduperLifecycle(t *testing.T) {
	d, m := newDeduper(t)
	ctx := context.Background()

	ok, err := d.Claim(ctx, "user", "k1")
	if err != nil || !ok {
		t.Fatalf("first claim: %v %v", ok, err)
	}
	if ok, _ := d.Claim(ctx, "user", "k1"); ok {
		t.Fatalf("expected duplicate claim to fail")
	}
	if _, done, err := d.Lookup(ctx, "user", "k1"); err != nil || done {
		t.Fatalf("expected pending key, done=%v err=%v", done, err)
	}

	if err := d.Complete(ctx, "user", "k1", []byte(`{"id":"t1"}`)); err != nil {
		t.Fatalf("complete: %v", err)
	}
	body, done, err := d.Lookup(ctx, "user", "k1")
	if err != nil || !done || string(body) != `{"id":"t1"}` {
		t.Fatalf("unexpected lookup %q %v %v", body, done, err)
	}
	if ttl := m.TTL("idem:user:k1"); ttl <= 0 {
		t.Fatalf("expected ttl kept, got %v", ttl)
	}
}

func TestRedisDeduperScopesAndRelease(t *testing.T) {
	d, _ := newDeduper(t)
	ctx := context.Background()

	if ok, _ := d.Claim(ctx, "a", "k"); !ok {
		t.Fatalf("claim a")
	}
	if ok, _ := d.Claim(ctx, "b", "k"); !ok {
		t.Fatalf("keys must be scoped per user")
	}
	if err := d.Release(ctx, "a", "k"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if ok, _ := d.Claim(ctx, "a", "k"); !ok {
		t.Fatalf("expected released key to be claimable")
	}
	if _, done, err := d.Lookup(ctx, "missing", "k"); done || err != nil {
		t.Fatalf("missing key should not be done: %v %v", done, err)
	}
}
