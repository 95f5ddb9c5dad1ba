package api

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// HeaderIdempotencyKey lets clients retry a create without duplicating it.
const HeaderIdempotencyKey = "Idempotency-Key"

const idempotencyPending = "pending"

// Idempotency records the outcome of keyed requests.
type Idempotency interface {
	// Claim reserves the key. It returns false when the key was seen before.
	Claim(ctx context.Context, scope, key string) (bool, error)
	// Complete stores the response body of a claimed key.
	Complete(ctx context.Context, scope, key string, body []byte) error
	// Lookup returns the stored body; done is false while the first request
	// is still running.
	Lookup(ctx context.Context, scope, key string) (body []byte, done bool, err error)
	// Release forgets a claimed key so the request may be retried.
	Release(ctx context.Context, scope, key string) error
}

// RedisDeduper keeps idempotency keys in Redis so every instance sees them.
type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisDeduper(client *redis.Client, ttl time.Duration) *RedisDeduper {
	return &RedisDeduper{client: client, ttl: ttl}
}

func (r *RedisDeduper) key(scope, key string) string {
	return "idem:" + scope + ":" + key
}

func (r *RedisDeduper) Claim(ctx context.Context, scope, key string) (bool, error) {
	return r.client.SetNX(ctx, r.key(scope, key), idempotencyPending, r.ttl).Result()
}

func (r *RedisDeduper) Complete(ctx context.Context, scope, key string, body []byte) error {
	return r.client.SetArgs(ctx, r.key(scope, key), body, redis.SetArgs{KeepTTL: true, Mode: "XX"}).Err()
}

func (r *RedisDeduper) Lookup(ctx context.Context, scope, key string) ([]byte, bool, error) {
	val, err := r.client.Get(ctx, r.key(scope, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if string(val) == idempotencyPending {
		return nil, false, nil
	}
	return val, true, nil
}

func (r *RedisDeduper) Release(ctx context.Context, scope, key string) error {
	return r.client.Del(ctx, r.key(scope, key)).Err()
}
