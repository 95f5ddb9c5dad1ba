package storage

import (
	"context"
	"math"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"github.com/azzy787/task-board-mvp/domain"
)

type backend interface {
	ListTasks(ctx context.Context) ([]domain.Record, error)
	CreateTask(ctx context.Context, t domain.Task) (domain.Record, error)
	UpdateTask(ctx context.Context, id string, p domain.TaskPatch) error
	DeleteTasks(ctx context.Context, ids []string) error
	GetMeta(ctx context.Context) (domain.BoardMeta, error)
	PutMeta(ctx context.Context, meta domain.BoardMeta) error
}

// Cache wraps a board store with Redis-backed caching for reads. Redis
// failures fall back to the backing store without failing the call.
type Cache struct {
	base  backend
	board string
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching wrapper using the provided Redis client and TTL.
func NewCache(base backend, board string, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{base: base, board: board, redis: client, ttl: ttl}
}

func (c *Cache) ListTasks(ctx context.Context) ([]domain.Record, error) {
	if recs, ok := c.loadTasks(ctx); ok {
		return recs, nil
	}
	recs, err := c.base.ListTasks(ctx)
	if err != nil {
		return nil, err
	}
	c.storeTasks(ctx, recs)
	return recs, nil
}

func (c *Cache) CreateTask(ctx context.Context, t domain.Task) (domain.Record, error) {
	rec, err := c.base.CreateTask(ctx, t)
	if err != nil {
		return domain.Record{}, err
	}
	c.Invalidate(ctx)
	return rec, nil
}

func (c *Cache) UpdateTask(ctx context.Context, id string, p domain.TaskPatch) error {
	if err := c.base.UpdateTask(ctx, id, p); err != nil {
		return err
	}
	c.Invalidate(ctx)
	return nil
}

func (c *Cache) DeleteTasks(ctx context.Context, ids []string) error {
	if err := c.base.DeleteTasks(ctx, ids); err != nil {
		return err
	}
	c.Invalidate(ctx)
	return nil
}

func (c *Cache) GetMeta(ctx context.Context) (domain.BoardMeta, error) {
	if c.redis != nil {
		data, err := c.redis.Get(ctx, metaCacheKey(c.board)).Bytes()
		if err == nil {
			var meta domain.BoardMeta
			if err := sonic.Unmarshal(data, &meta); err == nil {
				return meta, nil
			}
		}
		if err != nil && err != redis.Nil {
			_ = c.redis.Del(ctx, metaCacheKey(c.board)).Err()
		}
	}
	meta, err := c.base.GetMeta(ctx)
	if err != nil {
		return domain.BoardMeta{}, err
	}
	if c.redis != nil && c.ttl > 0 {
		if data, err := sonic.Marshal(meta); err == nil {
			_ = c.redis.Set(ctx, metaCacheKey(c.board), data, c.ttl).Err()
		}
	}
	return meta, nil
}

func (c *Cache) PutMeta(ctx context.Context, meta domain.BoardMeta) error {
	if err := c.base.PutMeta(ctx, meta); err != nil {
		return err
	}
	c.Invalidate(ctx)
	return nil
}

// Invalidate drops the cached snapshot of the board. Writes made by other
// instances reach it through change notices.
func (c *Cache) Invalidate(ctx context.Context) {
	if c.redis == nil {
		return
	}
	_, _ = c.redis.Del(ctx, tasksCacheKey(c.board), metaCacheKey(c.board)).Result()
}

type cachedRecord struct {
	ID     string         `json:"id"`
	Fields map[string]any `json:"fields"`
}

func (c *Cache) loadTasks(ctx context.Context) ([]domain.Record, bool) {
	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, tasksCacheKey(c.board)).Bytes()
	if err != nil {
		if err != redis.Nil {
			_ = c.redis.Del(ctx, tasksCacheKey(c.board)).Err()
		}
		return nil, false
	}
	var cached []cachedRecord
	if err := sonic.Unmarshal(data, &cached); err != nil {
		_ = c.redis.Del(ctx, tasksCacheKey(c.board)).Err()
		return nil, false
	}
	recs := make([]domain.Record, 0, len(cached))
	for _, cr := range cached {
		fields := make(map[string]any, len(cr.Fields))
		for k, v := range cr.Fields {
			fields[k] = thawValue(v)
		}
		recs = append(recs, domain.Record{ID: cr.ID, Fields: fields})
	}
	return recs, true
}

func (c *Cache) storeTasks(ctx context.Context, recs []domain.Record) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	cached := make([]cachedRecord, 0, len(recs))
	for _, r := range recs {
		fields := make(map[string]any, len(r.Fields))
		for k, v := range r.Fields {
			fields[k] = freezeValue(v)
		}
		cached = append(cached, cachedRecord{ID: r.ID, Fields: fields})
	}
	data, err := sonic.Marshal(cached)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, tasksCacheKey(c.board), data, c.ttl).Err()
}

// freezeValue marks values JSON cannot carry as-is so thawValue can restore
// them.
func freezeValue(v any) any {
	switch x := v.(type) {
	case time.Time:
		return map[string]any{"$date": x.UTC().Format(time.RFC3339Nano)}
	case float64:
		if !domain.IsFinite(x) {
			return map[string]any{"$num": strconv.FormatFloat(x, 'g', -1, 64)}
		}
	case float32:
		if !domain.IsFinite(float64(x)) {
			return map[string]any{"$num": strconv.FormatFloat(float64(x), 'g', -1, 64)}
		}
	}
	return v
}

func thawValue(v any) any {
	m, ok := v.(map[string]any)
	if !ok || len(m) != 1 {
		return v
	}
	if s, ok := m["$date"].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t
		}
	}
	if s, ok := m["$num"].(string); ok {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
		return math.NaN()
	}
	return v
}

func tasksCacheKey(board string) string {
	return "tasks:" + board
}

func metaCacheKey(board string) string {
	return "meta:" + board
}
