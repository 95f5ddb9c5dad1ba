package subscription

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/azzy787/task-board-mvp/domain"
)

// RedisSource listens for change notices on a Redis pub/sub channel and
// resubscribes when the channel closes.
type RedisSource struct {
	client  *redis.Client
	channel string
	board   string
	retry   time.Duration
}

// NewRedisSource listens on channel for notices about board. An empty board
// accepts every notice.
func NewRedisSource(client *redis.Client, channel, board string) *RedisSource {
	return &RedisSource{client: client, channel: channel, board: board, retry: time.Second}
}

func (r *RedisSource) Changes(ctx context.Context) (<-chan domain.Change, error) {
	sub := r.client.Subscribe(ctx, r.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}
	out := make(chan domain.Change, 16)
	go func() {
		defer close(out)
		for {
			r.forward(ctx, sub, out)
			_ = sub.Close()
			if ctx.Err() != nil {
				return
			}
			log.WithField("channel", r.channel).Error("pubsub channel closed, reconnecting")
			select {
			case <-ctx.Done():
				return
			case <-time.After(r.retry):
			}
			sub = r.client.Subscribe(ctx, r.channel)
		}
	}()
	return out, nil
}

func (r *RedisSource) forward(ctx context.Context, sub *redis.PubSub, out chan<- domain.Change) {
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var c domain.Change
			if err := sonic.UnmarshalString(msg.Payload, &c); err != nil {
				log.WithError(err).Error("unable to parse change notice")
				continue
			}
			if r.board != "" && c.Board != r.board {
				continue
			}
			select {
			case out <- c:
			case <-ctx.Done():
				return
			}
		}
	}
}

// RedisPublisher publishes change notices to a Redis channel.
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

func NewRedisPublisher(client *redis.Client, channel string) *RedisPublisher {
	return &RedisPublisher{client: client, channel: channel}
}

func (p *RedisPublisher) Notify(ctx context.Context, c domain.Change) error {
	data, err := sonic.Marshal(c)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, p.channel, data).Err()
}
