package notify

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Publisher is the primary delivery channel for staff notifications.
// Publish failures must be catchable; they never propagate past the fan-out.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Ping(ctx context.Context) error
}

type RedisPublisher struct {
	client *redis.Client
}

func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

func (p *RedisPublisher) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := p.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", channel, err)
	}
	return nil
}

func (p *RedisPublisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}
