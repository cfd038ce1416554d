package notifier

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// RedisPublisher fans notifications out over Redis pub/sub, one channel per user
type RedisPublisher struct {
	client *redis.Client
	prefix string
}

// NewRedisPublisher creates a publisher using client. Channels are named
// "<prefix>:<user id>".
func NewRedisPublisher(client *redis.Client, prefix string) *RedisPublisher {
	return &RedisPublisher{client: client, prefix: prefix}
}

// Channel returns the pub/sub channel for userID
func (p *RedisPublisher) Channel(userID uuid.UUID) string {
	return p.prefix + ":" + userID.String()
}

// Publish sends payload to the user's channel
func (p *RedisPublisher) Publish(ctx context.Context, userID uuid.UUID, payload []byte) error {
	if err := p.client.Publish(ctx, p.Channel(userID), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}
	return nil
}

// Ping checks the Redis connection
func (p *RedisPublisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}
