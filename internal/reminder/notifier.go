package reminder

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisNotifier publishes reminder payloads to per-recipient redis
// channels (notify:user:<id>, notify:clinic:<id>). Whatever transport
// ultimately reaches the recipient (socket push, email worker) subscribes
// on the other side.
type RedisNotifier struct {
	client *redis.Client
}

func NewRedisNotifier(client *redis.Client) *RedisNotifier {
	return &RedisNotifier{client: client}
}

func (n *RedisNotifier) Notify(ctx context.Context, topic Topic, payload Payload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal reminder payload: %w", err)
	}

	channel := fmt.Sprintf("notify:%s:%s", topic.Kind, topic.ID)
	if err := n.client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("publish reminder to %s: %w", channel, err)
	}
	return nil
}
