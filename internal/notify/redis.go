package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisNotifier publishes each message on the creator's channel
// <prefix>:user:<id> and on the room channel <prefix>:room:<id>.
type RedisNotifier struct {
	client *redis.Client
	prefix string
}

func NewRedisNotifier(client *redis.Client, prefix string) *RedisNotifier {
	return &RedisNotifier{client: client, prefix: prefix}
}

func (n *RedisNotifier) UserChannel(userID int64) string {
	return fmt.Sprintf("%s:user:%d", n.prefix, userID)
}

func (n *RedisNotifier) RoomChannel(roomID int64) string {
	return fmt.Sprintf("%s:room:%d", n.prefix, roomID)
}

func (n *RedisNotifier) Notify(ctx context.Context, msg Message) error {
	if msg.Booking == nil {
		return fmt.Errorf("notify: booking is missing")
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	pipe := n.client.Pipeline()
	pipe.Publish(ctx, n.UserChannel(msg.Booking.CreatedBy), data)
	pipe.Publish(ctx, n.RoomChannel(msg.Booking.RoomID), data)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish booking %d: %w", msg.Booking.ID, err)
	}
	return nil
}
