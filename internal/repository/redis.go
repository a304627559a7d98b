package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"roombook/internal/config"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const lockRetryInterval = 25 * time.Millisecond

// releaseScript deletes the lock only if it still holds our token, so an
// expired holder never releases a lock taken over by somebody else.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

// RedisRoomLocker is a SET NX PX lock per room shared by every instance.
type RedisRoomLocker struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisRoomLocker(client *redis.Client, ttl time.Duration) *RedisRoomLocker {
	return &RedisRoomLocker{client: client, ttl: ttl}
}

func roomLockKey(roomID int64) string {
	return fmt.Sprintf("room_lock:%d", roomID)
}

// Lock blocks until the room lock is acquired or ctx is done. Redis failures
// are returned as-is; a lock still held at ctx expiry yields ErrLockTimeout.
func (l *RedisRoomLocker) Lock(ctx context.Context, roomID int64) (func(), error) {
	if l.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	key := roomLockKey(roomID)
	token := uuid.NewString()

	ticker := time.NewTicker(lockRetryInterval)
	defer ticker.Stop()

	// contended is set once Redis has answered that another commit holds the
	// lock; only then does an expired ctx mean a lock timeout.
	contended := false
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			if contended && ctx.Err() != nil {
				return nil, fmt.Errorf("%w: room %d: %v", ErrLockTimeout, roomID, ctx.Err())
			}
			return nil, fmt.Errorf("failed to acquire room lock: %w", err)
		}
		if ok {
			return func() { l.release(key, token) }, nil
		}
		contended = true

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: room %d: %v", ErrLockTimeout, roomID, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (l *RedisRoomLocker) release(key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = releaseScript.Run(ctx, l.client, []string{key}, token).Err()
}

// RedisRateLimiter is a fixed-window counter shared by every instance.
type RedisRateLimiter struct {
	client *redis.Client
}

func NewRedisRateLimiter(client *redis.Client) *RedisRateLimiter {
	return &RedisRateLimiter{client: client}
}

func (r *RedisRateLimiter) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if r.client == nil {
		return false, fmt.Errorf("redis client is nil")
	}
	k := "rate_limit:" + key
	count, err := r.client.Incr(ctx, k).Result()
	if err != nil {
		return false, fmt.Errorf("failed to increment rate limit: %w", err)
	}

	if count == 1 {
		if err := r.client.Expire(ctx, k, window).Err(); err != nil {
			return false, fmt.Errorf("failed to set rate limit window: %w", err)
		}
	}

	return count <= int64(limit), nil
}

func Ping(ctx context.Context, client *redis.Client) error {
	if _, err := client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}

// IsUnavailable reports whether err came from the Redis connection rather
// than from lock contention.
func IsUnavailable(err error) bool {
	return err != nil && !errors.Is(err, ErrLockTimeout)
}
