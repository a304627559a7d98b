package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"roombook/internal/domain"
	"roombook/internal/metrics"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// breaker remembers that the primary failed and when to probe it again.
type breaker struct {
	isDown    atomic.Bool
	mu        sync.Mutex
	lastCheck time.Time
}

func (b *breaker) trip() {
	b.mu.Lock()
	b.lastCheck = time.Now()
	b.mu.Unlock()
	b.isDown.Store(true)
}

// usePrimary reports whether the primary should be tried for this call.
func (b *breaker) usePrimary() bool {
	if !b.isDown.Load() {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if time.Since(b.lastCheck) > recoveryInterval {
		b.lastCheck = time.Now()
		return true
	}
	return false
}

func (b *breaker) recover() {
	b.isDown.Store(false)
}

// FailoverRoomLocker prefers the shared Redis lock and falls back to a
// process-local one while Redis is unreachable.
type FailoverRoomLocker struct {
	primary  domain.RoomLocker
	fallback domain.RoomLocker
	logger   *zerolog.Logger
	breaker
}

func NewFailoverRoomLocker(primary, fallback domain.RoomLocker, logger *zerolog.Logger) *FailoverRoomLocker {
	return &FailoverRoomLocker{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (l *FailoverRoomLocker) Lock(ctx context.Context, roomID int64) (func(), error) {
	if l.usePrimary() {
		unlock, err := l.primary.Lock(ctx, roomID)
		if err == nil {
			if l.isDown.Load() {
				l.logger.Info().Msg("Primary room locker recovered")
			}
			l.recover()
			return unlock, nil
		}
		if !IsUnavailable(err) {
			return nil, err
		}
		l.logger.Error().Err(err).Int64("room_id", roomID).Msg("Primary room locker failed, falling back to memory")
		l.trip()
	}

	metrics.IncLockFallback()
	return l.fallback.Lock(ctx, roomID)
}

type FailoverRateLimiter struct {
	primary  domain.RateLimiter
	fallback domain.RateLimiter
	logger   *zerolog.Logger
	breaker
}

func NewFailoverRateLimiter(primary, fallback domain.RateLimiter, logger *zerolog.Logger) *FailoverRateLimiter {
	return &FailoverRateLimiter{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (r *FailoverRateLimiter) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if r.usePrimary() {
		allowed, err := r.primary.CheckRateLimit(ctx, key, limit, window)
		if err == nil {
			r.recover()
			return allowed, nil
		}
		r.logger.Error().Err(err).Msg("Primary rate limiter failed, falling back to memory")
		r.trip()
	}

	return r.fallback.CheckRateLimit(ctx, key, limit, window)
}
