package repository

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryRoomLocker serializes commits per room within one process.
type MemoryRoomLocker struct {
	mu    sync.Mutex
	slots map[int64]chan struct{}
}

func NewMemoryRoomLocker() *MemoryRoomLocker {
	return &MemoryRoomLocker{slots: make(map[int64]chan struct{})}
}

func (l *MemoryRoomLocker) slot(roomID int64) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.slots[roomID]
	if !ok {
		ch = make(chan struct{}, 1)
		l.slots[roomID] = ch
	}
	return ch
}

func (l *MemoryRoomLocker) Lock(ctx context.Context, roomID int64) (func(), error) {
	ch := l.slot(roomID)
	var once sync.Once
	unlock := func() { once.Do(func() { <-ch }) }

	// a free slot is granted even when ctx has already expired
	select {
	case ch <- struct{}{}:
		return unlock, nil
	default:
	}

	select {
	case ch <- struct{}{}:
		return unlock, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: room %d: %v", ErrLockTimeout, roomID, ctx.Err())
	}
}

type MemoryRateLimiter struct {
	mu      sync.Mutex
	entries map[string]*rateLimitEntry
}

type rateLimitEntry struct {
	count     int
	expiresAt time.Time
}

func NewMemoryRateLimiter() *MemoryRateLimiter {
	return &MemoryRateLimiter{entries: make(map[string]*rateLimitEntry)}
}

func (r *MemoryRateLimiter) CheckRateLimit(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[key]
	if !ok || now.After(entry.expiresAt) {
		entry = &rateLimitEntry{expiresAt: now.Add(window)}
		r.entries[key] = entry
	}
	entry.count++
	return entry.count <= limit, nil
}
