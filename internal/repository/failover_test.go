package repository

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockLocker struct {
	mock.Mock
}

func (m *mockLocker) Lock(ctx context.Context, roomID int64) (func(), error) {
	args := m.Called(ctx, roomID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(func()), args.Error(1)
}

type mockLimiter struct {
	mock.Mock
}

func (m *mockLimiter) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	args := m.Called(ctx, key, limit, window)
	return args.Bool(0), args.Error(1)
}

func TestFailoverRoomLocker(t *testing.T) {
	primary := new(mockLocker)
	fallback := new(mockLocker)
	logger := zerolog.New(io.Discard)
	locker := NewFailoverRoomLocker(primary, fallback, &logger)
	ctx := context.Background()
	noop := func() {}

	t.Run("PrimarySuccess", func(t *testing.T) {
		primary.On("Lock", ctx, int64(1)).Return(noop, nil).Once()

		unlock, err := locker.Lock(ctx, 1)
		require.NoError(t, err)
		assert.NotNil(t, unlock)
		primary.AssertExpectations(t)
		fallback.AssertNotCalled(t, "Lock", ctx, int64(1))
	})

	t.Run("ContentionDoesNotFailOver", func(t *testing.T) {
		primary.On("Lock", ctx, int64(2)).Return(nil, ErrLockTimeout).Once()

		_, err := locker.Lock(ctx, 2)
		assert.ErrorIs(t, err, ErrLockTimeout)
		assert.False(t, locker.isDown.Load())
	})

	t.Run("PrimaryFailureUsesFallback", func(t *testing.T) {
		primary.On("Lock", ctx, int64(3)).Return(nil, errors.New("connection refused")).Once()
		fallback.On("Lock", ctx, int64(3)).Return(noop, nil).Once()

		unlock, err := locker.Lock(ctx, 3)
		require.NoError(t, err)
		assert.NotNil(t, unlock)
		assert.True(t, locker.isDown.Load())
		fallback.AssertExpectations(t)
	})

	t.Run("StaysOnFallbackWhileDown", func(t *testing.T) {
		fallback.On("Lock", ctx, int64(4)).Return(noop, nil).Once()

		_, err := locker.Lock(ctx, 4)
		require.NoError(t, err)
		primary.AssertNotCalled(t, "Lock", ctx, int64(4))
	})

	t.Run("RecoversAfterInterval", func(t *testing.T) {
		locker.mu.Lock()
		locker.lastCheck = time.Now().Add(-2 * recoveryInterval)
		locker.mu.Unlock()
		primary.On("Lock", ctx, int64(5)).Return(noop, nil).Once()

		_, err := locker.Lock(ctx, 5)
		require.NoError(t, err)
		assert.False(t, locker.isDown.Load())
	})
}

func TestFailoverRateLimiter(t *testing.T) {
	primary := new(mockLimiter)
	fallback := new(mockLimiter)
	logger := zerolog.New(io.Discard)
	limiter := NewFailoverRateLimiter(primary, fallback, &logger)
	ctx := context.Background()

	primary.On("CheckRateLimit", ctx, "a", 5, time.Minute).Return(true, nil).Once()
	allowed, err := limiter.CheckRateLimit(ctx, "a", 5, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed)

	primary.On("CheckRateLimit", ctx, "b", 5, time.Minute).Return(false, errors.New("redis down")).Once()
	fallback.On("CheckRateLimit", ctx, "b", 5, time.Minute).Return(false, nil).Once()
	allowed, err = limiter.CheckRateLimit(ctx, "b", 5, time.Minute)
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.True(t, limiter.isDown.Load())

	primary.AssertExpectations(t)
	fallback.AssertExpectations(t)
}
