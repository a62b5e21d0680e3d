package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRateLimiterBurst(t *testing.T) {
	limiter := NewMemoryRateLimiter()
	ctx := context.Background()

	allowedCount := 0
	for i := 0; i < 10; i++ {
		allowed, err := limiter.Allow(ctx, "client-a", 5, time.Minute)
		require.NoError(t, err)
		if allowed {
			allowedCount++
		}
	}
	assert.Equal(t, 5, allowedCount)

	// Separate keys get separate buckets.
	allowed, err := limiter.Allow(ctx, "client-b", 5, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestMemoryRateLimiterRejectsZeroLimit(t *testing.T) {
	limiter := NewMemoryRateLimiter()

	allowed, err := limiter.Allow(context.Background(), "client-a", 0, time.Minute)
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestRedisRateLimiter(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	limiter := NewRedisRateLimiter(client)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, err := limiter.Allow(ctx, "client-a", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed)
	}
	allowed, err := limiter.Allow(ctx, "client-a", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, allowed)

	// The fixed window resets once the key expires.
	mr.FastForward(2 * time.Minute)
	allowed, err = limiter.Allow(ctx, "client-a", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestRedisRateLimiterNilClient(t *testing.T) {
	limiter := NewRedisRateLimiter(nil)
	_, err := limiter.Allow(context.Background(), "client-a", 3, time.Minute)
	assert.Error(t, err)
}

type stubLimiter struct {
	allowed bool
	err     error
	calls   int
}

func (s *stubLimiter) Allow(_ context.Context, _ string, _ int, _ time.Duration) (bool, error) {
	s.calls++
	return s.allowed, s.err
}

func TestFailoverUsesPrimary(t *testing.T) {
	primary := &stubLimiter{allowed: true}
	fallback := &stubLimiter{allowed: false}
	logger := zerolog.Nop()
	limiter := NewFailoverRateLimiter(primary, fallback, &logger)

	allowed, err := limiter.Allow(context.Background(), "k", 5, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Zero(t, fallback.calls)
}

func TestFailoverFallsBackOnError(t *testing.T) {
	primary := &stubLimiter{err: errors.New("connection refused")}
	fallback := &stubLimiter{allowed: true}
	logger := zerolog.Nop()
	limiter := NewFailoverRateLimiter(primary, fallback, &logger)

	allowed, err := limiter.Allow(context.Background(), "k", 5, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, 1, fallback.calls)

	// While marked down the primary is not retried on every request.
	_, err = limiter.Allow(context.Background(), "k", 5, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 2, fallback.calls)
}

// Full stack: redis-backed primary dies mid-flight, requests keep being
// served by the in-memory fallback.
func TestFailoverWhenRedisDies(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	logger := zerolog.Nop()
	limiter := NewFailoverRateLimiter(NewRedisRateLimiter(client), NewMemoryRateLimiter(), &logger)
	ctx := context.Background()

	allowed, err := limiter.Allow(ctx, "client-a", 100, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed)

	mr.Close()

	allowed, err = limiter.Allow(ctx, "client-a", 100, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.True(t, limiter.isDown.Load())
}

func TestFailoverRecovers(t *testing.T) {
	primary := &stubLimiter{err: errors.New("connection refused")}
	fallback := &stubLimiter{allowed: true}
	logger := zerolog.Nop()
	limiter := NewFailoverRateLimiter(primary, fallback, &logger)

	_, err := limiter.Allow(context.Background(), "k", 5, time.Minute)
	require.NoError(t, err)
	require.True(t, limiter.isDown.Load())

	// Pretend the outage started over a minute ago, then heal the primary.
	limiter.lastCheck.Store(time.Now().Add(-2 * time.Minute).UnixNano())
	primary.err = nil
	primary.allowed = true

	allowed, err := limiter.Allow(context.Background(), "k", 5, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.False(t, limiter.isDown.Load())
}
