package repository

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// MemoryRateLimiter keeps a token bucket per key. Used standalone in tests
// and as the fallback when Redis is unavailable.
type MemoryRateLimiter struct {
	limiters sync.Map
}

func NewMemoryRateLimiter() *MemoryRateLimiter {
	return &MemoryRateLimiter{}
}

func (r *MemoryRateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if limit <= 0 || window <= 0 {
		return false, nil
	}
	val, ok := r.limiters.Load(key)
	if !ok {
		per := rate.Every(window / time.Duration(limit))
		val, _ = r.limiters.LoadOrStore(key, rate.NewLimiter(per, limit))
	}
	return val.(*rate.Limiter).Allow(), nil
}
