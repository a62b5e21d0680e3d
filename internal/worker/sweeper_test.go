package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryPolicyNextDelay(t *testing.T) {
	policy := RetryPolicy{
		MaxRetries:    5,
		InitialDelay:  time.Second,
		MaxDelay:      10 * time.Second,
		BackoffFactor: 2,
	}

	assert.Equal(t, time.Second, policy.NextDelay(1))
	assert.Equal(t, 2*time.Second, policy.NextDelay(2))
	assert.Equal(t, 4*time.Second, policy.NextDelay(3))
	// Clamped at MaxDelay.
	assert.Equal(t, 10*time.Second, policy.NextDelay(5))
	assert.Equal(t, 10*time.Second, policy.NextDelay(20))
	// Attempts below 1 behave like the first.
	assert.Equal(t, time.Second, policy.NextDelay(0))
}

func TestRetryPolicyDefaults(t *testing.T) {
	var policy RetryPolicy
	assert.Equal(t, time.Second, policy.NextDelay(1))
	assert.Equal(t, 2*time.Second, policy.NextDelay(2))
}

type fakeExpirer struct {
	mu       sync.Mutex
	calls    int
	failures int
	expired  int
}

func (f *fakeExpirer) ExpireStaleHolds(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failures > 0 {
		f.failures--
		return 0, errors.New("database is locked")
	}
	return f.expired, nil
}

func (f *fakeExpirer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestSweeperRetriesOnFailure(t *testing.T) {
	expirer := &fakeExpirer{failures: 2, expired: 1}
	sweeper := NewExpirySweeper(expirer, time.Second, RetryPolicy{
		MaxRetries:    3,
		InitialDelay:  time.Millisecond,
		MaxDelay:      time.Millisecond,
		BackoffFactor: 1,
	}, nil)

	sweeper.sweep(context.Background())
	assert.Equal(t, 3, expirer.callCount())
}

func TestSweeperGivesUpAfterMaxRetries(t *testing.T) {
	expirer := &fakeExpirer{failures: 10}
	sweeper := NewExpirySweeper(expirer, time.Second, RetryPolicy{
		MaxRetries:    3,
		InitialDelay:  time.Millisecond,
		MaxDelay:      time.Millisecond,
		BackoffFactor: 1,
	}, nil)

	sweeper.sweep(context.Background())
	assert.Equal(t, 3, expirer.callCount())
}

func TestSweeperStopsOnContextCancel(t *testing.T) {
	expirer := &fakeExpirer{}
	sweeper := NewExpirySweeper(expirer, 5*time.Millisecond, RetryPolicy{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sweeper.Start(ctx)
		close(done)
	}()

	// Let a few ticks fire, then stop.
	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after cancel")
	}
	require.Greater(t, expirer.callCount(), 0)
}
