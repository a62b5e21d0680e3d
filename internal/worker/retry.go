package worker

import "time"

// RetryPolicy controls how the sweeper backs off between failed expiry
// passes. Zero values fall back to one second, factor two, uncapped.
type RetryPolicy struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// NextDelay returns the wait before the given 1-based attempt, growing
// geometrically from InitialDelay and clamped to MaxDelay when set.
func (r RetryPolicy) NextDelay(attempt int) time.Duration {
	initial := r.InitialDelay
	if initial <= 0 {
		initial = time.Second
	}
	factor := r.BackoffFactor
	if factor <= 0 {
		factor = 2
	}

	d := float64(initial)
	for i := 1; i < attempt; i++ {
		d *= factor
		if r.MaxDelay > 0 && d >= float64(r.MaxDelay) {
			return r.MaxDelay
		}
	}
	if d <= 0 {
		return time.Second
	}
	return time.Duration(d)
}
