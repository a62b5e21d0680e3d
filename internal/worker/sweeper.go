package worker

import (
	"context"
	"log"
	"time"
)

// HoldExpirer is the slice of the booking engine the sweeper drives.
type HoldExpirer interface {
	ExpireStaleHolds(ctx context.Context) (int, error)
}

// ExpirySweeper periodically tombstones reserved holds whose TTL lapsed.
// Holds stop occupying calendar time the moment they expire; the sweeper
// only settles the ledger afterwards, so missing a tick never double-books.
type ExpirySweeper struct {
	engine      HoldExpirer
	interval    time.Duration
	retryPolicy RetryPolicy
	logger      *log.Logger
}

func NewExpirySweeper(engine HoldExpirer, interval time.Duration, retry RetryPolicy, logger *log.Logger) *ExpirySweeper {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if retry.MaxRetries == 0 {
		retry.MaxRetries = 3
	}
	if retry.InitialDelay == 0 {
		retry.InitialDelay = time.Second
	}
	if retry.MaxDelay == 0 {
		retry.MaxDelay = 30 * time.Second
	}
	if retry.BackoffFactor == 0 {
		retry.BackoffFactor = 2
	}
	if logger == nil {
		logger = log.Default()
	}

	return &ExpirySweeper{
		engine:      engine,
		interval:    interval,
		retryPolicy: retry,
		logger:      logger,
	}
}

// Start launches main loop; stops when ctx is done.
func (s *ExpirySweeper) Start(ctx context.Context) {
	s.logger.Printf("expiry_sweeper: started")
	defer s.logger.Printf("expiry_sweeper: stopped")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *ExpirySweeper) sweep(ctx context.Context) {
	for attempt := 1; attempt <= s.retryPolicy.MaxRetries; attempt++ {
		expired, err := s.engine.ExpireStaleHolds(ctx)
		if err == nil {
			if expired > 0 {
				s.logger.Printf("expiry_sweeper: expired %d holds", expired)
			}
			return
		}

		s.logger.Printf("expiry_sweeper: sweep attempt %d failed: %v", attempt, err)
		if attempt == s.retryPolicy.MaxRetries {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.retryPolicy.NextDelay(attempt)):
		}
	}
}
