// Package resilience provides fault tolerance patterns shared by outbound
// dependencies: the WebDAV document store today, anything else tomorrow.
package resilience

import (
	"context"
	"math/rand"
	"time"
)

// RetryConfig configures exponential backoff retry behavior.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       float64 // 0-1, fraction of delay randomized
}

// DefaultRetryConfig matches the claims engine's WebDAV retry policy: five
// attempts, 250ms base, factor 2, capped at 30s, +-25% jitter.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  5,
		InitialDelay: 250 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.25,
	}
}

// Retry executes fn with exponential backoff, stopping early if ctx is
// canceled while waiting between attempts.
func Retry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	var lastErr error
	delay := cfg.InitialDelay

	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
		}

		if attempt < cfg.MaxAttempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(addJitter(delay, cfg.Jitter)):
			}
			delay = nextDelay(delay, cfg)
		}
	}
	return lastErr
}

// BackoffForAttempt computes the jittered delay before the given attempt
// number (0-indexed), for callers that manage their own retry loop across
// separate invocations instead of looping inside a single Retry call — the
// task worker's queue-backed retries are the first such caller.
func BackoffForAttempt(attempt int, cfg RetryConfig) time.Duration {
	delay := cfg.InitialDelay
	for i := 0; i < attempt; i++ {
		delay = nextDelay(delay, cfg)
	}
	return addJitter(delay, cfg.Jitter)
}

func nextDelay(current time.Duration, cfg RetryConfig) time.Duration {
	next := time.Duration(float64(current) * cfg.Multiplier)
	if next > cfg.MaxDelay {
		return cfg.MaxDelay
	}
	return next
}

func addJitter(d time.Duration, jitter float64) time.Duration {
	if jitter <= 0 {
		return d
	}
	delta := float64(d) * jitter
	return d + time.Duration(rand.Float64()*delta*2-delta)
}
