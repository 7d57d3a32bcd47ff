// Package ratelimit provides a simple outbound token-bucket limiter for
// clients of external dependencies (the WebDAV document store) that have
// no rate-limiting of their own, so a burst of uploads or the nightly
// file reaper's sweep can't saturate the storage backend's connection
// budget.
package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// Config bounds sustained and burst request rates.
type Config struct {
	RequestsPerSecond float64
	Burst             int
}

// DefaultConfig allows generous throughput while still capping runaway
// bursts from, e.g., the file reaper deleting many documents at once.
func DefaultConfig() Config {
	return Config{RequestsPerSecond: 50, Burst: 100}
}

// Limiter wraps golang.org/x/time/rate with the defaulting this package's
// callers expect.
type Limiter struct {
	limiter *rate.Limiter
}

func New(cfg Config) *Limiter {
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 50
	}
	if cfg.Burst <= 0 {
		cfg.Burst = int(cfg.RequestsPerSecond * 2)
	}
	return &Limiter{limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)}
}

// Wait blocks until a token is available or ctx is done, whichever comes
// first.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil {
		return nil
	}
	return l.limiter.Wait(ctx)
}

// Allow reports whether a request may proceed right now, without blocking.
func (l *Limiter) Allow() bool {
	if l == nil {
		return true
	}
	return l.limiter.Allow()
}
