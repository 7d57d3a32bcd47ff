// Redis-backed fixed-window rate limiting and login lockout, so the
// limit holds across every replica instead of resetting whenever a
// request lands on a different process (the failure mode of an
// in-memory, per-process limiter under a load balancer).
package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RateLimiter enforces a fixed request budget per key per window using
// Redis INCR+EXPIRE: the first request in a window sets the expiry, every
// subsequent request in the same window just increments the counter.
type RateLimiter struct {
	client *redis.Client
	prefix string
	limit  int
	window time.Duration
}

func NewRateLimiter(client *redis.Client, prefix string, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{client: client, prefix: prefix, limit: limit, window: window}
}

// Allow increments key's counter for the current window and reports
// whether the request is within budget.
func (rl *RateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	redisKey := fmt.Sprintf("%s:%s", rl.prefix, key)
	count, err := rl.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return false, fmt.Errorf("auth: ratelimit incr: %w", err)
	}
	if count == 1 {
		if err := rl.client.Expire(ctx, redisKey, rl.window).Err(); err != nil {
			return false, fmt.Errorf("auth: ratelimit expire: %w", err)
		}
	}
	return count <= int64(rl.limit), nil
}

// LoginLockout tracks consecutive failed login attempts per customer and
// locks the account out for a cooldown period once a threshold is hit.
type LoginLockout struct {
	client    *redis.Client
	maxFailed int
	lockout   time.Duration
}

func NewLoginLockout(client *redis.Client, maxFailed int, lockout time.Duration) *LoginLockout {
	return &LoginLockout{client: client, maxFailed: maxFailed, lockout: lockout}
}

func lockoutKey(customerID string) string {
	return "auth:lockout:" + customerID
}

func lockedKey(customerID string) string {
	return "auth:locked:" + customerID
}

// Locked reports whether customerID is presently locked out.
func (l *LoginLockout) Locked(ctx context.Context, customerID string) (bool, error) {
	exists, err := l.client.Exists(ctx, lockedKey(customerID)).Result()
	if err != nil {
		return false, fmt.Errorf("auth: lockout check: %w", err)
	}
	return exists > 0, nil
}

// RecordFailure increments the failure counter, locking the account out
// once maxFailed is reached, and reports whether the account is now
// locked.
func (l *LoginLockout) RecordFailure(ctx context.Context, customerID string) (locked bool, err error) {
	key := lockoutKey(customerID)
	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("auth: lockout incr: %w", err)
	}
	if count == 1 {
		if err := l.client.Expire(ctx, key, l.lockout).Err(); err != nil {
			return false, fmt.Errorf("auth: lockout expire: %w", err)
		}
	}
	if count >= int64(l.maxFailed) {
		if err := l.client.Set(ctx, lockedKey(customerID), "1", l.lockout).Err(); err != nil {
			return false, fmt.Errorf("auth: set locked: %w", err)
		}
		return true, nil
	}
	return false, nil
}

// Reset clears the failure counter and any lock, called on a successful
// login.
func (l *LoginLockout) Reset(ctx context.Context, customerID string) error {
	if err := l.client.Del(ctx, lockoutKey(customerID), lockedKey(customerID)).Err(); err != nil {
		return fmt.Errorf("auth: lockout reset: %w", err)
	}
	return nil
}
