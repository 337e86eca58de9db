package ratelimit

import (
	"context"
	"fmt"
	"time"

	"whatshub/internal/constants"
	apperrors "whatshub/internal/errors"

	"github.com/redis/go-redis/v9"
)

// Limiter implements a fixed-window, self-extending per-account counter on
// redis. Every increment refreshes the window expiry, so a sustained burst
// keeps renewing the window rather than rolling its origin.
type Limiter struct {
	rdb    *redis.Client
	window time.Duration
}

func New(rdb *redis.Client, window time.Duration) *Limiter {
	if window <= 0 {
		window = constants.RateLimitWindowSec * time.Second
	}
	return &Limiter{rdb: rdb, window: window}
}

func key(account string) string {
	return constants.RateLimitKeyPrefix + account
}

// Check reports whether the account is within its limit. Pure read, no
// mutation; use Acquire on the send path.
func (l *Limiter) Check(ctx context.Context, account string, limit int) (bool, error) {
	current, err := l.current(ctx, account)
	if err != nil {
		return false, err
	}
	return current < int64(limit), nil
}

// Increment bumps the account's counter and resets the window expiry.
func (l *Limiter) Increment(ctx context.Context, account string) error {
	pipe := l.rdb.TxPipeline()
	pipe.Incr(ctx, key(account))
	pipe.Expire(ctx, key(account), l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to increment rate limit counter: %w", err)
	}
	return nil
}

// Acquire atomically claims one send slot: a single INCR whose result is
// compared against the limit. Two concurrent callers can no longer both pass
// a read-only check before either increments. The slot is spent even when
// the send later fails, which caps concurrent in-flight sends.
func (l *Limiter) Acquire(ctx context.Context, account string, limit int) error {
	pipe := l.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key(account))
	pipe.Expire(ctx, key(account), l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to acquire rate limit slot: %w", err)
	}
	if incr.Val() > int64(limit) {
		return apperrors.ErrRateLimited.WithContext("account", account)
	}
	return nil
}

// Remaining returns max(0, limit - current).
func (l *Limiter) Remaining(ctx context.Context, account string, limit int) (int, error) {
	current, err := l.current(ctx, account)
	if err != nil {
		return 0, err
	}
	remaining := int64(limit) - current
	if remaining < 0 {
		remaining = 0
	}
	return int(remaining), nil
}

// Reset clears the account's counter. Administrative use.
func (l *Limiter) Reset(ctx context.Context, account string) error {
	if err := l.rdb.Del(ctx, key(account)).Err(); err != nil {
		return fmt.Errorf("failed to reset rate limit counter: %w", err)
	}
	return nil
}

func (l *Limiter) current(ctx context.Context, account string) (int64, error) {
	val, err := l.rdb.Get(ctx, key(account)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read rate limit counter: %w", err)
	}
	return val, nil
}
