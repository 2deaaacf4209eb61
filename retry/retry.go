// Package retry re-runs transient RPC and API calls with capped exponential
// backoff.
package retry

import (
	"context"
	"fmt"
	"time"
)

// Config controls how often and how patiently a call is retried.
// MaxAttempts counts the first call.
type Config struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64

	// DelayHint may return a server-requested wait for err, such as a
	// Retry-After value. A positive hint replaces the backoff for that wait.
	DelayHint func(err error) time.Duration

	// OnRetry is called before each wait with the failed attempt (1-based),
	// its error and the wait about to happen.
	OnRetry func(attempt int, err error, wait time.Duration)
}

// DefaultConfig suits short read-only RPC calls.
var DefaultConfig = Config{
	MaxAttempts:  3,
	InitialDelay: 100 * time.Millisecond,
	MaxDelay:     5 * time.Second,
	Multiplier:   2.0,
}

// IsRetryable reports whether err is worth another attempt.
type IsRetryable func(error) bool

// Always retries every error.
func Always(error) bool { return true }

// next grows delay by the multiplier, capped at MaxDelay.
func (c Config) next(delay time.Duration) time.Duration {
	grown := time.Duration(float64(delay) * c.Multiplier)
	if c.MaxDelay > 0 && grown > c.MaxDelay {
		return c.MaxDelay
	}
	return grown
}

func (c Config) wait(delay time.Duration, err error) time.Duration {
	if c.DelayHint != nil {
		if hint := c.DelayHint(err); hint > 0 {
			return hint
		}
	}
	return delay
}

// WithRetry calls fn until it succeeds, returns an error isRetryable
// rejects, or MaxAttempts is used up. Cancelling ctx stops both the
// attempts and the waits between them.
func WithRetry[T any](ctx context.Context, config Config, isRetryable IsRetryable, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error
	delay := config.InitialDelay

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, fmt.Errorf("context cancelled: %w", err)
		}

		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !isRetryable(err) {
			return zero, err
		}
		if attempt == config.MaxAttempts {
			break
		}

		wait := config.wait(delay, err)
		if config.OnRetry != nil {
			config.OnRetry(attempt, err, wait)
		}
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		}
		delay = config.next(delay)
	}

	return zero, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// WithSimpleRetry is WithRetry with DefaultConfig.
func WithSimpleRetry[T any](ctx context.Context, fn func() (T, error), isRetryable IsRetryable) (T, error) {
	return WithRetry(ctx, DefaultConfig, isRetryable, fn)
}
