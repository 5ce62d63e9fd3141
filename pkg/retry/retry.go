// Package retry provides a small exponential-backoff helper for flaky
// upstream calls. The delay doubles after each failed attempt and the last
// error is returned once attempts are exhausted. No jitter is applied.
package retry

import (
	"context"
	"time"
)

const (
	DefaultAttempts     = 3
	DefaultInitialDelay = time.Second
)

// Do runs fn up to attempts times, sleeping initialDelay, 2*initialDelay,
// 4*initialDelay, ... between failures. Non-positive attempts/initialDelay
// fall back to the defaults. The context is checked before each attempt and
// while waiting between attempts.
func Do(ctx context.Context, attempts int, initialDelay time.Duration, fn func() error) error {
	_, err := DoWithResult(ctx, attempts, initialDelay, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// DoWithResult is Do for functions that return a value alongside the error.
// On success the value from the successful attempt is returned; on exhaustion
// the zero value and the last error.
func DoWithResult[T any](ctx context.Context, attempts int, initialDelay time.Duration, fn func() (T, error)) (T, error) {
	var zero T

	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	if initialDelay <= 0 {
		initialDelay = DefaultInitialDelay
	}

	var lastErr error
	delay := initialDelay

	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		v, err := fn()
		if err == nil {
			return v, nil
		}
		lastErr = err

		if attempt == attempts {
			break
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}

	return zero, lastErr
}
