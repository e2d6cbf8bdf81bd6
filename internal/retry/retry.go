// Package retry classifies transient upstream failures and retries them with
// exponential backoff. Non-transient errors fail immediately.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// maxBackoff caps a single backoff sleep.
const maxBackoff = 30 * time.Second

// TransientError marks a failure worth retrying: rate limits, 5xx responses,
// connection resets, upstream timeouts.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return "transient: " + e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as retryable. Returns nil for nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// Backoff returns the base delay for attempt n (0-indexed), doubling each
// attempt and capped at 30s.
func Backoff(attempt int, base time.Duration) time.Duration {
	d := base << uint(attempt)
	if d > maxBackoff || d <= 0 {
		return maxBackoff
	}
	return d
}

// jitter adds up to 50% random extra delay to spread concurrent retries.
func jitter(d time.Duration) time.Duration {
	return d + time.Duration(rand.Int63n(int64(d)/2 + 1))
}

// Do runs fn up to attempts times, sleeping Backoff(n, base) with jitter
// between tries. Only transient errors are retried; the last error is
// returned once attempts are exhausted.
func Do(ctx context.Context, attempts int, base time.Duration, fn func(ctx context.Context) error) error {
	if attempts <= 0 {
		attempts = 1
	}

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if !IsTransient(err) {
			return err
		}
		if attempt == attempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("retry aborted: %w", ctx.Err())
		case <-time.After(jitter(Backoff(attempt, base))):
		}
	}
	return fmt.Errorf("after %d attempts: %w", attempts, err)
}
