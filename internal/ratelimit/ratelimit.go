// Package ratelimit implements a per-identifier sliding-window limiter over
// atomic key-value primitives, so it stays correct when the backing store is
// shared across instances.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/quarry-ai/quarry/internal/db"
)

// counterStore is the consumer interface for the KV backend (ISP).
type counterStore interface {
	IncrBy(ctx context.Context, key string, val int64) (int64, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Expire(ctx context.Context, key string, ttl time.Duration, nx bool) error
}

// Decision is the outcome of a rate-limit check.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Limiter counts requests per identifier with a sliding-window counter: one
// counter per window-sized bucket, and the previous bucket contributes its
// unelapsed share to the current estimate. A burst at the end of one bucket
// still weighs on the start of the next, so the budget cannot be doubled
// across a bucket boundary. INCRBY + EXPIRE NX keeps the write a single
// atomic step per call: there is no check-then-act sequence to race on a
// multi-instance backend.
type Limiter struct {
	store  counterStore
	prefix string
	now    func() time.Time
}

// New creates a limiter namespaced under prefix.
func New(store counterStore, prefix string) *Limiter {
	return &Limiter{store: store, prefix: prefix, now: time.Now}
}

// Check records one request for id and reports whether it is within
// maxRequests per sliding window.
func (l *Limiter) Check(ctx context.Context, id string, maxRequests int, window time.Duration) (Decision, error) {
	if maxRequests <= 0 || window <= 0 {
		return Decision{Allowed: true}, nil
	}

	nowMs := l.now().UnixMilli()
	windowMs := window.Milliseconds()
	bucket := nowMs / windowMs
	elapsed := float64(nowMs%windowMs) / float64(windowMs)

	count, err := l.store.IncrBy(ctx, l.key(id, bucket), 1)
	if err != nil {
		return Decision{}, fmt.Errorf("increment rate counter: %w", err)
	}

	// NX: only the first increment in a bucket attaches the expiry. Two
	// windows, because the counter must survive into the next bucket to be
	// weighted there.
	if err := l.store.Expire(ctx, l.key(id, bucket), 2*window, true); err != nil {
		return Decision{}, fmt.Errorf("expire rate counter: %w", err)
	}

	prev, err := l.bucketCount(ctx, id, bucket-1)
	if err != nil {
		return Decision{}, err
	}

	weighted := float64(prev)*(1-elapsed) + float64(count)

	remaining := maxRequests - int(math.Ceil(weighted))
	if remaining < 0 {
		remaining = 0
	}

	return Decision{
		Allowed:   weighted <= float64(maxRequests),
		Remaining: remaining,
		ResetAt:   time.UnixMilli((bucket + 1) * windowMs),
	}, nil
}

// bucketCount reads a bucket counter, treating a missing key as zero.
func (l *Limiter) bucketCount(ctx context.Context, id string, bucket int64) (int64, error) {
	data, err := l.store.Get(ctx, l.key(id, bucket))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("read rate counter: %w", err)
	}
	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse rate counter %q: %w", data, err)
	}
	return n, nil
}

func (l *Limiter) key(id string, bucket int64) string {
	return l.prefix + id + ":" + strconv.FormatInt(bucket, 10)
}
