// Package cache provides a best-effort byte cache capability.
//
// Callers never branch on "is caching configured": when no backend is
// available the no-op implementation is wired in, and backend failures
// degrade to misses.
package cache

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/quarry-ai/quarry/internal/db"
)

// Cache is a get/set byte cache with per-entry TTL. Both operations are
// best-effort: a failed Get is a miss, a failed Set is dropped.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
}

// store is the consumer interface for the KV backend (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// KV is a Cache backed by a shared key-value store.
type KV struct {
	store  store
	prefix string
	logger *zap.Logger
}

// NewKV creates a KV-backed cache. All keys are namespaced under prefix.
func NewKV(s store, prefix string, logger *zap.Logger) *KV {
	return &KV{store: s, prefix: prefix, logger: logger}
}

// Get returns a cached value, treating backend errors as misses.
func (c *KV) Get(ctx context.Context, key string) ([]byte, bool) {
	data, err := c.store.Get(ctx, c.prefix+key)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			c.logger.Warn("Cache get failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	if len(data) == 0 {
		return nil, false
	}
	return data, true
}

// Set stores a value with TTL, dropping it on backend failure.
func (c *KV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if err := c.store.SetWithTTL(ctx, c.prefix+key, value, ttl); err != nil {
		c.logger.Warn("Cache set failed", zap.String("key", key), zap.Error(err))
	}
}

// Nop is the cache used when no backend is configured: every Get misses,
// every Set is discarded.
type Nop struct{}

// NewNop creates a no-op cache.
func NewNop() Nop { return Nop{} }

// Get always misses.
func (Nop) Get(context.Context, string) ([]byte, bool) { return nil, false }

// Set discards the value.
func (Nop) Set(context.Context, string, []byte, time.Duration) {}
