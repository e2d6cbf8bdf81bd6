// Package embcache caches embeddings in a key-value store. Embeddings are
// deterministic for a given provider+model+mode+text, so cached vectors are
// served for 24h before recomputation.
package embcache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/quarry-ai/quarry/internal/cache"
	"github.com/quarry-ai/quarry/internal/domain"
)

// TTL is how long a cached embedding stays valid.
const TTL = 24 * time.Hour

// CachedEmbedder is a caching decorator over a domain.Embedder. On a batch
// call only the cache misses reach the inner provider; outputs keep input
// order either way.
type CachedEmbedder struct {
	inner      domain.Embedder
	cache      cache.Cache
	keyScope   string // provider|model, part of the cache key
	cacheTotal *prometheus.CounterVec
	logger     *zap.Logger
}

// New creates a caching decorator. cacheTotal is a counter vec with labels
// ("cache", "result"), passed explicitly.
func New(
	inner domain.Embedder,
	c cache.Cache,
	keyScope string,
	cacheTotal *prometheus.CounterVec,
	logger *zap.Logger,
) *CachedEmbedder {
	return &CachedEmbedder{
		inner:      inner,
		cache:      c,
		keyScope:   keyScope,
		cacheTotal: cacheTotal,
		logger:     logger,
	}
}

// Embed implements domain.Embedder.
func (c *CachedEmbedder) Embed(
	ctx context.Context, texts []string, mode domain.EmbedMode,
) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, len(texts))
	var missTexts []string
	var missIdx []int

	for i, text := range texts {
		key := c.cacheKey(mode, text)
		if vec, ok := c.getFromCache(ctx, key); ok {
			c.incCache("hit")
			vectors[i] = vec
			continue
		}
		c.incCache("miss")
		missTexts = append(missTexts, text)
		missIdx = append(missIdx, i)
	}

	if len(missTexts) == 0 {
		return vectors, nil
	}

	fresh, err := c.inner.Embed(ctx, missTexts, mode)
	if err != nil {
		return nil, fmt.Errorf("embed %d texts: %w", len(missTexts), err)
	}
	if len(fresh) != len(missTexts) {
		return nil, fmt.Errorf("%w: sent %d, got %d", domain.ErrEmbeddingCountMismatch, len(missTexts), len(fresh))
	}

	for j, vec := range fresh {
		i := missIdx[j]
		vectors[i] = vec
		c.cache.Set(ctx, c.cacheKey(mode, texts[i]), vectorToCacheBytes(vec), TTL)
	}

	return vectors, nil
}

func (c *CachedEmbedder) incCache(result string) {
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues("embedding", result).Inc()
	}
}

func (c *CachedEmbedder) cacheKey(mode domain.EmbedMode, text string) string {
	h := sha256.Sum256([]byte(c.keyScope + "|" + string(mode) + "|" + text))
	return "emb:" + hex.EncodeToString(h[:])
}

func (c *CachedEmbedder) getFromCache(ctx context.Context, key string) ([]float32, bool) {
	data, ok := c.cache.Get(ctx, key)
	if !ok {
		return nil, false
	}

	vec, err := bytesToVector(data)
	if err != nil {
		c.logger.Warn("Failed to parse cached embedding", zap.String("key", key), zap.Error(err))
		return nil, false
	}

	return vec, true
}

func vectorToCacheBytes(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func bytesToVector(data []byte) ([]float32, error) {
	if len(data) == 0 || len(data)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding cache data: len=%d", len(data))
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}
