package embcache

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/quarry-ai/quarry/internal/domain"
)

type mockEmbedder struct {
	calls   [][]string
	vectors map[string][]float32
	err     error
}

func (m *mockEmbedder) Embed(_ context.Context, texts []string, _ domain.EmbedMode) ([][]float32, error) {
	m.calls = append(m.calls, texts)
	if m.err != nil {
		return nil, m.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = m.vectors[t]
	}
	return out, nil
}

type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
	ttls map[string]time.Duration
}

func newMemCache() *memCache {
	return &memCache{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (c *memCache) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok
}

func (c *memCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	c.ttls[key] = ttl
}

func TestEmbedCachesVectors(t *testing.T) {
	inner := &mockEmbedder{vectors: map[string][]float32{"hello": {0.1, 0.2}}}
	store := newMemCache()
	e := New(inner, store, "openai|small", nil, zap.NewNop())
	ctx := context.Background()

	first, err := e.Embed(ctx, []string{"hello"}, domain.EmbedQuery)
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	second, err := e.Embed(ctx, []string{"hello"}, domain.EmbedQuery)
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}

	if len(inner.calls) != 1 {
		t.Errorf("inner calls = %d, want 1 (second call cached)", len(inner.calls))
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("cached vector differs: %v vs %v", first, second)
	}
	for _, ttl := range store.ttls {
		if ttl != TTL {
			t.Errorf("ttl = %v, want %v", ttl, TTL)
		}
	}
}

func TestEmbedPartialHitPreservesOrder(t *testing.T) {
	inner := &mockEmbedder{vectors: map[string][]float32{
		"a": {1}, "b": {2}, "c": {3},
	}}
	e := New(inner, newMemCache(), "openai|small", nil, zap.NewNop())
	ctx := context.Background()

	// Warm "b" only.
	if _, err := e.Embed(ctx, []string{"b"}, domain.EmbedDocument); err != nil {
		t.Fatalf("warm: %v", err)
	}

	got, err := e.Embed(ctx, []string{"a", "b", "c"}, domain.EmbedDocument)
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	want := [][]float32{{1}, {2}, {3}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("vectors = %v, want %v", got, want)
	}
	// Second call embedded only the two misses.
	if last := inner.calls[len(inner.calls)-1]; !reflect.DeepEqual(last, []string{"a", "c"}) {
		t.Errorf("inner received %v, want misses only", last)
	}
}

func TestEmbedKeyScopesByMode(t *testing.T) {
	inner := &mockEmbedder{vectors: map[string][]float32{"x": {1}}}
	e := New(inner, newMemCache(), "openai|small", nil, zap.NewNop())
	ctx := context.Background()

	if _, err := e.Embed(ctx, []string{"x"}, domain.EmbedQuery); err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if _, err := e.Embed(ctx, []string{"x"}, domain.EmbedDocument); err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(inner.calls) != 2 {
		t.Errorf("inner calls = %d, want 2 (modes cached separately)", len(inner.calls))
	}
}

func TestEmbedProviderError(t *testing.T) {
	inner := &mockEmbedder{err: errors.New("quota exceeded")}
	e := New(inner, newMemCache(), "openai|small", nil, zap.NewNop())

	if _, err := e.Embed(context.Background(), []string{"x"}, domain.EmbedQuery); err == nil {
		t.Error("expected provider error to propagate")
	}
}

func TestEmbedCorruptCacheEntryIgnored(t *testing.T) {
	inner := &mockEmbedder{vectors: map[string][]float32{"x": {1, 2}}}
	store := newMemCache()
	e := New(inner, store, "openai|small", nil, zap.NewNop())
	ctx := context.Background()

	// Poison the exact key with a non-multiple-of-4 payload.
	store.Set(ctx, e.cacheKey(domain.EmbedQuery, "x"), []byte("bad"), TTL)

	got, err := e.Embed(ctx, []string{"x"}, domain.EmbedQuery)
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if !reflect.DeepEqual(got, [][]float32{{1, 2}}) {
		t.Errorf("vectors = %v", got)
	}
	if len(inner.calls) != 1 {
		t.Errorf("inner calls = %d, want 1 (corrupt entry treated as miss)", len(inner.calls))
	}
}

func TestEmbedEmptyInput(t *testing.T) {
	e := New(&mockEmbedder{}, newMemCache(), "openai|small", nil, zap.NewNop())
	got, err := e.Embed(context.Background(), nil, domain.EmbedQuery)
	if err != nil || got != nil {
		t.Errorf("Embed(nil) = %v, %v", got, err)
	}
}

func TestVectorCacheRoundTrip(t *testing.T) {
	in := []float32{0.5, -1.25, 3.75}
	out, err := bytesToVector(vectorToCacheBytes(in))
	if err != nil {
		t.Fatalf("bytesToVector: %v", err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Errorf("round trip = %v, want %v", out, in)
	}
}
