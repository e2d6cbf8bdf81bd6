package ingest

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/quarry-ai/quarry/internal/chunker"
	"github.com/quarry-ai/quarry/internal/domain"
)

type passthroughEnricher struct{}

func (passthroughEnricher) Enrich(_ context.Context, chunks []domain.Chunk) []domain.EnrichedChunk {
	out := make([]domain.EnrichedChunk, len(chunks))
	for i, c := range chunks {
		out[i] = domain.EnrichedChunk{
			Chunk:      c,
			Enrichment: domain.Enrichment{Summary: "summary of " + c.SectionTitle},
		}
	}
	return out
}

type mockEmbedder struct {
	mu    sync.Mutex
	err   error
	texts []string
}

func (m *mockEmbedder) Embed(_ context.Context, texts []string, _ domain.EmbedMode) ([][]float32, error) {
	m.mu.Lock()
	m.texts = append(m.texts, texts...)
	m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{float32(len(texts[i])), 0}
	}
	return out, nil
}

type mockIndex struct {
	doc     domain.Document
	chunks  []domain.EnrichedChunk
	vectors [][]float32
	err     error
}

func (m *mockIndex) StoreChunks(_ context.Context, doc domain.Document, chunks []domain.EnrichedChunk, vectors [][]float32) error {
	m.doc, m.chunks, m.vectors = doc, chunks, vectors
	return m.err
}

func (m *mockIndex) GetDocument(context.Context, string, string) (domain.Document, error) {
	return m.doc, nil
}

func (m *mockIndex) ListDocuments(context.Context, string) ([]domain.Document, error) {
	return []domain.Document{m.doc}, nil
}

func (m *mockIndex) DeleteDocument(context.Context, string, string) error { return nil }

func newTestService(t *testing.T, embedder Embedder, index Index) *Service {
	t.Helper()
	pool, err := ants.NewPool(4)
	if err != nil {
		t.Fatalf("ants.NewPool failed: %v", err)
	}
	t.Cleanup(pool.Release)
	return NewService(passthroughEnricher{}, embedder, index, pool, chunker.DefaultOptions(), zap.NewNop())
}

const testMarkdown = `# Refund Policy

Customers may request a refund within 30 days of purchase.

## Exceptions

Digital goods are non-refundable once downloaded.
`

func TestIngestStoresChunksWithVectors(t *testing.T) {
	embedder := &mockEmbedder{}
	index := &mockIndex{}
	svc := newTestService(t, embedder, index)

	doc, err := svc.Ingest(context.Background(), "owner-1", "policy.md", []byte(testMarkdown))
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}

	if doc.ID == "" {
		t.Error("document ID is empty")
	}
	if doc.OwnerID != "owner-1" {
		t.Errorf("OwnerID = %q, want owner-1", doc.OwnerID)
	}
	if doc.FileType != "md" {
		t.Errorf("FileType = %q, want md", doc.FileType)
	}
	if len(index.chunks) == 0 {
		t.Fatal("no chunks stored")
	}
	if len(index.chunks) != len(index.vectors) {
		t.Errorf("chunks/vectors mismatch: %d vs %d", len(index.chunks), len(index.vectors))
	}
	if doc.ChunkCount != len(index.chunks) {
		t.Errorf("ChunkCount = %d, want %d", doc.ChunkCount, len(index.chunks))
	}
}

func TestIngestEmbedsEnrichmentSignals(t *testing.T) {
	embedder := &mockEmbedder{}
	svc := newTestService(t, embedder, &mockIndex{})

	if _, err := svc.Ingest(context.Background(), "owner-1", "policy.md", []byte(testMarkdown)); err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}

	found := false
	for _, text := range embedder.texts {
		if strings.Contains(text, "summary of") {
			found = true
			break
		}
	}
	if !found {
		t.Error("embedded texts never include the enrichment summary")
	}
}

func TestIngestRejectsUnsupportedType(t *testing.T) {
	svc := newTestService(t, &mockEmbedder{}, &mockIndex{})

	_, err := svc.Ingest(context.Background(), "owner-1", "slides.pptx", []byte("x"))
	if !errors.Is(err, domain.ErrUnsupportedFileType) {
		t.Errorf("err = %v, want ErrUnsupportedFileType", err)
	}
}

func TestIngestRejectsEmptyDocument(t *testing.T) {
	svc := newTestService(t, &mockEmbedder{}, &mockIndex{})

	if _, err := svc.Ingest(context.Background(), "owner-1", "empty.txt", []byte("   \n\n  ")); err == nil {
		t.Error("expected error for content-free document")
	}
}

func TestIngestPropagatesEmbedFailure(t *testing.T) {
	embedErr := errors.New("provider down")
	svc := newTestService(t, &mockEmbedder{err: embedErr}, &mockIndex{})

	if _, err := svc.Ingest(context.Background(), "owner-1", "policy.md", []byte(testMarkdown)); !errors.Is(err, embedErr) {
		t.Errorf("err = %v, want wrapped %v", err, embedErr)
	}
}

func TestIngestPropagatesStoreFailure(t *testing.T) {
	storeErr := errors.New("redis down")
	svc := newTestService(t, &mockEmbedder{}, &mockIndex{err: storeErr})

	if _, err := svc.Ingest(context.Background(), "owner-1", "policy.md", []byte(testMarkdown)); !errors.Is(err, storeErr) {
		t.Errorf("err = %v, want wrapped %v", err, storeErr)
	}
}
