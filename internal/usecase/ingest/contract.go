package ingest

import (
	"context"

	"github.com/quarry-ai/quarry/internal/domain"
)

// Enricher generates retrieval metadata for chunks; implementations never
// drop chunks or fail the batch.
type Enricher interface {
	Enrich(ctx context.Context, chunks []domain.Chunk) []domain.EnrichedChunk
}

// Embedder is the consumer interface for document vectorization.
type Embedder interface {
	Embed(ctx context.Context, texts []string, mode domain.EmbedMode) ([][]float32, error)
}

// Index is the consumer interface for chunk persistence.
type Index interface {
	StoreChunks(ctx context.Context, doc domain.Document, chunks []domain.EnrichedChunk, vectors [][]float32) error
	GetDocument(ctx context.Context, ownerID, docID string) (domain.Document, error)
	ListDocuments(ctx context.Context, ownerID string) ([]domain.Document, error)
	DeleteDocument(ctx context.Context, ownerID, docID string) error
}
