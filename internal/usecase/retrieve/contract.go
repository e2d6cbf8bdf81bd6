package retrieve

import (
	"context"

	"github.com/quarry-ai/quarry/internal/domain"
)

// Embedder is the consumer interface for query vectorization.
type Embedder interface {
	Embed(ctx context.Context, texts []string, mode domain.EmbedMode) ([][]float32, error)
}

// Index is the consumer interface for the vector index.
type Index interface {
	Search(ctx context.Context, ownerID string, vector []float32, k int, filters domain.Filters) ([]domain.SearchResult, error)
}

// Reranker reorders candidates; implementations never fail, falling back to
// the input order internally.
type Reranker interface {
	Rerank(ctx context.Context, ownerID, query string, candidates []domain.SearchResult, topN int) []domain.SearchResult
}
