// Package retrieve executes one retrieval pass: embed the query, search the
// vector index for an over-fetched candidate set, then rerank down to the
// requested limit.
package retrieve

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/quarry-ai/quarry/internal/domain"
	"github.com/quarry-ai/quarry/internal/metrics"
)

const (
	searchTimeout = 10 * time.Second

	// maxFetch caps over-fetching regardless of the requested limit.
	maxFetch = 20
)

// Service is the single-query retrieval pipeline.
type Service struct {
	embedder Embedder
	index    Index
	reranker Reranker
	logger   *zap.Logger
}

// NewService creates a retrieval service.
func NewService(embedder Embedder, index Index, reranker Reranker, logger *zap.Logger) *Service {
	return &Service{embedder: embedder, index: index, reranker: reranker, logger: logger}
}

// Retrieve returns up to limit results for the query, reranked. It
// over-fetches from the index so the reranker has candidates to demote.
// Embedding and search failures are returned to the caller; reranking
// cannot fail.
func (s *Service) Retrieve(ctx context.Context, ownerID, query string, limit int, filters domain.Filters) ([]domain.SearchResult, error) {
	if limit <= 0 {
		return nil, nil
	}

	vectors, err := s.embedder.Embed(ctx, []string{query}, domain.EmbedQuery)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	fetchK := limit * 2
	if fetchK > maxFetch {
		fetchK = maxFetch
	}

	searchCtx, cancel := context.WithTimeout(ctx, searchTimeout)
	defer cancel()

	candidates, err := s.index.Search(searchCtx, ownerID, vectors[0], fetchK, filters)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	metrics.ChunksRetrieved.Observe(float64(len(candidates)))

	if len(candidates) == 0 {
		s.logger.Debug("No candidates for query", zap.String("owner_id", ownerID))
		return nil, nil
	}
	if len(candidates) == 1 {
		// Nothing to reorder.
		return candidates, nil
	}

	return s.reranker.Rerank(ctx, ownerID, query, candidates, limit), nil
}
