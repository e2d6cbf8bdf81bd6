// Package enrich generates retrieval metadata (summary, keywords,
// hypothetical questions) for chunks during ingestion. Enrichment is
// best-effort per chunk: a chunk whose enrichment fails after retries is
// carried through with empty metadata, never dropped.
package enrich

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/quarry-ai/quarry/internal/domain"
	"github.com/quarry-ai/quarry/internal/llmjson"
	"github.com/quarry-ai/quarry/internal/retry"
)

const (
	defaultBatchSize  = 5
	defaultBatchDelay = 2 * time.Second

	attempts  = 3
	retryBase = 2 * time.Second

	temperature = 0.3
	maxTokens   = 500
)

// Service enriches chunks in rate-limited batches.
type Service struct {
	gen        Generator
	batchSize  int
	batchDelay time.Duration
	logger     *zap.Logger

	// retryBase is shortened in tests.
	retryBase time.Duration
}

// NewService creates an enrichment service. batchSize and batchDelay fall
// back to defaults when non-positive.
func NewService(gen Generator, batchSize int, batchDelay time.Duration, logger *zap.Logger) *Service {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	if batchDelay <= 0 {
		batchDelay = defaultBatchDelay
	}
	return &Service{
		gen:        gen,
		batchSize:  batchSize,
		batchDelay: batchDelay,
		logger:     logger,
		retryBase:  retryBase,
	}
}

// Enrich generates metadata for every chunk. The result has exactly one
// entry per input chunk, in input order; failed chunks carry empty
// enrichment.
func (s *Service) Enrich(ctx context.Context, chunks []domain.Chunk) []domain.EnrichedChunk {
	out := make([]domain.EnrichedChunk, len(chunks))
	for i, c := range chunks {
		out[i].Chunk = c
	}

	for start := 0; start < len(chunks); start += s.batchSize {
		end := start + s.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				out[i].Enrichment = s.enrichChunk(ctx, chunks[i])
			}(i)
		}
		wg.Wait()

		if end < len(chunks) {
			select {
			case <-ctx.Done():
				// Remaining chunks keep empty enrichment.
				return out
			case <-time.After(s.batchDelay):
			}
		}
	}

	return out
}

// enrichChunk enriches one chunk with retries, falling back to empty
// metadata once attempts are exhausted.
func (s *Service) enrichChunk(ctx context.Context, chunk domain.Chunk) domain.Enrichment {
	var enrichment domain.Enrichment

	err := retry.Do(ctx, attempts, s.retryBase, func(ctx context.Context) error {
		e, err := s.enrichOnce(ctx, chunk)
		if err != nil {
			return err
		}
		enrichment = e
		return nil
	})
	if err != nil {
		s.logger.Warn("Enrichment failed, keeping chunk without metadata",
			zap.Int("chunk_index", chunk.ChunkIndex),
			zap.Error(err))
		return domain.Enrichment{}
	}

	return enrichment.Clamp()
}

func (s *Service) enrichOnce(ctx context.Context, chunk domain.Chunk) (domain.Enrichment, error) {
	completion, err := s.gen.Complete(ctx, systemPrompt, []domain.Message{
		{Role: domain.RoleUser, Content: chunk.Content},
	}, domain.SamplingParams{Temperature: temperature, MaxTokens: maxTokens})
	if err != nil {
		return domain.Enrichment{}, err
	}

	var e domain.Enrichment
	if err := llmjson.Unmarshal(completion, &e); err != nil {
		return domain.Enrichment{}, err
	}
	return e, nil
}
