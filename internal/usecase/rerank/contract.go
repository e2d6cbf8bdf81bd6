package rerank

import (
	"context"

	"github.com/quarry-ai/quarry/internal/domain"
)

// Generator is the consumer interface for the generation model.
type Generator interface {
	Complete(ctx context.Context, systemPrompt string, messages []domain.Message, params domain.SamplingParams) (string, error)
}

// FeedbackSource provides aggregated user feedback for chunks.
type FeedbackSource interface {
	GetScores(ctx context.Context, ownerID string, refs []domain.ChunkRef) (map[domain.ChunkRef]domain.FeedbackScore, error)
}
