package decompose

import (
	"context"

	"github.com/quarry-ai/quarry/internal/domain"
)

// Generator is the consumer interface for the generation model.
type Generator interface {
	Complete(ctx context.Context, systemPrompt string, messages []domain.Message, params domain.SamplingParams) (string, error)
}
