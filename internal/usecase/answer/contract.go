package answer

import (
	"context"

	"github.com/quarry-ai/quarry/internal/domain"
)

// Classifier labels queries; implementations never fail, defaulting to the
// simple category internally.
type Classifier interface {
	Classify(ctx context.Context, q domain.Query) domain.Classification
}

// Decomposer splits complex queries; implementations never fail, defaulting
// to the original query internally.
type Decomposer interface {
	Decompose(ctx context.Context, q domain.Query) domain.Decomposition
}

// Retriever runs one retrieval pass for one query string.
type Retriever interface {
	Retrieve(ctx context.Context, ownerID, query string, limit int, filters domain.Filters) ([]domain.SearchResult, error)
}

// Generator is the consumer interface for answer generation.
type Generator interface {
	Stream(ctx context.Context, systemPrompt string, messages []domain.Message, params domain.SamplingParams) (<-chan domain.StreamEvent, error)
}

// Analytics records routing outcomes without ever failing the request.
type Analytics interface {
	RecordQuery(ctx context.Context, ownerID string, md domain.ReasoningMetadata)
}
