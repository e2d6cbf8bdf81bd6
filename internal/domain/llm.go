package domain

import "context"

// SamplingParams tune a generation call.
type SamplingParams struct {
	Temperature float32
	MaxTokens   int
}

// StreamEvent is one unit of a streamed generation: a token delta, a
// completion marker, or a terminal error.
type StreamEvent struct {
	Token string
	Done  bool
	Err   error
}

// Generator produces text from a system prompt and conversation messages.
// Complete is non-streaming, used for internal reasoning steps; Stream is
// used for user-facing answers.
type Generator interface {
	Complete(ctx context.Context, systemPrompt string, messages []Message, params SamplingParams) (string, error)
	Stream(ctx context.Context, systemPrompt string, messages []Message, params SamplingParams) (<-chan StreamEvent, error)
}

// EmbedMode distinguishes document and query embeddings; some providers
// prepend different instructions per mode.
type EmbedMode string

const (
	// EmbedDocument embeds text for indexing.
	EmbedDocument EmbedMode = "document"
	// EmbedQuery embeds text for search.
	EmbedQuery EmbedMode = "query"
)

// Embedder vectorizes texts, one vector per input in input order.
// Implementations must fail loudly (ErrEmbeddingCountMismatch) when the
// provider returns a different number of vectors than inputs.
type Embedder interface {
	Embed(ctx context.Context, texts []string, mode EmbedMode) ([][]float32, error)
}

// HealthChecker is implemented by providers that can verify upstream
// availability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}
