// Package decompose breaks complex queries into focused sub-queries for
// retrieval fan-out. Like classification it never blocks the pipeline: any
// failure falls back to treating the original query as the only sub-query.
package decompose

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/quarry-ai/quarry/internal/domain"
	"github.com/quarry-ai/quarry/internal/llmjson"
)

const (
	callTimeout = 15 * time.Second
	temperature = 0.2
	maxTokens   = 500

	fallbackInstruction = "Answer the question using the retrieved context."
)

// Service decomposes complex queries using the generation model.
type Service struct {
	gen    Generator
	logger *zap.Logger
}

// NewService creates a decomposition service.
func NewService(gen Generator, logger *zap.Logger) *Service {
	return &Service{gen: gen, logger: logger}
}

// Decompose splits a query into sub-queries. The result always has at least
// one sub-query and at most domain.MaxSubQueries; on any failure the
// original query is the single sub-query with the parallel strategy.
func (s *Service) Decompose(ctx context.Context, q domain.Query) domain.Decomposition {
	dec, err := s.decomposeLLM(ctx, q)
	if err != nil {
		s.logger.Warn("Decomposition failed, using original query", zap.Error(err))
		return fallback(q)
	}
	return dec
}

func (s *Service) decomposeLLM(ctx context.Context, q domain.Query) (domain.Decomposition, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	completion, err := s.gen.Complete(ctx, systemPrompt, []domain.Message{
		{Role: domain.RoleUser, Content: q.Text()},
	}, domain.SamplingParams{Temperature: temperature, MaxTokens: maxTokens})
	if err != nil {
		return domain.Decomposition{}, err
	}

	var raw struct {
		SubQueries           []string `json:"sub_queries"`
		Strategy             string   `json:"strategy"`
		SynthesisInstruction string   `json:"synthesis_instruction"`
	}
	if err := llmjson.Unmarshal(completion, &raw); err != nil {
		return domain.Decomposition{}, err
	}

	subQueries := make([]string, 0, len(raw.SubQueries))
	for _, sq := range raw.SubQueries {
		if sq = strings.TrimSpace(sq); sq != "" {
			subQueries = append(subQueries, sq)
		}
	}
	if len(subQueries) == 0 {
		subQueries = []string{q.Text()}
	}
	if len(subQueries) > domain.MaxSubQueries {
		subQueries = subQueries[:domain.MaxSubQueries]
	}

	strategy := domain.StrategyParallel
	if domain.Strategy(raw.Strategy) == domain.StrategySequential {
		strategy = domain.StrategySequential
	}

	instruction := strings.TrimSpace(raw.SynthesisInstruction)
	if instruction == "" {
		instruction = fallbackInstruction
	}

	return domain.Decomposition{
		SubQueries:           subQueries,
		Strategy:             strategy,
		SynthesisInstruction: instruction,
	}, nil
}

func fallback(q domain.Query) domain.Decomposition {
	return domain.Decomposition{
		SubQueries:           []string{q.Text()},
		Strategy:             domain.StrategyParallel,
		SynthesisInstruction: fallbackInstruction,
	}
}
