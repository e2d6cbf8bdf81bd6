// Package classify labels incoming queries by complexity so the answer
// pipeline can route them. Classification never blocks the pipeline: on
// any failure it falls back to the simple category.
package classify

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/quarry-ai/quarry/internal/cache"
	"github.com/quarry-ai/quarry/internal/domain"
	"github.com/quarry-ai/quarry/internal/llmjson"
	"github.com/quarry-ai/quarry/internal/metrics"
)

const (
	cacheTTL    = time.Hour
	callTimeout = 15 * time.Second
	temperature = 0.0
	maxTokens   = 300
)

// Service classifies queries using the generation model, with a short-lived
// cache so repeated questions skip the model call.
type Service struct {
	gen    Generator
	cache  cache.Cache
	logger *zap.Logger
}

// NewService creates a classification service.
func NewService(gen Generator, c cache.Cache, logger *zap.Logger) *Service {
	return &Service{gen: gen, cache: c, logger: logger}
}

// Classify labels a query. It always returns a valid Classification: model
// errors, timeouts and malformed output all resolve to the simple category.
func (s *Service) Classify(ctx context.Context, q domain.Query) domain.Classification {
	key := cacheKey(q)
	if data, ok := s.cache.Get(ctx, key); ok {
		var cls domain.Classification
		if err := json.Unmarshal(data, &cls); err == nil {
			if _, err := domain.ParseCategory(string(cls.Category)); err == nil {
				metrics.CacheTotal.WithLabelValues("classification", "hit").Inc()
				return cls
			}
		}
		// Corrupt entry, fall through to the model.
	}
	metrics.CacheTotal.WithLabelValues("classification", "miss").Inc()

	cls, err := s.classifyLLM(ctx, q)
	if err != nil {
		s.logger.Warn("Classification failed, defaulting to simple",
			zap.Error(err),
			zap.Int("history_len", q.HistoryLen()))
		return fallback()
	}

	if data, err := json.Marshal(cls); err == nil {
		s.cache.Set(ctx, key, data, cacheTTL)
	}
	return cls
}

func (s *Service) classifyLLM(ctx context.Context, q domain.Query) (domain.Classification, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	messages := append(append([]domain.Message{}, q.History()...), domain.Message{
		Role:    domain.RoleUser,
		Content: q.Text(),
	})

	completion, err := s.gen.Complete(ctx, systemPrompt, messages, domain.SamplingParams{
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return domain.Classification{}, err
	}

	var raw struct {
		Category          string `json:"category"`
		Reasoning         string `json:"reasoning"`
		SuggestedApproach string `json:"suggested_approach"`
	}
	if err := llmjson.Unmarshal(completion, &raw); err != nil {
		return domain.Classification{}, err
	}

	category, err := domain.ParseCategory(raw.Category)
	if err != nil {
		return domain.Classification{}, err
	}

	return domain.Classification{
		Category:          category,
		Reasoning:         raw.Reasoning,
		SuggestedApproach: raw.SuggestedApproach,
	}, nil
}

func fallback() domain.Classification {
	return domain.Classification{
		Category:          domain.CategorySimple,
		Reasoning:         "classification failed",
		SuggestedApproach: "standard retrieval",
	}
}

// cacheKey hashes the query text and history length. History content is
// deliberately excluded: the same question with the same amount of context
// classifies the same way.
func cacheKey(q domain.Query) string {
	h := sha256.Sum256([]byte(q.Text() + "\x00" + strconv.Itoa(q.HistoryLen())))
	return "cls:" + hex.EncodeToString(h[:])
}
