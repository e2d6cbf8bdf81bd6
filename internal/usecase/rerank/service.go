// Package rerank reorders retrieval candidates with the generation model
// and blends in aggregated user feedback. Reranking refines ordering only:
// it never drops below topN results and never blocks the pipeline, falling
// back to the original vector-score order on any failure.
package rerank

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/quarry-ai/quarry/internal/domain"
	"github.com/quarry-ai/quarry/internal/llmjson"
)

const (
	callTimeout = 15 * time.Second
	temperature = 0.0
	maxTokens   = 200

	// previewChars bounds how much of each candidate the model sees.
	previewChars = 300

	// feedbackWeight is the blend factor for aggregated user feedback.
	feedbackWeight = 0.15
)

// Service reranks candidates via the generation model.
type Service struct {
	gen      Generator
	feedback FeedbackSource
	logger   *zap.Logger
}

// NewService creates a reranking service. feedback may be nil, disabling
// the feedback blend.
func NewService(gen Generator, feedback FeedbackSource, logger *zap.Logger) *Service {
	return &Service{gen: gen, feedback: feedback, logger: logger}
}

// Rerank reorders candidates by model-judged relevance and returns the top
// topN, rescored by rank position. On model failure the original top topN
// are returned unchanged with Reranked left false.
func (s *Service) Rerank(ctx context.Context, ownerID, query string, candidates []domain.SearchResult, topN int) []domain.SearchResult {
	if topN > len(candidates) {
		topN = len(candidates)
	}
	if topN <= 0 {
		return nil
	}
	if len(candidates) == 1 {
		out := candidates[0]
		out.Reranked = true
		return []domain.SearchResult{out}
	}

	order, err := s.rankLLM(ctx, query, candidates)
	if err != nil {
		s.logger.Warn("Rerank failed, keeping vector order",
			zap.Error(err),
			zap.Int("candidates", len(candidates)))
		return candidates[:topN]
	}

	results := assemble(candidates, order, topN)
	s.blendFeedback(ctx, ownerID, results)
	return results
}

// rankLLM asks the model for a ranking and returns the validated index
// order: duplicates and out-of-range indices removed, first occurrence wins.
func (s *Service) rankLLM(ctx context.Context, query string, candidates []domain.SearchResult) ([]int, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	completion, err := s.gen.Complete(ctx, systemPrompt, []domain.Message{
		{Role: domain.RoleUser, Content: buildRankingInput(query, candidates)},
	}, domain.SamplingParams{Temperature: temperature, MaxTokens: maxTokens})
	if err != nil {
		return nil, err
	}

	var raw []int
	if err := llmjson.Unmarshal(completion, &raw); err != nil {
		return nil, err
	}

	seen := make(map[int]bool, len(raw))
	order := make([]int, 0, len(raw))
	for _, idx := range raw {
		if idx < 0 || idx >= len(candidates) || seen[idx] {
			continue
		}
		seen[idx] = true
		order = append(order, idx)
	}
	if len(order) == 0 {
		return nil, fmt.Errorf("%w: ranking contains no valid indices", domain.ErrMalformedModelOutput)
	}
	return order, nil
}

// assemble builds the final top-N from the model's order, backfilling from
// the original order when the model ranked fewer than topN candidates.
// Ranked results score by position, backfilled results score zero.
func assemble(candidates []domain.SearchResult, order []int, topN int) []domain.SearchResult {
	if len(order) > topN {
		order = order[:topN]
	}

	used := make(map[int]bool, len(order))
	results := make([]domain.SearchResult, 0, topN)
	for rank, idx := range order {
		r := candidates[idx]
		r.Score = 1.0 - float64(rank)/float64(topN)
		r.Reranked = true
		results = append(results, r)
		used[idx] = true
	}

	for idx := 0; len(results) < topN && idx < len(candidates); idx++ {
		if used[idx] {
			continue
		}
		r := candidates[idx]
		r.Score = 0
		r.Reranked = true
		results = append(results, r)
	}

	return results
}

// blendFeedback folds aggregated thumb signals into the rank scores and
// re-sorts. Chunks below the signal floor keep their rank score; a fetch
// failure leaves the ranking untouched.
func (s *Service) blendFeedback(ctx context.Context, ownerID string, results []domain.SearchResult) {
	if s.feedback == nil || len(results) == 0 {
		return
	}

	refs := make([]domain.ChunkRef, len(results))
	for i, r := range results {
		refs[i] = r.Ref()
	}

	scores, err := s.feedback.GetScores(ctx, ownerID, refs)
	if err != nil {
		s.logger.Warn("Feedback lookup failed, skipping blend", zap.Error(err))
		return
	}

	blended := false
	for i := range results {
		fs, ok := scores[results[i].Ref()]
		if !ok || fs.TotalCount < domain.MinFeedbackSignals {
			continue
		}
		// Map normalized [-1,1] onto [0,1] before mixing with rank score.
		feedbackScore := (fs.NormalizedScore + 1) / 2
		results[i].Score = results[i].Score*(1-feedbackWeight) + feedbackScore*feedbackWeight
		blended = true
	}

	if blended {
		sort.SliceStable(results, func(i, j int) bool {
			return results[i].Score > results[j].Score
		})
	}
}

func buildRankingInput(query string, candidates []domain.SearchResult) string {
	var b strings.Builder
	b.WriteString("Question: ")
	b.WriteString(query)
	b.WriteString("\n\nExcerpts:\n")
	for i, c := range candidates {
		fmt.Fprintf(&b, "[%d] %s\n", i, preview(c.Content))
	}
	return b.String()
}

// preview truncates content to previewChars without splitting a rune.
func preview(content string) string {
	content = strings.ReplaceAll(content, "\n", " ")
	if len(content) <= previewChars {
		return content
	}
	cut := previewChars
	for cut > 0 && !utf8.RuneStart(content[cut]) {
		cut--
	}
	return content[:cut] + "..."
}
