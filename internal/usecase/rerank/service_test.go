package rerank

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/quarry-ai/quarry/internal/domain"
)

type mockGenerator struct {
	completion string
	err        error
	lastInput  string
}

func (m *mockGenerator) Complete(_ context.Context, _ string, messages []domain.Message, _ domain.SamplingParams) (string, error) {
	if len(messages) > 0 {
		m.lastInput = messages[len(messages)-1].Content
	}
	return m.completion, m.err
}

type mockFeedback struct {
	scores map[domain.ChunkRef]domain.FeedbackScore
	err    error
}

func (m *mockFeedback) GetScores(_ context.Context, _ string, _ []domain.ChunkRef) (map[domain.ChunkRef]domain.FeedbackScore, error) {
	return m.scores, m.err
}

func makeCandidates(n int) []domain.SearchResult {
	out := make([]domain.SearchResult, n)
	for i := range out {
		out[i] = domain.SearchResult{
			Content:    fmt.Sprintf("chunk %d content", i),
			DocumentID: "doc-1",
			ChunkIndex: i,
			Score:      1.0 - float64(i)*0.1,
		}
	}
	return out
}

func TestRerankAppliesModelOrder(t *testing.T) {
	gen := &mockGenerator{completion: "[2, 0, 1]"}
	svc := NewService(gen, nil, zap.NewNop())

	results := svc.Rerank(context.Background(), "owner", "question", makeCandidates(3), 3)

	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	wantOrder := []int{2, 0, 1}
	for i, want := range wantOrder {
		if results[i].ChunkIndex != want {
			t.Errorf("results[%d].ChunkIndex = %d, want %d", i, results[i].ChunkIndex, want)
		}
		if !results[i].Reranked {
			t.Errorf("results[%d].Reranked = false", i)
		}
	}
	if results[0].Score != 1.0 {
		t.Errorf("top score = %v, want 1.0", results[0].Score)
	}
	for i := 1; i < len(results); i++ {
		if results[i].Score > results[i-1].Score {
			t.Errorf("scores not descending at %d: %v > %v", i, results[i].Score, results[i-1].Score)
		}
	}
}

// A reranked set must be a permutation of the input: same chunk identities,
// nothing invented, nothing duplicated.
func TestRerankIsPermutation(t *testing.T) {
	completions := []string{
		"[3, 1, 4, 0, 2]",
		"[1, 1, 1, 2]",        // duplicates collapse
		"[9, -1, 2, 0]",       // out-of-range dropped
		"```json\n[4, 3]\n```", // fenced, partial ranking backfills
	}

	for _, completion := range completions {
		t.Run(completion, func(t *testing.T) {
			gen := &mockGenerator{completion: completion}
			svc := NewService(gen, nil, zap.NewNop())

			candidates := makeCandidates(5)
			results := svc.Rerank(context.Background(), "owner", "q", candidates, 5)

			if len(results) != 5 {
				t.Fatalf("got %d results, want 5", len(results))
			}
			seen := make(map[domain.ChunkRef]bool)
			for _, r := range results {
				if seen[r.Ref()] {
					t.Errorf("duplicate chunk %+v", r.Ref())
				}
				seen[r.Ref()] = true
			}
			for _, c := range candidates {
				if !seen[c.Ref()] {
					t.Errorf("missing chunk %+v", c.Ref())
				}
			}
		})
	}
}

func TestRerankTruncatesToTopN(t *testing.T) {
	gen := &mockGenerator{completion: "[0, 1, 2, 3, 4, 5, 6, 7]"}
	svc := NewService(gen, nil, zap.NewNop())

	results := svc.Rerank(context.Background(), "owner", "q", makeCandidates(8), 5)
	if len(results) != 5 {
		t.Errorf("got %d results, want 5", len(results))
	}
}

func TestRerankBackfillsAtZero(t *testing.T) {
	gen := &mockGenerator{completion: "[2]"}
	svc := NewService(gen, nil, zap.NewNop())

	results := svc.Rerank(context.Background(), "owner", "q", makeCandidates(3), 3)

	if results[0].ChunkIndex != 2 {
		t.Errorf("results[0].ChunkIndex = %d, want 2", results[0].ChunkIndex)
	}
	for _, r := range results[1:] {
		if r.Score != 0 {
			t.Errorf("backfilled chunk %d score = %v, want 0", r.ChunkIndex, r.Score)
		}
	}
}

func TestRerankFailsOpenToVectorOrder(t *testing.T) {
	tests := []struct {
		name       string
		completion string
		err        error
	}{
		{name: "generator error", err: errors.New("model unavailable")},
		{name: "malformed output", completion: "the most relevant is excerpt 2"},
		{name: "no valid indices", completion: "[10, 11]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &mockGenerator{completion: tt.completion, err: tt.err}
			svc := NewService(gen, nil, zap.NewNop())

			candidates := makeCandidates(4)
			results := svc.Rerank(context.Background(), "owner", "q", candidates, 3)

			if len(results) != 3 {
				t.Fatalf("got %d results, want 3", len(results))
			}
			for i, r := range results {
				if r.ChunkIndex != candidates[i].ChunkIndex {
					t.Errorf("results[%d].ChunkIndex = %d, want original order %d", i, r.ChunkIndex, candidates[i].ChunkIndex)
				}
				if r.Reranked {
					t.Errorf("results[%d].Reranked = true on fallback", i)
				}
				if r.Score != candidates[i].Score {
					t.Errorf("results[%d].Score = %v, want original %v", i, r.Score, candidates[i].Score)
				}
			}
		})
	}
}

func TestRerankBlendsFeedback(t *testing.T) {
	gen := &mockGenerator{completion: "[0, 1]"}
	fb := &mockFeedback{scores: map[domain.ChunkRef]domain.FeedbackScore{
		{DocumentID: "doc-1", ChunkIndex: 1}: {NormalizedScore: 1.0, TotalCount: 10},
	}}
	svc := NewService(gen, fb, zap.NewNop())

	results := svc.Rerank(context.Background(), "owner", "q", makeCandidates(2), 2)

	// Rank scores: chunk 0 at 1.0, chunk 1 at 0.5. Blending strong positive
	// feedback lifts chunk 1 to 0.5*0.85 + 1.0*0.15 = 0.575, not enough to
	// pass chunk 0 at 1.0*0.85... chunk 0 has no feedback so keeps 1.0.
	if results[0].ChunkIndex != 0 {
		t.Errorf("results[0].ChunkIndex = %d, want 0", results[0].ChunkIndex)
	}
	want := 0.5*(1-feedbackWeight) + 1.0*feedbackWeight
	if diff := results[1].Score - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("blended score = %v, want %v", results[1].Score, want)
	}
}

func TestRerankIgnoresSparseFeedback(t *testing.T) {
	gen := &mockGenerator{completion: "[0, 1]"}
	fb := &mockFeedback{scores: map[domain.ChunkRef]domain.FeedbackScore{
		{DocumentID: "doc-1", ChunkIndex: 1}: {NormalizedScore: 1.0, TotalCount: 1},
	}}
	svc := NewService(gen, fb, zap.NewNop())

	results := svc.Rerank(context.Background(), "owner", "q", makeCandidates(2), 2)
	if results[1].Score != 0.5 {
		t.Errorf("score = %v, want unblended 0.5", results[1].Score)
	}
}

func TestRerankSurvivesFeedbackFailure(t *testing.T) {
	gen := &mockGenerator{completion: "[1, 0]"}
	fb := &mockFeedback{err: errors.New("store down")}
	svc := NewService(gen, fb, zap.NewNop())

	results := svc.Rerank(context.Background(), "owner", "q", makeCandidates(2), 2)
	if results[0].ChunkIndex != 1 {
		t.Errorf("results[0].ChunkIndex = %d, want model order preserved", results[0].ChunkIndex)
	}
}

func TestPreviewBoundsContent(t *testing.T) {
	long := strings.Repeat("é", 400)
	p := preview(long)
	if len(p) > previewChars+3 {
		t.Errorf("preview length %d exceeds bound", len(p))
	}
	if !strings.HasSuffix(p, "...") {
		t.Error("truncated preview missing ellipsis")
	}
	for _, r := range p {
		if r == '�' {
			t.Error("preview split a rune")
		}
	}
}

func TestRerankInputContainsPreviews(t *testing.T) {
	gen := &mockGenerator{completion: "[0]"}
	svc := NewService(gen, nil, zap.NewNop())

	svc.Rerank(context.Background(), "owner", "which chunk?", makeCandidates(2), 1)
	if !strings.Contains(gen.lastInput, "which chunk?") {
		t.Error("ranking input missing the question")
	}
	if !strings.Contains(gen.lastInput, "[0] chunk 0 content") {
		t.Errorf("ranking input missing numbered excerpts: %q", gen.lastInput)
	}
}
