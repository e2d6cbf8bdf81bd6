package decompose

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/quarry-ai/quarry/internal/domain"
)

type mockGenerator struct {
	completion string
	err        error
}

func (m *mockGenerator) Complete(_ context.Context, _ string, _ []domain.Message, _ domain.SamplingParams) (string, error) {
	return m.completion, m.err
}

func mustQuery(t *testing.T, text string) domain.Query {
	t.Helper()
	q, err := domain.NewQuery(text, nil)
	if err != nil {
		t.Fatalf("NewQuery(%q) failed: %v", text, err)
	}
	return q
}

func TestDecomposeParsesModelOutput(t *testing.T) {
	gen := &mockGenerator{completion: `{
		"sub_queries": ["what was the Q1 budget?", "what was the Q2 budget?"],
		"strategy": "sequential",
		"synthesis_instruction": "Compare the two budgets line by line."
	}`}
	svc := NewService(gen, zap.NewNop())

	dec := svc.Decompose(context.Background(), mustQuery(t, "compare Q1 and Q2 budgets"))

	if len(dec.SubQueries) != 2 {
		t.Fatalf("got %d sub-queries, want 2", len(dec.SubQueries))
	}
	if dec.Strategy != domain.StrategySequential {
		t.Errorf("Strategy = %q, want %q", dec.Strategy, domain.StrategySequential)
	}
	if dec.SynthesisInstruction == "" {
		t.Error("SynthesisInstruction is empty")
	}
}

func TestDecomposeTruncatesToMax(t *testing.T) {
	gen := &mockGenerator{completion: `{
		"sub_queries": ["a", "b", "c", "d", "e", "f"],
		"strategy": "parallel",
		"synthesis_instruction": "combine"
	}`}
	svc := NewService(gen, zap.NewNop())

	dec := svc.Decompose(context.Background(), mustQuery(t, "broad question"))
	if len(dec.SubQueries) != domain.MaxSubQueries {
		t.Errorf("got %d sub-queries, want %d", len(dec.SubQueries), domain.MaxSubQueries)
	}
}

func TestDecomposeFailsOpenToOriginalQuery(t *testing.T) {
	tests := []struct {
		name       string
		completion string
		err        error
	}{
		{name: "generator error", err: errors.New("model unavailable")},
		{name: "malformed json", completion: "here are some sub-questions:"},
		{name: "empty sub-queries", completion: `{"sub_queries": [], "strategy": "parallel", "synthesis_instruction": "x"}`},
		{name: "blank sub-queries", completion: `{"sub_queries": ["  ", ""], "strategy": "parallel", "synthesis_instruction": "x"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &mockGenerator{completion: tt.completion, err: tt.err}
			svc := NewService(gen, zap.NewNop())

			q := mustQuery(t, "compare Q1 and Q2 budgets")
			dec := svc.Decompose(context.Background(), q)

			if len(dec.SubQueries) < 1 || len(dec.SubQueries) > domain.MaxSubQueries {
				t.Fatalf("sub-query count %d outside [1, %d]", len(dec.SubQueries), domain.MaxSubQueries)
			}
			if dec.SubQueries[0] != q.Text() {
				t.Errorf("SubQueries[0] = %q, want original query", dec.SubQueries[0])
			}
			if dec.Strategy != domain.StrategyParallel {
				t.Errorf("Strategy = %q, want %q", dec.Strategy, domain.StrategyParallel)
			}
		})
	}
}

func TestDecomposeNormalizesUnknownStrategy(t *testing.T) {
	gen := &mockGenerator{completion: `{
		"sub_queries": ["a", "b"],
		"strategy": "concurrent",
		"synthesis_instruction": "combine"
	}`}
	svc := NewService(gen, zap.NewNop())

	dec := svc.Decompose(context.Background(), mustQuery(t, "question"))
	if dec.Strategy != domain.StrategyParallel {
		t.Errorf("Strategy = %q, want %q", dec.Strategy, domain.StrategyParallel)
	}
}
