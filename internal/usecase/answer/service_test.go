package answer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/quarry-ai/quarry/internal/domain"
)

type mockClassifier struct {
	cls domain.Classification
}

func (m *mockClassifier) Classify(context.Context, domain.Query) domain.Classification {
	return m.cls
}

type mockDecomposer struct {
	dec    domain.Decomposition
	called bool
}

func (m *mockDecomposer) Decompose(context.Context, domain.Query) domain.Decomposition {
	m.called = true
	return m.dec
}

type mockRetriever struct {
	mu      sync.Mutex
	results map[string][]domain.SearchResult
	errs    map[string]error
	queries []string
}

func newMockRetriever() *mockRetriever {
	return &mockRetriever{
		results: make(map[string][]domain.SearchResult),
		errs:    make(map[string]error),
	}
}

func (m *mockRetriever) Retrieve(_ context.Context, _, query string, limit int, _ domain.Filters) ([]domain.SearchResult, error) {
	m.mu.Lock()
	m.queries = append(m.queries, query)
	m.mu.Unlock()
	if err := m.errs[query]; err != nil {
		return nil, err
	}
	results := m.results[query]
	if limit < len(results) {
		results = results[:limit]
	}
	return results, nil
}

type mockGenerator struct {
	tokens     []string
	err        error
	lastSystem string
}

func (m *mockGenerator) Stream(_ context.Context, systemPrompt string, _ []domain.Message, _ domain.SamplingParams) (<-chan domain.StreamEvent, error) {
	m.lastSystem = systemPrompt
	if m.err != nil {
		return nil, m.err
	}
	ch := make(chan domain.StreamEvent, len(m.tokens)+1)
	for _, tok := range m.tokens {
		ch <- domain.StreamEvent{Token: tok}
	}
	ch <- domain.StreamEvent{Done: true}
	close(ch)
	return ch, nil
}

type mockAnalytics struct {
	mu       sync.Mutex
	recorded []domain.ReasoningMetadata
}

func (m *mockAnalytics) RecordQuery(_ context.Context, _ string, md domain.ReasoningMetadata) {
	m.mu.Lock()
	m.recorded = append(m.recorded, md)
	m.mu.Unlock()
}

func classification(cat domain.Category) domain.Classification {
	return domain.Classification{Category: cat, Reasoning: "test", SuggestedApproach: "test"}
}

func result(docID string, chunkIndex int, score float64) domain.SearchResult {
	return domain.SearchResult{
		Content:    fmt.Sprintf("content %s/%d", docID, chunkIndex),
		DocumentID: docID,
		Filename:   docID + ".md",
		ChunkIndex: chunkIndex,
		Score:      score,
	}
}

func mustQuery(t *testing.T, text string) domain.Query {
	t.Helper()
	q, err := domain.NewQuery(text, nil)
	if err != nil {
		t.Fatalf("NewQuery(%q) failed: %v", text, err)
	}
	return q
}

func TestPrepareSimpleRoute(t *testing.T) {
	retriever := newMockRetriever()
	retriever.results["what is the refund policy?"] = []domain.SearchResult{
		result("policy", 0, 0.9),
		result("policy", 1, 0.8),
	}
	dec := &mockDecomposer{}
	analytics := &mockAnalytics{}
	svc := NewService(&mockClassifier{cls: classification(domain.CategorySimple)}, dec, retriever, &mockGenerator{}, analytics, zap.NewNop())

	rag, md, err := svc.Prepare(context.Background(), "owner-1", mustQuery(t, "what is the refund policy?"), domain.Filters{})
	if err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}

	if len(rag.Entries) != 2 {
		t.Errorf("got %d entries, want 2", len(rag.Entries))
	}
	if md.Category != domain.CategorySimple {
		t.Errorf("Category = %q, want simple", md.Category)
	}
	if dec.called {
		t.Error("decomposer invoked on simple route")
	}
	if len(retriever.queries) != 1 {
		t.Errorf("retrieval passes = %d, want 1", len(retriever.queries))
	}
	if md.ChunksRetrieved != 2 {
		t.Errorf("ChunksRetrieved = %d, want 2", md.ChunksRetrieved)
	}
	if len(analytics.recorded) != 1 {
		t.Errorf("analytics recorded %d times, want 1", len(analytics.recorded))
	}
}

func TestPrepareConversationalSkipsRetrieval(t *testing.T) {
	retriever := newMockRetriever()
	svc := NewService(&mockClassifier{cls: classification(domain.CategoryConversational)}, &mockDecomposer{}, retriever, &mockGenerator{}, nil, zap.NewNop())

	rag, md, err := svc.Prepare(context.Background(), "owner-1", mustQuery(t, "can you rephrase that?"), domain.Filters{})
	if err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}

	if len(rag.Entries) != 0 {
		t.Errorf("got %d entries, want 0", len(rag.Entries))
	}
	if len(retriever.queries) != 0 {
		t.Errorf("retriever invoked %d times on conversational route", len(retriever.queries))
	}
	if md.Category != domain.CategoryConversational {
		t.Errorf("Category = %q, want conversational", md.Category)
	}
}

func TestPrepareComplexFanOut(t *testing.T) {
	for _, strategy := range []domain.Strategy{domain.StrategyParallel, domain.StrategySequential} {
		t.Run(string(strategy), func(t *testing.T) {
			retriever := newMockRetriever()
			retriever.results["q1 budget?"] = []domain.SearchResult{
				result("budget", 0, 0.9),
				result("budget", 3, 0.5),
			}
			retriever.results["q2 budget?"] = []domain.SearchResult{
				result("budget", 0, 0.7), // duplicate of q1's top chunk, lower score
				result("budget", 7, 0.8),
			}

			svc := NewService(
				&mockClassifier{cls: classification(domain.CategoryComplex)},
				&mockDecomposer{dec: domain.Decomposition{
					SubQueries:           []string{"q1 budget?", "q2 budget?"},
					Strategy:             strategy,
					SynthesisInstruction: "compare them",
				}},
				retriever, &mockGenerator{}, nil, zap.NewNop())

			rag, md, err := svc.Prepare(context.Background(), "owner-1", mustQuery(t, "compare q1 and q2 budgets"), domain.Filters{})
			if err != nil {
				t.Fatalf("Prepare failed: %v", err)
			}

			if len(rag.Entries) != 3 {
				t.Fatalf("got %d entries, want 3 after dedup", len(rag.Entries))
			}
			// Duplicate chunk keeps its max score and that instance's annotation.
			top := rag.Entries[0]
			if top.Ref() != (domain.ChunkRef{DocumentID: "budget", ChunkIndex: 0}) {
				t.Errorf("top entry = %+v, want budget/0", top.Ref())
			}
			if top.Score != 0.9 {
				t.Errorf("top score = %v, want max 0.9", top.Score)
			}
			if top.SubQuery != "q1 budget?" {
				t.Errorf("top SubQuery = %q, want the max-score instance's", top.SubQuery)
			}
			for i := 1; i < len(rag.Entries); i++ {
				if rag.Entries[i].Score > rag.Entries[i-1].Score {
					t.Errorf("entries not sorted by score at %d", i)
				}
			}
			if rag.SynthesisInstruction != "compare them" {
				t.Errorf("SynthesisInstruction = %q", rag.SynthesisInstruction)
			}
			if len(md.SubQueries) != 2 || md.Strategy != strategy {
				t.Errorf("metadata = %+v", md)
			}
		})
	}
}

func TestPrepareComplexCapsContext(t *testing.T) {
	retriever := newMockRetriever()
	for i, sq := range []string{"a?", "b?", "c?", "d?"} {
		var results []domain.SearchResult
		for j := 0; j < 5; j++ {
			results = append(results, result(fmt.Sprintf("doc-%d", i), j, float64(10-j)/10))
		}
		retriever.results[sq] = results
	}

	svc := NewService(
		&mockClassifier{cls: classification(domain.CategoryComplex)},
		&mockDecomposer{dec: domain.Decomposition{
			SubQueries: []string{"a?", "b?", "c?", "d?"},
			Strategy:   domain.StrategyParallel,
		}},
		retriever, &mockGenerator{}, nil, zap.NewNop())

	rag, _, err := svc.Prepare(context.Background(), "owner-1", mustQuery(t, "broad question"), domain.Filters{})
	if err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	if len(rag.Entries) != domain.MaxContextComplex {
		t.Errorf("got %d entries, want cap %d", len(rag.Entries), domain.MaxContextComplex)
	}
}

func TestPrepareComplexToleratesPartialFailure(t *testing.T) {
	retriever := newMockRetriever()
	retriever.results["good?"] = []domain.SearchResult{result("doc", 0, 0.9)}
	retriever.errs["bad?"] = errors.New("index down")

	svc := NewService(
		&mockClassifier{cls: classification(domain.CategoryComplex)},
		&mockDecomposer{dec: domain.Decomposition{SubQueries: []string{"good?", "bad?"}, Strategy: domain.StrategyParallel}},
		retriever, &mockGenerator{}, nil, zap.NewNop())

	rag, _, err := svc.Prepare(context.Background(), "owner-1", mustQuery(t, "question"), domain.Filters{})
	if err != nil {
		t.Fatalf("Prepare failed on partial outage: %v", err)
	}
	if len(rag.Entries) != 1 {
		t.Errorf("got %d entries, want 1 from the surviving sub-query", len(rag.Entries))
	}
}

func TestPrepareFailsWhenAllRetrievalFails(t *testing.T) {
	retriever := newMockRetriever()
	retriever.errs["a?"] = errors.New("down")
	retriever.errs["b?"] = errors.New("down")

	svc := NewService(
		&mockClassifier{cls: classification(domain.CategoryComplex)},
		&mockDecomposer{dec: domain.Decomposition{SubQueries: []string{"a?", "b?"}, Strategy: domain.StrategyParallel}},
		retriever, &mockGenerator{}, nil, zap.NewNop())

	_, _, err := svc.Prepare(context.Background(), "owner-1", mustQuery(t, "question"), domain.Filters{})
	if !errors.Is(err, domain.ErrRetrievalFailed) {
		t.Errorf("err = %v, want ErrRetrievalFailed", err)
	}
}

func TestPrepareSimpleRetrievalFailure(t *testing.T) {
	retriever := newMockRetriever()
	retriever.errs["question"] = errors.New("down")

	svc := NewService(&mockClassifier{cls: classification(domain.CategorySimple)}, &mockDecomposer{}, retriever, &mockGenerator{}, nil, zap.NewNop())

	_, _, err := svc.Prepare(context.Background(), "owner-1", mustQuery(t, "question"), domain.Filters{})
	if !errors.Is(err, domain.ErrRetrievalFailed) {
		t.Errorf("err = %v, want ErrRetrievalFailed", err)
	}
}

func TestDegenerateDecompositionUsesSimplePath(t *testing.T) {
	retriever := newMockRetriever()
	retriever.results["question"] = []domain.SearchResult{result("doc", 0, 0.9)}

	dec := &mockDecomposer{dec: domain.Decomposition{SubQueries: []string{"question"}, Strategy: domain.StrategyParallel}}
	svc := NewService(&mockClassifier{cls: classification(domain.CategoryComplex)}, dec, retriever, &mockGenerator{}, nil, zap.NewNop())

	_, md, err := svc.Prepare(context.Background(), "owner-1", mustQuery(t, "question"), domain.Filters{})
	if err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	if len(md.SubQueries) != 0 {
		t.Errorf("metadata carries sub-queries %v for degenerate decomposition", md.SubQueries)
	}
	if len(retriever.queries) != 1 {
		t.Errorf("retrieval passes = %d, want 1", len(retriever.queries))
	}
}

func TestAnswerStreamsTokens(t *testing.T) {
	retriever := newMockRetriever()
	retriever.results["what is the refund policy?"] = []domain.SearchResult{result("policy", 0, 0.9)}
	gen := &mockGenerator{tokens: []string{"Refunds ", "within ", "30 days."}}

	svc := NewService(&mockClassifier{cls: classification(domain.CategorySimple)}, &mockDecomposer{}, retriever, gen, nil, zap.NewNop())

	stream, _, err := svc.Answer(context.Background(), "owner-1", mustQuery(t, "what is the refund policy?"), domain.Filters{})
	if err != nil {
		t.Fatalf("Answer failed: %v", err)
	}

	var sb strings.Builder
	done := false
	for ev := range stream {
		if ev.Err != nil {
			t.Fatalf("stream error: %v", ev.Err)
		}
		if ev.Done {
			done = true
			continue
		}
		sb.WriteString(ev.Token)
	}
	if !done {
		t.Error("stream never signaled Done")
	}
	if sb.String() != "Refunds within 30 days." {
		t.Errorf("answer = %q", sb.String())
	}
	if !strings.Contains(gen.lastSystem, "content policy/0") {
		t.Error("system prompt missing retrieved context")
	}
	if !strings.Contains(gen.lastSystem, "policy.md") {
		t.Error("system prompt missing source filename")
	}
}

func TestAnswerConversationalPrompt(t *testing.T) {
	gen := &mockGenerator{tokens: []string{"Sure."}}
	svc := NewService(&mockClassifier{cls: classification(domain.CategoryConversational)}, &mockDecomposer{}, newMockRetriever(), gen, nil, zap.NewNop())

	stream, _, err := svc.Answer(context.Background(), "owner-1", mustQuery(t, "thanks!"), domain.Filters{})
	if err != nil {
		t.Fatalf("Answer failed: %v", err)
	}
	for range stream {
	}
	if strings.Contains(gen.lastSystem, "Context:") {
		t.Error("conversational prompt carries document context")
	}
}

func TestAnswerGenerationFailure(t *testing.T) {
	gen := &mockGenerator{err: errors.New("provider down")}
	svc := NewService(&mockClassifier{cls: classification(domain.CategoryConversational)}, &mockDecomposer{}, newMockRetriever(), gen, nil, zap.NewNop())

	_, _, err := svc.Answer(context.Background(), "owner-1", mustQuery(t, "hello"), domain.Filters{})
	if !errors.Is(err, domain.ErrGenerationProviderError) {
		t.Errorf("err = %v, want ErrGenerationProviderError", err)
	}
}

func TestMergeKeepsMaxScore(t *testing.T) {
	a := result("doc", 0, 0.5)
	a.SubQuery = "a?"
	b := result("doc", 0, 0.9)
	b.SubQuery = "b?"

	merged := merge([][]domain.SearchResult{{a}, {b}})
	if len(merged) != 1 {
		t.Fatalf("got %d results, want 1", len(merged))
	}
	if merged[0].Score != 0.9 || merged[0].SubQuery != "b?" {
		t.Errorf("merged = %+v, want max-score instance", merged[0])
	}
}
