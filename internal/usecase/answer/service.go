// Package answer orchestrates the query pipeline: classify, route, retrieve
// and finally stream a grounded answer. Routing is adaptive: simple queries
// pay one retrieval pass, complex queries fan out over sub-queries, and
// conversational queries skip retrieval entirely.
package answer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/quarry-ai/quarry/internal/domain"
)

const (
	generationTimeout = 45 * time.Second

	answerTemperature = 0.7
)

// Service is the question-answering orchestrator.
type Service struct {
	classifier Classifier
	decomposer Decomposer
	retriever  Retriever
	gen        Generator
	analytics  Analytics
	logger     *zap.Logger
}

// NewService creates the orchestrator. analytics may be nil.
func NewService(classifier Classifier, decomposer Decomposer, retriever Retriever, gen Generator, analytics Analytics, logger *zap.Logger) *Service {
	return &Service{
		classifier: classifier,
		decomposer: decomposer,
		retriever:  retriever,
		gen:        gen,
		analytics:  analytics,
		logger:     logger,
	}
}

// Prepare classifies and routes the query, returning the bounded context
// for generation plus routing metadata. It fails only when the route needs
// retrieval and every retrieval pass failed.
func (s *Service) Prepare(ctx context.Context, ownerID string, q domain.Query, filters domain.Filters) (domain.RAGContext, domain.ReasoningMetadata, error) {
	start := time.Now()

	cls := s.classifier.Classify(ctx, q)
	route := s.route(ctx, q, cls)

	md := domain.ReasoningMetadata{
		Category:     cls.Category,
		Reasoning:    cls.Reasoning,
		ToolsInvoked: []string{"classify"},
	}

	var rag domain.RAGContext
	var err error

	switch r := route.(type) {
	case domain.ConversationalRoute:
		// No retrieval: the dialog itself is the context.

	case domain.SimpleRoute:
		md.ToolsInvoked = append(md.ToolsInvoked, "retrieve")
		rag, err = s.retrieveSimple(ctx, ownerID, q, filters)

	case domain.ComplexRoute:
		md.SubQueries = r.Decomposition.SubQueries
		md.Strategy = r.Decomposition.Strategy
		md.ToolsInvoked = append(md.ToolsInvoked, "decompose", "retrieve")
		rag, err = s.retrieveComplex(ctx, ownerID, r.Decomposition, filters)
	}

	md.ChunksRetrieved = len(rag.Entries)
	md.ReasoningTime = time.Since(start)

	if err != nil {
		return domain.RAGContext{}, md, err
	}

	if s.analytics != nil {
		s.analytics.RecordQuery(ctx, ownerID, md)
	}
	s.logger.Info("Query routed",
		zap.String("category", string(md.Category)),
		zap.Int("sub_queries", len(md.SubQueries)),
		zap.Int("chunks", md.ChunksRetrieved),
		zap.Duration("reasoning_time", md.ReasoningTime))

	return rag, md, nil
}

// Answer runs Prepare and streams the generated answer. The returned
// channel is closed after the terminal event.
func (s *Service) Answer(ctx context.Context, ownerID string, q domain.Query, filters domain.Filters) (<-chan domain.StreamEvent, domain.ReasoningMetadata, error) {
	rag, md, err := s.Prepare(ctx, ownerID, q, filters)
	if err != nil {
		return nil, md, err
	}

	genCtx, cancel := context.WithTimeout(ctx, generationTimeout)

	messages := append(append([]domain.Message{}, q.History()...), domain.Message{
		Role:    domain.RoleUser,
		Content: q.Text(),
	})
	stream, err := s.gen.Stream(genCtx, buildSystemPrompt(rag), messages, domain.SamplingParams{
		Temperature: answerTemperature,
	})
	if err != nil {
		cancel()
		return nil, md, fmt.Errorf("%w: %w", domain.ErrGenerationProviderError, err)
	}

	// Relay so the timeout context lives exactly as long as the stream.
	out := make(chan domain.StreamEvent)
	go func() {
		defer cancel()
		defer close(out)
		for ev := range stream {
			out <- ev
		}
	}()

	return out, md, nil
}

// route resolves the classification into a pipeline branch, invoking the
// decomposer only for complex queries.
func (s *Service) route(ctx context.Context, q domain.Query, cls domain.Classification) domain.Route {
	switch cls.Category {
	case domain.CategoryConversational:
		return domain.ConversationalRoute{}
	case domain.CategoryComplex:
		dec := s.decomposer.Decompose(ctx, q)
		if len(dec.SubQueries) == 1 {
			// Decomposition degenerated to the original query; the simple
			// path is cheaper and equivalent.
			return domain.SimpleRoute{}
		}
		return domain.ComplexRoute{Decomposition: dec}
	default:
		return domain.SimpleRoute{}
	}
}

func (s *Service) retrieveSimple(ctx context.Context, ownerID string, q domain.Query, filters domain.Filters) (domain.RAGContext, error) {
	results, err := s.retriever.Retrieve(ctx, ownerID, q.Text(), domain.MaxContextSimple, filters)
	if err != nil {
		return domain.RAGContext{}, fmt.Errorf("%w: %w", domain.ErrRetrievalFailed, err)
	}
	return domain.RAGContext{Entries: results}, nil
}

// retrieveComplex fans retrieval out over the sub-queries, merges with
// per-chunk dedup and caps the context. Individual sub-query failures are
// tolerated; only a full wipe-out fails the query.
func (s *Service) retrieveComplex(ctx context.Context, ownerID string, dec domain.Decomposition, filters domain.Filters) (domain.RAGContext, error) {
	sets := make([][]domain.SearchResult, len(dec.SubQueries))
	errs := make([]error, len(dec.SubQueries))

	runOne := func(i int) {
		results, err := s.retriever.Retrieve(ctx, ownerID, dec.SubQueries[i], domain.MaxContextSimple, filters)
		if err != nil {
			errs[i] = err
			s.logger.Warn("Sub-query retrieval failed",
				zap.String("sub_query", dec.SubQueries[i]),
				zap.Error(err))
			return
		}
		for j := range results {
			results[j].SubQuery = dec.SubQueries[i]
		}
		sets[i] = results
	}

	if dec.Strategy == domain.StrategySequential {
		for i := range dec.SubQueries {
			runOne(i)
		}
	} else {
		var wg sync.WaitGroup
		for i := range dec.SubQueries {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				runOne(i)
			}(i)
		}
		wg.Wait()
	}

	if err := allFailed(errs, len(dec.SubQueries)); err != nil {
		return domain.RAGContext{}, err
	}

	entries := merge(sets)
	if len(entries) > domain.MaxContextComplex {
		entries = entries[:domain.MaxContextComplex]
	}

	return domain.RAGContext{
		Entries:              entries,
		SynthesisInstruction: dec.SynthesisInstruction,
	}, nil
}

// allFailed returns a typed error when every sub-query retrieval failed.
func allFailed(errs []error, total int) error {
	failed := 0
	for _, err := range errs {
		if err != nil {
			failed++
		}
	}
	if failed < total {
		return nil
	}
	return fmt.Errorf("%w: all %d sub-queries failed: %w", domain.ErrRetrievalFailed, total, errors.Join(errs...))
}
