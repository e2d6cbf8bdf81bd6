package domain

import "time"

// Context size caps per route.
const (
	// MaxContextSimple bounds the context for simple queries.
	MaxContextSimple = 5
	// MaxContextComplex bounds the merged context for complex queries.
	MaxContextComplex = 8
)

// SearchResult is a retrieval candidate. Transient: produced fresh per
// query; Score is single-query-scoped and never persisted.
type SearchResult struct {
	Content               string
	DocumentID            string
	Filename              string
	ChunkIndex            int
	Score                 float64 // [0,1]
	ChunkType             SectionType
	SectionTitle          string
	Summary               string
	Keywords              []string
	HypotheticalQuestions []string
	SubQuery              string // originating sub-query, empty for simple queries
	Reranked              bool
}

// ChunkRef identifies a chunk within a document.
type ChunkRef struct {
	DocumentID string
	ChunkIndex int
}

// Ref returns the result's (documentID, chunkIndex) identity.
func (r SearchResult) Ref() ChunkRef {
	return ChunkRef{DocumentID: r.DocumentID, ChunkIndex: r.ChunkIndex}
}

// RAGContext is the final, ordered, bounded context handed to generation.
type RAGContext struct {
	Entries              []SearchResult
	SynthesisInstruction string // complex queries only
}

// ReasoningMetadata describes how a query was routed, for observability.
// It never affects the generation contract.
type ReasoningMetadata struct {
	Category        Category
	Reasoning       string
	SubQueries      []string
	Strategy        Strategy
	ChunksRetrieved int
	ToolsInvoked    []string
	ReasoningTime   time.Duration
}
