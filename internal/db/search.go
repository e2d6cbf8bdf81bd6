package db

import "github.com/quarry-ai/quarry/internal/domain"

// Indexed field names shared by the index schema and the query builder.
const (
	FieldOwner     = "owner"
	FieldDocID     = "doc_id"
	FieldFileType  = "file_type"
	FieldCreatedAt = "created_at"
	FieldContent   = "content"
	FieldVector    = "vector"
)

// KNNQuery is the input for vector similarity search, optionally narrowed by
// an owner scope and structured predicates (hybrid search).
type KNNQuery struct {
	IndexName    string
	Vector       []float32
	K            int
	OwnerID      string
	Filters      domain.Filters
	ReturnFields []string
}

// SearchResult is the output of a search operation.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is a single document hit from a search.
type SearchEntry struct {
	Key    string
	Score  float64
	Fields map[string]string
}
