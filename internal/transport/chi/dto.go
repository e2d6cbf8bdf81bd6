package chi

import (
	"time"

	"github.com/quarry-ai/quarry/internal/domain"
)

// askRequest is the POST /v1/ask body.
type askRequest struct {
	Query   string           `json:"query" validate:"required,max=4000"`
	History []historyMessage `json:"history" validate:"max=6,dive"`
	Filters *filterRequest   `json:"filters"`
	Stream  bool             `json:"stream"`
}

type historyMessage struct {
	Role    string `json:"role" validate:"required,oneof=user assistant"`
	Content string `json:"content" validate:"required"`
}

type filterRequest struct {
	DocumentIDs   []string   `json:"document_ids"`
	FileType      string     `json:"file_type" validate:"omitempty,oneof=md txt pdf"`
	CreatedAfter  *time.Time `json:"created_after"`
	CreatedBefore *time.Time `json:"created_before"`
	Keyword       string     `json:"keyword" validate:"max=200"`
}

// feedbackRequest is the POST /v1/feedback body.
type feedbackRequest struct {
	DocumentID string `json:"document_id" validate:"required"`
	ChunkIndex *int   `json:"chunk_index" validate:"required,gte=0"`
	Helpful    *bool  `json:"helpful" validate:"required"`
}

type askResponse struct {
	Answer   string           `json:"answer"`
	Metadata metadataResponse `json:"metadata"`
}

type metadataResponse struct {
	Category        string   `json:"category"`
	Reasoning       string   `json:"reasoning,omitempty"`
	SubQueries      []string `json:"sub_queries,omitempty"`
	Strategy        string   `json:"strategy,omitempty"`
	ChunksRetrieved int      `json:"chunks_retrieved"`
	ToolsInvoked    []string `json:"tools_invoked"`
	ReasoningMs     int64    `json:"reasoning_ms"`
}

type documentResponse struct {
	ID         string    `json:"id"`
	Filename   string    `json:"filename"`
	FileType   string    `json:"file_type"`
	CreatedAt  time.Time `json:"created_at"`
	ChunkCount int       `json:"chunk_count"`
}

type documentListResponse struct {
	Items []documentResponse `json:"items"`
	Total int                `json:"total"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (r askRequest) toQuery() (domain.Query, error) {
	history := make([]domain.Message, len(r.History))
	for i, m := range r.History {
		history[i] = domain.Message{Role: domain.Role(m.Role), Content: m.Content}
	}
	return domain.NewQuery(r.Query, history)
}

func (r askRequest) toFilters() domain.Filters {
	if r.Filters == nil {
		return domain.Filters{}
	}
	return domain.Filters{
		DocumentIDs:   r.Filters.DocumentIDs,
		FileType:      r.Filters.FileType,
		CreatedAfter:  r.Filters.CreatedAfter,
		CreatedBefore: r.Filters.CreatedBefore,
		Keyword:       r.Filters.Keyword,
	}
}

func metadataToResponse(md domain.ReasoningMetadata) metadataResponse {
	return metadataResponse{
		Category:        string(md.Category),
		Reasoning:       md.Reasoning,
		SubQueries:      md.SubQueries,
		Strategy:        string(md.Strategy),
		ChunksRetrieved: md.ChunksRetrieved,
		ToolsInvoked:    md.ToolsInvoked,
		ReasoningMs:     md.ReasoningTime.Milliseconds(),
	}
}

func documentToResponse(doc domain.Document) documentResponse {
	return documentResponse{
		ID:         doc.ID,
		Filename:   doc.Filename,
		FileType:   doc.FileType,
		CreatedAt:  doc.CreatedAt,
		ChunkCount: doc.ChunkCount,
	}
}
