package domain

// Enrichment bounds.
const (
	// MaxKeywords caps enrichment keywords per chunk.
	MaxKeywords = 8
	// MaxHypotheticalQuestions caps generated questions per chunk.
	MaxHypotheticalQuestions = 3
)

// Chunk is a bounded segment of a source document, the atomic unit of
// retrieval. ChunkIndex values are unique and contiguous within a document,
// assigned in document order after all chunks are produced.
type Chunk struct {
	Content      string
	ChunkIndex   int
	ChunkType    SectionType
	SectionTitle string
	StartChar    int
	EndChar      int
}

// Enrichment is LLM-derived retrieval metadata for a chunk. All fields are
// empty when enrichment failed after retries; a chunk is never dropped
// because its enrichment failed.
type Enrichment struct {
	Summary               string   `json:"summary"`
	Keywords              []string `json:"keywords"`
	HypotheticalQuestions []string `json:"hypothetical_questions"`
}

// Clamp truncates enrichment fields to their documented bounds.
func (e Enrichment) Clamp() Enrichment {
	if len(e.Keywords) > MaxKeywords {
		e.Keywords = e.Keywords[:MaxKeywords]
	}
	if len(e.HypotheticalQuestions) > MaxHypotheticalQuestions {
		e.HypotheticalQuestions = e.HypotheticalQuestions[:MaxHypotheticalQuestions]
	}
	return e
}

// EnrichedChunk is a chunk plus its enrichment, ready for embedding and
// persistence.
type EnrichedChunk struct {
	Chunk
	Enrichment
}
