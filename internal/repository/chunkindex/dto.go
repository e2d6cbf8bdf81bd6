package chunkindex

import (
	"encoding/binary"
	"encoding/json"
	"math"
	"strconv"
	"time"

	"github.com/quarry-ai/quarry/internal/db"
	"github.com/quarry-ai/quarry/internal/domain"
)

// Hash fields beyond the indexed ones in the db package.
const (
	fieldChunkIndex   = "chunk_index"
	fieldFilename     = "filename"
	fieldChunkType    = "chunk_type"
	fieldSectionTitle = "section_title"
	fieldSummary      = "summary"
	fieldKeywords     = "keywords"
	fieldQuestions    = "questions"
	fieldChunkCount   = "chunk_count"
)

// returnFields is what search reads back; the vector blob stays out.
var returnFields = []string{
	db.FieldContent,
	db.FieldDocID,
	db.FieldFileType,
	fieldChunkIndex,
	fieldFilename,
	fieldChunkType,
	fieldSectionTitle,
	fieldSummary,
	fieldKeywords,
	fieldQuestions,
}

// chunkFields flattens an enriched chunk into redis hash fields.
func chunkFields(doc domain.Document, chunk domain.EnrichedChunk, vector []float32) map[string]string {
	fields := map[string]string{
		db.FieldOwner:     doc.OwnerID,
		db.FieldDocID:     doc.ID,
		db.FieldFileType:  doc.FileType,
		db.FieldCreatedAt: strconv.FormatInt(doc.CreatedAt.Unix(), 10),
		db.FieldContent:   chunk.Content,
		db.FieldVector:    string(vectorToBytes(vector)),
		fieldChunkIndex:   strconv.Itoa(chunk.ChunkIndex),
		fieldFilename:     doc.Filename,
		fieldChunkType:    string(chunk.ChunkType),
		fieldSectionTitle: chunk.SectionTitle,
		fieldSummary:      chunk.Summary,
	}
	if len(chunk.Keywords) > 0 {
		if data, err := json.Marshal(chunk.Keywords); err == nil {
			fields[fieldKeywords] = string(data)
		}
	}
	if len(chunk.HypotheticalQuestions) > 0 {
		if data, err := json.Marshal(chunk.HypotheticalQuestions); err == nil {
			fields[fieldQuestions] = string(data)
		}
	}
	return fields
}

// documentFields flattens document metadata into redis hash fields.
func documentFields(doc domain.Document) map[string]string {
	return map[string]string{
		db.FieldOwner:     doc.OwnerID,
		db.FieldDocID:     doc.ID,
		db.FieldFileType:  doc.FileType,
		db.FieldCreatedAt: strconv.FormatInt(doc.CreatedAt.Unix(), 10),
		fieldFilename:     doc.Filename,
		fieldChunkCount:   strconv.Itoa(doc.ChunkCount),
	}
}

// documentFromFields rebuilds document metadata from a redis hash.
func documentFromFields(fields map[string]string) domain.Document {
	createdAt, _ := strconv.ParseInt(fields[db.FieldCreatedAt], 10, 64)
	chunkCount, _ := strconv.Atoi(fields[fieldChunkCount])
	return domain.Document{
		ID:         fields[db.FieldDocID],
		OwnerID:    fields[db.FieldOwner],
		Filename:   fields[fieldFilename],
		FileType:   fields[db.FieldFileType],
		CreatedAt:  time.Unix(createdAt, 0).UTC(),
		ChunkCount: chunkCount,
	}
}

// resultFromEntry converts a search hit into a domain result.
func resultFromEntry(e db.SearchEntry) domain.SearchResult {
	chunkIndex, _ := strconv.Atoi(e.Fields[fieldChunkIndex])

	r := domain.SearchResult{
		Content:      e.Fields[db.FieldContent],
		DocumentID:   e.Fields[db.FieldDocID],
		Filename:     e.Fields[fieldFilename],
		ChunkIndex:   chunkIndex,
		Score:        e.Score,
		ChunkType:    domain.SectionType(e.Fields[fieldChunkType]),
		SectionTitle: e.Fields[fieldSectionTitle],
		Summary:      e.Fields[fieldSummary],
	}
	if raw := e.Fields[fieldKeywords]; raw != "" {
		_ = json.Unmarshal([]byte(raw), &r.Keywords)
	}
	if raw := e.Fields[fieldQuestions]; raw != "" {
		_ = json.Unmarshal([]byte(raw), &r.HypotheticalQuestions)
	}
	return r
}

func vectorToBytes(vector []float32) []byte {
	buf := make([]byte, 4*len(vector))
	for i, v := range vector {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}
