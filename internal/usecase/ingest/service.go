// Package ingest runs the document pipeline: parse into sections, chunk on
// structural boundaries, enrich, embed and persist. One call per uploaded
// file.
package ingest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/quarry-ai/quarry/internal/chunker"
	"github.com/quarry-ai/quarry/internal/docparse"
	"github.com/quarry-ai/quarry/internal/domain"
)

// embedBatchSize is how many chunk texts go into one embedding request.
const embedBatchSize = 16

// Service is the ingestion pipeline.
type Service struct {
	enricher  Enricher
	embedder  Embedder
	index     Index
	pool      *ants.Pool
	chunkOpts chunker.Options
	logger    *zap.Logger
}

// NewService creates an ingestion service. The pool bounds concurrent
// embedding requests across all in-flight ingestions.
func NewService(enricher Enricher, embedder Embedder, index Index, pool *ants.Pool, opts chunker.Options, logger *zap.Logger) *Service {
	return &Service{
		enricher:  enricher,
		embedder:  embedder,
		index:     index,
		pool:      pool,
		chunkOpts: opts,
		logger:    logger,
	}
}

// Ingest processes one file and returns the stored document's metadata.
func (s *Service) Ingest(ctx context.Context, ownerID, filename string, data []byte) (domain.Document, error) {
	structured, err := docparse.Parse(filename, data)
	if err != nil {
		return domain.Document{}, err
	}

	chunks := chunker.Chunk(structured, s.chunkOpts)
	if len(chunks) == 0 {
		return domain.Document{}, fmt.Errorf("%s: document has no extractable content", filename)
	}

	enriched := s.enricher.Enrich(ctx, chunks)

	vectors, err := s.embedAll(ctx, enriched)
	if err != nil {
		return domain.Document{}, fmt.Errorf("embed chunks: %w", err)
	}

	doc := domain.Document{
		ID:         uuid.NewString(),
		OwnerID:    ownerID,
		Filename:   filename,
		FileType:   docparse.FileType(filename),
		CreatedAt:  time.Now().UTC(),
		ChunkCount: len(enriched),
	}
	if err := s.index.StoreChunks(ctx, doc, enriched, vectors); err != nil {
		return domain.Document{}, err
	}

	s.logger.Info("Document ingested",
		zap.String("doc_id", doc.ID),
		zap.String("filename", filename),
		zap.Int("chunks", len(enriched)))
	return doc, nil
}

// GetDocument returns one document's metadata.
func (s *Service) GetDocument(ctx context.Context, ownerID, docID string) (domain.Document, error) {
	return s.index.GetDocument(ctx, ownerID, docID)
}

// ListDocuments returns the owner's documents.
func (s *Service) ListDocuments(ctx context.Context, ownerID string) ([]domain.Document, error) {
	return s.index.ListDocuments(ctx, ownerID)
}

// DeleteDocument removes a document and its chunks.
func (s *Service) DeleteDocument(ctx context.Context, ownerID, docID string) error {
	return s.index.DeleteDocument(ctx, ownerID, docID)
}

// embedAll vectorizes every chunk, batched and fanned out over the worker
// pool. The result is parallel to the input.
func (s *Service) embedAll(ctx context.Context, chunks []domain.EnrichedChunk) ([][]float32, error) {
	vectors := make([][]float32, len(chunks))

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	setErr := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
	}

	for start := 0; start < len(chunks); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}

		texts := make([]string, end-start)
		for i := start; i < end; i++ {
			texts[i-start] = embedText(chunks[i])
		}

		wg.Add(1)
		offset := start
		task := func() {
			defer wg.Done()
			batch, err := s.embedder.Embed(ctx, texts, domain.EmbedDocument)
			if err != nil {
				setErr(err)
				return
			}
			copy(vectors[offset:], batch)
		}
		if err := s.pool.Submit(task); err != nil {
			wg.Done()
			setErr(fmt.Errorf("submit embed batch: %w", err))
			break
		}
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return vectors, nil
}

// embedText is what actually gets vectorized for a chunk: the content plus
// the enrichment signals that help recall.
func embedText(c domain.EnrichedChunk) string {
	var b strings.Builder
	if c.SectionTitle != "" {
		b.WriteString(c.SectionTitle)
		b.WriteString("\n")
	}
	b.WriteString(c.Content)
	if c.Summary != "" {
		b.WriteString("\n")
		b.WriteString(c.Summary)
	}
	if len(c.HypotheticalQuestions) > 0 {
		b.WriteString("\n")
		b.WriteString(strings.Join(c.HypotheticalQuestions, "\n"))
	}
	return b.String()
}
