// Package chunkindex persists enriched chunks as redis hashes under an FT
// vector index and serves KNN retrieval over them.
package chunkindex

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/quarry-ai/quarry/internal/db"
	"github.com/quarry-ai/quarry/internal/domain"
)

// Config holds the index shape.
type Config struct {
	KeyPrefix       string // key namespace, e.g. "quarry:"
	IndexName       string
	Dimensions      int
	HNSWM           int
	HNSWEFConstruct int
}

// Repository stores and searches enriched chunks.
type Repository struct {
	store  store
	cfg    Config
	logger *zap.Logger
}

// New creates a chunk index repository.
func New(s store, cfg Config, logger *zap.Logger) *Repository {
	return &Repository{store: s, cfg: cfg, logger: logger}
}

// EnsureIndex creates the FT index when it does not exist yet. Idempotent.
func (r *Repository) EnsureIndex(ctx context.Context) error {
	exists, err := r.store.IndexExists(ctx, r.cfg.IndexName)
	if err != nil {
		return fmt.Errorf("check index: %w", err)
	}
	if exists {
		return nil
	}

	def := &db.IndexDefinition{
		Name:     r.cfg.IndexName,
		Prefixes: []string{r.chunkPrefix()},
		Fields: []db.IndexField{
			{Name: db.FieldOwner, Type: db.IndexFieldTag},
			{Name: db.FieldDocID, Type: db.IndexFieldTag},
			{Name: db.FieldFileType, Type: db.IndexFieldTag},
			{Name: db.FieldCreatedAt, Type: db.IndexFieldNumeric},
			{Name: db.FieldContent, Type: db.IndexFieldText},
			{
				Name:              db.FieldVector,
				Type:              db.IndexFieldVector,
				VectorAlgo:        db.VectorHNSW,
				VectorDim:         r.cfg.Dimensions,
				VectorDistance:    db.DistanceCosine,
				VectorM:           r.cfg.HNSWM,
				VectorEFConstruct: r.cfg.HNSWEFConstruct,
			},
		},
	}
	if err := def.Validate(); err != nil {
		return fmt.Errorf("index definition: %w", err)
	}
	if err := r.store.CreateIndex(ctx, def); err != nil {
		return fmt.Errorf("create index: %w", err)
	}

	r.logger.Info("Created chunk index",
		zap.String("index", r.cfg.IndexName),
		zap.Int("dimensions", r.cfg.Dimensions))
	return nil
}

// StoreChunks persists a document's enriched chunks and its metadata record.
// chunks and vectors must be parallel slices.
func (r *Repository) StoreChunks(ctx context.Context, doc domain.Document, chunks []domain.EnrichedChunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunk/vector count mismatch: %d vs %d", len(chunks), len(vectors))
	}

	items := make([]db.HashSetItem, len(chunks))
	for i, chunk := range chunks {
		items[i] = db.HashSetItem{
			Key:    r.chunkKey(doc.ID, chunk.ChunkIndex),
			Fields: chunkFields(doc, chunk, vectors[i]),
		}
	}
	if err := r.store.HSetMulti(ctx, items); err != nil {
		return fmt.Errorf("store chunks: %w", err)
	}

	doc.ChunkCount = len(chunks)
	if err := r.store.HSet(ctx, r.docKey(doc.OwnerID, doc.ID), documentFields(doc)); err != nil {
		return fmt.Errorf("store document metadata: %w", err)
	}
	return nil
}

// Search runs owner-scoped KNN over the chunk index.
func (r *Repository) Search(ctx context.Context, ownerID string, vector []float32, k int, filters domain.Filters) ([]domain.SearchResult, error) {
	res, err := r.store.SearchKNN(ctx, &db.KNNQuery{
		IndexName:    r.cfg.IndexName,
		Vector:       vector,
		K:            k,
		OwnerID:      ownerID,
		Filters:      filters,
		ReturnFields: returnFields,
	})
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}

	results := make([]domain.SearchResult, 0, len(res.Entries))
	for _, e := range res.Entries {
		results = append(results, resultFromEntry(e))
	}
	return results, nil
}

// GetDocument returns one document's metadata.
func (r *Repository) GetDocument(ctx context.Context, ownerID, docID string) (domain.Document, error) {
	fields, err := r.store.HGetAll(ctx, r.docKey(ownerID, docID))
	if err != nil {
		return domain.Document{}, fmt.Errorf("get document: %w", err)
	}
	if len(fields) == 0 {
		return domain.Document{}, domain.ErrDocumentNotFound
	}
	return documentFromFields(fields), nil
}

// ListDocuments returns all documents owned by ownerID.
func (r *Repository) ListDocuments(ctx context.Context, ownerID string) ([]domain.Document, error) {
	keys, err := r.store.Scan(ctx, r.docKey(ownerID, "*"))
	if err != nil {
		return nil, fmt.Errorf("scan documents: %w", err)
	}

	docs := make([]domain.Document, 0, len(keys))
	for _, key := range keys {
		fields, err := r.store.HGetAll(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("get document %s: %w", key, err)
		}
		if len(fields) == 0 {
			continue
		}
		docs = append(docs, documentFromFields(fields))
	}
	return docs, nil
}

// DeleteDocument removes a document's metadata and all of its chunks.
func (r *Repository) DeleteDocument(ctx context.Context, ownerID, docID string) error {
	docKey := r.docKey(ownerID, docID)
	fields, err := r.store.HGetAll(ctx, docKey)
	if err != nil {
		return fmt.Errorf("get document: %w", err)
	}
	if len(fields) == 0 {
		return domain.ErrDocumentNotFound
	}

	chunkKeys, err := r.store.Scan(ctx, r.chunkPrefix()+docID+":*")
	if err != nil {
		return fmt.Errorf("scan chunks: %w", err)
	}
	for _, key := range chunkKeys {
		if err := r.store.Del(ctx, key); err != nil {
			return fmt.Errorf("delete chunk %s: %w", key, err)
		}
	}

	if err := r.store.Del(ctx, docKey); err != nil {
		return fmt.Errorf("delete document metadata: %w", err)
	}
	return nil
}

func (r *Repository) chunkPrefix() string {
	return r.cfg.KeyPrefix + "chunk:"
}

func (r *Repository) chunkKey(docID string, chunkIndex int) string {
	return r.chunkPrefix() + docID + ":" + strconv.Itoa(chunkIndex)
}

func (r *Repository) docKey(ownerID, docID string) string {
	return r.cfg.KeyPrefix + "doc:" + ownerID + ":" + docID
}
