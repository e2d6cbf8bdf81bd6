// Package feedback aggregates per-chunk thumb signals used to bias
// reranking. Signals are plain counters in redis hashes; scores are derived
// on read.
package feedback

import (
	"context"
	"fmt"
	"strconv"

	"github.com/quarry-ai/quarry/internal/domain"
)

const (
	fieldUp   = "up"
	fieldDown = "down"
)

// store is the consumer interface for the database (ISP).
type store interface {
	HIncrBy(ctx context.Context, key, field string, val int64) (int64, error)
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
}

// Repository records and aggregates chunk feedback.
type Repository struct {
	store     store
	keyPrefix string
}

// New creates a feedback repository.
func New(s store, keyPrefix string) *Repository {
	return &Repository{store: s, keyPrefix: keyPrefix}
}

// Record registers one thumb signal for a chunk.
func (r *Repository) Record(ctx context.Context, ownerID string, ref domain.ChunkRef, positive bool) error {
	field := fieldDown
	if positive {
		field = fieldUp
	}
	if _, err := r.store.HIncrBy(ctx, r.key(ownerID, ref), field, 1); err != nil {
		return fmt.Errorf("record feedback: %w", err)
	}
	return nil
}

// GetScores returns aggregated scores for the given chunks. Chunks with no
// recorded feedback are absent from the result map.
func (r *Repository) GetScores(ctx context.Context, ownerID string, refs []domain.ChunkRef) (map[domain.ChunkRef]domain.FeedbackScore, error) {
	if len(refs) == 0 {
		return map[domain.ChunkRef]domain.FeedbackScore{}, nil
	}

	keys := make([]string, len(refs))
	for i, ref := range refs {
		keys[i] = r.key(ownerID, ref)
	}

	hashes, err := r.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("load feedback: %w", err)
	}
	if len(hashes) != len(refs) {
		return nil, fmt.Errorf("load feedback: got %d hashes for %d refs", len(hashes), len(refs))
	}

	scores := make(map[domain.ChunkRef]domain.FeedbackScore, len(refs))
	for i, fields := range hashes {
		up, _ := strconv.Atoi(fields[fieldUp])
		down, _ := strconv.Atoi(fields[fieldDown])
		total := up + down
		if total == 0 {
			continue
		}
		scores[refs[i]] = domain.FeedbackScore{
			DocumentID:      refs[i].DocumentID,
			ChunkIndex:      refs[i].ChunkIndex,
			NormalizedScore: float64(up-down) / float64(total),
			TotalCount:      total,
		}
	}
	return scores, nil
}

func (r *Repository) key(ownerID string, ref domain.ChunkRef) string {
	return r.keyPrefix + "fb:" + ownerID + ":" + ref.DocumentID + ":" + strconv.Itoa(ref.ChunkIndex)
}
