// Package analytics records query routing outcomes. Recording is
// fire-and-forget: it runs detached from the request and failures are only
// logged, never surfaced to the caller.
package analytics

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/quarry-ai/quarry/internal/domain"
	"github.com/quarry-ai/quarry/internal/metrics"
)

const recordTimeout = 2 * time.Second

// store is the consumer interface for the database (ISP).
type store interface {
	HIncrBy(ctx context.Context, key, field string, val int64) (int64, error)
}

// Recorder persists per-owner query counters and feeds the routing metrics.
type Recorder struct {
	store     store
	keyPrefix string
	logger    *zap.Logger
}

// New creates an analytics recorder.
func New(s store, keyPrefix string, logger *zap.Logger) *Recorder {
	return &Recorder{store: s, keyPrefix: keyPrefix, logger: logger}
}

// RecordQuery registers one routed query. It returns immediately; the write
// happens in the background, detached from the request context.
func (r *Recorder) RecordQuery(ctx context.Context, ownerID string, md domain.ReasoningMetadata) {
	metrics.QueriesTotal.WithLabelValues(string(md.Category)).Inc()
	metrics.ReasoningDuration.WithLabelValues(string(md.Category)).Observe(md.ReasoningTime.Seconds())

	go func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, recordTimeout)
		defer cancel()

		key := r.keyPrefix + "stats:" + ownerID
		if _, err := r.store.HIncrBy(ctx, key, "queries_"+string(md.Category), 1); err != nil {
			r.logger.Debug("Analytics write failed", zap.Error(err))
			return
		}
		if _, err := r.store.HIncrBy(ctx, key, "chunks_retrieved", int64(md.ChunksRetrieved)); err != nil {
			r.logger.Debug("Analytics write failed", zap.Error(err))
		}
	}(context.WithoutCancel(ctx))
}
