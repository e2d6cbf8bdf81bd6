package domain

// MinFeedbackSignals is the minimum number of thumb events before feedback
// influences reranking.
const MinFeedbackSignals = 2

// FeedbackScore is the aggregated user signal for one chunk.
type FeedbackScore struct {
	DocumentID      string
	ChunkIndex      int
	NormalizedScore float64 // [-1,1]: (positive-negative)/total
	TotalCount      int
}
