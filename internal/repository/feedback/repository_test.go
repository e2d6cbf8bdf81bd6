package feedback

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/quarry-ai/quarry/internal/domain"
)

type fakeStore struct {
	counters map[string]map[string]int64
	err      error
}

func newFakeStore() *fakeStore {
	return &fakeStore{counters: make(map[string]map[string]int64)}
}

func (f *fakeStore) HIncrBy(_ context.Context, key, field string, val int64) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	if f.counters[key] == nil {
		f.counters[key] = make(map[string]int64)
	}
	f.counters[key][field] += val
	return f.counters[key][field], nil
}

func (f *fakeStore) HGetAllMulti(_ context.Context, keys []string) ([]map[string]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]map[string]string, len(keys))
	for i, key := range keys {
		fields := make(map[string]string)
		for field, val := range f.counters[key] {
			fields[field] = strconv.FormatInt(val, 10)
		}
		out[i] = fields
	}
	return out, nil
}

func TestRecordAndGetScores(t *testing.T) {
	store := newFakeStore()
	repo := New(store, "quarry:")

	ref := domain.ChunkRef{DocumentID: "doc-1", ChunkIndex: 2}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := repo.Record(ctx, "owner-1", ref, true); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}
	if err := repo.Record(ctx, "owner-1", ref, false); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	scores, err := repo.GetScores(ctx, "owner-1", []domain.ChunkRef{ref})
	if err != nil {
		t.Fatalf("GetScores failed: %v", err)
	}

	s, ok := scores[ref]
	if !ok {
		t.Fatal("no score for recorded chunk")
	}
	if s.TotalCount != 4 {
		t.Errorf("TotalCount = %d, want 4", s.TotalCount)
	}
	if s.NormalizedScore != 0.5 { // (3-1)/4
		t.Errorf("NormalizedScore = %v, want 0.5", s.NormalizedScore)
	}
}

func TestGetScoresSkipsUnrated(t *testing.T) {
	store := newFakeStore()
	repo := New(store, "quarry:")
	ctx := context.Background()

	rated := domain.ChunkRef{DocumentID: "doc-1", ChunkIndex: 0}
	unrated := domain.ChunkRef{DocumentID: "doc-1", ChunkIndex: 1}

	if err := repo.Record(ctx, "owner-1", rated, false); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	scores, err := repo.GetScores(ctx, "owner-1", []domain.ChunkRef{rated, unrated})
	if err != nil {
		t.Fatalf("GetScores failed: %v", err)
	}
	if len(scores) != 1 {
		t.Fatalf("got %d scores, want 1", len(scores))
	}
	if s := scores[rated]; s.NormalizedScore != -1 {
		t.Errorf("NormalizedScore = %v, want -1 for all-negative", s.NormalizedScore)
	}
}

func TestFeedbackIsOwnerScoped(t *testing.T) {
	store := newFakeStore()
	repo := New(store, "quarry:")
	ctx := context.Background()

	ref := domain.ChunkRef{DocumentID: "doc-1", ChunkIndex: 0}
	if err := repo.Record(ctx, "owner-1", ref, true); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	scores, err := repo.GetScores(ctx, "owner-2", []domain.ChunkRef{ref})
	if err != nil {
		t.Fatalf("GetScores failed: %v", err)
	}
	if len(scores) != 0 {
		t.Errorf("owner-2 sees owner-1 feedback: %v", scores)
	}
}

func TestGetScoresEmptyRefs(t *testing.T) {
	repo := New(newFakeStore(), "quarry:")

	scores, err := repo.GetScores(context.Background(), "owner-1", nil)
	if err != nil {
		t.Fatalf("GetScores failed: %v", err)
	}
	if len(scores) != 0 {
		t.Errorf("got %d scores for empty refs", len(scores))
	}
}

func TestPropagatesStoreErrors(t *testing.T) {
	store := newFakeStore()
	store.err = errors.New("connection reset")
	repo := New(store, "quarry:")
	ctx := context.Background()

	ref := domain.ChunkRef{DocumentID: "doc-1", ChunkIndex: 0}
	if err := repo.Record(ctx, "owner-1", ref, true); !errors.Is(err, store.err) {
		t.Errorf("Record err = %v, want wrapped store error", err)
	}
	if _, err := repo.GetScores(ctx, "owner-1", []domain.ChunkRef{ref}); !errors.Is(err, store.err) {
		t.Errorf("GetScores err = %v, want wrapped store error", err)
	}
}
