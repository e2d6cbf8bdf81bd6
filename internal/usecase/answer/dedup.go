package answer

import (
	"sort"

	"github.com/quarry-ai/quarry/internal/domain"
)

// merge flattens per-sub-query result sets into one list with unique chunk
// identities. When a chunk appears in several sets the highest-scoring
// instance survives, keeping that instance's sub-query annotation. Output
// is ordered by score descending; input order breaks ties.
func merge(sets [][]domain.SearchResult) []domain.SearchResult {
	best := make(map[domain.ChunkRef]int)
	var out []domain.SearchResult

	for _, set := range sets {
		for _, r := range set {
			ref := r.Ref()
			if i, seen := best[ref]; seen {
				if r.Score > out[i].Score {
					out[i] = r
				}
				continue
			}
			best[ref] = len(out)
			out = append(out, r)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}
