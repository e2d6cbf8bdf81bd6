package domain

import "time"

// Filters narrow retrieval with relational predicates. A zero Filters means
// pure vector search; any non-zero field switches retrieval to hybrid mode.
type Filters struct {
	DocumentIDs   []string
	FileType      string
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
	Keyword       string
}

// IsEmpty reports whether no structured filter is set.
func (f Filters) IsEmpty() bool {
	return len(f.DocumentIDs) == 0 &&
		f.FileType == "" &&
		f.CreatedAfter == nil &&
		f.CreatedBefore == nil &&
		f.Keyword == ""
}
