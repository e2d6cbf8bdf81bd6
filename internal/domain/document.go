package domain

import "time"

// Document is the stored metadata for one ingested file.
type Document struct {
	ID         string
	OwnerID    string
	Filename   string
	FileType   string
	CreatedAt  time.Time
	ChunkCount int
}
