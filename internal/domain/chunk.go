package domain

import (
	"fmt"
	"time"
)

// Chunk is a bounded slice of an entry's text, the unit that gets embedded.
type Chunk struct {
	ID         string
	EntryID    string
	ChunkIndex int
	Content    string
	CharCount  int
	VectorID   *string
	CreatedAt  time.Time
}

// VectorRecordID returns the id a chunk is stored under in the vector store.
func VectorRecordID(entryID, chunkID string) string {
	return fmt.Sprintf("entry_%s_chunk_%s", entryID, chunkID)
}
