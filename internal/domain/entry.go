package domain

import (
	"fmt"
	"strings"
	"time"
)

// IndexingStatus represents where an entry is in its indexing lifecycle
type IndexingStatus string

const (
	IndexingStatusPending   IndexingStatus = "pending"
	IndexingStatusIndexing  IndexingStatus = "indexing"
	IndexingStatusCompleted IndexingStatus = "completed"
	IndexingStatusFailed    IndexingStatus = "failed"
)

// Entry represents a knowledge entry that gets chunked, embedded and searched
type Entry struct {
	ID                string
	Title             string
	Body              string
	Category          string // Optional
	SourceURL         string // Optional
	IndexingStatus    IndexingStatus
	ChunkCount        int
	IndexingError     string
	IndexingStartedAt *time.Time
	LastIndexedAt     *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// NewEntry creates a new Entry in pending state
func NewEntry(id, title, body, category, sourceURL string, now time.Time) *Entry {
	return &Entry{
		ID:             id,
		Title:          title,
		Body:           body,
		Category:       category,
		SourceURL:      sourceURL,
		IndexingStatus: IndexingStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// ContentChanged reports whether other differs from e in any field that feeds indexing.
func (e *Entry) ContentChanged(other *Entry) bool {
	return e.Title != other.Title ||
		e.Body != other.Body ||
		e.Category != other.Category ||
		e.SourceURL != other.SourceURL
}

// ValidateEntry validates an Entry instance
func ValidateEntry(e *Entry) error {
	if e == nil {
		return fmt.Errorf("entry cannot be nil")
	}

	if e.ID == "" {
		return fmt.Errorf("entry ID is required")
	}

	if strings.TrimSpace(e.Title) == "" {
		return fmt.Errorf("entry Title is required")
	}

	if strings.TrimSpace(e.Body) == "" {
		return fmt.Errorf("entry Body is required")
	}

	if !IsValidIndexingStatus(e.IndexingStatus) {
		return fmt.Errorf("entry IndexingStatus is invalid: %s", e.IndexingStatus)
	}

	if e.IndexingStatus == IndexingStatusCompleted && e.ChunkCount <= 0 {
		return fmt.Errorf("completed entry must have at least one chunk")
	}

	return nil
}

// IsValidIndexingStatus checks if an IndexingStatus is valid
func IsValidIndexingStatus(s IndexingStatus) bool {
	switch s {
	case IndexingStatusPending, IndexingStatusIndexing,
		IndexingStatusCompleted, IndexingStatusFailed:
		return true
	}
	return false
}
