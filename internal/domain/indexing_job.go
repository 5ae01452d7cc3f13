package domain

import (
	"fmt"
	"time"
)

// IndexingJobStatus represents the status of a queued indexing job
type IndexingJobStatus string

const (
	IndexingJobStatusPending    IndexingJobStatus = "pending"
	IndexingJobStatusProcessing IndexingJobStatus = "processing"
	IndexingJobStatusCompleted  IndexingJobStatus = "completed"
	IndexingJobStatusFailed     IndexingJobStatus = "failed"
)

// IndexingJob represents a queued request to (re)index one entry
type IndexingJob struct {
	ID          string
	EntryID     string
	Status      IndexingJobStatus
	Retries     int32
	Error       string
	CreatedAt   time.Time
	ProcessedAt *time.Time
}

// NewIndexingJob creates a new IndexingJob instance
func NewIndexingJob(
	id, entryID string,
	status IndexingJobStatus,
	retries int32,
	errMsg string,
	createdAt time.Time,
	processedAt *time.Time,
) *IndexingJob {
	return &IndexingJob{
		ID:          id,
		EntryID:     entryID,
		Status:      status,
		Retries:     retries,
		Error:       errMsg,
		CreatedAt:   createdAt,
		ProcessedAt: processedAt,
	}
}

// ValidateIndexingJob validates an IndexingJob instance
func ValidateIndexingJob(j *IndexingJob) error {
	if j == nil {
		return fmt.Errorf("indexing job cannot be nil")
	}

	if j.ID == "" {
		return fmt.Errorf("indexing job ID is required")
	}

	if j.EntryID == "" {
		return fmt.Errorf("indexing job EntryID is required")
	}

	if !isValidIndexingJobStatus(j.Status) {
		return fmt.Errorf("indexing job Status is invalid: %s", j.Status)
	}

	if j.Retries < 0 {
		return fmt.Errorf("indexing job Retries cannot be negative")
	}

	return nil
}

// isValidIndexingJobStatus checks if an IndexingJobStatus is valid
func isValidIndexingJobStatus(s IndexingJobStatus) bool {
	switch s {
	case IndexingJobStatusPending, IndexingJobStatusProcessing,
		IndexingJobStatusCompleted, IndexingJobStatusFailed:
		return true
	}
	return false
}
