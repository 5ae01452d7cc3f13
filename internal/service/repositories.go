package service

import (
	"context"
	"time"

	"github.com/cloo-solutions/groundwork/internal/domain"
	"github.com/cloo-solutions/groundwork/internal/pagination"
	"github.com/cloo-solutions/groundwork/internal/provider"
)

// EntryPageResult represents a paginated result of entries
type EntryPageResult struct {
	Items      []*domain.Entry
	NextCursor string
	HasMore    bool
}

// EntryRepositoryInterface defines the entry persistence operations
type EntryRepositoryInterface interface {
	Create(ctx context.Context, e *domain.Entry) error
	GetByID(ctx context.Context, id string) (*domain.Entry, error)
	Update(ctx context.Context, e *domain.Entry) error
	Delete(ctx context.Context, id string) error
	ListWithCursor(ctx context.Context, cursor *pagination.Cursor, limit int) (*EntryPageResult, error)
	// ClaimForIndexing moves the entry to indexing unless another run holds a
	// claim newer than staleBefore. Returns ErrIndexingInProgress in that case.
	ClaimForIndexing(ctx context.Context, id string, staleBefore time.Time) (*domain.Entry, error)
	MarkCompleted(ctx context.Context, id string, chunkCount int, at time.Time) error
	MarkFailed(ctx context.Context, id string, errMsg string) error
	// MarkPending resets the status of an entry that is not currently being indexed.
	MarkPending(ctx context.Context, id string) error
}

// ChunkRepositoryInterface defines the chunk persistence operations
type ChunkRepositoryInterface interface {
	DeleteByEntry(ctx context.Context, entryID string) (int64, error)
	CreateBatch(ctx context.Context, chunks []*domain.Chunk) error
	// SetVectorIDs maps chunk id to vector record id.
	SetVectorIDs(ctx context.Context, vectorIDs map[string]string) error
	GetByIDs(ctx context.Context, ids []string) (map[string]*domain.Chunk, error)
	ListByEntry(ctx context.Context, entryID string) ([]*domain.Chunk, error)
}

// IndexingJobRepositoryInterface is the enqueue side of the indexing queue
type IndexingJobRepositoryInterface interface {
	// Enqueue inserts job unless the entry already has a pending job.
	// Reports whether a row was inserted.
	Enqueue(ctx context.Context, job *domain.IndexingJob) (bool, error)
}

// ProviderRepositoryInterface is the part of provider persistence the
// services need.
type ProviderRepositoryInterface interface {
	GetActive(ctx context.Context) (*domain.ProviderConfig, error)
	UpdateEmbeddingDefaults(ctx context.Context, id, model string, dimension int) error
}

// SettingsLoader returns the effective RAG settings for a single run.
type SettingsLoader interface {
	Load(ctx context.Context) (domain.RAGSettings, error)
}

// ProviderResolver constructs backend clients from provider configuration.
type ProviderResolver interface {
	Active(ctx context.Context) (*provider.Set, error)
	Build(cfg *domain.ProviderConfig) (*provider.Set, error)
}
