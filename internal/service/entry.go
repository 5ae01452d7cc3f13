package service

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/cloo-solutions/groundwork/internal/domain"
	"github.com/cloo-solutions/groundwork/internal/pagination"
	"github.com/cloo-solutions/groundwork/internal/telemetry"
	"github.com/cloo-solutions/groundwork/internal/vectorstore"
	"github.com/google/uuid"
)

// UUIDGenerator defines interface for UUID generation (for testing)
type UUIDGenerator interface {
	NewString() string
}

// DefaultUUIDGenerator is the default UUID generator using google/uuid
type DefaultUUIDGenerator struct{}

// NewString generates a new UUID string
func (g *DefaultUUIDGenerator) NewString() string {
	return uuid.NewString()
}

// CreateEntryInput represents input for creating an entry
type CreateEntryInput struct {
	Title     string
	Body      string
	Category  string
	SourceURL string
}

// UpdateEntryInput represents input for editing an entry
type UpdateEntryInput struct {
	ID        string
	Title     string
	Body      string
	Category  string
	SourceURL string
}

// ListEntriesInput represents input for listing entries
type ListEntriesInput struct {
	Cursor string
	Limit  int
}

// ListEntriesOutput represents a page of entries
type ListEntriesOutput struct {
	Items   []*domain.Entry
	Cursor  string
	HasMore bool
}

// EntryService is the content-management surface: it owns entry rows and
// hands indexing off to the job queue.
type EntryService struct {
	entries  EntryRepositoryInterface
	txRunner TxRunner
	store    vectorstore.Store
	uuidGen  UUIDGenerator
}

// NewEntryService creates a new EntryService instance
func NewEntryService(entries EntryRepositoryInterface, txRunner TxRunner, store vectorstore.Store) *EntryService {
	return NewEntryServiceWithUUIDGen(entries, txRunner, store, &DefaultUUIDGenerator{})
}

// NewEntryServiceWithUUIDGen creates a new EntryService with custom UUID generator (for testing)
func NewEntryServiceWithUUIDGen(entries EntryRepositoryInterface, txRunner TxRunner, store vectorstore.Store, uuidGen UUIDGenerator) *EntryService {
	return &EntryService{
		entries:  entries,
		txRunner: txRunner,
		store:    store,
		uuidGen:  uuidGen,
	}
}

// Create stores a new entry and queues its first indexing run
func (s *EntryService) Create(ctx context.Context, input CreateEntryInput) (*domain.Entry, error) {
	ctx, span := telemetry.StartSpan(ctx, "EntryService.Create", telemetry.SpanAttributes{
		Operation: "create",
	})
	defer span.End()

	if err := validateEntryFields(input.Title, input.Body, input.SourceURL); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	entry := domain.NewEntry(s.uuidGen.NewString(), strings.TrimSpace(input.Title), input.Body,
		strings.TrimSpace(input.Category), strings.TrimSpace(input.SourceURL), now)
	if err := domain.ValidateEntry(entry); err != nil {
		return nil, domain.Wrap(domain.ErrMissingRequiredField, err)
	}

	err := s.txRunner.WithTx(ctx, func(repos TxRepositories) error {
		if err := repos.Entries().Create(ctx, entry); err != nil {
			return err
		}
		_, err := repos.IndexingJobs().Enqueue(ctx, s.newJob(entry.ID, now))
		return err
	})
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	return entry, nil
}

// Get retrieves an entry by ID
func (s *EntryService) Get(ctx context.Context, id string) (*domain.Entry, error) {
	ctx, span := telemetry.StartSpan(ctx, "EntryService.Get", telemetry.SpanAttributes{
		EntryID:   id,
		Operation: "get",
	})
	defer span.End()

	return s.entries.GetByID(ctx, id)
}

// Update edits an entry. Indexing is re-queued only when a field that feeds
// the index changed.
func (s *EntryService) Update(ctx context.Context, input UpdateEntryInput) (*domain.Entry, error) {
	ctx, span := telemetry.StartSpan(ctx, "EntryService.Update", telemetry.SpanAttributes{
		EntryID:   input.ID,
		Operation: "update",
	})
	defer span.End()

	if err := validateEntryFields(input.Title, input.Body, input.SourceURL); err != nil {
		return nil, err
	}

	existing, err := s.entries.GetByID(ctx, input.ID)
	if err != nil {
		return nil, err
	}

	updated := *existing
	updated.Title = strings.TrimSpace(input.Title)
	updated.Body = input.Body
	updated.Category = strings.TrimSpace(input.Category)
	updated.SourceURL = strings.TrimSpace(input.SourceURL)
	changed := existing.ContentChanged(&updated)

	err = s.txRunner.WithTx(ctx, func(repos TxRepositories) error {
		if err := repos.Entries().Update(ctx, &updated); err != nil {
			return err
		}
		if !changed {
			return nil
		}
		return s.enqueue(ctx, repos, updated.ID)
	})
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	if changed && updated.IndexingStatus != domain.IndexingStatusIndexing {
		updated.IndexingStatus = domain.IndexingStatusPending
	}
	return &updated, nil
}

// Delete removes the entry's vectors, then the entry itself; chunk rows
// cascade with it.
func (s *EntryService) Delete(ctx context.Context, id string) error {
	ctx, span := telemetry.StartSpan(ctx, "EntryService.Delete", telemetry.SpanAttributes{
		EntryID:   id,
		Operation: "delete",
	})
	defer span.End()

	if _, err := s.entries.GetByID(ctx, id); err != nil {
		return err
	}
	if err := s.store.DeleteByOwner(ctx, id); err != nil {
		span.SetError(err)
		return fmt.Errorf("failed to delete vectors: %w", err)
	}
	return s.entries.Delete(ctx, id)
}

// Reindex queues an indexing run without changing the entry
func (s *EntryService) Reindex(ctx context.Context, id string) (*domain.Entry, error) {
	ctx, span := telemetry.StartSpan(ctx, "EntryService.Reindex", telemetry.SpanAttributes{
		EntryID:   id,
		Operation: "reindex",
	})
	defer span.End()

	entry, err := s.entries.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	err = s.txRunner.WithTx(ctx, func(repos TxRepositories) error {
		return s.enqueue(ctx, repos, id)
	})
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	if entry.IndexingStatus != domain.IndexingStatusIndexing {
		entry.IndexingStatus = domain.IndexingStatusPending
	}
	return entry, nil
}

// List returns a page of entries, most recently updated first
func (s *EntryService) List(ctx context.Context, input ListEntriesInput) (*ListEntriesOutput, error) {
	ctx, span := telemetry.StartSpan(ctx, "EntryService.List", telemetry.SpanAttributes{
		Operation: "list",
	})
	defer span.End()

	cursor, err := pagination.DecodeCursor(input.Cursor)
	if err != nil {
		return nil, err
	}

	result, err := s.entries.ListWithCursor(ctx, cursor, pagination.ClampLimit(input.Limit))
	if err != nil {
		return nil, err
	}

	return &ListEntriesOutput{
		Items:   result.Items,
		Cursor:  result.NextCursor,
		HasMore: result.HasMore,
	}, nil
}

func (s *EntryService) enqueue(ctx context.Context, repos TxRepositories, entryID string) error {
	if _, err := repos.IndexingJobs().Enqueue(ctx, s.newJob(entryID, time.Now().UTC())); err != nil {
		return err
	}
	return repos.Entries().MarkPending(ctx, entryID)
}

func (s *EntryService) newJob(entryID string, now time.Time) *domain.IndexingJob {
	return domain.NewIndexingJob(s.uuidGen.NewString(), entryID, domain.IndexingJobStatusPending, 0, "", now, nil)
}

func validateEntryFields(title, body, sourceURL string) error {
	if strings.TrimSpace(title) == "" {
		return domain.Wrap(domain.ErrMissingRequiredField, fmt.Errorf("title is required"))
	}
	if strings.TrimSpace(body) == "" {
		return domain.Wrap(domain.ErrMissingRequiredField, fmt.Errorf("body is required"))
	}
	if sourceURL = strings.TrimSpace(sourceURL); sourceURL != "" {
		u, err := url.Parse(sourceURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return domain.NewDomainError(domain.ErrCodeValidation, "source URL must be an absolute http(s) URL")
		}
	}
	return nil
}
