package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cloo-solutions/groundwork/internal/domain"
	"github.com/cloo-solutions/groundwork/internal/llm"
	"github.com/cloo-solutions/groundwork/internal/telemetry"
	"github.com/cloo-solutions/groundwork/internal/vectorstore"
)

// IndexingStep names the stage an indexing run failed in.
type IndexingStep string

const (
	StepClaim    IndexingStep = "claim"
	StepSettings IndexingStep = "load_settings"
	StepProvider IndexingStep = "resolve_provider"
	StepClear    IndexingStep = "clear_vectors"
	StepChunk    IndexingStep = "chunk"
	StepEmbed    IndexingStep = "embed"
	StepPersist  IndexingStep = "persist_chunks"
	StepUpsert   IndexingStep = "upsert_vectors"
	StepBackfill IndexingStep = "backfill_vector_ids"
	StepComplete IndexingStep = "mark_completed"
)

// DefaultIndexTimeout bounds one indexing run.
const DefaultIndexTimeout = 10 * time.Minute

const cleanupTimeout = 30 * time.Second

// IndexingError reports which step of an indexing run failed.
type IndexingError struct {
	EntryID string
	Step    IndexingStep
	Err     error
}

func (e *IndexingError) Error() string {
	return fmt.Sprintf("indexing entry %s failed at %s: %v", e.EntryID, e.Step, e.Err)
}

func (e *IndexingError) Unwrap() error {
	return e.Err
}

// IndexingResult summarises a successful run.
type IndexingResult struct {
	EntryID    string
	ChunkCount int
	Degraded   bool
	Duration   time.Duration
}

// IndexingService runs the chunk, embed, upsert and persist pipeline for one
// entry and owns the entry's indexing status.
type IndexingService struct {
	entries    EntryRepositoryInterface
	txRunner   TxRunner
	store      vectorstore.Store
	resolver   ProviderResolver
	settings   SettingsLoader
	uuidGen    UUIDGenerator
	staleAfter time.Duration
	logger     *slog.Logger
}

// NewIndexingService creates a new IndexingService instance
func NewIndexingService(
	entries EntryRepositoryInterface,
	txRunner TxRunner,
	store vectorstore.Store,
	resolver ProviderResolver,
	settings SettingsLoader,
	logger *slog.Logger,
) *IndexingService {
	return &IndexingService{
		entries:    entries,
		txRunner:   txRunner,
		store:      store,
		resolver:   resolver,
		settings:   settings,
		uuidGen:    &DefaultUUIDGenerator{},
		staleAfter: 2 * DefaultIndexTimeout,
		logger:     logger.With("component", "indexing"),
	}
}

// WithUUIDGenerator replaces the chunk id generator (for testing)
func (s *IndexingService) WithUUIDGenerator(gen UUIDGenerator) *IndexingService {
	s.uuidGen = gen
	return s
}

// WithStaleAfter sets how old an indexing claim must be before another run may take it over.
func (s *IndexingService) WithStaleAfter(d time.Duration) *IndexingService {
	s.staleAfter = d
	return s
}

// Index (re)builds the chunks and vectors of one entry. Any failure after the
// claim leaves the entry failed with no chunk rows and no vectors.
func (s *IndexingService) Index(ctx context.Context, entryID string) (*IndexingResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "IndexingService.Index", telemetry.SpanAttributes{
		EntryID:   entryID,
		Operation: "index",
	})
	defer span.End()

	start := time.Now()
	entry, err := s.entries.ClaimForIndexing(ctx, entryID, start.Add(-s.staleAfter))
	if err != nil {
		return nil, &IndexingError{EntryID: entryID, Step: StepClaim, Err: err}
	}

	result, step, err := s.run(ctx, entry)
	if err != nil {
		indexErr := &IndexingError{EntryID: entryID, Step: step, Err: err}
		s.fail(ctx, indexErr)
		span.SetError(indexErr)
		return nil, indexErr
	}

	result.Duration = time.Since(start)
	s.logger.InfoContext(ctx, "entry indexed",
		"entry_id", entryID,
		"chunks", result.ChunkCount,
		"degraded_embedding", result.Degraded,
		"duration_ms", result.Duration.Milliseconds())
	return result, nil
}

func (s *IndexingService) run(ctx context.Context, entry *domain.Entry) (*IndexingResult, IndexingStep, error) {
	settings, err := s.settings.Load(ctx)
	if err != nil {
		return nil, StepSettings, err
	}

	set, err := s.resolver.Active(ctx)
	if err != nil {
		return nil, StepProvider, err
	}
	info := set.Embedder.Info()
	if info.Dimension != s.store.Dimension() {
		return nil, StepProvider, domain.Wrap(domain.ErrDimensionMismatch,
			fmt.Errorf("%s/%s produces %d dimensions, vector store expects %d", info.Kind, info.Model, info.Dimension, s.store.Dimension()))
	}

	if err := s.store.DeleteByOwner(ctx, entry.ID); err != nil {
		return nil, StepClear, err
	}

	texts, err := ChunkText(entry.Body, settings.ChunkSize, settings.ChunkOverlap)
	if err != nil {
		return nil, StepChunk, err
	}
	if len(texts) == 0 {
		return nil, StepChunk, domain.ErrNoValidChunks
	}

	if info.Degraded {
		s.logger.WarnContext(ctx, "indexing with degraded embeddings, retrieval quality is reduced",
			"entry_id", entry.ID, "kind", info.Kind, "model", info.Model)
	}
	inputs := make([]string, len(texts))
	for i, t := range texts {
		inputs[i] = buildChunkEmbeddingText(entry, t)
	}
	vectors, err := set.Embedder.EmbedBatch(ctx, inputs)
	if err != nil {
		return nil, StepEmbed, err
	}
	if len(vectors) != len(texts) {
		return nil, StepEmbed, domain.Wrap(domain.ErrEmbeddingCountMismatch,
			fmt.Errorf("got %d embeddings for %d chunks", len(vectors), len(texts)))
	}
	if err := llm.CheckDimension(vectors, s.store.Dimension()); err != nil {
		return nil, StepEmbed, err
	}

	now := time.Now().UTC()
	chunks := make([]*domain.Chunk, len(texts))
	for i, t := range texts {
		chunks[i] = &domain.Chunk{
			ID:         s.uuidGen.NewString(),
			EntryID:    entry.ID,
			ChunkIndex: i,
			Content:    t,
			CharCount:  utf8.RuneCountInString(t),
			CreatedAt:  now,
		}
	}

	step := StepPersist
	err = s.txRunner.WithTx(ctx, func(repos TxRepositories) error {
		if _, err := repos.Chunks().DeleteByEntry(ctx, entry.ID); err != nil {
			return err
		}
		if err := repos.Chunks().CreateBatch(ctx, chunks); err != nil {
			return err
		}

		step = StepUpsert
		items := make([]vectorstore.Item, len(chunks))
		vectorIDs := make(map[string]string, len(chunks))
		for i, c := range chunks {
			id := domain.VectorRecordID(entry.ID, c.ID)
			items[i] = vectorstore.Item{
				ID:     id,
				Vector: vectors[i],
				Metadata: vectorstore.Metadata{
					EntryID:    entry.ID,
					ChunkID:    c.ID,
					ChunkIndex: c.ChunkIndex,
					Title:      entry.Title,
					Category:   entry.Category,
					SourceURL:  entry.SourceURL,
					CharCount:  c.CharCount,
				},
			}
			vectorIDs[c.ID] = id
		}
		if err := s.store.Upsert(ctx, items); err != nil {
			return err
		}

		step = StepBackfill
		if err := repos.Chunks().SetVectorIDs(ctx, vectorIDs); err != nil {
			return err
		}

		step = StepComplete
		return repos.Entries().MarkCompleted(ctx, entry.ID, len(chunks), now)
	})
	if err != nil {
		return nil, step, err
	}

	return &IndexingResult{EntryID: entry.ID, ChunkCount: len(chunks), Degraded: info.Degraded}, "", nil
}

// fail clears whatever the run left behind and records the failure. It runs
// detached from ctx so a timed-out run still gets cleaned up.
func (s *IndexingService) fail(ctx context.Context, indexErr *IndexingError) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	logger := s.logger.With("entry_id", indexErr.EntryID, "step", string(indexErr.Step))
	logger.ErrorContext(ctx, "indexing failed", "error", indexErr.Err)
	telemetry.CaptureErrorWithTags(ctx, indexErr, map[string]string{
		"entry_id": indexErr.EntryID,
		"step":     string(indexErr.Step),
	})

	if err := s.store.DeleteByOwner(cleanupCtx, indexErr.EntryID); err != nil {
		logger.WarnContext(ctx, "failed to clear vectors after indexing failure", "error", err)
	}

	msg := fmt.Sprintf("%s: %v", indexErr.Step, indexErr.Err)
	err := s.txRunner.WithTx(cleanupCtx, func(repos TxRepositories) error {
		if _, err := repos.Chunks().DeleteByEntry(cleanupCtx, indexErr.EntryID); err != nil {
			return err
		}
		return repos.Entries().MarkFailed(cleanupCtx, indexErr.EntryID, msg)
	})
	if err != nil {
		logger.ErrorContext(ctx, "failed to record indexing failure", "error", err)
	}
}

func buildChunkEmbeddingText(e *domain.Entry, chunk string) string {
	var parts []string
	if e.Title != "" {
		parts = append(parts, e.Title)
	}
	if chunk != "" {
		parts = append(parts, chunk)
	}
	return strings.Join(parts, "\n\n")
}
