package repository

import (
	"context"
	"errors"
	"time"

	"github.com/cloo-solutions/groundwork/internal/domain"
	"github.com/cloo-solutions/groundwork/internal/pagination"
	"github.com/cloo-solutions/groundwork/internal/service"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const entryColumns = `id, title, body, category, source_url, indexing_status, chunk_count, indexing_error,
	indexing_started_at, last_indexed_at, created_at, updated_at`

type EntryRepository struct {
	db dbtx
}

func NewEntryRepository(pool *pgxpool.Pool) *EntryRepository {
	return &EntryRepository{db: pool}
}

func NewEntryRepositoryWithTx(tx pgx.Tx) *EntryRepository {
	return &EntryRepository{db: tx}
}

func (r *EntryRepository) Create(ctx context.Context, e *domain.Entry) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO knowledge_entries (id, title, body, category, source_url, indexing_status, chunk_count, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, e.Title, e.Body, nullableString(e.Category), nullableString(e.SourceURL), e.IndexingStatus, e.ChunkCount, e.CreatedAt, e.UpdatedAt,
	)
	return err
}

func (r *EntryRepository) GetByID(ctx context.Context, id string) (*domain.Entry, error) {
	e, err := scanEntry(r.db.QueryRow(ctx,
		`SELECT `+entryColumns+` FROM knowledge_entries WHERE id = $1`,
		id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrEntryNotFound
		}
		return nil, err
	}
	return e, nil
}

func (r *EntryRepository) ListWithCursor(ctx context.Context, cursor *pagination.Cursor, limit int) (*service.EntryPageResult, error) {
	limit = pagination.ClampLimit(limit)

	var rows pgx.Rows
	var err error

	if cursor != nil {
		rows, err = r.db.Query(ctx,
			`SELECT `+entryColumns+`
			 FROM knowledge_entries
			 WHERE (updated_at, id) < ($1, $2)
			 ORDER BY updated_at DESC, id DESC
			 LIMIT $3`,
			cursor.UpdatedAt, cursor.LastID, limit+1,
		)
	} else {
		rows, err = r.db.Query(ctx,
			`SELECT `+entryColumns+`
			 FROM knowledge_entries
			 ORDER BY updated_at DESC, id DESC
			 LIMIT $1`,
			limit+1,
		)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*domain.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	items, hasMore := pagination.Trim(items, limit)

	var nextCursor string
	if hasMore && len(items) > 0 {
		lastItem := items[len(items)-1]
		nextCursor = pagination.EncodeCursor(lastItem.ID, lastItem.UpdatedAt)
	}

	return &service.EntryPageResult{
		Items:      items,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}

// Update writes the editable fields. Indexing state is owned by the Mark* methods.
func (r *EntryRepository) Update(ctx context.Context, e *domain.Entry) error {
	e.UpdatedAt = time.Now().UTC()
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE knowledge_entries SET title = $1, body = $2, category = $3, source_url = $4, updated_at = $5
		 WHERE id = $6`,
		e.Title, e.Body, nullableString(e.Category), nullableString(e.SourceURL), e.UpdatedAt, e.ID,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrEntryNotFound
	}
	return nil
}

func (r *EntryRepository) Delete(ctx context.Context, id string) error {
	cmdTag, err := r.db.Exec(ctx,
		`DELETE FROM knowledge_entries WHERE id = $1`,
		id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrEntryNotFound
	}
	return nil
}

func (r *EntryRepository) ClaimForIndexing(ctx context.Context, id string, staleBefore time.Time) (*domain.Entry, error) {
	e, err := scanEntry(r.db.QueryRow(ctx,
		`UPDATE knowledge_entries
		 SET indexing_status = $2, indexing_started_at = NOW(), indexing_error = NULL
		 WHERE id = $1
		   AND (indexing_status <> $2 OR indexing_started_at IS NULL OR indexing_started_at < $3)
		 RETURNING `+entryColumns,
		id, domain.IndexingStatusIndexing, staleBefore,
	))
	if err == nil {
		return e, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM knowledge_entries WHERE id = $1)`, id).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, domain.ErrEntryNotFound
	}
	return nil, domain.ErrIndexingInProgress
}

func (r *EntryRepository) MarkCompleted(ctx context.Context, id string, chunkCount int, at time.Time) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE knowledge_entries
		 SET indexing_status = $1, chunk_count = $2, last_indexed_at = $3, indexing_error = NULL, indexing_started_at = NULL
		 WHERE id = $4`,
		domain.IndexingStatusCompleted, chunkCount, at, id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrEntryNotFound
	}
	return nil
}

func (r *EntryRepository) MarkFailed(ctx context.Context, id string, errMsg string) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE knowledge_entries
		 SET indexing_status = $1, chunk_count = 0, indexing_error = $2, indexing_started_at = NULL
		 WHERE id = $3`,
		domain.IndexingStatusFailed, errMsg, id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrEntryNotFound
	}
	return nil
}

func (r *EntryRepository) MarkPending(ctx context.Context, id string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE knowledge_entries SET indexing_status = $1
		 WHERE id = $2 AND indexing_status <> $3`,
		domain.IndexingStatusPending, id, domain.IndexingStatusIndexing,
	)
	return err
}

func scanEntry(row pgx.Row) (*domain.Entry, error) {
	var e domain.Entry
	var category, sourceURL, indexingError *string
	if err := row.Scan(&e.ID, &e.Title, &e.Body, &category, &sourceURL, &e.IndexingStatus, &e.ChunkCount, &indexingError,
		&e.IndexingStartedAt, &e.LastIndexedAt, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	if category != nil {
		e.Category = *category
	}
	if sourceURL != nil {
		e.SourceURL = *sourceURL
	}
	if indexingError != nil {
		e.IndexingError = *indexingError
	}
	return &e, nil
}
