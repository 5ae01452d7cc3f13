package repository

import (
	"context"
	"errors"
	"time"

	"github.com/cloo-solutions/groundwork/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrIndexingJobNotFound = errors.New("indexing job not found")

const indexingJobColumns = `id, entry_id, status, retries, error, created_at, processed_at`

type IndexingJobRepository struct {
	db dbtx
}

func NewIndexingJobRepository(pool *pgxpool.Pool) *IndexingJobRepository {
	return &IndexingJobRepository{db: pool}
}

func NewIndexingJobRepositoryWithTx(tx pgx.Tx) *IndexingJobRepository {
	return &IndexingJobRepository{db: tx}
}

// Enqueue inserts job unless a pending job for the same entry already exists.
func (r *IndexingJobRepository) Enqueue(ctx context.Context, job *domain.IndexingJob) (bool, error) {
	cmdTag, err := r.db.Exec(ctx,
		`INSERT INTO indexing_jobs (id, entry_id, status, retries, error, created_at, processed_at)
		 SELECT $1::uuid, $2::uuid, $3::text, $4::int, $5::text, $6::timestamptz, $7::timestamptz
		 WHERE NOT EXISTS (
			 SELECT 1 FROM indexing_jobs WHERE entry_id = $2::uuid AND status = $3::text
		 )`,
		job.ID, job.EntryID, job.Status, job.Retries, nullableString(job.Error), job.CreatedAt, job.ProcessedAt,
	)
	if err != nil {
		return false, err
	}
	return cmdTag.RowsAffected() > 0, nil
}

func (r *IndexingJobRepository) GetByID(ctx context.Context, id string) (*domain.IndexingJob, error) {
	job, err := scanIndexingJob(r.db.QueryRow(ctx,
		`SELECT `+indexingJobColumns+` FROM indexing_jobs WHERE id = $1`,
		id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrIndexingJobNotFound
		}
		return nil, err
	}
	return job, nil
}

func (r *IndexingJobRepository) ListByEntry(ctx context.Context, entryID string) ([]*domain.IndexingJob, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+indexingJobColumns+` FROM indexing_jobs WHERE entry_id = $1 ORDER BY created_at ASC`,
		entryID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIndexingJobRows(rows)
}

// ClaimPending moves up to limit pending jobs to processing, skipping rows
// locked by other workers.
func (r *IndexingJobRepository) ClaimPending(ctx context.Context, limit int) ([]*domain.IndexingJob, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.Query(ctx,
		`WITH cte AS (
			 SELECT id
			 FROM indexing_jobs
			 WHERE status = $1
			 ORDER BY created_at ASC
			 FOR UPDATE SKIP LOCKED
			 LIMIT $2
		 )
		 UPDATE indexing_jobs
		 SET status = $3,
		     error = NULL,
		     started_at = NOW(),
		     processed_at = NULL
		 FROM cte
		 WHERE indexing_jobs.id = cte.id
		 RETURNING indexing_jobs.id, indexing_jobs.entry_id, indexing_jobs.status, indexing_jobs.retries,
		           indexing_jobs.error, indexing_jobs.created_at, indexing_jobs.processed_at`,
		domain.IndexingJobStatusPending, limit, domain.IndexingJobStatusProcessing,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIndexingJobRows(rows)
}

func (r *IndexingJobRepository) UpdateStatus(ctx context.Context, id string, status domain.IndexingJobStatus, errMsg string) error {
	var processedAt *time.Time
	if status == domain.IndexingJobStatusCompleted || status == domain.IndexingJobStatusFailed {
		now := time.Now().UTC()
		processedAt = &now
	}

	cmdTag, err := r.db.Exec(ctx,
		`UPDATE indexing_jobs SET status = $1, error = $2, processed_at = $3 WHERE id = $4`,
		status, nullableString(errMsg), processedAt, id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrIndexingJobNotFound
	}
	return nil
}

// Requeue returns a job to pending. consumeRetry increments its retry count.
func (r *IndexingJobRepository) Requeue(ctx context.Context, id string, errMsg string, consumeRetry bool) error {
	increment := 0
	if consumeRetry {
		increment = 1
	}
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE indexing_jobs SET status = $1, error = $2, retries = retries + $3, processed_at = NULL WHERE id = $4`,
		domain.IndexingJobStatusPending, nullableString(errMsg), increment, id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrIndexingJobNotFound
	}
	return nil
}

// ResetStale returns processing jobs claimed before cutoff to pending.
// Those are left behind by a worker that stopped mid-run.
func (r *IndexingJobRepository) ResetStale(ctx context.Context, cutoff time.Time) (int64, error) {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE indexing_jobs SET status = $1
		 WHERE status = $2 AND started_at < $3`,
		domain.IndexingJobStatusPending, domain.IndexingJobStatusProcessing, cutoff,
	)
	if err != nil {
		return 0, err
	}
	return cmdTag.RowsAffected(), nil
}

func scanIndexingJob(row pgx.Row) (*domain.IndexingJob, error) {
	var job domain.IndexingJob
	var errMsg pgtype.Text
	if err := row.Scan(&job.ID, &job.EntryID, &job.Status, &job.Retries, &errMsg, &job.CreatedAt, &job.ProcessedAt); err != nil {
		return nil, err
	}
	if errMsg.Valid {
		job.Error = errMsg.String
	}
	return &job, nil
}

func scanIndexingJobRows(rows pgx.Rows) ([]*domain.IndexingJob, error) {
	var jobs []*domain.IndexingJob
	for rows.Next() {
		job, err := scanIndexingJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}
