package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cloo-solutions/groundwork/internal/domain"
	"github.com/cloo-solutions/groundwork/internal/service"
	"github.com/panjf2000/ants/v2"
)

const (
	// MaxRetries is the maximum number of retries for a failed job
	MaxRetries = 3

	DefaultConcurrency = 4
)

// IndexingJobRepository defines the worker side of the indexing queue
type IndexingJobRepository interface {
	// ClaimPending moves up to limit pending jobs to processing and returns them.
	ClaimPending(ctx context.Context, limit int) ([]*domain.IndexingJob, error)
	UpdateStatus(ctx context.Context, id string, status domain.IndexingJobStatus, errMsg string) error
	// Requeue puts a job back to pending, counting a retry when consumeRetry is set.
	Requeue(ctx context.Context, id string, errMsg string, consumeRetry bool) error
	// ResetStale requeues processing jobs started before cutoff.
	ResetStale(ctx context.Context, cutoff time.Time) (int64, error)
}

// Indexer runs one indexing pass for an entry
type Indexer interface {
	Index(ctx context.Context, entryID string) (*service.IndexingResult, error)
}

// IndexingWorkerOptions tunes the worker
type IndexingWorkerOptions struct {
	Concurrency int
	JobTimeout  time.Duration
	MaxRetries  int
}

// IndexingWorker claims indexing jobs and runs them on a bounded goroutine pool
type IndexingWorker struct {
	repo       IndexingJobRepository
	indexer    Indexer
	pool       *ants.Pool
	timeout    time.Duration
	maxRetries int
	logger     *slog.Logger
	wg         sync.WaitGroup
}

// NewIndexingWorker creates a new IndexingWorker instance. Call Release when done.
func NewIndexingWorker(repo IndexingJobRepository, indexer Indexer, opts IndexingWorkerOptions, logger *slog.Logger) (*IndexingWorker, error) {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = service.DefaultIndexTimeout
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = MaxRetries
	}

	pool, err := ants.NewPool(opts.Concurrency)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}

	return &IndexingWorker{
		repo:       repo,
		indexer:    indexer,
		pool:       pool,
		timeout:    opts.JobTimeout,
		maxRetries: opts.MaxRetries,
		logger:     logger.With("component", "indexing-worker"),
	}, nil
}

// ProcessJobs implements the JobProcessor interface. It claims only as many
// jobs as the pool has free workers and returns without waiting for them.
func (w *IndexingWorker) ProcessJobs(ctx context.Context) error {
	// A processing job older than twice the run timeout belongs to a dead worker.
	if n, err := w.repo.ResetStale(ctx, time.Now().Add(-2*w.timeout)); err != nil {
		w.logger.WarnContext(ctx, "failed to reset stale jobs", "error", err)
	} else if n > 0 {
		w.logger.InfoContext(ctx, "requeued stale jobs", "count", n)
	}

	free := w.pool.Free()
	if free <= 0 {
		return nil
	}

	jobs, err := w.repo.ClaimPending(ctx, free)
	if err != nil {
		return fmt.Errorf("failed to claim pending jobs: %w", err)
	}
	if len(jobs) == 0 {
		return nil
	}

	w.logger.InfoContext(ctx, "processing indexing jobs", "count", len(jobs))

	for _, job := range jobs {
		job := job
		w.wg.Add(1)
		err := w.pool.Submit(func() {
			defer w.wg.Done()
			w.processJob(ctx, job)
		})
		if err != nil {
			w.wg.Done()
			w.logger.ErrorContext(ctx, "failed to submit job", "job_id", job.ID, "error", err)
			if err := w.repo.Requeue(context.WithoutCancel(ctx), job.ID, "", false); err != nil {
				w.logger.ErrorContext(ctx, "failed to requeue job", "job_id", job.ID, "error", err)
			}
		}
	}

	return nil
}

// Wait blocks until every submitted job has finished
func (w *IndexingWorker) Wait() {
	w.wg.Wait()
}

// Release waits for running jobs and frees the pool
func (w *IndexingWorker) Release() {
	w.wg.Wait()
	w.pool.Release()
}

func (w *IndexingWorker) processJob(ctx context.Context, job *domain.IndexingJob) {
	logger := w.logger.With("job_id", job.ID, "entry_id", job.EntryID)

	// A claimed job runs to completion or its timeout; shutdown waits for it
	// instead of cancelling it and burning a retry.
	runCtx := context.WithoutCancel(ctx)
	jobCtx, cancel := context.WithTimeout(runCtx, w.timeout)
	result, err := w.indexer.Index(jobCtx, job.EntryID)
	cancel()

	statusCtx := runCtx
	if err != nil {
		if herr := w.handleJobFailure(statusCtx, job, err); herr != nil {
			logger.ErrorContext(ctx, "failed to record job failure", "error", herr)
		}
		return
	}

	if err := w.repo.UpdateStatus(statusCtx, job.ID, domain.IndexingJobStatusCompleted, ""); err != nil {
		logger.ErrorContext(ctx, "failed to update job status to completed", "error", err)
		return
	}
	logger.InfoContext(ctx, "job completed", "chunks", result.ChunkCount)
}

// handleJobFailure handles a failed job with retry logic
func (w *IndexingWorker) handleJobFailure(ctx context.Context, job *domain.IndexingJob, jobErr error) error {
	logger := w.logger.With("job_id", job.ID, "entry_id", job.EntryID)

	switch {
	case errors.Is(jobErr, domain.ErrIndexingInProgress):
		logger.InfoContext(ctx, "entry is being indexed elsewhere, requeueing")
		return w.repo.Requeue(ctx, job.ID, "", false)

	case !domain.IsRetryable(jobErr):
		logger.WarnContext(ctx, "job failed permanently", "error", jobErr)
		return w.repo.UpdateStatus(ctx, job.ID, domain.IndexingJobStatusFailed, jobErr.Error())

	case int(job.Retries)+1 >= w.maxRetries:
		logger.WarnContext(ctx, "job exceeded max retries, marking as failed", "max_retries", w.maxRetries, "error", jobErr)
		return w.repo.UpdateStatus(ctx, job.ID, domain.IndexingJobStatusFailed,
			fmt.Sprintf("max retries exceeded: %v", jobErr))
	}

	logger.InfoContext(ctx, "job will be retried", "attempt", job.Retries+1, "max_retries", w.maxRetries, "error", jobErr)
	return w.repo.Requeue(ctx, job.ID, fmt.Sprintf("retry %d: %v", job.Retries+1, jobErr), true)
}
