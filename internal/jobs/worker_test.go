package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cloo-solutions/groundwork/internal/domain"
	"github.com/cloo-solutions/groundwork/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// MockJobProcessor is a mock implementation of JobProcessor
type MockJobProcessor struct {
	mock.Mock
}

func (m *MockJobProcessor) ProcessJobs(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockIndexingJobRepository is a mock implementation of IndexingJobRepository
type MockIndexingJobRepository struct {
	mock.Mock
}

func (m *MockIndexingJobRepository) ClaimPending(ctx context.Context, limit int) ([]*domain.IndexingJob, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.IndexingJob), args.Error(1)
}

func (m *MockIndexingJobRepository) UpdateStatus(ctx context.Context, id string, status domain.IndexingJobStatus, errMsg string) error {
	args := m.Called(ctx, id, status, errMsg)
	return args.Error(0)
}

func (m *MockIndexingJobRepository) Requeue(ctx context.Context, id string, errMsg string, consumeRetry bool) error {
	args := m.Called(ctx, id, errMsg, consumeRetry)
	return args.Error(0)
}

func (m *MockIndexingJobRepository) ResetStale(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

// MockIndexer is a mock implementation of Indexer
type MockIndexer struct {
	mock.Mock
}

func (m *MockIndexer) Index(ctx context.Context, entryID string) (*service.IndexingResult, error) {
	args := m.Called(ctx, entryID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.IndexingResult), args.Error(1)
}

func newJob(id, entryID string, retries int32) *domain.IndexingJob {
	return domain.NewIndexingJob(id, entryID, domain.IndexingJobStatusProcessing, retries, "", time.Now(), nil)
}

func newTestWorker(t *testing.T, repo *MockIndexingJobRepository, indexer *MockIndexer) *IndexingWorker {
	t.Helper()
	w, err := NewIndexingWorker(repo, indexer, IndexingWorkerOptions{Concurrency: 2, JobTimeout: time.Second}, discardLogger())
	require.NoError(t, err)
	t.Cleanup(w.Release)
	return w
}

// TestWorker_StartStop tests the worker start and stop functionality
func TestWorker_StartStop(t *testing.T) {
	mockProcessor := new(MockJobProcessor)
	mockProcessor.On("ProcessJobs", mock.Anything).Return(nil)

	worker := NewWorker(mockProcessor, 100*time.Millisecond, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Start(ctx)
	}()

	time.Sleep(250 * time.Millisecond)

	worker.Stop()
	wg.Wait()

	mockProcessor.AssertCalled(t, "ProcessJobs", mock.Anything)
}

// TestWorker_ContextCancellation tests worker stops on context cancellation
func TestWorker_ContextCancellation(t *testing.T) {
	mockProcessor := new(MockJobProcessor)
	mockProcessor.On("ProcessJobs", mock.Anything).Return(errors.New("transient"))

	worker := NewWorker(mockProcessor, 100*time.Millisecond, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Start(ctx)
	}()

	time.Sleep(150 * time.Millisecond)

	cancel()
	wg.Wait()

	mockProcessor.AssertCalled(t, "ProcessJobs", mock.Anything)
}

func TestIndexingWorker_ProcessJobs(t *testing.T) {
	ctx := context.Background()

	t.Run("no pending jobs", func(t *testing.T) {
		repo := new(MockIndexingJobRepository)
		indexer := new(MockIndexer)
		w := newTestWorker(t, repo, indexer)

		repo.On("ResetStale", mock.Anything, mock.Anything).Return(int64(0), nil)
		repo.On("ClaimPending", mock.Anything, 2).Return([]*domain.IndexingJob{}, nil)

		require.NoError(t, w.ProcessJobs(ctx))
		w.Wait()
		indexer.AssertNotCalled(t, "Index")
	})

	t.Run("claim error is returned", func(t *testing.T) {
		repo := new(MockIndexingJobRepository)
		w := newTestWorker(t, repo, new(MockIndexer))

		repo.On("ResetStale", mock.Anything, mock.Anything).Return(int64(0), errors.New("db down"))
		repo.On("ClaimPending", mock.Anything, 2).Return(nil, errors.New("db down"))

		err := w.ProcessJobs(ctx)
		assert.ErrorContains(t, err, "failed to claim pending jobs")
	})

	t.Run("runs jobs concurrently and marks them completed", func(t *testing.T) {
		repo := new(MockIndexingJobRepository)
		indexer := new(MockIndexer)
		w := newTestWorker(t, repo, indexer)

		repo.On("ResetStale", mock.Anything, mock.Anything).Return(int64(1), nil)
		repo.On("ClaimPending", mock.Anything, 2).Return([]*domain.IndexingJob{
			newJob("job-1", "entry-1", 0),
			newJob("job-2", "entry-2", 0),
		}, nil)
		indexer.On("Index", mock.Anything, "entry-1").Return(&service.IndexingResult{EntryID: "entry-1", ChunkCount: 3}, nil)
		indexer.On("Index", mock.Anything, "entry-2").Return(&service.IndexingResult{EntryID: "entry-2", ChunkCount: 1}, nil)
		repo.On("UpdateStatus", mock.Anything, "job-1", domain.IndexingJobStatusCompleted, "").Return(nil)
		repo.On("UpdateStatus", mock.Anything, "job-2", domain.IndexingJobStatusCompleted, "").Return(nil)

		require.NoError(t, w.ProcessJobs(ctx))
		w.Wait()

		repo.AssertExpectations(t)
		indexer.AssertExpectations(t)
	})

	t.Run("index run gets a deadline", func(t *testing.T) {
		repo := new(MockIndexingJobRepository)
		indexer := new(MockIndexer)
		w := newTestWorker(t, repo, indexer)

		repo.On("ResetStale", mock.Anything, mock.Anything).Return(int64(0), nil)
		repo.On("ClaimPending", mock.Anything, 2).Return([]*domain.IndexingJob{newJob("job-1", "entry-1", 0)}, nil)
		indexer.On("Index", mock.MatchedBy(func(ctx context.Context) bool {
			_, ok := ctx.Deadline()
			return ok
		}), "entry-1").Return(&service.IndexingResult{ChunkCount: 1}, nil)
		repo.On("UpdateStatus", mock.Anything, "job-1", domain.IndexingJobStatusCompleted, "").Return(nil)

		require.NoError(t, w.ProcessJobs(ctx))
		w.Wait()
		indexer.AssertExpectations(t)
	})
}

func TestIndexingWorker_JobsOutliveShutdown(t *testing.T) {
	repo := new(MockIndexingJobRepository)
	indexer := new(MockIndexer)
	w := newTestWorker(t, repo, indexer)

	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	release := make(chan struct{})

	repo.On("ResetStale", mock.Anything, mock.Anything).Return(int64(0), nil)
	repo.On("ClaimPending", mock.Anything, 2).Return([]*domain.IndexingJob{newJob("job-1", "entry-1", 0)}, nil)
	var runErr error
	indexer.On("Index", mock.Anything, "entry-1").Run(func(args mock.Arguments) {
		close(started)
		<-release
		runErr = args.Get(0).(context.Context).Err()
	}).Return(&service.IndexingResult{ChunkCount: 2}, nil)
	repo.On("UpdateStatus", mock.Anything, "job-1", domain.IndexingJobStatusCompleted, "").Return(nil)

	require.NoError(t, w.ProcessJobs(ctx))
	<-started
	cancel()
	close(release)
	w.Wait()

	assert.NoError(t, runErr)
	repo.AssertCalled(t, "UpdateStatus", mock.Anything, "job-1", domain.IndexingJobStatusCompleted, "")
	repo.AssertNotCalled(t, "Requeue", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestIndexingWorker_HandleJobFailure(t *testing.T) {
	ctx := context.Background()

	t.Run("transient error is retried", func(t *testing.T) {
		repo := new(MockIndexingJobRepository)
		w := newTestWorker(t, repo, new(MockIndexer))
		jobErr := domain.Wrap(domain.ErrProviderUnavailable, errors.New("503"))

		repo.On("Requeue", mock.Anything, "job-1", mock.MatchedBy(func(msg string) bool {
			return strings.HasPrefix(msg, "retry 1: ")
		}), true).Return(nil)

		require.NoError(t, w.handleJobFailure(ctx, newJob("job-1", "entry-1", 0), jobErr))
		repo.AssertExpectations(t)
	})

	t.Run("last retry marks the job failed", func(t *testing.T) {
		repo := new(MockIndexingJobRepository)
		w := newTestWorker(t, repo, new(MockIndexer))

		repo.On("UpdateStatus", mock.Anything, "job-1", domain.IndexingJobStatusFailed, "max retries exceeded: timeout").Return(nil)

		require.NoError(t, w.handleJobFailure(ctx, newJob("job-1", "entry-1", 2), errors.New("timeout")))
		repo.AssertExpectations(t)
		repo.AssertNotCalled(t, "Requeue")
	})

	t.Run("configuration error is not retried", func(t *testing.T) {
		repo := new(MockIndexingJobRepository)
		w := newTestWorker(t, repo, new(MockIndexer))
		jobErr := &service.IndexingError{EntryID: "entry-1", Step: service.StepProvider, Err: domain.ErrNoActiveProvider}

		repo.On("UpdateStatus", mock.Anything, "job-1", domain.IndexingJobStatusFailed, jobErr.Error()).Return(nil)

		require.NoError(t, w.handleJobFailure(ctx, newJob("job-1", "entry-1", 0), jobErr))
		repo.AssertExpectations(t)
		repo.AssertNotCalled(t, "Requeue")
	})

	t.Run("data error is not retried", func(t *testing.T) {
		repo := new(MockIndexingJobRepository)
		w := newTestWorker(t, repo, new(MockIndexer))

		repo.On("UpdateStatus", mock.Anything, "job-1", domain.IndexingJobStatusFailed, mock.Anything).Return(nil)

		require.NoError(t, w.handleJobFailure(ctx, newJob("job-1", "entry-1", 0), domain.ErrNoValidChunks))
		repo.AssertNotCalled(t, "Requeue")
	})

	t.Run("claim conflict requeues without consuming a retry", func(t *testing.T) {
		repo := new(MockIndexingJobRepository)
		w := newTestWorker(t, repo, new(MockIndexer))
		jobErr := &service.IndexingError{EntryID: "entry-1", Step: service.StepClaim, Err: domain.ErrIndexingInProgress}

		repo.On("Requeue", mock.Anything, "job-1", "", false).Return(nil)

		require.NoError(t, w.handleJobFailure(ctx, newJob("job-1", "entry-1", 2), jobErr))
		repo.AssertExpectations(t)
	})

	t.Run("repository error is surfaced", func(t *testing.T) {
		repo := new(MockIndexingJobRepository)
		w := newTestWorker(t, repo, new(MockIndexer))

		repo.On("Requeue", mock.Anything, "job-1", mock.Anything, true).Return(errors.New("db down"))

		assert.Error(t, w.handleJobFailure(ctx, newJob("job-1", "entry-1", 0), errors.New("boom")))
	})
}

func TestIndexingWorker_FailedJobDoesNotStopWorker(t *testing.T) {
	ctx := context.Background()
	repo := new(MockIndexingJobRepository)
	indexer := new(MockIndexer)
	w := newTestWorker(t, repo, indexer)

	repo.On("ResetStale", mock.Anything, mock.Anything).Return(int64(0), nil)
	repo.On("ClaimPending", mock.Anything, 2).Return([]*domain.IndexingJob{
		newJob("job-1", "entry-1", 0),
		newJob("job-2", "entry-2", 0),
	}, nil).Once()
	indexer.On("Index", mock.Anything, "entry-1").Return(nil, errors.New("boom"))
	indexer.On("Index", mock.Anything, "entry-2").Return(&service.IndexingResult{ChunkCount: 2}, nil)
	repo.On("Requeue", mock.Anything, "job-1", mock.Anything, true).Return(errors.New("db down"))
	repo.On("UpdateStatus", mock.Anything, "job-2", domain.IndexingJobStatusCompleted, "").Return(nil)

	require.NoError(t, w.ProcessJobs(ctx))
	w.Wait()

	repo.AssertCalled(t, "UpdateStatus", mock.Anything, "job-2", domain.IndexingJobStatusCompleted, "")
}
