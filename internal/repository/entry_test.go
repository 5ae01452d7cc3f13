//go:build integration

package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/cloo-solutions/groundwork/internal/domain"
	"github.com/cloo-solutions/groundwork/internal/pagination"
	"github.com/cloo-solutions/groundwork/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEntry(title string) *domain.Entry {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return domain.NewEntry(uuid.NewString(), title, "Body of "+title, "guides", "https://docs.example.com/"+title, now)
}

func TestEntryRepository_CreateGetUpdateDelete(t *testing.T) {
	ctx := context.Background()
	pool := testutil.SetupPostgres(ctx, t, "../../migrations")
	repo := NewEntryRepository(pool)

	e := newTestEntry("setup")
	require.NoError(t, repo.Create(ctx, e))

	got, err := repo.GetByID(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, e.Title, got.Title)
	assert.Equal(t, e.Category, got.Category)
	assert.Equal(t, e.SourceURL, got.SourceURL)
	assert.Equal(t, domain.IndexingStatusPending, got.IndexingStatus)
	assert.Nil(t, got.LastIndexedAt)

	got.Title = "renamed"
	got.Category = ""
	require.NoError(t, repo.Update(ctx, got))

	got, err = repo.GetByID(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Title)
	assert.Empty(t, got.Category)

	require.NoError(t, repo.Delete(ctx, e.ID))
	_, err = repo.GetByID(ctx, e.ID)
	assert.ErrorIs(t, err, domain.ErrEntryNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, e.ID), domain.ErrEntryNotFound)
}

func TestEntryRepository_ClaimForIndexing(t *testing.T) {
	ctx := context.Background()
	pool := testutil.SetupPostgres(ctx, t, "../../migrations")
	repo := NewEntryRepository(pool)

	e := newTestEntry("claim")
	require.NoError(t, repo.Create(ctx, e))

	claimed, err := repo.ClaimForIndexing(ctx, e.ID, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, domain.IndexingStatusIndexing, claimed.IndexingStatus)
	require.NotNil(t, claimed.IndexingStartedAt)

	t.Run("second claim conflicts", func(t *testing.T) {
		_, err := repo.ClaimForIndexing(ctx, e.ID, time.Now().Add(-time.Hour))
		assert.ErrorIs(t, err, domain.ErrIndexingInProgress)
	})

	t.Run("stale claim is taken over", func(t *testing.T) {
		_, err := repo.ClaimForIndexing(ctx, e.ID, time.Now().Add(time.Minute))
		assert.NoError(t, err)
	})

	t.Run("missing entry", func(t *testing.T) {
		_, err := repo.ClaimForIndexing(ctx, uuid.NewString(), time.Now())
		assert.ErrorIs(t, err, domain.ErrEntryNotFound)
	})

	t.Run("mark pending leaves a running claim alone", func(t *testing.T) {
		require.NoError(t, repo.MarkPending(ctx, e.ID))
		got, err := repo.GetByID(ctx, e.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.IndexingStatusIndexing, got.IndexingStatus)
	})
}

func TestEntryRepository_MarkCompletedAndFailed(t *testing.T) {
	ctx := context.Background()
	pool := testutil.SetupPostgres(ctx, t, "../../migrations")
	repo := NewEntryRepository(pool)

	e := newTestEntry("marks")
	require.NoError(t, repo.Create(ctx, e))

	t.Run("completed requires chunks", func(t *testing.T) {
		assert.Error(t, repo.MarkCompleted(ctx, e.ID, 0, time.Now()))
	})

	at := time.Now().UTC().Truncate(time.Microsecond)
	require.NoError(t, repo.MarkCompleted(ctx, e.ID, 3, at))
	got, err := repo.GetByID(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.IndexingStatusCompleted, got.IndexingStatus)
	assert.Equal(t, 3, got.ChunkCount)
	require.NotNil(t, got.LastIndexedAt)
	assert.True(t, at.Equal(*got.LastIndexedAt))

	require.NoError(t, repo.MarkFailed(ctx, e.ID, "embedding failed"))
	got, err = repo.GetByID(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.IndexingStatusFailed, got.IndexingStatus)
	assert.Equal(t, 0, got.ChunkCount)
	assert.Equal(t, "embedding failed", got.IndexingError)

	require.NoError(t, repo.MarkPending(ctx, e.ID))
	got, err = repo.GetByID(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.IndexingStatusPending, got.IndexingStatus)
}

func TestEntryRepository_ListWithCursor(t *testing.T) {
	ctx := context.Background()
	pool := testutil.SetupPostgres(ctx, t, "../../migrations")
	repo := NewEntryRepository(pool)

	for i := 0; i < 5; i++ {
		e := newTestEntry(fmt.Sprintf("entry-%d", i))
		e.UpdatedAt = e.UpdatedAt.Add(time.Duration(i) * time.Second)
		require.NoError(t, repo.Create(ctx, e))
	}

	first, err := repo.ListWithCursor(ctx, nil, 2)
	require.NoError(t, err)
	require.Len(t, first.Items, 2)
	assert.True(t, first.HasMore)
	assert.Equal(t, "entry-4", first.Items[0].Title)

	cursor, err := pagination.DecodeCursor(first.NextCursor)
	require.NoError(t, err)

	second, err := repo.ListWithCursor(ctx, cursor, 10)
	require.NoError(t, err)
	require.Len(t, second.Items, 3)
	assert.False(t, second.HasMore)
	assert.Empty(t, second.NextCursor)
	assert.Equal(t, "entry-2", second.Items[0].Title)
}
