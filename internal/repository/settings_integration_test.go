//go:build integration

package repository

import (
	"context"
	"testing"

	"github.com/cloo-solutions/groundwork/internal/domain"
	"github.com/cloo-solutions/groundwork/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettingsRepository_SetAndLoad(t *testing.T) {
	ctx := context.Background()
	pool := testutil.SetupPostgres(ctx, t, "../../migrations")
	repo := NewSettingsRepository(pool, defaultSettings())

	require.NoError(t, repo.Set(ctx, SettingTopK, "9"))
	require.NoError(t, repo.Set(ctx, SettingTopK, "7"))
	require.NoError(t, repo.Set(ctx, SettingStrictMode, "true"))

	values, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{SettingTopK: "7", SettingStrictMode: "true"}, values)

	s, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, s.TopK)
	assert.True(t, s.StrictMode)

	require.NoError(t, repo.Unset(ctx, SettingTopK))
	s, err = repo.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, s.TopK)
}

func TestSettingsRepository_SetValidatesAgainstStoredOverrides(t *testing.T) {
	ctx := context.Background()
	pool := testutil.SetupPostgres(ctx, t, "../../migrations")
	repo := NewSettingsRepository(pool, defaultSettings())

	require.NoError(t, repo.Set(ctx, SettingChunkOverlap, "400"))

	// 300 is fine against the default overlap of 200 but not the stored 400.
	err := repo.Set(ctx, SettingChunkSize, "300")
	assert.ErrorIs(t, err, domain.ErrInvalidChunkParams)

	s, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1024, s.ChunkSize)
	assert.Equal(t, 400, s.ChunkOverlap)
}

func TestSettingsRepository_UnsetKeepsSettingsValid(t *testing.T) {
	ctx := context.Background()
	pool := testutil.SetupPostgres(ctx, t, "../../migrations")
	repo := NewSettingsRepository(pool, defaultSettings())

	require.NoError(t, repo.Set(ctx, SettingChunkOverlap, "50"))
	require.NoError(t, repo.Set(ctx, SettingChunkSize, "100"))

	// Dropping the overlap would bring back the default 200 against size 100.
	assert.ErrorIs(t, repo.Unset(ctx, SettingChunkOverlap), domain.ErrInvalidChunkParams)

	_, err := repo.Load(ctx)
	require.NoError(t, err)
}

func TestSettingsRepository_UnknownKey(t *testing.T) {
	ctx := context.Background()
	pool := testutil.SetupPostgres(ctx, t, "../../migrations")
	repo := NewSettingsRepository(pool, defaultSettings())

	assert.ErrorIs(t, repo.Set(ctx, "temperature", "0.2"), domain.ErrUnknownSetting)
	assert.ErrorIs(t, repo.Unset(ctx, "temperature"), domain.ErrUnknownSetting)
}
