package llm

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockBackend struct {
	mock.Mock
}

func (m *mockBackend) batch(ctx context.Context, texts []string) ([][]float32, error) {
	args := m.MethodCalled("batch", ctx, texts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([][]float32), args.Error(1)
}

func (m *mockBackend) single(ctx context.Context, text string) ([]float32, error) {
	args := m.MethodCalled("single", ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fiveTexts() []string {
	return []string{"one", "two", "three", "four", "five"}
}

func TestEmbedBatchWithFallback_UsesNativeBatch(t *testing.T) {
	backend := new(mockBackend)
	ctx := context.Background()
	texts := fiveTexts()
	vectors := [][]float32{{1, 0}, {2, 0}, {3, 0}, {4, 0}, {5, 0}}

	backend.On("batch", ctx, texts).Return(vectors, nil).Once()

	got, err := EmbedBatchWithFallback(ctx, texts, backend.batch, backend.single, discardLogger())

	require.NoError(t, err)
	assert.Equal(t, vectors, got)
	backend.AssertNotCalled(t, "single", mock.Anything, mock.Anything)
	backend.AssertExpectations(t)
}

func TestEmbedBatchWithFallback_FallsBackToSequential(t *testing.T) {
	backend := new(mockBackend)
	ctx := context.Background()
	texts := fiveTexts()

	backend.On("batch", ctx, texts).Return(nil, errors.New("502 bad gateway")).Once()
	for i, text := range texts {
		backend.On("single", ctx, text).Return([]float32{float32(i), 1}, nil).Once()
	}

	got, err := EmbedBatchWithFallback(ctx, texts, backend.batch, backend.single, discardLogger())

	require.NoError(t, err)
	require.Len(t, got, 5)
	for i, v := range got {
		assert.Len(t, v, 2)
		assert.Equal(t, float32(i), v[0], "order must match input")
	}
	backend.AssertNumberOfCalls(t, "single", 5)
}

func TestEmbedBatchWithFallback_CountMismatchFallsBack(t *testing.T) {
	backend := new(mockBackend)
	ctx := context.Background()
	texts := []string{"a", "b"}

	backend.On("batch", ctx, texts).Return([][]float32{{1}}, nil).Once()
	backend.On("single", ctx, "a").Return([]float32{1}, nil).Once()
	backend.On("single", ctx, "b").Return([]float32{2}, nil).Once()

	got, err := EmbedBatchWithFallback(ctx, texts, backend.batch, backend.single, discardLogger())

	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1}, {2}}, got)
}

func TestEmbedBatchWithFallback_SequentialErrorIsReturned(t *testing.T) {
	backend := new(mockBackend)
	ctx := context.Background()
	texts := []string{"a", "b"}

	backend.On("batch", ctx, texts).Return(nil, errors.New("batch down")).Once()
	backend.On("single", ctx, "a").Return([]float32{1}, nil).Once()
	backend.On("single", ctx, "b").Return(nil, errors.New("single down")).Once()

	_, err := EmbedBatchWithFallback(ctx, texts, backend.batch, backend.single, discardLogger())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "embed text 2 of 2")
}

func TestEmbedBatchWithFallback_CancelledContextSkipsFallback(t *testing.T) {
	backend := new(mockBackend)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	texts := []string{"a"}

	backend.On("batch", ctx, texts).Return(nil, context.Canceled).Once()

	_, err := EmbedBatchWithFallback(ctx, texts, backend.batch, backend.single, discardLogger())

	assert.ErrorIs(t, err, context.Canceled)
	backend.AssertNotCalled(t, "single", mock.Anything, mock.Anything)
}

func TestEmbedBatchWithFallback_EmptyInput(t *testing.T) {
	backend := new(mockBackend)

	got, err := EmbedBatchWithFallback(context.Background(), nil, backend.batch, backend.single, discardLogger())

	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = EmbedBatchWithFallback(context.Background(), []string{"a", ""}, backend.batch, backend.single, discardLogger())
	assert.ErrorIs(t, err, ErrEmptyText)
}

func TestCheckDimension(t *testing.T) {
	assert.NoError(t, CheckDimension([][]float32{{1, 2}, {3, 4}}, 2))
	assert.NoError(t, CheckDimension([][]float32{{1}}, 0))
	assert.Error(t, CheckDimension([][]float32{{1, 2}, {3}}, 2))
}
