package llm

import (
	"context"
	"fmt"
	"log/slog"
)

// BatchFunc embeds many texts with one backend call.
type BatchFunc func(ctx context.Context, texts []string) ([][]float32, error)

// SingleFunc embeds one text.
type SingleFunc func(ctx context.Context, text string) ([]float32, error)

// EmbedBatchWithFallback tries the native batch call first. When it fails or
// returns the wrong number of vectors, every text is embedded with its own
// call so one bad batch does not fail the whole run.
func EmbedBatchWithFallback(ctx context.Context, texts []string, batch BatchFunc, single SingleFunc, logger *slog.Logger) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	for _, t := range texts {
		if t == "" {
			return nil, ErrEmptyText
		}
	}

	vectors, err := batch(ctx, texts)
	if err == nil && len(vectors) == len(texts) {
		return vectors, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil {
		logger.Warn("batch embedding failed, falling back to sequential calls", "count", len(texts), "error", err)
	} else {
		logger.Warn("batch embedding returned wrong count, falling back to sequential calls",
			"expected", len(texts), "got", len(vectors))
	}

	vectors = make([][]float32, len(texts))
	for i, text := range texts {
		v, err := single(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed text %d of %d: %w", i+1, len(texts), err)
		}
		vectors[i] = v
	}
	return vectors, nil
}
