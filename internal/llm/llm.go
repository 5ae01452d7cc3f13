// Package llm defines the embedding and chat capabilities every AI backend
// is adapted to, plus helpers shared by the backend packages.
package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloo-solutions/groundwork/internal/domain"
)

var (
	// ErrEmptyText is returned when text is empty
	ErrEmptyText = errors.New("text cannot be empty")
	// ErrEmptyResponse is returned when a backend answers without any data
	ErrEmptyResponse = errors.New("backend returned no data")
)

// EmbedderInfo describes the embedding model behind an Embedder.
type EmbedderInfo struct {
	Kind      domain.ProviderKind
	Model     string
	Dimension int
	// Degraded is set when vectors are not semantic, e.g. the hashing fallback.
	Degraded bool
}

// Embedder converts text into fixed-length vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch returns exactly one vector per input, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Info() EmbedderInfo
}

// Prompt is a single-turn chat request.
type Prompt struct {
	System      string
	User        string
	MaxTokens   int
	Temperature float64
}

// ChatModel produces completions, whole or streamed.
type ChatModel interface {
	Complete(ctx context.Context, p Prompt) (string, error)
	// Stream calls onChunk for each piece of the completion in arrival order.
	// An error from onChunk stops the stream and is returned.
	Stream(ctx context.Context, p Prompt, onChunk func(string) error) error
	Model() string
}

// CheckDimension verifies every vector has the expected length.
func CheckDimension(vectors [][]float32, dimension int) error {
	if dimension <= 0 {
		return nil
	}
	for i, v := range vectors {
		if len(v) != dimension {
			return domain.Wrap(domain.ErrDimensionMismatch,
				fmt.Errorf("vector %d has %d dimensions, expected %d", i, len(v), dimension))
		}
	}
	return nil
}
