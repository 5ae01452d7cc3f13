// Package hashing provides the deterministic fallback embedder used when the
// active backend cannot embed. Its vectors carry no semantic meaning and it
// always reports itself as degraded.
package hashing

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"strconv"

	"github.com/cloo-solutions/groundwork/internal/domain"
	"github.com/cloo-solutions/groundwork/internal/llm"
)

// Model is the name reported for hashing embeddings
const Model = "sha256-hashing"

// Embedder implements llm.Embedder with SHA-256 digests
type Embedder struct {
	kind      domain.ProviderKind
	dimension int
}

// NewEmbedder creates a fallback embedder producing vectors of dimension size
// on behalf of a backend of the given kind.
func NewEmbedder(kind domain.ProviderKind, dimension int) *Embedder {
	return &Embedder{kind: kind, dimension: dimension}
}

// Embed returns the fallback vector for text
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, llm.ErrEmptyText
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return Vector(text, e.dimension), nil
}

// EmbedBatch embeds every text locally, in order
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		vectors[i] = v
	}
	return vectors, nil
}

// Info reports the embedder as degraded
func (e *Embedder) Info() llm.EmbedderInfo {
	return llm.EmbedderInfo{Kind: e.kind, Model: Model, Dimension: e.dimension, Degraded: true}
}

// Vector derives a unit-length vector from successive digests of
// "<round>:<text>". Each big-endian byte pair becomes one component in [-1, 1].
func Vector(text string, dimension int) []float32 {
	v := make([]float32, dimension)
	filled := 0
	for round := 0; filled < dimension; round++ {
		sum := sha256.Sum256([]byte(strconv.Itoa(round) + ":" + text))
		for i := 0; i+1 < len(sum) && filled < dimension; i += 2 {
			pair := binary.BigEndian.Uint16(sum[i : i+2])
			v[filled] = float32(float64(pair)/32767.5 - 1)
			filled++
		}
	}

	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		return v
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range v {
		v[i] *= scale
	}
	return v
}
