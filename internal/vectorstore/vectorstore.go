// Package vectorstore defines the vector index capability and helpers shared
// by its implementations.
package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/cloo-solutions/groundwork/internal/domain"
)

// Metadata is stored alongside every vector.
type Metadata struct {
	EntryID    string `json:"entry_id"`
	ChunkID    string `json:"chunk_id"`
	ChunkIndex int    `json:"chunk_index"`
	Title      string `json:"title"`
	Category   string `json:"category,omitempty"`
	SourceURL  string `json:"source_url,omitempty"`
	CharCount  int    `json:"char_count"`
}

// Field returns a string metadata field by its JSON name.
func (m Metadata) Field(key string) (string, bool) {
	switch key {
	case "entry_id":
		return m.EntryID, true
	case "chunk_id":
		return m.ChunkID, true
	case "title":
		return m.Title, true
	case "category":
		return m.Category, true
	case "source_url":
		return m.SourceURL, true
	}
	return "", false
}

// Item is one vector to upsert.
type Item struct {
	ID       string
	Vector   []float32
	Metadata Metadata
}

// Match is one query result.
type Match struct {
	ID       string
	Score    float64
	Metadata Metadata
}

// Filter restricts a query to records whose string metadata fields equal the
// given values. A nil or empty filter matches everything.
type Filter map[string]string

// Matches reports whether md satisfies f.
func (f Filter) Matches(md Metadata) bool {
	for k, want := range f {
		got, ok := md.Field(k)
		if !ok || got != want {
			return false
		}
	}
	return true
}

// Store is a vector index.
type Store interface {
	// Upsert inserts or replaces items by id.
	Upsert(ctx context.Context, items []Item) error
	// Query returns up to topK matches ordered by score descending, then id ascending.
	Query(ctx context.Context, vector []float32, topK int, filter Filter) ([]Match, error)
	Delete(ctx context.Context, ids []string) error
	// DeleteByOwner removes every vector whose metadata references entryID.
	DeleteByOwner(ctx context.Context, entryID string) error
	// HealthCheck performs a read-only call against the index.
	HealthCheck(ctx context.Context) error
	Dimension() int
}

// SortMatches orders matches by score descending, breaking ties by id.
func SortMatches(matches []Match) {
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ID < matches[j].ID
	})
}

// CheckVector rejects vectors whose length differs from dimension.
func CheckVector(v []float32, dimension int) error {
	if len(v) != dimension {
		return domain.Wrap(domain.ErrDimensionMismatch,
			fmt.Errorf("vector has %d dimensions, index expects %d", len(v), dimension))
	}
	return nil
}

// CheckItems validates every item before anything is written.
func CheckItems(items []Item, dimension int) error {
	for _, it := range items {
		if it.ID == "" {
			return fmt.Errorf("vector item id is required")
		}
		if err := CheckVector(it.Vector, dimension); err != nil {
			return fmt.Errorf("item %s: %w", it.ID, err)
		}
	}
	return nil
}

// Cosine returns the cosine similarity of a and b, or 0 if either is zero.
func Cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
