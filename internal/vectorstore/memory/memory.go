// Package memory is an in-process vector store using brute-force cosine similarity.
package memory

import (
	"context"
	"sync"

	"github.com/cloo-solutions/groundwork/internal/vectorstore"
)

// Store keeps vectors in a map guarded by a mutex.
type Store struct {
	mu        sync.RWMutex
	dimension int
	items     map[string]vectorstore.Item
}

// NewStore creates an empty store for vectors of the given dimension.
func NewStore(dimension int) *Store {
	return &Store{dimension: dimension, items: make(map[string]vectorstore.Item)}
}

func (s *Store) Upsert(ctx context.Context, items []vectorstore.Item) error {
	if err := vectorstore.CheckItems(items, s.dimension); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range items {
		v := make([]float32, len(it.Vector))
		copy(v, it.Vector)
		it.Vector = v
		s.items[it.ID] = it
	}
	return nil
}

func (s *Store) Query(ctx context.Context, vector []float32, topK int, filter vectorstore.Filter) ([]vectorstore.Match, error) {
	if err := vectorstore.CheckVector(vector, s.dimension); err != nil {
		return nil, err
	}
	if topK <= 0 {
		topK = 5
	}

	s.mu.RLock()
	matches := make([]vectorstore.Match, 0, len(s.items))
	for id, it := range s.items {
		if !filter.Matches(it.Metadata) {
			continue
		}
		matches = append(matches, vectorstore.Match{
			ID:       id,
			Score:    vectorstore.Cosine(vector, it.Vector),
			Metadata: it.Metadata,
		})
	}
	s.mu.RUnlock()

	vectorstore.SortMatches(matches)
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func (s *Store) Delete(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.items, id)
	}
	return nil
}

func (s *Store) DeleteByOwner(ctx context.Context, entryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, it := range s.items {
		if it.Metadata.EntryID == entryID {
			delete(s.items, id)
		}
	}
	return nil
}

func (s *Store) HealthCheck(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) Dimension() int {
	return s.dimension
}

// Len returns the number of stored vectors.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// CountByOwner returns the number of vectors belonging to entryID.
func (s *Store) CountByOwner(entryID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, it := range s.items {
		if it.Metadata.EntryID == entryID {
			n++
		}
	}
	return n
}
