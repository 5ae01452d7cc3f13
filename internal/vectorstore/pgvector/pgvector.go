// Package pgvector stores vectors in a PostgreSQL table using the pgvector extension.
package pgvector

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cloo-solutions/groundwork/internal/domain"
	"github.com/cloo-solutions/groundwork/internal/vectorstore"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// Store implements vectorstore.Store on a vector_records table.
type Store struct {
	pool      *pgxpool.Pool
	dimension int
}

// NewStore creates a store for vectors of the given dimension.
func NewStore(pool *pgxpool.Pool, dimension int) *Store {
	return &Store{pool: pool, dimension: dimension}
}

// EnsureSchema creates the vector table sized to the configured dimension.
// An existing table with a different size is reported as a dimension mismatch.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS vector_records (
			id TEXT PRIMARY KEY,
			embedding vector(%d) NOT NULL,
			metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, s.dimension))
	if err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx,
		`CREATE INDEX IF NOT EXISTS vector_records_entry_id_idx ON vector_records ((metadata->>'entry_id'))`); err != nil {
		return err
	}
	// HNSW is limited to 2000 dimensions; larger models fall back to exact scans.
	if s.dimension <= 2000 {
		if _, err := s.pool.Exec(ctx,
			`CREATE INDEX IF NOT EXISTS vector_records_embedding_idx ON vector_records USING hnsw (embedding vector_cosine_ops)`); err != nil {
			return err
		}
	}

	var size int
	err = s.pool.QueryRow(ctx,
		`SELECT atttypmod FROM pg_attribute
		 WHERE attrelid = 'vector_records'::regclass AND attname = 'embedding'`,
	).Scan(&size)
	if err != nil {
		return err
	}
	if size > 0 && size != s.dimension {
		return domain.Wrap(domain.ErrDimensionMismatch,
			fmt.Errorf("vector_records.embedding has %d dimensions, configured %d", size, s.dimension))
	}
	return nil
}

func (s *Store) Upsert(ctx context.Context, items []vectorstore.Item) error {
	if len(items) == 0 {
		return nil
	}
	if err := vectorstore.CheckItems(items, s.dimension); err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for _, it := range items {
		md, err := json.Marshal(it.Metadata)
		if err != nil {
			return err
		}
		batch.Queue(
			`INSERT INTO vector_records (id, embedding, metadata, updated_at)
			 VALUES ($1, $2, $3, NOW())
			 ON CONFLICT (id) DO UPDATE
			 SET embedding = EXCLUDED.embedding, metadata = EXCLUDED.metadata, updated_at = NOW()`,
			it.ID, pgvector.NewVector(it.Vector), md,
		)
	}

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		br := tx.SendBatch(ctx, batch)
		for range items {
			if _, err := br.Exec(); err != nil {
				_ = br.Close()
				return domain.Wrap(domain.ErrVectorStoreFailure, err)
			}
		}
		return br.Close()
	})
}

func (s *Store) Query(ctx context.Context, vector []float32, topK int, filter vectorstore.Filter) ([]vectorstore.Match, error) {
	if err := vectorstore.CheckVector(vector, s.dimension); err != nil {
		return nil, err
	}
	if topK <= 0 {
		topK = 5
	}
	if filter == nil {
		filter = vectorstore.Filter{}
	}
	filterJSON, err := json.Marshal(filter)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, metadata, 1 - (embedding <=> $1) AS score
		 FROM vector_records
		 WHERE metadata @> $2::jsonb
		 ORDER BY embedding <=> $1, id
		 LIMIT $3`,
		pgvector.NewVector(vector), filterJSON, topK,
	)
	if err != nil {
		return nil, domain.Wrap(domain.ErrVectorStoreFailure, err)
	}
	defer rows.Close()

	matches := make([]vectorstore.Match, 0, topK)
	for rows.Next() {
		var m vectorstore.Match
		var md []byte
		if err := rows.Scan(&m.ID, &md, &m.Score); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(md, &m.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata for %s: %w", m.ID, err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Wrap(domain.ErrVectorStoreFailure, err)
	}

	vectorstore.SortMatches(matches)
	return matches, nil
}

func (s *Store) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM vector_records WHERE id = ANY($1)`, ids); err != nil {
		return domain.Wrap(domain.ErrVectorStoreFailure, err)
	}
	return nil
}

func (s *Store) DeleteByOwner(ctx context.Context, entryID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM vector_records WHERE metadata->>'entry_id' = $1`, entryID); err != nil {
		return domain.Wrap(domain.ErrVectorStoreFailure, err)
	}
	return nil
}

// HealthCheck reads table statistics without touching rows.
func (s *Store) HealthCheck(ctx context.Context) error {
	var estimate int64
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(reltuples, 0)::bigint FROM pg_class WHERE relname = 'vector_records'`,
	).Scan(&estimate)
	if err != nil {
		return domain.Wrap(domain.ErrVectorStoreFailure, err)
	}
	return nil
}

func (s *Store) Dimension() int {
	return s.dimension
}

// CountByOwner returns how many vectors reference entryID.
func (s *Store) CountByOwner(ctx context.Context, entryID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM vector_records WHERE metadata->>'entry_id' = $1`, entryID,
	).Scan(&n)
	return n, err
}
