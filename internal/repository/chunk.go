package repository

import (
	"context"
	"time"

	"github.com/cloo-solutions/groundwork/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ChunkRepository handles persistence of entry chunks.
type ChunkRepository struct {
	db dbtx
}

func NewChunkRepository(pool *pgxpool.Pool) *ChunkRepository {
	return &ChunkRepository{db: pool}
}

func NewChunkRepositoryWithTx(tx pgx.Tx) *ChunkRepository {
	return &ChunkRepository{db: tx}
}

func (r *ChunkRepository) DeleteByEntry(ctx context.Context, entryID string) (int64, error) {
	cmdTag, err := r.db.Exec(ctx, `DELETE FROM knowledge_chunks WHERE entry_id = $1`, entryID)
	if err != nil {
		return 0, err
	}
	return cmdTag.RowsAffected(), nil
}

// CreateBatch inserts all chunks in one round trip.
func (r *ChunkRepository) CreateBatch(ctx context.Context, chunks []*domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, c := range chunks {
		createdAt := c.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		batch.Queue(
			`INSERT INTO knowledge_chunks (id, entry_id, chunk_index, content, char_count, vector_id, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			c.ID, c.EntryID, c.ChunkIndex, c.Content, c.CharCount, c.VectorID, createdAt,
		)
	}

	br := r.db.SendBatch(ctx, batch)
	for range chunks {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return err
		}
	}
	return br.Close()
}

func (r *ChunkRepository) SetVectorIDs(ctx context.Context, vectorIDs map[string]string) error {
	if len(vectorIDs) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for chunkID, vectorID := range vectorIDs {
		batch.Queue(`UPDATE knowledge_chunks SET vector_id = $1 WHERE id = $2`, vectorID, chunkID)
	}

	br := r.db.SendBatch(ctx, batch)
	for range vectorIDs {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return err
		}
	}
	return br.Close()
}

// GetByIDs returns the chunks that still exist, keyed by id.
func (r *ChunkRepository) GetByIDs(ctx context.Context, ids []string) (map[string]*domain.Chunk, error) {
	result := make(map[string]*domain.Chunk, len(ids))
	// Ids come from vector metadata; a malformed one cannot match a row and
	// would fail the uuid[] cast for the whole batch.
	valid := uuidsOnly(ids)
	if len(valid) == 0 {
		return result, nil
	}

	rows, err := r.db.Query(ctx,
		`SELECT id, entry_id, chunk_index, content, char_count, vector_id, created_at
		 FROM knowledge_chunks WHERE id = ANY($1::uuid[])`,
		valid,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	chunks, err := scanChunkRows(rows)
	if err != nil {
		return nil, err
	}
	for _, c := range chunks {
		result[c.ID] = c
	}
	return result, nil
}

func (r *ChunkRepository) ListByEntry(ctx context.Context, entryID string) ([]*domain.Chunk, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, entry_id, chunk_index, content, char_count, vector_id, created_at
		 FROM knowledge_chunks WHERE entry_id = $1 ORDER BY chunk_index`,
		entryID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanChunkRows(rows)
}

func scanChunkRows(rows pgx.Rows) ([]*domain.Chunk, error) {
	var results []*domain.Chunk
	for rows.Next() {
		var c domain.Chunk
		if err := rows.Scan(&c.ID, &c.EntryID, &c.ChunkIndex, &c.Content, &c.CharCount, &c.VectorID, &c.CreatedAt); err != nil {
			return nil, err
		}
		results = append(results, &c)
	}
	return results, rows.Err()
}

func uuidsOnly(ids []string) []string {
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		// Rows come back in canonical form, so only canonical ids can be matched.
		if u, err := uuid.Parse(id); err == nil && u.String() == id {
			valid = append(valid, id)
		}
	}
	return valid
}
