package repository

import (
	"context"
	"errors"
	"time"

	"github.com/cloo-solutions/groundwork/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const providerColumns = `id, name, kind, chat_model, chat_endpoint, encrypted_credential, embedding_model,
	embedding_endpoint, embedding_dimension, supports_embedding, capabilities, is_active, created_at, updated_at`

const pgUniqueViolation = "23505"

// ProviderRepository persists provider configurations.
type ProviderRepository struct {
	pool *pgxpool.Pool
}

func NewProviderRepository(pool *pgxpool.Pool) *ProviderRepository {
	return &ProviderRepository{pool: pool}
}

func (r *ProviderRepository) Create(ctx context.Context, p *domain.ProviderConfig) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO provider_configs (id, name, kind, chat_model, chat_endpoint, encrypted_credential, embedding_model,
			embedding_endpoint, embedding_dimension, supports_embedding, capabilities, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, FALSE, $12, $13)`,
		p.ID, p.Name, p.Kind, p.ChatModel, nullableString(p.ChatEndpoint), nullableString(p.EncryptedCredential),
		nullableString(p.EmbeddingModel), nullableString(p.EmbeddingEndpoint), p.EmbeddingDimension, p.SupportsEmbedding,
		p.Capabilities, p.CreatedAt, p.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return domain.ErrProviderNameExists
	}
	return err
}

func (r *ProviderRepository) GetByID(ctx context.Context, id string) (*domain.ProviderConfig, error) {
	return r.getOne(ctx, `SELECT `+providerColumns+` FROM provider_configs WHERE id = $1`, id)
}

func (r *ProviderRepository) GetByName(ctx context.Context, name string) (*domain.ProviderConfig, error) {
	return r.getOne(ctx, `SELECT `+providerColumns+` FROM provider_configs WHERE name = $1`, name)
}

// GetActive returns the active configuration or ErrNoActiveProvider.
func (r *ProviderRepository) GetActive(ctx context.Context) (*domain.ProviderConfig, error) {
	p, err := r.getOne(ctx, `SELECT `+providerColumns+` FROM provider_configs WHERE is_active`)
	if errors.Is(err, domain.ErrProviderNotFound) {
		return nil, domain.ErrNoActiveProvider
	}
	return p, err
}

func (r *ProviderRepository) List(ctx context.Context) ([]*domain.ProviderConfig, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+providerColumns+` FROM provider_configs ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*domain.ProviderConfig
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, p)
	}
	return results, rows.Err()
}

// Activate makes id the only active configuration.
func (r *ProviderRepository) Activate(ctx context.Context, id string) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `UPDATE provider_configs SET is_active = FALSE, updated_at = NOW() WHERE is_active AND id <> $1`, id); err != nil {
			return err
		}
		cmdTag, err := tx.Exec(ctx, `UPDATE provider_configs SET is_active = TRUE, updated_at = NOW() WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if cmdTag.RowsAffected() == 0 {
			return domain.ErrProviderNotFound
		}
		return nil
	})
}

// UpdateEmbeddingDefaults fills in the embedding model and dimension.
func (r *ProviderRepository) UpdateEmbeddingDefaults(ctx context.Context, id, model string, dimension int) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE provider_configs SET embedding_model = $1, embedding_dimension = $2, updated_at = $3 WHERE id = $4`,
		model, dimension, time.Now().UTC(), id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrProviderNotFound
	}
	return nil
}

func (r *ProviderRepository) getOne(ctx context.Context, sql string, args ...any) (*domain.ProviderConfig, error) {
	p, err := scanProvider(r.pool.QueryRow(ctx, sql, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrProviderNotFound
		}
		return nil, err
	}
	return p, nil
}

func scanProvider(row pgx.Row) (*domain.ProviderConfig, error) {
	var p domain.ProviderConfig
	var chatEndpoint, credential, embeddingModel, embeddingEndpoint *string
	if err := row.Scan(&p.ID, &p.Name, &p.Kind, &p.ChatModel, &chatEndpoint, &credential, &embeddingModel,
		&embeddingEndpoint, &p.EmbeddingDimension, &p.SupportsEmbedding, &p.Capabilities, &p.IsActive,
		&p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	if chatEndpoint != nil {
		p.ChatEndpoint = *chatEndpoint
	}
	if credential != nil {
		p.EncryptedCredential = *credential
	}
	if embeddingModel != nil {
		p.EmbeddingModel = *embeddingModel
	}
	if embeddingEndpoint != nil {
		p.EmbeddingEndpoint = *embeddingEndpoint
	}
	return &p, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
