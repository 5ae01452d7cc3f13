package admin

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/cloo-solutions/groundwork/internal/config"
	"github.com/cloo-solutions/groundwork/internal/crypto"
	"github.com/cloo-solutions/groundwork/internal/database"
	"github.com/cloo-solutions/groundwork/internal/provider"
	"github.com/cloo-solutions/groundwork/internal/repository"
	"github.com/cloo-solutions/groundwork/internal/service"
	"github.com/cloo-solutions/groundwork/internal/vectorstore"
	"github.com/cloo-solutions/groundwork/internal/vectorstore/memory"
	"github.com/cloo-solutions/groundwork/internal/vectorstore/pgvector"
	"github.com/cloo-solutions/groundwork/internal/vectorstore/qdrant"
	"github.com/jackc/pgx/v5/pgxpool"
)

// runtime holds the wired dependencies shared by the daemon commands.
type runtime struct {
	cfg    *config.Config
	logger *slog.Logger
	pool   *pgxpool.Pool

	entries   *repository.EntryRepository
	chunks    *repository.ChunkRepository
	jobs      *repository.IndexingJobRepository
	providers *repository.ProviderRepository
	settings  *repository.SettingsRepository
	txRunner  *repository.TxRunner

	sealer   *crypto.Sealer
	store    vectorstore.Store
	resolver *provider.Resolver
}

type runtimeOptions struct {
	migrate bool
}

func openRuntime(ctx context.Context, opts runtimeOptions) (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger := cfg.NewLogger(os.Stderr)

	defaults, err := cfg.RAGDefaults()
	if err != nil {
		return nil, err
	}

	if opts.migrate {
		if err := database.Migrate(cfg.DatabaseURL, logger); err != nil {
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	pool, err := database.NewPool(ctx, database.Config{URL: cfg.DatabaseURL})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sealer, err := newSealer(cfg)
	if err != nil {
		pool.Close()
		return nil, err
	}

	store, err := newVectorStore(ctx, cfg, pool)
	if err != nil {
		pool.Close()
		return nil, err
	}

	providers := repository.NewProviderRepository(pool)
	return &runtime{
		cfg:       cfg,
		logger:    logger,
		pool:      pool,
		entries:   repository.NewEntryRepository(pool),
		chunks:    repository.NewChunkRepository(pool),
		jobs:      repository.NewIndexingJobRepository(pool),
		providers: providers,
		settings:  repository.NewSettingsRepository(pool, defaults),
		txRunner:  repository.NewTxRunner(pool),
		sealer:    sealer,
		store:     store,
		resolver:  provider.NewResolver(providers, sealer, cfg.VectorDimension, logger),
	}, nil
}

func (rt *runtime) Close() {
	rt.pool.Close()
}

func (rt *runtime) indexingService() *service.IndexingService {
	return service.NewIndexingService(rt.entries, rt.txRunner, rt.store, rt.resolver, rt.settings, rt.logger).
		WithStaleAfter(2 * rt.cfg.IndexTimeout)
}

func (rt *runtime) entryService() *service.EntryService {
	return service.NewEntryService(rt.entries, rt.txRunner, rt.store)
}

func (rt *runtime) answerService() *service.AnswerService {
	return service.NewAnswerService(rt.chunks, rt.store, rt.resolver, rt.settings, service.AnswerTimeouts{
		Embed:  rt.cfg.EmbedTimeout,
		Search: rt.cfg.VectorTimeout,
		Chat:   rt.cfg.ChatTimeout,
	}, rt.logger)
}

func (rt *runtime) healthService() *service.HealthService {
	return service.NewHealthService(rt.providers, rt.resolver, rt.store, rt.logger)
}

// newSealer returns nil when no credential key is configured; stored
// credentials then fail to open with ErrCredentialDecrypt.
func newSealer(cfg *config.Config) (*crypto.Sealer, error) {
	if cfg.CredentialKey == "" {
		return nil, nil
	}
	sealer, err := crypto.NewSealer(cfg.CredentialKey)
	if err != nil {
		return nil, fmt.Errorf("invalid credential key: %w", err)
	}
	return sealer, nil
}

func newVectorStore(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) (vectorstore.Store, error) {
	switch cfg.VectorStore {
	case config.VectorStoreQdrant:
		store := qdrant.NewStore(qdrant.Config{
			URL:        cfg.QdrantURL,
			APIKey:     cfg.QdrantAPIKey,
			Collection: cfg.QdrantCollection,
			Dimension:  cfg.VectorDimension,
			Timeout:    cfg.VectorTimeout,
		})
		if err := store.EnsureCollection(ctx); err != nil {
			return nil, fmt.Errorf("failed to prepare qdrant collection: %w", err)
		}
		return store, nil
	case config.VectorStoreMemory:
		return memory.NewStore(cfg.VectorDimension), nil
	default:
		store := pgvector.NewStore(pool, cfg.VectorDimension)
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("failed to prepare vector table: %w", err)
		}
		return store, nil
	}
}
