package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cloo-solutions/groundwork/internal/domain"
	"github.com/cloo-solutions/groundwork/internal/llm"
	"github.com/cloo-solutions/groundwork/internal/telemetry"
	"github.com/cloo-solutions/groundwork/internal/vectorstore"
	"golang.org/x/sync/errgroup"
)

// HealthStatus is the outcome of a single check
type HealthStatus string

const (
	HealthConnected          HealthStatus = "connected"
	HealthError              HealthStatus = "error"
	HealthNoActiveProvider   HealthStatus = "no_active_provider"
	HealthNoEmbeddingSupport HealthStatus = "no_embedding_support"
	HealthHealthy            HealthStatus = "healthy"
	HealthUnhealthy          HealthStatus = "unhealthy"
)

const defaultHealthTimeout = 15 * time.Second

const healthProbeText = "groundwork health check"

// EmbeddingHealth reports whether the active provider can embed for the
// configured vector store.
type EmbeddingHealth struct {
	Status    HealthStatus `json:"status"`
	Provider  string       `json:"provider,omitempty"`
	Kind      string       `json:"kind,omitempty"`
	Model     string       `json:"model,omitempty"`
	Dimension int          `json:"dimension,omitempty"`
	Degraded  bool         `json:"degraded_embedding"`
	Repaired  bool         `json:"repaired,omitempty"`
	LatencyMS int64        `json:"latency_ms,omitempty"`
	Message   string       `json:"message,omitempty"`
	Hint      string       `json:"hint,omitempty"`

	err error
}

// VectorStoreHealth reports whether the vector index answers
type VectorStoreHealth struct {
	Status    HealthStatus `json:"status"`
	Dimension int          `json:"dimension"`
	LatencyMS int64        `json:"latency_ms,omitempty"`
	Message   string       `json:"message,omitempty"`

	err error
}

// SystemHealth combines both checks
type SystemHealth struct {
	Status      HealthStatus      `json:"status"`
	Embedding   EmbeddingHealth   `json:"embedding"`
	VectorStore VectorStoreHealth `json:"vector_store"`
}

// HealthService checks that the active provider and the vector store can
// serve indexing and retrieval, repairing blank embedding defaults on the way.
type HealthService struct {
	providers ProviderRepositoryInterface
	resolver  ProviderResolver
	store     vectorstore.Store
	timeout   time.Duration
	logger    *slog.Logger
}

// NewHealthService creates a new HealthService instance
func NewHealthService(
	providers ProviderRepositoryInterface,
	resolver ProviderResolver,
	store vectorstore.Store,
	logger *slog.Logger,
) *HealthService {
	return &HealthService{
		providers: providers,
		resolver:  resolver,
		store:     store,
		timeout:   defaultHealthTimeout,
		logger:    logger.With("component", "health"),
	}
}

// CheckEmbedding validates the active provider's embedding path end to end
// with one real Embed call.
func (s *HealthService) CheckEmbedding(ctx context.Context) EmbeddingHealth {
	ctx, span := telemetry.StartSpan(ctx, "HealthService.CheckEmbedding", telemetry.SpanAttributes{
		Operation: "health_embedding",
	})
	defer span.End()

	cfg, err := s.providers.GetActive(ctx)
	if errors.Is(err, domain.ErrNoActiveProvider) {
		return EmbeddingHealth{
			Status:  HealthNoActiveProvider,
			Message: "no provider configuration is active",
			Hint:    "activate one with: groundworkd provider activate <name>",
			err:     err,
		}
	}
	if err != nil {
		span.SetError(err)
		return EmbeddingHealth{Status: HealthError, Message: "could not load provider configuration", err: err}
	}

	h := EmbeddingHealth{Provider: cfg.Name, Kind: string(cfg.Kind)}
	repaired := s.repairEmbeddingDefaults(ctx, cfg)
	h.Repaired = repaired

	set, err := s.resolver.Build(cfg)
	if errors.Is(err, domain.ErrEmbeddingUnsupported) {
		h.Status = HealthNoEmbeddingSupport
		h.Message = fmt.Sprintf("provider %q has embeddings disabled", cfg.Name)
		h.Hint = "enable embeddings or activate a provider of kind: " + joinKinds(llm.NativeEmbeddingKinds())
		h.err = err
		return h
	}
	if err != nil {
		span.SetError(err)
		h.Status = HealthError
		h.Message = err.Error()
		h.err = err
		return h
	}

	info := set.Embedder.Info()
	h.Model = info.Model
	h.Dimension = info.Dimension
	h.Degraded = info.Degraded

	if want := s.store.Dimension(); info.Dimension != want {
		h.Status = HealthError
		h.Message = fmt.Sprintf("model %s produces %d dimensions, vector store expects %d", info.Model, info.Dimension, want)
		h.Hint = fmt.Sprintf("set the provider embedding dimension to %d or recreate the vector store with dimension %d and reindex", want, info.Dimension)
		h.err = domain.Wrap(domain.ErrDimensionMismatch, errors.New(h.Message))
		return h
	}

	probeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	start := time.Now()
	vector, err := set.Embedder.Embed(probeCtx, healthProbeText)
	h.LatencyMS = time.Since(start).Milliseconds()
	if err == nil && len(vector) == 0 {
		err = llm.ErrEmptyResponse
	}
	if err != nil {
		span.SetError(err)
		h.Status = HealthError
		h.Message = "embedding request failed"
		h.Hint = "check the provider endpoint and credential"
		h.err = domain.Wrap(domain.ErrProviderUnavailable, err)
		s.logger.WarnContext(ctx, "embedding health check failed", "provider", cfg.Name, "error", err)
		return h
	}

	h.Status = HealthConnected
	if info.Degraded {
		h.Hint = "embeddings use the non-semantic hashing fallback; activate a provider of kind " +
			joinKinds(llm.NativeEmbeddingKinds()) + " for semantic retrieval"
	}
	return h
}

// repairEmbeddingDefaults fills a blank embedding model or dimension from the
// static defaults table and persists the result. Reports whether anything changed.
func (s *HealthService) repairEmbeddingDefaults(ctx context.Context, cfg *domain.ProviderConfig) bool {
	defaults, ok := llm.Defaults(cfg.Kind)
	if !ok || !defaults.NativeEmbedding || !cfg.SupportsEmbedding {
		return false
	}

	model, dimension := cfg.EmbeddingModel, cfg.EmbeddingDimension
	if model == "" {
		model = defaults.EmbeddingModel
	}
	if dimension == 0 {
		if d, ok := llm.ModelDimension(model); ok {
			dimension = d
		} else if model == defaults.EmbeddingModel {
			dimension = defaults.EmbeddingDimension
		}
	}
	if model == cfg.EmbeddingModel && dimension == cfg.EmbeddingDimension {
		return false
	}

	cfg.EmbeddingModel, cfg.EmbeddingDimension = model, dimension
	if err := s.providers.UpdateEmbeddingDefaults(ctx, cfg.ID, model, dimension); err != nil {
		s.logger.WarnContext(ctx, "failed to persist repaired embedding defaults",
			"provider", cfg.Name, "error", err)
		return true
	}
	s.logger.InfoContext(ctx, "repaired embedding defaults",
		"provider", cfg.Name, "model", model, "dimension", dimension)
	return true
}

// CheckVectorStore runs the store's read-only health call
func (s *HealthService) CheckVectorStore(ctx context.Context) VectorStoreHealth {
	ctx, span := telemetry.StartSpan(ctx, "HealthService.CheckVectorStore", telemetry.SpanAttributes{
		Operation: "health_vector_store",
	})
	defer span.End()

	checkCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	h := VectorStoreHealth{Dimension: s.store.Dimension()}
	start := time.Now()
	err := s.store.HealthCheck(checkCtx)
	h.LatencyMS = time.Since(start).Milliseconds()
	if err != nil {
		span.SetError(err)
		s.logger.WarnContext(ctx, "vector store health check failed", "error", err)
		h.Status = HealthError
		h.Message = "vector store is unreachable"
		h.err = domain.Wrap(domain.ErrVectorStoreFailure, err)
		return h
	}
	h.Status = HealthConnected
	return h
}

// CheckSystem runs both checks concurrently
func (s *HealthService) CheckSystem(ctx context.Context) SystemHealth {
	var sys SystemHealth
	var g errgroup.Group
	g.Go(func() error {
		sys.Embedding = s.CheckEmbedding(ctx)
		return nil
	})
	g.Go(func() error {
		sys.VectorStore = s.CheckVectorStore(ctx)
		return nil
	})
	_ = g.Wait()

	sys.Status = HealthUnhealthy
	if sys.Embedding.Status == HealthConnected && sys.VectorStore.Status == HealthConnected {
		sys.Status = HealthHealthy
	}
	return sys
}

// EnsureRetrievalReady returns nil when indexing and retrieval can run, or
// the first failing check's cause.
func (s *HealthService) EnsureRetrievalReady(ctx context.Context) error {
	sys := s.CheckSystem(ctx)
	if sys.Status == HealthHealthy {
		return nil
	}
	if sys.Embedding.Status != HealthConnected {
		return fmt.Errorf("embedding %s: %w", sys.Embedding.Status, sys.Embedding.err)
	}
	return fmt.Errorf("vector store %s: %w", sys.VectorStore.Status, sys.VectorStore.err)
}

func joinKinds(kinds []domain.ProviderKind) string {
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	return strings.Join(names, ", ")
}
