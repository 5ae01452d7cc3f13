package service

import (
	"context"
	"errors"
	"testing"

	"github.com/cloo-solutions/groundwork/internal/domain"
	"github.com/cloo-solutions/groundwork/internal/vectorstore/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockProviderRepository is a mock implementation of ProviderRepositoryInterface
type MockProviderRepository struct {
	mock.Mock
}

func (m *MockProviderRepository) GetActive(ctx context.Context) (*domain.ProviderConfig, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ProviderConfig), args.Error(1)
}

func (m *MockProviderRepository) UpdateEmbeddingDefaults(ctx context.Context, id, model string, dimension int) error {
	args := m.Called(ctx, id, model, dimension)
	return args.Error(0)
}

type unhealthyStore struct {
	*memory.Store
	err error
}

func (s *unhealthyStore) HealthCheck(ctx context.Context) error {
	return s.err
}

func healthyConfig() *domain.ProviderConfig {
	return &domain.ProviderConfig{
		ID:                 "p1",
		Name:               "primary",
		Kind:               domain.ProviderKindOpenAI,
		ChatModel:          "gpt-4o-mini",
		EmbeddingModel:     "text-embedding-3-small",
		EmbeddingDimension: 2,
		SupportsEmbedding:  true,
		IsActive:           true,
	}
}

func newHealthServiceUnderTest() (*HealthService, *MockProviderRepository, *staticResolver, *stubEmbedder) {
	providers := new(MockProviderRepository)
	embedder := &stubEmbedder{vector: []float32{0.6, 0.8}}
	resolver := &staticResolver{set: testProviderSet(embedder, &fakeChat{})}
	svc := NewHealthService(providers, resolver, memory.NewStore(2), discardLogger())
	return svc, providers, resolver, embedder
}

func TestHealthService_CheckEmbedding(t *testing.T) {
	ctx := context.Background()

	t.Run("connected", func(t *testing.T) {
		svc, providers, _, _ := newHealthServiceUnderTest()
		providers.On("GetActive", mock.Anything).Return(healthyConfig(), nil)

		h := svc.CheckEmbedding(ctx)

		assert.Equal(t, HealthConnected, h.Status)
		assert.Equal(t, "primary", h.Provider)
		assert.Equal(t, 2, h.Dimension)
		assert.False(t, h.Degraded)
		assert.False(t, h.Repaired)
		providers.AssertNotCalled(t, "UpdateEmbeddingDefaults")
	})

	t.Run("no active provider", func(t *testing.T) {
		svc, providers, _, _ := newHealthServiceUnderTest()
		providers.On("GetActive", mock.Anything).Return(nil, domain.ErrNoActiveProvider)

		h := svc.CheckEmbedding(ctx)

		assert.Equal(t, HealthNoActiveProvider, h.Status)
		assert.NotEmpty(t, h.Hint)
	})

	t.Run("repairs blank embedding defaults and persists them", func(t *testing.T) {
		svc, providers, _, _ := newHealthServiceUnderTest()
		cfg := healthyConfig()
		cfg.Kind = domain.ProviderKindOllama
		cfg.EmbeddingModel = ""
		cfg.EmbeddingDimension = 0
		providers.On("GetActive", mock.Anything).Return(cfg, nil)
		providers.On("UpdateEmbeddingDefaults", mock.Anything, "p1", "nomic-embed-text", 768).Return(nil)

		h := svc.CheckEmbedding(ctx)

		assert.True(t, h.Repaired)
		assert.Equal(t, "nomic-embed-text", cfg.EmbeddingModel)
		assert.Equal(t, 768, cfg.EmbeddingDimension)
		providers.AssertExpectations(t)
	})

	t.Run("embeddings disabled", func(t *testing.T) {
		svc, providers, resolver, _ := newHealthServiceUnderTest()
		cfg := healthyConfig()
		cfg.SupportsEmbedding = false
		providers.On("GetActive", mock.Anything).Return(cfg, nil)
		resolver.err = domain.Wrap(domain.ErrEmbeddingUnsupported, errors.New("disabled"))

		h := svc.CheckEmbedding(ctx)

		assert.Equal(t, HealthNoEmbeddingSupport, h.Status)
		assert.Contains(t, h.Hint, "openai")
		assert.Contains(t, h.Hint, "ollama")
		assert.NotContains(t, h.Hint, "anthropic")
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		svc, providers, _, embedder := newHealthServiceUnderTest()
		embedder.vector = []float32{1, 0, 0}
		providers.On("GetActive", mock.Anything).Return(healthyConfig(), nil)

		h := svc.CheckEmbedding(ctx)

		assert.Equal(t, HealthError, h.Status)
		assert.Contains(t, h.Message, "3 dimensions")
		assert.NotEmpty(t, h.Hint)
		assert.ErrorIs(t, h.err, domain.ErrDimensionMismatch)
	})

	t.Run("embed call fails", func(t *testing.T) {
		svc, providers, _, embedder := newHealthServiceUnderTest()
		embedder.err = errors.New("401 unauthorized")
		providers.On("GetActive", mock.Anything).Return(healthyConfig(), nil)

		h := svc.CheckEmbedding(ctx)

		assert.Equal(t, HealthError, h.Status)
		assert.ErrorIs(t, h.err, domain.ErrProviderUnavailable)
	})

	t.Run("degraded embedder is connected but flagged", func(t *testing.T) {
		svc, providers, _, embedder := newHealthServiceUnderTest()
		embedder.degraded = true
		cfg := healthyConfig()
		cfg.Kind = domain.ProviderKindAnthropic
		providers.On("GetActive", mock.Anything).Return(cfg, nil)

		h := svc.CheckEmbedding(ctx)

		assert.Equal(t, HealthConnected, h.Status)
		assert.True(t, h.Degraded)
		assert.Contains(t, h.Hint, "hashing")
	})
}

func TestHealthService_CheckSystem(t *testing.T) {
	ctx := context.Background()

	t.Run("healthy when both checks connect", func(t *testing.T) {
		svc, providers, _, _ := newHealthServiceUnderTest()
		providers.On("GetActive", mock.Anything).Return(healthyConfig(), nil)

		sys := svc.CheckSystem(ctx)

		assert.Equal(t, HealthHealthy, sys.Status)
		assert.Equal(t, HealthConnected, sys.VectorStore.Status)
		assert.NoError(t, svc.EnsureRetrievalReady(ctx))
	})

	t.Run("unhealthy vector store", func(t *testing.T) {
		svc, providers, _, _ := newHealthServiceUnderTest()
		svc.store = &unhealthyStore{Store: memory.NewStore(2), err: errors.New("dial tcp: refused")}
		providers.On("GetActive", mock.Anything).Return(healthyConfig(), nil)

		sys := svc.CheckSystem(ctx)

		assert.Equal(t, HealthUnhealthy, sys.Status)
		assert.Equal(t, HealthError, sys.VectorStore.Status)
		assert.Equal(t, HealthConnected, sys.Embedding.Status)

		err := svc.EnsureRetrievalReady(ctx)
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrVectorStoreFailure)
	})

	t.Run("gate reports missing provider", func(t *testing.T) {
		svc, providers, _, _ := newHealthServiceUnderTest()
		providers.On("GetActive", mock.Anything).Return(nil, domain.ErrNoActiveProvider)

		err := svc.EnsureRetrievalReady(ctx)

		assert.ErrorIs(t, err, domain.ErrNoActiveProvider)
	})
}
