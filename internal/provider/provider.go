// Package provider turns the active provider configuration into the embedding
// and chat clients the pipeline runs on.
package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cloo-solutions/groundwork/internal/crypto"
	"github.com/cloo-solutions/groundwork/internal/domain"
	"github.com/cloo-solutions/groundwork/internal/llm"
	"github.com/cloo-solutions/groundwork/internal/llm/hashing"
	"github.com/cloo-solutions/groundwork/internal/llm/langchain"
	"github.com/cloo-solutions/groundwork/internal/llm/openai"
)

// Set is everything one pipeline run needs from the active backend.
type Set struct {
	Config   *domain.ProviderConfig
	Embedder llm.Embedder
	Chat     llm.ChatModel
}

// ConfigSource returns the active provider configuration.
type ConfigSource interface {
	GetActive(ctx context.Context) (*domain.ProviderConfig, error)
}

// Resolver builds a Set per call; nothing is cached between runs so a
// configuration change takes effect on the next request.
type Resolver struct {
	source            ConfigSource
	sealer            *crypto.Sealer
	fallbackDimension int
	logger            *slog.Logger
}

// NewResolver creates a Resolver. sealer may be nil when no stored
// configuration carries a credential. fallbackDimension sizes hashing vectors
// for configurations that do not name a dimension.
func NewResolver(source ConfigSource, sealer *crypto.Sealer, fallbackDimension int, logger *slog.Logger) *Resolver {
	return &Resolver{
		source:            source,
		sealer:            sealer,
		fallbackDimension: fallbackDimension,
		logger:            logger.With("component", "provider-resolver"),
	}
}

// Active resolves the currently active configuration.
func (r *Resolver) Active(ctx context.Context) (*Set, error) {
	cfg, err := r.source.GetActive(ctx)
	if err != nil {
		return nil, err
	}
	return r.Build(cfg)
}

// Build constructs the clients for cfg.
func (r *Resolver) Build(cfg *domain.ProviderConfig) (*Set, error) {
	if cfg == nil {
		return nil, domain.ErrNoActiveProvider
	}
	if !domain.IsValidProviderKind(cfg.Kind) {
		return nil, domain.Wrap(domain.ErrInvalidProviderKind, fmt.Errorf("kind %q", cfg.Kind))
	}

	credential, err := r.credential(cfg)
	if err != nil {
		return nil, err
	}

	chat, err := r.chat(cfg, credential)
	if err != nil {
		return nil, err
	}
	embedder, err := r.embedder(cfg, credential)
	if err != nil {
		return nil, err
	}

	return &Set{Config: cfg, Embedder: embedder, Chat: chat}, nil
}

func (r *Resolver) credential(cfg *domain.ProviderConfig) (string, error) {
	if cfg.EncryptedCredential == "" {
		return "", nil
	}
	if r.sealer == nil {
		return "", domain.Wrap(domain.ErrCredentialDecrypt, errors.New("no credential key configured"))
	}
	plain, err := r.sealer.Open(cfg.EncryptedCredential)
	if err != nil {
		return "", domain.Wrap(domain.ErrCredentialDecrypt, err)
	}
	return plain, nil
}

func (r *Resolver) chat(cfg *domain.ProviderConfig, credential string) (llm.ChatModel, error) {
	maxTokens := cfg.Capabilities.MaxOutputTokens
	switch cfg.Kind {
	case domain.ProviderKindOpenAI, domain.ProviderKindAzureOpenAI:
		api := openai.NewOpenAIAdapter(openai.Config{Kind: cfg.Kind, APIKey: credential, Endpoint: cfg.ChatEndpoint})
		return openai.NewChat(api, cfg.ChatModel, maxTokens), nil
	case domain.ProviderKindOllama, domain.ProviderKindAnthropic, domain.ProviderKindOpenAICompatible:
		gen, err := langchain.NewGenerator(langchain.Options{
			Kind:     cfg.Kind,
			Model:    cfg.ChatModel,
			Endpoint: cfg.ChatEndpoint,
			Token:    credential,
		})
		if err != nil {
			return nil, domain.Wrap(domain.ErrProviderUnavailable, err)
		}
		return langchain.NewChat(gen, cfg.ChatModel, maxTokens), nil
	}
	return nil, domain.Wrap(domain.ErrInvalidProviderKind, fmt.Errorf("kind %q", cfg.Kind))
}

func (r *Resolver) embedder(cfg *domain.ProviderConfig, credential string) (llm.Embedder, error) {
	defaults, _ := llm.Defaults(cfg.Kind)
	if !defaults.NativeEmbedding {
		dim := cfg.EmbeddingDimension
		if dim <= 0 {
			dim = r.fallbackDimension
		}
		r.logger.Warn("backend has no embedding endpoint, using hashing embeddings",
			"provider", cfg.Name, "kind", cfg.Kind, "dimension", dim)
		return hashing.NewEmbedder(cfg.Kind, dim), nil
	}
	if !cfg.SupportsEmbedding {
		return nil, domain.Wrap(domain.ErrEmbeddingUnsupported, fmt.Errorf("embeddings disabled for provider %q", cfg.Name))
	}

	model := cfg.EmbeddingModel
	if model == "" {
		model = defaults.EmbeddingModel
	}
	dim := cfg.EmbeddingDimension
	if dim <= 0 {
		dim, _ = llm.ModelDimension(model)
	}
	if model == "" {
		return nil, domain.Wrap(domain.ErrMissingRequiredField, fmt.Errorf("embedding model for provider %q", cfg.Name))
	}

	endpoint := cfg.EffectiveEmbeddingEndpoint()
	switch cfg.Kind {
	case domain.ProviderKindOpenAI, domain.ProviderKindAzureOpenAI:
		api := openai.NewOpenAIAdapter(openai.Config{Kind: cfg.Kind, APIKey: credential, Endpoint: endpoint})
		return openai.NewEmbedder(api, cfg.Kind, model, dim, r.logger), nil
	case domain.ProviderKindOllama, domain.ProviderKindOpenAICompatible:
		client, err := langchain.NewEmbeddingClient(langchain.Options{
			Kind:     cfg.Kind,
			Model:    model,
			Endpoint: endpoint,
			Token:    credential,
		})
		if err != nil {
			return nil, err
		}
		return langchain.NewEmbedder(client, cfg.Kind, model, dim, r.logger), nil
	}
	return nil, domain.Wrap(domain.ErrEmbeddingUnsupported, fmt.Errorf("kind %q", cfg.Kind))
}
