// Package langchain adapts backends reached through langchaingo (Ollama,
// Anthropic and OpenAI-compatible servers) to the llm capabilities.
package langchain

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cloo-solutions/groundwork/internal/domain"
	"github.com/cloo-solutions/groundwork/internal/llm"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// Generator is the part of llms.Model the chat adapter needs
type Generator interface {
	GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error)
}

// Options configures a langchaingo client
type Options struct {
	Kind     domain.ProviderKind
	Model    string
	Endpoint string
	Token    string
}

// NewGenerator builds the langchaingo chat client for opts.Kind
func NewGenerator(opts Options) (Generator, error) {
	switch opts.Kind {
	case domain.ProviderKindOllama:
		o := []ollama.Option{ollama.WithModel(opts.Model)}
		if opts.Endpoint != "" {
			o = append(o, ollama.WithServerURL(opts.Endpoint))
		}
		return ollama.New(o...)
	case domain.ProviderKindAnthropic:
		o := []anthropic.Option{anthropic.WithModel(opts.Model), anthropic.WithToken(opts.Token)}
		if opts.Endpoint != "" {
			o = append(o, anthropic.WithBaseURL(opts.Endpoint))
		}
		return anthropic.New(o...)
	case domain.ProviderKindOpenAICompatible:
		return openai.New(
			openai.WithBaseURL(opts.Endpoint),
			openai.WithToken(tokenOrNone(opts.Token)),
			openai.WithModel(opts.Model),
		)
	}
	return nil, domain.Wrap(domain.ErrInvalidProviderKind, fmt.Errorf("no langchain chat client for %q", opts.Kind))
}

// NewEmbeddingClient builds the langchaingo embedder for opts.Kind
func NewEmbeddingClient(opts Options) (embeddings.Embedder, error) {
	var client embeddings.EmbedderClient
	var err error
	switch opts.Kind {
	case domain.ProviderKindOllama:
		o := []ollama.Option{ollama.WithModel(opts.Model)}
		if opts.Endpoint != "" {
			o = append(o, ollama.WithServerURL(opts.Endpoint))
		}
		client, err = ollama.New(o...)
	case domain.ProviderKindOpenAICompatible:
		// Local OpenAI-compatible servers often accept any token.
		client, err = openai.New(
			openai.WithBaseURL(opts.Endpoint),
			openai.WithToken(tokenOrNone(opts.Token)),
			openai.WithEmbeddingModel(opts.Model),
		)
	default:
		return nil, domain.Wrap(domain.ErrEmbeddingUnsupported, fmt.Errorf("%s has no embedding endpoint", opts.Kind))
	}
	if err != nil {
		return nil, err
	}
	return embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
}

func tokenOrNone(token string) string {
	if token == "" {
		return "none"
	}
	return token
}

// Embedder implements llm.Embedder over a langchaingo embedder
type Embedder struct {
	embedder  embeddings.Embedder
	kind      domain.ProviderKind
	model     string
	dimension int
	logger    *slog.Logger
}

// NewEmbedder wraps a langchaingo embedder
func NewEmbedder(e embeddings.Embedder, kind domain.ProviderKind, model string, dimension int, logger *slog.Logger) *Embedder {
	return &Embedder{
		embedder:  e,
		kind:      kind,
		model:     model,
		dimension: dimension,
		logger:    logger.With("component", "langchain-embedder", "kind", string(kind)),
	}
}

// Embed generates a vector embedding for a single text
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, llm.ErrEmptyText
	}

	vectors, err := e.embedder.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, domain.Wrap(domain.ErrProviderUnavailable, fmt.Errorf("failed to create embedding: %w", err))
	}
	if len(vectors) == 0 {
		return nil, domain.Wrap(domain.ErrProviderUnavailable, llm.ErrEmptyResponse)
	}
	if err := llm.CheckDimension(vectors[:1], e.dimension); err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch generates embeddings for texts in one call, falling back to single calls
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.logger.Debug("generating embeddings", "count", len(texts))

	vectors, err := llm.EmbedBatchWithFallback(ctx, texts, e.embedder.EmbedDocuments, e.Embed, e.logger)
	if err != nil {
		return nil, err
	}
	if err := llm.CheckDimension(vectors, e.dimension); err != nil {
		return nil, err
	}
	return vectors, nil
}

// Info describes the embedding model
func (e *Embedder) Info() llm.EmbedderInfo {
	return llm.EmbedderInfo{Kind: e.kind, Model: e.model, Dimension: e.dimension}
}

// Chat implements llm.ChatModel over a langchaingo model
type Chat struct {
	client    Generator
	model     string
	maxTokens int
}

// NewChat wraps a langchaingo model
func NewChat(client Generator, model string, maxTokens int) *Chat {
	return &Chat{client: client, model: model, maxTokens: maxTokens}
}

func (c *Chat) messages(p llm.Prompt) []llms.MessageContent {
	content := make([]llms.MessageContent, 0, 2)
	if p.System != "" {
		content = append(content, llms.TextParts(llms.ChatMessageTypeSystem, p.System))
	}
	return append(content, llms.TextParts(llms.ChatMessageTypeHuman, p.User))
}

func (c *Chat) options(p llm.Prompt) []llms.CallOption {
	opts := []llms.CallOption{llms.WithTemperature(p.Temperature)}
	maxTokens := p.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}
	if maxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(maxTokens))
	}
	return opts
}

// Complete returns the whole completion
func (c *Chat) Complete(ctx context.Context, p llm.Prompt) (string, error) {
	resp, err := c.client.GenerateContent(ctx, c.messages(p), c.options(p)...)
	if err != nil {
		return "", domain.Wrap(domain.ErrProviderUnavailable, fmt.Errorf("generate content: %w", err))
	}
	if len(resp.Choices) == 0 {
		return "", domain.Wrap(domain.ErrProviderUnavailable, llm.ErrEmptyResponse)
	}
	return strings.TrimSpace(resp.Choices[0].Content), nil
}

// Stream delivers completion chunks to onChunk as the backend produces them
func (c *Chat) Stream(ctx context.Context, p llm.Prompt, onChunk func(string) error) error {
	var callbackErr error
	opts := append(c.options(p), llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if len(chunk) == 0 {
			return nil
		}
		if err := onChunk(string(chunk)); err != nil {
			callbackErr = err
			return err
		}
		return nil
	}))

	_, err := c.client.GenerateContent(ctx, c.messages(p), opts...)
	if callbackErr != nil {
		return callbackErr
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if err != nil {
		return domain.Wrap(domain.ErrProviderUnavailable, fmt.Errorf("stream content: %w", err))
	}
	return nil
}

// Model returns the chat model name
func (c *Chat) Model() string {
	return c.model
}
