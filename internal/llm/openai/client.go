// Package openai adapts OpenAI and Azure OpenAI to the llm capabilities.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/cloo-solutions/groundwork/internal/domain"
	"github.com/cloo-solutions/groundwork/internal/llm"
	openai "github.com/sashabaranov/go-openai"
)

// API is the subset of the OpenAI API the adapters use
type API interface {
	CreateEmbeddings(ctx context.Context, model string, dimensions int, texts []string) ([][]float32, error)
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (string, error)
	CreateChatCompletionStream(ctx context.Context, req openai.ChatCompletionRequest) (ChatStream, error)
}

// ChatStream yields completion deltas until io.EOF
type ChatStream interface {
	Recv() (string, error)
	Close() error
}

// OpenAIAdapter implements API on top of go-openai
type OpenAIAdapter struct {
	client *openai.Client
}

// Config selects the account and endpoint an adapter talks to
type Config struct {
	Kind     domain.ProviderKind
	APIKey   string
	Endpoint string
}

// NewOpenAIAdapter creates an adapter. Azure needs the resource endpoint;
// plain OpenAI uses the public API unless an endpoint is given.
func NewOpenAIAdapter(cfg Config) *OpenAIAdapter {
	var clientCfg openai.ClientConfig
	if cfg.Kind == domain.ProviderKindAzureOpenAI {
		clientCfg = openai.DefaultAzureConfig(cfg.APIKey, cfg.Endpoint)
	} else {
		clientCfg = openai.DefaultConfig(cfg.APIKey)
		if cfg.Endpoint != "" {
			clientCfg.BaseURL = strings.TrimRight(cfg.Endpoint, "/")
		}
	}
	return &OpenAIAdapter{client: openai.NewClientWithConfig(clientCfg)}
}

// CreateEmbeddings calls the embeddings endpoint with every text in one request
func (a *OpenAIAdapter) CreateEmbeddings(ctx context.Context, model string, dimensions int, texts []string) ([][]float32, error) {
	req := openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(model),
	}
	// Only the v3 models accept a requested size.
	if dimensions > 0 && strings.HasPrefix(model, "text-embedding-3") {
		req.Dimensions = dimensions
	}

	resp, err := a.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, llm.ErrEmptyResponse
	}

	sort.Slice(resp.Data, func(i, j int) bool { return resp.Data[i].Index < resp.Data[j].Index })
	vectors := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		vectors[i] = d.Embedding
	}
	return vectors, nil
}

// CreateChatCompletion returns the first choice's content
func (a *OpenAIAdapter) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (string, error) {
	resp, err := a.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", llm.ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}

// CreateChatCompletionStream opens a server-sent completion stream
func (a *OpenAIAdapter) CreateChatCompletionStream(ctx context.Context, req openai.ChatCompletionRequest) (ChatStream, error) {
	req.Stream = true
	stream, err := a.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, err
	}
	return &streamAdapter{stream: stream}, nil
}

type streamAdapter struct {
	stream *openai.ChatCompletionStream
}

func (s *streamAdapter) Recv() (string, error) {
	resp, err := s.stream.Recv()
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Delta.Content, nil
}

func (s *streamAdapter) Close() error {
	return s.stream.Close()
}

// Embedder implements llm.Embedder
type Embedder struct {
	api       API
	kind      domain.ProviderKind
	model     string
	dimension int
	logger    *slog.Logger
}

// NewEmbedder creates an embedder for model producing vectors of the given dimension.
func NewEmbedder(api API, kind domain.ProviderKind, model string, dimension int, logger *slog.Logger) *Embedder {
	return &Embedder{
		api:       api,
		kind:      kind,
		model:     model,
		dimension: dimension,
		logger:    logger.With("component", "openai-embedder"),
	}
}

// Embed generates an embedding for a single text
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, llm.ErrEmptyText
	}

	vectors, err := e.api.CreateEmbeddings(ctx, e.model, e.dimension, []string{text})
	if err != nil {
		return nil, domain.Wrap(domain.ErrProviderUnavailable, fmt.Errorf("failed to create embedding: %w", err))
	}
	if err := llm.CheckDimension(vectors, e.dimension); err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch embeds all texts with one request, falling back to one request per text.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.logger.Debug("generating embeddings", "count", len(texts), "model", e.model)

	vectors, err := llm.EmbedBatchWithFallback(ctx, texts, e.batch, e.Embed, e.logger)
	if err != nil {
		return nil, err
	}
	if err := llm.CheckDimension(vectors, e.dimension); err != nil {
		return nil, err
	}
	return vectors, nil
}

func (e *Embedder) batch(ctx context.Context, texts []string) ([][]float32, error) {
	return e.api.CreateEmbeddings(ctx, e.model, e.dimension, texts)
}

// Info describes the embedding model
func (e *Embedder) Info() llm.EmbedderInfo {
	return llm.EmbedderInfo{Kind: e.kind, Model: e.model, Dimension: e.dimension}
}

// Chat implements llm.ChatModel
type Chat struct {
	api       API
	model     string
	maxTokens int
}

// NewChat creates a chat model. maxTokens caps output when a prompt sets no limit.
func NewChat(api API, model string, maxTokens int) *Chat {
	return &Chat{api: api, model: model, maxTokens: maxTokens}
}

func (c *Chat) request(p llm.Prompt) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if p.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: p.System})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: p.User})

	maxTokens := p.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}
	return openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: float32(p.Temperature),
	}
}

// Complete returns the whole completion
func (c *Chat) Complete(ctx context.Context, p llm.Prompt) (string, error) {
	out, err := c.api.CreateChatCompletion(ctx, c.request(p))
	if err != nil {
		return "", domain.Wrap(domain.ErrProviderUnavailable, fmt.Errorf("chat completion: %w", err))
	}
	return out, nil
}

// Stream delivers completion deltas to onChunk until the stream ends
func (c *Chat) Stream(ctx context.Context, p llm.Prompt, onChunk func(string) error) error {
	stream, err := c.api.CreateChatCompletionStream(ctx, c.request(p))
	if err != nil {
		return domain.Wrap(domain.ErrProviderUnavailable, fmt.Errorf("open chat stream: %w", err))
	}
	defer stream.Close()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		delta, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return domain.Wrap(domain.ErrProviderUnavailable, fmt.Errorf("read chat stream: %w", err))
		}
		if delta == "" {
			continue
		}
		if err := onChunk(delta); err != nil {
			return err
		}
	}
}

// Model returns the chat model name
func (c *Chat) Model() string {
	return c.model
}
