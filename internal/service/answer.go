package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cloo-solutions/groundwork/internal/domain"
	"github.com/cloo-solutions/groundwork/internal/llm"
	"github.com/cloo-solutions/groundwork/internal/telemetry"
	"github.com/cloo-solutions/groundwork/internal/vectorstore"
)

const (
	MinQuestionLength = 3
	MaxQuestionLength = 500
)

// AnswerTimeouts bound each external call of a request.
type AnswerTimeouts struct {
	Embed  time.Duration
	Search time.Duration
	Chat   time.Duration
}

// DefaultAnswerTimeouts returns seconds for embedding and search and tens of
// seconds for chat.
func DefaultAnswerTimeouts() AnswerTimeouts {
	return AnswerTimeouts{
		Embed:  15 * time.Second,
		Search: 10 * time.Second,
		Chat:   60 * time.Second,
	}
}

// AskInput is one user question
type AskInput struct {
	Question string
	UserID   string
	Mode     domain.AnswerMode
}

// Citation points at the evidence an answer was grounded in
type Citation struct {
	EntryID string  `json:"entry_id"`
	ChunkID string  `json:"chunk_id"`
	Title   string  `json:"title"`
	URL     string  `json:"url,omitempty"`
	Score   float64 `json:"score"`
}

// Timings are wall-clock milliseconds per stage
type Timings struct {
	EmbedMS  int64 `json:"embed_ms"`
	SearchMS int64 `json:"search_ms"`
	ChatMS   int64 `json:"chat_ms"`
	TotalMS  int64 `json:"total_ms"`
}

// AnswerMetadata describes how an answer was produced
type AnswerMetadata struct {
	ItemsUsed         int               `json:"items_used"`
	Candidates        int               `json:"candidates"`
	Mode              domain.AnswerMode `json:"mode"`
	NoData            bool              `json:"no_data"`
	DegradedEmbedding bool              `json:"degraded_embedding"`
	Provider          string            `json:"provider"`
	Model             string            `json:"model"`
	Timings           Timings           `json:"timings"`
}

// Answer is the full response to a question
type Answer struct {
	Text     string         `json:"answer"`
	Sources  []Citation     `json:"sources"`
	Metadata AnswerMetadata `json:"metadata"`
}

// ContextItem is a retrieved chunk that survived filtering
type ContextItem struct {
	Match   vectorstore.Match
	Content string
}

// AnswerChunkReader loads chunk text by id.
type AnswerChunkReader interface {
	GetByIDs(ctx context.Context, ids []string) (map[string]*domain.Chunk, error)
}

// AnswerService answers questions from indexed knowledge
type AnswerService struct {
	chunks   AnswerChunkReader
	store    vectorstore.Store
	resolver ProviderResolver
	settings SettingsLoader
	timeouts AnswerTimeouts
	logger   *slog.Logger
}

// NewAnswerService creates a new AnswerService instance
func NewAnswerService(
	chunks AnswerChunkReader,
	store vectorstore.Store,
	resolver ProviderResolver,
	settings SettingsLoader,
	timeouts AnswerTimeouts,
	logger *slog.Logger,
) *AnswerService {
	return &AnswerService{
		chunks:   chunks,
		store:    store,
		resolver: resolver,
		settings: settings,
		timeouts: timeouts,
		logger:   logger.With("component", "answer"),
	}
}

// preparedAnswer is everything decided before the chat call.
type preparedAnswer struct {
	chat     llm.ChatModel
	prompt   llm.Prompt
	noData   string
	sources  []Citation
	metadata AnswerMetadata
	start    time.Time
}

// Ask answers a question in one piece
func (s *AnswerService) Ask(ctx context.Context, in AskInput) (*Answer, error) {
	ctx, span := telemetry.StartSpan(ctx, "AnswerService.Ask", telemetry.SpanAttributes{
		Mode:      string(in.Mode),
		Operation: "ask",
	})
	defer span.End()

	prep, err := s.prepare(ctx, in)
	if err != nil {
		return nil, s.unavailable(ctx, span, err)
	}

	answer := &Answer{Sources: prep.sources, Metadata: prep.metadata}
	if prep.chat == nil {
		answer.Text = prep.noData
		answer.Metadata.Timings.TotalMS = time.Since(prep.start).Milliseconds()
		return answer, nil
	}

	chatCtx, cancel := context.WithTimeout(ctx, s.timeouts.Chat)
	defer cancel()
	chatStart := time.Now()
	text, err := prep.chat.Complete(chatCtx, prep.prompt)
	if err != nil {
		return nil, s.unavailable(ctx, span, fmt.Errorf("chat: %w", err))
	}

	answer.Text = text
	answer.Metadata.Timings.ChatMS = time.Since(chatStart).Milliseconds()
	answer.Metadata.Timings.TotalMS = time.Since(prep.start).Milliseconds()
	return answer, nil
}

// AskStream answers a question incrementally. onChunk receives completion
// pieces in arrival order; onDone runs once after the last piece. An error
// returned by onChunk, or cancellation of ctx, stops the upstream stream and
// is returned as is.
func (s *AnswerService) AskStream(
	ctx context.Context,
	in AskInput,
	onChunk func(string) error,
	onDone func(sources []Citation, metadata AnswerMetadata),
) error {
	ctx, span := telemetry.StartSpan(ctx, "AnswerService.AskStream", telemetry.SpanAttributes{
		Mode:      string(in.Mode),
		Operation: "ask_stream",
	})
	defer span.End()

	prep, err := s.prepare(ctx, in)
	if err != nil {
		return s.unavailable(ctx, span, err)
	}

	if prep.chat == nil {
		if err := onChunk(prep.noData); err != nil {
			return err
		}
		prep.metadata.Timings.TotalMS = time.Since(prep.start).Milliseconds()
		onDone(prep.sources, prep.metadata)
		return nil
	}

	chatCtx, cancel := context.WithTimeout(ctx, s.timeouts.Chat)
	defer cancel()
	chatStart := time.Now()

	var callbackErr error
	err = prep.chat.Stream(chatCtx, prep.prompt, func(piece string) error {
		if err := onChunk(piece); err != nil {
			callbackErr = err
			return err
		}
		return nil
	})
	switch {
	case callbackErr != nil:
		return callbackErr
	case err != nil && ctx.Err() != nil:
		return ctx.Err()
	case err != nil:
		return s.unavailable(ctx, span, fmt.Errorf("chat stream: %w", err))
	}

	prep.metadata.Timings.ChatMS = time.Since(chatStart).Milliseconds()
	prep.metadata.Timings.TotalMS = time.Since(prep.start).Milliseconds()
	onDone(prep.sources, prep.metadata)
	return nil
}

// ValidateQuestion checks the question length in characters.
func ValidateQuestion(question string) error {
	n := utf8.RuneCountInString(strings.TrimSpace(question))
	if n < MinQuestionLength || n > MaxQuestionLength {
		return domain.ErrInvalidQuestion
	}
	return nil
}

func (s *AnswerService) prepare(ctx context.Context, in AskInput) (*preparedAnswer, error) {
	start := time.Now()
	if err := ValidateQuestion(in.Question); err != nil {
		return nil, err
	}
	question := strings.TrimSpace(in.Question)

	settings, err := s.settings.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("settings: %w", err)
	}
	mode := in.Mode.Stricter(settings.ConfiguredMode())

	set, err := s.resolver.Active(ctx)
	if err != nil {
		return nil, fmt.Errorf("provider: %w", err)
	}
	info := set.Embedder.Info()

	meta := AnswerMetadata{
		Mode:              mode,
		DegradedEmbedding: info.Degraded,
		Provider:          set.Config.Name,
		Model:             set.Chat.Model(),
	}

	embedCtx, cancelEmbed := context.WithTimeout(ctx, s.timeouts.Embed)
	vector, err := set.Embedder.Embed(embedCtx, question)
	cancelEmbed()
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}
	meta.Timings.EmbedMS = time.Since(start).Milliseconds()

	searchStart := time.Now()
	searchCtx, cancelSearch := context.WithTimeout(ctx, s.timeouts.Search)
	matches, err := s.store.Query(searchCtx, vector, settings.TopK, nil)
	cancelSearch()
	if err != nil {
		return nil, fmt.Errorf("vector query: %w", err)
	}
	meta.Candidates = len(matches)

	filtered := FilterMatches(matches, settings.MinScore, settings.AllowedSourceHosts)
	loadCtx, cancelLoad := context.WithTimeout(ctx, s.timeouts.Search)
	items, err := s.loadContext(loadCtx, filtered)
	cancelLoad()
	if err != nil {
		return nil, fmt.Errorf("load chunks: %w", err)
	}
	meta.Timings.SearchMS = time.Since(searchStart).Milliseconds()
	meta.ItemsUsed = len(items)

	prep := &preparedAnswer{metadata: meta, sources: BuildCitations(items), start: start}

	if len(items) == 0 && settings.Restrictive(mode) {
		prep.noData = settings.NoDataMessage
		prep.metadata.NoData = true
		s.logger.InfoContext(ctx, "no grounded context, returning no-data message",
			"mode", mode, "candidates", meta.Candidates, "user_id", in.UserID)
		return prep, nil
	}

	prep.chat = set.Chat
	prep.prompt = BuildPrompt(settings, mode, question, items)
	if limit := set.Config.Capabilities.MaxOutputTokens; limit > 0 {
		prep.prompt.MaxTokens = limit
	}
	return prep, nil
}

func (s *AnswerService) loadContext(ctx context.Context, matches []vectorstore.Match) ([]ContextItem, error) {
	if len(matches) == 0 {
		return nil, nil
	}
	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		ids = append(ids, m.Metadata.ChunkID)
	}
	chunks, err := s.chunks.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	items := make([]ContextItem, 0, len(matches))
	for _, m := range matches {
		c, ok := chunks[m.Metadata.ChunkID]
		if !ok {
			s.logger.DebugContext(ctx, "skipping vector without chunk row", "vector_id", m.ID)
			continue
		}
		items = append(items, ContextItem{Match: m, Content: c.Content})
	}
	return items, nil
}

func (s *AnswerService) unavailable(ctx context.Context, span *telemetry.Span, cause error) error {
	if errors.Is(cause, domain.ErrInvalidQuestion) {
		return domain.ErrInvalidQuestion
	}
	s.logger.ErrorContext(ctx, "answer failed", "error", cause)
	span.SetError(cause)
	return domain.ErrAnswerUnavailable
}

// FilterMatches drops matches scoring below minScore and, when allowedHosts
// is non-empty, matches whose source URL host is not listed.
func FilterMatches(matches []vectorstore.Match, minScore float64, allowedHosts []string) []vectorstore.Match {
	allowed := make(map[string]struct{}, len(allowedHosts))
	for _, h := range allowedHosts {
		if n := normalizeHost(h); n != "" {
			allowed[n] = struct{}{}
		}
	}

	out := make([]vectorstore.Match, 0, len(matches))
	for _, m := range matches {
		if m.Score < minScore {
			continue
		}
		if len(allowed) > 0 {
			if _, ok := allowed[sourceHost(m.Metadata.SourceURL)]; !ok {
				continue
			}
		}
		out = append(out, m)
	}
	return out
}

func sourceHost(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

func normalizeHost(h string) string {
	h = strings.TrimSpace(h)
	if h == "" {
		return ""
	}
	if !strings.Contains(h, "://") {
		h = "//" + h
	}
	return sourceHost(h)
}

// BuildCitations keeps the best-scoring item per entry, ordered by score.
func BuildCitations(items []ContextItem) []Citation {
	best := make(map[string]Citation)
	for _, it := range items {
		md := it.Match.Metadata
		if c, ok := best[md.EntryID]; ok && c.Score >= it.Match.Score {
			continue
		}
		best[md.EntryID] = Citation{
			EntryID: md.EntryID,
			ChunkID: md.ChunkID,
			Title:   md.Title,
			URL:     md.SourceURL,
			Score:   it.Match.Score,
		}
	}

	citations := make([]Citation, 0, len(best))
	for _, c := range best {
		citations = append(citations, c)
	}
	sort.Slice(citations, func(i, j int) bool {
		if citations[i].Score != citations[j].Score {
			return citations[i].Score > citations[j].Score
		}
		return citations[i].EntryID < citations[j].EntryID
	})
	return citations
}

// BuildPrompt assembles the grounding prompt. The three modes differ only in
// the preamble and the no-data instruction.
func BuildPrompt(settings domain.RAGSettings, mode domain.AnswerMode, question string, items []ContextItem) llm.Prompt {
	if len(items) == 0 {
		system := settings.Preambles.NoContext
		if system == "" {
			system = settings.Preambles.Normal
		}
		return llm.Prompt{System: system, User: question}
	}

	system := settings.Preambles.For(mode)
	if mode != domain.AnswerModeNormal && settings.NoDataMessage != "" {
		system += "\n\nIf the context does not answer the question, reply exactly: " + settings.NoDataMessage
	}

	var b strings.Builder
	b.WriteString("Context:\n")
	for i, it := range items {
		md := it.Match.Metadata
		fmt.Fprintf(&b, "\n[%d] %s", i+1, md.Title)
		if md.SourceURL != "" {
			fmt.Fprintf(&b, " (%s)", md.SourceURL)
		}
		b.WriteString("\n")
		b.WriteString(it.Content)
		b.WriteString("\n")
	}
	b.WriteString("\nQuestion: ")
	b.WriteString(question)

	temperature := 0.3
	if mode != domain.AnswerModeNormal {
		temperature = 0
	}
	return llm.Prompt{System: system, User: b.String(), Temperature: temperature}
}
