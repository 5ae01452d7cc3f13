package config

import (
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/cloo-solutions/groundwork/internal/domain"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Vector store backends selectable with GROUNDWORK_VECTOR_STORE.
const (
	VectorStorePgvector = "pgvector"
	VectorStoreQdrant   = "qdrant"
	VectorStoreMemory   = "memory"
)

const DefaultNoDataMessage = "I don't have information about that in the knowledge base."

// DefaultPreambles are used when neither the prompts file nor rag_settings override them.
var DefaultPreambles = domain.Preambles{
	Normal: "You are a helpful assistant. Answer the question using the numbered context below. " +
		"Cite the sources you rely on by their number. If the context is incomplete, say so.",
	Strict: "Answer only with information found in the numbered context below. " +
		"Do not add facts from general knowledge. Cite sources by their number.",
	SuperStrict: "Answer strictly and only from the numbered context below. Quote or closely paraphrase it, " +
		"never infer beyond it, and cite every statement by its source number.",
	NoContext: "You are a helpful assistant. No knowledge base content matched this question; " +
		"answer from general knowledge and say that no internal source was found.",
}

type Config struct {
	Port        string `envconfig:"PORT" default:"8080"`
	Debug       bool   `envconfig:"DEBUG" default:"false"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	SentryDSN   string `envconfig:"SENTRY_DSN"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`

	// Key used to seal provider credentials at rest. Hex or base64, 32 bytes.
	CredentialKey string `envconfig:"CREDENTIAL_KEY"`

	VectorStore      string `envconfig:"VECTOR_STORE" default:"pgvector"`
	VectorDimension  int    `envconfig:"VECTOR_DIMENSION" default:"1536"`
	QdrantURL        string `envconfig:"QDRANT_URL" default:"http://localhost:6333"`
	QdrantCollection string `envconfig:"QDRANT_COLLECTION" default:"groundwork"`
	QdrantAPIKey     string `envconfig:"QDRANT_API_KEY"`

	ChunkSize           int      `envconfig:"CHUNK_SIZE" default:"1024"`
	ChunkOverlap        int      `envconfig:"CHUNK_OVERLAP" default:"200"`
	TopK                int      `envconfig:"TOP_K" default:"5"`
	MinScore            float64  `envconfig:"MIN_SCORE" default:"0"`
	AllowedSourceHosts  []string `envconfig:"ALLOWED_SOURCE_HOSTS"`
	StrictMode          bool     `envconfig:"STRICT_MODE" default:"false"`
	SuperStrictMode     bool     `envconfig:"SUPER_STRICT_MODE" default:"false"`
	RestrictToKnowledge bool     `envconfig:"RESTRICT_TO_KNOWLEDGE" default:"false"`
	NoDataMessage       string   `envconfig:"NO_DATA_MESSAGE"`
	PromptsFile         string   `envconfig:"PROMPTS_FILE"`

	IndexTimeout       time.Duration `envconfig:"INDEX_TIMEOUT" default:"10m"`
	IndexMaxRetries    int           `envconfig:"INDEX_MAX_RETRIES" default:"3"`
	IndexConcurrency   int           `envconfig:"INDEX_CONCURRENCY" default:"4"`
	WorkerPollInterval time.Duration `envconfig:"WORKER_POLL_INTERVAL" default:"5s"`

	EmbedTimeout  time.Duration `envconfig:"EMBED_TIMEOUT" default:"15s"`
	VectorTimeout time.Duration `envconfig:"VECTOR_TIMEOUT" default:"10s"`
	ChatTimeout   time.Duration `envconfig:"CHAT_TIMEOUT" default:"60s"`

	MaxBodyBytes int64 `envconfig:"MAX_BODY_BYTES" default:"1048576"`
}

// Prompts is the layout of the optional prompts file.
type Prompts struct {
	NoDataMessage string           `yaml:"no_data_message"`
	Preambles     domain.Preambles `yaml:"preambles"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("GROUNDWORK", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	switch cfg.VectorStore {
	case VectorStorePgvector, VectorStoreQdrant, VectorStoreMemory:
	default:
		return nil, fmt.Errorf("unknown vector store %q", cfg.VectorStore)
	}
	if cfg.VectorDimension <= 0 {
		return nil, fmt.Errorf("vector dimension must be positive, got %d", cfg.VectorDimension)
	}

	return &cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

// RAGDefaults builds the settings that rag_settings rows are overlaid on.
func (c *Config) RAGDefaults() (domain.RAGSettings, error) {
	s := domain.RAGSettings{
		ChunkSize:           c.ChunkSize,
		ChunkOverlap:        c.ChunkOverlap,
		TopK:                c.TopK,
		MinScore:            c.MinScore,
		StrictMode:          c.StrictMode,
		SuperStrictMode:     c.SuperStrictMode,
		RestrictToKnowledge: c.RestrictToKnowledge,
		NoDataMessage:       DefaultNoDataMessage,
		Preambles:           DefaultPreambles,
	}
	for _, h := range c.AllowedSourceHosts {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			s.AllowedSourceHosts = append(s.AllowedSourceHosts, h)
		}
	}

	if c.PromptsFile != "" {
		prompts, err := LoadPrompts(c.PromptsFile)
		if err != nil {
			return domain.RAGSettings{}, err
		}
		s = prompts.Apply(s)
	}
	if c.NoDataMessage != "" {
		s.NoDataMessage = c.NoDataMessage
	}

	if err := s.Validate(); err != nil {
		return domain.RAGSettings{}, fmt.Errorf("invalid rag settings: %w", err)
	}
	return s, nil
}

// LoadPrompts reads a prompts YAML file.
func LoadPrompts(path string) (*Prompts, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open prompts file: %w", err)
	}
	defer f.Close()
	return ParsePrompts(f)
}

func ParsePrompts(r io.Reader) (*Prompts, error) {
	var p Prompts
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to parse prompts file: %w", err)
	}
	return &p, nil
}

// Apply overlays the non-empty values of p on s.
func (p *Prompts) Apply(s domain.RAGSettings) domain.RAGSettings {
	if p.NoDataMessage != "" {
		s.NoDataMessage = p.NoDataMessage
	}
	if p.Preambles.Normal != "" {
		s.Preambles.Normal = p.Preambles.Normal
	}
	if p.Preambles.Strict != "" {
		s.Preambles.Strict = p.Preambles.Strict
	}
	if p.Preambles.SuperStrict != "" {
		s.Preambles.SuperStrict = p.Preambles.SuperStrict
	}
	if p.Preambles.NoContext != "" {
		s.Preambles.NoContext = p.Preambles.NoContext
	}
	return s
}

// NewLogger builds the process logger: JSON records, or text when Debug is set.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(c.LogLevel)}
	if c.Debug {
		opts.Level = slog.LevelDebug
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func (c *Config) HasSentry() bool {
	return c.SentryDSN != ""
}
