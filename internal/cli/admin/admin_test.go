package admin

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/cloo-solutions/groundwork/internal/crypto"
	"github.com/cloo-solutions/groundwork/internal/domain"
	"github.com/cloo-solutions/groundwork/internal/service"
	"github.com/cloo-solutions/groundwork/internal/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiagnoseChunk(t *testing.T) {
	t.Run("reads stdin and prints a summary", func(t *testing.T) {
		cmd := DiagnoseCmd()
		var out bytes.Buffer
		cmd.SetOut(&out)
		cmd.SetIn(strings.NewReader(strings.Repeat("word ", 100)))
		cmd.SetArgs([]string{"chunk", "--size", "200", "--overlap", "50"})

		require.NoError(t, cmd.Execute())
		assert.Contains(t, out.String(), "size 200, overlap 50")
		assert.Contains(t, out.String(), "[0]")
		assert.Contains(t, out.String(), "[1]")
	})

	t.Run("json output", func(t *testing.T) {
		cmd := DiagnoseCmd()
		var out bytes.Buffer
		cmd.SetOut(&out)
		cmd.SetIn(strings.NewReader("short text"))
		cmd.SetArgs([]string{"chunk", "-o", "json"})

		require.NoError(t, cmd.Execute())
		var views []chunkView
		require.NoError(t, json.Unmarshal(out.Bytes(), &views))
		require.Len(t, views, 1)
		assert.Equal(t, 10, views[0].CharCount)
		assert.Equal(t, "short text", views[0].Preview)
	})

	t.Run("invalid parameters", func(t *testing.T) {
		cmd := DiagnoseCmd()
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetIn(strings.NewReader("text"))
		cmd.SetArgs([]string{"chunk", "--size", "100", "--overlap", "100"})

		err := cmd.Execute()
		assert.ErrorIs(t, err, domain.ErrInvalidChunkParams)
	})
}

func TestQueryViews(t *testing.T) {
	all := []vectorstore.Match{
		{ID: "a", Score: 0.9, Metadata: vectorstore.Metadata{EntryID: "e1", Title: "Kept"}},
		{ID: "b", Score: 0.1, Metadata: vectorstore.Metadata{EntryID: "e2", Title: "Dropped"}},
	}
	views := queryViews(all, all[:1])

	require.Len(t, views, 2)
	assert.True(t, views[0].Kept)
	assert.False(t, views[1].Kept)

	var out bytes.Buffer
	writeQueryViews(&out, views, domain.RAGSettings{MinScore: 0.5, AllowedSourceHosts: []string{"docs.example.com"}})
	assert.Contains(t, out.String(), "min score 0.50, hosts docs.example.com")
	assert.Contains(t, out.String(), "keep  Kept")
	assert.Contains(t, out.String(), "drop  Dropped")
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "a b", preview("a\n\n  b", 10))
	assert.Equal(t, "héllo...", preview("héllo world", 5))
}

func TestBuildProviderConfig(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	t.Run("fills kind defaults", func(t *testing.T) {
		p, err := buildProviderConfig("local", providerAddOptions{kind: "Ollama"}, "", nil, now)
		require.NoError(t, err)

		assert.Equal(t, domain.ProviderKindOllama, p.Kind)
		assert.Equal(t, "llama3.1", p.ChatModel)
		assert.Equal(t, "nomic-embed-text", p.EmbeddingModel)
		assert.Equal(t, 768, p.EmbeddingDimension)
		assert.True(t, p.SupportsEmbedding)
		assert.NotEmpty(t, p.ID)
		assert.Equal(t, now, p.CreatedAt)
	})

	t.Run("chat-only kind has embeddings disabled", func(t *testing.T) {
		p, err := buildProviderConfig("claude", providerAddOptions{kind: "anthropic"}, "", nil, now)
		require.NoError(t, err)

		assert.False(t, p.SupportsEmbedding)
		assert.Empty(t, p.EmbeddingModel)
	})

	t.Run("no-embedding flag wins", func(t *testing.T) {
		p, err := buildProviderConfig("chat", providerAddOptions{kind: "openai", noEmbedding: true}, "", nil, now)
		require.NoError(t, err)

		assert.False(t, p.SupportsEmbedding)
		assert.Equal(t, 0, p.EmbeddingDimension)
	})

	t.Run("unknown kind", func(t *testing.T) {
		_, err := buildProviderConfig("x", providerAddOptions{kind: "palm"}, "", nil, now)
		assert.ErrorIs(t, err, domain.ErrInvalidProviderKind)
	})

	t.Run("azure requires an endpoint", func(t *testing.T) {
		_, err := buildProviderConfig("azure", providerAddOptions{kind: "azure_openai"}, "", nil, now)
		assert.ErrorContains(t, err, "ChatEndpoint")
	})

	t.Run("credential is sealed", func(t *testing.T) {
		sealer, err := crypto.NewSealer("test-key")
		require.NoError(t, err)

		p, err := buildProviderConfig("primary", providerAddOptions{kind: "openai"}, "sk-secret", sealer, now)
		require.NoError(t, err)

		assert.NotEmpty(t, p.EncryptedCredential)
		assert.NotContains(t, p.EncryptedCredential, "sk-secret")
		plain, err := sealer.Open(p.EncryptedCredential)
		require.NoError(t, err)
		assert.Equal(t, "sk-secret", plain)
	})

	t.Run("credential without a key", func(t *testing.T) {
		_, err := buildProviderConfig("primary", providerAddOptions{kind: "openai"}, "sk-secret", nil, now)
		assert.ErrorContains(t, err, "GROUNDWORK_CREDENTIAL_KEY")
	})
}

func TestWriteProviderTable(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, writeProviderTable(&out, nil))
		assert.Contains(t, out.String(), "No providers configured")
	})

	t.Run("marks the active provider", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, writeProviderTable(&out, []providerView{
			{Name: "primary", Kind: "openai", ChatModel: "gpt-4o-mini", EmbeddingModel: "text-embedding-3-small", EmbeddingDimension: 1536, SupportsEmbedding: true, IsActive: true},
			{Name: "claude", Kind: "anthropic", ChatModel: "claude-3-5-haiku-latest"},
		}))

		lines := strings.Split(strings.TrimSpace(out.String()), "\n")
		require.Len(t, lines, 3)
		assert.True(t, strings.HasPrefix(lines[1], "*"))
		assert.Contains(t, lines[2], "(disabled)")
	})
}

func TestWriteSystemHealth(t *testing.T) {
	var out bytes.Buffer
	writeSystemHealth(&out, service.SystemHealth{
		Status: service.HealthUnhealthy,
		Embedding: service.EmbeddingHealth{
			Status:    service.HealthConnected,
			Provider:  "primary",
			Kind:      "openai",
			Model:     "text-embedding-3-small",
			Dimension: 1536,
			Repaired:  true,
		},
		VectorStore: service.VectorStoreHealth{
			Status:    service.HealthError,
			Dimension: 1536,
			Message:   "vector store is unreachable",
		},
	})

	s := out.String()
	assert.Contains(t, s, "System: unhealthy")
	assert.Contains(t, s, "provider:  primary (openai)")
	assert.Contains(t, s, "repaired:")
	assert.Contains(t, s, "Vector store: error")
	assert.Contains(t, s, "vector store is unreachable")
}

func TestKindList(t *testing.T) {
	list := kindList()
	for _, k := range domain.ProviderKinds {
		assert.Contains(t, list, string(k))
	}
}

func TestSettingViews(t *testing.T) {
	effective := domain.RAGSettings{
		ChunkSize:          512,
		ChunkOverlap:       64,
		TopK:               5,
		AllowedSourceHosts: []string{"docs.example.com"},
		Preambles:          domain.Preambles{Normal: strings.Repeat("long preamble ", 20)},
	}
	views := settingViews(effective, map[string]string{"chunk_size": "512"})

	require.NotEmpty(t, views)
	byKey := make(map[string]settingView, len(views))
	for _, v := range views {
		byKey[v.Key] = v
	}
	assert.Equal(t, settingView{Key: "chunk_size", Value: "512", Overridden: true}, byKey["chunk_size"])
	assert.Equal(t, settingView{Key: "top_k", Value: "5"}, byKey["top_k"])
	assert.Equal(t, "docs.example.com", byKey["allowed_source_hosts"].Value)

	var out bytes.Buffer
	require.NoError(t, writeSettingsTable(&out, views))
	assert.Contains(t, out.String(), "KEY")
	assert.Regexp(t, `chunk_size\s+512\s+override`, out.String())
	assert.Regexp(t, `top_k\s+5\s+default`, out.String())
	assert.Contains(t, out.String(), "...")
}
