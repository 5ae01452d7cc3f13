package llm

import (
	"strings"

	"github.com/cloo-solutions/groundwork/internal/domain"
)

// KindDefaults are the settings a backend kind gets when an operator leaves them blank.
type KindDefaults struct {
	ChatModel          string
	EmbeddingModel     string
	EmbeddingDimension int
	// NativeEmbedding is false for kinds that only chat; they embed with the hashing fallback.
	NativeEmbedding bool
}

var kindDefaults = map[domain.ProviderKind]KindDefaults{
	domain.ProviderKindOpenAI: {
		ChatModel:          "gpt-4o-mini",
		EmbeddingModel:     "text-embedding-3-small",
		EmbeddingDimension: 1536,
		NativeEmbedding:    true,
	},
	domain.ProviderKindAzureOpenAI: {
		ChatModel:          "gpt-4o-mini",
		EmbeddingModel:     "text-embedding-3-small",
		EmbeddingDimension: 1536,
		NativeEmbedding:    true,
	},
	domain.ProviderKindOllama: {
		ChatModel:          "llama3.1",
		EmbeddingModel:     "nomic-embed-text",
		EmbeddingDimension: 768,
		NativeEmbedding:    true,
	},
	domain.ProviderKindAnthropic: {
		ChatModel:       "claude-3-5-haiku-latest",
		NativeEmbedding: false,
	},
	// Custom endpoints have no sensible model default; only the capability is known.
	domain.ProviderKindOpenAICompatible: {
		NativeEmbedding: true,
	},
}

// modelDimensions maps well-known embedding models to their output size.
var modelDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
	"nomic-embed-text":       768,
	"mxbai-embed-large":      1024,
	"all-minilm":             384,
	"snowflake-arctic-embed": 1024,
	"bge-m3":                 1024,
}

// Defaults returns the static defaults for kind.
func Defaults(kind domain.ProviderKind) (KindDefaults, bool) {
	d, ok := kindDefaults[kind]
	return d, ok
}

// ModelDimension looks up the output size of a known embedding model.
// Ollama-style tags ("nomic-embed-text:latest") are ignored.
func ModelDimension(model string) (int, bool) {
	name := strings.ToLower(strings.TrimSpace(model))
	if i := strings.IndexByte(name, ':'); i >= 0 {
		name = name[:i]
	}
	d, ok := modelDimensions[name]
	return d, ok
}

// NativeEmbeddingKinds lists the kinds that can produce semantic embeddings.
func NativeEmbeddingKinds() []domain.ProviderKind {
	kinds := make([]domain.ProviderKind, 0, len(domain.ProviderKinds))
	for _, k := range domain.ProviderKinds {
		if kindDefaults[k].NativeEmbedding {
			kinds = append(kinds, k)
		}
	}
	return kinds
}
