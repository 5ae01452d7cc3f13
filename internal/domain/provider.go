package domain

import (
	"fmt"
	"strings"
	"time"
)

// ProviderKind is the closed set of supported AI backends
type ProviderKind string

const (
	ProviderKindOpenAI           ProviderKind = "openai"
	ProviderKindAzureOpenAI      ProviderKind = "azure_openai"
	ProviderKindOllama           ProviderKind = "ollama"
	ProviderKindAnthropic        ProviderKind = "anthropic"
	ProviderKindOpenAICompatible ProviderKind = "openai_compatible"
)

// ProviderKinds lists every supported kind in display order.
var ProviderKinds = []ProviderKind{
	ProviderKindOpenAI,
	ProviderKindAzureOpenAI,
	ProviderKindOllama,
	ProviderKindAnthropic,
	ProviderKindOpenAICompatible,
}

// ProviderCapabilities holds per-configuration overrides of model limits.
type ProviderCapabilities struct {
	ContextWindow   int `json:"context_window,omitempty"`
	MaxOutputTokens int `json:"max_output_tokens,omitempty"`
}

// ProviderConfig describes one configured AI backend. At most one is active.
type ProviderConfig struct {
	ID                  string
	Name                string
	Kind                ProviderKind
	ChatModel           string
	ChatEndpoint        string
	EncryptedCredential string
	EmbeddingModel      string
	EmbeddingEndpoint   string // Empty means use ChatEndpoint
	EmbeddingDimension  int
	SupportsEmbedding   bool
	Capabilities        ProviderCapabilities
	IsActive            bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// EffectiveEmbeddingEndpoint returns the endpoint embedding calls go to.
func (p *ProviderConfig) EffectiveEmbeddingEndpoint() string {
	if p.EmbeddingEndpoint != "" {
		return p.EmbeddingEndpoint
	}
	return p.ChatEndpoint
}

// ValidateProviderConfig validates a ProviderConfig instance
func ValidateProviderConfig(p *ProviderConfig) error {
	if p == nil {
		return fmt.Errorf("provider config cannot be nil")
	}

	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("provider Name is required")
	}

	if !IsValidProviderKind(p.Kind) {
		return fmt.Errorf("provider Kind is invalid: %s", p.Kind)
	}

	if p.ChatModel == "" {
		return fmt.Errorf("provider ChatModel is required")
	}

	if p.EmbeddingDimension < 0 {
		return fmt.Errorf("provider EmbeddingDimension cannot be negative")
	}

	switch p.Kind {
	case ProviderKindAzureOpenAI, ProviderKindOpenAICompatible:
		if p.ChatEndpoint == "" {
			return fmt.Errorf("provider ChatEndpoint is required for %s", p.Kind)
		}
	}

	return nil
}

// IsValidProviderKind checks if a ProviderKind is valid
func IsValidProviderKind(k ProviderKind) bool {
	for _, known := range ProviderKinds {
		if k == known {
			return true
		}
	}
	return false
}
