package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateProviderConfig(t *testing.T) {
	valid := func() *ProviderConfig {
		return &ProviderConfig{Name: "main", Kind: ProviderKindOpenAI, ChatModel: "gpt-4o-mini"}
	}

	tests := []struct {
		name    string
		mutate  func(p *ProviderConfig)
		wantErr bool
		errMsg  string
	}{
		{"valid", func(p *ProviderConfig) {}, false, ""},
		{"missing name", func(p *ProviderConfig) { p.Name = "" }, true, "Name"},
		{"unknown kind", func(p *ProviderConfig) { p.Kind = "cohere" }, true, "Kind"},
		{"missing chat model", func(p *ProviderConfig) { p.ChatModel = "" }, true, "ChatModel"},
		{"negative dimension", func(p *ProviderConfig) { p.EmbeddingDimension = -1 }, true, "EmbeddingDimension"},
		{"azure without endpoint", func(p *ProviderConfig) { p.Kind = ProviderKindAzureOpenAI }, true, "ChatEndpoint"},
		{"compatible with endpoint", func(p *ProviderConfig) {
			p.Kind = ProviderKindOpenAICompatible
			p.ChatEndpoint = "http://localhost:8080/v1"
		}, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid()
			tt.mutate(p)
			err := ValidateProviderConfig(p)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestEffectiveEmbeddingEndpoint(t *testing.T) {
	p := &ProviderConfig{ChatEndpoint: "http://chat"}
	assert.Equal(t, "http://chat", p.EffectiveEmbeddingEndpoint())

	p.EmbeddingEndpoint = "http://embed"
	assert.Equal(t, "http://embed", p.EffectiveEmbeddingEndpoint())
}
