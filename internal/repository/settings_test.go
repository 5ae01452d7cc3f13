package repository

import (
	"testing"

	"github.com/cloo-solutions/groundwork/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultSettings() domain.RAGSettings {
	return domain.RAGSettings{
		ChunkSize:          1024,
		ChunkOverlap:       200,
		TopK:               5,
		MinScore:           0.5,
		AllowedSourceHosts: []string{"docs.example.com"},
		NoDataMessage:      "No data.",
		Preambles: domain.Preambles{
			Normal: "normal",
			Strict: "strict",
		},
	}
}

func TestApplyOverrides_NoValues(t *testing.T) {
	s, err := ApplyOverrides(defaultSettings(), nil)
	require.NoError(t, err)
	assert.Equal(t, defaultSettings(), s)
}

func TestApplyOverrides_AllKeys(t *testing.T) {
	values := map[string]string{
		SettingChunkSize:           "512",
		SettingChunkOverlap:        " 64 ",
		SettingTopK:                "8",
		SettingMinScore:            "0.72",
		SettingAllowedSourceHosts:  "Wiki.Example.com, ,help.example.com",
		SettingStrictMode:          "true",
		SettingSuperStrictMode:     "false",
		SettingRestrictToKnowledge: "1",
		SettingNoDataMessage:       "Nothing found.",
		SettingPreambleNormal:      "n",
		SettingPreambleStrict:      "s",
		SettingPreambleSuperStrict: "ss",
	}
	require.Len(t, values, len(SettingKeys))

	s, err := ApplyOverrides(defaultSettings(), values)
	require.NoError(t, err)

	assert.Equal(t, 512, s.ChunkSize)
	assert.Equal(t, 64, s.ChunkOverlap)
	assert.Equal(t, 8, s.TopK)
	assert.InDelta(t, 0.72, s.MinScore, 1e-9)
	assert.Equal(t, []string{"wiki.example.com", "help.example.com"}, s.AllowedSourceHosts)
	assert.True(t, s.StrictMode)
	assert.False(t, s.SuperStrictMode)
	assert.True(t, s.RestrictToKnowledge)
	assert.Equal(t, "Nothing found.", s.NoDataMessage)
	assert.Equal(t, domain.Preambles{Normal: "n", Strict: "s", SuperStrict: "ss"}, s.Preambles)
}

func TestApplyOverrides_DoesNotMutateDefaults(t *testing.T) {
	defaults := defaultSettings()
	_, err := ApplyOverrides(defaults, map[string]string{SettingAllowedSourceHosts: "a.example.com"})
	require.NoError(t, err)
	assert.Equal(t, []string{"docs.example.com"}, defaults.AllowedSourceHosts)
}

func TestApplyOverrides_EmptyHostsClearsList(t *testing.T) {
	s, err := ApplyOverrides(defaultSettings(), map[string]string{SettingAllowedSourceHosts: ""})
	require.NoError(t, err)
	assert.Empty(t, s.AllowedSourceHosts)
}

func TestApplyOverrides_Errors(t *testing.T) {
	tests := []struct {
		name   string
		values map[string]string
		want   error
	}{
		{"unknown key", map[string]string{"temperature": "0.2"}, domain.ErrUnknownSetting},
		{"overlap not below size", map[string]string{SettingChunkOverlap: "1024"}, domain.ErrInvalidChunkParams},
		{"zero overlap", map[string]string{SettingChunkOverlap: "0"}, domain.ErrInvalidChunkParams},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ApplyOverrides(defaultSettings(), tt.values)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	t.Run("unparsable number", func(t *testing.T) {
		_, err := ApplyOverrides(defaultSettings(), map[string]string{SettingTopK: "five"})
		require.Error(t, err)
		assert.Equal(t, domain.ErrCodeValidation, domain.ErrorCode(err))
	})

	t.Run("non-positive top k", func(t *testing.T) {
		_, err := ApplyOverrides(defaultSettings(), map[string]string{SettingTopK: "0"})
		assert.Error(t, err)
	})
}

func TestSettingValue_RoundTripsThroughOverrides(t *testing.T) {
	values := map[string]string{
		SettingChunkSize:           "512",
		SettingChunkOverlap:        "64",
		SettingTopK:                "8",
		SettingMinScore:            "0.72",
		SettingAllowedSourceHosts:  "wiki.example.com,help.example.com",
		SettingStrictMode:          "true",
		SettingSuperStrictMode:     "false",
		SettingRestrictToKnowledge: "true",
		SettingNoDataMessage:       "Nothing found.",
		SettingPreambleNormal:      "n",
		SettingPreambleStrict:      "s",
		SettingPreambleSuperStrict: "ss",
	}
	s, err := ApplyOverrides(defaultSettings(), values)
	require.NoError(t, err)

	for _, key := range SettingKeys {
		got, ok := SettingValue(s, key)
		require.True(t, ok, key)
		assert.Equal(t, values[key], got, key)
	}

	_, ok := SettingValue(s, "temperature")
	assert.False(t, ok)
}

func TestIsSettingKey(t *testing.T) {
	for _, key := range SettingKeys {
		assert.True(t, isSettingKey(key))
	}
	assert.False(t, isSettingKey("temperature"))
}
