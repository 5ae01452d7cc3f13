package domain

import (
	"fmt"
	"strings"
)

// AnswerMode controls how closely answers must follow retrieved context.
type AnswerMode string

const (
	AnswerModeNormal      AnswerMode = "normal"
	AnswerModeStrict      AnswerMode = "strict"
	AnswerModeSuperStrict AnswerMode = "super_strict"
)

func (m AnswerMode) rank() int {
	switch m {
	case AnswerModeStrict:
		return 1
	case AnswerModeSuperStrict:
		return 2
	}
	return 0
}

// Stricter returns whichever of m and other constrains answers more.
func (m AnswerMode) Stricter(other AnswerMode) AnswerMode {
	if other.rank() > m.rank() {
		return other
	}
	if m == "" {
		return AnswerModeNormal
	}
	return m
}

// ParseAnswerMode parses a mode name; empty means normal.
func ParseAnswerMode(s string) (AnswerMode, error) {
	switch AnswerMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", AnswerModeNormal:
		return AnswerModeNormal, nil
	case AnswerModeStrict:
		return AnswerModeStrict, nil
	case AnswerModeSuperStrict, "superstrict", "super-strict":
		return AnswerModeSuperStrict, nil
	}
	return "", ErrInvalidAnswerMode
}

// Preambles holds the instruction text placed before retrieved context, per mode.
type Preambles struct {
	Normal      string `yaml:"normal"`
	Strict      string `yaml:"strict"`
	SuperStrict string `yaml:"super_strict"`
	NoContext   string `yaml:"no_context"`
}

// For returns the preamble for mode.
func (p Preambles) For(mode AnswerMode) string {
	switch mode {
	case AnswerModeStrict:
		return p.Strict
	case AnswerModeSuperStrict:
		return p.SuperStrict
	}
	return p.Normal
}

// RAGSettings are the tunables read by indexing and retrieval on every run.
type RAGSettings struct {
	ChunkSize           int
	ChunkOverlap        int
	TopK                int
	MinScore            float64
	AllowedSourceHosts  []string
	StrictMode          bool
	SuperStrictMode     bool
	RestrictToKnowledge bool
	NoDataMessage       string
	Preambles           Preambles
}

// ConfiguredMode is the mode implied by the strict toggles alone.
func (s RAGSettings) ConfiguredMode() AnswerMode {
	switch {
	case s.SuperStrictMode:
		return AnswerModeSuperStrict
	case s.StrictMode:
		return AnswerModeStrict
	}
	return AnswerModeNormal
}

// Restrictive reports whether an empty retrieval must short-circuit to the
// no-data message for a request answered in mode.
func (s RAGSettings) Restrictive(mode AnswerMode) bool {
	return mode != AnswerModeNormal || s.RestrictToKnowledge
}

// Validate checks the settings for values indexing and retrieval cannot work with.
func (s RAGSettings) Validate() error {
	if s.ChunkSize <= 0 || s.ChunkOverlap <= 0 || s.ChunkOverlap >= s.ChunkSize {
		return ErrInvalidChunkParams
	}
	if s.TopK <= 0 {
		return fmt.Errorf("top k must be positive, got %d", s.TopK)
	}
	return nil
}
