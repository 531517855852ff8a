// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package router

import (
	"fmt"
	"strings"
)

// ============================================================================
// COMPLEXITY LEVEL
// ============================================================================

// Level is the assessed difficulty of a question.
// Ordered by capability required: Easy < Medium < Hard < Expert.
type Level int

const (
	// LevelEasy is a short, single-concept question.
	LevelEasy Level = iota
	// LevelMedium has some math or length but no advanced markers.
	LevelMedium
	// LevelHard carries exam or advanced-coursework markers.
	LevelHard
	// LevelExpert carries graduate/olympiad markers or stacks several hard signals.
	LevelExpert
)

// String returns the lowercase name used on the wire and in usage records.
func (l Level) String() string {
	switch l {
	case LevelEasy:
		return "easy"
	case LevelMedium:
		return "medium"
	case LevelHard:
		return "hard"
	case LevelExpert:
		return "expert"
	default:
		return fmt.Sprintf("Level(%d)", l)
	}
}

// MarshalText implements encoding.TextMarshaler so levels serialize by name.
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *Level) UnmarshalText(text []byte) error {
	parsed, err := ParseLevel(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// ParseLevel converts a level name into a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "easy":
		return LevelEasy, nil
	case "medium":
		return LevelMedium, nil
	case "hard":
		return LevelHard, nil
	case "expert":
		return LevelExpert, nil
	default:
		return LevelEasy, fmt.Errorf("unknown complexity level %q", s)
	}
}

// levelFromScore maps a raw difficulty score to its level.
func levelFromScore(score int) Level {
	switch {
	case score >= 8:
		return LevelExpert
	case score >= 5:
		return LevelHard
	case score >= 2:
		return LevelMedium
	default:
		return LevelEasy
	}
}

// ============================================================================
// PROVIDER
// ============================================================================

// Provider names a family of completion APIs.
type Provider string

const (
	// ProviderOpenAI is the OpenAI chat completions API (or a compatible gateway).
	ProviderOpenAI Provider = "openai"
	// ProviderAnthropic is the Anthropic messages API.
	ProviderAnthropic Provider = "anthropic"
)

// String returns the provider name.
func (p Provider) String() string {
	return string(p)
}

// Valid reports whether p is a provider the router knows how to target.
func (p Provider) Valid() bool {
	return p == ProviderOpenAI || p == ProviderAnthropic
}

// ============================================================================
// TIER
// ============================================================================

// Tier is a cost/capability band. Tier 1 is cheapest.
type Tier int

const (
	// Tier1 serves easy and medium questions.
	Tier1 Tier = 1
	// Tier2 serves hard questions and image questions.
	Tier2 Tier = 2
	// Tier3 serves expert questions.
	Tier3 Tier = 3
)

// String returns "tier1", "tier2" or "tier3".
func (t Tier) String() string {
	return fmt.Sprintf("tier%d", int(t))
}

// ============================================================================
// MODEL CONFIGURATION
// ============================================================================

// ModelConfig is one routing table row.
type ModelConfig struct {
	// Provider is the adapter family that serves the model.
	Provider Provider `json:"provider"`
	// ModelID is passed verbatim to the provider.
	ModelID string `json:"model_id"`
	// Tier is the cost band of the model.
	Tier Tier `json:"tier"`
	// MaxOutputTokens caps the completion length.
	MaxOutputTokens int `json:"max_output_tokens"`
}

// String returns a compact description for logs.
func (m ModelConfig) String() string {
	return fmt.Sprintf("%s/%s (%s, max_tokens=%d)", m.Provider, m.ModelID, m.Tier, m.MaxOutputTokens)
}

// ============================================================================
// ASSESSMENT
// ============================================================================

// Assessment is the output of the complexity classifier.
type Assessment struct {
	// Level is the mapped difficulty level.
	Level Level `json:"level"`
	// Score is the raw additive score the level was derived from.
	Score int `json:"score"`
	// Reasons lists every rule that contributed, in evaluation order.
	// Intended for logs and debugging, not for students.
	Reasons []string `json:"reasons"`
}

// String returns a human-readable summary of the assessment.
func (a Assessment) String() string {
	return fmt.Sprintf("%s (score=%d): %s", a.Level, a.Score, strings.Join(a.Reasons, "; "))
}
