// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package router

import (
	"fmt"
	"sync"
)

// Default model identifiers, used when no override is configured.
const (
	DefaultTier1Model  = "gpt-4o-mini"
	DefaultTier2Model  = "gpt-4.1"
	DefaultTier3Model  = "claude-opus-4-6"
	DefaultVisionModel = "gpt-4o"
)

// Output token caps per tier.
const (
	tier1MaxTokens = 2048
	tier2MaxTokens = 4096
	tier3MaxTokens = 4096
)

// FallbackChain is the fixed escalation order used after a provider failure.
var FallbackChain = []Level{LevelEasy, LevelMedium, LevelHard, LevelExpert}

// Models holds the per-tier model identifiers the routing table is built from.
type Models struct {
	Tier1  string
	Tier2  string
	Tier3  string
	Vision string
}

// DefaultModels returns the built-in model identifiers.
func DefaultModels() Models {
	return Models{
		Tier1:  DefaultTier1Model,
		Tier2:  DefaultTier2Model,
		Tier3:  DefaultTier3Model,
		Vision: DefaultVisionModel,
	}
}

// withDefaults fills empty identifiers from DefaultModels.
func (m Models) withDefaults() Models {
	d := DefaultModels()
	if m.Tier1 == "" {
		m.Tier1 = d.Tier1
	}
	if m.Tier2 == "" {
		m.Tier2 = d.Tier2
	}
	if m.Tier3 == "" {
		m.Tier3 = d.Tier3
	}
	if m.Vision == "" {
		m.Vision = d.Vision
	}
	return m
}

// ============================================================================
// ROUTER
// ============================================================================

// Router maps complexity levels to model configurations.
// The table is static between calls to SetModels; lookups are safe for
// concurrent use.
type Router struct {
	mu     sync.RWMutex
	table  map[Level]ModelConfig
	vision ModelConfig
}

// New builds a router from the given model identifiers. Empty identifiers
// fall back to the defaults.
func New(models Models) *Router {
	r := &Router{}
	r.SetModels(models)
	return r
}

// SetModels rebuilds the routing table. Used on config reload.
func (r *Router) SetModels(models Models) {
	models = models.withDefaults()

	tier1 := ModelConfig{Provider: ProviderOpenAI, ModelID: models.Tier1, Tier: Tier1, MaxOutputTokens: tier1MaxTokens}
	table := map[Level]ModelConfig{
		LevelEasy:   tier1,
		LevelMedium: tier1,
		LevelHard:   {Provider: ProviderOpenAI, ModelID: models.Tier2, Tier: Tier2, MaxOutputTokens: tier2MaxTokens},
		LevelExpert: {Provider: ProviderAnthropic, ModelID: models.Tier3, Tier: Tier3, MaxOutputTokens: tier3MaxTokens},
	}
	vision := ModelConfig{Provider: ProviderOpenAI, ModelID: models.Vision, Tier: Tier2, MaxOutputTokens: tier2MaxTokens}

	r.mu.Lock()
	r.table = table
	r.vision = vision
	r.mu.Unlock()
}

// SelectModel returns the configuration for a level. Unknown levels are
// clamped into range so the function is total.
func (r *Router) SelectModel(level Level) ModelConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.table[clampLevel(level)]
}

// NextFallback returns the configuration one step further along
// FallbackChain, or false when level is already the last tier.
func (r *Router) NextFallback(level Level) (ModelConfig, bool) {
	next, ok := NextLevel(level)
	if !ok {
		return ModelConfig{}, false
	}
	return r.SelectModel(next), true
}

// VisionModel returns the configuration forced for image-bearing questions.
func (r *Router) VisionModel() ModelConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.vision
}

// AnalyticsModel returns the model used for read-side analytics prompts.
// It is the expert configuration.
func (r *Router) AnalyticsModel() ModelConfig {
	return r.SelectModel(LevelExpert)
}

// Table returns a copy of the routing table in chain order.
func (r *Router) Table() []ModelConfig {
	out := make([]ModelConfig, 0, len(FallbackChain))
	for _, level := range FallbackChain {
		out = append(out, r.SelectModel(level))
	}
	return out
}

// NextLevel returns the level after l in FallbackChain.
func NextLevel(l Level) (Level, bool) {
	l = clampLevel(l)
	for i, level := range FallbackChain {
		if level == l && i+1 < len(FallbackChain) {
			return FallbackChain[i+1], true
		}
	}
	return l, false
}

func clampLevel(l Level) Level {
	if l < LevelEasy {
		return LevelEasy
	}
	if l > LevelExpert {
		return LevelExpert
	}
	return l
}

// ============================================================================
// DECISION
// ============================================================================

// Decision bundles a classification with the configuration it routed to.
type Decision struct {
	Assessment Assessment  `json:"assessment"`
	Model      ModelConfig `json:"model"`
}

// String returns a human-readable summary of the routing decision.
func (d Decision) String() string {
	return fmt.Sprintf("%s -> %s", d.Assessment, d.Model)
}

// Route classifies a question and selects its model in one step.
func (r *Router) Route(question string) Decision {
	a := Classify(question)
	return Decision{Assessment: a, Model: r.SelectModel(a.Level)}
}
