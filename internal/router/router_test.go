// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package router

import (
	"encoding/json"
	"sync"
	"testing"
)

// ============================================================================
// ROUTING TABLE TESTS
// ============================================================================

func TestSelectModel_DefaultTable(t *testing.T) {
	r := New(Models{})

	tests := []struct {
		level        Level
		wantProvider Provider
		wantModel    string
		wantTier     Tier
		wantTokens   int
	}{
		{LevelEasy, ProviderOpenAI, DefaultTier1Model, Tier1, 2048},
		{LevelMedium, ProviderOpenAI, DefaultTier1Model, Tier1, 2048},
		{LevelHard, ProviderOpenAI, DefaultTier2Model, Tier2, 4096},
		{LevelExpert, ProviderAnthropic, DefaultTier3Model, Tier3, 4096},
	}

	for _, tt := range tests {
		t.Run(tt.level.String(), func(t *testing.T) {
			got := r.SelectModel(tt.level)
			if got.Provider != tt.wantProvider {
				t.Errorf("Provider = %s, want %s", got.Provider, tt.wantProvider)
			}
			if got.ModelID != tt.wantModel {
				t.Errorf("ModelID = %s, want %s", got.ModelID, tt.wantModel)
			}
			if got.Tier != tt.wantTier {
				t.Errorf("Tier = %v, want %v", got.Tier, tt.wantTier)
			}
			if got.MaxOutputTokens != tt.wantTokens {
				t.Errorf("MaxOutputTokens = %d, want %d", got.MaxOutputTokens, tt.wantTokens)
			}
		})
	}
}

func TestSelectModel_Overrides(t *testing.T) {
	r := New(Models{Tier1: "small", Tier3: "huge"})

	if got := r.SelectModel(LevelEasy).ModelID; got != "small" {
		t.Errorf("easy model = %s, want small", got)
	}
	if got := r.SelectModel(LevelHard).ModelID; got != DefaultTier2Model {
		t.Errorf("hard model = %s, want default %s", got, DefaultTier2Model)
	}
	if got := r.SelectModel(LevelExpert).ModelID; got != "huge" {
		t.Errorf("expert model = %s, want huge", got)
	}

	r.SetModels(Models{Tier2: "mid"})
	if got := r.SelectModel(LevelHard).ModelID; got != "mid" {
		t.Errorf("hard model after SetModels = %s, want mid", got)
	}
	if got := r.SelectModel(LevelEasy).ModelID; got != DefaultTier1Model {
		t.Errorf("easy model after SetModels = %s, want default", got)
	}
}

func TestSelectModel_ClampsOutOfRange(t *testing.T) {
	r := New(DefaultModels())
	if got := r.SelectModel(Level(-3)); got != r.SelectModel(LevelEasy) {
		t.Errorf("SelectModel(-3) = %v, want easy config", got)
	}
	if got := r.SelectModel(Level(42)); got != r.SelectModel(LevelExpert) {
		t.Errorf("SelectModel(42) = %v, want expert config", got)
	}
}

// ============================================================================
// FALLBACK TESTS
// ============================================================================

func TestNextFallback(t *testing.T) {
	r := New(DefaultModels())

	tests := []struct {
		level     Level
		wantOK    bool
		wantModel string
	}{
		{LevelEasy, true, DefaultTier1Model},
		{LevelMedium, true, DefaultTier2Model},
		{LevelHard, true, DefaultTier3Model},
		{LevelExpert, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.level.String(), func(t *testing.T) {
			got, ok := r.NextFallback(tt.level)
			if ok != tt.wantOK {
				t.Fatalf("NextFallback(%v) ok = %v, want %v", tt.level, ok, tt.wantOK)
			}
			if ok && got.ModelID != tt.wantModel {
				t.Errorf("NextFallback(%v) = %s, want %s", tt.level, got.ModelID, tt.wantModel)
			}
		})
	}
}

// TestFallbackChain_TierMonotonic verifies tiers never decrease along the chain.
func TestFallbackChain_TierMonotonic(t *testing.T) {
	r := New(DefaultModels())

	prev := Tier(0)
	for _, level := range FallbackChain {
		cfg := r.SelectModel(level)
		if cfg.Tier < prev {
			t.Errorf("tier decreased at %v: %v < %v", level, cfg.Tier, prev)
		}
		prev = cfg.Tier

		if next, ok := r.NextFallback(level); ok && next.Tier < cfg.Tier {
			t.Errorf("fallback from %v drops tier: %v -> %v", level, cfg.Tier, next.Tier)
		}
	}
}

func TestVisionAndAnalyticsModels(t *testing.T) {
	r := New(Models{Vision: "eyes"})

	v := r.VisionModel()
	if v.ModelID != "eyes" || v.Provider != ProviderOpenAI {
		t.Errorf("VisionModel() = %v, want openai/eyes", v)
	}

	if got := r.AnalyticsModel(); got != r.SelectModel(LevelExpert) {
		t.Errorf("AnalyticsModel() = %v, want expert config", got)
	}
}

func TestTable_ChainOrder(t *testing.T) {
	r := New(DefaultModels())
	table := r.Table()
	if len(table) != len(FallbackChain) {
		t.Fatalf("len(Table()) = %d, want %d", len(table), len(FallbackChain))
	}
	if table[3].Tier != Tier3 {
		t.Errorf("last row tier = %v, want tier3", table[3].Tier)
	}
}

// TestRoute_ExpertGoesToTopTier verifies a JEE Advanced calculus question
// lands on the highest tier.
func TestRoute_ExpertGoesToTopTier(t *testing.T) {
	r := New(DefaultModels())
	d := r.Route(`JEE Advanced integration problem: evaluate \int_0^3 x^2 dx, then compute 3*2 + sin(x)`)

	if d.Assessment.Level != LevelHard && d.Assessment.Level != LevelExpert {
		t.Fatalf("level = %v, want hard or expert", d.Assessment.Level)
	}
	if d.Model.Tier != Tier3 {
		t.Errorf("tier = %v, want tier3", d.Model.Tier)
	}
	if d.Model.Provider != ProviderAnthropic {
		t.Errorf("provider = %v, want anthropic", d.Model.Provider)
	}
}

func TestRouter_ConcurrentAccess(t *testing.T) {
	r := New(DefaultModels())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = r.SelectModel(LevelHard)
			_, _ = r.NextFallback(LevelEasy)
		}()
		go func(i int) {
			defer wg.Done()
			if i%10 == 0 {
				r.SetModels(DefaultModels())
			}
		}(i)
	}
	wg.Wait()
}

// ============================================================================
// LEVEL TESTS
// ============================================================================

func TestParseLevel(t *testing.T) {
	for _, level := range FallbackChain {
		got, err := ParseLevel(level.String())
		if err != nil || got != level {
			t.Errorf("ParseLevel(%q) = %v, %v", level.String(), got, err)
		}
	}

	if _, err := ParseLevel("impossible"); err == nil {
		t.Error("ParseLevel(impossible) should fail")
	}
}

func TestLevel_JSON(t *testing.T) {
	a := Assessment{Level: LevelHard, Score: 5, Reasons: []string{"x"}}
	data, err := json.Marshal(a)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(data) != `{"level":"hard","score":5,"reasons":["x"]}` {
		t.Errorf("Marshal = %s", data)
	}

	var back Assessment
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if back.Level != LevelHard {
		t.Errorf("Level after round trip = %v", back.Level)
	}
}

func TestNextLevel(t *testing.T) {
	if next, ok := NextLevel(LevelEasy); !ok || next != LevelMedium {
		t.Errorf("NextLevel(easy) = %v, %v", next, ok)
	}
	if _, ok := NextLevel(LevelExpert); ok {
		t.Error("NextLevel(expert) should report no next level")
	}
}
