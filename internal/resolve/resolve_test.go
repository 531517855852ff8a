// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package resolve

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/doubtrun/internal/cloud"
	"github.com/jeranaias/doubtrun/internal/router"
	"github.com/jeranaias/doubtrun/internal/telemetry"
	"github.com/jeranaias/doubtrun/internal/topic"
)

const (
	mediumQuestion = "Solve: lim(x→0) (sin x)/x using L'Hopital's rule"
	expertQuestion = `JEE Advanced integration problem: evaluate \int_0^3 x^2 dx, then compute 3*2 + sin(x)`
)

// =============================================================================
// FAKES
// =============================================================================

// fakeProvider answers per model. Models missing from replies fail.
type fakeProvider struct {
	name    string
	replies map[string]cloud.Response
	block   map[string]bool

	mu    sync.Mutex
	calls []cloud.Request
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Complete(ctx context.Context, req cloud.Request) (cloud.Response, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()

	if f.block[req.ModelID] {
		<-ctx.Done()
		return cloud.Response{}, &cloud.ProviderError{Provider: f.name, Model: req.ModelID, Err: cloud.ErrTransport, Message: ctx.Err().Error()}
	}
	resp, ok := f.replies[req.ModelID]
	if !ok {
		return cloud.Response{}, &cloud.ProviderError{Provider: f.name, Model: req.ModelID, Status: 500, Err: cloud.ErrUpstream}
	}
	return resp, nil
}

func (f *fakeProvider) Calls() []cloud.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]cloud.Request(nil), f.calls...)
}

type harness struct {
	openai    *fakeProvider
	anthropic *fakeProvider
	store     *telemetry.MemoryStore
	resolver  *Resolver
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		openai:    &fakeProvider{name: cloud.ProviderOpenAI, replies: map[string]cloud.Response{}, block: map[string]bool{}},
		anthropic: &fakeProvider{name: cloud.ProviderAnthropic, replies: map[string]cloud.Response{}, block: map[string]bool{}},
		store:     telemetry.NewMemoryStore(),
	}
	tracker := telemetry.NewTracker(h.store, nil)
	h.resolver = New(router.New(router.DefaultModels()), cloud.NewRegistry(h.openai, h.anthropic), tracker, opts...)
	return h
}

func (h *harness) totalCalls() int {
	return len(h.openai.Calls()) + len(h.anthropic.Calls())
}

// =============================================================================
// PRIMARY PATH
// =============================================================================

func TestResolve_MediumPrimarySucceeds(t *testing.T) {
	h := newHarness(t)
	h.openai.replies[router.DefaultTier1Model] = cloud.Response{Text: "## Solution\nThe limit is 1.", InputTokens: 1000, OutputTokens: 500}

	res := h.resolver.Resolve(context.Background(), Question{Text: mediumQuestion, RequestID: "req-1"}, "student-1")

	assert.Equal(t, router.LevelMedium, res.ComplexityLevel)
	assert.Equal(t, 3, res.DifficultyScore)
	assert.Equal(t, "Mathematics", res.Topic.Subject)
	assert.Equal(t, "Calculus", res.Topic.Topic)
	assert.Equal(t, res.Topic.Confidence, res.TopicConfidenceProxy)
	assert.Equal(t, router.DefaultTier1Model, res.ModelUsed)
	assert.False(t, res.Fallback)
	assert.False(t, res.Offline)
	require.NotNil(t, res.TokenUsage)
	assert.Equal(t, TokenUsage{InputTokens: 1000, OutputTokens: 500}, *res.TokenUsage)

	calls := h.openai.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, SystemPrompt, calls[0].SystemPrompt)
	assert.Equal(t, mediumQuestion, calls[0].UserContent)
	assert.Equal(t, 2048, calls[0].MaxTokens)
	assert.InDelta(t, DefaultTemperature, calls[0].Temperature, 1e-9)

	recs := h.store.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, "student-1", recs[0].ActorID)
	assert.Equal(t, "req-1", recs[0].RequestID)
	assert.Equal(t, telemetry.ServiceChat, recs[0].Service)
	assert.Equal(t, router.DefaultTier1Model, recs[0].ModelID)
	assert.Equal(t, cloud.ProviderOpenAI, recs[0].Provider)
	assert.Equal(t, 1500, recs[0].TotalTokens)
	assert.Equal(t, "0.000450", recs[0].CostUSD.StringFixed(telemetry.CostPlaces))
}

func TestResolve_ExpertRoutesToTopTier(t *testing.T) {
	h := newHarness(t)
	h.anthropic.replies[router.DefaultTier3Model] = cloud.Response{Text: "answer", InputTokens: 10, OutputTokens: 20}

	res := h.resolver.Resolve(context.Background(), Question{Text: expertQuestion}, "student-2")

	assert.Equal(t, router.LevelExpert, res.ComplexityLevel)
	assert.Equal(t, router.DefaultTier3Model, res.ModelUsed)
	assert.NotEmpty(t, res.RequestID, "request id should be generated")
	assert.Len(t, h.anthropic.Calls(), 1)
	assert.Empty(t, h.openai.Calls())
}

func TestResolve_EmptyCompletionText(t *testing.T) {
	h := newHarness(t)
	h.openai.replies[router.DefaultTier1Model] = cloud.Response{InputTokens: 5}

	res := h.resolver.Resolve(context.Background(), Question{Text: "What is a cell?"}, "a")

	assert.Equal(t, EmptyCompletionText, res.ResponseText)
	assert.False(t, res.Offline)
	assert.Len(t, h.store.Records(), 1)
}

// =============================================================================
// FALLBACK
// =============================================================================

func TestResolve_FallbackAfterPrimaryFailure(t *testing.T) {
	h := newHarness(t)
	h.openai.replies[router.DefaultTier2Model] = cloud.Response{Text: "from tier 2", InputTokens: 100, OutputTokens: 50}

	res := h.resolver.Resolve(context.Background(), Question{Text: mediumQuestion}, "a")

	assert.Equal(t, 2, h.totalCalls())
	assert.True(t, res.Fallback)
	assert.False(t, res.Offline)
	assert.Equal(t, router.DefaultTier2Model, res.ModelUsed)
	assert.Equal(t, "from tier 2", res.ResponseText)
	assert.Equal(t, router.LevelMedium, res.ComplexityLevel, "level reports the assessment, not the fallback")

	recs := h.store.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, router.DefaultTier2Model, recs[0].ModelID)
}

func TestResolve_BothAttemptsFailGivesOfflineAnswer(t *testing.T) {
	h := newHarness(t)

	res := h.resolver.Resolve(context.Background(), Question{Text: mediumQuestion}, "a")

	assert.Equal(t, 2, h.totalCalls(), "at most two provider attempts")
	assert.True(t, res.Offline)
	assert.Equal(t, OfflineModel, res.ModelUsed)
	assert.Nil(t, res.TokenUsage)
	assert.Contains(t, res.ResponseText, "**Subject**: Mathematics")
	assert.Contains(t, res.ResponseText, "**Topic**: Calculus")
	assert.Empty(t, h.store.Records(), "no usage for offline answers")
}

func TestResolve_ExpertFailureHasNoFallback(t *testing.T) {
	h := newHarness(t)

	res := h.resolver.Resolve(context.Background(), Question{Text: expertQuestion}, "a")

	assert.Equal(t, 1, h.totalCalls())
	assert.True(t, res.Offline)
	assert.False(t, res.Fallback)
}

func TestResolve_TimeoutFallsBack(t *testing.T) {
	h := newHarness(t, WithCallTimeout(20*time.Millisecond))
	h.openai.block[router.DefaultTier1Model] = true
	h.openai.replies[router.DefaultTier2Model] = cloud.Response{Text: "ok"}

	res := h.resolver.Resolve(context.Background(), Question{Text: mediumQuestion}, "a")

	assert.Equal(t, router.DefaultTier2Model, res.ModelUsed)
	assert.True(t, res.Fallback)
}

type partialRegistry struct{ p cloud.Provider }

func (r partialRegistry) Get(name string) (cloud.Provider, error) {
	if name == r.p.Name() {
		return r.p, nil
	}
	return nil, cloud.ErrUnknownProvider
}

func TestResolve_MissingProviderCountsAsFailure(t *testing.T) {
	openai := &fakeProvider{name: cloud.ProviderOpenAI, replies: map[string]cloud.Response{}}
	r := New(router.New(router.DefaultModels()), partialRegistry{p: openai}, nil)

	// Hard routes to tier 2 on OpenAI, then falls back to tier 3 on
	// Anthropic, which is not registered.
	res := r.Resolve(context.Background(), Question{Text: "An olympiad problem from real analysis"}, "a")

	assert.Len(t, openai.Calls(), 1)
	assert.True(t, res.Offline)
}

// =============================================================================
// USAGE RECORDING
// =============================================================================

func TestResolve_UsageFailureIsSwallowed(t *testing.T) {
	h := newHarness(t)
	h.store.FailWith(errors.New("disk full"))
	h.openai.replies[router.DefaultTier1Model] = cloud.Response{Text: "fine", InputTokens: 1, OutputTokens: 1}

	res := h.resolver.Resolve(context.Background(), Question{Text: "What is a cell?"}, "a")

	assert.Equal(t, "fine", res.ResponseText)
	assert.False(t, res.Offline)
}

func TestResolve_CancelledCallerStillRecords(t *testing.T) {
	h := newHarness(t)
	h.openai.replies[router.DefaultTier1Model] = cloud.Response{Text: "fine"}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	res := h.resolver.Resolve(ctx, Question{Text: "What is a cell?"}, "a")
	require.False(t, res.Offline)
	assert.Len(t, h.store.Records(), 1)
}

// =============================================================================
// IMAGES AND FOLLOW-UPS
// =============================================================================

func TestResolve_ImageForcesVisionModel(t *testing.T) {
	h := newHarness(t)
	h.openai.replies[router.DefaultVisionModel] = cloud.Response{Text: "I see a triangle"}

	res := h.resolver.Resolve(context.Background(), Question{ImageBase64: "iVBORw0KGgo"}, "a")

	assert.Equal(t, router.DefaultVisionModel, res.ModelUsed)
	assert.Equal(t, topic.Classify(ImagePlaceholder), res.Topic)
	assert.Equal(t, router.Classify(ImagePlaceholder).Score, res.DifficultyScore)

	calls := h.openai.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "data:image/jpeg;base64,iVBORw0KGgo", calls[0].ImageURL)
	assert.True(t, strings.HasPrefix(calls[0].UserContent, "Please analyze this image."))
	assert.Contains(t, calls[0].UserContent, "The student has uploaded an image.")
}

func TestResolve_ImageFallbackKeepsImage(t *testing.T) {
	h := newHarness(t)
	h.openai.replies[router.DefaultTier1Model] = cloud.Response{Text: "cheap"}
	h.anthropic.replies[router.DefaultTier3Model] = cloud.Response{Text: "ok"}
	// The vision model has no reply so it fails. The question is easy, but
	// the fallback must not drop below the vision model's tier.

	res := h.resolver.Resolve(context.Background(), Question{Text: "What is this?", ImageBase64: "data:image/png;base64,AAA"}, "a")

	require.True(t, res.Fallback)
	assert.Equal(t, router.LevelEasy, res.ComplexityLevel)
	assert.Equal(t, router.DefaultTier3Model, res.ModelUsed)

	openaiCalls := h.openai.Calls()
	require.Len(t, openaiCalls, 1)
	assert.Equal(t, router.DefaultVisionModel, openaiCalls[0].ModelID)

	anthropicCalls := h.anthropic.Calls()
	require.Len(t, anthropicCalls, 1)
	assert.Equal(t, "data:image/png;base64,AAA", anthropicCalls[0].ImageURL)
}

func TestResolve_ImageFallbackNeverDowngrades(t *testing.T) {
	tests := []struct {
		name     string
		question string
		want     string // fallback model, "" for none
	}{
		{"easy", "What is this?", router.DefaultTier3Model},
		{"medium", mediumQuestion, router.DefaultTier3Model},
		{"expert", expertQuestion, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)

			res := h.resolver.Resolve(context.Background(), Question{Text: tt.question, ImageBase64: "AAA"}, "a")

			var models []string
			for _, c := range append(h.openai.Calls(), h.anthropic.Calls()...) {
				models = append(models, c.ModelID)
			}
			if models[0] != router.DefaultVisionModel {
				t.Errorf("primary = %q, want %q", models[0], router.DefaultVisionModel)
			}
			if tt.want == "" {
				if len(models) != 1 {
					t.Errorf("calls = %v, want vision model only", models)
				}
			} else if len(models) != 2 || models[1] != tt.want {
				t.Errorf("calls = %v, want fallback %q", models, tt.want)
			}
			if !res.Offline {
				t.Errorf("Offline = false, want true when every attempt fails")
			}
		})
	}
}

func TestResolve_FollowUpEmbedsPriorQuestion(t *testing.T) {
	h := newHarness(t)
	h.openai.replies[router.DefaultTier1Model] = cloud.Response{Text: "ok"}
	h.openai.replies[router.DefaultTier2Model] = cloud.Response{Text: "ok"}

	h.resolver.Resolve(context.Background(), Question{Text: "Why?", PriorContext: "What is a cell?"}, "a")

	calls := h.openai.Calls()
	require.NotEmpty(t, calls)
	assert.Equal(t,
		`Context: The student previously asked "What is a cell?" and received this answer. Now they have a follow-up question: Why?`,
		calls[0].UserContent)
}

func TestResolve_ConcurrentCalls(t *testing.T) {
	h := newHarness(t)
	h.openai.replies[router.DefaultTier1Model] = cloud.Response{Text: "ok", InputTokens: 1, OutputTokens: 1}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.resolver.Resolve(context.Background(), Question{Text: "What is a cell?"}, "a")
		}()
	}
	wg.Wait()

	assert.Len(t, h.store.Records(), 20)
}

func TestImageDataURL(t *testing.T) {
	assert.Equal(t, "data:image/jpeg;base64,abc", ImageDataURL("abc"))
	assert.Equal(t, "data:image/png;base64,abc", ImageDataURL("data:image/png;base64,abc"))
}
