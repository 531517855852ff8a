// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package resolve answers a question end to end: classify, route, call the
// provider, fall back once, record usage.
//
// Resolve never returns an error. Every failure degrades to the fallback
// tier or to a deterministic offline answer; only a rate-limit rejection,
// decided by the caller beforehand, yields no answer at all.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/jeranaias/doubtrun/internal/cloud"
	"github.com/jeranaias/doubtrun/internal/metrics"
	"github.com/jeranaias/doubtrun/internal/offline"
	"github.com/jeranaias/doubtrun/internal/router"
	"github.com/jeranaias/doubtrun/internal/telemetry"
	"github.com/jeranaias/doubtrun/internal/topic"
)

const (
	// DefaultCallTimeout bounds each provider attempt.
	DefaultCallTimeout = 60 * time.Second

	// DefaultTemperature is sent with every completion.
	DefaultTemperature = 0.3

	// OfflineModel is reported as ModelUsed for synthesised answers.
	OfflineModel = "offline"

	tracerName = "github.com/jeranaias/doubtrun/internal/resolve"
)

// ErrRoutingExhausted means every permitted attempt failed.
var ErrRoutingExhausted = errors.New("routing exhausted")

// =============================================================================
// TYPES
// =============================================================================

// Question is one submission. It is never modified.
type Question struct {
	Text string
	// ImageBase64 is raw base64 or a data: URL.
	ImageBase64 string
	// PriorContext is the previous question when this is a follow-up.
	PriorContext string
	// RequestID links usage records to the caller's record. Generated when empty.
	RequestID string
}

// TokenUsage is the provider-reported token count of the answering call.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Result is the answer plus everything learned while producing it.
type Result struct {
	RequestID       string       `json:"request_id"`
	ResponseText    string       `json:"response"`
	ModelUsed       string       `json:"model_used"`
	ComplexityLevel router.Level `json:"complexity_level"`
	DifficultyScore int          `json:"difficulty_score"`
	// TopicConfidenceProxy is keyword density from topic classification,
	// not a measure of answer quality.
	TopicConfidenceProxy float64              `json:"confidence_score"`
	Topic                topic.Classification `json:"topic_classification"`
	TokenUsage           *TokenUsage          `json:"token_usage,omitempty"`
	Fallback             bool                 `json:"fallback"`
	Offline              bool                 `json:"offline"`
}

// Providers looks up an adapter by provider name. *cloud.Registry
// implements it.
type Providers interface {
	Get(name string) (cloud.Provider, error)
}

// Recorder persists usage. *telemetry.Tracker implements it.
type Recorder interface {
	RecordUsage(ctx context.Context, rec telemetry.UsageRecord) error
}

// =============================================================================
// RESOLVER
// =============================================================================

// Resolver runs the pipeline. Safe for concurrent use.
type Resolver struct {
	router       *router.Router
	providers    Providers
	recorder     Recorder
	logger       *zap.Logger
	tracer       trace.Tracer
	callTimeout  time.Duration
	temperature  float64
	systemPrompt string
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithCallTimeout sets the per-attempt deadline. Zero or negative disables it.
func WithCallTimeout(d time.Duration) Option {
	return func(r *Resolver) { r.callTimeout = d }
}

// WithTemperature overrides DefaultTemperature.
func WithTemperature(t float64) Option {
	return func(r *Resolver) { r.temperature = t }
}

// WithSystemPrompt overrides SystemPrompt.
func WithSystemPrompt(p string) Option {
	return func(r *Resolver) { r.systemPrompt = p }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// New builds a Resolver. A nil recorder discards usage.
func New(rt *router.Router, providers Providers, recorder Recorder, opts ...Option) *Resolver {
	r := &Resolver{
		router:       rt,
		providers:    providers,
		recorder:     recorder,
		logger:       zap.NewNop(),
		tracer:       otel.Tracer(tracerName),
		callTimeout:  DefaultCallTimeout,
		temperature:  DefaultTemperature,
		systemPrompt: SystemPrompt,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// attemptPlan is what one provider call needs.
type attemptPlan struct {
	model    router.ModelConfig
	prompt   string
	imageURL string
}

// Resolve answers q for actorID:
//  1. classify the text (ImagePlaceholder when only an image is sent)
//  2. route by level; images are forced onto the vision model
//  3. call the provider under a per-attempt deadline
//  4. on failure, retry once with NextFallback of the assessed level
//  5. if that fails too, or there is no fallback, return the offline answer
//
// Usage is recorded only for a successful call. Recording errors are
// logged and dropped.
func (r *Resolver) Resolve(ctx context.Context, q Question, actorID string) Result {
	requestID := q.RequestID
	if requestID == "" {
		requestID = uuid.NewString()
	}

	text := q.Text
	if q.PriorContext != "" {
		text = FollowUpText(q.PriorContext, q.Text)
	}
	classified := text
	if strings.TrimSpace(q.Text) == "" && q.PriorContext == "" {
		classified = ImagePlaceholder
	}

	assessment := router.Classify(classified)
	topicClass := topic.Classify(classified)

	ctx, span := r.tracer.Start(ctx, "resolve.Resolve", trace.WithAttributes(
		attribute.String("request_id", requestID),
		attribute.String("complexity.level", assessment.Level.String()),
		attribute.Int("complexity.score", assessment.Score),
		attribute.String("topic.subject", topicClass.Subject),
		attribute.Bool("has_image", q.ImageBase64 != ""),
	))
	defer span.End()

	result := Result{
		RequestID:            requestID,
		ComplexityLevel:      assessment.Level,
		DifficultyScore:      assessment.Score,
		TopicConfidenceProxy: topicClass.Confidence,
		Topic:                topicClass,
	}

	plan := attemptPlan{model: r.router.SelectModel(assessment.Level), prompt: text}
	if q.ImageBase64 != "" {
		plan.model = r.router.VisionModel()
		plan.prompt = imagePrompt(text)
		plan.imageURL = ImageDataURL(q.ImageBase64)
	}

	r.logger.Info("ROUTING",
		zap.String("request_id", requestID),
		zap.Stringer("level", assessment.Level),
		zap.Int("score", assessment.Score),
		zap.Strings("reasons", assessment.Reasons),
		zap.String("subject", topicClass.Subject),
		zap.String("topic", topicClass.Topic),
		zap.String("model", plan.model.ModelID),
	)

	resp, elapsed, err := r.attempt(ctx, plan)
	if err != nil {
		r.logger.Warn("PROVIDER_FAILED",
			zap.String("request_id", requestID),
			zap.String("provider", string(plan.model.Provider)),
			zap.String("model", plan.model.ModelID),
			zap.Error(err),
		)

		fallback, ok := r.router.NextFallback(r.fallbackLevel(assessment.Level, plan.model))
		if !ok {
			return r.offline(ctx, span, result, fmt.Errorf("%w: no fallback after %s: %w", ErrRoutingExhausted, plan.model.ModelID, err))
		}

		plan.model = fallback
		result.Fallback = true
		resp, elapsed, err = r.attempt(ctx, plan)
		if err != nil {
			r.logger.Warn("PROVIDER_FAILED",
				zap.String("request_id", requestID),
				zap.String("provider", string(plan.model.Provider)),
				zap.String("model", plan.model.ModelID),
				zap.Bool("fallback", true),
				zap.Error(err),
			)
			return r.offline(ctx, span, result, fmt.Errorf("%w: fallback %s: %w", ErrRoutingExhausted, plan.model.ModelID, err))
		}
	}

	if resp.Text == "" {
		resp.Text = EmptyCompletionText
	}
	result.ResponseText = resp.Text
	result.ModelUsed = plan.model.ModelID
	result.TokenUsage = &TokenUsage{InputTokens: resp.InputTokens, OutputTokens: resp.OutputTokens}

	r.record(ctx, telemetry.UsageRecord{
		ActorID:      actorID,
		RequestID:    requestID,
		Service:      telemetry.ServiceChat,
		ModelID:      plan.model.ModelID,
		Provider:     string(plan.model.Provider),
		InputTokens:  resp.InputTokens,
		OutputTokens: resp.OutputTokens,
		CostUSD:      telemetry.TokenCost(plan.model.ModelID, resp.InputTokens, resp.OutputTokens),
		DurationMs:   elapsed.Milliseconds(),
	})

	outcome := "primary"
	if result.Fallback {
		outcome = "fallback"
	}
	metrics.ResolutionsTotal.WithLabelValues(assessment.Level.String(), outcome).Inc()
	span.SetAttributes(attribute.String("model_used", result.ModelUsed), attribute.Bool("fallback", result.Fallback))
	return result
}

// fallbackLevel is the level whose successor serves the fallback. It is
// raised until its tier reaches the failed model's tier, so a vision
// override never falls back to a cheaper model than the one that failed.
func (r *Resolver) fallbackLevel(level router.Level, failed router.ModelConfig) router.Level {
	for r.router.SelectModel(level).Tier < failed.Tier {
		next, ok := router.NextLevel(level)
		if !ok {
			break
		}
		level = next
	}
	return level
}

// attempt makes one provider call under the per-attempt deadline.
func (r *Resolver) attempt(ctx context.Context, plan attemptPlan) (cloud.Response, time.Duration, error) {
	ctx, span := r.tracer.Start(ctx, "resolve.attempt", trace.WithAttributes(
		attribute.String("provider", string(plan.model.Provider)),
		attribute.String("model", plan.model.ModelID),
		attribute.Int("tier", int(plan.model.Tier)),
	))
	defer span.End()

	provider, err := r.providers.Get(string(plan.model.Provider))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "provider lookup")
		return cloud.Response{}, 0, err
	}

	if r.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.callTimeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := provider.Complete(ctx, cloud.Request{
		ModelID:      plan.model.ModelID,
		SystemPrompt: r.systemPrompt,
		UserContent:  plan.prompt,
		ImageURL:     plan.imageURL,
		MaxTokens:    plan.model.MaxOutputTokens,
		Temperature:  r.temperature,
	})
	elapsed := time.Since(start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "completion failed")
		return cloud.Response{}, elapsed, err
	}

	span.SetAttributes(
		attribute.Int("tokens.input", resp.InputTokens),
		attribute.Int("tokens.output", resp.OutputTokens),
	)
	return resp, elapsed, nil
}

// offline fills result with the synthesised answer. No usage is recorded.
func (r *Resolver) offline(ctx context.Context, span trace.Span, result Result, cause error) Result {
	r.logger.Error("ROUTING_EXHAUSTED",
		zap.String("request_id", result.RequestID),
		zap.String("subject", result.Topic.Subject),
		zap.String("topic", result.Topic.Topic),
		zap.Error(cause),
	)
	span.RecordError(cause)
	span.SetStatus(codes.Error, "offline response")

	result.ResponseText = offline.FallbackResponse(result.Topic)
	result.ModelUsed = OfflineModel
	result.Offline = true
	result.TokenUsage = nil

	metrics.ResolutionsTotal.WithLabelValues(result.ComplexityLevel.String(), "offline").Inc()
	return result
}

// record persists usage, detached from the request's cancellation so a
// client disconnect does not lose the accounting row.
func (r *Resolver) record(ctx context.Context, rec telemetry.UsageRecord) {
	if r.recorder == nil {
		return
	}
	if err := r.recorder.RecordUsage(context.WithoutCancel(ctx), rec); err != nil {
		r.logger.Warn("USAGE_RECORD_FAILED",
			zap.String("request_id", rec.RequestID),
			zap.String("model", rec.ModelID),
			zap.Error(err),
		)
	}
}
