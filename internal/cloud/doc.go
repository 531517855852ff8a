// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cloud adapts hosted completion APIs to one Provider interface.
//
// # Key Types
//
//   - Provider: Complete(ctx, Request) -> Response, one per vendor
//   - OpenAIClient: OpenAI-compatible chat completions (text and vision)
//   - AnthropicClient: Anthropic messages API
//   - Breaker: Circuit breaker wrapper around any Provider
//   - ProviderError: Uniform error carrying provider, model and HTTP status
//
// # Usage
//
//	reg := cloud.NewRegistry()
//	reg.Register(cloud.NewBreaker(cloud.NewOpenAIClient(key), cloud.BreakerSettings{}, logger))
//	p, err := reg.Get("openai")
//	resp, err := p.Complete(ctx, cloud.Request{ModelID: "gpt-4o-mini", UserContent: q, MaxTokens: 2048})
//
// # Errors
//
// Every adapter failure is a *ProviderError wrapping one of the sentinel
// errors, so callers can use errors.Is without knowing which vendor failed.
// API keys are never logged.
package cloud
