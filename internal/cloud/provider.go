// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Provider names, matching the routing table.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Request is one completion call.
type Request struct {
	ModelID      string
	SystemPrompt string
	UserContent  string
	// ImageURL is an http(s) or data: URL. Empty for text-only requests.
	ImageURL    string
	MaxTokens   int
	Temperature float64
}

// Response is the result of a successful completion.
type Response struct {
	Text         string `json:"text"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
}

// Provider is implemented by every vendor adapter.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req Request) (Response, error)
}

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrNotConfigured indicates the API key is not set.
	ErrNotConfigured = errors.New("provider not configured")

	// ErrAuthFailed indicates authentication failed (invalid or expired API key).
	ErrAuthFailed = errors.New("authentication failed")

	// ErrRateLimited indicates the provider throttled the request.
	ErrRateLimited = errors.New("rate limited")

	// ErrModelNotFound indicates the requested model does not exist.
	ErrModelNotFound = errors.New("model not found")

	// ErrInsufficientCredits indicates the account has no quota left.
	ErrInsufficientCredits = errors.New("insufficient credits")

	// ErrCircuitOpen indicates the provider's breaker is rejecting calls.
	ErrCircuitOpen = errors.New("circuit open")

	// ErrUpstream covers other non-2xx responses.
	ErrUpstream = errors.New("upstream error")

	// ErrTransport covers network failures and undecodable responses.
	ErrTransport = errors.New("transport error")

	// ErrUnknownProvider is returned by Registry.Get.
	ErrUnknownProvider = errors.New("unknown provider")
)

// ProviderError describes a failed call. Err is one of the sentinels above
// or a context error.
type ProviderError struct {
	Provider string
	Model    string
	Status   int
	Code     string
	Message  string
	Err      error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("%s %s: %v", e.Provider, e.Model, e.Err)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.Status)
	}
	if e.Code != "" {
		msg += " [" + e.Code + "]"
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// =============================================================================
// REGISTRY
// =============================================================================

// Registry maps provider names to adapters. Safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry creates a registry holding providers.
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider)}
	for _, p := range providers {
		r.Register(p)
	}
	return r
}

// Register adds or replaces the adapter for p.Name().
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	r.providers[p.Name()] = p
	r.mu.Unlock()
}

// Get returns the adapter for name.
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return p, nil
}

// Names returns the registered provider names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
