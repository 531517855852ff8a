// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package offline implements offline mode and the canned answer returned
// when no provider can be reached.
//
// In offline mode only loopback providers (a local OpenAI-compatible
// gateway, for instance) may be called; every other provider fails fast
// with ErrCloudBlocked so the resolver degrades to FallbackResponse.
package offline

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"sync"

	"github.com/jeranaias/doubtrun/internal/cloud"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrCloudBlocked is returned when a remote provider is called in offline mode.
	ErrCloudBlocked = errors.New("cloud providers disabled in offline mode")

	// ErrInvalidURLScheme is returned for base URLs that are not http or https.
	ErrInvalidURLScheme = errors.New("only http and https schemes are allowed")
)

// =============================================================================
// MODE MANAGEMENT
// =============================================================================

var (
	offlineMode      bool
	offlineModeMutex sync.RWMutex
)

// SetOfflineMode enables or disables offline mode globally.
func SetOfflineMode(enabled bool) {
	offlineModeMutex.Lock()
	defer offlineModeMutex.Unlock()
	offlineMode = enabled
}

// IsOfflineMode returns true if offline mode is currently enabled.
func IsOfflineMode() bool {
	offlineModeMutex.RLock()
	defer offlineModeMutex.RUnlock()
	return offlineMode
}

// =============================================================================
// URL VALIDATION
// =============================================================================

// IsLocalhost reports whether host (optionally with port or brackets)
// is "localhost" or a loopback IP.
func IsLocalhost(host string) bool {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.ToLower(strings.Trim(host, "[]"))

	if host == "localhost" {
		return true
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback()
	}
	return false
}

// ValidateBaseURL checks a provider base URL. Outside offline mode any
// http(s) URL passes; in offline mode it must point at a loopback host.
func ValidateBaseURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL %q: %w", rawURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: %q", ErrInvalidURLScheme, u.Scheme)
	}
	if IsOfflineMode() && !IsLocalhost(u.Host) {
		return fmt.Errorf("%w: %s", ErrCloudBlocked, u.Host)
	}
	return nil
}

// =============================================================================
// PROVIDER GUARD
// =============================================================================

// Guard wraps a provider and refuses calls while offline mode is on,
// unless the provider's base URL is a loopback address.
type Guard struct {
	next    cloud.Provider
	baseURL string
}

// NewGuard wraps next, which sends requests to baseURL.
func NewGuard(next cloud.Provider, baseURL string) *Guard {
	return &Guard{next: next, baseURL: baseURL}
}

// Name implements cloud.Provider.
func (g *Guard) Name() string {
	return g.next.Name()
}

// Complete implements cloud.Provider.
func (g *Guard) Complete(ctx context.Context, req cloud.Request) (cloud.Response, error) {
	if err := ValidateBaseURL(g.baseURL); err != nil {
		return cloud.Response{}, &cloud.ProviderError{
			Provider: g.next.Name(),
			Model:    req.ModelID,
			Err:      err,
		}
	}
	return g.next.Complete(ctx, req)
}
