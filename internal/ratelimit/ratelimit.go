// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ratelimit bounds request frequency per key with fixed windows.
//
// A window opens on the first request for a key and lasts for the given
// duration. Because windows are fixed rather than sliding, a client can
// burst up to 2x the limit across a window boundary.
//
// Two backends share the Backend interface:
//   - Limiter: in-process map, swept lazily
//   - RedisLimiter: shared counter for multi-process deployments
package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"
)

// DefaultCleanupInterval is the minimum gap between sweeps of expired windows.
const DefaultCleanupInterval = 60 * time.Second

// ErrRateLimited is returned by Decision.Err when a request was denied.
var ErrRateLimited = errors.New("rate limit exceeded")

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed   bool      `json:"allowed"`
	Remaining int       `json:"remaining"`
	Limit     int       `json:"limit"`
	ResetAt   time.Time `json:"reset_at"`
}

// Err returns ErrRateLimited when the request was denied.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return ErrRateLimited
}

// RetryAfter returns how long until the window resets, relative to now.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	if wait := d.ResetAt.Sub(now); wait > 0 {
		return wait
	}
	return 0
}

// Backend is implemented by every limiter.
type Backend interface {
	Check(ctx context.Context, key string, limit int, window time.Duration) (Decision, error)
}

// ============================================================================
// IN-MEMORY LIMITER
// ============================================================================

type window struct {
	count   int
	resetAt time.Time
}

// Limiter is an in-process fixed-window limiter. Safe for concurrent use.
type Limiter struct {
	mu              sync.Mutex
	windows         map[string]*window
	now             func() time.Time
	cleanupInterval time.Duration
	lastCleanup     time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// WithCleanupInterval sets how often expired windows may be swept.
func WithCleanupInterval(d time.Duration) Option {
	return func(l *Limiter) { l.cleanupInterval = d }
}

// New creates an empty Limiter.
func New(opts ...Option) *Limiter {
	l := &Limiter{
		windows:         make(map[string]*window),
		now:             time.Now,
		cleanupInterval: DefaultCleanupInterval,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.lastCleanup = l.now()
	return l
}

// Allow records a request for key and reports whether it fits in the
// current window:
//   - first use, or the window has expired: open a new window with count 1
//   - count already at limit: deny with 0 remaining
//   - otherwise: increment, remaining = limit - count
//
// A non-positive limit denies everything.
func (l *Limiter) Allow(key string, limit int, period time.Duration) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweepLocked(now)

	if limit <= 0 {
		return Decision{Allowed: false, Remaining: 0, Limit: limit, ResetAt: now.Add(period)}
	}

	w, ok := l.windows[key]
	if !ok || now.After(w.resetAt) {
		w = &window{count: 1, resetAt: now.Add(period)}
		l.windows[key] = w
		return Decision{Allowed: true, Remaining: limit - 1, Limit: limit, ResetAt: w.resetAt}
	}

	if w.count >= limit {
		return Decision{Allowed: false, Remaining: 0, Limit: limit, ResetAt: w.resetAt}
	}

	w.count++
	return Decision{Allowed: true, Remaining: limit - w.count, Limit: limit, ResetAt: w.resetAt}
}

// Check implements Backend.
func (l *Limiter) Check(_ context.Context, key string, limit int, period time.Duration) (Decision, error) {
	return l.Allow(key, limit, period), nil
}

// sweepLocked drops expired windows, at most once per cleanup interval.
func (l *Limiter) sweepLocked(now time.Time) {
	if now.Sub(l.lastCleanup) < l.cleanupInterval {
		return
	}
	l.lastCleanup = now
	for key, w := range l.windows {
		if now.After(w.resetAt) {
			delete(l.windows, key)
		}
	}
}

// Len returns the number of tracked windows, including expired ones not yet
// swept.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// Reset forgets every window.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.windows = make(map[string]*window)
	l.lastCleanup = l.now()
}
