// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/jeranaias/doubtrun/internal/metrics"
)

// BreakerSettings configures a Breaker. Zero values take the defaults.
type BreakerSettings struct {
	// ConsecutiveFailures trips the breaker (default 5).
	ConsecutiveFailures uint32
	// OpenTimeout is how long the breaker stays open (default 30s).
	OpenTimeout time.Duration
	// HalfOpenRequests is how many probes pass while half-open (default 1).
	HalfOpenRequests uint32
}

// Breaker wraps a Provider in a circuit breaker so a failing vendor is
// skipped quickly instead of costing a full timeout per request.
type Breaker struct {
	next Provider
	cb   *gobreaker.CircuitBreaker
}

// NewBreaker wraps next.
func NewBreaker(next Provider, s BreakerSettings, logger *zap.Logger) *Breaker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if s.ConsecutiveFailures == 0 {
		s.ConsecutiveFailures = 5
	}
	if s.OpenTimeout == 0 {
		s.OpenTimeout = 30 * time.Second
	}
	if s.HalfOpenRequests == 0 {
		s.HalfOpenRequests = 1
	}

	name := next.Name()
	metrics.BreakerState.WithLabelValues(name).Set(float64(gobreaker.StateClosed))

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: s.HalfOpenRequests,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.ConsecutiveFailures
		},
		IsSuccessful: countsAsSuccess,
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.BreakerState.WithLabelValues(name).Set(float64(to))
			logger.Warn("BREAKER_STATE_CHANGE",
				zap.String("provider", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return &Breaker{next: next, cb: cb}
}

// countsAsSuccess keeps caller cancellations and client-side mistakes from
// tripping the breaker. Only outages count.
func countsAsSuccess(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrNotConfigured) || errors.Is(err, ErrModelNotFound) {
		return true
	}
	return false
}

// Name implements Provider.
func (b *Breaker) Name() string {
	return b.next.Name()
}

// State returns the breaker state.
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}

// Complete implements Provider.
func (b *Breaker) Complete(ctx context.Context, req Request) (Response, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.Complete(ctx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return Response{}, &ProviderError{
				Provider: b.next.Name(),
				Model:    req.ModelID,
				Err:      ErrCircuitOpen,
				Message:  err.Error(),
			}
		}
		return Response{}, err
	}
	return out.(Response), nil
}
