// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server exposes the doubt-resolution pipeline over HTTP.
//
// Endpoints:
//   - POST /v1/doubts        - Resolve a question (rate limited per actor)
//   - POST /v1/classify      - Complexity, topic and routing without a provider call
//   - POST /v1/usage/speech  - Record speech-to-text or text-to-speech usage
//   - GET  /v1/usage         - Most recent usage records
//   - GET  /health           - Health check
//   - GET  /stats            - Cost tracker snapshot
//   - GET  /metrics          - Prometheus metrics
//
// The caller identity comes from the X-Actor-ID header. Authenticating that
// header is left to the fronting gateway.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/jeranaias/doubtrun/internal/config"
	"github.com/jeranaias/doubtrun/internal/ratelimit"
	"github.com/jeranaias/doubtrun/internal/resolve"
	"github.com/jeranaias/doubtrun/internal/router"
	"github.com/jeranaias/doubtrun/internal/telemetry"
)

// ============================================================================
// CONSTANTS
// ============================================================================

const (
	// ActorHeader identifies the student a request is made for.
	ActorHeader = "X-Actor-ID"

	// MaxQuestionLength bounds question text in characters.
	MaxQuestionLength = 20000

	// DefaultRecentLimit is used by GET /v1/usage without ?limit.
	DefaultRecentLimit = 50

	// MaxRecentLimit caps GET /v1/usage.
	MaxRecentLimit = 500

	defaultMaxBodyBytes = 10 << 20
)

// ============================================================================
// DEPENDENCIES
// ============================================================================

// Resolver answers questions. *resolve.Resolver implements it.
type Resolver interface {
	Resolve(ctx context.Context, q resolve.Question, actorID string) resolve.Result
}

// UsageTracker records and reports usage. *telemetry.Tracker implements it.
type UsageTracker interface {
	RecordUsage(ctx context.Context, rec telemetry.UsageRecord) error
	Snapshot() telemetry.Snapshot
	Recent(ctx context.Context, limit int) ([]telemetry.UsageRecord, error)
}

// Deps are the collaborators the handlers call.
type Deps struct {
	Resolver Resolver
	Router   *router.Router
	Tracker  UsageTracker
	// Limiter enforces the per-actor doubt quota.
	Limiter ratelimit.Backend
	Logger  *zap.Logger
	Version string
}

// quota is the per-actor doubt allowance.
type quota struct {
	limit  int
	window time.Duration
}

// ============================================================================
// SERVER
// ============================================================================

// Server is the HTTP API server.
type Server struct {
	cfg     config.ServerConfig
	deps    Deps
	logger  *zap.Logger
	mux     *http.ServeMux
	handler http.Handler
	ip      *IPRateLimiter
	started time.Time

	mu     sync.RWMutex
	quota  quota
	server *http.Server
}

// New builds the server and its middleware chain.
func New(cfg config.ServerConfig, limits config.RateLimitConfig, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Limiter == nil {
		deps.Limiter = ratelimit.New()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}

	s := &Server{
		cfg:     cfg,
		deps:    deps,
		logger:  deps.Logger,
		mux:     http.NewServeMux(),
		ip:      NewIPRateLimiter(limits.IPRequestsPerMin, limits.IPBurst),
		started: time.Now(),
		quota:   quota{limit: limits.DoubtLimit, window: limits.DoubtWindow()},
	}
	s.setupRoutes()

	middlewares := []func(http.Handler) http.Handler{
		RecoveryMiddleware(s.logger),
		RequestIDMiddleware(),
		LoggingMiddleware(s.logger),
		SecurityHeadersMiddleware(),
	}
	if len(cfg.CORSOrigins) > 0 {
		middlewares = append(middlewares, CORSMiddleware(DefaultCORSConfig(cfg.CORSOrigins)))
	}
	middlewares = append(middlewares, IPRateLimitMiddleware(s.ip, s.logger))
	s.handler = Chain(middlewares...)(s.mux)

	return s
}

// ============================================================================
// ROUTES
// ============================================================================

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("POST /v1/doubts", s.handleDoubt)
	s.mux.HandleFunc("POST /v1/classify", s.handleClassify)
	s.mux.HandleFunc("POST /v1/usage/speech", s.handleSpeechUsage)
	s.mux.HandleFunc("GET /v1/usage", s.handleRecentUsage)

	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /stats", s.handleStats)
	s.mux.Handle("GET /metrics", promhttp.Handler())
}

// Handler returns the fully wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ApplyRateLimits swaps quota settings after a config reload.
func (s *Server) ApplyRateLimits(limits config.RateLimitConfig) {
	s.mu.Lock()
	s.quota = quota{limit: limits.DoubtLimit, window: limits.DoubtWindow()}
	s.mu.Unlock()
	s.ip.SetRate(limits.IPRequestsPerMin, limits.IPBurst)
}

func (s *Server) currentQuota() quota {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.quota
}

// ============================================================================
// SERVER LIFECYCLE
// ============================================================================

// ListenAndServe blocks until the server stops. It returns nil after a
// graceful Shutdown.
func (s *Server) ListenAndServe() error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       time.Duration(s.cfg.ReadTimeoutSecs) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.WriteTimeoutSecs) * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	s.mu.Lock()
	s.server = srv
	s.mu.Unlock()

	s.logger.Info("SERVER_START", zap.String("addr", s.cfg.Addr), zap.String("version", s.deps.Version))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.RLock()
	srv := s.server
	s.mu.RUnlock()
	if srv == nil {
		return nil
	}

	s.logger.Info("SERVER_SHUTDOWN")
	return srv.Shutdown(ctx)
}

// ============================================================================
// HELPERS
// ============================================================================

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ErrorBody is the JSON error envelope.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes one error.
type ErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    int    `json:"code"`
}

func writeError(w http.ResponseWriter, status int, errType, message string) {
	writeJSON(w, status, ErrorBody{Error: ErrorDetail{Message: message, Type: errType, Code: status}})
}
