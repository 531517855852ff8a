// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/doubtrun/internal/metrics"
	"github.com/jeranaias/doubtrun/internal/offline"
	"github.com/jeranaias/doubtrun/internal/ratelimit"
	"github.com/jeranaias/doubtrun/internal/resolve"
	"github.com/jeranaias/doubtrun/internal/router"
	"github.com/jeranaias/doubtrun/internal/telemetry"
	"github.com/jeranaias/doubtrun/internal/topic"
	"github.com/jeranaias/doubtrun/internal/util"
)

// ============================================================================
// REQUEST DECODING
// ============================================================================

// decodeBody reads a bounded JSON body into v and writes the error
// response itself when it fails.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "invalid_request_error",
				fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid_request_error", "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func actorFrom(w http.ResponseWriter, r *http.Request) (string, bool) {
	actor := strings.TrimSpace(r.Header.Get(ActorHeader))
	if actor == "" {
		writeError(w, http.StatusBadRequest, "invalid_request_error", ActorHeader+" header is required")
		return "", false
	}
	return actor, true
}

// ============================================================================
// DOUBTS
// ============================================================================

// DoubtRequest is the body of POST /v1/doubts.
type DoubtRequest struct {
	Question    string `json:"question"`
	ImageBase64 string `json:"image_base64,omitempty"`
	// PriorQuestion makes this a follow-up to an earlier question.
	PriorQuestion string `json:"prior_question,omitempty"`
}

// DoubtResponse is the resolution plus wall-clock time.
type DoubtResponse struct {
	resolve.Result
	ResponseTimeMs int64 `json:"response_time_ms"`
}

// handleDoubt handles POST /v1/doubts. The quota is checked before the body
// is read so denied callers cost nothing.
func (s *Server) handleDoubt(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	q := s.currentQuota()
	decision, err := s.deps.Limiter.Check(r.Context(), "doubt:"+actor, q.limit, q.window)
	if err != nil {
		// Backend outage: serve the request rather than lock every student out.
		s.logger.Error("RATE_LIMIT_BACKEND_ERROR", zap.String("actor", actor), zap.Error(err))
	} else {
		setRateLimitHeaders(w, decision)
		if !decision.Allowed {
			metrics.RateLimitedTotal.WithLabelValues("doubt").Inc()
			s.logger.Warn("RATE_LIMIT_EXCEEDED", zap.String("scope", "doubt"), zap.String("actor", actor))
			retry := int(math.Ceil(decision.RetryAfter(time.Now()).Seconds()))
			w.Header().Set("Retry-After", strconv.Itoa(retry))
			writeError(w, http.StatusTooManyRequests, "rate_limit_error", "Too many requests. Please wait a moment.")
			return
		}
	}

	var req DoubtRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Question) == "" && req.ImageBase64 == "" {
		writeError(w, http.StatusBadRequest, "invalid_request_error", "Question is required")
		return
	}
	if util.RuneLen(req.Question) > MaxQuestionLength {
		writeError(w, http.StatusBadRequest, "invalid_request_error",
			fmt.Sprintf("question exceeds %d characters", MaxQuestionLength))
		return
	}

	start := time.Now()
	result := s.deps.Resolver.Resolve(r.Context(), resolve.Question{
		Text:         req.Question,
		ImageBase64:  req.ImageBase64,
		PriorContext: req.PriorQuestion,
		RequestID:    RequestIDFrom(r.Context()),
	}, actor)

	s.logger.Info("DOUBT_RESOLVED",
		zap.String("request_id", result.RequestID),
		zap.String("actor", actor),
		zap.String("question", util.TruncateRunes(req.Question, 100)),
		zap.String("model_used", result.ModelUsed),
		zap.Bool("fallback", result.Fallback),
		zap.Bool("offline", result.Offline),
	)

	writeJSON(w, http.StatusCreated, DoubtResponse{
		Result:         result,
		ResponseTimeMs: time.Since(start).Milliseconds(),
	})
}

func setRateLimitHeaders(w http.ResponseWriter, d ratelimit.Decision) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	if !d.ResetAt.IsZero() {
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
	}
}

// ============================================================================
// CLASSIFY
// ============================================================================

// ClassifyRequest is the body of POST /v1/classify.
type ClassifyRequest struct {
	Question string `json:"question"`
}

// ClassifyResponse shows how a question would be routed.
type ClassifyResponse struct {
	Assessment router.Assessment    `json:"assessment"`
	Topic      topic.Classification `json:"topic"`
	Model      router.ModelConfig   `json:"model"`
	Fallback   *router.ModelConfig  `json:"fallback,omitempty"`
}

func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	var req ClassifyRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request_error", "Question is required")
		return
	}

	decision := s.deps.Router.Route(req.Question)
	resp := ClassifyResponse{
		Assessment: decision.Assessment,
		Topic:      topic.Classify(req.Question),
		Model:      decision.Model,
	}
	if next, ok := s.deps.Router.NextFallback(decision.Assessment.Level); ok {
		resp.Fallback = &next
	}
	writeJSON(w, http.StatusOK, resp)
}

// ============================================================================
// USAGE
// ============================================================================

// SpeechUsageRequest is the body of POST /v1/usage/speech.
type SpeechUsageRequest struct {
	// Kind is "stt" or "tts".
	Kind      string `json:"kind"`
	SizeBytes int64  `json:"size_bytes,omitempty"`
	Text      string `json:"text,omitempty"`
	HD        bool   `json:"hd,omitempty"`
}

// SpeechUsageResponse echoes the stored record.
type SpeechUsageResponse struct {
	Record telemetry.UsageRecord `json:"record"`
	// BilledText is the cleaned text a tts charge was computed on.
	BilledText string `json:"billed_text,omitempty"`
}

func (s *Server) handleSpeechUsage(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req SpeechUsageRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	var resp SpeechUsageResponse
	switch req.Kind {
	case "stt":
		if req.SizeBytes < 0 {
			writeError(w, http.StatusBadRequest, "invalid_request_error", "size_bytes must not be negative")
			return
		}
		resp.Record = telemetry.SpeechToTextUsage(actor, req.SizeBytes)
	case "tts":
		if strings.TrimSpace(req.Text) == "" {
			writeError(w, http.StatusBadRequest, "invalid_request_error", "text is required for tts")
			return
		}
		resp.Record, resp.BilledText = telemetry.TextToSpeechUsage(actor, req.Text, req.HD)
	default:
		writeError(w, http.StatusBadRequest, "invalid_request_error", `kind must be "stt" or "tts"`)
		return
	}
	resp.Record.RequestID = RequestIDFrom(r.Context())

	if err := s.deps.Tracker.RecordUsage(r.Context(), resp.Record); err != nil {
		s.logger.Error("USAGE_RECORD_FAILED", zap.String("service", resp.Record.Service), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "server_error", "failed to record usage")
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleRecentUsage(w http.ResponseWriter, r *http.Request) {
	limit := DefaultRecentLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid_request_error", "limit must be a positive integer")
			return
		}
		limit = min(n, MaxRecentLimit)
	}

	records, err := s.deps.Tracker.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusNotImplemented, "server_error", err.Error())
		return
	}
	if records == nil {
		records = []telemetry.UsageRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"records": records})
}

// ============================================================================
// HEALTH AND STATS
// ============================================================================

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status        string               `json:"status"`
	Version       string               `json:"version"`
	OfflineMode   bool                 `json:"offline_mode"`
	UptimeSeconds int64                `json:"uptime_seconds"`
	Models        []router.ModelConfig `json:"models"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:        "ok",
		Version:       s.deps.Version,
		OfflineMode:   offline.IsOfflineMode(),
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
		Models:        s.deps.Router.Table(),
	})
}

// StatsResponse is the tracker snapshot plus uptime.
type StatsResponse struct {
	telemetry.Snapshot
	UptimeSeconds int64 `json:"uptime_seconds"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatsResponse{
		Snapshot:      s.deps.Tracker.Snapshot(),
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
	})
}
