// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/doubtrun/internal/metrics"
)

const (
	// DefaultTimeout bounds one HTTP exchange.
	DefaultTimeout = 60 * time.Second

	// DefaultMaxAttempts is one: retries across tiers belong to the caller.
	DefaultMaxAttempts = 1

	retryBaseDelay = 500 * time.Millisecond
	retryMaxDelay  = 10 * time.Second

	// MaxResponseSize caps response bodies read into memory.
	MaxResponseSize = 10 * 1024 * 1024

	userAgent = "doubtrun/1.0"
)

// sharedHTTPClient pools connections across every adapter.
var sharedHTTPClient = &http.Client{
	Transport: &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	},
	Timeout: DefaultTimeout,
}

// apiErrorResponse covers both the OpenAI and Anthropic error envelopes.
type apiErrorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// transport is the HTTP plumbing shared by the vendor adapters.
type transport struct {
	provider    string
	apiKey      string
	baseURL     string
	httpClient  *http.Client
	maxAttempts int
	logger      *zap.Logger
}

func newTransport(provider, apiKey, baseURL string) transport {
	return transport{
		provider:    provider,
		apiKey:      strings.TrimSpace(apiKey),
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		httpClient:  sharedHTTPClient,
		maxAttempts: DefaultMaxAttempts,
		logger:      zap.NewNop(),
	}
}

// keyFingerprint identifies the key in logs without revealing it.
func (t *transport) keyFingerprint() string {
	if t.apiKey == "" {
		return "none"
	}
	h := sha256.Sum256([]byte(t.apiKey))
	return hex.EncodeToString(h[:4])
}

func (t *transport) fail(model string, status int, err error) *ProviderError {
	return &ProviderError{Provider: t.provider, Model: model, Status: status, Err: err}
}

// post sends body as JSON to path and decodes a 200 response into out.
// Retryable failures (429, 5xx, transport) are retried up to maxAttempts
// with exponential backoff.
func (t *transport) post(ctx context.Context, path, model string, setHeaders func(*http.Request), body, out any) error {
	if t.apiKey == "" {
		return t.fail(model, 0, ErrNotConfigured)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return t.fail(model, 0, fmt.Errorf("%w: marshal request: %v", ErrTransport, err))
	}

	var lastErr error
	for attempt := 0; attempt < max(t.maxAttempts, 1); attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return t.fail(model, 0, ctx.Err())
			case <-time.After(calculateBackoff(attempt)):
			}
		}

		lastErr = t.do(ctx, path, model, setHeaders, payload, out)
		if lastErr == nil || !isRetryable(lastErr) {
			return lastErr
		}
		t.logger.Warn("PROVIDER_RETRY",
			zap.String("provider", t.provider),
			zap.String("model", model),
			zap.Int("attempt", attempt+1),
			zap.Error(lastErr),
		)
	}
	return lastErr
}

func (t *transport) do(ctx context.Context, path, model string, setHeaders func(*http.Request), payload []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return t.fail(model, 0, fmt.Errorf("%w: create request: %v", ErrTransport, err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	setHeaders(req)

	start := time.Now()
	resp, err := t.httpClient.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		metrics.ProviderCallDuration.WithLabelValues(t.provider, model, "error").Observe(elapsed.Seconds())
		if ctxErr := ctx.Err(); ctxErr != nil {
			return t.fail(model, 0, ctxErr)
		}
		return t.fail(model, 0, fmt.Errorf("%w: %v", ErrTransport, err))
	}
	defer resp.Body.Close()

	metrics.ProviderCallDuration.WithLabelValues(t.provider, model, strconv.Itoa(resp.StatusCode)).Observe(elapsed.Seconds())
	t.logger.Debug("PROVIDER_RESPONSE",
		zap.String("provider", t.provider),
		zap.String("model", model),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", elapsed),
		zap.String("key", t.keyFingerprint()),
	)

	data, err := readResponse(resp)
	if err != nil {
		return t.fail(model, resp.StatusCode, fmt.Errorf("%w: %v", ErrTransport, err))
	}

	if resp.StatusCode != http.StatusOK {
		return t.errorFromResponse(model, resp.StatusCode, data)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return t.fail(model, resp.StatusCode, fmt.Errorf("%w: parse response: %v", ErrTransport, err))
	}
	return nil
}

// readResponse reads at most MaxResponseSize bytes.
func readResponse(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(body)) > MaxResponseSize {
		return nil, fmt.Errorf("response exceeded maximum size of %d bytes", MaxResponseSize)
	}
	return body, nil
}

// errorFromResponse maps a non-200 status to a ProviderError.
func (t *transport) errorFromResponse(model string, status int, body []byte) error {
	pe := t.fail(model, status, ErrUpstream)

	var apiErr apiErrorResponse
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		pe.Message = apiErr.Error.Message
		pe.Code = apiErr.Error.Code
		if pe.Code == "" {
			pe.Code = apiErr.Error.Type
		}
	} else if len(body) > 0 {
		pe.Message = strings.TrimSpace(string(body))
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		pe.Err = ErrAuthFailed
	case status == http.StatusPaymentRequired, pe.Code == "insufficient_quota":
		pe.Err = ErrInsufficientCredits
	case status == http.StatusNotFound, pe.Code == "model_not_found":
		pe.Err = ErrModelNotFound
	case status == http.StatusTooManyRequests:
		pe.Err = ErrRateLimited
	}
	return pe
}

// isRetryable reports whether another attempt could succeed.
func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrTransport) {
		return true
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Status >= 500 && pe.Status < 600
	}
	return false
}

// calculateBackoff returns the exponential backoff delay for attempt.
func calculateBackoff(attempt int) time.Duration {
	delay := retryBaseDelay * time.Duration(1<<uint(attempt))
	if delay > retryMaxDelay {
		delay = retryMaxDelay
	}
	return delay
}
