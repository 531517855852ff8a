// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package offline

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/doubtrun/internal/cloud"
	"github.com/jeranaias/doubtrun/internal/topic"
)

// =============================================================================
// MODE MANAGEMENT TESTS
// =============================================================================

func TestSetOfflineMode(t *testing.T) {
	original := IsOfflineMode()
	defer SetOfflineMode(original)

	SetOfflineMode(true)
	if !IsOfflineMode() {
		t.Error("IsOfflineMode should return true after SetOfflineMode(true)")
	}

	SetOfflineMode(false)
	if IsOfflineMode() {
		t.Error("IsOfflineMode should return false after SetOfflineMode(false)")
	}
}

// =============================================================================
// URL VALIDATION TESTS
// =============================================================================

func TestIsLocalhost(t *testing.T) {
	tests := []struct {
		host string
		want bool
	}{
		{"localhost", true},
		{"LOCALHOST:8080", true},
		{"127.0.0.1", true},
		{"127.1.2.3:11434", true},
		{"[::1]:8080", true},
		{"::1", true},
		{"api.openai.com", false},
		{"10.0.0.1", false},
		{"localhost.evil.com", false},
	}
	for _, tt := range tests {
		if got := IsLocalhost(tt.host); got != tt.want {
			t.Errorf("IsLocalhost(%q) = %v, want %v", tt.host, got, tt.want)
		}
	}
}

func TestValidateBaseURL(t *testing.T) {
	original := IsOfflineMode()
	defer SetOfflineMode(original)

	SetOfflineMode(false)
	assert.NoError(t, ValidateBaseURL("https://api.openai.com/v1"))
	assert.ErrorIs(t, ValidateBaseURL("file:///etc/passwd"), ErrInvalidURLScheme)

	SetOfflineMode(true)
	assert.ErrorIs(t, ValidateBaseURL("https://api.anthropic.com"), ErrCloudBlocked)
	assert.NoError(t, ValidateBaseURL("http://127.0.0.1:11434/v1"))
}

// =============================================================================
// GUARD TESTS
// =============================================================================

type countingProvider struct{ calls int }

func (p *countingProvider) Name() string { return "openai" }

func (p *countingProvider) Complete(context.Context, cloud.Request) (cloud.Response, error) {
	p.calls++
	return cloud.Response{Text: "answer"}, nil
}

func TestGuard(t *testing.T) {
	original := IsOfflineMode()
	defer SetOfflineMode(original)

	remote := &countingProvider{}
	local := &countingProvider{}
	remoteGuard := NewGuard(remote, cloud.DefaultOpenAIURL)
	localGuard := NewGuard(local, "http://localhost:11434/v1")

	SetOfflineMode(true)
	_, err := remoteGuard.Complete(context.Background(), cloud.Request{ModelID: "gpt-4o-mini"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCloudBlocked)
	assert.Zero(t, remote.calls)

	resp, err := localGuard.Complete(context.Background(), cloud.Request{})
	require.NoError(t, err)
	assert.Equal(t, "answer", resp.Text)

	SetOfflineMode(false)
	_, err = remoteGuard.Complete(context.Background(), cloud.Request{})
	require.NoError(t, err)
	assert.Equal(t, 1, remote.calls)
	assert.Equal(t, "openai", remoteGuard.Name())
}

// =============================================================================
// FALLBACK RESPONSE TESTS
// =============================================================================

func TestFallbackResponse(t *testing.T) {
	c := topic.Classification{Subject: "Mathematics", Topic: "Calculus"}
	got := FallbackResponse(c)

	assert.True(t, strings.HasPrefix(got, "## Solution"))
	assert.Contains(t, got, "- **Subject**: Mathematics")
	assert.Contains(t, got, "- **Topic**: Calculus")
	assert.Contains(t, got, "a Mathematics question related to Calculus")
	assert.Equal(t, got, FallbackResponse(c), "must be deterministic")
}
