// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"context"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultAnthropicURL is the base URL for the Anthropic API.
	DefaultAnthropicURL = "https://api.anthropic.com"

	// AnthropicVersion is the API version header value.
	AnthropicVersion = "2023-06-01"

	// anthropicDefaultMaxTokens is used when a request leaves MaxTokens unset;
	// the messages API requires the field.
	anthropicDefaultMaxTokens = 4096
)

// AnthropicClient talks to the Anthropic messages API.
type AnthropicClient struct {
	transport
}

// NewAnthropicClient creates a client for apiKey against DefaultAnthropicURL.
func NewAnthropicClient(apiKey string) *AnthropicClient {
	return &AnthropicClient{transport: newTransport(ProviderAnthropic, apiKey, DefaultAnthropicURL)}
}

// WithBaseURL sets a custom API base URL.
func (c *AnthropicClient) WithBaseURL(url string) *AnthropicClient {
	c.baseURL = strings.TrimSuffix(url, "/")
	return c
}

// WithTimeout sets a dedicated HTTP client with the given timeout.
func (c *AnthropicClient) WithTimeout(timeout time.Duration) *AnthropicClient {
	c.httpClient = &http.Client{Transport: sharedHTTPClient.Transport, Timeout: timeout}
	return c
}

// WithMaxAttempts sets how many times a retryable failure is attempted.
func (c *AnthropicClient) WithMaxAttempts(n int) *AnthropicClient {
	c.maxAttempts = n
	return c
}

// WithLogger sets the logger.
func (c *AnthropicClient) WithLogger(logger *zap.Logger) *AnthropicClient {
	if logger != nil {
		c.logger = logger
	}
	return c
}

// IsConfigured reports whether an API key is set.
func (c *AnthropicClient) IsConfigured() bool {
	return c.apiKey != ""
}

// Name implements Provider.
func (c *AnthropicClient) Name() string {
	return ProviderAnthropic
}

type anthropicBlock struct {
	Type   string                `json:"type"`
	Text   string                `json:"text,omitempty"`
	Source *anthropicImageSource `json:"source,omitempty"`
}

type anthropicImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"`
	URL       string `json:"url,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Temperature float64            `json:"temperature"`
}

type anthropicResponse struct {
	ID      string           `json:"id"`
	Model   string           `json:"model"`
	Content []anthropicBlock `json:"content"`
	Usage   struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Complete implements Provider. Only the first content block is returned,
// and only when it is text.
func (c *AnthropicClient) Complete(ctx context.Context, req Request) (Response, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = anthropicDefaultMaxTokens
	}

	var user any = req.UserContent
	if req.ImageURL != "" {
		user = []anthropicBlock{
			{Type: "image", Source: imageSource(req.ImageURL)},
			{Type: "text", Text: req.UserContent},
		}
	}

	body := anthropicRequest{
		Model:       req.ModelID,
		MaxTokens:   maxTokens,
		System:      req.SystemPrompt,
		Messages:    []anthropicMessage{{Role: "user", Content: user}},
		Temperature: req.Temperature,
	}

	var out anthropicResponse
	err := c.post(ctx, "/v1/messages", req.ModelID, func(r *http.Request) {
		r.Header.Set("x-api-key", c.apiKey)
		r.Header.Set("anthropic-version", AnthropicVersion)
	}, body, &out)
	if err != nil {
		return Response{}, err
	}

	resp := Response{
		InputTokens:  out.Usage.InputTokens,
		OutputTokens: out.Usage.OutputTokens,
	}
	if len(out.Content) > 0 && out.Content[0].Type == "text" {
		resp.Text = out.Content[0].Text
	}
	return resp, nil
}

// imageSource converts a data: URL into a base64 source block, and anything
// else into a url source block.
func imageSource(imageURL string) *anthropicImageSource {
	rest, ok := strings.CutPrefix(imageURL, "data:")
	if !ok {
		return &anthropicImageSource{Type: "url", URL: imageURL}
	}
	meta, data, found := strings.Cut(rest, ",")
	if !found {
		return &anthropicImageSource{Type: "url", URL: imageURL}
	}
	mediaType := strings.TrimSuffix(meta, ";base64")
	if mediaType == "" {
		mediaType = "image/jpeg"
	}
	return &anthropicImageSource{Type: "base64", MediaType: mediaType, Data: data}
}
