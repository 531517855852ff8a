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

// DefaultOpenAIURL is the base URL for the OpenAI API.
const DefaultOpenAIURL = "https://api.openai.com/v1"

// OpenAIClient talks to any OpenAI-compatible chat completions endpoint.
type OpenAIClient struct {
	transport
}

// NewOpenAIClient creates a client for apiKey against DefaultOpenAIURL.
func NewOpenAIClient(apiKey string) *OpenAIClient {
	return &OpenAIClient{transport: newTransport(ProviderOpenAI, apiKey, DefaultOpenAIURL)}
}

// WithBaseURL sets a custom API base URL (proxies, compatible gateways, tests).
func (c *OpenAIClient) WithBaseURL(url string) *OpenAIClient {
	c.baseURL = strings.TrimSuffix(url, "/")
	return c
}

// WithTimeout sets a dedicated HTTP client with the given timeout.
func (c *OpenAIClient) WithTimeout(timeout time.Duration) *OpenAIClient {
	c.httpClient = &http.Client{Transport: sharedHTTPClient.Transport, Timeout: timeout}
	return c
}

// WithMaxAttempts sets how many times a retryable failure is attempted.
func (c *OpenAIClient) WithMaxAttempts(n int) *OpenAIClient {
	c.maxAttempts = n
	return c
}

// WithLogger sets the logger.
func (c *OpenAIClient) WithLogger(logger *zap.Logger) *OpenAIClient {
	if logger != nil {
		c.logger = logger
	}
	return c
}

// IsConfigured reports whether an API key is set.
func (c *OpenAIClient) IsConfigured() bool {
	return c.apiKey != ""
}

// Name implements Provider.
func (c *OpenAIClient) Name() string {
	return ProviderOpenAI
}

// =============================================================================
// WIRE TYPES
// =============================================================================

type openAIMessage struct {
	Role string `json:"role"`
	// Content is a string, or a list of parts for vision requests.
	Content any `json:"content"`
}

type openAIPart struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *openAIImageURL `json:"image_url,omitempty"`
}

type openAIImageURL struct {
	URL string `json:"url"`
}

type openAIChatRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float64         `json:"temperature"`
}

type openAIChatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// =============================================================================
// COMPLETE
// =============================================================================

// Complete implements Provider. An ImageURL turns the user message into a
// text part plus an image part.
func (c *OpenAIClient) Complete(ctx context.Context, req Request) (Response, error) {
	messages := make([]openAIMessage, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, openAIMessage{Role: "system", Content: req.SystemPrompt})
	}

	var user any = req.UserContent
	if req.ImageURL != "" {
		user = []openAIPart{
			{Type: "text", Text: req.UserContent},
			{Type: "image_url", ImageURL: &openAIImageURL{URL: req.ImageURL}},
		}
	}
	messages = append(messages, openAIMessage{Role: "user", Content: user})

	body := openAIChatRequest{
		Model:       req.ModelID,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}

	var out openAIChatResponse
	err := c.post(ctx, "/chat/completions", req.ModelID, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+c.apiKey)
	}, body, &out)
	if err != nil {
		return Response{}, err
	}

	resp := Response{
		InputTokens:  out.Usage.PromptTokens,
		OutputTokens: out.Usage.CompletionTokens,
	}
	if len(out.Choices) > 0 {
		resp.Text = out.Choices[0].Message.Content
	}
	return resp, nil
}
