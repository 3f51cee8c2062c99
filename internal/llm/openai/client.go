//-------------------------------------------------------------------------
//
// pgEdge Venture Scout
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package openai provides an OpenAI API client.
package openai

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pgEdge/venture-scout/internal/llm"
)

const (
	defaultBaseURL        = "https://api.openai.com/v1"
	defaultEmbeddingModel = "text-embedding-3-small"
	defaultChatModel      = "gpt-4o-mini"
	defaultTimeout        = 120 * time.Second
)

// Client is an OpenAI API client. It is also used for OpenAI compatible
// gateways through WithBaseURL.
type Client struct {
	transport *llm.Transport
}

// NewClient creates a new OpenAI client.
func NewClient(apiKey string, opts ...ClientOption) *Client {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+apiKey)

	c := &Client{
		transport: llm.NewTransport(defaultBaseURL, defaultTimeout, header, parseError),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ClientOption configures the client.
type ClientOption func(*Client)

// WithBaseURL sets a custom base URL.
func WithBaseURL(url string) ClientOption {
	return func(c *Client) {
		c.transport.BaseURL = url
	}
}

// WithTimeout sets the HTTP timeout.
func WithTimeout(seconds int) ClientOption {
	return func(c *Client) {
		c.transport.SetTimeout(time.Duration(seconds) * time.Second)
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.transport.Client = client
	}
}

// WithMaxRetries sets how often retryable failures are retried.
func WithMaxRetries(n int) ClientOption {
	return func(c *Client) {
		c.transport.MaxRetries = n
	}
}

// ErrorResponse represents an OpenAI API error.
type ErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// parseError maps an OpenAI error body to an llm.Error. An exhausted
// quota is reported as 429 but will not clear on retry.
func parseError(status int, body []byte) *llm.Error {
	llmErr := &llm.Error{
		Code:       llm.CodeForStatus(status),
		StatusCode: status,
		Retryable:  llm.RetryableStatus(status),
		Message:    fmt.Sprintf("API error (status %d): %s", status, string(body)),
	}

	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error.Message == "" {
		return llmErr
	}

	if errResp.Error.Code == "insufficient_quota" {
		llmErr.Code = llm.ErrCodeQuotaExceed
		llmErr.Retryable = false
	}
	llmErr.Message = fmt.Sprintf("API error (status %d): %s", status, errResp.Error.Message)
	return llmErr
}
