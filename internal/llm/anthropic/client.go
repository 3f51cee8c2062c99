//-------------------------------------------------------------------------
//
// pgEdge Venture Scout
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package anthropic provides an Anthropic API client.
package anthropic

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pgEdge/venture-scout/internal/llm"
)

const (
	defaultBaseURL = "https://api.anthropic.com/v1"
	defaultModel   = "claude-sonnet-4-20250514"
	defaultTimeout = 120 * time.Second
	apiVersion     = "2023-06-01"

	// statusOverloaded is Anthropic's non-standard overload status.
	statusOverloaded = 529
)

// Client is an Anthropic API client.
type Client struct {
	transport *llm.Transport
}

// NewClient creates a new Anthropic client.
func NewClient(apiKey string, opts ...ClientOption) *Client {
	header := http.Header{}
	header.Set("x-api-key", apiKey)
	header.Set("anthropic-version", apiVersion)

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

// ErrorResponse represents an Anthropic API error.
type ErrorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// parseError maps an Anthropic error body to an llm.Error using the
// error type, which is more precise than the status.
func parseError(status int, body []byte) *llm.Error {
	llmErr := &llm.Error{
		Code:       llm.CodeForStatus(status),
		StatusCode: status,
		Retryable:  llm.RetryableStatus(status),
		Message:    fmt.Sprintf("API error (status %d): %s", status, string(body)),
	}

	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		llmErr.Message = fmt.Sprintf("API error (status %d): %s", status, errResp.Error.Message)
	}

	switch errResp.Error.Type {
	case "authentication_error", "permission_error":
		llmErr.Code = llm.ErrCodeInvalidKey
		llmErr.Retryable = false
	case "rate_limit_error":
		llmErr.Code = llm.ErrCodeRateLimit
		llmErr.Retryable = true
	case "overloaded_error", "api_error":
		llmErr.Retryable = true
	case "invalid_request_error", "not_found_error":
		llmErr.Code = llm.ErrCodeModelError
		llmErr.Retryable = false
	}
	if status == statusOverloaded {
		llmErr.Retryable = true
	}

	return llmErr
}
