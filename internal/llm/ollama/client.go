//-------------------------------------------------------------------------
//
// pgEdge Venture Scout
//
// Portions copyright (c) 2025, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package ollama provides an Ollama API client for local LLM inference.
package ollama

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pgEdge/venture-scout/internal/llm"
)

const (
	defaultBaseURL        = "http://localhost:11434"
	defaultEmbeddingModel = "nomic-embed-text"
	defaultChatModel      = "llama3.2"
	defaultTimeout        = 120 * time.Second // large local models are slow
)

// Client is an Ollama API client. Ollama needs no API key.
type Client struct {
	transport *llm.Transport
}

// NewClient creates a new Ollama client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		transport: llm.NewTransport(defaultBaseURL, defaultTimeout, nil, parseError),
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

// parseError maps an Ollama error body to an llm.Error. Ollama reports
// errors as {"error": "..."}; a model that is not pulled is a 404.
func parseError(status int, body []byte) *llm.Error {
	msg := string(body)
	var errResp struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		msg = errResp.Error
	}

	return &llm.Error{
		Code:       llm.ErrCodeModelError,
		Message:    fmt.Sprintf("API error (status %d): %s", status, msg),
		StatusCode: status,
		Retryable:  status >= http.StatusInternalServerError,
	}
}
