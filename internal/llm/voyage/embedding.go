//-------------------------------------------------------------------------
//
// pgEdge Venture Scout
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package voyage provides a Voyage AI embedding client.
package voyage

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pgEdge/venture-scout/internal/llm"
)

const (
	defaultBaseURL = "https://api.voyageai.com/v1"
	defaultModel   = "voyage-3"
	defaultTimeout = 60 * time.Second

	maxInputsPerRequest = 128

	inputTypeQuery    = "query"
	inputTypeDocument = "document"
)

// EmbeddingProvider implements the llm.EmbeddingProvider interface.
type EmbeddingProvider struct {
	transport  *llm.Transport
	model      string
	dimensions int
}

// NewEmbeddingProvider creates a new Voyage embedding provider.
func NewEmbeddingProvider(apiKey string, opts ...EmbeddingOption) *EmbeddingProvider {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+apiKey)

	p := &EmbeddingProvider{
		transport:  llm.NewTransport(defaultBaseURL, defaultTimeout, header, parseError),
		model:      defaultModel,
		dimensions: 1024, // voyage-3
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// EmbeddingOption configures the embedding provider.
type EmbeddingOption func(*EmbeddingProvider)

// WithModel sets the embedding model.
func WithModel(model string) EmbeddingOption {
	return func(p *EmbeddingProvider) {
		p.model = model
	}
}

// WithDimensions sets the expected embedding dimensions.
func WithDimensions(dims int) EmbeddingOption {
	return func(p *EmbeddingProvider) {
		p.dimensions = dims
	}
}

// WithBaseURL sets a custom base URL.
func WithBaseURL(url string) EmbeddingOption {
	return func(p *EmbeddingProvider) {
		p.transport.BaseURL = url
	}
}

// WithTimeout sets the HTTP timeout.
func WithTimeout(seconds int) EmbeddingOption {
	return func(p *EmbeddingProvider) {
		p.transport.SetTimeout(time.Duration(seconds) * time.Second)
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) EmbeddingOption {
	return func(p *EmbeddingProvider) {
		p.transport.Client = client
	}
}

// WithMaxRetries sets how often retryable failures are retried.
func WithMaxRetries(n int) EmbeddingOption {
	return func(p *EmbeddingProvider) {
		p.transport.MaxRetries = n
	}
}

// embeddingRequest is the request format for the embeddings API.
type embeddingRequest struct {
	Model     string   `json:"model"`
	Input     []string `json:"input"`
	InputType string   `json:"input_type,omitempty"`
}

// embeddingResponse is the response format from the embeddings API.
type embeddingResponse struct {
	Data  []llm.IndexedEmbedding `json:"data"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// ErrorResponse represents a Voyage API error.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

func parseError(status int, body []byte) *llm.Error {
	msg := string(body)
	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Detail != "" {
		msg = errResp.Detail
	}

	return &llm.Error{
		Code:       llm.CodeForStatus(status),
		Message:    fmt.Sprintf("API error (status %d): %s", status, msg),
		StatusCode: status,
		Retryable:  llm.RetryableStatus(status),
	}
}

// Embed embeds a single text. Single texts are questions in this
// application, so they are embedded as queries.
func (p *EmbeddingProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	return llm.EmbedOne(ctx, text, p.requestAs(inputTypeQuery))
}

// EmbedBatch embeds report chunks as documents.
func (p *EmbeddingProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return llm.EmbedInBatches(ctx, texts, maxInputsPerRequest, p.requestAs(inputTypeDocument))
}

// requestAs returns a batch call tagging its inputs with inputType, which
// Voyage uses to embed queries and documents asymmetrically.
func (p *EmbeddingProvider) requestAs(inputType string) llm.BatchFunc {
	return func(ctx context.Context, texts []string) ([][]float32, error) {
		req := embeddingRequest{
			Model:     p.model,
			Input:     texts,
			InputType: inputType,
		}
		var resp embeddingResponse
		if err := p.transport.PostJSON(ctx, "/embeddings", req, &resp); err != nil {
			return nil, err
		}
		return llm.OrderEmbeddings(len(texts), resp.Data)
	}
}

// Dimensions returns the dimensionality of embeddings.
func (p *EmbeddingProvider) Dimensions() int {
	return p.dimensions
}

// ModelName returns the model name.
func (p *EmbeddingProvider) ModelName() string {
	return p.model
}

var _ llm.EmbeddingProvider = (*EmbeddingProvider)(nil)
