//-------------------------------------------------------------------------
//
// pgEdge Venture Scout
//
// Portions copyright (c) 2025, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package ollama

import (
	"context"
	"fmt"

	"github.com/pgEdge/venture-scout/internal/llm"
)

// maxInputsPerRequest keeps single requests to a local server small enough
// to finish within the client timeout.
const maxInputsPerRequest = 256

// EmbeddingProvider embeds text with a local Ollama model.
type EmbeddingProvider struct {
	client     *Client
	model      string
	dimensions int
}

// NewEmbeddingProvider creates a new Ollama embedding provider.
func NewEmbeddingProvider(opts ...EmbeddingOption) *EmbeddingProvider {
	p := &EmbeddingProvider{
		client:     NewClient(),
		model:      defaultEmbeddingModel,
		dimensions: 768, // nomic-embed-text
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// EmbeddingOption configures the embedding provider.
type EmbeddingOption func(*EmbeddingProvider)

// WithEmbeddingModel sets the embedding model.
func WithEmbeddingModel(model string) EmbeddingOption {
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

// WithEmbeddingClient sets a custom client.
func WithEmbeddingClient(client *Client) EmbeddingOption {
	return func(p *EmbeddingProvider) {
		p.client = client
	}
}

// embedRequest is the body of /api/embed. Inputs longer than the model's
// context are truncated by the server rather than rejected.
type embedRequest struct {
	Model    string   `json:"model"`
	Input    []string `json:"input"`
	Truncate bool     `json:"truncate"`
}

type embedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
}

// Embed embeds a single text.
func (p *EmbeddingProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	return llm.EmbedOne(ctx, text, p.request)
}

// EmbedBatch embeds texts, a bounded number per request.
func (p *EmbeddingProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return llm.EmbedInBatches(ctx, texts, maxInputsPerRequest, p.request)
}

func (p *EmbeddingProvider) request(ctx context.Context, texts []string) ([][]float32, error) {
	req := embedRequest{
		Model:    p.model,
		Input:    texts,
		Truncate: true,
	}

	var resp embedResponse
	if err := p.client.transport.PostJSON(ctx, "/api/embed", req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Embeddings))
	}

	out := make([][]float32, len(resp.Embeddings))
	for i, v := range resp.Embeddings {
		out[i] = toFloat32(v)
	}
	return out, nil
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
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
