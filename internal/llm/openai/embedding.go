//-------------------------------------------------------------------------
//
// pgEdge Venture Scout
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package openai

import (
	"context"
	"strings"

	"github.com/pgEdge/venture-scout/internal/llm"
)

// maxInputsPerRequest is the embeddings endpoint's limit on inputs.
const maxInputsPerRequest = 2048

// EmbeddingProvider embeds report chunks and questions with the OpenAI
// embeddings endpoint.
type EmbeddingProvider struct {
	client     *Client
	model      string
	dimensions int

	// shorten asks text-embedding-3 models for vectors of the configured
	// size instead of their native one.
	shorten bool
}

// NewEmbeddingProvider creates a new OpenAI embedding provider.
func NewEmbeddingProvider(apiKey string, opts ...EmbeddingOption) *EmbeddingProvider {
	p := &EmbeddingProvider{
		client:     NewClient(apiKey),
		model:      defaultEmbeddingModel,
		dimensions: 1536,
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

// WithDimensions sets the embedding size. Models of the text-embedding-3
// family are asked to return vectors of this size.
func WithDimensions(dims int) EmbeddingOption {
	return func(p *EmbeddingProvider) {
		p.dimensions = dims
		p.shorten = dims > 0
	}
}

// WithEmbeddingClient sets a custom client.
func WithEmbeddingClient(client *Client) EmbeddingOption {
	return func(p *EmbeddingProvider) {
		p.client = client
	}
}

type embeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data  []llm.IndexedEmbedding `json:"data"`
	Usage struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
}

// Embed embeds a single question.
func (p *EmbeddingProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	return llm.EmbedOne(ctx, text, p.request)
}

// EmbedBatch embeds texts, splitting them across requests when there are
// more than the endpoint accepts at once.
func (p *EmbeddingProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return llm.EmbedInBatches(ctx, texts, maxInputsPerRequest, p.request)
}

func (p *EmbeddingProvider) request(ctx context.Context, texts []string) ([][]float32, error) {
	req := embeddingRequest{
		Model: p.model,
		Input: texts,
	}
	if p.shorten && strings.HasPrefix(p.model, "text-embedding-3") {
		req.Dimensions = p.dimensions
	}

	var resp embeddingResponse
	if err := p.client.transport.PostJSON(ctx, "/embeddings", req, &resp); err != nil {
		return nil, err
	}
	return llm.OrderEmbeddings(len(texts), resp.Data)
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
