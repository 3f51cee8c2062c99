//-------------------------------------------------------------------------
//
// pgEdge Venture Scout
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package factory provides functions to create LLM providers from configuration.
package factory

import (
	"fmt"
	"strings"

	"github.com/pgEdge/venture-scout/internal/config"
	"github.com/pgEdge/venture-scout/internal/llm"
	"github.com/pgEdge/venture-scout/internal/llm/anthropic"
	"github.com/pgEdge/venture-scout/internal/llm/ollama"
	"github.com/pgEdge/venture-scout/internal/llm/openai"
	"github.com/pgEdge/venture-scout/internal/llm/voyage"
)

// Provider constants for matching configuration values.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderVoyage    = "voyage"
	ProviderOllama    = "ollama"
)

// NewEmbeddingProvider creates an embedding provider based on configuration.
func NewEmbeddingProvider(
	cfg config.LLMConfig,
	apiKeys *config.LoadedKeys,
) (llm.EmbeddingProvider, error) {
	switch strings.ToLower(cfg.Provider) {
	case ProviderOpenAI:
		client, err := openaiClient(cfg, apiKeys)
		if err != nil {
			return nil, err
		}
		opts := []openai.EmbeddingOption{openai.WithEmbeddingClient(client)}
		if cfg.Model != "" {
			opts = append(opts, openai.WithEmbeddingModel(cfg.Model))
		}
		return openai.NewEmbeddingProvider(apiKeys.OpenAI, opts...), nil

	case ProviderVoyage:
		if apiKeys.Voyage == "" {
			return nil, fmt.Errorf("Voyage API key not configured")
		}
		var opts []voyage.EmbeddingOption
		if cfg.Model != "" {
			opts = append(opts, voyage.WithModel(cfg.Model))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, voyage.WithBaseURL(cfg.BaseURL))
		}
		if cfg.Timeout > 0 {
			opts = append(opts, voyage.WithTimeout(cfg.Timeout))
		}
		if cfg.MaxRetries != nil {
			opts = append(opts, voyage.WithMaxRetries(*cfg.MaxRetries))
		}
		return voyage.NewEmbeddingProvider(apiKeys.Voyage, opts...), nil

	case ProviderOllama:
		opts := []ollama.EmbeddingOption{ollama.WithEmbeddingClient(ollamaClient(cfg))}
		if cfg.Model != "" {
			opts = append(opts, ollama.WithEmbeddingModel(cfg.Model))
		}
		return ollama.NewEmbeddingProvider(opts...), nil

	case ProviderAnthropic:
		return nil, fmt.Errorf("Anthropic does not provide an embedding API")

	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Provider)
	}
}

// NewCompletionProvider creates a completion provider based on configuration.
// maxTokens of 0 keeps the provider default.
func NewCompletionProvider(
	cfg config.LLMConfig,
	maxTokens int,
	apiKeys *config.LoadedKeys,
) (llm.CompletionProvider, error) {
	switch strings.ToLower(cfg.Provider) {
	case ProviderOpenAI:
		client, err := openaiClient(cfg, apiKeys)
		if err != nil {
			return nil, err
		}
		opts := []openai.CompletionOption{openai.WithCompletionClient(client)}
		if cfg.Model != "" {
			opts = append(opts, openai.WithCompletionModel(cfg.Model))
		}
		if maxTokens > 0 {
			opts = append(opts, openai.WithMaxTokens(maxTokens))
		}
		return openai.NewCompletionProvider(apiKeys.OpenAI, opts...), nil

	case ProviderAnthropic:
		if apiKeys.Anthropic == "" {
			return nil, fmt.Errorf("Anthropic API key not configured")
		}
		var clientOpts []anthropic.ClientOption
		if cfg.BaseURL != "" {
			clientOpts = append(clientOpts, anthropic.WithBaseURL(cfg.BaseURL))
		}
		if cfg.Timeout > 0 {
			clientOpts = append(clientOpts, anthropic.WithTimeout(cfg.Timeout))
		}
		if cfg.MaxRetries != nil {
			clientOpts = append(clientOpts, anthropic.WithMaxRetries(*cfg.MaxRetries))
		}
		opts := []anthropic.CompletionOption{
			anthropic.WithCompletionClient(anthropic.NewClient(apiKeys.Anthropic, clientOpts...)),
		}
		if cfg.Model != "" {
			opts = append(opts, anthropic.WithCompletionModel(cfg.Model))
		}
		if maxTokens > 0 {
			opts = append(opts, anthropic.WithMaxTokens(maxTokens))
		}
		return anthropic.NewCompletionProvider(apiKeys.Anthropic, opts...), nil

	case ProviderOllama:
		opts := []ollama.CompletionOption{ollama.WithCompletionClient(ollamaClient(cfg))}
		if cfg.Model != "" {
			opts = append(opts, ollama.WithCompletionModel(cfg.Model))
		}
		return ollama.NewCompletionProvider(opts...), nil

	case ProviderVoyage:
		return nil, fmt.Errorf("Voyage does not provide a completion API")

	default:
		return nil, fmt.Errorf("unknown completion provider: %s", cfg.Provider)
	}
}

// openaiClient builds the client shared by OpenAI completions and embeddings.
func openaiClient(cfg config.LLMConfig, apiKeys *config.LoadedKeys) (*openai.Client, error) {
	if apiKeys.OpenAI == "" {
		return nil, fmt.Errorf("OpenAI API key not configured")
	}
	var opts []openai.ClientOption
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, openai.WithTimeout(cfg.Timeout))
	}
	if cfg.MaxRetries != nil {
		opts = append(opts, openai.WithMaxRetries(*cfg.MaxRetries))
	}
	return openai.NewClient(apiKeys.OpenAI, opts...), nil
}

func ollamaClient(cfg config.LLMConfig) *ollama.Client {
	var opts []ollama.ClientOption
	if cfg.BaseURL != "" {
		opts = append(opts, ollama.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, ollama.WithTimeout(cfg.Timeout))
	}
	if cfg.MaxRetries != nil {
		opts = append(opts, ollama.WithMaxRetries(*cfg.MaxRetries))
	}
	return ollama.NewClient(opts...)
}
