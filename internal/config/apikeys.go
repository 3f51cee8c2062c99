//-------------------------------------------------------------------------
//
// pgEdge Venture Scout
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Environment variables holding API keys.
const (
	EnvAnthropicAPIKey = "ANTHROPIC_API_KEY"
	EnvOpenAIAPIKey    = "OPENAI_API_KEY"
	EnvVoyageAPIKey    = "VOYAGE_API_KEY"
	EnvSerperAPIKey    = "SERPER_API_KEY"
	EnvBraveAPIKey     = "BRAVE_API_KEY"
)

// LoadedKeys holds the keys of the providers in use. Providers that are
// not configured, or need no key (Ollama, DuckDuckGo), stay empty.
type LoadedKeys struct {
	Anthropic string
	OpenAI    string
	Voyage    string
	Serper    string
	Brave     string
}

// keySource describes where a provider's key may be found.
type keySource struct {
	name string
	env  string
	file string // relative to the home directory

	configured func(APIKeysConfig) string
	dest       func(*LoadedKeys) *string
}

var keySources = map[string]keySource{
	"anthropic": {
		name: "Anthropic", env: EnvAnthropicAPIKey, file: ".anthropic-api-key",
		configured: func(c APIKeysConfig) string { return c.Anthropic },
		dest:       func(k *LoadedKeys) *string { return &k.Anthropic },
	},
	"openai": {
		name: "OpenAI", env: EnvOpenAIAPIKey, file: ".openai-api-key",
		configured: func(c APIKeysConfig) string { return c.OpenAI },
		dest:       func(k *LoadedKeys) *string { return &k.OpenAI },
	},
	"voyage": {
		name: "Voyage", env: EnvVoyageAPIKey, file: ".voyage-api-key",
		configured: func(c APIKeysConfig) string { return c.Voyage },
		dest:       func(k *LoadedKeys) *string { return &k.Voyage },
	},
	"serper": {
		name: "Serper", env: EnvSerperAPIKey, file: ".serper-api-key",
		configured: func(c APIKeysConfig) string { return c.Serper },
		dest:       func(k *LoadedKeys) *string { return &k.Serper },
	},
	"brave": {
		name: "Brave", env: EnvBraveAPIKey, file: ".brave-api-key",
		configured: func(c APIKeysConfig) string { return c.Brave },
		dest:       func(k *LoadedKeys) *string { return &k.Brave },
	},
}

// APIKeyLoader resolves API keys. A key file named in the configuration
// wins, then the environment variable, then ~/.<provider>-api-key.
type APIKeyLoader struct {
	config APIKeysConfig
}

// NewAPIKeyLoader creates a loader for the given key configuration.
func NewAPIKeyLoader(cfg APIKeysConfig) *APIKeyLoader {
	return &APIKeyLoader{config: cfg}
}

// Load returns the key for provider. Providers without keys return an
// empty key and no error.
func (l *APIKeyLoader) Load(provider string) (string, error) {
	src, ok := keySources[strings.ToLower(provider)]
	if !ok {
		return "", nil
	}

	if path := src.configured(l.config); path != "" {
		return readKeyFile(expandPath(path), src.name)
	}
	if key := os.Getenv(src.env); key != "" {
		return key, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	path := filepath.Join(home, src.file)
	key, err := readKeyFile(path, src.name)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%s API key not found: set %s or create %s", src.name, src.env, path)
	}
	return key, err
}

func readKeyFile(path, name string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%s API key file not found: %s: %w", name, path, err)
		}
		return "", fmt.Errorf("failed to read %s API key: %w", name, err)
	}

	key := strings.TrimSpace(string(data))
	if key == "" {
		return "", fmt.Errorf("%s API key file is empty: %s", name, path)
	}
	return key, nil
}

// LoadRequiredKeys loads the keys of the analysis and Q&A models, the
// embedding model when RAG is enabled, and the search provider.
func (l *APIKeyLoader) LoadRequiredKeys(cfg *Config) (*LoadedKeys, error) {
	providers := []string{cfg.Analysis.LLM.Provider, cfg.Tools.SearchProvider}
	if cfg.RAG.IsEnabled() {
		providers = append(providers, cfg.RAG.EmbeddingLLM.Provider, cfg.RAG.RAGLLM.Provider)
	}

	keys := &LoadedKeys{}
	for _, p := range providers {
		src, ok := keySources[strings.ToLower(p)]
		if !ok || *src.dest(keys) != "" {
			continue
		}
		key, err := l.Load(p)
		if err != nil {
			return nil, err
		}
		*src.dest(keys) = key
	}
	return keys, nil
}
