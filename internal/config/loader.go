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
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	// ConfigFileName is the default configuration file name.
	ConfigFileName = "venture-scout.yaml"

	// SystemConfigPath is the system-wide configuration path.
	SystemConfigPath = "/etc/pgedge/" + ConfigFileName
)

// ErrNoConfigFile is returned when no explicit path was given and none of
// the default locations contain a configuration file.
var ErrNoConfigFile = errors.New("no configuration file found")

// Load loads the configuration from the specified path, or searches
// default locations if path is empty.
//
// Search order:
//  1. Explicit path (if provided)
//  2. /etc/pgedge/venture-scout.yaml
//  3. venture-scout.yaml in the binary's directory
func Load(path string) (*Config, error) {
	configPath, err := findConfigFile(path)
	if err != nil {
		return nil, err
	}

	return loadFromFile(configPath)
}

// LoadOrDefault behaves like Load but falls back to the validated default
// configuration when no file exists in any default location.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, ErrNoConfigFile) {
		cfg = DefaultConfig()
		applyDefaults(cfg)
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
		return cfg, nil
	}
	return cfg, err
}

// findConfigFile finds the configuration file using the search order.
func findConfigFile(explicitPath string) (string, error) {
	if explicitPath != "" {
		if _, err := os.Stat(explicitPath); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicitPath)
		}
		return explicitPath, nil
	}

	searchPaths := []string{
		SystemConfigPath,
		getBinaryDirConfigPath(),
	}

	for _, p := range searchPaths {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("%w; searched: %v", ErrNoConfigFile, searchPaths)
}

// getBinaryDirConfigPath returns the path to config file in the binary's
// directory.
func getBinaryDirConfigPath() string {
	executable, err := os.Executable()
	if err != nil {
		return ""
	}

	executable, err = filepath.EvalSymlinks(executable)
	if err != nil {
		return ""
	}

	return filepath.Join(filepath.Dir(executable), ConfigFileName)
}

// loadFromFile loads and parses the configuration from a YAML file.
func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Start with defaults
	cfg := DefaultConfig()

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyDefaults fills values that depend on other settings, or that a file
// explicitly zeroed out.
func applyDefaults(cfg *Config) {
	defaults := DefaultConfig()

	// The Q&A model falls back to the analysis model
	if cfg.RAG.RAGLLM.Provider == "" {
		cfg.RAG.RAGLLM.Provider = cfg.Analysis.LLM.Provider
		if cfg.RAG.RAGLLM.Model == "" {
			cfg.RAG.RAGLLM.Model = cfg.Analysis.LLM.Model
		}
		if cfg.RAG.RAGLLM.BaseURL == "" {
			cfg.RAG.RAGLLM.BaseURL = cfg.Analysis.LLM.BaseURL
		}
		if cfg.RAG.RAGLLM.Timeout == 0 {
			cfg.RAG.RAGLLM.Timeout = cfg.Analysis.LLM.Timeout
		}
		if cfg.RAG.RAGLLM.MaxRetries == nil {
			cfg.RAG.RAGLLM.MaxRetries = cfg.Analysis.LLM.MaxRetries
		}
	}
	if cfg.RAG.Temperature == nil {
		temp := cfg.Analysis.Temperature
		cfg.RAG.Temperature = &temp
	}

	if cfg.Analysis.MaxToolRounds == 0 {
		cfg.Analysis.MaxToolRounds = defaults.Analysis.MaxToolRounds
	}
	if cfg.Analysis.MaxRepeatedToolCalls == 0 {
		cfg.Analysis.MaxRepeatedToolCalls = defaults.Analysis.MaxRepeatedToolCalls
	}
	if cfg.Analysis.TaskTimeout == 0 {
		cfg.Analysis.TaskTimeout = defaults.Analysis.TaskTimeout
	}

	if cfg.RAG.ChunkSize == 0 {
		cfg.RAG.ChunkSize = defaults.RAG.ChunkSize
	}
	if cfg.RAG.TopK == 0 {
		cfg.RAG.TopK = defaults.RAG.TopK
	}
	if cfg.RAG.AnswerTimeout == 0 {
		cfg.RAG.AnswerTimeout = defaults.RAG.AnswerTimeout
	}
	if cfg.RAG.EmbedBatchSize == 0 {
		cfg.RAG.EmbedBatchSize = defaults.RAG.EmbedBatchSize
	}
	if cfg.RAG.EmbedConcurrency == 0 {
		cfg.RAG.EmbedConcurrency = defaults.RAG.EmbedConcurrency
	}
	if cfg.RAG.VectorStore.Type == "" {
		cfg.RAG.VectorStore.Type = VectorStoreMemory
	}

	if cfg.RAG.VectorStore.Type == VectorStorePGVector {
		db := &cfg.RAG.VectorStore.Database
		if db.Port == 0 {
			db.Port = 5432
		}
		if db.SSLMode == "" {
			db.SSLMode = "prefer"
		}
		if db.Table == "" {
			db.Table = "venture_scout_chunks"
		}
	}

	if cfg.Tools.MaxResults == 0 {
		cfg.Tools.MaxResults = defaults.Tools.MaxResults
	}
	if cfg.Tools.FetchTimeout == 0 {
		cfg.Tools.FetchTimeout = defaults.Tools.FetchTimeout
	}
	if cfg.Tools.FetchMaxChars == 0 {
		cfg.Tools.FetchMaxChars = defaults.Tools.FetchMaxChars
	}
	if cfg.Tools.UserAgent == "" {
		cfg.Tools.UserAgent = defaults.Tools.UserAgent
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = defaults.Logging.Level
	}
}
