//-------------------------------------------------------------------------
//
// pgEdge Venture Scout
//
// Portions copyright (c) 2025, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// Provider sets accepted by each model role.
var (
	CompletionProviders = []string{"anthropic", "openai", "ollama"}
	EmbeddingProviders  = []string{"openai", "voyage", "ollama"}
	SearchProviders     = []string{"duckduckgo", "serper", "brave"}
)

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, path[2:])
	}
	return path
}

// ValidationError represents a single configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}

	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate checks the configuration for errors and returns all validation
// errors found.
func (c *Config) Validate() error {
	var errs ValidationErrors

	errs = append(errs, c.validateServer()...)
	errs = append(errs, c.validateAnalysis()...)
	errs = append(errs, c.validateRAG()...)
	errs = append(errs, c.validateTools()...)

	if c.Sessions.MaxTopics < 0 {
		errs = append(errs, ValidationError{
			Field:   "sessions.max_topics",
			Message: "must be non-negative",
		})
	}

	if _, err := ParseLogLevel(c.Logging.Level); err != nil {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: "must be one of: debug, info, warn, error",
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// ParseLogLevel converts a configured level name to a slog level.
func ParseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level: %s", level)
}

// validateServer validates server configuration.
func (c *Config) validateServer() ValidationErrors {
	var errs ValidationErrors

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, ValidationError{
			Field:   "server.port",
			Message: "must be between 1 and 65535",
		})
	}

	if c.Server.TLS.Enabled {
		if c.Server.TLS.CertFile == "" {
			errs = append(errs, ValidationError{
				Field:   "server.tls.cert_file",
				Message: "required when TLS is enabled",
			})
		} else if _, err := os.Stat(expandPath(c.Server.TLS.CertFile)); err != nil {
			errs = append(errs, ValidationError{
				Field:   "server.tls.cert_file",
				Message: fmt.Sprintf("file not found: %s", c.Server.TLS.CertFile),
			})
		}

		if c.Server.TLS.KeyFile == "" {
			errs = append(errs, ValidationError{
				Field:   "server.tls.key_file",
				Message: "required when TLS is enabled",
			})
		} else if _, err := os.Stat(expandPath(c.Server.TLS.KeyFile)); err != nil {
			errs = append(errs, ValidationError{
				Field:   "server.tls.key_file",
				Message: fmt.Sprintf("file not found: %s", c.Server.TLS.KeyFile),
			})
		}
	}

	return errs
}

// validateAnalysis validates the pipeline settings.
func (c *Config) validateAnalysis() ValidationErrors {
	var errs ValidationErrors
	a := c.Analysis

	errs = append(errs, validateLLM("analysis.llm", a.LLM, CompletionProviders)...)

	if a.Temperature < 0 || a.Temperature > 2 {
		errs = append(errs, ValidationError{
			Field:   "analysis.temperature",
			Message: "must be between 0 and 2",
		})
	}
	if a.MaxTokens < 0 {
		errs = append(errs, ValidationError{
			Field:   "analysis.max_tokens",
			Message: "must be non-negative",
		})
	}
	if a.MaxToolRounds < 1 {
		errs = append(errs, ValidationError{
			Field:   "analysis.max_tool_rounds",
			Message: "must be at least 1",
		})
	}
	if a.MaxRepeatedToolCalls < 1 {
		errs = append(errs, ValidationError{
			Field:   "analysis.max_repeated_tool_calls",
			Message: "must be at least 1",
		})
	}
	if a.TaskTimeout < 0 {
		errs = append(errs, ValidationError{
			Field:   "analysis.task_timeout",
			Message: "must be non-negative",
		})
	}

	return errs
}

// validateRAG validates the indexing and Q&A settings. Nothing is checked
// when RAG is disabled.
func (c *Config) validateRAG() ValidationErrors {
	var errs ValidationErrors
	r := c.RAG

	if !r.IsEnabled() {
		return errs
	}

	errs = append(errs, validateLLM("rag.embedding_llm", r.EmbeddingLLM, EmbeddingProviders)...)
	errs = append(errs, validateLLM("rag.rag_llm", r.RAGLLM, CompletionProviders)...)

	if r.ChunkSize < 1 {
		errs = append(errs, ValidationError{
			Field:   "rag.chunk_size",
			Message: "must be at least 1",
		})
	}
	if r.ChunkOverlap < 0 || r.ChunkOverlap >= r.ChunkSize {
		errs = append(errs, ValidationError{
			Field:   "rag.chunk_overlap",
			Message: "must be non-negative and smaller than chunk_size",
		})
	}
	if r.TopK < 1 {
		errs = append(errs, ValidationError{
			Field:   "rag.top_k",
			Message: "must be at least 1",
		})
	}
	if r.MemoryWindow < 0 {
		errs = append(errs, ValidationError{
			Field:   "rag.memory_window",
			Message: "must be non-negative",
		})
	}
	if r.EmbedBatchSize < 1 {
		errs = append(errs, ValidationError{
			Field:   "rag.embed_batch_size",
			Message: "must be at least 1",
		})
	}
	if r.EmbedConcurrency < 1 {
		errs = append(errs, ValidationError{
			Field:   "rag.embed_concurrency",
			Message: "must be at least 1",
		})
	}

	switch r.VectorStore.Type {
	case VectorStoreMemory:
	case VectorStorePGVector:
		errs = append(errs, validateDatabase("rag.vector_store.database",
			r.VectorStore.Database)...)
	default:
		errs = append(errs, ValidationError{
			Field:   "rag.vector_store.type",
			Message: "must be one of: memory, pgvector",
		})
	}

	return errs
}

// validateTools validates the search and fetch settings.
func (c *Config) validateTools() ValidationErrors {
	var errs ValidationErrors
	t := c.Tools

	if !slices.Contains(SearchProviders, strings.ToLower(t.SearchProvider)) {
		errs = append(errs, ValidationError{
			Field:   "tools.search_provider",
			Message: fmt.Sprintf("must be one of: %s", strings.Join(SearchProviders, ", ")),
		})
	}
	if t.MaxResults < 1 {
		errs = append(errs, ValidationError{
			Field:   "tools.max_results",
			Message: "must be at least 1",
		})
	}
	if t.FetchMaxChars < 1 {
		errs = append(errs, ValidationError{
			Field:   "tools.fetch_max_chars",
			Message: "must be at least 1",
		})
	}
	if t.RequestsPerSecond < 0 {
		errs = append(errs, ValidationError{
			Field:   "tools.requests_per_second",
			Message: "must be non-negative",
		})
	}

	return errs
}

// validateDatabase validates database configuration.
func validateDatabase(prefix string, db DatabaseConfig) ValidationErrors {
	var errs ValidationErrors

	if db.Host == "" {
		errs = append(errs, ValidationError{
			Field:   prefix + ".host",
			Message: "required",
		})
	}

	if db.Database == "" {
		errs = append(errs, ValidationError{
			Field:   prefix + ".database",
			Message: "required",
		})
	}

	if db.Port < 1 || db.Port > 65535 {
		errs = append(errs, ValidationError{
			Field:   prefix + ".port",
			Message: "must be between 1 and 65535",
		})
	}

	validSSLModes := map[string]bool{
		"disable":     true,
		"allow":       true,
		"prefer":      true,
		"require":     true,
		"verify-ca":   true,
		"verify-full": true,
	}
	if db.SSLMode != "" && !validSSLModes[db.SSLMode] {
		errs = append(errs, ValidationError{
			Field:   prefix + ".ssl_mode",
			Message: "must be one of: disable, allow, prefer, require, verify-ca, verify-full",
		})
	}

	return errs
}

// validateLLM validates LLM configuration (required fields).
func validateLLM(prefix string, llm LLMConfig, validProviders []string) ValidationErrors {
	var errs ValidationErrors

	if llm.Provider == "" {
		errs = append(errs, ValidationError{
			Field:   prefix + ".provider",
			Message: "required",
		})
	} else if !slices.Contains(validProviders, strings.ToLower(llm.Provider)) {
		errs = append(errs, ValidationError{
			Field:   prefix + ".provider",
			Message: fmt.Sprintf("must be one of: %s", strings.Join(validProviders, ", ")),
		})
	}

	if llm.Model == "" {
		errs = append(errs, ValidationError{
			Field:   prefix + ".model",
			Message: "required",
		})
	}

	if llm.Timeout < 0 {
		errs = append(errs, ValidationError{
			Field:   prefix + ".timeout",
			Message: "must not be negative",
		})
	}

	if llm.MaxRetries != nil && *llm.MaxRetries < 0 {
		errs = append(errs, ValidationError{
			Field:   prefix + ".max_retries",
			Message: "must not be negative",
		})
	}

	return errs
}
