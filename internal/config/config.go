//-------------------------------------------------------------------------
//
// pgEdge Venture Scout
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package config handles configuration loading and validation for
// pgEdge Venture Scout.
package config

import "time"

// Config is the root configuration structure.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	APIKeys  APIKeysConfig  `yaml:"api_keys"`
	Analysis AnalysisConfig `yaml:"analysis"`
	RAG      RAGConfig      `yaml:"rag"`
	Tools    ToolsConfig    `yaml:"tools"`
	Sessions SessionsConfig `yaml:"sessions"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// APIKeysConfig contains paths to files containing API keys.
// If not specified, keys are loaded from environment variables or default
// file locations (~/.anthropic-api-key, ~/.openai-api-key, ...).
type APIKeysConfig struct {
	Anthropic string `yaml:"anthropic"`
	OpenAI    string `yaml:"openai"`
	Voyage    string `yaml:"voyage"`
	Serper    string `yaml:"serper"`
	Brave     string `yaml:"brave"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	ListenAddress string     `yaml:"listen_address"`
	Port          int        `yaml:"port"`
	TLS           TLSConfig  `yaml:"tls"`
	CORS          CORSConfig `yaml:"cors"`
}

// CORSConfig contains CORS (Cross-Origin Resource Sharing) settings.
type CORSConfig struct {
	Enabled        bool     `yaml:"enabled"`
	AllowedOrigins []string `yaml:"allowed_origins"` // Origins to allow, or ["*"] for all
}

// TLSConfig contains TLS/HTTPS settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// LLMConfig contains settings for an LLM provider.
type LLMConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"` // Optional endpoint override (Ollama, proxies)

	// Timeout is the per-request timeout in seconds; 0 keeps the
	// provider default.
	Timeout int `yaml:"timeout"`

	// MaxRetries bounds retries of rate-limited or failed requests. Nil
	// keeps the default; 0 disables retries.
	MaxRetries *int `yaml:"max_retries"`
}

// AnalysisConfig controls the multi-agent analysis pipeline.
type AnalysisConfig struct {
	LLM                  LLMConfig     `yaml:"llm"`
	Temperature          float64       `yaml:"temperature"`
	MaxTokens            int           `yaml:"max_tokens"`
	MaxToolRounds        int           `yaml:"max_tool_rounds"`
	MaxRepeatedToolCalls int           `yaml:"max_repeated_tool_calls"`
	TaskTimeout          time.Duration `yaml:"task_timeout"`
}

// RAGConfig controls indexing and question answering over reports.
type RAGConfig struct {
	Enabled          *bool             `yaml:"enabled"` // default: true
	EmbeddingLLM     LLMConfig         `yaml:"embedding_llm"`
	RAGLLM           LLMConfig         `yaml:"rag_llm"` // Defaults to analysis.llm
	Temperature      *float64          `yaml:"temperature"`
	ChunkSize        int               `yaml:"chunk_size"`
	ChunkOverlap     int               `yaml:"chunk_overlap"`
	TopK             int               `yaml:"top_k"`
	HybridEnabled    bool              `yaml:"hybrid_enabled"`
	MemoryWindow     int               `yaml:"memory_window"` // 0 replays every prior turn
	AnswerTimeout    time.Duration     `yaml:"answer_timeout"`
	EmbedBatchSize   int               `yaml:"embed_batch_size"`
	EmbedConcurrency int               `yaml:"embed_concurrency"`
	VectorStore      VectorStoreConfig `yaml:"vector_store"`
}

// IsEnabled reports whether question answering is enabled.
func (r RAGConfig) IsEnabled() bool {
	return r.Enabled == nil || *r.Enabled
}

// Vector store types.
const (
	VectorStoreMemory   = "memory"
	VectorStorePGVector = "pgvector"
)

// VectorStoreConfig selects where chunk embeddings are kept.
type VectorStoreConfig struct {
	Type     string         `yaml:"type"`
	Database DatabaseConfig `yaml:"database"`
}

// DatabaseConfig contains PostgreSQL connection settings.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	Table    string `yaml:"table"` // Chunk table, created on demand

	// Certificate-based authentication
	SSLCert   string `yaml:"ssl_cert"`
	SSLKey    string `yaml:"ssl_key"`
	SSLRootCA string `yaml:"ssl_root_ca"`
}

// ToolsConfig configures the search and fetch capabilities given to agents.
type ToolsConfig struct {
	SearchProvider    string        `yaml:"search_provider"`
	MaxResults        int           `yaml:"max_results"`
	FetchTimeout      time.Duration `yaml:"fetch_timeout"`
	FetchMaxChars     int           `yaml:"fetch_max_chars"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	UserAgent         string        `yaml:"user_agent"`
}

// SessionsConfig bounds the in-memory session registry.
type SessionsConfig struct {
	MaxTopics int `yaml:"max_topics"` // 0 means unbounded
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddress: "0.0.0.0",
			Port:          8080,
		},
		Analysis: AnalysisConfig{
			LLM: LLMConfig{
				Provider: "openai",
				Model:    "gpt-4o-mini",
			},
			Temperature:          0.1,
			MaxTokens:            4096,
			MaxToolRounds:        8,
			MaxRepeatedToolCalls: 2,
			TaskTimeout:          5 * time.Minute,
		},
		RAG: RAGConfig{
			EmbeddingLLM: LLMConfig{
				Provider: "openai",
				Model:    "text-embedding-3-small",
			},
			ChunkSize:        1000,
			ChunkOverlap:     200,
			TopK:             5,
			AnswerTimeout:    2 * time.Minute,
			EmbedBatchSize:   64,
			EmbedConcurrency: 4,
			VectorStore: VectorStoreConfig{
				Type: VectorStoreMemory,
			},
		},
		Tools: ToolsConfig{
			SearchProvider:    "duckduckgo",
			MaxResults:        8,
			FetchTimeout:      10 * time.Second,
			FetchMaxChars:     3000,
			RequestsPerSecond: 2,
			UserAgent:         "pgEdge-Venture-Scout/1.0",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}
