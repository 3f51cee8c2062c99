//-------------------------------------------------------------------------
//
// pgEdge Venture Scout
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package llm defines the completion and embedding backends used by the
// analysis agents and the report Q&A, and the HTTP plumbing they share.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// EmbeddingProvider turns text into fixed-length vectors.
type EmbeddingProvider interface {
	// Embed embeds a question.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch embeds documents, returning one vector per text in input
	// order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	Dimensions() int
	ModelName() string
}

// CompletionProvider is a chat model. When a request offers tools, the
// response may carry ToolCalls alongside or instead of Content.
type CompletionProvider interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
	ModelName() string
}

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
	RoleTool      = "tool"
)

// CompletionRequest is one model call.
type CompletionRequest struct {
	// Model overrides the provider's configured model when not empty.
	Model string

	SystemPrompt string
	Messages     []Message

	// MaxTokens of 0 keeps the provider default.
	MaxTokens int

	// Temperature below 0 keeps the provider default.
	Temperature float64

	// Context holds retrieved report excerpts, most similar first.
	Context []ContextDocument

	Tools []ToolDefinition
}

// ModelOr returns the request's model, or def when the request does not
// override it.
func (r CompletionRequest) ModelOr(def string) string {
	if r.Model != "" {
		return r.Model
	}
	return def
}

// Message is one conversation entry.
type Message struct {
	Role    string
	Content string

	// ToolCalls are the calls requested by an assistant message.
	ToolCalls []ToolCall

	// ToolCallID links a tool message to the call it answers.
	ToolCallID string
}

// ToolDefinition describes a function offered to the model. Parameters is
// a JSON schema object.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ToolCall is a single function call requested by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// ContextDocument is a retrieved excerpt placed in the prompt.
type ContextDocument struct {
	Content string
	Source  string
	Score   float64
}

// CompletionResponse is the model's reply.
type CompletionResponse struct {
	Content      string
	ToolCalls    []ToolCall
	FinishReason string
	Usage        TokenUsage
}

// TokenUsage counts tokens consumed by a call.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Error is a provider failure. Retryable errors may succeed when the
// request is repeated; Transport retries them itself.
type Error struct {
	Code       string
	Message    string
	StatusCode int
	Retryable  bool
}

func (e *Error) Error() string {
	return e.Message
}

// Error codes.
const (
	ErrCodeRateLimit    = "rate_limit"
	ErrCodeInvalidKey   = "invalid_api_key"
	ErrCodeQuotaExceed  = "quota_exceeded"
	ErrCodeModelError   = "model_error"
	ErrCodeTimeout      = "timeout"
	ErrCodeNetworkError = "network_error"
)

// IsRetryable reports whether err is a provider error worth repeating.
func IsRetryable(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Retryable
}

// FormatContext renders excerpts in the order given, so the model sees the
// closest match first.
func FormatContext(docs []ContextDocument) string {
	var sb strings.Builder
	sb.WriteString("Answer using these excerpts from the analysis report:\n\n")

	for i, doc := range docs {
		fmt.Fprintf(&sb, "[Excerpt %d", i+1)
		if doc.Source != "" {
			fmt.Fprintf(&sb, ", %s", doc.Source)
		}
		if doc.Score != 0 {
			fmt.Fprintf(&sb, ", similarity %.2f", doc.Score)
		}
		sb.WriteString("]\n")
		sb.WriteString(strings.TrimSpace(doc.Content))
		sb.WriteString("\n\n")
	}

	return sb.String()
}

// SystemPromptWithContext appends the formatted excerpts to a system
// prompt, for providers that take the system prompt out of band.
func SystemPromptWithContext(system string, docs []ContextDocument) string {
	if len(docs) == 0 {
		return system
	}
	if system == "" {
		return FormatContext(docs)
	}
	return system + "\n\n" + FormatContext(docs)
}
