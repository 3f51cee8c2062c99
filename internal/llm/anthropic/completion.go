//-------------------------------------------------------------------------
//
// pgEdge Venture Scout
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package anthropic

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/pgEdge/venture-scout/internal/llm"
)

// CompletionProvider implements the llm.CompletionProvider interface.
type CompletionProvider struct {
	client      *Client
	model       string
	maxTokens   int
	temperature float64
}

// NewCompletionProvider creates a new Anthropic completion provider.
func NewCompletionProvider(apiKey string, opts ...CompletionOption) *CompletionProvider {
	p := &CompletionProvider{
		client:      NewClient(apiKey),
		model:       defaultModel,
		maxTokens:   4096,
		temperature: 0.7,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// CompletionOption configures the completion provider.
type CompletionOption func(*CompletionProvider)

// WithCompletionModel sets the model.
func WithCompletionModel(model string) CompletionOption {
	return func(p *CompletionProvider) {
		p.model = model
	}
}

// WithMaxTokens sets the default max tokens.
func WithMaxTokens(tokens int) CompletionOption {
	return func(p *CompletionProvider) {
		p.maxTokens = tokens
	}
}

// WithTemperature sets the default temperature.
func WithTemperature(temp float64) CompletionOption {
	return func(p *CompletionProvider) {
		p.temperature = temp
	}
}

// WithCompletionClient sets a custom client.
func WithCompletionClient(client *Client) CompletionOption {
	return func(p *CompletionProvider) {
		p.client = client
	}
}

// contentBlock is one element of a message's content array.
type contentBlock struct {
	Type string `json:"type"`

	// text
	Text string `json:"text,omitempty"`

	// tool_use
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// tool_result
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
}

// message represents a message in Anthropic's format.
type message struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

// tool declares a callable function.
type tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema"`
}

// messagesRequest is the request format for the messages API.
type messagesRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	System      string    `json:"system,omitempty"`
	Messages    []message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	Tools       []tool    `json:"tools,omitempty"`
}

// messagesResponse is the response format from the messages API.
type messagesResponse struct {
	Content    []contentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Complete generates a completion, possibly requesting tool calls.
func (p *CompletionProvider) Complete(
	ctx context.Context,
	req llm.CompletionRequest,
) (*llm.CompletionResponse, error) {
	messages, system := p.buildMessages(req)

	maxTokens := p.maxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}

	temperature := p.temperature
	if req.Temperature >= 0 {
		temperature = req.Temperature
	}

	msgReq := messagesRequest{
		Model:       req.ModelOr(p.model),
		MaxTokens:   maxTokens,
		System:      system,
		Messages:    messages,
		Temperature: temperature,
	}
	for _, d := range req.Tools {
		schema := d.Parameters
		if schema == nil {
			schema = map[string]any{"type": "object"}
		}
		msgReq.Tools = append(msgReq.Tools, tool{
			Name:        d.Name,
			Description: d.Description,
			InputSchema: schema,
		})
	}

	var msgResp messagesResponse
	if err := p.client.transport.PostJSON(ctx, "/messages", msgReq, &msgResp); err != nil {
		return nil, err
	}

	out := &llm.CompletionResponse{
		FinishReason: msgResp.StopReason,
		Usage: llm.TokenUsage{
			PromptTokens:     msgResp.Usage.InputTokens,
			CompletionTokens: msgResp.Usage.OutputTokens,
			TotalTokens:      msgResp.Usage.InputTokens + msgResp.Usage.OutputTokens,
		},
	}

	var content strings.Builder
	for _, c := range msgResp.Content {
		switch c.Type {
		case "text":
			content.WriteString(c.Text)
		case "tool_use":
			args := c.Input
			if len(args) == 0 {
				args = json.RawMessage("{}")
			}
			out.ToolCalls = append(out.ToolCalls, llm.ToolCall{
				ID:        c.ID,
				Name:      c.Name,
				Arguments: args,
			})
		}
	}
	out.Content = content.String()

	return out, nil
}

// buildMessages converts the request into Anthropic messages format.
// Returns messages and system prompt separately (Anthropic's format).
// Consecutive tool results are folded into a single user message, which is
// how the messages API expects them.
func (p *CompletionProvider) buildMessages(req llm.CompletionRequest) ([]message, string) {
	messages := make([]message, 0, len(req.Messages))
	system := llm.SystemPromptWithContext(req.SystemPrompt, req.Context)

	for _, msg := range req.Messages {
		switch msg.Role {
		case llm.RoleSystem:
			// Anthropic only accepts "user" and "assistant" roles
			system = msg.Content + "\n\n" + system

		case llm.RoleTool:
			block := contentBlock{
				Type:      "tool_result",
				ToolUseID: msg.ToolCallID,
				Content:   msg.Content,
			}
			if n := len(messages); n > 0 && messages[n-1].Role == llm.RoleUser &&
				isToolResults(messages[n-1].Content) {
				messages[n-1].Content = append(messages[n-1].Content, block)
				continue
			}
			messages = append(messages, message{
				Role:    llm.RoleUser,
				Content: []contentBlock{block},
			})

		default:
			var blocks []contentBlock
			if msg.Content != "" {
				blocks = append(blocks, contentBlock{Type: "text", Text: msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				input := tc.Arguments
				if len(input) == 0 {
					input = json.RawMessage("{}")
				}
				blocks = append(blocks, contentBlock{
					Type:  "tool_use",
					ID:    tc.ID,
					Name:  tc.Name,
					Input: input,
				})
			}
			if len(blocks) == 0 {
				blocks = append(blocks, contentBlock{Type: "text", Text: ""})
			}
			messages = append(messages, message{
				Role:    msg.Role,
				Content: blocks,
			})
		}
	}

	return messages, system
}

// isToolResults reports whether every block is a tool result.
func isToolResults(blocks []contentBlock) bool {
	for _, b := range blocks {
		if b.Type != "tool_result" {
			return false
		}
	}
	return len(blocks) > 0
}

// ModelName returns the model name.
func (p *CompletionProvider) ModelName() string {
	return p.model
}

// Ensure CompletionProvider implements the interface.
var _ llm.CompletionProvider = (*CompletionProvider)(nil)
