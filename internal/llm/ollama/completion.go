//-------------------------------------------------------------------------
//
// pgEdge Venture Scout
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package ollama

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pgEdge/venture-scout/internal/llm"
)

// CompletionProvider implements the llm.CompletionProvider interface.
type CompletionProvider struct {
	client      *Client
	model       string
	temperature float64
}

// NewCompletionProvider creates a new Ollama completion provider.
func NewCompletionProvider(opts ...CompletionOption) *CompletionProvider {
	p := &CompletionProvider{
		client:      NewClient(),
		model:       defaultChatModel,
		temperature: 0.7,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// CompletionOption configures the completion provider.
type CompletionOption func(*CompletionProvider)

// WithCompletionModel sets the chat model.
func WithCompletionModel(model string) CompletionOption {
	return func(p *CompletionProvider) {
		p.model = model
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

// chatMessage represents a message in Ollama's chat format.
type chatMessage struct {
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	ToolCalls []chatToolCall `json:"tool_calls,omitempty"`
	ToolName  string         `json:"tool_name,omitempty"`
}

// chatToolCall is a function call. Ollama sends arguments as an object
// and does not assign call IDs.
type chatToolCall struct {
	Function struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	} `json:"function"`
}

// chatTool declares a callable function.
type chatTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string         `json:"name"`
		Description string         `json:"description,omitempty"`
		Parameters  map[string]any `json:"parameters,omitempty"`
	} `json:"function"`
}

// chatRequest is the request format for the chat API.
type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Tools    []chatTool    `json:"tools,omitempty"`
	Options  *chatOptions  `json:"options,omitempty"`
}

// chatOptions contains generation options.
type chatOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

// chatResponse is the response format from the chat API.
type chatResponse struct {
	Message struct {
		Role      string         `json:"role"`
		Content   string         `json:"content"`
		ToolCalls []chatToolCall `json:"tool_calls"`
	} `json:"message"`
	Done            bool   `json:"done"`
	DoneReason      string `json:"done_reason"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

// Complete generates a completion, possibly requesting tool calls.
func (p *CompletionProvider) Complete(
	ctx context.Context,
	req llm.CompletionRequest,
) (*llm.CompletionResponse, error) {
	temperature := p.temperature
	if req.Temperature >= 0 {
		temperature = req.Temperature
	}

	chatReq := chatRequest{
		Model:    req.ModelOr(p.model),
		Messages: p.buildMessages(req),
		Stream:   false,
		Options: &chatOptions{
			Temperature: temperature,
			NumPredict:  req.MaxTokens,
		},
	}
	for _, d := range req.Tools {
		var t chatTool
		t.Type = "function"
		t.Function.Name = d.Name
		t.Function.Description = d.Description
		t.Function.Parameters = d.Parameters
		chatReq.Tools = append(chatReq.Tools, t)
	}

	var chatResp chatResponse
	if err := p.client.transport.PostJSON(ctx, "/api/chat", chatReq, &chatResp); err != nil {
		return nil, err
	}

	finishReason := chatResp.DoneReason
	if finishReason == "" {
		finishReason = "stop"
		if !chatResp.Done {
			finishReason = "length"
		}
	}

	out := &llm.CompletionResponse{
		Content:      chatResp.Message.Content,
		FinishReason: finishReason,
		Usage: llm.TokenUsage{
			PromptTokens:     chatResp.PromptEvalCount,
			CompletionTokens: chatResp.EvalCount,
			TotalTokens:      chatResp.PromptEvalCount + chatResp.EvalCount,
		},
	}
	for i, tc := range chatResp.Message.ToolCalls {
		args := tc.Function.Arguments
		if len(args) == 0 || string(args) == "null" {
			args = json.RawMessage("{}")
		}
		out.ToolCalls = append(out.ToolCalls, llm.ToolCall{
			ID:        fmt.Sprintf("call_%d", i),
			Name:      tc.Function.Name,
			Arguments: args,
		})
	}

	return out, nil
}

// buildMessages converts the request into Ollama chat messages. Tool
// results are matched back to their tool name since Ollama has no call IDs.
func (p *CompletionProvider) buildMessages(req llm.CompletionRequest) []chatMessage {
	// Calculate capacity: up to 2 system messages + all conversation messages
	capacity := len(req.Messages)
	if req.SystemPrompt != "" {
		capacity++
	}
	if len(req.Context) > 0 {
		capacity++
	}
	messages := make([]chatMessage, 0, capacity)

	if req.SystemPrompt != "" {
		messages = append(messages, chatMessage{
			Role:    llm.RoleSystem,
			Content: req.SystemPrompt,
		})
	}

	if len(req.Context) > 0 {
		messages = append(messages, chatMessage{
			Role:    llm.RoleSystem,
			Content: llm.FormatContext(req.Context),
		})
	}

	callNames := make(map[string]string)
	for _, msg := range req.Messages {
		cm := chatMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
		for _, tc := range msg.ToolCalls {
			callNames[tc.ID] = tc.Name
			var call chatToolCall
			call.Function.Name = tc.Name
			call.Function.Arguments = tc.Arguments
			cm.ToolCalls = append(cm.ToolCalls, call)
		}
		if msg.Role == llm.RoleTool {
			cm.ToolName = callNames[msg.ToolCallID]
		}
		messages = append(messages, cm)
	}

	return messages
}

// ModelName returns the model name.
func (p *CompletionProvider) ModelName() string {
	return p.model
}

// Ensure CompletionProvider implements the interface.
var _ llm.CompletionProvider = (*CompletionProvider)(nil)
