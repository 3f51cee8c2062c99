//-------------------------------------------------------------------------
//
// pgEdge Venture Scout
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package agent

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/pgEdge/venture-scout/internal/llm"
	"github.com/pgEdge/venture-scout/internal/tools"
)

// MockCompletionProvider implements llm.CompletionProvider for testing.
type MockCompletionProvider struct {
	CompleteFunc func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)
	Requests     []llm.CompletionRequest
}

func (m *MockCompletionProvider) Complete(
	ctx context.Context,
	req llm.CompletionRequest,
) (*llm.CompletionResponse, error) {
	m.Requests = append(m.Requests, req)
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, req)
	}
	return &llm.CompletionResponse{Content: "This is a mock response.", FinishReason: "stop"}, nil
}

func (m *MockCompletionProvider) ModelName() string {
	return "mock-completion-model"
}

// recordingTools implements ToolExecutor and remembers each call.
type recordingTools struct {
	calls []string
}

func (r *recordingTools) Execute(_ context.Context, name string, args json.RawMessage) string {
	r.calls = append(r.calls, name+" "+string(args))
	return "result of " + name
}

func researcher() *Agent {
	return &Agent{
		Role:      "Market Research Specialist",
		Goal:      "Find market data",
		Backstory: "Expert analyst.",
		Tools:     []tools.Kind{tools.Search, tools.Fetch},
		Model:     ModelConfig{Name: "gpt-4o-mini", Temperature: 0.1},
	}
}

func toolCall(id, name, args string) llm.ToolCall {
	return llm.ToolCall{ID: id, Name: name, Arguments: json.RawMessage(args)}
}

func TestRunner_NoTools(t *testing.T) {
	mock := &MockCompletionProvider{}
	r := NewRunner(RunnerConfig{Completion: mock, Tools: &recordingTools{}, MaxTokens: 512})

	task := &Task{
		Name:        "financial_insights",
		Description: "Estimate the initial investment.",
		Agent:       &Agent{Role: "Financial Analyst", Goal: "Provide financial insights"},
	}

	out, err := r.Run(context.Background(), task, "input text")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if out.Content != "This is a mock response." {
		t.Errorf("unexpected content %q", out.Content)
	}
	if len(mock.Requests) != 1 {
		t.Fatalf("expected one completion call, got %d", len(mock.Requests))
	}

	req := mock.Requests[0]
	if len(req.Tools) != 0 {
		t.Error("an agent without tools must not be offered any")
	}
	if req.MaxTokens != 512 {
		t.Errorf("expected max tokens 512, got %d", req.MaxTokens)
	}
	if !strings.Contains(req.SystemPrompt, "Financial Analyst") {
		t.Errorf("system prompt should carry the role: %q", req.SystemPrompt)
	}
	if req.Messages[0].Content != "input text" {
		t.Errorf("unexpected user message %q", req.Messages[0].Content)
	}
}

func TestRunner_UsesAgentModel(t *testing.T) {
	mock := &MockCompletionProvider{}
	r := NewRunner(RunnerConfig{Completion: mock})

	if _, err := r.Run(context.Background(), &Task{Name: "t", Agent: researcher()}, "go"); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	req := mock.Requests[0]
	if req.Model != "gpt-4o-mini" || req.Temperature != 0.1 {
		t.Errorf("expected the agent's model and temperature, got %q %v", req.Model, req.Temperature)
	}
}

func TestRunner_ToolLoop(t *testing.T) {
	round := 0
	mock := &MockCompletionProvider{
		CompleteFunc: func(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			round++
			switch round {
			case 1:
				return &llm.CompletionResponse{ToolCalls: []llm.ToolCall{
					toolCall("c1", "search", `{"query":"telehealth market size"}`),
				}}, nil
			case 2:
				return &llm.CompletionResponse{ToolCalls: []llm.ToolCall{
					toolCall("c2", "fetch", `{"url":"https://a.example"}`),
				}}, nil
			default:
				return &llm.CompletionResponse{Content: "  The market is $10B.  "}, nil
			}
		},
	}
	box := &recordingTools{}
	r := NewRunner(RunnerConfig{Completion: mock, Tools: box})

	out, err := r.Run(context.Background(), &Task{Name: "market_research", Agent: researcher()}, "go")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if out.Content != "The market is $10B." {
		t.Errorf("unexpected content %q", out.Content)
	}
	if out.Rounds != 3 || out.ToolCalls != 2 {
		t.Errorf("expected 3 rounds and 2 tool calls, got %d and %d", out.Rounds, out.ToolCalls)
	}
	if len(box.calls) != 2 {
		t.Fatalf("expected 2 tool executions, got %v", box.calls)
	}

	last := mock.Requests[2]
	if len(last.Tools) != 2 {
		t.Errorf("expected 2 tool definitions, got %d", len(last.Tools))
	}
	// user, assistant(call), tool, assistant(call), tool
	if len(last.Messages) != 5 {
		t.Fatalf("expected 5 messages in final round, got %d", len(last.Messages))
	}
	if last.Messages[2].Role != llm.RoleTool || last.Messages[2].ToolCallID != "c1" {
		t.Errorf("expected tool result for c1, got %+v", last.Messages[2])
	}
	if last.Messages[2].Content != "result of search" {
		t.Errorf("unexpected tool content %q", last.Messages[2].Content)
	}
}

func TestRunner_BlocksRepeatedCalls(t *testing.T) {
	round := 0
	mock := &MockCompletionProvider{
		CompleteFunc: func(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			round++
			if round <= 3 {
				// Same arguments, differently formatted.
				args := `{"query": "ai tutors"}`
				if round == 2 {
					args = `{"query":"ai tutors"}`
				}
				return &llm.CompletionResponse{ToolCalls: []llm.ToolCall{toolCall("c", "search", args)}}, nil
			}
			return &llm.CompletionResponse{Content: "done"}, nil
		},
	}
	box := &recordingTools{}
	r := NewRunner(RunnerConfig{Completion: mock, Tools: box, MaxRepeatedToolCalls: 2})

	if _, err := r.Run(context.Background(), &Task{Name: "t", Agent: researcher()}, "go"); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(box.calls) != 2 {
		t.Errorf("expected the third identical call to be blocked, executed %d", len(box.calls))
	}

	final := mock.Requests[3].Messages
	blocked := final[len(final)-1]
	if !strings.HasPrefix(blocked.Content, "Repeated tool call blocked") {
		t.Errorf("expected blocked diagnostic, got %q", blocked.Content)
	}
}

func TestRunner_RefusesToolsOutsideAgentSet(t *testing.T) {
	round := 0
	mock := &MockCompletionProvider{
		CompleteFunc: func(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			round++
			if round == 1 {
				return &llm.CompletionResponse{ToolCalls: []llm.ToolCall{
					toolCall("x", "fetch", `{"url":"https://a.example"}`),
				}}, nil
			}
			return &llm.CompletionResponse{Content: "strategy"}, nil
		},
	}
	box := &recordingTools{}
	r := NewRunner(RunnerConfig{Completion: mock, Tools: box})

	strategist := &Agent{Role: "Business Strategist", Tools: []tools.Kind{tools.Search}}
	if _, err := r.Run(context.Background(), &Task{Name: "business_strategy", Agent: strategist}, "go"); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(box.calls) != 0 {
		t.Errorf("fetch must not execute for a search-only agent: %v", box.calls)
	}
	msgs := mock.Requests[1].Messages
	if got := msgs[len(msgs)-1].Content; got != "Tool fetch is not available to this agent." {
		t.Errorf("unexpected diagnostic %q", got)
	}
}

func TestRunner_Errors(t *testing.T) {
	backendErr := errors.New("upstream unavailable")

	tests := []struct {
		name    string
		respond func(llm.CompletionRequest) (*llm.CompletionResponse, error)
		wantErr error
	}{
		{
			name: "backend error",
			respond: func(llm.CompletionRequest) (*llm.CompletionResponse, error) {
				return nil, backendErr
			},
			wantErr: backendErr,
		},
		{
			name: "empty output",
			respond: func(llm.CompletionRequest) (*llm.CompletionResponse, error) {
				return &llm.CompletionResponse{Content: "   "}, nil
			},
			wantErr: ErrEmptyOutput,
		},
		{
			name: "endless tool calls",
			respond: func(req llm.CompletionRequest) (*llm.CompletionResponse, error) {
				id := len(req.Messages)
				return &llm.CompletionResponse{ToolCalls: []llm.ToolCall{
					toolCall("c", "search", `{"query":"q`+strings.Repeat("x", id)+`"}`),
				}}, nil
			},
			wantErr: ErrToolRoundsExceeded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &MockCompletionProvider{
				CompleteFunc: func(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
					return tt.respond(req)
				},
			}
			r := NewRunner(RunnerConfig{Completion: mock, Tools: &recordingTools{}, MaxToolRounds: 3})
			_, err := r.Run(context.Background(), &Task{Name: "t", Agent: researcher()}, "go")
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestTask_Input(t *testing.T) {
	market := &Task{Name: "market_research"}
	competitors := &Task{Name: "competitor_analysis"}
	strategy := &Task{
		Name:           "business_strategy",
		Description:    "  Develop a strategy.  ",
		ExpectedOutput: "Strategy recommendations",
		DependsOn:      []*Task{market, competitors},
	}

	input, err := strategy.Input(map[string]string{
		"market_research":     "MARKET OUTPUT",
		"competitor_analysis": "COMPETITOR OUTPUT",
	})
	if err != nil {
		t.Fatalf("Input failed: %v", err)
	}
	if !strings.HasPrefix(input, "Develop a strategy.") {
		t.Errorf("input should start with the description: %q", input)
	}
	mi := strings.Index(input, "MARKET OUTPUT")
	ci := strings.Index(input, "COMPETITOR OUTPUT")
	if mi < 0 || ci < 0 || mi > ci {
		t.Errorf("dependency outputs missing or out of order: %q", input)
	}

	if _, err := strategy.Input(map[string]string{"market_research": "x"}); err == nil {
		t.Error("expected error for missing dependency output")
	}
}

func TestAgent_SystemPrompt(t *testing.T) {
	p := researcher().SystemPrompt()
	for _, want := range []string{"Market Research Specialist", "Find market data", "Expert analyst.", "search, fetch"} {
		if !strings.Contains(p, want) {
			t.Errorf("system prompt missing %q: %q", want, p)
		}
	}
}
