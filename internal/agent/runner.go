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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pgEdge/venture-scout/internal/llm"
	"github.com/pgEdge/venture-scout/internal/metrics"
	"github.com/pgEdge/venture-scout/internal/tools"
)

// Loop defaults.
const (
	DefaultMaxToolRounds        = 8
	DefaultMaxRepeatedToolCalls = 2
)

var (
	// ErrToolRoundsExceeded is returned when the model keeps requesting
	// tools past the round limit.
	ErrToolRoundsExceeded = errors.New("tool loop exceeded max rounds")

	// ErrEmptyOutput is returned when the model finishes without text.
	ErrEmptyOutput = errors.New("model returned no output")
)

// ToolExecutor runs a tool call and renders the result for the model.
// Implementations never fail; problems are reported in the returned text.
type ToolExecutor interface {
	Execute(ctx context.Context, name string, args json.RawMessage) string
}

// Output is the result of running one task.
type Output struct {
	Content   string
	Rounds    int
	ToolCalls int
	Usage     llm.TokenUsage
}

// RunnerConfig holds the dependencies and limits of a Runner.
type RunnerConfig struct {
	Completion           llm.CompletionProvider
	Tools                ToolExecutor
	MaxTokens            int
	MaxToolRounds        int
	MaxRepeatedToolCalls int
	Logger               *slog.Logger
	Metrics              *metrics.Metrics
}

// Runner executes tasks against a completion provider, servicing the
// tool calls the model makes along the way.
type Runner struct {
	completion  llm.CompletionProvider
	tools       ToolExecutor
	maxTokens   int
	maxRounds   int
	maxRepeated int
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

// NewRunner creates a Runner.
func NewRunner(cfg RunnerConfig) *Runner {
	r := &Runner{
		completion:  cfg.Completion,
		tools:       cfg.Tools,
		maxTokens:   cfg.MaxTokens,
		maxRounds:   cfg.MaxToolRounds,
		maxRepeated: cfg.MaxRepeatedToolCalls,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
	}
	if r.maxRounds <= 0 {
		r.maxRounds = DefaultMaxToolRounds
	}
	if r.maxRepeated <= 0 {
		r.maxRepeated = DefaultMaxRepeatedToolCalls
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Run executes task with the given composed input and returns the
// agent's final text. Any backend error aborts the task.
func (r *Runner) Run(ctx context.Context, task *Task, input string) (*Output, error) {
	if task.Agent == nil {
		return nil, fmt.Errorf("task %q has no agent", task.Name)
	}
	a := task.Agent
	logger := r.logger.With("task", task.Name, "agent", a.Role)

	req := llm.CompletionRequest{
		Model:        a.Model.Name,
		SystemPrompt: a.SystemPrompt(),
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: input}},
		MaxTokens:    r.maxTokens,
		Temperature:  a.Model.Temperature,
	}
	if len(a.Tools) > 0 && r.tools != nil {
		req.Tools = tools.Definitions(a.Tools)
	}

	out := &Output{}
	seen := make(map[string]int)

	for round := 0; round < r.maxRounds; round++ {
		out.Rounds = round + 1

		resp, err := r.completion.Complete(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("completion failed: %w", err)
		}
		addUsage(&out.Usage, resp.Usage)

		if len(resp.ToolCalls) == 0 {
			content := strings.TrimSpace(resp.Content)
			if content == "" {
				return nil, ErrEmptyOutput
			}
			out.Content = content
			logger.Debug("task finished", "rounds", out.Rounds, "tool_calls", out.ToolCalls)
			return out, nil
		}

		req.Messages = append(req.Messages, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: append([]llm.ToolCall(nil), resp.ToolCalls...),
		})

		for _, tc := range resp.ToolCalls {
			out.ToolCalls++
			result := r.execute(ctx, logger, a, tc, seen)
			req.Messages = append(req.Messages, llm.Message{
				Role:       llm.RoleTool,
				Content:    result,
				ToolCallID: tc.ID,
			})
		}
	}

	return nil, fmt.Errorf("%w (%d)", ErrToolRoundsExceeded, r.maxRounds)
}

// execute services one tool call, refusing tools outside the agent's set
// and calls repeated with identical arguments past the limit.
func (r *Runner) execute(ctx context.Context, logger *slog.Logger, a *Agent,
	tc llm.ToolCall, seen map[string]int) string {
	kind := tools.Kind(tc.Name)
	if !a.CanUse(kind) || r.tools == nil {
		logger.Warn("agent requested a tool it may not use", "tool", tc.Name)
		r.metrics.ToolCall(tc.Name, metrics.OutcomeBlocked)
		return fmt.Sprintf("Tool %s is not available to this agent.", tc.Name)
	}

	key := toolCallKey(tc)
	seen[key]++
	if seen[key] > r.maxRepeated {
		logger.Info("repeated tool call blocked", "tool", tc.Name)
		r.metrics.ToolCall(tc.Name, metrics.OutcomeBlocked)
		return fmt.Sprintf("Repeated tool call blocked after %d attempt(s); "+
			"use the earlier result or try different arguments.", r.maxRepeated)
	}

	logger.Debug("executing tool", "tool", tc.Name, "args", string(tc.Arguments))
	return r.tools.Execute(ctx, tc.Name, tc.Arguments)
}

// toolCallKey identifies a call by tool name and compacted arguments.
func toolCallKey(tc llm.ToolCall) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, tc.Arguments); err != nil {
		return tc.Name + "|" + strings.TrimSpace(string(tc.Arguments))
	}
	return tc.Name + "|" + buf.String()
}

func addUsage(total *llm.TokenUsage, u llm.TokenUsage) {
	total.PromptTokens += u.PromptTokens
	total.CompletionTokens += u.CompletionTokens
	total.TotalTokens += u.TotalTokens
}
