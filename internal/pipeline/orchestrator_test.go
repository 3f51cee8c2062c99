//-------------------------------------------------------------------------
//
// pgEdge Venture Scout
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pgEdge/venture-scout/internal/agent"
	"github.com/pgEdge/venture-scout/internal/llm"
	"github.com/pgEdge/venture-scout/internal/report"
	"github.com/pgEdge/venture-scout/internal/tools"
)

// MockCompletionProvider implements llm.CompletionProvider for testing.
type MockCompletionProvider struct {
	CompleteFunc func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)
	ModelNameVal string
}

func (m *MockCompletionProvider) Complete(
	ctx context.Context,
	req llm.CompletionRequest,
) (*llm.CompletionResponse, error) {
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, req)
	}
	return &llm.CompletionResponse{Content: "This is a mock response."}, nil
}

func (m *MockCompletionProvider) ModelName() string {
	if m.ModelNameVal != "" {
		return m.ModelNameVal
	}
	return "mock-completion-model"
}

// scriptedRunner returns a canned result per task and records the calls.
type scriptedRunner struct {
	mu      sync.Mutex
	calls   []string
	results map[string]Result
	errs    map[string]error
	delay   time.Duration
}

func (s *scriptedRunner) RunTask(ctx context.Context, task *agent.Task, input string) (Result, error) {
	s.mu.Lock()
	s.calls = append(s.calls, task.Name)
	s.mu.Unlock()

	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := s.errs[task.Name]; err != nil {
		return nil, err
	}
	if r, ok := s.results[task.Name]; ok {
		return r, nil
	}
	return TextResult("output of " + task.Name), nil
}

const healthcareReport = `# MARKET ANALYSIS
AI in healthcare is a $20 billion market growing at a CAGR of 37%.

# COMPETITIVE LANDSCAPE
Incumbents include large imaging vendors and fast-moving startups.

# BUSINESS STRATEGY
Sell to hospital networks with a per-seat subscription.

# FINANCIAL CONSIDERATIONS
An initial investment of $3 million covers regulatory clearance.

# RECOMMENDATIONS
Start with radiology triage.
`

var allTasks = []string{
	TaskMarketResearch,
	TaskCompetitorAnalysis,
	TaskBusinessStrategy,
	TaskFinancialInsights,
	TaskFinalReport,
}

func TestOrchestrator_RunsTasksInDependencyOrder(t *testing.T) {
	runner := &scriptedRunner{results: map[string]Result{
		TaskFinalReport: TextResult(healthcareReport),
	}}
	o := NewOrchestrator(OrchestratorConfig{Runner: runner})

	run, err := o.Run(context.Background(), "AI in healthcare", Options{}, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if strings.Join(runner.calls, ",") != strings.Join(allTasks, ",") {
		t.Errorf("unexpected execution order %v", runner.calls)
	}
	if run.ID == "" || run.Topic != "AI in healthcare" {
		t.Errorf("unexpected run metadata %+v", run)
	}

	// Each task's input carries the verbatim outputs of its dependencies
	// and nothing from tasks it does not depend on.
	deps := map[string][]string{
		TaskMarketResearch:     nil,
		TaskCompetitorAnalysis: {TaskMarketResearch},
		TaskBusinessStrategy:   {TaskMarketResearch, TaskCompetitorAnalysis},
		TaskFinancialInsights:  {TaskMarketResearch, TaskBusinessStrategy},
		TaskFinalReport:        {TaskMarketResearch, TaskCompetitorAnalysis, TaskBusinessStrategy, TaskFinancialInsights},
	}
	for task, want := range deps {
		input := run.Inputs[task]
		last := -1
		for _, dep := range want {
			pos := strings.Index(input, "output of "+dep)
			if pos < 0 {
				t.Errorf("%s input is missing the output of %s", task, dep)
				continue
			}
			if pos < last {
				t.Errorf("%s input has %s out of declared order", task, dep)
			}
			last = pos
		}
		for _, other := range allTasks {
			if other == task || contains(want, other) {
				continue
			}
			if strings.Contains(input, "output of "+other) {
				t.Errorf("%s input unexpectedly contains the output of %s", task, other)
			}
		}
	}

	if !strings.Contains(run.Inputs[TaskMarketResearch], "AI in healthcare") {
		t.Error("task descriptions should mention the topic")
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func TestOrchestrator_HealthcareReportSections(t *testing.T) {
	runner := &scriptedRunner{results: map[string]Result{
		TaskFinalReport: StructuredResult{Raw: healthcareReport},
	}}
	o := NewOrchestrator(OrchestratorConfig{Runner: runner})

	run, err := o.Run(context.Background(), "AI in healthcare", Options{}, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if run.Artifact != healthcareReport {
		t.Errorf("artifact should be the final report output verbatim")
	}
	for _, name := range report.SectionNames {
		if !strings.Contains(run.Artifact, "# "+name) {
			t.Errorf("artifact missing section %q", name)
		}
	}
}

func TestOrchestrator_Progress(t *testing.T) {
	var got []Progress
	o := NewOrchestrator(OrchestratorConfig{Runner: &scriptedRunner{}})

	if _, err := o.Run(context.Background(), "fintech", Options{}, func(p Progress) { got = append(got, p) }); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	want := []int{5, 15, 25, 35, 45, 55, 65, 75, 85, 100}
	if len(got) != len(want) {
		t.Fatalf("expected %d checkpoints, got %d", len(want), len(got))
	}
	for i, p := range got {
		if p.Percent != want[i] {
			t.Errorf("checkpoint %d = %d, want %d", i, p.Percent, want[i])
		}
		if p.Status == "" {
			t.Errorf("checkpoint %d has no status", i)
		}
	}
	if got[len(got)-1].Status != "Analysis complete!" {
		t.Errorf("unexpected final status %q", got[len(got)-1].Status)
	}
}

func TestOrchestrator_Failures(t *testing.T) {
	backendErr := errors.New("model backend unavailable")

	tests := []struct {
		name      string
		topic     string
		opts      Options
		runner    *scriptedRunner
		timeout   time.Duration
		wantStage string
		wantCause error
		wantCalls int
	}{
		{
			name:      "backend error aborts the run",
			topic:     "fintech",
			runner:    &scriptedRunner{errs: map[string]error{TaskBusinessStrategy: backendErr}},
			wantStage: TaskBusinessStrategy,
			wantCause: backendErr,
			wantCalls: 3,
		},
		{
			name:      "empty output",
			topic:     "fintech",
			runner:    &scriptedRunner{results: map[string]Result{TaskMarketResearch: TextResult("  ")}},
			wantStage: TaskMarketResearch,
			wantCalls: 1,
		},
		{
			name:      "nil result",
			topic:     "fintech",
			runner:    &scriptedRunner{results: map[string]Result{TaskFinalReport: nil}},
			wantStage: TaskFinalReport,
			wantCalls: 5,
		},
		{
			name:      "task timeout",
			topic:     "fintech",
			runner:    &scriptedRunner{delay: time.Second},
			timeout:   20 * time.Millisecond,
			wantStage: TaskMarketResearch,
			wantCause: context.DeadlineExceeded,
			wantCalls: 1,
		},
		{
			name:      "empty topic",
			topic:     " ",
			runner:    &scriptedRunner{},
			wantStage: StageSetup,
		},
		{
			name:      "temperature out of range",
			topic:     "fintech",
			opts:      Options{Temperature: ptr(2.5)},
			runner:    &scriptedRunner{},
			wantStage: StageSetup,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := NewOrchestrator(OrchestratorConfig{Runner: tt.runner, TaskTimeout: tt.timeout})

			run, err := o.Run(context.Background(), tt.topic, tt.opts, nil)
			if run != nil {
				t.Error("a failed run must not return a partial result")
			}
			var pe *PipelineError
			if !errors.As(err, &pe) {
				t.Fatalf("expected *PipelineError, got %v", err)
			}
			if pe.Stage != tt.wantStage {
				t.Errorf("Stage = %q, want %q", pe.Stage, tt.wantStage)
			}
			if tt.wantCause != nil && !errors.Is(err, tt.wantCause) {
				t.Errorf("expected %v in chain, got %v", tt.wantCause, err)
			}
			if len(tt.runner.calls) != tt.wantCalls {
				t.Errorf("expected %d task calls, got %d", tt.wantCalls, len(tt.runner.calls))
			}
		})
	}
}

func TestOrchestrator_WithAgentRunner(t *testing.T) {
	var mu sync.Mutex
	offered := map[string]int{}

	mock := &MockCompletionProvider{CompleteFunc: func(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
		mu.Lock()
		role := strings.SplitN(req.SystemPrompt, "\n", 2)[0]
		offered[role] = len(req.Tools)
		mu.Unlock()
		if strings.Contains(req.Messages[0].Content, "Create a comprehensive startup analysis report") {
			return &llm.CompletionResponse{Content: healthcareReport}, nil
		}
		return &llm.CompletionResponse{Content: "findings"}, nil
	}}
	runner := agent.NewRunner(agent.RunnerConfig{Completion: mock, Tools: tools.NewToolbox(tools.ToolboxConfig{})})
	o := NewOrchestrator(OrchestratorConfig{Runner: AgentRunner{Runner: runner}})

	run, err := o.Run(context.Background(), "AI in healthcare", Options{}, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !strings.Contains(run.Artifact, "# RECOMMENDATIONS") {
		t.Errorf("unexpected artifact %q", run.Artifact)
	}
	if len(offered) == 0 {
		t.Fatal("no completions recorded")
	}
	for role, n := range offered {
		if strings.Contains(role, "Financial Analyst") && n != 0 {
			t.Errorf("financial analyst should not be offered tools, got %d", n)
		}
		if strings.Contains(role, "Market Research") && n != 2 {
			t.Errorf("market researcher should be offered 2 tools, got %d", n)
		}
	}
}

func ptr[T any](v T) *T { return &v }

func TestOrchestrator_ModelOptions(t *testing.T) {
	tests := []struct {
		name      string
		opts      Options
		wantModel string
		wantTemp  float64
	}{
		{name: "configured model", wantModel: "gpt-4o-mini", wantTemp: 0.1},
		{name: "model override", opts: Options{Model: "gpt-4o"}, wantModel: "gpt-4o", wantTemp: 0.1},
		{name: "temperature override", opts: Options{Temperature: ptr(0.0)}, wantModel: "gpt-4o-mini", wantTemp: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var mu sync.Mutex
			var reqs []llm.CompletionRequest
			mock := &MockCompletionProvider{CompleteFunc: func(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
				mu.Lock()
				reqs = append(reqs, req)
				mu.Unlock()
				return &llm.CompletionResponse{Content: healthcareReport}, nil
			}}
			runner := agent.NewRunner(agent.RunnerConfig{Completion: mock})
			o := NewOrchestrator(OrchestratorConfig{
				Runner: AgentRunner{Runner: runner},
				Model:  agent.ModelConfig{Name: "gpt-4o-mini", Temperature: 0.1},
			})

			run, err := o.Run(context.Background(), "AI in healthcare", tt.opts, nil)
			if err != nil {
				t.Fatalf("Run failed: %v", err)
			}
			if run.Model.Name != tt.wantModel {
				t.Errorf("run model = %q, want %q", run.Model.Name, tt.wantModel)
			}
			if len(reqs) != len(allTasks) {
				t.Fatalf("expected %d completions, got %d", len(allTasks), len(reqs))
			}
			for _, req := range reqs {
				if req.Model != tt.wantModel || req.Temperature != tt.wantTemp {
					t.Errorf("request used %q at %v, want %q at %v", req.Model, req.Temperature, tt.wantModel, tt.wantTemp)
				}
			}
		})
	}
}

func TestValidateOrder(t *testing.T) {
	a := &agent.Agent{Role: "r"}
	mk := func(name string, deps ...*agent.Task) *agent.Task {
		return &agent.Task{Name: name, Agent: a, DependsOn: deps}
	}

	t.Run("pipeline graph is valid", func(t *testing.T) {
		tasks := BuildTasks("x", NewAgents("x", agent.ModelConfig{}))
		if err := ValidateOrder(tasks); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("cycle", func(t *testing.T) {
		x := mk("x")
		y := mk("y", x)
		x.DependsOn = []*agent.Task{y}
		if err := ValidateOrder([]*agent.Task{x, y}); !errors.Is(err, ErrCycle) {
			t.Errorf("expected ErrCycle, got %v", err)
		}
	})

	tests := []struct {
		name  string
		tasks func() []*agent.Task
	}{
		{
			name: "dependency after dependent",
			tasks: func() []*agent.Task {
				x := mk("x")
				return []*agent.Task{mk("y", x), x}
			},
		},
		{
			name: "unknown dependency",
			tasks: func() []*agent.Task {
				return []*agent.Task{mk("y", mk("ghost"))}
			},
		},
		{
			name: "duplicate names",
			tasks: func() []*agent.Task {
				return []*agent.Task{mk("x"), mk("x")}
			},
		},
		{
			name: "nil task",
			tasks: func() []*agent.Task {
				return []*agent.Task{mk("x"), nil}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidateOrder(tt.tasks()); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestBuildTasks_Topology(t *testing.T) {
	agents := NewAgents("edtech", agent.ModelConfig{Name: "m"})
	tasks := BuildTasks("edtech", agents)

	if len(tasks) != 5 {
		t.Fatalf("expected 5 tasks, got %d", len(tasks))
	}
	byName := map[string]*agent.Task{}
	for i, task := range tasks {
		if task.Name != allTasks[i] {
			t.Errorf("task %d = %s, want %s", i, task.Name, allTasks[i])
		}
		byName[task.Name] = task
	}

	if byName[TaskFinalReport].Agent != agents.BusinessStrategist ||
		byName[TaskBusinessStrategy].Agent != agents.BusinessStrategist {
		t.Error("business strategist should own the strategy and final report tasks")
	}
	if len(agents.FinancialAnalyst.Tools) != 0 {
		t.Error("financial analyst should have no tools")
	}
	if agents.BusinessStrategist.CanUse(tools.Fetch) || !agents.BusinessStrategist.CanUse(tools.Search) {
		t.Error("business strategist should have search only")
	}
	for _, name := range report.SectionNames {
		if !strings.Contains(byName[TaskFinalReport].Description, name) {
			t.Errorf("final report description should require section %q", name)
		}
	}
}

func TestResult_Text(t *testing.T) {
	tests := []struct {
		name string
		r    Result
		want string
	}{
		{"text", TextResult("plain"), "plain"},
		{"raw wins", StructuredResult{Raw: "raw", Output: "out", Value: 1}, "raw"},
		{"output next", StructuredResult{Output: "out", Value: 1}, "out"},
		{"value last", StructuredResult{Value: 42}, "42"},
		{"empty", StructuredResult{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.r.Text(); got != tt.want {
				t.Errorf("Text() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPipelineError(t *testing.T) {
	cause := fmt.Errorf("wrapped: %w", context.Canceled)
	err := error(&PipelineError{Stage: TaskFinalReport, Cause: cause})

	if !errors.Is(err, context.Canceled) {
		t.Error("PipelineError should unwrap to its cause")
	}
	if !strings.Contains(err.Error(), TaskFinalReport) {
		t.Errorf("error should name the stage: %v", err)
	}
}
