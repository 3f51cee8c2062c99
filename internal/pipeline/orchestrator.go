//-------------------------------------------------------------------------
//
// pgEdge Venture Scout
//
// Portions copyright (c) 2025, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pgEdge/venture-scout/internal/agent"
	"github.com/pgEdge/venture-scout/internal/metrics"
)

// DefaultTaskTimeout bounds a single task, tool calls included.
const DefaultTaskTimeout = 5 * time.Minute

// Status strings reported at each checkpoint.
var (
	progressInit     = Progress{5, "Initializing analysis pipeline..."}
	progressAgents   = Progress{15, "Creating specialized research agents..."}
	progressTasks    = Progress{25, "Setting up specialized research tasks..."}
	progressAssemble = Progress{35, "Assembling expert crew and initializing analysis..."}
	progressDone     = Progress{100, "Analysis complete!"}

	taskProgress = map[string]Progress{
		TaskMarketResearch:     {45, "Conducting in-depth market research..."},
		TaskCompetitorAnalysis: {55, "Analyzing competitor landscape..."},
		TaskBusinessStrategy:   {65, "Developing business strategy recommendations..."},
		TaskFinancialInsights:  {75, "Compiling financial insights..."},
		TaskFinalReport:        {85, "Generating comprehensive report..."},
	}
)

// TaskRunner executes a single task with its composed input.
type TaskRunner interface {
	RunTask(ctx context.Context, task *agent.Task, input string) (Result, error)
}

// AgentRunner adapts an agent.Runner to TaskRunner.
type AgentRunner struct {
	Runner *agent.Runner
}

// RunTask implements TaskRunner.
func (a AgentRunner) RunTask(ctx context.Context, task *agent.Task, input string) (Result, error) {
	out, err := a.Runner.Run(ctx, task, input)
	if err != nil {
		return nil, err
	}
	return StructuredResult{Raw: out.Content, Value: out}, nil
}

// Orchestrator builds and executes the analysis task graph for a topic.
type Orchestrator struct {
	runner      TaskRunner
	model       agent.ModelConfig
	taskTimeout time.Duration
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

// OrchestratorConfig contains the configuration for creating an orchestrator.
type OrchestratorConfig struct {
	Runner      TaskRunner
	Model       agent.ModelConfig
	TaskTimeout time.Duration
	Logger      *slog.Logger
	Metrics     *metrics.Metrics
}

// NewOrchestrator creates a new pipeline orchestrator.
func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.TaskTimeout
	if timeout <= 0 {
		timeout = DefaultTaskTimeout
	}

	return &Orchestrator{
		runner:      cfg.Runner,
		model:       cfg.Model,
		taskTimeout: timeout,
		logger:      logger,
		metrics:     cfg.Metrics,
	}
}

// Run executes the pipeline for topic with the configured model, adjusted
// by opts, and returns the completed run. The artifact is the final report
// task's output. Any failure aborts the run and is returned as a
// *PipelineError; no partial run is returned.
func (o *Orchestrator) Run(ctx context.Context, topic string, opts Options, progress ProgressFunc) (*Run, error) {
	run, err := o.run(ctx, topic, o.modelFor(opts), progress)
	if err != nil {
		o.metrics.PipelineRun(metrics.OutcomeFailure)
		return nil, err
	}
	o.metrics.PipelineRun(metrics.OutcomeSuccess)
	return run, nil
}

// modelFor applies the non-zero fields of opts to the configured model.
func (o *Orchestrator) modelFor(opts Options) agent.ModelConfig {
	model := o.model
	if opts.Model != "" {
		model.Name = opts.Model
	}
	if opts.Temperature != nil {
		model.Temperature = *opts.Temperature
	}
	return model
}

func (o *Orchestrator) run(ctx context.Context, topic string, model agent.ModelConfig, progress ProgressFunc) (*Run, error) {
	report := func(p Progress) {
		if progress != nil {
			progress(p)
		}
	}

	report(progressInit)
	if strings.TrimSpace(topic) == "" {
		return nil, &PipelineError{Stage: StageSetup, Cause: errors.New("topic is required")}
	}
	if model.Temperature < 0 || model.Temperature > 2 {
		return nil, &PipelineError{Stage: StageSetup, Cause: fmt.Errorf("temperature %v is outside [0, 2]", model.Temperature)}
	}
	if o.runner == nil {
		return nil, &PipelineError{Stage: StageSetup, Cause: errors.New("no task runner configured")}
	}

	run := &Run{
		ID:      uuid.New().String(),
		Topic:   topic,
		Model:   model,
		Inputs:  make(map[string]string),
		Outputs: make(map[string]string),
		Started: time.Now(),
	}
	logger := o.logger.With("run_id", run.ID, "topic", topic, "model", model.Name)
	logger.Info("starting analysis")

	report(progressAgents)
	agents := NewAgents(topic, model)

	report(progressTasks)
	tasks := BuildTasks(topic, agents)

	if err := ValidateOrder(tasks); err != nil {
		return nil, &PipelineError{Stage: StageValidate, Cause: err}
	}
	report(progressAssemble)

	for _, task := range tasks {
		run.Tasks = append(run.Tasks, task.Name)
		if p, ok := taskProgress[task.Name]; ok {
			report(p)
		}

		input, err := task.Input(run.Outputs)
		if err != nil {
			return nil, &PipelineError{Stage: task.Name, Cause: err}
		}
		run.Inputs[task.Name] = input

		out, err := o.runTask(ctx, task, input)
		if err != nil {
			logger.Error("task failed", "task", task.Name, "error", err)
			return nil, &PipelineError{Stage: task.Name, Cause: err}
		}
		run.Outputs[task.Name] = out
	}

	run.Artifact = run.Outputs[TaskFinalReport]
	run.Duration = time.Since(run.Started)
	report(progressDone)

	logger.Info("analysis complete", "duration", run.Duration, "chars", len(run.Artifact))
	return run, nil
}

// runTask executes one task under the task timeout.
func (o *Orchestrator) runTask(ctx context.Context, task *agent.Task, input string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, o.taskTimeout)
	defer cancel()

	start := time.Now()
	res, err := o.runner.RunTask(ctx, task, input)
	o.metrics.TaskDuration(task.Name, time.Since(start))
	if err != nil {
		return "", err
	}
	if res == nil {
		return "", fmt.Errorf("task %q returned no result", task.Name)
	}

	text := res.Text()
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("task %q returned empty output", task.Name)
	}
	return text, nil
}
