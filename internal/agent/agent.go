//-------------------------------------------------------------------------
//
// pgEdge Venture Scout
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package agent models the role-specialized agents and the tasks they
// execute, and drives the tool-calling loop for a single task.
package agent

import (
	"fmt"
	"strings"

	"github.com/pgEdge/venture-scout/internal/tools"
)

// ModelConfig binds an agent to a model of the configured completion
// provider. An empty Name uses the provider's model.
type ModelConfig struct {
	Name        string
	Temperature float64
}

// Agent is a role description bound to a model. Agents are built fresh for
// each pipeline run and are not modified after construction.
type Agent struct {
	Role      string
	Goal      string
	Backstory string
	Tools     []tools.Kind
	Model     ModelConfig
}

// SystemPrompt renders the agent's identity for the model.
func (a *Agent) SystemPrompt() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are a %s.\n", a.Role)
	fmt.Fprintf(&sb, "Your goal: %s\n", a.Goal)
	if a.Backstory != "" {
		fmt.Fprintf(&sb, "Background: %s\n", a.Backstory)
	}
	if len(a.Tools) > 0 {
		names := make([]string, len(a.Tools))
		for i, k := range a.Tools {
			names[i] = string(k)
		}
		fmt.Fprintf(&sb, "You may use these tools: %s. Call them only when they "+
			"help; tool results may be diagnostics rather than data.\n",
			strings.Join(names, ", "))
	}
	return strings.TrimRight(sb.String(), "\n")
}

// CanUse reports whether the agent is permitted to call tool k.
func (a *Agent) CanUse(k tools.Kind) bool {
	for _, t := range a.Tools {
		if t == k {
			return true
		}
	}
	return false
}

// Task is one unit of pipeline work assigned to an agent.
type Task struct {
	Name        string
	Description string
	Agent       *Agent

	// DependsOn lists the tasks whose outputs are appended to this task's
	// input, in this order.
	DependsOn []*Task

	// ExpectedOutput is a generation hint; it is not validated.
	ExpectedOutput string
}

// Input composes the task's effective input: its description, the
// expected output hint and the verbatim outputs of its dependencies in
// declared order. Every dependency must already have an output.
func (t *Task) Input(outputs map[string]string) (string, error) {
	var sb strings.Builder
	sb.WriteString(strings.TrimSpace(t.Description))

	if t.ExpectedOutput != "" {
		sb.WriteString("\n\nExpected output: ")
		sb.WriteString(t.ExpectedOutput)
	}

	if len(t.DependsOn) > 0 {
		sb.WriteString("\n\nContext from previous work:")
	}
	for _, dep := range t.DependsOn {
		out, ok := outputs[dep.Name]
		if !ok {
			return "", fmt.Errorf("task %q depends on %q, which has no output yet",
				t.Name, dep.Name)
		}
		fmt.Fprintf(&sb, "\n\n## Output of %s\n\n%s", dep.Name, out)
	}

	return sb.String(), nil
}
