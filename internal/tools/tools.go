//-------------------------------------------------------------------------
//
// pgEdge Venture Scout
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package tools implements the capabilities agents may invoke while
// researching: web search and article fetch. Both degrade to diagnostic
// strings instead of returning errors so agent reasoning can continue.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pgEdge/venture-scout/internal/llm"
	"github.com/pgEdge/venture-scout/internal/metrics"
)

// Kind identifies one capability. The set is closed.
type Kind string

const (
	// Search returns up to eight result URLs for a query.
	Search Kind = "search"
	// Fetch returns the readable text of a page.
	Fetch Kind = "fetch"
)

// Valid reports whether k is a known capability.
func (k Kind) Valid() bool {
	return k == Search || k == Fetch
}

// Definition returns the function declaration offered to the model.
func (k Kind) Definition() llm.ToolDefinition {
	switch k {
	case Search:
		return llm.ToolDefinition{
			Name: string(Search),
			Description: "Search the web for articles and data. Returns a " +
				"newline-separated list of result URLs.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{
						"type":        "string",
						"description": "The search query",
					},
				},
				"required": []string{"query"},
			},
		}
	case Fetch:
		return llm.ToolDefinition{
			Name: string(Fetch),
			Description: "Fetch a web page and return its main text content, " +
				"truncated to a few thousand characters.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"url": map[string]any{
						"type":        "string",
						"description": "Absolute http(s) URL of the page",
					},
				},
				"required": []string{"url"},
			},
		}
	}
	return llm.ToolDefinition{Name: string(k)}
}

// Definitions returns the declarations for a set of capabilities.
func Definitions(kinds []Kind) []llm.ToolDefinition {
	defs := make([]llm.ToolDefinition, 0, len(kinds))
	for _, k := range kinds {
		defs = append(defs, k.Definition())
	}
	return defs
}

// Toolbox executes capabilities on behalf of agents.
type Toolbox struct {
	searcher *Searcher
	fetcher  *Fetcher
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// ToolboxConfig holds the collaborators for a Toolbox.
type ToolboxConfig struct {
	Searcher *Searcher
	Fetcher  *Fetcher
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
}

// NewToolbox creates a Toolbox.
func NewToolbox(cfg ToolboxConfig) *Toolbox {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Toolbox{
		searcher: cfg.Searcher,
		fetcher:  cfg.Fetcher,
		logger:   logger,
		metrics:  cfg.Metrics,
	}
}

// Execute runs one tool call and renders its result as text for the
// model. It never returns an error: malformed arguments and unknown tools
// produce diagnostics the model can read.
func (t *Toolbox) Execute(ctx context.Context, name string, args json.RawMessage) string {
	switch Kind(name) {
	case Search:
		var in struct {
			Query string `json:"query"`
		}
		if err := json.Unmarshal(args, &in); err != nil || strings.TrimSpace(in.Query) == "" {
			t.metrics.ToolCall(name, metrics.OutcomeFailure)
			return "Invalid search arguments: a non-empty \"query\" is required."
		}
		if t.searcher == nil {
			t.metrics.ToolCall(name, metrics.OutcomeFailure)
			return "Search is not available."
		}
		urls := t.searcher.Search(ctx, in.Query)
		outcome := metrics.OutcomeSuccess
		if IsDiagnostic(urls) {
			outcome = metrics.OutcomeDegraded
		}
		t.metrics.ToolCall(name, outcome)
		return strings.Join(urls, "\n")

	case Fetch:
		var in struct {
			URL string `json:"url"`
		}
		if err := json.Unmarshal(args, &in); err != nil {
			t.metrics.ToolCall(name, metrics.OutcomeFailure)
			return "Invalid fetch arguments: a \"url\" is required."
		}
		if t.fetcher == nil {
			t.metrics.ToolCall(name, metrics.OutcomeFailure)
			return "Fetch is not available."
		}
		text, ok := t.fetcher.FetchText(ctx, in.URL)
		outcome := metrics.OutcomeSuccess
		if !ok {
			outcome = metrics.OutcomeDegraded
		}
		t.metrics.ToolCall(name, outcome)
		return text
	}

	t.logger.Warn("model requested unknown tool", "tool", name)
	t.metrics.ToolCall(name, metrics.OutcomeFailure)
	return fmt.Sprintf("Unknown tool: %s", name)
}
