//-------------------------------------------------------------------------
//
// pgEdge Venture Scout
//
// Portions copyright (c) 2025, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package pipeline runs the multi-agent analysis pipeline and ties its
// output to per-topic question answering.
package pipeline

import (
	"fmt"
	"time"

	"github.com/pgEdge/venture-scout/internal/agent"
	"github.com/pgEdge/venture-scout/internal/report"
	"github.com/pgEdge/venture-scout/internal/session"
)

// Stage names used in PipelineError when no task is running.
const (
	StageSetup    = "setup"
	StageValidate = "validate"
)

// PipelineError reports the stage at which a pipeline run failed. A run
// that returns a PipelineError produced no artifact.
type PipelineError struct {
	Stage string
	Cause error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline failed at %s: %v", e.Stage, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// Result is the output of a task. It is either a TextResult or a
// StructuredResult; Text renders either as plain text.
type Result interface {
	Text() string
	isResult()
}

// TextResult is plain task output.
type TextResult string

// Text returns the result unchanged.
func (r TextResult) Text() string { return string(r) }

func (TextResult) isResult() {}

// StructuredResult is task output wrapped with extra data.
type StructuredResult struct {
	Raw    string
	Output string
	Value  any
}

// Text prefers Raw, then Output, then the formatted Value.
func (r StructuredResult) Text() string {
	switch {
	case r.Raw != "":
		return r.Raw
	case r.Output != "":
		return r.Output
	case r.Value != nil:
		return fmt.Sprint(r.Value)
	}
	return ""
}

func (StructuredResult) isResult() {}

// Progress is one checkpoint of a pipeline run.
type Progress struct {
	Percent int    `json:"progress"`
	Status  string `json:"status"`
}

// ProgressFunc observes progress checkpoints. It may be nil and must not
// block.
type ProgressFunc func(Progress)

// Run is the record of one completed pipeline run.
type Run struct {
	ID       string
	Topic    string
	Model    agent.ModelConfig
	Tasks    []string
	Inputs   map[string]string
	Outputs  map[string]string
	Artifact string
	Started  time.Time
	Duration time.Duration
}

// Options overrides the configured analysis model for one run. Zero
// fields keep the configuration. Questions on the resulting report reuse
// the same settings.
type Options struct {
	Model       string   `json:"model,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
}

// AnalysisResponse is returned when an analysis completes.
type AnalysisResponse struct {
	RunID        string   `json:"run_id"`
	Topic        string   `json:"topic"`
	Model        string   `json:"model,omitempty"`
	Analysis     string   `json:"analysis"`
	RAGAvailable bool     `json:"rag_available"`
	RAGError     string   `json:"rag_error,omitempty"`
	Suggested    []string `json:"suggested_questions"`
}

// AnalysisDetail is a stored analysis with its sections and insights.
type AnalysisDetail struct {
	Info
	Analysis  string           `json:"analysis"`
	Sections  []report.Section `json:"sections"`
	Insights  report.Insights  `json:"insights"`
	Suggested []string         `json:"suggested_questions"`
}

// Export is a rendered report ready for download.
type Export struct {
	FileName    string
	ContentType string
	Data        []byte
}

// QuestionRequest asks a question about an analyzed topic.
type QuestionRequest struct {
	Question       string `json:"question"`
	IncludeSources bool   `json:"include_sources"`
}

// QuestionResponse is the answer to a QuestionRequest.
type QuestionResponse struct {
	Answer   string   `json:"answer"`
	Fallback bool     `json:"fallback"`
	Sources  []Source `json:"sources,omitempty"`
}

// Source is a report chunk used to ground an answer.
type Source struct {
	Chunk   int     `json:"chunk"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// Info describes a stored analysis.
type Info = session.Info

// Message is one transcript entry.
type Message = session.Message
