//-------------------------------------------------------------------------
//
// pgEdge Venture Scout
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package metrics defines the Prometheus collectors exported by the
// service. A nil *Metrics is valid and records nothing, so components can
// be constructed without instrumentation in tests.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "venture_scout"

// Outcome label values.
const (
	OutcomeSuccess  = "success"
	OutcomeFailure  = "failure"
	OutcomeAnswered = "answered"
	OutcomeFallback = "fallback"
	OutcomeDegraded = "degraded"
	OutcomeBlocked  = "blocked"
)

// Metrics holds the service collectors and the registry they are
// registered with.
type Metrics struct {
	registry *prometheus.Registry

	pipelineRuns  *prometheus.CounterVec
	taskDuration  *prometheus.HistogramVec
	toolCalls     *prometheus.CounterVec
	questions     *prometheus.CounterVec
	ragSetups     *prometheus.CounterVec
	activeTopics  prometheus.Gauge
	embedDuration prometheus.Histogram
}

// New creates the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		pipelineRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_runs_total",
			Help:      "Analysis pipeline runs by final status.",
		}, []string{"status"}),
		taskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_duration_seconds",
			Help:      "Wall time of each pipeline task.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"task"}),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Agent tool invocations by tool and outcome.",
		}, []string{"tool", "outcome"}),
		questions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "questions_total",
			Help:      "Questions answered over analyses, by outcome.",
		}, []string{"outcome"}),
		ragSetups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rag_setups_total",
			Help:      "Report index builds by outcome.",
		}, []string{"outcome"}),
		activeTopics: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_topics",
			Help:      "Topics currently held in the session registry.",
		}),
		embedDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "embed_batch_duration_seconds",
			Help:      "Latency of embedding batch calls.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		m.pipelineRuns,
		m.taskDuration,
		m.toolCalls,
		m.questions,
		m.ragSetups,
		m.activeTopics,
		m.embedDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// PipelineRun records the final status of a pipeline run.
func (m *Metrics) PipelineRun(status string) {
	if m == nil {
		return
	}
	m.pipelineRuns.WithLabelValues(status).Inc()
}

// TaskDuration records how long one task took.
func (m *Metrics) TaskDuration(task string, d time.Duration) {
	if m == nil {
		return
	}
	m.taskDuration.WithLabelValues(task).Observe(d.Seconds())
}

// ToolCall records one tool invocation.
func (m *Metrics) ToolCall(tool, outcome string) {
	if m == nil {
		return
	}
	m.toolCalls.WithLabelValues(tool, outcome).Inc()
}

// Question records one Q&A turn.
func (m *Metrics) Question(outcome string) {
	if m == nil {
		return
	}
	m.questions.WithLabelValues(outcome).Inc()
}

// RAGSetup records one index build.
func (m *Metrics) RAGSetup(outcome string) {
	if m == nil {
		return
	}
	m.ragSetups.WithLabelValues(outcome).Inc()
}

// SetActiveTopics sets the session gauge.
func (m *Metrics) SetActiveTopics(n int) {
	if m == nil {
		return
	}
	m.activeTopics.Set(float64(n))
}

// EmbedDuration records the latency of one embedding batch.
func (m *Metrics) EmbedDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.embedDuration.Observe(d.Seconds())
}
