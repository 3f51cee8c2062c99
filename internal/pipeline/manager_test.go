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
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pgEdge/venture-scout/internal/config"
	"github.com/pgEdge/venture-scout/internal/llm"
	"github.com/pgEdge/venture-scout/internal/report"
	"github.com/pgEdge/venture-scout/internal/tools"
)

// MockEmbeddingProvider implements llm.EmbeddingProvider for testing. The
// default embedding counts a few keywords so similar texts score higher.
type MockEmbeddingProvider struct {
	EmbedBatchFunc func(ctx context.Context, texts []string) ([][]float32, error)
}

var mockVocabulary = []string{"market", "investment", "risk", "competitor", "strategy", "subscription", "million", "startup"}

func mockVector(text string) []float32 {
	lower := strings.ToLower(text)
	v := make([]float32, len(mockVocabulary)+1)
	for i, w := range mockVocabulary {
		v[i] = float32(strings.Count(lower, w))
	}
	v[len(mockVocabulary)] = 0.01
	return v
}

func (m *MockEmbeddingProvider) Embed(_ context.Context, text string) ([]float32, error) {
	return mockVector(text), nil
}

func (m *MockEmbeddingProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if m.EmbedBatchFunc != nil {
		return m.EmbedBatchFunc(ctx, texts)
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = mockVector(t)
	}
	return out, nil
}

func (m *MockEmbeddingProvider) Dimensions() int   { return len(mockVocabulary) + 1 }
func (m *MockEmbeddingProvider) ModelName() string { return "mock-embedding-model" }

// echoQA answers investment questions with the first context document
// mentioning an initial investment, and anything else with nothing.
func echoQA() *MockCompletionProvider {
	return &MockCompletionProvider{CompleteFunc: func(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
		question := req.Messages[len(req.Messages)-1].Content
		if !strings.Contains(question, "investment") {
			return &llm.CompletionResponse{Content: ""}, nil
		}
		for _, d := range req.Context {
			if strings.Contains(strings.ToLower(d.Content), "initial investment") {
				return &llm.CompletionResponse{Content: "According to the report: " + strings.TrimSpace(d.Content)}, nil
			}
		}
		return &llm.CompletionResponse{Content: ""}, nil
	}}
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.RAG.ChunkSize = 200
	cfg.RAG.ChunkOverlap = 40
	return cfg
}

func newTestManager(t *testing.T, cfg *config.Config, runner TaskRunner, emb llm.EmbeddingProvider) *Manager {
	t.Helper()
	return newTestManagerWithQA(t, cfg, runner, emb, echoQA())
}

func newTestManagerWithQA(t *testing.T, cfg *config.Config, runner TaskRunner, emb llm.EmbeddingProvider, qa llm.CompletionProvider) *Manager {
	t.Helper()
	if runner == nil {
		runner = &scriptedRunner{results: map[string]Result{TaskFinalReport: TextResult(healthcareReport)}}
	}
	if emb == nil {
		emb = &MockEmbeddingProvider{}
	}
	m, err := NewManager(context.Background(), ManagerConfig{
		Config:       cfg,
		Runner:       runner,
		Embedder:     emb,
		QACompletion: qa,
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestNewManager_RequiresConfig(t *testing.T) {
	if _, err := NewManager(context.Background(), ManagerConfig{}); err == nil {
		t.Error("expected error without configuration")
	}
}

func TestManager_AnalyzeAndAsk(t *testing.T) {
	m := newTestManager(t, testConfig(), nil, nil)
	ctx := context.Background()
	topic := "AI in healthcare"

	resp, err := m.Analyze(ctx, topic, Options{}, nil)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if !resp.RAGAvailable || resp.RAGError != "" {
		t.Errorf("expected question answering to be ready, got %+v", resp)
	}
	if resp.Analysis != healthcareReport || resp.RunID == "" {
		t.Errorf("unexpected response %+v", resp)
	}
	if len(resp.Suggested) != 3 {
		t.Errorf("expected 3 suggested questions, got %d", len(resp.Suggested))
	}

	ans, err := m.Ask(ctx, topic, QuestionRequest{Question: resp.Suggested[0], IncludeSources: true})
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if ans.Fallback || !strings.Contains(ans.Answer, "$3 million") {
		t.Errorf("expected the investment figure, got %+v", ans)
	}
	if len(ans.Sources) == 0 {
		t.Error("expected sources")
	}

	miss, err := m.Ask(ctx, topic, QuestionRequest{Question: "Who founded the company?"})
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if miss.Answer != "I couldn't find specific information about that in the analysis." || !miss.Fallback {
		t.Errorf("expected fallback, got %+v", miss)
	}
	if miss.Sources != nil {
		t.Error("sources should be omitted unless requested")
	}

	history, err := m.History(topic)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 4 || history[2].Content != "Who founded the company?" || history[3].Content != miss.Answer {
		t.Errorf("unexpected history %+v", history)
	}

	detail, err := m.Analysis(topic)
	if err != nil {
		t.Fatal(err)
	}
	if !detail.RAGAvailable || detail.Turns != 2 || len(detail.Sections) != len(report.SectionNames) {
		t.Errorf("unexpected detail %+v", detail.Info)
	}
	if detail.Insights.Market.CAGR != 37 {
		t.Errorf("expected CAGR 37, got %v", detail.Insights.Market.CAGR)
	}

	topics := m.Topics()
	if len(topics) != 1 || topics[0].Topic != topic {
		t.Errorf("unexpected topics %+v", topics)
	}
}

func TestManager_Errors(t *testing.T) {
	m := newTestManager(t, testConfig(), nil, nil)
	ctx := context.Background()

	if _, err := m.Ask(ctx, "unknown", QuestionRequest{Question: "q"}); !errors.Is(err, ErrTopicNotFound) {
		t.Errorf("expected ErrTopicNotFound, got %v", err)
	}
	if _, err := m.Ask(ctx, "unknown", QuestionRequest{Question: "  "}); !errors.Is(err, ErrEmptyQuestion) {
		t.Errorf("expected ErrEmptyQuestion, got %v", err)
	}
	if _, err := m.History("unknown"); !errors.Is(err, ErrTopicNotFound) {
		t.Errorf("expected ErrTopicNotFound, got %v", err)
	}
	if _, err := m.Analysis("unknown"); !errors.Is(err, ErrTopicNotFound) {
		t.Errorf("expected ErrTopicNotFound, got %v", err)
	}
	if _, err := m.Export("unknown", report.FormatMarkdown); !errors.Is(err, ErrTopicNotFound) {
		t.Errorf("expected ErrTopicNotFound, got %v", err)
	}
	if err := m.Delete("unknown"); !errors.Is(err, ErrTopicNotFound) {
		t.Errorf("expected ErrTopicNotFound, got %v", err)
	}
}

func TestManager_PipelineFailureKeepsPreviousSession(t *testing.T) {
	runner := &scriptedRunner{results: map[string]Result{TaskFinalReport: TextResult(healthcareReport)}}
	m := newTestManager(t, testConfig(), runner, nil)
	ctx := context.Background()

	if _, err := m.Analyze(ctx, "fintech", Options{}, nil); err != nil {
		t.Fatal(err)
	}

	runner.errs = map[string]error{TaskCompetitorAnalysis: errors.New("rate limited")}
	_, err := m.Analyze(ctx, "fintech", Options{}, nil)
	var pe *PipelineError
	if !errors.As(err, &pe) || pe.Stage != TaskCompetitorAnalysis {
		t.Fatalf("expected PipelineError at %s, got %v", TaskCompetitorAnalysis, err)
	}

	if detail, err := m.Analysis("fintech"); err != nil || detail.Analysis != healthcareReport {
		t.Errorf("earlier analysis should survive a failed run: %v", err)
	}

	if _, err := m.Analyze(ctx, "edtech", Options{}, nil); err == nil {
		t.Fatal("expected failure")
	}
	if _, err := m.Analysis("edtech"); !errors.Is(err, ErrTopicNotFound) {
		t.Error("a failed run must not store an analysis")
	}
}

func TestManager_RAGFailureIsIsolated(t *testing.T) {
	emb := &MockEmbeddingProvider{EmbedBatchFunc: func(context.Context, []string) ([][]float32, error) {
		return nil, errors.New("embedding service down")
	}}
	m := newTestManager(t, testConfig(), nil, emb)
	ctx := context.Background()

	resp, err := m.Analyze(ctx, "fintech", Options{}, nil)
	if err != nil {
		t.Fatalf("indexing failures must not fail the analysis: %v", err)
	}
	if resp.RAGAvailable || !strings.Contains(resp.RAGError, "embedding service down") {
		t.Errorf("expected RAG error in response, got %+v", resp)
	}
	if resp.Analysis != healthcareReport {
		t.Error("analysis should still be returned")
	}

	if _, err := m.Ask(ctx, "fintech", QuestionRequest{Question: "q"}); !errors.Is(err, ErrRAGUnavailable) {
		t.Errorf("expected ErrRAGUnavailable, got %v", err)
	}
	if h, _ := m.History("fintech"); len(h) != 0 {
		t.Error("failed questions must not be recorded")
	}
}

func TestManager_RAGDisabled(t *testing.T) {
	cfg := testConfig()
	disabled := false
	cfg.RAG.Enabled = &disabled
	m := newTestManager(t, cfg, nil, nil)

	if m.RAGEnabled() {
		t.Error("RAG should be disabled")
	}
	resp, err := m.Analyze(context.Background(), "fintech", Options{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if resp.RAGAvailable || resp.RAGError == "" {
		t.Errorf("expected RAG to be reported unavailable, got %+v", resp)
	}
}

func TestManager_Export(t *testing.T) {
	m := newTestManager(t, testConfig(), nil, nil)
	if _, err := m.Analyze(context.Background(), "AI in healthcare", Options{}, nil); err != nil {
		t.Fatal(err)
	}

	md, err := m.Export("AI in healthcare", report.FormatMarkdown)
	if err != nil {
		t.Fatal(err)
	}
	if md.FileName != "AI_in_healthcare_analysis.md" || string(md.Data) != healthcareReport {
		t.Errorf("unexpected markdown export %s", md.FileName)
	}

	js, err := m.Export("AI in healthcare", report.FormatJSON)
	if err != nil {
		t.Fatal(err)
	}
	if js.FileName != "AI_in_healthcare_analysis.json" || js.ContentType != "application/json" {
		t.Errorf("unexpected JSON export %s %s", js.FileName, js.ContentType)
	}
	var doc report.Document
	if err := json.Unmarshal(js.Data, &doc); err != nil {
		t.Fatal(err)
	}
	if doc.Topic != "AI in healthcare" || doc.BusinessInsights.InitialInvestment != "$3 million covers regulatory clearance" {
		t.Errorf("unexpected document %+v", doc)
	}
}

func TestManager_ConcurrentQuestions(t *testing.T) {
	m := newTestManager(t, testConfig(), nil, nil)
	ctx := context.Background()
	for _, topic := range []string{"A", "B"} {
		if _, err := m.Analyze(ctx, topic, Options{}, nil); err != nil {
			t.Fatal(err)
		}
	}

	const perTopic = 10
	var wg sync.WaitGroup
	for _, topic := range []string{"A", "B"} {
		for i := 0; i < perTopic; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := m.Ask(ctx, topic, QuestionRequest{Question: fmt.Sprintf("q%d about %s", i, topic)}); err != nil {
					t.Error(err)
				}
			}()
		}
	}
	wg.Wait()

	for _, topic := range []string{"A", "B"} {
		history, _ := m.History(topic)
		if len(history) != 2*perTopic {
			t.Errorf("%s: expected %d messages, got %d", topic, 2*perTopic, len(history))
		}
		for i := 0; i < len(history); i += 2 {
			if !strings.HasSuffix(history[i].Content, "about "+topic) {
				t.Errorf("%s: foreign question %q in history", topic, history[i].Content)
			}
			if history[i].Role != "user" || history[i+1].Role != "assistant" {
				t.Errorf("%s: turn %d is not a question followed by its answer", topic, i/2)
			}
		}
	}
}

func TestManager_Delete(t *testing.T) {
	m := newTestManager(t, testConfig(), nil, nil)
	if _, err := m.Analyze(context.Background(), "fintech", Options{}, nil); err != nil {
		t.Fatal(err)
	}
	if err := m.Delete("fintech"); err != nil {
		t.Fatal(err)
	}
	if len(m.Topics()) != 0 {
		t.Error("topic should be removed")
	}
}

func TestManager_ReanalyzeDuringQuestion(t *testing.T) {
	const oldReport = "# MARKET ANALYSIS\nOLD REPORT with an initial investment of $1 million.\n"
	const newReport = "# MARKET ANALYSIS\nNEW REPORT with an initial investment of $9 million.\n"

	entered := make(chan struct{})
	release := make(chan struct{})
	var calls int
	var mu sync.Mutex
	qa := &MockCompletionProvider{CompleteFunc: func(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
		mu.Lock()
		calls++
		first := calls == 1
		mu.Unlock()
		if first {
			close(entered)
			<-release
		}
		var sb strings.Builder
		for _, d := range req.Context {
			sb.WriteString(d.Content)
		}
		return &llm.CompletionResponse{Content: "answer grounded in: " + sb.String()}, nil
	}}

	runner := &scriptedRunner{results: map[string]Result{TaskFinalReport: TextResult(oldReport)}}
	m := newTestManagerWithQA(t, testConfig(), runner, nil, qa)
	ctx := context.Background()
	topic := "AI in healthcare"

	if _, err := m.Analyze(ctx, topic, Options{}, nil); err != nil {
		t.Fatal(err)
	}

	askErr := make(chan error, 1)
	go func() {
		_, err := m.Ask(ctx, topic, QuestionRequest{Question: "What is the initial investment?"})
		askErr <- err
	}()
	<-entered

	runner.results = map[string]Result{TaskFinalReport: TextResult(newReport)}
	resp, err := m.Analyze(ctx, topic, Options{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !resp.RAGAvailable {
		t.Fatalf("re-analysis should attach its own index, got %q", resp.RAGError)
	}

	close(release)
	select {
	case err := <-askErr:
		if !errors.Is(err, ErrSessionReplaced) {
			t.Errorf("expected ErrSessionReplaced, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("question did not finish")
	}

	if h, _ := m.History(topic); len(h) != 0 {
		t.Errorf("an answer about the old report must not enter the new transcript: %+v", h)
	}

	ans, err := m.Ask(ctx, topic, QuestionRequest{Question: "What is the initial investment?"})
	if err != nil {
		t.Fatalf("Ask on the new session failed: %v", err)
	}
	if !strings.Contains(ans.Answer, "NEW REPORT") || strings.Contains(ans.Answer, "OLD REPORT") {
		t.Errorf("expected an answer from the new report, got %q", ans.Answer)
	}
	if h, _ := m.History(topic); len(h) != 2 {
		t.Errorf("expected one recorded turn, got %d messages", len(h))
	}
}

func TestManager_TopicsAreExactStrings(t *testing.T) {
	m := newTestManager(t, testConfig(), nil, nil)
	ctx := context.Background()

	for _, topic := range []string{"AI", " AI"} {
		resp, err := m.Analyze(ctx, topic, Options{}, nil)
		if err != nil {
			t.Fatal(err)
		}
		if resp.Topic != topic {
			t.Errorf("topic must be kept verbatim, got %q want %q", resp.Topic, topic)
		}
	}
	if got := len(m.Topics()); got != 2 {
		t.Fatalf("expected 2 distinct sessions, got %d", got)
	}

	if _, err := m.Ask(ctx, " AI", QuestionRequest{Question: "What is the initial investment?"}); err != nil {
		t.Fatal(err)
	}
	if h, _ := m.History(" AI"); len(h) != 2 {
		t.Errorf("expected the turn on \" AI\", got %d messages", len(h))
	}
	if h, _ := m.History("AI"); len(h) != 0 {
		t.Errorf("\"AI\" must be unaffected, got %d messages", len(h))
	}
}

func TestManager_RunModelReachesProviders(t *testing.T) {
	var mu sync.Mutex
	var reqs []llm.CompletionRequest
	completion := &MockCompletionProvider{CompleteFunc: func(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
		mu.Lock()
		reqs = append(reqs, req)
		mu.Unlock()
		return &llm.CompletionResponse{Content: healthcareReport}, nil
	}}
	last := func() llm.CompletionRequest {
		mu.Lock()
		defer mu.Unlock()
		return reqs[len(reqs)-1]
	}

	m, err := NewManager(context.Background(), ManagerConfig{
		Config:     testConfig(),
		Completion: completion,
		Embedder:   &MockEmbeddingProvider{},
		Tools:      tools.NewToolbox(tools.ToolboxConfig{}),
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	defer m.Close()
	ctx := context.Background()

	if _, err := m.Analyze(ctx, "fintech", Options{}, nil); err != nil {
		t.Fatal(err)
	}
	if req := last(); req.Model != "gpt-4o-mini" || req.Temperature != 0.1 {
		t.Errorf("expected the configured model, got %q at %v", req.Model, req.Temperature)
	}

	resp, err := m.Analyze(ctx, "edtech", Options{Model: "gpt-4o", Temperature: ptr(0.3)}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Model != "gpt-4o" {
		t.Errorf("response model = %q, want gpt-4o", resp.Model)
	}
	mu.Lock()
	analysis := append([]llm.CompletionRequest(nil), reqs[len(reqs)-len(allTasks):]...)
	mu.Unlock()
	for _, req := range analysis {
		if req.Model != "gpt-4o" || req.Temperature != 0.3 {
			t.Errorf("analysis request used %q at %v", req.Model, req.Temperature)
		}
	}

	if _, err := m.Ask(ctx, "edtech", QuestionRequest{Question: "What is the initial investment?"}); err != nil {
		t.Fatal(err)
	}
	if req := last(); req.Model != "gpt-4o" || req.Temperature != 0.3 {
		t.Errorf("questions should reuse the run model, got %q at %v", req.Model, req.Temperature)
	}

	// The answered turn is replayed on the next question.
	if _, err := m.Ask(ctx, "edtech", QuestionRequest{Question: "And the risks?"}); err != nil {
		t.Fatal(err)
	}
	if got := len(last().Messages); got != 3 {
		t.Errorf("expected the prior turn plus the question, got %d messages", got)
	}

	if _, err := m.Ask(ctx, "fintech", QuestionRequest{Question: "What is the initial investment?"}); err != nil {
		t.Fatal(err)
	}
	if req := last(); req.Model != "" {
		t.Errorf("a run without overrides should use the configured answering model, got %q", req.Model)
	}
}
