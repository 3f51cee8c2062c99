//-------------------------------------------------------------------------
//
// pgEdge Venture Scout
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pgEdge/venture-scout/internal/index"
	"github.com/pgEdge/venture-scout/internal/llm"
	"github.com/pgEdge/venture-scout/internal/metrics"
)

// FallbackAnswer is returned whenever a grounded answer cannot be produced.
const FallbackAnswer = "I couldn't find specific information about that in the analysis."

// Retrieval defaults.
const (
	DefaultTopK          = 5
	DefaultAnswerTimeout = 2 * time.Minute
)

// DefaultSystemPrompt instructs the model to answer from the report only.
const DefaultSystemPrompt = `You are a startup analyst answering questions about an analysis report.
Answer using only the report excerpts provided and the conversation so far.
If the excerpts do not contain the answer, reply with an empty message.
Be concise and quote figures exactly as they appear in the report.`

// Turn is one question and its answer.
type Turn struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Model overrides the configured answering model for one session. Zero
// fields keep the configuration.
type Model struct {
	Name        string
	Temperature *float64
}

// Answer is the result of a question.
type Answer struct {
	Text     string
	Fallback bool
	Sources  []index.Match
}

// RetrieverConfig configures a Retriever.
type RetrieverConfig struct {
	Embedder   llm.EmbeddingProvider
	Completion llm.CompletionProvider

	// TopK is the number of chunks retrieved per question.
	TopK int

	// MemoryWindow limits how many prior turns are replayed to the model;
	// 0 replays all of them.
	MemoryWindow int

	Temperature  float64
	MaxTokens    int
	Timeout      time.Duration
	SystemPrompt string
	Logger       *slog.Logger
	Metrics      *metrics.Metrics
}

// Retriever answers questions against a report index.
type Retriever struct {
	embedder     llm.EmbeddingProvider
	completion   llm.CompletionProvider
	topK         int
	memoryWindow int
	temperature  float64
	maxTokens    int
	timeout      time.Duration
	systemPrompt string
	logger       *slog.Logger
	metrics      *metrics.Metrics
}

// NewRetriever creates a Retriever.
func NewRetriever(cfg RetrieverConfig) *Retriever {
	r := &Retriever{
		embedder:     cfg.Embedder,
		completion:   cfg.Completion,
		topK:         cfg.TopK,
		memoryWindow: cfg.MemoryWindow,
		temperature:  cfg.Temperature,
		maxTokens:    cfg.MaxTokens,
		timeout:      cfg.Timeout,
		systemPrompt: cfg.SystemPrompt,
		logger:       cfg.Logger,
		metrics:      cfg.Metrics,
	}
	if r.topK <= 0 {
		r.topK = DefaultTopK
	}
	if r.timeout <= 0 {
		r.timeout = DefaultAnswerTimeout
	}
	if r.systemPrompt == "" {
		r.systemPrompt = DefaultSystemPrompt
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Answer answers question from idx and the prior memory. It never fails:
// retrieval or model errors and empty answers yield FallbackAnswer. The
// returned memory is a new slice holding the prior turns followed by this
// one; memory itself is not modified.
func (r *Retriever) Answer(ctx context.Context, idx *Index, model Model, memory []Turn, question string) (Answer, []Turn) {
	ans, err := r.answer(ctx, idx, model, memory, question)
	if err != nil {
		r.logger.Warn("question answering failed", "error", err)
	}
	if strings.TrimSpace(ans.Text) == "" {
		ans.Text = FallbackAnswer
		ans.Fallback = true
	}

	if ans.Fallback {
		r.metrics.Question(metrics.OutcomeFallback)
	} else {
		r.metrics.Question(metrics.OutcomeAnswered)
	}

	updated := make([]Turn, len(memory), len(memory)+1)
	copy(updated, memory)
	updated = append(updated, Turn{Question: question, Answer: ans.Text})
	return ans, updated
}

func (r *Retriever) answer(ctx context.Context, idx *Index, model Model, memory []Turn, question string) (Answer, error) {
	if idx == nil || idx.Vector == nil {
		return Answer{}, errors.New("no index")
	}
	if strings.TrimSpace(question) == "" {
		return Answer{}, errors.New("empty question")
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	vec, err := r.embedder.Embed(ctx, question)
	if err != nil {
		return Answer{}, fmt.Errorf("failed to embed question: %w", err)
	}

	matches, err := idx.Vector.Search(ctx, index.Query{Text: question, Vector: vec}, r.topK)
	if err != nil {
		return Answer{}, fmt.Errorf("retrieval failed: %w", err)
	}

	temperature := r.temperature
	if model.Temperature != nil {
		temperature = *model.Temperature
	}
	resp, err := r.completion.Complete(ctx, llm.CompletionRequest{
		Model:        model.Name,
		SystemPrompt: r.systemPrompt,
		Messages:     r.buildMessages(memory, question),
		MaxTokens:    r.maxTokens,
		Temperature:  temperature,
		Context:      contextDocuments(matches),
	})
	if err != nil {
		return Answer{Sources: matches}, fmt.Errorf("completion failed: %w", err)
	}

	return Answer{Text: strings.TrimSpace(resp.Content), Sources: matches}, nil
}

// buildMessages replays prior turns oldest first, limited to the memory
// window, then asks the new question.
func (r *Retriever) buildMessages(memory []Turn, question string) []llm.Message {
	replay := memory
	if r.memoryWindow > 0 && len(replay) > r.memoryWindow {
		replay = replay[len(replay)-r.memoryWindow:]
	}

	msgs := make([]llm.Message, 0, len(replay)*2+1)
	for _, t := range replay {
		msgs = append(msgs,
			llm.Message{Role: llm.RoleUser, Content: t.Question},
			llm.Message{Role: llm.RoleAssistant, Content: t.Answer},
		)
	}
	return append(msgs, llm.Message{Role: llm.RoleUser, Content: question})
}

// contextDocuments converts matches to prompt context, keeping their
// similarity order.
func contextDocuments(matches []index.Match) []llm.ContextDocument {
	docs := make([]llm.ContextDocument, len(matches))
	for i, m := range matches {
		docs[i] = llm.ContextDocument{
			Content: m.Text,
			Source:  fmt.Sprintf("report chunk %d", m.Chunk+1),
			Score:   m.Score,
		}
	}
	return docs
}
