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
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/time/rate"

	"github.com/pgEdge/venture-scout/internal/agent"
	"github.com/pgEdge/venture-scout/internal/config"
	"github.com/pgEdge/venture-scout/internal/database"
	"github.com/pgEdge/venture-scout/internal/llm"
	"github.com/pgEdge/venture-scout/internal/llm/factory"
	"github.com/pgEdge/venture-scout/internal/metrics"
	"github.com/pgEdge/venture-scout/internal/rag"
	"github.com/pgEdge/venture-scout/internal/report"
	"github.com/pgEdge/venture-scout/internal/session"
	"github.com/pgEdge/venture-scout/internal/tools"
)

// Errors returned by Manager lookups.
var (
	ErrTopicNotFound   = session.ErrTopicNotFound
	ErrRAGUnavailable  = session.ErrRAGUnavailable
	ErrEmptyQuestion   = session.ErrEmptyQuestion
	ErrSessionReplaced = session.ErrSessionReplaced
)

// errRAGDisabled is reported in AnalysisResponse.RAGError when question
// answering is switched off.
var errRAGDisabled = errors.New("question answering is disabled")

// Manager owns the analysis pipeline, the question answering stack and
// the per-topic sessions.
type Manager struct {
	config       *config.Config
	orchestrator *Orchestrator
	indexer      *rag.Indexer
	retriever    *rag.Retriever
	registry     *session.Registry
	pool         *database.Pool
	logger       *slog.Logger
	metrics      *metrics.Metrics
}

// ManagerConfig contains configuration for creating a Manager. Providers
// left nil are built from Config.
type ManagerConfig struct {
	Config  *config.Config
	Logger  *slog.Logger
	Metrics *metrics.Metrics

	// Completion runs the analysis agents.
	Completion llm.CompletionProvider
	// QACompletion answers questions; defaults to a provider for
	// rag.rag_llm.
	QACompletion llm.CompletionProvider
	Embedder     llm.EmbeddingProvider
	Tools        agent.ToolExecutor

	// Runner replaces the agent runner entirely.
	Runner TaskRunner
}

// NewManager creates a Manager from configuration.
func NewManager(ctx context.Context, cfg ManagerConfig) (*Manager, error) {
	if cfg.Config == nil {
		return nil, errors.New("configuration is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	m := &Manager{
		config:   cfg.Config,
		logger:   logger,
		metrics:  cfg.Metrics,
		registry: session.NewRegistry(session.Config{MaxTopics: cfg.Config.Sessions.MaxTopics, Logger: logger}),
	}

	keys := &lazyKeys{cfg: cfg.Config}

	runner := cfg.Runner
	if runner == nil {
		completion := cfg.Completion
		if completion == nil {
			apiKeys, err := keys.load()
			if err != nil {
				return nil, err
			}
			completion, err = factory.NewCompletionProvider(cfg.Config.Analysis.LLM, cfg.Config.Analysis.MaxTokens, apiKeys)
			if err != nil {
				return nil, fmt.Errorf("failed to create analysis provider: %w", err)
			}
		}

		toolbox := cfg.Tools
		if toolbox == nil {
			tb, err := m.newToolbox(keys)
			if err != nil {
				return nil, err
			}
			toolbox = tb
		}

		runner = AgentRunner{Runner: agent.NewRunner(agent.RunnerConfig{
			Completion:           completion,
			Tools:                toolbox,
			MaxTokens:            cfg.Config.Analysis.MaxTokens,
			MaxToolRounds:        cfg.Config.Analysis.MaxToolRounds,
			MaxRepeatedToolCalls: cfg.Config.Analysis.MaxRepeatedToolCalls,
			Logger:               logger.With("component", "agent"),
			Metrics:              cfg.Metrics,
		})}
	}

	m.orchestrator = NewOrchestrator(OrchestratorConfig{
		Runner: runner,
		Model: agent.ModelConfig{
			Name:        cfg.Config.Analysis.LLM.Model,
			Temperature: cfg.Config.Analysis.Temperature,
		},
		TaskTimeout: cfg.Config.Analysis.TaskTimeout,
		Logger:      logger.With("component", "orchestrator"),
		Metrics:     cfg.Metrics,
	})

	if cfg.Config.RAG.IsEnabled() {
		if err := m.setupRAG(ctx, cfg, keys); err != nil {
			m.Close()
			return nil, err
		}
	}

	logger.Info("pipeline manager ready",
		"analysis_provider", cfg.Config.Analysis.LLM.Provider,
		"rag_enabled", cfg.Config.RAG.IsEnabled(),
		"vector_store", cfg.Config.RAG.VectorStore.Type,
	)
	return m, nil
}

// lazyKeys loads API keys on first use, so fully injected managers never
// touch key files.
type lazyKeys struct {
	cfg  *config.Config
	keys *config.LoadedKeys
}

func (k *lazyKeys) load() (*config.LoadedKeys, error) {
	if k.keys != nil {
		return k.keys, nil
	}
	keys, err := config.NewAPIKeyLoader(k.cfg.APIKeys).LoadRequiredKeys(k.cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load API keys: %w", err)
	}
	k.keys = keys
	return keys, nil
}

// newToolbox builds the search and fetch tools from the tools section.
func (m *Manager) newToolbox(keys *lazyKeys) (*tools.Toolbox, error) {
	tc := m.config.Tools

	var apiKey string
	switch strings.ToLower(tc.SearchProvider) {
	case tools.ProviderSerper, tools.ProviderBrave:
		loaded, err := keys.load()
		if err != nil {
			return nil, err
		}
		apiKey = loaded.Serper
		if strings.ToLower(tc.SearchProvider) == tools.ProviderBrave {
			apiKey = loaded.Brave
		}
	}

	var limiter *rate.Limiter
	if tc.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(tc.RequestsPerSecond), 1)
	}

	client := &http.Client{Timeout: tc.FetchTimeout}
	discoverer, err := tools.NewDiscoverer(tc.SearchProvider, apiKey, tc.UserAgent, client)
	if err != nil {
		return nil, fmt.Errorf("failed to create search provider: %w", err)
	}

	toolLogger := m.logger.With("component", "tools")
	return tools.NewToolbox(tools.ToolboxConfig{
		Searcher: tools.NewSearcher(discoverer, limiter, tc.MaxResults, toolLogger),
		Fetcher: tools.NewFetcher(tools.FetcherConfig{
			Client:    client,
			Limiter:   limiter,
			UserAgent: tc.UserAgent,
			Timeout:   tc.FetchTimeout,
			MaxChars:  tc.FetchMaxChars,
			Logger:    toolLogger,
		}),
		Logger:  toolLogger,
		Metrics: m.metrics,
	}), nil
}

// setupRAG creates the indexer and retriever and, for pgvector, the
// database pool and chunk table.
func (m *Manager) setupRAG(ctx context.Context, cfg ManagerConfig, keys *lazyKeys) error {
	rc := m.config.RAG

	embedder := cfg.Embedder
	if embedder == nil {
		apiKeys, err := keys.load()
		if err != nil {
			return err
		}
		embedder, err = factory.NewEmbeddingProvider(rc.EmbeddingLLM, apiKeys)
		if err != nil {
			return fmt.Errorf("failed to create embedding provider: %w", err)
		}
	}

	qa := cfg.QACompletion
	if qa == nil {
		qa = cfg.Completion
	}
	if qa == nil {
		apiKeys, err := keys.load()
		if err != nil {
			return err
		}
		qa, err = factory.NewCompletionProvider(rc.RAGLLM, 0, apiKeys)
		if err != nil {
			return fmt.Errorf("failed to create question answering provider: %w", err)
		}
	}

	var store rag.VectorStore = rag.MemoryStore{}
	if rc.VectorStore.Type == config.VectorStorePGVector {
		pool, err := database.NewPool(ctx, rc.VectorStore.Database)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		m.pool = pool
		s, err := database.NewStore(ctx, pool, rc.VectorStore.Database.Table, m.logger.With("component", "database"))
		if err != nil {
			return err
		}
		store = rag.PGVectorStore{Store: s}
	}

	ragLogger := m.logger.With("component", "rag")
	indexer, err := rag.NewIndexer(rag.IndexerConfig{
		Embedder:         embedder,
		Store:            store,
		ChunkSize:        rc.ChunkSize,
		ChunkOverlap:     rc.ChunkOverlap,
		EmbedBatchSize:   rc.EmbedBatchSize,
		EmbedConcurrency: rc.EmbedConcurrency,
		Hybrid:           rc.HybridEnabled,
		Logger:           ragLogger,
		Metrics:          m.metrics,
	})
	if err != nil {
		return fmt.Errorf("failed to create indexer: %w", err)
	}
	m.indexer = indexer

	temperature := m.config.Analysis.Temperature
	if rc.Temperature != nil {
		temperature = *rc.Temperature
	}
	m.retriever = rag.NewRetriever(rag.RetrieverConfig{
		Embedder:     embedder,
		Completion:   qa,
		TopK:         rc.TopK,
		MemoryWindow: rc.MemoryWindow,
		Temperature:  temperature,
		Timeout:      rc.AnswerTimeout,
		Logger:       ragLogger,
		Metrics:      m.metrics,
	})
	return nil
}

// Analyze runs the pipeline for topic, stores the report and prepares
// question answering over it. opts adjusts the configured model for this
// run and for questions on its report. A pipeline failure is returned as
// a *PipelineError and leaves any earlier session for topic untouched. An
// indexing failure does not fail the analysis; it is reported in the
// response instead.
func (m *Manager) Analyze(ctx context.Context, topic string, opts Options, progress ProgressFunc) (*AnalysisResponse, error) {
	run, err := m.orchestrator.Run(ctx, topic, opts, progress)
	if err != nil {
		return nil, err
	}

	sess := m.registry.Put(topic, run.Artifact)
	resp := &AnalysisResponse{
		RunID:     run.ID,
		Topic:     topic,
		Model:     run.Model.Name,
		Analysis:  run.Artifact,
		Suggested: report.SuggestedQuestions(topic),
	}

	if err := m.prepareRAG(ctx, sess, m.answerModel(opts)); err != nil {
		resp.RAGError = err.Error()
	} else {
		resp.RAGAvailable = true
	}

	m.metrics.SetActiveTopics(m.registry.Len())
	return resp, nil
}

// answerModel returns the model questions on a run's report use. A model
// name override only carries over when questions are answered by the
// analysis backend.
func (m *Manager) answerModel(opts Options) rag.Model {
	qa := rag.Model{Temperature: opts.Temperature}
	provider := m.config.RAG.RAGLLM.Provider
	if provider == "" || strings.EqualFold(provider, m.config.Analysis.LLM.Provider) {
		qa.Name = opts.Model
	}
	return qa
}

// prepareRAG indexes the session's report and attaches the index to that
// session. If the topic was re-analyzed meanwhile the index is discarded.
func (m *Manager) prepareRAG(ctx context.Context, sess *session.Session, model rag.Model) error {
	if m.indexer == nil {
		return errRAGDisabled
	}
	topic := sess.Topic()

	if err := sess.SetModel(model); err != nil {
		return err
	}
	idx, err := m.indexer.BuildIndex(ctx, sess.Artifact())
	if err != nil {
		m.logger.Warn("question answering unavailable", "topic", topic, "error", err)
		m.metrics.RAGSetup(metrics.OutcomeFailure)
		return err
	}
	if err := sess.AttachRAG(idx, nil); err != nil {
		_ = idx.Close(ctx)
		m.metrics.RAGSetup(metrics.OutcomeFailure)
		return err
	}

	m.metrics.RAGSetup(metrics.OutcomeSuccess)
	m.logger.Debug("question answering ready", "topic", topic, "chunks", idx.Len())
	return nil
}

// Ask answers a question about an analyzed topic. Questions on the same
// topic are answered one at a time; other topics are not blocked. If the
// topic is re-analyzed while the answer is generated, nothing is recorded
// and ErrSessionReplaced is returned.
func (m *Manager) Ask(ctx context.Context, topic string, req QuestionRequest) (*QuestionResponse, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}

	var resp *QuestionResponse
	err := m.registry.WithTopic(topic, func(sess *session.Session) error {
		idx, err := sess.Index()
		if err != nil {
			return err
		}

		ans, memory := m.retriever.Answer(ctx, idx, sess.Model(), sess.Memory(), question)
		if err := sess.RecordTurn(memory); err != nil {
			return err
		}

		resp = &QuestionResponse{Answer: ans.Text, Fallback: ans.Fallback}
		if req.IncludeSources {
			resp.Sources = make([]Source, len(ans.Sources))
			for i, s := range ans.Sources {
				resp.Sources[i] = Source{Chunk: s.Chunk, Content: s.Text, Score: s.Score}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// Topics lists stored analyses.
func (m *Manager) Topics() []Info {
	return m.registry.Topics()
}

// Analysis returns the stored report for topic with its sections and
// extracted insights.
func (m *Manager) Analysis(topic string) (*AnalysisDetail, error) {
	sess, err := m.registry.Session(topic)
	if err != nil {
		return nil, err
	}
	artifact := sess.Artifact()
	return &AnalysisDetail{
		Info:      sess.Info(),
		Analysis:  artifact,
		Sections:  report.Sections(artifact),
		Insights:  report.Extract(artifact),
		Suggested: report.SuggestedQuestions(topic),
	}, nil
}

// History returns the question transcript of topic.
func (m *Manager) History(topic string) ([]Message, error) {
	sess, err := m.registry.Session(topic)
	if err != nil {
		return nil, err
	}
	return sess.History(), nil
}

// Export renders the report of topic in the requested format.
func (m *Manager) Export(topic string, format report.Format) (*Export, error) {
	artifact, ok := m.registry.Artifact(topic)
	if !ok {
		return nil, ErrTopicNotFound
	}
	data, err := report.Render(topic, artifact, format)
	if err != nil {
		return nil, err
	}
	return &Export{
		FileName:    report.FileName(topic, format),
		ContentType: format.ContentType(),
		Data:        data,
	}, nil
}

// Delete removes the stored analysis of topic.
func (m *Manager) Delete(topic string) error {
	if err := m.registry.Delete(topic); err != nil {
		return err
	}
	m.metrics.SetActiveTopics(m.registry.Len())
	return nil
}

// RAGEnabled reports whether reports are indexed for questions.
func (m *Manager) RAGEnabled() bool {
	return m.indexer != nil
}

// Close releases every session and the database pool.
func (m *Manager) Close() error {
	m.registry.Close()
	if m.pool != nil {
		m.pool.Close()
		m.pool = nil
	}
	return nil
}
