//-------------------------------------------------------------------------
//
// pgEdge Venture Scout
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package rag builds retrieval indexes over analysis reports and answers
// questions against them.
package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pgEdge/venture-scout/internal/chunker"
	"github.com/pgEdge/venture-scout/internal/index"
	"github.com/pgEdge/venture-scout/internal/llm"
	"github.com/pgEdge/venture-scout/internal/metrics"
)

// Embedding defaults.
const (
	DefaultEmbedBatchSize   = 64
	DefaultEmbedConcurrency = 4
)

// ErrEmptyArtifact is returned when there is no text to index.
var ErrEmptyArtifact = errors.New("artifact is empty")

// RagSetupError reports an embedding or indexing failure. It only affects
// question answering; the analysis itself is unaffected.
type RagSetupError struct {
	Cause error
}

func (e *RagSetupError) Error() string {
	return fmt.Sprintf("rag setup failed: %v", e.Cause)
}

// Unwrap returns the underlying cause.
func (e *RagSetupError) Unwrap() error {
	return e.Cause
}

// Index is a report's chunks and the searchable index built from them.
type Index struct {
	Chunks []chunker.Chunk
	Vector index.VectorIndex
}

// Len returns the number of chunks.
func (i *Index) Len() int {
	return len(i.Chunks)
}

// Close releases the underlying vector index.
func (i *Index) Close(ctx context.Context) error {
	if i == nil || i.Vector == nil {
		return nil
	}
	return i.Vector.Close(ctx)
}

// IndexerConfig configures an Indexer. Zero sizes take the defaults.
type IndexerConfig struct {
	Embedder         llm.EmbeddingProvider
	Store            VectorStore
	ChunkSize        int
	ChunkOverlap     int
	EmbedBatchSize   int
	EmbedConcurrency int
	Hybrid           bool
	Logger           *slog.Logger
	Metrics          *metrics.Metrics
}

// Indexer splits reports into chunks and embeds them into a vector index.
type Indexer struct {
	embedder    llm.EmbeddingProvider
	store       VectorStore
	splitter    *chunker.Splitter
	batchSize   int
	concurrency int
	hybrid      bool
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

// NewIndexer creates an Indexer.
func NewIndexer(cfg IndexerConfig) (*Indexer, error) {
	if cfg.Embedder == nil {
		return nil, errors.New("an embedding provider is required")
	}

	size, overlap := cfg.ChunkSize, cfg.ChunkOverlap
	if size <= 0 {
		size, overlap = chunker.DefaultChunkSize, chunker.DefaultChunkOverlap
	}
	splitter, err := chunker.New(size, overlap)
	if err != nil {
		return nil, err
	}

	ix := &Indexer{
		embedder:    cfg.Embedder,
		store:       cfg.Store,
		splitter:    splitter,
		batchSize:   cfg.EmbedBatchSize,
		concurrency: cfg.EmbedConcurrency,
		hybrid:      cfg.Hybrid,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
	}
	if ix.store == nil {
		ix.store = MemoryStore{}
	}
	if ix.batchSize <= 0 {
		ix.batchSize = DefaultEmbedBatchSize
	}
	if ix.concurrency <= 0 {
		ix.concurrency = DefaultEmbedConcurrency
	}
	if ix.logger == nil {
		ix.logger = slog.Default()
	}
	return ix, nil
}

// BuildIndex chunks text, embeds every chunk and returns the index. Empty
// or whitespace-only text returns ErrEmptyArtifact; embedding and storage
// failures return a *RagSetupError.
func (ix *Indexer) BuildIndex(ctx context.Context, text string) (*Index, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyArtifact
	}

	chunks := ix.splitter.Split(text)
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	start := time.Now()
	vectors, err := ix.embed(ctx, texts)
	ix.metrics.EmbedDuration(time.Since(start))
	if err != nil {
		return nil, &RagSetupError{Cause: err}
	}

	vi, err := ix.store.Build(ctx, texts, vectors)
	if err != nil {
		return nil, &RagSetupError{Cause: err}
	}
	if ix.hybrid {
		vi = index.NewHybrid(vi)
	}

	ix.logger.Debug("built report index",
		"chunks", len(chunks),
		"model", ix.embedder.ModelName(),
		"hybrid", ix.hybrid,
	)
	return &Index{Chunks: chunks, Vector: vi}, nil
}

// embed embeds texts in batches, running up to concurrency batches at
// once. The result preserves input order.
func (ix *Indexer) embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.concurrency)

	for lo := 0; lo < len(texts); lo += ix.batchSize {
		hi := min(lo+ix.batchSize, len(texts))
		g.Go(func() error {
			batch, err := ix.embedder.EmbedBatch(gctx, texts[lo:hi])
			if err != nil {
				return fmt.Errorf("failed to embed chunks %d-%d: %w", lo, hi-1, err)
			}
			if len(batch) != hi-lo {
				return fmt.Errorf("embedding provider returned %d vectors for %d chunks",
					len(batch), hi-lo)
			}
			copy(vectors[lo:hi], batch)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}
