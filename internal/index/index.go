//-------------------------------------------------------------------------
//
// pgEdge Venture Scout
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package index provides similarity search over the chunks of one report.
package index

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrDimensionMismatch is returned when vectors of different lengths meet.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Query is a search request. Vector is required; Text is used by keyword
// ranking when hybrid search is enabled.
type Query struct {
	Text   string
	Vector []float32
}

// Match is one retrieved chunk.
type Match struct {
	Chunk int     `json:"chunk"`
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

// VectorIndex is a similarity-searchable store of chunk embeddings owned
// by a single topic.
type VectorIndex interface {
	// Search returns up to k chunks ordered by descending score, lower
	// chunk index first on ties.
	Search(ctx context.Context, q Query, k int) ([]Match, error)

	// Chunks returns the indexed chunks in order.
	Chunks() []string

	// Close releases any resources held by the index.
	Close(ctx context.Context) error
}

// SortMatches orders matches by descending score, breaking ties by chunk
// index.
func SortMatches(m []Match) {
	sort.Slice(m, func(i, j int) bool {
		if m[i].Score != m[j].Score {
			return m[i].Score > m[j].Score
		}
		return m[i].Chunk < m[j].Chunk
	})
}

// CosineSimilarity returns the cosine of the angle between a and b, or 0
// if either is a zero vector or their lengths differ.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Memory is an exact in-process cosine index.
type Memory struct {
	chunks  []string
	vectors [][]float32
	dims    int
}

var _ VectorIndex = (*Memory)(nil)

// NewMemory builds an index from parallel chunk and vector slices. All
// vectors must share one dimension.
func NewMemory(chunks []string, vectors [][]float32) (*Memory, error) {
	if len(chunks) != len(vectors) {
		return nil, fmt.Errorf("got %d chunks but %d vectors", len(chunks), len(vectors))
	}
	dims := 0
	for i, v := range vectors {
		if i == 0 {
			dims = len(v)
		}
		if len(v) == 0 || len(v) != dims {
			return nil, fmt.Errorf("%w: vector %d has %d dimensions, want %d",
				ErrDimensionMismatch, i, len(v), dims)
		}
	}

	return &Memory{
		chunks:  append([]string(nil), chunks...),
		vectors: vectors,
		dims:    dims,
	}, nil
}

// Search implements VectorIndex.
func (m *Memory) Search(ctx context.Context, q Query, k int) ([]Match, error) {
	if k <= 0 || len(m.chunks) == 0 {
		return nil, nil
	}
	if len(q.Vector) != m.dims {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d",
			ErrDimensionMismatch, len(q.Vector), m.dims)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	matches := make([]Match, len(m.chunks))
	for i, v := range m.vectors {
		matches[i] = Match{Chunk: i, Text: m.chunks[i], Score: CosineSimilarity(q.Vector, v)}
	}
	SortMatches(matches)

	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// Chunks implements VectorIndex.
func (m *Memory) Chunks() []string {
	return m.chunks
}

// Close implements VectorIndex.
func (m *Memory) Close(context.Context) error {
	return nil
}
