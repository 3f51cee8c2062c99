//-------------------------------------------------------------------------
//
// pgEdge Venture Scout
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package index

import (
	"context"

	"github.com/pgEdge/venture-scout/internal/bm25"
)

// DefaultRRFConstant is the k constant for Reciprocal Rank Fusion.
const DefaultRRFConstant = 60

// Hybrid fuses vector similarity with BM25 keyword ranking.
type Hybrid struct {
	vector  VectorIndex
	keyword *bm25.Index
}

var _ VectorIndex = (*Hybrid)(nil)

// NewHybrid wraps a vector index with keyword ranking over its chunks.
func NewHybrid(v VectorIndex) *Hybrid {
	return &Hybrid{
		vector:  v,
		keyword: bm25.NewIndex(v.Chunks()),
	}
}

// Search implements VectorIndex. Each ranking contributes candidates from
// twice the requested depth; the fused list is cut to k.
func (h *Hybrid) Search(ctx context.Context, q Query, k int) ([]Match, error) {
	if k <= 0 {
		return nil, nil
	}
	vec, err := h.vector.Search(ctx, q, k*2)
	if err != nil {
		return nil, err
	}
	kw := h.keyword.Search(q.Text, k*2)

	fused := ReciprocalRankFusion(vec, kw, h.vector.Chunks(), DefaultRRFConstant)
	if len(fused) > k {
		fused = fused[:k]
	}
	return fused, nil
}

// Chunks implements VectorIndex.
func (h *Hybrid) Chunks() []string {
	return h.vector.Chunks()
}

// Close implements VectorIndex.
func (h *Hybrid) Close(ctx context.Context) error {
	return h.vector.Close(ctx)
}

// ReciprocalRankFusion combines a vector ranking and a keyword ranking:
// each chunk scores the sum of 1/(k + rank) over the rankings it appears
// in, with 1-indexed ranks. The result is sorted by fused score, lower
// chunk index first on ties.
func ReciprocalRankFusion(vector []Match, keyword []bm25.Hit, chunks []string, k float64) []Match {
	if k <= 0 {
		k = DefaultRRFConstant
	}

	scores := make(map[int]float64, len(vector)+len(keyword))
	for i, m := range vector {
		scores[m.Chunk] += 1.0 / (k + float64(i+1))
	}
	for i, h := range keyword {
		scores[h.Chunk] += 1.0 / (k + float64(i+1))
	}

	out := make([]Match, 0, len(scores))
	for chunk, score := range scores {
		text := ""
		if chunk >= 0 && chunk < len(chunks) {
			text = chunks[chunk]
		}
		out = append(out, Match{Chunk: chunk, Text: text, Score: score})
	}
	SortMatches(out)
	return out
}
