//-------------------------------------------------------------------------
//
// pgEdge Venture Scout
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package bm25 provides BM25 keyword ranking over report chunks.
package bm25

import (
	"math"
)

// Default BM25 parameters.
const (
	DefaultK1 = 1.2
	DefaultB  = 0.75
)

// Params controls BM25 scoring. K1 sets term frequency saturation; B sets
// how strongly scores are normalized by document length.
type Params struct {
	K1 float64
	B  float64
}

// DefaultParams returns the standard BM25 parameters.
func DefaultParams() Params {
	return Params{K1: DefaultK1, B: DefaultB}
}

// idf is the Lucene variant of inverse document frequency,
// log(1 + (N - df + 0.5) / (df + 0.5)), which is never negative.
func idf(docCount, docFreq int) float64 {
	if docCount == 0 || docFreq == 0 {
		return 0
	}
	n := float64(docCount)
	df := float64(docFreq)
	return math.Log(1 + (n-df+0.5)/(df+0.5))
}

// termScore is the contribution of one query term to a document score.
func (p Params) termScore(tf, docFreq, docCount, docLen int, avgDocLen float64) float64 {
	if tf == 0 || docFreq == 0 || docCount == 0 || avgDocLen == 0 {
		return 0
	}
	f := float64(tf)
	norm := 1 - p.B + p.B*(float64(docLen)/avgDocLen)
	return idf(docCount, docFreq) * (f * (p.K1 + 1)) / (f + p.K1*norm)
}
