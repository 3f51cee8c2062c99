//-------------------------------------------------------------------------
//
// pgEdge Venture Scout
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package bm25

import (
	"sort"
)

// Hit is a ranked chunk.
type Hit struct {
	Chunk int
	Score float64
}

type document struct {
	length int
	freqs  map[string]int
}

// Index is an immutable BM25 index over an ordered set of chunks. It is
// safe for concurrent use.
type Index struct {
	params    Params
	docs      []document
	docFreqs  map[string]int
	avgDocLen float64
}

// NewIndex indexes chunks; a chunk's position is its identifier.
func NewIndex(chunks []string) *Index {
	return NewIndexWithParams(chunks, DefaultParams())
}

// NewIndexWithParams indexes chunks with custom scoring parameters.
func NewIndexWithParams(chunks []string, p Params) *Index {
	idx := &Index{
		params:   p,
		docs:     make([]document, len(chunks)),
		docFreqs: make(map[string]int),
	}

	total := 0
	for i, c := range chunks {
		freqs, n := termFrequencies(c)
		idx.docs[i] = document{length: n, freqs: freqs}
		total += n
		for term := range freqs {
			idx.docFreqs[term]++
		}
	}
	if len(chunks) > 0 {
		idx.avgDocLen = float64(total) / float64(len(chunks))
	}
	return idx
}

// Len returns the number of indexed chunks.
func (idx *Index) Len() int {
	return len(idx.docs)
}

// Search returns up to topN chunks with a positive score, best first.
// Equal scores rank the lower chunk index first.
func (idx *Index) Search(query string, topN int) []Hit {
	if len(idx.docs) == 0 || topN <= 0 {
		return nil
	}
	queryFreqs, _ := termFrequencies(query)
	if len(queryFreqs) == 0 {
		return nil
	}

	var hits []Hit
	for i, doc := range idx.docs {
		var score float64
		for term := range queryFreqs {
			score += idx.params.termScore(doc.freqs[term], idx.docFreqs[term],
				len(idx.docs), doc.length, idx.avgDocLen)
		}
		if score > 0 {
			hits = append(hits, Hit{Chunk: i, Score: score})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})
	if len(hits) > topN {
		hits = hits[:topN]
	}
	return hits
}
