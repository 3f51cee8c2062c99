//-------------------------------------------------------------------------
//
// pgEdge Venture Scout
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package chunker splits report text into overlapping chunks for
// retrieval. Lengths and offsets are measured in characters (runes).
package chunker

import (
	"errors"
	"fmt"
)

// Default chunking parameters.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// DefaultSeparators are tried in order when choosing where a chunk ends:
// paragraph, line, then word boundaries. A chunk with no boundary in
// range is cut at the size limit.
var DefaultSeparators = []string{"\n\n", "\n", " "}

// ErrInvalidOptions is returned for unusable size/overlap combinations.
var ErrInvalidOptions = errors.New("invalid chunker options")

// Chunk is a substring of the source text.
type Chunk struct {
	Index  int
	Offset int // Rune offset of Text in the source
	Text   string
}

// Len returns the chunk length in runes.
func (c Chunk) Len() int {
	return len([]rune(c.Text))
}

// Splitter is a recursive character splitter.
type Splitter struct {
	size       int
	overlap    int
	separators [][]rune
}

// New creates a Splitter. overlap must be smaller than size.
func New(size, overlap int) (*Splitter, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive", ErrInvalidOptions)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: chunk overlap must be in [0, %d)", ErrInvalidOptions, size)
	}

	seps := make([][]rune, len(DefaultSeparators))
	for i, s := range DefaultSeparators {
		seps[i] = []rune(s)
	}
	return &Splitter{size: size, overlap: overlap, separators: seps}, nil
}

// Split divides text into chunks ordered by offset. Every chunk is at most
// size runes long and starts no later than the previous chunk ends, so the
// chunks cover the whole text. Consecutive chunks share at least overlap
// runes. Empty text yields no chunks.
func (s *Splitter) Split(text string) []Chunk {
	r := []rune(text)
	n := len(r)
	if n == 0 {
		return nil
	}

	var chunks []Chunk
	start := 0
	for {
		end := s.chooseEnd(r, start)
		chunks = append(chunks, Chunk{
			Index:  len(chunks),
			Offset: start,
			Text:   string(r[start:end]),
		})
		if end == n {
			return chunks
		}
		start = s.chooseStart(r, start, end)
	}
}

// chooseEnd returns the end of the chunk beginning at start: the last
// boundary of the highest-priority separator found in (start+overlap,
// start+size], or a hard cut at start+size.
func (s *Splitter) chooseEnd(r []rune, start int) int {
	limit := start + s.size
	if limit >= len(r) {
		return len(r)
	}

	for _, sep := range s.separators {
		if p := lastBoundary(r, sep, start, start+s.overlap, limit); p > 0 {
			return p
		}
	}
	return limit
}

// chooseStart returns the start of the chunk after [start, end): the
// latest word or line boundary at or before end-overlap, so the two
// chunks share at least overlap runes.
func (s *Splitter) chooseStart(r []rune, start, end int) int {
	target := end - s.overlap
	best := -1
	for _, sep := range s.separators {
		if p := lastBoundary(r, sep, start, start, target); p > best {
			best = p
		}
	}
	if best > start {
		return best
	}
	return target
}

// lastBoundary returns the largest position p in (lo, hi] that directly
// follows an occurrence of sep lying entirely at or after from, or -1.
func lastBoundary(r, sep []rune, from, lo, hi int) int {
	for p := hi; p > lo; p-- {
		q := p - len(sep)
		if q < from {
			break
		}
		if matchAt(r, sep, q) {
			return p
		}
	}
	return -1
}

func matchAt(r, sep []rune, at int) bool {
	if at < 0 || at+len(sep) > len(r) {
		return false
	}
	for i, c := range sep {
		if r[at+i] != c {
			return false
		}
	}
	return true
}
