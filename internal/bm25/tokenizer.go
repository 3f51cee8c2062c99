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
	"strings"
	"unicode"
)

// stopWords are common English words that carry no ranking signal.
var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true,
	"at": true, "be": true, "by": true, "for": true, "from": true,
	"has": true, "in": true, "is": true, "it": true, "its": true,
	"of": true, "on": true, "or": true, "that": true, "the": true,
	"to": true, "was": true, "were": true, "will": true, "with": true,
	"this": true, "but": true, "they": true, "have": true, "had": true,
	"what": true, "when": true, "where": true, "who": true, "which": true,
	"why": true, "how": true, "can": true, "should": true, "do": true,
	"does": true, "i": true, "you": true, "we": true, "our": true,
	"your": true, "their": true, "about": true, "there": true, "into": true,
}

// Tokenize lowercases text and splits it on anything that is not a letter
// or digit. Stop words and single letters are dropped; single digits are
// kept so figures such as "5" or "$2M" still match.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	tokens := fields[:0]
	for _, f := range fields {
		if stopWords[f] {
			continue
		}
		if len([]rune(f)) < 2 && !unicode.IsDigit([]rune(f)[0]) {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}

// termFrequencies counts the tokens of text.
func termFrequencies(text string) (map[string]int, int) {
	tokens := Tokenize(text)
	freqs := make(map[string]int, len(tokens))
	for _, t := range tokens {
		freqs[t]++
	}
	return freqs, len(tokens)
}
