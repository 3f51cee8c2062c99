//-------------------------------------------------------------------------
//
// pgEdge Venture Scout
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package report reads structure out of finished analysis reports: the
// titled sections, headline insights, suggested follow-up questions and
// the export formats.
package report

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Section headings produced by the final report task.
const (
	SectionMarket          = "MARKET ANALYSIS"
	SectionCompetition     = "COMPETITIVE LANDSCAPE"
	SectionStrategy        = "BUSINESS STRATEGY"
	SectionFinancial       = "FINANCIAL CONSIDERATIONS"
	SectionRecommendations = "RECOMMENDATIONS"
)

// SectionNames lists the report sections in document order.
var SectionNames = []string{
	SectionMarket,
	SectionCompetition,
	SectionStrategy,
	SectionFinancial,
	SectionRecommendations,
}

// alternatives are headings accepted when the canonical one is absent.
var alternatives = map[string][]string{
	SectionCompetition: {"COMPETITORS", "COMPETITION"},
	SectionStrategy:    {"STRATEGY", "RECOMMENDATIONS"},
	SectionFinancial:   {"FINANCIAL", "INVESTMENT"},
}

// placeholders are shown for sections that cannot be located.
var placeholders = map[string]string{
	SectionCompetition:     "Competitive landscape analysis not found in structured format.",
	SectionStrategy:        "Business strategy section not found in structured format.",
	SectionFinancial:       "Financial insights section not found in structured format.",
	SectionRecommendations: "Recommendations section not found in structured format.",
}

// Section is one titled part of a report.
type Section struct {
	Name    string `json:"name"`
	Content string `json:"content"`
	Found   bool   `json:"found"`
}

// Sections extracts every known section from text. A section that cannot
// be located is returned with Found false and placeholder content; for the
// market section the placeholder is the first fifth of the report.
func Sections(text string) []Section {
	out := make([]Section, len(SectionNames))
	for i, name := range SectionNames {
		out[i] = ExtractSection(text, name)
	}
	return out
}

// ExtractSection returns the named section, trying its alternative
// headings when the canonical heading is missing.
func ExtractSection(text, name string) Section {
	for _, heading := range append([]string{name}, alternatives[name]...) {
		if content, ok := findSection(text, heading); ok {
			return Section{Name: name, Content: content, Found: true}
		}
	}

	if name == SectionMarket {
		n := utf8.RuneCountInString(text) / 5
		return Section{Name: name, Content: string([]rune(text)[:n])}
	}
	placeholder, ok := placeholders[name]
	if !ok {
		placeholder = fmt.Sprintf("%s section not found in structured format.", name)
	}
	return Section{Name: name, Content: placeholder}
}

// findSection returns the text from the first markdown heading starting
// with heading (case-insensitive) up to the next heading of any level.
func findSection(text, heading string) (string, bool) {
	lines := strings.SplitAfter(text, "\n")
	start := -1
	for i, line := range lines {
		title, ok := headingTitle(line)
		if !ok {
			continue
		}
		if start >= 0 {
			return strings.TrimSpace(strings.Join(lines[start:i], "")), true
		}
		if strings.HasPrefix(strings.ToUpper(title), heading) {
			start = i
		}
	}
	if start < 0 {
		return "", false
	}
	return strings.TrimSpace(strings.Join(lines[start:], "")), true
}

// headingTitle reports whether line is a markdown heading and returns its
// title.
func headingTitle(line string) (string, bool) {
	trimmed := strings.TrimLeft(line, " ")
	if !strings.HasPrefix(trimmed, "#") {
		return "", false
	}
	return strings.TrimSpace(strings.TrimLeft(trimmed, "#")), true
}

// HasSection reports whether text has a heading beginning with name.
func HasSection(text, name string) bool {
	_, ok := findSection(text, name)
	return ok
}

// SuggestedQuestions returns the canned follow-up questions for topic.
func SuggestedQuestions(topic string) []string {
	return []string{
		fmt.Sprintf("What is the recommended initial investment for a %s startup?", topic),
		fmt.Sprintf("What are the key success factors for a %s startup?", topic),
		fmt.Sprintf("What are the main risks and challenges for a %s startup?", topic),
	}
}
