//-------------------------------------------------------------------------
//
// pgEdge Venture Scout
//
// Portions copyright (c) 2025, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package report

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Format is an export format.
type Format string

// Supported export formats.
const (
	FormatMarkdown Format = "md"
	FormatJSON     Format = "json"
)

// ParseFormat parses an export format name; the empty string selects
// markdown.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "md", "markdown":
		return FormatMarkdown, nil
	case "json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unsupported export format %q (expected md or json)", s)
	}
}

// ContentType returns the MIME type of the format.
func (f Format) ContentType() string {
	if f == FormatJSON {
		return "application/json"
	}
	return "text/markdown; charset=utf-8"
}

// FileName returns the export file name for topic, with spaces replaced
// by underscores.
func FileName(topic string, f Format) string {
	return strings.ReplaceAll(topic, " ", "_") + "_analysis." + string(f)
}

// Document is the JSON export of an analysis.
type Document struct {
	Topic            string           `json:"topic"`
	Analysis         string           `json:"analysis"`
	MarketMetrics    MarketMetrics    `json:"marketMetrics"`
	BusinessInsights BusinessInsights `json:"businessInsights"`
}

// NewDocument builds the JSON export of analysis.
func NewDocument(topic, analysis string) Document {
	ins := Extract(analysis)
	return Document{
		Topic:            topic,
		Analysis:         analysis,
		MarketMetrics:    ins.Market,
		BusinessInsights: ins.Business,
	}
}

// Render encodes the analysis of topic in format f.
func Render(topic, analysis string, f Format) ([]byte, error) {
	switch f {
	case FormatMarkdown:
		return []byte(analysis), nil
	case FormatJSON:
		data, err := json.MarshalIndent(NewDocument(topic, analysis), "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to encode export: %w", err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("unsupported export format %q", f)
	}
}
