//-------------------------------------------------------------------------
//
// pgEdge Venture Scout
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package report

import (
	"encoding/json"
	"slices"
	"strings"
	"testing"
)

const sampleReport = `# MARKET ANALYSIS
The AI diagnostics market is valued at $4.5 billion with a CAGR of 28% through 2030.

# COMPETITIVE LANDSCAPE
Key players include Aidoc, Viz.ai and PathAI.

# BUSINESS STRATEGY
The business model should be a subscription per hospital seat. Time to market is about 12 months.

# FINANCIAL CONSIDERATIONS
An initial investment of $2.5 million is recommended. Break-even is expected within 24-36 months.
Key risks include regulatory approval delays, data privacy breaches; clinician adoption.

# RECOMMENDATIONS
Success factors include clinical validation, hospital partnerships, explainable models.
`

func TestSections(t *testing.T) {
	sections := Sections(sampleReport)
	if len(sections) != len(SectionNames) {
		t.Fatalf("expected %d sections, got %d", len(SectionNames), len(sections))
	}
	for i, s := range sections {
		if !s.Found {
			t.Errorf("section %s not found", SectionNames[i])
		}
		if !strings.HasPrefix(s.Content, "# "+SectionNames[i]) {
			t.Errorf("section %s starts with %q", s.Name, s.Content)
		}
	}
	if strings.Contains(sections[0].Content, "COMPETITIVE") {
		t.Error("market section must end at the next heading")
	}
	if !strings.Contains(sections[3].Content, "$2.5 million") {
		t.Errorf("financial section missing its body: %q", sections[3].Content)
	}
}

func TestExtractSection_Alternatives(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		section   string
		wantFound bool
		want      string
	}{
		{
			name:      "competitors heading",
			text:      "## Competitors\nAcme and Globex.\n## Other\nx",
			section:   SectionCompetition,
			wantFound: true,
			want:      "## Competitors\nAcme and Globex.",
		},
		{
			name:      "lower case canonical heading",
			text:      "### business strategy\nGo direct.\n",
			section:   SectionStrategy,
			wantFound: true,
			want:      "### business strategy\nGo direct.",
		},
		{
			name:      "investment heading",
			text:      "# Investment Needs\n$1M seed.",
			section:   SectionFinancial,
			wantFound: true,
			want:      "# Investment Needs\n$1M seed.",
		},
		{
			name:    "missing competition",
			text:    "no headings at all",
			section: SectionCompetition,
			want:    "Competitive landscape analysis not found in structured format.",
		},
		{
			name:    "market falls back to first fifth",
			text:    "abcdefghij",
			section: SectionMarket,
			want:    "ab",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractSection(tt.text, tt.section)
			if got.Found != tt.wantFound {
				t.Errorf("Found = %v, want %v", got.Found, tt.wantFound)
			}
			if got.Content != tt.want {
				t.Errorf("Content = %q, want %q", got.Content, tt.want)
			}
		})
	}
}

func TestHasSection(t *testing.T) {
	for _, name := range SectionNames {
		if !HasSection(sampleReport, name) {
			t.Errorf("expected section %s", name)
		}
	}
	if HasSection("MARKET ANALYSIS without a heading", SectionMarket) {
		t.Error("plain text is not a heading")
	}
}

func TestExtract(t *testing.T) {
	ins := Extract(sampleReport)

	if ins.Market.MarketSize != 4500 {
		t.Errorf("MarketSize = %v, want 4500", ins.Market.MarketSize)
	}
	if ins.Market.CAGR != 28 {
		t.Errorf("CAGR = %v, want 28", ins.Market.CAGR)
	}
	if ins.Market.ProjectedSize <= ins.Market.MarketSize {
		t.Errorf("projected size %v should exceed %v", ins.Market.ProjectedSize, ins.Market.MarketSize)
	}
	if ins.Market.TimeToMarket != 12 {
		t.Errorf("TimeToMarket = %d, want 12", ins.Market.TimeToMarket)
	}
	if ins.Market.BreakEven != "24-36 months" {
		t.Errorf("BreakEven = %q", ins.Market.BreakEven)
	}
	if ins.Business.InitialInvestment != "$2.5 million is recommended" {
		t.Errorf("InitialInvestment = %q", ins.Business.InitialInvestment)
	}
	if ins.Business.RecommendedModel != "be a subscription per hospital seat" {
		t.Errorf("RecommendedModel = %q", ins.Business.RecommendedModel)
	}
	wantRisks := []string{"regulatory approval delays", "data privacy breaches", "clinician adoption"}
	if !slices.Equal(ins.Business.KeyRisks, wantRisks) {
		t.Errorf("KeyRisks = %q, want %q", ins.Business.KeyRisks, wantRisks)
	}
	if len(ins.Business.SuccessFactors) != 3 || ins.Business.SuccessFactors[0] != "clinical validation" {
		t.Errorf("SuccessFactors = %q", ins.Business.SuccessFactors)
	}
}

func TestExtract_Fallbacks(t *testing.T) {
	ins := Extract("A short report with no figures")

	if ins.Market.ProjectedSize != 0 || ins.Market.CAGR != 0 {
		t.Errorf("expected zero metrics, got %+v", ins.Market)
	}
	if ins.Market.BreakEven != NotSpecified || ins.Business.InitialInvestment != NotSpecified {
		t.Errorf("expected %q for missing figures, got %+v", NotSpecified, ins)
	}
	if !slices.Equal(ins.Business.KeyRisks, DefaultRisks) {
		t.Errorf("expected default risks, got %q", ins.Business.KeyRisks)
	}
	if !slices.Equal(ins.Business.SuccessFactors, DefaultSuccessFactors) {
		t.Errorf("expected default success factors, got %q", ins.Business.SuccessFactors)
	}
	if ins.Business.RecommendedModel != DefaultBusinessModel {
		t.Errorf("expected default model, got %q", ins.Business.RecommendedModel)
	}

	// Callers may modify the returned lists.
	ins.Business.KeyRisks[0] = "changed"
	if DefaultRisks[0] == "changed" {
		t.Error("fallback lists must be copies")
	}

	// Extraction is deterministic.
	if a, b := Extract(sampleReport), Extract(sampleReport); !slices.Equal(a.Business.KeyRisks, b.Business.KeyRisks) ||
		a.Business.RecommendedModel != b.Business.RecommendedModel {
		t.Error("extraction must be deterministic")
	}
}

func TestSuggestedQuestions(t *testing.T) {
	qs := SuggestedQuestions("AI in healthcare")
	if len(qs) != 3 {
		t.Fatalf("expected 3 questions, got %d", len(qs))
	}
	for i, want := range []string{"initial investment", "key success factors", "main risks"} {
		if !strings.Contains(qs[i], want) || !strings.Contains(qs[i], "AI in healthcare") {
			t.Errorf("question %d = %q", i, qs[i])
		}
	}
}

func TestFileNameAndFormat(t *testing.T) {
	if got := FileName("AI in healthcare", FormatMarkdown); got != "AI_in_healthcare_analysis.md" {
		t.Errorf("FileName = %q", got)
	}
	if got := FileName("AI in healthcare", FormatJSON); got != "AI_in_healthcare_analysis.json" {
		t.Errorf("FileName = %q", got)
	}

	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatMarkdown, false},
		{"MD", FormatMarkdown, false},
		{"markdown", FormatMarkdown, false},
		{"json", FormatJSON, false},
		{"pdf", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestRender(t *testing.T) {
	md, err := Render("AI in healthcare", sampleReport, FormatMarkdown)
	if err != nil || string(md) != sampleReport {
		t.Errorf("markdown export should be the report verbatim, err=%v", err)
	}

	data, err := Render("AI in healthcare", sampleReport, FormatJSON)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	for _, key := range []string{"topic", "analysis", "marketMetrics", "businessInsights"} {
		if _, ok := doc[key]; !ok {
			t.Errorf("missing key %q", key)
		}
	}
	metrics := doc["marketMetrics"].(map[string]any)
	for _, key := range []string{"projectedSize", "cagr", "timeToMarket", "breakEven"} {
		if _, ok := metrics[key]; !ok {
			t.Errorf("missing marketMetrics.%s", key)
		}
	}
	if _, ok := metrics["MarketSize"]; ok {
		t.Error("MarketSize should not be exported")
	}

	if _, err := Render("t", "x", Format("pdf")); err == nil {
		t.Error("expected error for unknown format")
	}
}
