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
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

// NotSpecified is reported for figures the report does not state.
const NotSpecified = "Not specified"

// projectionYears is the horizon of the projected market size.
const projectionYears = 5

// Defaults used when the report does not state risks, success factors or
// a business model.
var (
	DefaultRisks = []string{
		"Intense competition from established players",
		"Rapidly evolving technology landscape",
		"Changing regulatory requirements",
		"Initial customer acquisition costs",
	}

	DefaultSuccessFactors = []string{
		"Strong technical team and expertise",
		"Deep understanding of target market",
		"Agile development methodology",
		"Strategic partnerships with industry players",
	}

	DefaultBusinessModel = "SaaS subscription model with tiered pricing based on features and usage"
)

var (
	marketSizeRe = regexp.MustCompile(`(?i)\$\s*(\d+(?:\.\d+)?)\s*(million|billion|trillion|M|B|T)\b`)
	cagrRe       = regexp.MustCompile(`(?i)(?:CAGR|compound annual growth rate|annual growth|growth rate) of (?:approximately |~|about |around )?(\d+(?:\.\d+)?)\s*%`)
	investmentRe = regexp.MustCompile(`(?i)initial investment[^$\n]{0,80}(\$[^.;\n]*(?:\.\d[^.;\n]*)?)`)
	breakEvenRe  = regexp.MustCompile(`(?i)(?:break[- ]?even|profitability)[^\n.]{0,80}?(\d+\s*(?:-|to)?\s*\d*\s*(?:months|years))`)
	marketTimeRe = regexp.MustCompile(`(?i)time[- ]to[- ]market[^\n.]{0,60}?(\d+)\s*months`)
	riskRe       = regexp.MustCompile(`(?i)(?:key risk|main risk|significant risk|risk factor)s?(?:\s+include|\s+are|:)([^.\n]*)`)
	successRe    = regexp.MustCompile(`(?i)(?:success factor|key factor|crucial element|critical aspect)s?(?:\s+include|\s+are|:)([^.\n]*)`)
	modelRe      = regexp.MustCompile(`(?i)(?:business model|revenue model|monetization|revenue stream)(?:\s+include|\s+are|\s+should|\s+could|\s+would|\s+recommend|:)([^.\n]*)`)
	listSplitRe  = regexp.MustCompile(`[,;•\n]+`)
)

// MarketMetrics are the headline market figures of a report.
type MarketMetrics struct {
	// MarketSize is the first market size stated, in millions of dollars.
	MarketSize float64 `json:"-"`

	// ProjectedSize is MarketSize grown at CAGR over five years, in
	// millions of dollars.
	ProjectedSize float64 `json:"projectedSize"`
	CAGR          float64 `json:"cagr"`
	TimeToMarket  int     `json:"timeToMarket"`
	BreakEven     string  `json:"breakEven"`
}

// BusinessInsights are the headline business findings of a report.
type BusinessInsights struct {
	InitialInvestment string   `json:"initialInvestment"`
	RecommendedModel  string   `json:"recommendedModel"`
	KeyRisks          []string `json:"keyRisks"`
	SuccessFactors    []string `json:"successFactors"`
}

// Insights holds everything extracted from a report.
type Insights struct {
	Market   MarketMetrics    `json:"marketMetrics"`
	Business BusinessInsights `json:"businessInsights"`
}

// Extract reads the headline figures and findings from text. Extraction
// is deterministic; lists and the business model fall back to defaults
// when the report does not state them.
func Extract(text string) Insights {
	size := marketSize(text)
	cagr := firstFloat(cagrRe, text)

	projected := size
	if cagr > 0 {
		projected = size * math.Pow(1+cagr/100, projectionYears)
	}

	return Insights{
		Market: MarketMetrics{
			MarketSize:    size,
			ProjectedSize: math.Round(projected),
			CAGR:          cagr,
			TimeToMarket:  int(firstFloat(marketTimeRe, text)),
			BreakEven:     firstString(breakEvenRe, text, NotSpecified),
		},
		Business: BusinessInsights{
			InitialInvestment: strings.TrimRight(firstString(investmentRe, text, NotSpecified), " ,"),
			RecommendedModel:  businessModel(text),
			KeyRisks:          listItems(riskRe, text, DefaultRisks),
			SuccessFactors:    listItems(successRe, text, DefaultSuccessFactors),
		},
	}
}

// marketSize returns the first dollar figure in text, in millions.
func marketSize(text string) float64 {
	m := marketSizeRe.FindStringSubmatch(text)
	if m == nil {
		return 0
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0
	}
	switch strings.ToLower(m[2]) {
	case "billion", "b":
		v *= 1_000
	case "trillion", "t":
		v *= 1_000_000
	}
	return v
}

func firstFloat(re *regexp.Regexp, text string) float64 {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return 0
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0
	}
	return v
}

func firstString(re *regexp.Regexp, text, fallback string) string {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return fallback
	}
	if s := strings.TrimSpace(m[1]); s != "" {
		return s
	}
	return fallback
}

// listItems splits every match of re into items of reasonable length,
// keeping first occurrences in order.
func listItems(re *regexp.Regexp, text string, fallback []string) []string {
	var items []string
	for _, m := range re.FindAllStringSubmatch(text, -1) {
		for _, item := range listSplitRe.Split(m[1], -1) {
			item = strings.Trim(strings.TrimSpace(item), "-*")
			item = strings.TrimSpace(item)
			if len(item) > 5 && len(item) < 100 && !slices.Contains(items, item) {
				items = append(items, item)
			}
		}
	}
	if len(items) == 0 {
		return slices.Clone(fallback)
	}
	return items
}

// businessModel returns the longest business model statement in text.
func businessModel(text string) string {
	best := ""
	for _, m := range modelRe.FindAllStringSubmatch(text, -1) {
		if s := strings.TrimSpace(m[1]); len(s) > len(best) {
			best = s
		}
	}
	if best == "" {
		return DefaultBusinessModel
	}
	return best
}
