//-------------------------------------------------------------------------
//
// pgEdge Venture Scout
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package pipeline

import (
	"errors"
	"fmt"

	"github.com/pgEdge/venture-scout/internal/agent"
	"github.com/pgEdge/venture-scout/internal/tools"
)

// Task names, in execution order.
const (
	TaskMarketResearch     = "market_research"
	TaskCompetitorAnalysis = "competitor_analysis"
	TaskBusinessStrategy   = "business_strategy"
	TaskFinancialInsights  = "financial_insights"
	TaskFinalReport        = "final_report"
)

// ErrCycle is returned by ValidateOrder for cyclic task graphs.
var ErrCycle = errors.New("directed graph contains a cycle")

// Agents holds the four agents of one pipeline run.
type Agents struct {
	MarketResearcher   *agent.Agent
	CompetitiveAnalyst *agent.Agent
	BusinessStrategist *agent.Agent
	FinancialAnalyst   *agent.Agent
}

// NewAgents builds a fresh set of agents for topic.
func NewAgents(topic string, model agent.ModelConfig) Agents {
	return Agents{
		MarketResearcher: &agent.Agent{
			Role:      "Market Research Specialist",
			Goal:      fmt.Sprintf("Find comprehensive market data about %s including size, growth, trends", topic),
			Backstory: "Expert at analyzing market dynamics and extracting valuable insights.",
			Tools:     []tools.Kind{tools.Search, tools.Fetch},
			Model:     model,
		},
		CompetitiveAnalyst: &agent.Agent{
			Role:      "Competitive Intelligence Expert",
			Goal:      fmt.Sprintf("Identify key competitors in the %s space and analyze their strategies", topic),
			Backstory: "Specialist in competitive analysis with deep industry knowledge.",
			Tools:     []tools.Kind{tools.Search, tools.Fetch},
			Model:     model,
		},
		BusinessStrategist: &agent.Agent{
			Role:      "Business Strategist",
			Goal:      fmt.Sprintf("Develop comprehensive business strategy for a %s startup", topic),
			Backstory: "Experienced business consultant who has helped numerous startups succeed.",
			Tools:     []tools.Kind{tools.Search},
			Model:     model,
		},
		FinancialAnalyst: &agent.Agent{
			Role:      "Financial Analyst",
			Goal:      fmt.Sprintf("Provide financial insights for a %s startup", topic),
			Backstory: "Expert in startup financial modeling with experience in venture funding.",
			Model:     model,
		},
	}
}

// BuildTasks returns the five analysis tasks for topic in execution order.
func BuildTasks(topic string, a Agents) []*agent.Task {
	market := &agent.Task{
		Name: TaskMarketResearch,
		Description: fmt.Sprintf(`Research the %s market thoroughly. Find and analyze:
1. Market size (in $ value)
2. Growth rate and CAGR
3. Key market segments
4. Regional distribution
5. Major trends and drivers
6. Challenges and barriers

Use specific data points, statistics, and cite sources when possible.`, topic),
		Agent:          a.MarketResearcher,
		ExpectedOutput: "Comprehensive market analysis with specific data points",
	}

	competitors := &agent.Task{
		Name: TaskCompetitorAnalysis,
		Description: fmt.Sprintf(`Conduct a detailed competitor analysis for the %s space:
1. Identify at least 5 key competitors
2. Analyze their business models
3. Evaluate their strengths and weaknesses
4. Assess their market positioning
5. Identify potential gaps in the market

Focus on both established players and innovative startups.`, topic),
		Agent:          a.CompetitiveAnalyst,
		DependsOn:      []*agent.Task{market},
		ExpectedOutput: "Detailed competitor landscape analysis",
	}

	strategy := &agent.Task{
		Name: TaskBusinessStrategy,
		Description: fmt.Sprintf(`Develop a comprehensive business strategy for a %s startup:
1. Recommend optimal business model(s)
2. Identify target customer segments
3. Suggest unique value proposition
4. Outline go-to-market strategy
5. Propose partnership opportunities

Base recommendations on market research and competitor analysis.`, topic),
		Agent:          a.BusinessStrategist,
		DependsOn:      []*agent.Task{market, competitors},
		ExpectedOutput: "Comprehensive business strategy recommendations",
	}

	financial := &agent.Task{
		Name: TaskFinancialInsights,
		Description: fmt.Sprintf(`Provide financial insights for a %s startup:
1. Estimate initial investment required
2. Suggest revenue streams and pricing models
3. Identify key cost factors
4. Estimate timeline to profitability
5. Highlight financial risks and mitigation strategies

Provide realistic ranges based on industry benchmarks.`, topic),
		Agent:          a.FinancialAnalyst,
		DependsOn:      []*agent.Task{market, strategy},
		ExpectedOutput: "Financial analysis and recommendations",
	}

	report := &agent.Task{
		Name: TaskFinalReport,
		Description: fmt.Sprintf(`Create a comprehensive startup analysis report for %s that includes:

# MARKET ANALYSIS
- Market size, growth projections, and trends
- Key drivers and barriers
- Regulatory considerations

# COMPETITIVE LANDSCAPE
- Key players and their market positions
- Competitor strengths and weaknesses
- Market gaps and opportunities

# BUSINESS STRATEGY
- Recommended business model(s)
- Target customer segments
- Unique value proposition
- Go-to-market strategy

# FINANCIAL CONSIDERATIONS
- Initial investment requirements
- Revenue model recommendations
- Path to profitability
- Key financial risks

# RECOMMENDATIONS
- Critical success factors
- Key risks and mitigation strategies
- Timeline considerations
- Next steps for entrepreneurs

Format as a well-structured markdown report with clear sections and specific data points.`, topic),
		Agent:          a.BusinessStrategist,
		DependsOn:      []*agent.Task{market, competitors, strategy, financial},
		ExpectedOutput: "Comprehensive startup opportunity analysis report",
	}

	return []*agent.Task{market, competitors, strategy, financial, report}
}

// ValidateOrder checks that tasks form a DAG and that the given order is a
// valid topological order: names are unique, every dependency is in the
// list, and every dependency appears before its dependents.
func ValidateOrder(tasks []*agent.Task) error {
	position := make(map[string]int, len(tasks))
	for i, t := range tasks {
		if t == nil {
			return fmt.Errorf("task %d is nil", i)
		}
		if _, dup := position[t.Name]; dup {
			return fmt.Errorf("duplicate task name %q", t.Name)
		}
		position[t.Name] = i
	}

	inDegree := make(map[string]int, len(tasks))
	dependents := make(map[string][]string, len(tasks))
	for _, t := range tasks {
		inDegree[t.Name] += 0
		for _, dep := range t.DependsOn {
			if _, ok := position[dep.Name]; !ok {
				return fmt.Errorf("task %q depends on unknown task %q", t.Name, dep.Name)
			}
			inDegree[t.Name]++
			dependents[dep.Name] = append(dependents[dep.Name], t.Name)
		}
	}

	// Kahn's algorithm, seeded in declared order.
	queue := make([]string, 0, len(tasks))
	for _, t := range tasks {
		if inDegree[t.Name] == 0 {
			queue = append(queue, t.Name)
		}
	}
	processed := 0
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		processed++
		for _, next := range dependents[name] {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}
	if processed != len(tasks) {
		return ErrCycle
	}

	for _, t := range tasks {
		for _, dep := range t.DependsOn {
			if position[dep.Name] >= position[t.Name] {
				return fmt.Errorf("task %q is scheduled before its dependency %q",
					t.Name, dep.Name)
			}
		}
	}
	return nil
}
