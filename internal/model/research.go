package model

// ResearchResult is the terminal artifact of a research run. Every string
// field is populated, with placeholder text where an agent degraded.
type ResearchResult struct {
	CompanyName   string             `json:"company_name"`
	Overview      Overview           `json:"overview"`
	Financial     FinancialAnalysis  `json:"financial"`
	Market        MarketAnalysis     `json:"market"`
	Competitors   CompetitorAnalysis `json:"competitors"`
	Investment    InvestmentAnalysis `json:"investment"`
	AIInitiatives *AIInitiatives     `json:"ai_initiatives,omitempty"`
	Status        RunStatus          `json:"status"`
	Agents        []AgentOutcome     `json:"agents"`
}

// Overview describes the company.
type Overview struct {
	Summary    string   `json:"summary"`
	History    string   `json:"history"`
	Leadership string   `json:"leadership"`
	Tags       []string `json:"tags"`
}

// FinancialAnalysis is the narrative financial section.
type FinancialAnalysis struct {
	Performance string `json:"performance"`
	Metrics     string `json:"metrics"`
}

// MarketAnalysis is the market position section.
type MarketAnalysis struct {
	Position string `json:"position"`
	Trends   string `json:"trends"`
}

// CompetitorAnalysis is the competitive landscape section.
type CompetitorAnalysis struct {
	Main     string `json:"main"`
	Analysis string `json:"analysis"`
}

// InvestmentAnalysis is the investment outlook section.
type InvestmentAnalysis struct {
	Analysis      string `json:"analysis"`
	Risks         string `json:"risks"`
	Opportunities string `json:"opportunities"`
}

// AIInitiatives is the optional AI strategy section.
type AIInitiatives struct {
	Summary      string   `json:"summary"`
	Technologies []string `json:"technologies"`
	Impact       string   `json:"impact"`
	Strategy     string   `json:"strategy"`
}

// AgentOutcome records how one topic agent finished.
type AgentOutcome struct {
	Agent      string `json:"agent"`
	OK         bool   `json:"ok"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// EmptyFields returns the dotted names of primary fields that are empty.
// A well-formed result returns none.
func (r *ResearchResult) EmptyFields() []string {
	var missing []string
	check := func(name, v string) {
		if v == "" {
			missing = append(missing, name)
		}
	}
	check("overview.summary", r.Overview.Summary)
	check("overview.history", r.Overview.History)
	check("overview.leadership", r.Overview.Leadership)
	if len(r.Overview.Tags) == 0 {
		missing = append(missing, "overview.tags")
	}
	check("financial.performance", r.Financial.Performance)
	check("financial.metrics", r.Financial.Metrics)
	check("market.position", r.Market.Position)
	check("market.trends", r.Market.Trends)
	check("competitors.main", r.Competitors.Main)
	check("competitors.analysis", r.Competitors.Analysis)
	check("investment.analysis", r.Investment.Analysis)
	check("investment.risks", r.Investment.Risks)
	check("investment.opportunities", r.Investment.Opportunities)
	if ai := r.AIInitiatives; ai != nil {
		check("ai_initiatives.summary", ai.Summary)
		if len(ai.Technologies) == 0 {
			missing = append(missing, "ai_initiatives.technologies")
		}
		check("ai_initiatives.impact", ai.Impact)
		check("ai_initiatives.strategy", ai.Strategy)
	}
	return missing
}

// Sections returns the report's text in display order as name/text pairs.
func (r *ResearchResult) Sections() [][2]string {
	out := [][2]string{
		{"Summary", r.Overview.Summary},
		{"History", r.Overview.History},
		{"Leadership", r.Overview.Leadership},
		{"Financial Performance", r.Financial.Performance},
		{"Financial Metrics", r.Financial.Metrics},
		{"Market Position", r.Market.Position},
		{"Market Trends", r.Market.Trends},
		{"Main Competitors", r.Competitors.Main},
		{"Competitive Analysis", r.Competitors.Analysis},
		{"Investment Analysis", r.Investment.Analysis},
		{"Risks", r.Investment.Risks},
		{"Opportunities", r.Investment.Opportunities},
	}
	if ai := r.AIInitiatives; ai != nil {
		out = append(out,
			[2]string{"AI Summary", ai.Summary},
			[2]string{"AI Impact", ai.Impact},
			[2]string{"AI Strategy", ai.Strategy},
		)
	}
	return out
}
