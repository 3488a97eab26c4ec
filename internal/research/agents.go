package research

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/research-dashboard/internal/model"
	"github.com/sells-group/research-dashboard/internal/sections"
)

// Agent ids, also used as WebSource.AgentID.
const (
	agentOverview    = "overview"
	agentFinancial   = "financial"
	agentMarket      = "market"
	agentCompetitors = "competitors"
	agentInvestment  = "investment"
	agentAI          = "ai-initiatives"
)

const (
	maxTags         = 5
	maxTechnologies = 8
)

type agent struct {
	id      string
	run     func(ctx context.Context, o *Orchestrator, p *parts, company string, emit func(model.WebSource)) error
	degrade func(p *parts, company string)
}

func allAgents() []agent {
	return []agent{
		{id: agentOverview, run: runOverview, degrade: degradeOverview},
		{id: agentFinancial, run: runFinancial, degrade: degradeFinancial},
		{id: agentMarket, run: runMarket, degrade: degradeMarket},
		{id: agentCompetitors, run: runCompetitors, degrade: degradeCompetitors},
		{id: agentInvestment, run: runInvestment, degrade: degradeInvestment},
		{id: agentAI, run: runAIInitiatives, degrade: degradeAIInitiatives},
	}
}

func (o *Orchestrator) agents() []agent {
	all := allAgents()
	if o.aiInitiatives {
		return all
	}
	return all[:len(all)-1]
}

// narrate gathers evidence for query and generates the agent's text from
// the prompt built around it.
func (o *Orchestrator) narrate(ctx context.Context, agentID, query string, prompt func(evidence string) string, emit func(model.WebSource)) (string, error) {
	ev, err := o.search.Gather(ctx, agentID, query, emit)
	if err != nil {
		return "", eris.Wrapf(err, "research: %s evidence", agentID)
	}
	text, err := o.gen.Generate(ctx, prompt(ev.Digest()))
	if err != nil {
		return "", eris.Wrapf(err, "research: %s narrative", agentID)
	}
	return text, nil
}

func runOverview(ctx context.Context, o *Orchestrator, p *parts, company string, emit func(model.WebSource)) error {
	text, err := o.narrate(ctx, agentOverview, overviewQuery(company), func(ev string) string {
		return overviewPrompt(company, ev)
	}, emit)
	if err != nil {
		return err
	}
	s := sections.Parse(text, 4)
	p.overview = model.Overview{
		Summary:    s[0],
		History:    s[1],
		Leadership: s[2],
		Tags:       o.tags(ctx, company, text),
	}
	return nil
}

// tags pulls the labeled tag line out of text, asking for a plain list when
// there is none. Follow-up failures fall back to default tags rather than
// degrading the whole overview.
func (o *Orchestrator) tags(ctx context.Context, company, text string) []string {
	list := sections.ExtractList(sections.Labeled(text, "tags", "keywords"), maxTags)
	if len(list) == 0 {
		resp, err := o.gen.Generate(ctx, tagsPrompt(company))
		if err != nil {
			zap.L().Warn("research: tag follow-up failed", zap.String("company", company), zap.Error(err))
		} else {
			list = sections.ExtractList(resp, maxTags)
		}
	}
	if len(list) == 0 {
		return defaultTags(company)
	}
	return titleCase(list)
}

func defaultTags(company string) []string {
	return []string{company, "company", "business", "organization", "corporation"}
}

// titleCase capitalizes all-lowercase items and leaves acronyms and mixed
// case alone.
func titleCase(items []string) []string {
	caser := cases.Title(language.English)
	out := make([]string, len(items))
	for i, it := range items {
		if it == strings.ToLower(it) {
			it = caser.String(it)
		}
		out[i] = it
	}
	return out
}

func degradeOverview(p *parts, company string) {
	p.overview = model.Overview{
		Summary:    fmt.Sprintf("Unable to generate a company summary for %s.", company),
		History:    fmt.Sprintf("Unable to retrieve the history of %s.", company),
		Leadership: fmt.Sprintf("Unable to retrieve leadership information for %s.", company),
		Tags:       defaultTags(company),
	}
}

func runFinancial(ctx context.Context, o *Orchestrator, p *parts, company string, emit func(model.WebSource)) error {
	text, err := o.narrate(ctx, agentFinancial, financialQuery(company), func(ev string) string {
		return financialPrompt(company, ev)
	}, emit)
	if err != nil {
		return err
	}
	s := sections.Parse(text, 2)
	p.financial = model.FinancialAnalysis{Performance: s[0], Metrics: s[1]}
	return nil
}

func degradeFinancial(p *parts, company string) {
	p.financial = model.FinancialAnalysis{
		Performance: fmt.Sprintf("Unable to analyze the financial performance of %s.", company),
		Metrics:     fmt.Sprintf("Unable to retrieve key financial metrics for %s.", company),
	}
}

func runMarket(ctx context.Context, o *Orchestrator, p *parts, company string, emit func(model.WebSource)) error {
	text, err := o.narrate(ctx, agentMarket, marketQuery(company), func(ev string) string {
		return marketPrompt(company, ev)
	}, emit)
	if err != nil {
		return err
	}
	s := sections.Parse(text, 2)
	p.market = model.MarketAnalysis{Position: s[0], Trends: s[1]}
	return nil
}

func degradeMarket(p *parts, company string) {
	p.market = model.MarketAnalysis{
		Position: fmt.Sprintf("Unable to analyze the market position of %s.", company),
		Trends:   fmt.Sprintf("Unable to retrieve market trends affecting %s.", company),
	}
}

func runCompetitors(ctx context.Context, o *Orchestrator, p *parts, company string, emit func(model.WebSource)) error {
	text, err := o.narrate(ctx, agentCompetitors, competitorsQuery(company), func(ev string) string {
		return competitorsPrompt(company, ev)
	}, emit)
	if err != nil {
		return err
	}
	s := sections.Parse(text, 2)
	p.competitors = model.CompetitorAnalysis{Main: s[0], Analysis: s[1]}
	return nil
}

func degradeCompetitors(p *parts, company string) {
	p.competitors = model.CompetitorAnalysis{
		Main:     fmt.Sprintf("Unable to identify the main competitors of %s.", company),
		Analysis: fmt.Sprintf("Unable to generate a competitive analysis for %s.", company),
	}
}

func runInvestment(ctx context.Context, o *Orchestrator, p *parts, company string, emit func(model.WebSource)) error {
	text, err := o.narrate(ctx, agentInvestment, investmentQuery(company), func(ev string) string {
		return investmentPrompt(company, ev)
	}, emit)
	if err != nil {
		return err
	}
	s := sections.Parse(text, 3)
	// Risk and opportunity paragraphs are located by keyword when the model
	// reorders or merges them; the first paragraph is always the analysis.
	if paras := sections.Paragraphs(text); len(paras) > 1 {
		if r, ok := sections.FindParagraph(paras[1:], "risk"); ok {
			s[1] = r
		}
		if op, ok := sections.FindParagraph(paras[1:], "opportunit", "catalyst"); ok {
			s[2] = op
		}
	}
	p.investment = model.InvestmentAnalysis{Analysis: s[0], Risks: s[1], Opportunities: s[2]}
	return nil
}

func degradeInvestment(p *parts, company string) {
	p.investment = model.InvestmentAnalysis{
		Analysis:      fmt.Sprintf("Unable to generate an investment analysis for %s.", company),
		Risks:         fmt.Sprintf("Unable to assess investment risks for %s.", company),
		Opportunities: fmt.Sprintf("Unable to identify investment opportunities for %s.", company),
	}
}

func runAIInitiatives(ctx context.Context, o *Orchestrator, p *parts, company string, emit func(model.WebSource)) error {
	text, err := o.narrate(ctx, agentAI, aiQuery(company), func(ev string) string {
		return aiPrompt(company, ev)
	}, emit)
	if err != nil {
		return err
	}
	s := sections.Parse(text, 4)
	p.ai = model.AIInitiatives{
		Summary:      s[0],
		Technologies: o.technologies(ctx, company, text, s[1]),
		Impact:       s[2],
		Strategy:     s[3],
	}
	return nil
}

func (o *Orchestrator) technologies(ctx context.Context, company, text, slot string) []string {
	list := sections.ExtractList(sections.Labeled(text, "technologies", "key technologies", "ai technologies"), maxTechnologies)
	if len(list) < 2 && slot != sections.Placeholder {
		if fromSlot := sections.ExtractList(slot, maxTechnologies); len(fromSlot) > 1 {
			list = fromSlot
		}
	}
	if len(list) == 0 {
		resp, err := o.gen.Generate(ctx, technologiesPrompt(company))
		if err != nil {
			zap.L().Warn("research: technology follow-up failed", zap.String("company", company), zap.Error(err))
		} else {
			list = sections.ExtractList(resp, maxTechnologies)
		}
	}
	if len(list) == 0 {
		return []string{sections.Placeholder}
	}
	return list
}

func degradeAIInitiatives(p *parts, company string) {
	p.ai = model.AIInitiatives{
		Summary:      fmt.Sprintf("Unable to summarize the AI initiatives of %s.", company),
		Technologies: []string{sections.Placeholder},
		Impact:       fmt.Sprintf("Unable to assess the impact of AI on %s.", company),
		Strategy:     fmt.Sprintf("Unable to describe the AI strategy of %s.", company),
	}
}
