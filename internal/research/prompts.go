package research

import "fmt"

// Search queries per agent.

func overviewQuery(company string) string {
	return company + " company overview history leadership latest news"
}

func financialQuery(company string) string {
	return company + " financial performance revenue profit earnings latest quarterly results"
}

func marketQuery(company string) string {
	return company + " market share industry trends market position target customers"
}

func competitorsQuery(company string) string {
	return company + " competitors comparison competitive advantage industry rivals"
}

func investmentQuery(company string) string {
	return company + " investment potential stock performance risks opportunities growth forecast"
}

func aiQuery(company string) string {
	return company + " artificial intelligence AI initiatives machine learning strategy"
}

const formatRules = `Write plain text. Separate each numbered part with one blank line and do
not use headings. Be factual and specific.`

func overviewPrompt(company, evidence string) string {
	return fmt.Sprintf(`You are a company research analyst preparing a briefing on %[1]s.

Recent web results:
%[2]s

Using these results and your own knowledge, write:
1. A detailed summary of %[1]s: what it does, its scale and where it operates.
2. Its history: founding, major milestones and how the business evolved.
3. Its current leadership team and management structure.
4. A single line starting with "Tags:" followed by five comma-separated industry or category tags.

%[3]s`, company, evidence, formatRules)
}

func tagsPrompt(company string) string {
	return fmt.Sprintf("List exactly 5 industry or category tags for the company %s as one comma-separated line. Reply with the tags only.", company)
}

func financialPrompt(company, evidence string) string {
	return fmt.Sprintf(`You are a financial analyst covering %[1]s.

Recent web results:
%[2]s

Using these results and your own knowledge, write:
1. An analysis of %[1]s's financial performance over recent years: revenue trend, profitability and growth.
2. The key financial metrics (P/E, EBITDA, debt-to-equity and similar) and what they say about its financial health.

If %[1]s is private and figures are not public, say so and give the best available estimates.

%[3]s`, company, evidence, formatRules)
}

func marketPrompt(company, evidence string) string {
	return fmt.Sprintf(`You are a market research analyst covering %[1]s.

Recent web results:
%[2]s

Using these results and your own knowledge, write:
1. %[1]s's current market position: share, target customers and geographic presence.
2. The market and industry trends most likely to affect %[1]s in the near future.

%[3]s`, company, evidence, formatRules)
}

func competitorsPrompt(company, evidence string) string {
	return fmt.Sprintf(`You are a competitive intelligence analyst covering %[1]s.

Recent web results:
%[2]s

Using these results and your own knowledge, write:
1. The main competitors of %[1]s with one sentence on each.
2. A comparison of %[1]s against them covering strengths, weaknesses and competitive advantages.

%[3]s`, company, evidence, formatRules)
}

func investmentPrompt(company, evidence string) string {
	return fmt.Sprintf(`You are an investment analyst assessing %[1]s for a prospective investor.

Recent web results:
%[2]s

Using these results and your own knowledge, write:
1. An analysis of %[1]s as an investment, including valuation and likely future performance.
2. The main investment risks of %[1]s.
3. The main opportunities and growth catalysts for %[1]s.

Give a balanced view. %[3]s`, company, evidence, formatRules)
}

func aiPrompt(company, evidence string) string {
	return fmt.Sprintf(`You are a technology analyst studying how %[1]s uses artificial intelligence.

Recent web results:
%[2]s

Using these results and your own knowledge, write:
1. A summary of the AI initiatives of %[1]s.
2. A single line starting with "Technologies:" followed by the key AI technologies it uses, comma-separated.
3. The impact of these initiatives on the business of %[1]s.
4. The overall AI strategy of %[1]s and where it is heading.

%[3]s`, company, evidence, formatRules)
}

func technologiesPrompt(company string) string {
	return fmt.Sprintf("List the key AI technologies used by %s as one comma-separated line. Reply with the technologies only.", company)
}
