package model

import "time"

// SnapshotSource says where a FinancialSnapshot's numbers came from.
type SnapshotSource string

const (
	SourceProvider  SnapshotSource = "provider"
	SourceMock      SnapshotSource = "mock"
	SourceSynthetic SnapshotSource = "synthetic"
)

// FinancialSnapshot is a normalized set of stock metrics. Monetary totals
// are in billions; margins, yields and returns are percentages. Nil means
// the provider did not report the field.
type FinancialSnapshot struct {
	Symbol      string         `json:"symbol"`
	CompanyName string         `json:"company_name"`
	Description string         `json:"description,omitempty"`
	Sector      string         `json:"sector,omitempty"`
	Industry    string         `json:"industry,omitempty"`
	Source      SnapshotSource `json:"source"`
	FetchedAt   time.Time      `json:"fetched_at"`

	MarketCap          *float64 `json:"market_cap,omitempty"`
	PERatio            *float64 `json:"pe_ratio,omitempty"`
	ForwardPE          *float64 `json:"forward_pe,omitempty"`
	PriceToBook        *float64 `json:"price_to_book,omitempty"`
	ProfitMargin       *float64 `json:"profit_margin,omitempty"`
	OperatingMargin    *float64 `json:"operating_margin,omitempty"`
	Beta               *float64 `json:"beta,omitempty"`
	DividendYield      *float64 `json:"dividend_yield,omitempty"`
	DividendPerShare   *float64 `json:"dividend_per_share,omitempty"`
	ReturnOnEquity     *float64 `json:"return_on_equity,omitempty"`
	ReturnOnAssets     *float64 `json:"return_on_assets,omitempty"`
	CurrentRatio       *float64 `json:"current_ratio,omitempty"`
	DebtToEquity       *float64 `json:"debt_to_equity,omitempty"`
	GrossProfit        *float64 `json:"gross_profit,omitempty"`
	RevenuePerShare    *float64 `json:"revenue_per_share,omitempty"`
	AnalystTargetPrice *float64 `json:"analyst_target_price,omitempty"`
	FiftyTwoWeekHigh   *float64 `json:"fifty_two_week_high,omitempty"`
	FiftyTwoWeekLow    *float64 `json:"fifty_two_week_low,omitempty"`
	FiftyDayAverage    *float64 `json:"fifty_day_average,omitempty"`
	TwoHundredDayAvg   *float64 `json:"two_hundred_day_average,omitempty"`
	YearOverYearGrowth *float64 `json:"year_over_year_growth,omitempty"`

	QuarterlyRevenue []float64 `json:"quarterly_revenue,omitempty"`
	QuarterlyDates   []string  `json:"quarterly_dates,omitempty"`
	AnnualRevenue    []float64 `json:"annual_revenue,omitempty"`
	AnnualDates      []string  `json:"annual_dates,omitempty"`
}

// Metric is one labeled scalar of a snapshot.
type Metric struct {
	Label string
	Value *float64
	Unit  string
}

// Metrics lists the scalar fields in display order.
func (s *FinancialSnapshot) Metrics() []Metric {
	return []Metric{
		{"Market Cap", s.MarketCap, "B"},
		{"P/E Ratio", s.PERatio, ""},
		{"Forward P/E", s.ForwardPE, ""},
		{"Price/Book", s.PriceToBook, ""},
		{"Profit Margin", s.ProfitMargin, "%"},
		{"Operating Margin", s.OperatingMargin, "%"},
		{"Beta", s.Beta, ""},
		{"Dividend Yield", s.DividendYield, "%"},
		{"Dividend/Share", s.DividendPerShare, "$"},
		{"Return on Equity", s.ReturnOnEquity, "%"},
		{"Return on Assets", s.ReturnOnAssets, "%"},
		{"Current Ratio", s.CurrentRatio, ""},
		{"Debt/Equity", s.DebtToEquity, ""},
		{"Gross Profit", s.GrossProfit, "B"},
		{"Revenue/Share", s.RevenuePerShare, "$"},
		{"Analyst Target", s.AnalystTargetPrice, "$"},
		{"52W High", s.FiftyTwoWeekHigh, "$"},
		{"52W Low", s.FiftyTwoWeekLow, "$"},
		{"50D Average", s.FiftyDayAverage, "$"},
		{"200D Average", s.TwoHundredDayAvg, "$"},
		{"YoY Growth", s.YearOverYearGrowth, "%"},
	}
}
