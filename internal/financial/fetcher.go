// Package financial retrieves normalized stock metrics for a ticker. Fetch
// never fails: provider errors and exhausted budgets fall back to canned or
// synthetic numbers.
package financial

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sells-group/research-dashboard/internal/cache"
	"github.com/sells-group/research-dashboard/internal/catalog"
	"github.com/sells-group/research-dashboard/internal/credential"
	"github.com/sells-group/research-dashboard/internal/model"
	"github.com/sells-group/research-dashboard/internal/monitoring"
	"github.com/sells-group/research-dashboard/internal/resilience"
	"github.com/sells-group/research-dashboard/pkg/alphavantage"
)

// seriesLen is how many recent periods are kept per revenue series.
const seriesLen = 4

// BudgetReader reports remaining provider calls, -1 when unlimited.
type BudgetReader interface {
	Remaining(p credential.Provider) int
}

// SymbolResolver maps a company name to a ticker.
type SymbolResolver interface {
	Resolve(ctx context.Context, name string) (string, error)
}

// Fetcher returns FinancialSnapshots, caching every result by ticker.
type Fetcher struct {
	av      alphavantage.Client
	budget  BudgetReader
	symbols SymbolResolver
	cache   cache.Cache[*model.FinancialSnapshot]
	catalog *catalog.Catalog
	now     func() time.Time
}

// NewFetcher creates a Fetcher.
func NewFetcher(av alphavantage.Client, budget BudgetReader, symbols SymbolResolver, c cache.Cache[*model.FinancialSnapshot], cat *catalog.Catalog) *Fetcher {
	return &Fetcher{
		av:      av,
		budget:  budget,
		symbols: symbols,
		cache:   c,
		catalog: cat,
		now:     time.Now,
	}
}

// Fetch returns the snapshot for ticker.
func (f *Fetcher) Fetch(ctx context.Context, ticker string) *model.FinancialSnapshot {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if s, ok := f.cache.Get(ctx, ticker); ok {
		zap.L().Debug("financial: cache hit", zap.String("symbol", ticker))
		return s
	}

	var snap *model.FinancialSnapshot
	if rem := f.budget.Remaining(credential.Financial); rem >= 0 && rem <= 1 {
		zap.L().Warn("financial: budget nearly exhausted, serving fallback",
			zap.String("symbol", ticker), zap.Int("remaining", rem))
		snap = f.Fallback(ticker)
	} else {
		var err error
		snap, err = f.fetchProvider(ctx, ticker)
		if err != nil {
			zap.L().Warn("financial: provider fetch failed, serving fallback",
				zap.String("symbol", ticker), zap.Error(err))
			snap = f.Fallback(ticker)
		}
	}

	monitoring.RecordFinancial(string(snap.Source))
	f.cache.Set(ctx, ticker, snap)
	return snap
}

// FetchForCompany resolves name to a ticker and fetches it. A name that
// cannot be resolved gets the synthetic snapshot for the upper-cased name.
func (f *Fetcher) FetchForCompany(ctx context.Context, name string) *model.FinancialSnapshot {
	ticker, err := f.symbols.Resolve(ctx, name)
	if err != nil {
		key := strings.ToUpper(strings.TrimSpace(name))
		zap.L().Warn("financial: symbol unresolved, serving synthetic data",
			zap.String("company", name), zap.String("kind", resilience.KindOf(err).String()), zap.Error(err))
		if s, ok := f.cache.Get(ctx, key); ok {
			return s
		}
		snap := Synthetic(key, f.now())
		monitoring.RecordFinancial(string(snap.Source))
		f.cache.Set(ctx, key, snap)
		return snap
	}
	return f.Fetch(ctx, ticker)
}

// Fallback returns the canned snapshot for ticker, or synthetic data when
// none exists.
func (f *Fetcher) Fallback(ticker string) *model.FinancialSnapshot {
	if m, ok := f.catalog.Mock(ticker); ok {
		return fromMock(ticker, m, f.now())
	}
	return Synthetic(ticker, f.now())
}

func (f *Fetcher) fetchProvider(ctx context.Context, ticker string) (*model.FinancialSnapshot, error) {
	ov, err := f.av.Overview(ctx, ticker)
	if err != nil {
		return nil, eris.Wrap(err, "financial: overview")
	}
	if ov == nil || ov.Symbol == "" {
		return nil, eris.Errorf("financial: overview for %s has no symbol", ticker)
	}

	inc, err := f.av.IncomeStatement(ctx, ticker)
	if err != nil {
		return nil, eris.Wrap(err, "financial: income statement")
	}
	if inc == nil || inc.QuarterlyReports == nil {
		return nil, eris.Errorf("financial: income statement for %s has no quarterly reports", ticker)
	}

	snap := fromOverview(ticker, ov)
	snap.FetchedAt = f.now()
	applyIncome(snap, inc)
	return snap, nil
}

func fromOverview(ticker string, ov *alphavantage.Overview) *model.FinancialSnapshot {
	return &model.FinancialSnapshot{
		Symbol:      ticker,
		CompanyName: ov.Name,
		Description: ov.Description,
		Sector:      ov.Sector,
		Industry:    ov.Industry,
		Source:      model.SourceProvider,

		MarketCap:          scaled(ov.MarketCapitalization, 1e-9),
		PERatio:            scaled(ov.PERatio, 1),
		ForwardPE:          scaled(ov.ForwardPE, 1),
		PriceToBook:        scaled(ov.PriceToBookRatio, 1),
		ProfitMargin:       scaled(ov.ProfitMargin, 100),
		OperatingMargin:    scaled(ov.OperatingMarginTTM, 100),
		Beta:               scaled(ov.Beta, 1),
		DividendYield:      scaled(ov.DividendYield, 100),
		DividendPerShare:   scaled(ov.DividendPerShare, 1),
		ReturnOnEquity:     scaled(ov.ReturnOnEquityTTM, 100),
		ReturnOnAssets:     scaled(ov.ReturnOnAssetsTTM, 100),
		CurrentRatio:       scaled(ov.CurrentRatio, 1),
		DebtToEquity:       scaled(ov.DebtToEquityRatio, 1),
		GrossProfit:        scaled(ov.GrossProfitTTM, 1e-9),
		RevenuePerShare:    scaled(ov.RevenuePerShareTTM, 1),
		AnalystTargetPrice: scaled(ov.AnalystTargetPrice, 1),
		FiftyTwoWeekHigh:   scaled(ov.FiftyTwoWeekHigh, 1),
		FiftyTwoWeekLow:    scaled(ov.FiftyTwoWeekLow, 1),
		FiftyDayAverage:    scaled(ov.FiftyDayMovingAverage, 1),
		TwoHundredDayAvg:   scaled(ov.TwoHundredDayMovingAverage, 1),
	}
}

func applyIncome(snap *model.FinancialSnapshot, inc *alphavantage.IncomeStatement) {
	if q := inc.QuarterlyReports; len(q) > 0 {
		q = q[:min(seriesLen, len(q))]
		for _, r := range q {
			v, _ := alphavantage.Float(r.TotalRevenue)
			snap.QuarterlyRevenue = append(snap.QuarterlyRevenue, round(v/1e9))
			snap.QuarterlyDates = append(snap.QuarterlyDates, QuarterLabel(r.FiscalDateEnding))
		}
		snap.YearOverYearGrowth = Growth(snap.QuarterlyRevenue)
	}
	if a := inc.AnnualReports; len(a) > 0 {
		a = a[:min(seriesLen, len(a))]
		for _, r := range a {
			v, _ := alphavantage.Float(r.TotalRevenue)
			snap.AnnualRevenue = append(snap.AnnualRevenue, round(v/1e9))
			year := r.FiscalDateEnding
			if len(year) >= 4 {
				year = year[:4]
			}
			snap.AnnualDates = append(snap.AnnualDates, year)
		}
	}
}

// Growth is the change of the latest quarter over the quarter three
// positions later, in percent. Nil when fewer than four quarters are
// present or either figure is zero.
func Growth(quarterly []float64) *float64 {
	if len(quarterly) < seriesLen {
		return nil
	}
	latest, prior := quarterly[0], quarterly[seriesLen-1]
	if latest == 0 || prior == 0 {
		return nil
	}
	g := decimal.NewFromFloat(latest).Sub(decimal.NewFromFloat(prior)).
		Div(decimal.NewFromFloat(prior)).
		Mul(decimal.NewFromInt(100)).
		Round(2).
		InexactFloat64()
	return &g
}

// QuarterLabel renders a fiscal date as "Q<n> <year>". Unparseable dates are
// returned unchanged.
func QuarterLabel(fiscalDate string) string {
	t, err := time.Parse(time.DateOnly, fiscalDate)
	if err != nil {
		return fiscalDate
	}
	return fmt.Sprintf("Q%d %d", (int(t.Month())-1)/3+1, t.Year())
}

func scaled(s string, factor float64) *float64 {
	v, ok := alphavantage.Float(s)
	if !ok {
		return nil
	}
	r := decimal.NewFromFloat(v).Mul(decimal.NewFromFloat(factor)).Round(2).InexactFloat64()
	return &r
}

func round(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

func ptr(v float64) *float64 {
	return &v
}
