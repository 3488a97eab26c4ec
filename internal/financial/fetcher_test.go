package financial

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/research-dashboard/internal/cache"
	"github.com/sells-group/research-dashboard/internal/catalog"
	"github.com/sells-group/research-dashboard/internal/credential"
	"github.com/sells-group/research-dashboard/internal/model"
	"github.com/sells-group/research-dashboard/internal/resilience"
	"github.com/sells-group/research-dashboard/pkg/alphavantage"
	"github.com/sells-group/research-dashboard/pkg/alphavantage/mocks"
)

type fixedBudget int

func (b fixedBudget) Remaining(credential.Provider) int { return int(b) }

type stubSymbols map[string]string

func (s stubSymbols) Resolve(_ context.Context, name string) (string, error) {
	if sym, ok := s[name]; ok {
		return sym, nil
	}
	return "", resilience.NewError(resilience.KindNotFound, "symbol", "no match for "+name)
}

func sampleOverview() *alphavantage.Overview {
	return &alphavantage.Overview{
		Symbol:                     "IBM",
		Name:                       "International Business Machines",
		Sector:                     "TECHNOLOGY",
		Industry:                   "COMPUTER & OFFICE EQUIPMENT",
		MarketCapitalization:       "170500000000",
		PERatio:                    "22.4",
		ProfitMargin:               "0.0913",
		OperatingMarginTTM:         "0.153",
		DividendYield:              "0.0365",
		ReturnOnEquityTTM:          "0.231",
		GrossProfitTTM:             "32688000000",
		Beta:                       "None",
		FiftyTwoWeekHigh:           "199.18",
		TwoHundredDayMovingAverage: "-",
	}
}

func sampleIncome() *alphavantage.IncomeStatement {
	return &alphavantage.IncomeStatement{
		Symbol: "IBM",
		QuarterlyReports: []alphavantage.Report{
			{FiscalDateEnding: "2024-03-31", TotalRevenue: "14462000000"},
			{FiscalDateEnding: "2023-12-31", TotalRevenue: "17381000000"},
			{FiscalDateEnding: "2023-09-30", TotalRevenue: "14752000000"},
			{FiscalDateEnding: "2023-06-30", TotalRevenue: "15475000000"},
			{FiscalDateEnding: "2023-03-31", TotalRevenue: "14252000000"},
		},
		AnnualReports: []alphavantage.Report{
			{FiscalDateEnding: "2023-12-31", TotalRevenue: "61860000000"},
			{FiscalDateEnding: "2022-12-31", TotalRevenue: "60530000000"},
		},
	}
}

func newFetcher(t *testing.T, budget int) (*Fetcher, *mocks.MockClient, *cache.Memory[*model.FinancialSnapshot]) {
	t.Helper()
	av := mocks.NewMockClient(t)
	c := cache.NewMemory[*model.FinancialSnapshot](5 * time.Minute)
	f := NewFetcher(av, fixedBudget(budget), stubSymbols{"Tesla": "TSLA", "IBM": "IBM"}, c, catalog.Default())
	return f, av, c
}

func TestFetch_ProviderNormalization(t *testing.T) {
	f, av, _ := newFetcher(t, -1)
	ctx := context.Background()
	av.On("Overview", ctx, "IBM").Return(sampleOverview(), nil).Once()
	av.On("IncomeStatement", ctx, "IBM").Return(sampleIncome(), nil).Once()

	s := f.Fetch(ctx, "ibm")
	require.NotNil(t, s)
	assert.Equal(t, model.SourceProvider, s.Source)
	assert.Equal(t, "IBM", s.Symbol)
	assert.Equal(t, "International Business Machines", s.CompanyName)
	assert.InDelta(t, 170.5, *s.MarketCap, 1e-9)
	assert.InDelta(t, 22.4, *s.PERatio, 1e-9)
	assert.InDelta(t, 9.13, *s.ProfitMargin, 1e-9)
	assert.InDelta(t, 15.3, *s.OperatingMargin, 1e-9)
	assert.InDelta(t, 3.65, *s.DividendYield, 1e-9)
	assert.InDelta(t, 23.1, *s.ReturnOnEquity, 1e-9)
	assert.InDelta(t, 32.69, *s.GrossProfit, 1e-9)
	assert.InDelta(t, 199.18, *s.FiftyTwoWeekHigh, 1e-9)
	assert.Nil(t, s.Beta)
	assert.Nil(t, s.TwoHundredDayAvg)
	assert.Nil(t, s.ForwardPE)

	assert.Equal(t, []float64{14.46, 17.38, 14.75, 15.48}, s.QuarterlyRevenue)
	assert.Equal(t, []string{"Q1 2024", "Q4 2023", "Q3 2023", "Q2 2023"}, s.QuarterlyDates)
	assert.Equal(t, []float64{61.86, 60.53}, s.AnnualRevenue)
	assert.Equal(t, []string{"2023", "2022"}, s.AnnualDates)

	require.NotNil(t, s.YearOverYearGrowth)
	// (14.46 - 15.48) / 15.48 * 100
	assert.InDelta(t, -6.59, *s.YearOverYearGrowth, 1e-9)
}

func TestFetch_CacheHitSameObject(t *testing.T) {
	f, av, c := newFetcher(t, -1)
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	c.WithClock(func() time.Time { return now })
	ctx := context.Background()

	av.On("Overview", ctx, "IBM").Return(sampleOverview(), nil).Twice()
	av.On("IncomeStatement", ctx, "IBM").Return(sampleIncome(), nil).Twice()

	first := f.Fetch(ctx, "IBM")
	now = now.Add(4 * time.Minute)
	second := f.Fetch(ctx, "IBM")
	assert.Same(t, first, second)
	av.AssertNumberOfCalls(t, "Overview", 1)

	now = now.Add(2 * time.Minute)
	third := f.Fetch(ctx, "IBM")
	assert.NotSame(t, first, third)
	av.AssertNumberOfCalls(t, "Overview", 2)
}

func TestFetch_NearLimitSkipsNetwork(t *testing.T) {
	for _, remaining := range []int{0, 1} {
		f, av, _ := newFetcher(t, remaining)
		s := f.Fetch(context.Background(), "AAPL")
		assert.Equal(t, model.SourceMock, s.Source)
		assert.InDelta(t, 2.89, *s.MarketCap, 1e-9)
		assert.Equal(t, []float64{90.15, 94.84, 81.80, 82.96}, s.QuarterlyRevenue)
		av.AssertNotCalled(t, "Overview", mock.Anything, mock.Anything)
	}
}

func TestFetch_ProviderErrorFallsBackToSynthetic(t *testing.T) {
	f, av, _ := newFetcher(t, 20)
	ctx := context.Background()
	av.On("Overview", ctx, "ZZZ").
		Return(nil, resilience.NewError(resilience.KindRateLimited, "financial", "Thank you for using Alpha Vantage")).Once()

	s := f.Fetch(ctx, "ZZZ")
	assert.Equal(t, model.SourceSynthetic, s.Source)
	assert.Equal(t, "ZZZ", s.CompanyName)
	av.AssertNotCalled(t, "IncomeStatement", mock.Anything, mock.Anything)
}

func TestFetch_InvalidPayloadFallsBack(t *testing.T) {
	ctx := context.Background()

	t.Run("empty overview", func(t *testing.T) {
		f, av, _ := newFetcher(t, 20)
		av.On("Overview", ctx, "MSFT").Return(&alphavantage.Overview{}, nil).Once()
		s := f.Fetch(ctx, "MSFT")
		assert.Equal(t, model.SourceMock, s.Source)
		assert.InDelta(t, 3.05, *s.MarketCap, 1e-9)
	})

	t.Run("income without quarterly reports", func(t *testing.T) {
		f, av, _ := newFetcher(t, 20)
		av.On("Overview", ctx, "IBM").Return(sampleOverview(), nil).Once()
		av.On("IncomeStatement", ctx, "IBM").Return(&alphavantage.IncomeStatement{Symbol: "IBM"}, nil).Once()
		s := f.Fetch(ctx, "IBM")
		assert.Equal(t, model.SourceSynthetic, s.Source)
	})
}

func TestFetch_FallbackIsCached(t *testing.T) {
	f, av, _ := newFetcher(t, 20)
	ctx := context.Background()
	av.On("Overview", ctx, "ZZZ").Return(nil, assert.AnError).Once()

	first := f.Fetch(ctx, "ZZZ")
	second := f.Fetch(ctx, "ZZZ")
	assert.Same(t, first, second)
}

func TestFetchForCompany(t *testing.T) {
	f, av, _ := newFetcher(t, 0)
	ctx := context.Background()

	s := f.FetchForCompany(ctx, "Tesla")
	assert.Equal(t, "TSLA", s.Symbol)
	assert.Equal(t, model.SourceSynthetic, s.Source)

	unknown := f.FetchForCompany(ctx, "Zzzyx Nonexistent Corp")
	assert.Equal(t, "ZZZYX NONEXISTENT CORP", unknown.Symbol)
	assert.Equal(t, model.SourceSynthetic, unknown.Source)
	assert.Same(t, unknown, f.FetchForCompany(ctx, "Zzzyx Nonexistent Corp"))
	av.AssertNotCalled(t, "Overview", mock.Anything, mock.Anything)
}

func TestSynthetic_DeterministicAndInRange(t *testing.T) {
	now := time.Now()
	a := Synthetic("ACME", now)
	b := Synthetic("ACME", now)
	assert.Equal(t, a, b)

	assert.GreaterOrEqual(t, *a.MarketCap, 10.0)
	assert.Less(t, *a.MarketCap, 110.0)
	assert.GreaterOrEqual(t, *a.PERatio, 5.0)
	assert.Less(t, *a.PERatio, 35.0)
	assert.GreaterOrEqual(t, *a.YearOverYearGrowth, -5.0)
	assert.Less(t, *a.YearOverYearGrowth, 15.0)
	require.Len(t, a.QuarterlyRevenue, 4)
	require.Len(t, a.AnnualRevenue, 4)
	for i, base := range quarterlyBase {
		assert.GreaterOrEqual(t, a.QuarterlyRevenue[i], base)
		assert.LessOrEqual(t, a.QuarterlyRevenue[i], base+10)
	}
	for i, base := range annualBase {
		assert.GreaterOrEqual(t, a.AnnualRevenue[i], base)
		assert.LessOrEqual(t, a.AnnualRevenue[i], base+20)
	}

	other := Synthetic("OTHER", now)
	assert.NotEqual(t, *a.MarketCap, *other.MarketCap)
}

func TestGrowth(t *testing.T) {
	assert.Nil(t, Growth([]float64{1, 2, 3}))
	assert.Nil(t, Growth([]float64{10, 1, 1, 0}))
	g := Growth([]float64{110, 1, 1, 100})
	require.NotNil(t, g)
	assert.InDelta(t, 10.0, *g, 1e-9)
}

func TestQuarterLabel(t *testing.T) {
	tests := map[string]string{
		"2024-03-31": "Q1 2024",
		"2023-12-31": "Q4 2023",
		"2023-09-30": "Q3 2023",
		"2023-06-30": "Q2 2023",
		"2023-04-01": "Q2 2023",
		"bogus":      "bogus",
	}
	for in, want := range tests {
		assert.Equal(t, want, QuarterLabel(in), in)
	}
}

func TestWriteXLSX(t *testing.T) {
	f, _, _ := newFetcher(t, 0)
	snap := f.Fallback("AAPL")

	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(snap, &buf))

	wb, err := xlsx.OpenBinary(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, wb.Sheets, 2)

	metrics := wb.Sheet["Metrics"]
	require.NotNil(t, metrics)
	assert.Equal(t, "AAPL", metrics.Rows[0].Cells[1].String())
	assert.Equal(t, "mock", metrics.Rows[2].Cells[1].String())
	assert.Equal(t, "Market Cap", metrics.Rows[3].Cells[0].String())
	assert.Equal(t, "2.89", metrics.Rows[3].Cells[1].Value)

	revenue := wb.Sheet["Revenue"]
	require.NotNil(t, revenue)
	// Header + 4 quarters + 4 years.
	assert.Len(t, revenue.Rows, 9)
	assert.Equal(t, "Q1 2024", revenue.Rows[1].Cells[0].String())
	assert.Equal(t, "annual", revenue.Rows[5].Cells[2].String())
}
