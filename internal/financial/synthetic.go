package financial

import (
	"hash/fnv"
	"math/rand/v2"
	"time"

	"github.com/sells-group/research-dashboard/internal/catalog"
	"github.com/sells-group/research-dashboard/internal/model"
)

var (
	fallbackQuarterDates = []string{"Q1 2024", "Q4 2023", "Q3 2023", "Q2 2023"}
	fallbackAnnualDates  = []string{"2023", "2022", "2021", "2020"}
	quarterlyBase        = []float64{40, 38, 42, 39}
	annualBase           = []float64{150, 140, 130, 120}
)

func fromMock(ticker string, m catalog.MockFinancials, now time.Time) *model.FinancialSnapshot {
	return &model.FinancialSnapshot{
		Symbol:             ticker,
		CompanyName:        ticker,
		Source:             model.SourceMock,
		FetchedAt:          now,
		MarketCap:          ptr(m.MarketCap),
		PERatio:            ptr(m.PERatio),
		YearOverYearGrowth: ptr(m.YearOverYearGrowth),
		QuarterlyRevenue:   append([]float64(nil), m.QuarterlyRevenue...),
		QuarterlyDates:     append([]string(nil), m.QuarterlyDates...),
		AnnualRevenue:      append([]float64(nil), m.AnnualRevenue...),
		AnnualDates:        append([]string(nil), m.AnnualDates...),
	}
}

// Synthetic generates plausible numbers for ticker. The same ticker always
// yields the same numbers.
func Synthetic(ticker string, now time.Time) *model.FinancialSnapshot {
	h := fnv.New64a()
	_, _ = h.Write([]byte(ticker))
	seed := h.Sum64()
	rng := rand.New(rand.NewPCG(seed, seed>>1|1))

	s := &model.FinancialSnapshot{
		Symbol:             ticker,
		CompanyName:        ticker,
		Source:             model.SourceSynthetic,
		FetchedAt:          now,
		MarketCap:          ptr(round(rng.Float64()*100 + 10)),
		PERatio:            ptr(round(rng.Float64()*30 + 5)),
		YearOverYearGrowth: ptr(round(rng.Float64()*20 - 5)),
		QuarterlyDates:     append([]string(nil), fallbackQuarterDates...),
		AnnualDates:        append([]string(nil), fallbackAnnualDates...),
	}
	for _, b := range quarterlyBase {
		s.QuarterlyRevenue = append(s.QuarterlyRevenue, round(b+rng.Float64()*10))
	}
	for _, b := range annualBase {
		s.AnnualRevenue = append(s.AnnualRevenue, round(b+rng.Float64()*20))
	}
	return s
}
