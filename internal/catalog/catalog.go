// Package catalog holds the static reference data shipped with the binary:
// well-known company tickers, trusted news domains and fallback financials.
package catalog

import (
	_ "embed"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var embedded []byte

// Catalog is the decoded reference data.
type Catalog struct {
	Companies      map[string]string         `yaml:"companies"`
	TrustedDomains []string                  `yaml:"trusted_domains"`
	MockFinancials map[string]MockFinancials `yaml:"mock_financials"`
}

// MockFinancials is a canned snapshot for a well-known ticker. Totals are in
// billions.
type MockFinancials struct {
	MarketCap          float64   `yaml:"market_cap"`
	PERatio            float64   `yaml:"pe_ratio"`
	YearOverYearGrowth float64   `yaml:"year_over_year_growth"`
	QuarterlyRevenue   []float64 `yaml:"quarterly_revenue"`
	QuarterlyDates     []string  `yaml:"quarterly_dates"`
	AnnualRevenue      []float64 `yaml:"annual_revenue"`
	AnnualDates        []string  `yaml:"annual_dates"`
}

// Parse decodes catalog YAML and checks the revenue series are paired.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, eris.Wrap(err, "catalog: parse")
	}
	for sym, m := range c.MockFinancials {
		if len(m.QuarterlyRevenue) != len(m.QuarterlyDates) {
			return nil, eris.Errorf("catalog: %s quarterly revenue and dates differ in length", sym)
		}
		if len(m.AnnualRevenue) != len(m.AnnualDates) {
			return nil, eris.Errorf("catalog: %s annual revenue and dates differ in length", sym)
		}
	}
	companies := make(map[string]string, len(c.Companies))
	for name, sym := range c.Companies {
		companies[strings.ToLower(strings.TrimSpace(name))] = strings.ToUpper(sym)
	}
	c.Companies = companies
	return &c, nil
}

var (
	defaultOnce sync.Once
	defaultCat  *Catalog
)

// Default returns the embedded catalog. It panics if the embedded file is
// malformed, which a unit test guards against.
func Default() *Catalog {
	defaultOnce.Do(func() {
		c, err := Parse(embedded)
		if err != nil {
			panic(err)
		}
		defaultCat = c
	})
	return defaultCat
}

// Ticker returns the ticker for a normalized company name.
func (c *Catalog) Ticker(name string) (string, bool) {
	sym, ok := c.Companies[name]
	return sym, ok
}

// Mock returns the canned financials for symbol.
func (c *Catalog) Mock(symbol string) (MockFinancials, bool) {
	m, ok := c.MockFinancials[strings.ToUpper(symbol)]
	return m, ok
}

// Trusted reports whether host is, or is a subdomain of, a trusted domain.
func (c *Catalog) Trusted(host string) bool {
	host = strings.ToLower(strings.TrimPrefix(host, "www."))
	for _, d := range c.TrustedDomains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}
