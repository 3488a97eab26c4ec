// Package alphavantage is a client for the Alpha Vantage query API. Calls
// go through a fetch.Caller, which owns the API key, budget and throttle.
package alphavantage

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/research-dashboard/internal/credential"
	"github.com/sells-group/research-dashboard/internal/fetch"
	"github.com/sells-group/research-dashboard/internal/resilience"
)

const defaultBaseURL = "https://www.alphavantage.co/query"

// Client performs Alpha Vantage operations.
type Client interface {
	SymbolSearch(ctx context.Context, keywords string) ([]Match, error)
	Overview(ctx context.Context, symbol string) (*Overview, error)
	IncomeStatement(ctx context.Context, symbol string) (*IncomeStatement, error)
}

// Match is one SYMBOL_SEARCH candidate.
type Match struct {
	Symbol     string  `json:"symbol"`
	Name       string  `json:"name"`
	Type       string  `json:"type"`
	Region     string  `json:"region"`
	Currency   string  `json:"currency"`
	MatchScore float64 `json:"match_score"`
}

type rawMatch struct {
	Symbol     string `json:"1. symbol"`
	Name       string `json:"2. name"`
	Type       string `json:"3. type"`
	Region     string `json:"4. region"`
	Currency   string `json:"8. currency"`
	MatchScore string `json:"9. matchScore"`
}

type searchResponse struct {
	BestMatches []rawMatch `json:"bestMatches"`
}

// Overview is the OVERVIEW payload. Alpha Vantage returns every value as a
// string, with "None" or "-" for missing data.
type Overview struct {
	Symbol                     string `json:"Symbol"`
	Name                       string `json:"Name"`
	Description                string `json:"Description"`
	Sector                     string `json:"Sector"`
	Industry                   string `json:"Industry"`
	MarketCapitalization       string `json:"MarketCapitalization"`
	PERatio                    string `json:"PERatio"`
	ForwardPE                  string `json:"ForwardPE"`
	PriceToBookRatio           string `json:"PriceToBookRatio"`
	ProfitMargin               string `json:"ProfitMargin"`
	OperatingMarginTTM         string `json:"OperatingMarginTTM"`
	Beta                       string `json:"Beta"`
	DividendYield              string `json:"DividendYield"`
	DividendPerShare           string `json:"DividendPerShare"`
	ReturnOnEquityTTM          string `json:"ReturnOnEquityTTM"`
	ReturnOnAssetsTTM          string `json:"ReturnOnAssetsTTM"`
	CurrentRatio               string `json:"CurrentRatio"`
	DebtToEquityRatio          string `json:"DebtToEquityRatio"`
	GrossProfitTTM             string `json:"GrossProfitTTM"`
	RevenuePerShareTTM         string `json:"RevenuePerShareTTM"`
	AnalystTargetPrice         string `json:"AnalystTargetPrice"`
	FiftyTwoWeekHigh           string `json:"52WeekHigh"`
	FiftyTwoWeekLow            string `json:"52WeekLow"`
	FiftyDayMovingAverage      string `json:"50DayMovingAverage"`
	TwoHundredDayMovingAverage string `json:"200DayMovingAverage"`
}

// Report is one income-statement period.
type Report struct {
	FiscalDateEnding string `json:"fiscalDateEnding"`
	TotalRevenue     string `json:"totalRevenue"`
}

// IncomeStatement is the INCOME_STATEMENT payload.
type IncomeStatement struct {
	Symbol           string   `json:"symbol"`
	QuarterlyReports []Report `json:"quarterlyReports"`
	AnnualReports    []Report `json:"annualReports"`
}

// Float parses an Alpha Vantage numeric string. ok is false for empty,
// "None", "-" and unparseable values.
func Float(s string) (v float64, ok bool) {
	s = strings.TrimSpace(s)
	if s == "" || s == "None" || s == "-" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

type httpClient struct {
	caller  fetch.Caller
	baseURL string
}

// NewClient creates an Alpha Vantage client that issues calls through caller.
func NewClient(caller fetch.Caller, opts ...Option) Client {
	c := &httpClient{caller: caller, baseURL: defaultBaseURL}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) query(ctx context.Context, params url.Values, out any) error {
	resp, err := c.caller.Call(ctx, credential.Financial, fetch.Request{
		URL:      c.baseURL,
		Query:    params,
		KeyParam: "apikey",
		Inspect:  InspectSoftError,
	})
	if err != nil {
		return eris.Wrapf(err, "alphavantage: %s", params.Get("function"))
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return eris.Wrapf(err, "alphavantage: decode %s", params.Get("function"))
	}
	return nil
}

func (c *httpClient) SymbolSearch(ctx context.Context, keywords string) ([]Match, error) {
	var raw searchResponse
	if err := c.query(ctx, url.Values{"function": {"SYMBOL_SEARCH"}, "keywords": {keywords}}, &raw); err != nil {
		return nil, err
	}
	matches := make([]Match, 0, len(raw.BestMatches))
	for _, m := range raw.BestMatches {
		score, _ := Float(m.MatchScore)
		matches = append(matches, Match{
			Symbol:     m.Symbol,
			Name:       m.Name,
			Type:       m.Type,
			Region:     m.Region,
			Currency:   m.Currency,
			MatchScore: score,
		})
	}
	return matches, nil
}

func (c *httpClient) Overview(ctx context.Context, symbol string) (*Overview, error) {
	var ov Overview
	if err := c.query(ctx, url.Values{"function": {"OVERVIEW"}, "symbol": {symbol}}, &ov); err != nil {
		return nil, err
	}
	return &ov, nil
}

func (c *httpClient) IncomeStatement(ctx context.Context, symbol string) (*IncomeStatement, error) {
	var inc IncomeStatement
	if err := c.query(ctx, url.Values{"function": {"INCOME_STATEMENT"}, "symbol": {symbol}}, &inc); err != nil {
		return nil, err
	}
	return &inc, nil
}

type softError struct {
	Information  string `json:"Information"`
	Note         string `json:"Note"`
	ErrorMessage string `json:"Error Message"`
}

// InspectSoftError maps the messages Alpha Vantage returns with HTTP 200
// onto the provider error taxonomy.
func InspectSoftError(body []byte) error {
	var se softError
	if err := json.Unmarshal(body, &se); err != nil {
		// Not an object; let the caller's decoder report it.
		return nil
	}
	msg := se.Information
	if msg == "" {
		msg = se.Note
	}
	if msg == "" && se.ErrorMessage != "" {
		if strings.Contains(se.ErrorMessage, "apikey") {
			return resilience.NewError(resilience.KindInvalidCredential, string(credential.Financial), se.ErrorMessage)
		}
		return resilience.NewError(resilience.KindProviderError, string(credential.Financial), se.ErrorMessage)
	}
	if msg == "" {
		return nil
	}

	kind := resilience.KindProviderError
	switch {
	case strings.Contains(msg, "standard API rate limit") && strings.Contains(msg, "requests per day"):
		kind = resilience.KindDailyLimitExceeded
	case strings.Contains(msg, "API call frequency") || strings.Contains(msg, "Thank you for using Alpha Vantage"):
		kind = resilience.KindRateLimited
	case strings.Contains(msg, "Invalid API call"):
		kind = resilience.KindInvalidCredential
	}
	return resilience.NewError(kind, string(credential.Financial), msg)
}
