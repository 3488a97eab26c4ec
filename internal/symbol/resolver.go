// Package symbol maps free-text company names to ticker symbols.
package symbol

import (
	"context"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/research-dashboard/internal/cache"
	"github.com/sells-group/research-dashboard/internal/catalog"
	"github.com/sells-group/research-dashboard/internal/resilience"
	"github.com/sells-group/research-dashboard/pkg/alphavantage"
)

const (
	equityType            = "Equity"
	defaultDomesticRegion = "United States"
)

var lower = cases.Lower(language.Und)

// Normalize trims, lower-cases and collapses inner whitespace.
func Normalize(name string) string {
	return strings.Join(strings.Fields(lower.String(name)), " ")
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithDomesticRegion sets the region preferred among equity matches.
func WithDomesticRegion(region string) Option {
	return func(r *Resolver) {
		if region != "" {
			r.domestic = region
		}
	}
}

// Resolver resolves company names through the known-company table and then
// the provider's symbol search.
type Resolver struct {
	av       alphavantage.Client
	catalog  *catalog.Catalog
	cache    cache.Cache[string]
	domestic string
}

// NewResolver creates a Resolver. Successful resolutions are kept in c.
func NewResolver(av alphavantage.Client, cat *catalog.Catalog, c cache.Cache[string], opts ...Option) *Resolver {
	r := &Resolver{av: av, catalog: cat, cache: c, domestic: defaultDomesticRegion}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Resolve returns the ticker for name, or a KindNotFound error when no
// candidate survives ranking. Provider failures are returned as-is.
func (r *Resolver) Resolve(ctx context.Context, name string) (string, error) {
	key := Normalize(name)
	if key == "" {
		return "", resilience.NewError(resilience.KindNotFound, "symbol", "empty company name")
	}

	if sym, ok := r.cache.Get(ctx, key); ok {
		zap.L().Debug("symbol: cache hit", zap.String("company", key), zap.String("symbol", sym))
		return sym, nil
	}

	if sym, ok := r.catalog.Ticker(key); ok {
		r.cache.Set(ctx, key, sym)
		zap.L().Debug("symbol: known company", zap.String("company", key), zap.String("symbol", sym))
		return sym, nil
	}

	matches, err := r.Search(ctx, strings.TrimSpace(name))
	if err != nil {
		return "", err
	}

	best, tier, ok := Rank(matches, key, r.domestic)
	if !ok {
		return "", resilience.NewError(resilience.KindNotFound, "symbol", "no match for "+strings.TrimSpace(name))
	}

	r.cache.Set(ctx, key, best.Symbol)
	zap.L().Info("symbol: resolved",
		zap.String("company", key),
		zap.String("symbol", best.Symbol),
		zap.String("name", best.Name),
		zap.String("tier", tier),
		zap.Float64("score", best.MatchScore),
	)
	return best.Symbol, nil
}

// Search returns the provider's candidates for keywords, best score first.
// When the full keywords match nothing, one retry is made with a shorter
// partial keyword.
func (r *Resolver) Search(ctx context.Context, keywords string) ([]alphavantage.Match, error) {
	matches, err := r.av.SymbolSearch(ctx, keywords)
	if err != nil {
		return nil, eris.Wrap(err, "symbol: search")
	}

	if len(matches) == 0 {
		partial := PartialKeyword(keywords)
		if partial == "" || partial == keywords {
			return nil, nil
		}
		zap.L().Debug("symbol: retrying with partial keyword",
			zap.String("keywords", keywords), zap.String("partial", partial))
		matches, err = r.av.SymbolSearch(ctx, partial)
		if err != nil {
			return nil, eris.Wrap(err, "symbol: partial search")
		}
	}

	sorted := make([]alphavantage.Match, len(matches))
	copy(sorted, matches)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].MatchScore > sorted[j].MatchScore
	})
	return sorted, nil
}

// PartialKeyword shortens keywords for the retry search: the first word of a
// multi-word input, else the first max(3, len/2) characters.
func PartialKeyword(keywords string) string {
	keywords = strings.TrimSpace(keywords)
	if fields := strings.Fields(keywords); len(fields) > 1 {
		return fields[0]
	}
	runes := []rune(keywords)
	n := max(3, len(runes)/2)
	if n >= len(runes) {
		return keywords
	}
	return string(runes[:n])
}

// Rank picks the best candidate from matches sorted by score. Tiers, in
// order: an equity whose name contains the company name, a domestic equity,
// any equity, the top-scoring candidate.
func Rank(matches []alphavantage.Match, normalized, domestic string) (alphavantage.Match, string, bool) {
	if len(matches) == 0 {
		return alphavantage.Match{}, "", false
	}

	for _, m := range matches {
		if m.Type == equityType && strings.Contains(Normalize(m.Name), normalized) {
			return m, "name", true
		}
	}
	for _, m := range matches {
		if m.Type == equityType && m.Region == domestic {
			return m, "domestic_equity", true
		}
	}
	for _, m := range matches {
		if m.Type == equityType {
			return m, "equity", true
		}
	}
	return matches[0], "top_score", true
}
