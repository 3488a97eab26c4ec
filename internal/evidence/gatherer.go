// Package evidence gathers web search results that ground narrative
// generation.
package evidence

import (
	"context"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/research-dashboard/internal/catalog"
	"github.com/sells-group/research-dashboard/internal/credential"
	"github.com/sells-group/research-dashboard/internal/model"
	"github.com/sells-group/research-dashboard/internal/resilience"
	"github.com/sells-group/research-dashboard/pkg/google"
)

const (
	provider          = "search"
	defaultMaxResults = 5
)

// Quota messages differ by who owns the exhausted key.
const (
	quotaSharedMsg = "the shared default search key has used up its quota; add your own search API key in settings"
	quotaUserMsg   = "your search API key has used up its quota; wait for it to reset or raise the quota in your search console"
)

// CredentialSource resolves the search key and scope id.
type CredentialSource interface {
	Resolve(ctx context.Context, p credential.Provider) credential.Credential
	SearchScope(ctx context.Context) (string, credential.Origin)
}

// Option configures a Gatherer.
type Option func(*Gatherer)

// WithTrustedDomains toggles site-scoping to the catalog's trusted domains.
func WithTrustedDomains(on bool) Option {
	return func(g *Gatherer) { g.trusted = on }
}

// WithMaxResults caps how many items a search keeps.
func WithMaxResults(n int) Option {
	return func(g *Gatherer) {
		if n > 0 {
			g.maxResults = n
		}
	}
}

// Gatherer runs topic-scoped web searches.
type Gatherer struct {
	client     google.Client
	creds      CredentialSource
	catalog    *catalog.Catalog
	trusted    bool
	maxResults int
	clock      *Clock
}

// NewGatherer creates a Gatherer with trusted-domain scoping on.
func NewGatherer(client google.Client, creds CredentialSource, cat *catalog.Catalog, opts ...Option) *Gatherer {
	g := &Gatherer{
		client:     client,
		creds:      creds,
		catalog:    cat,
		trusted:    true,
		maxResults: defaultMaxResults,
		clock:      NewClock(),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Search runs one query. Zero surviving results is not an error: the
// returned Evidence is empty and renders as the no-results sentinel.
func (g *Gatherer) Search(ctx context.Context, query string) (*Evidence, error) {
	cred := g.creds.Resolve(ctx, credential.Search)
	scope, _ := g.creds.SearchScope(ctx)
	if !cred.Present() || scope == "" {
		return nil, resilience.NewError(resilience.KindNoConfig, provider,
			"a search API key and a search engine id are both required")
	}

	scoped := g.trusted && len(g.catalog.TrustedDomains) > 0
	q := query
	if scoped {
		q = siteScoped(query, g.catalog.TrustedDomains)
	}

	resp, err := g.client.Search(ctx, google.SearchRequest{Query: q, CX: scope, Num: g.maxResults})
	if err != nil {
		if resilience.IsKind(err, resilience.KindRateLimited) {
			return nil, quotaError(cred.Origin, err)
		}
		return nil, eris.Wrap(err, "evidence: search")
	}

	ev := &Evidence{Query: query, Scoped: scoped}
	for _, it := range resp.Items {
		if scoped && !g.catalog.Trusted(hostOf(it.Link)) {
			continue
		}
		ev.Items = append(ev.Items, Result{Title: it.Title, URL: it.Link, Snippet: it.Snippet})
		if len(ev.Items) == g.maxResults {
			break
		}
	}

	zap.L().Debug("evidence: search complete",
		zap.String("query", query),
		zap.Int("returned", len(resp.Items)),
		zap.Int("kept", len(ev.Items)),
		zap.Bool("scoped", scoped),
	)
	return ev, nil
}

// Gather runs Search and reports each kept item to onSource as a WebSource
// tagged with agentID, in result order.
func (g *Gatherer) Gather(ctx context.Context, agentID, query string, onSource func(model.WebSource)) (*Evidence, error) {
	ev, err := g.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	for _, it := range ev.Items {
		src := model.WebSource{
			URL:       it.URL,
			Title:     it.Title,
			Snippet:   it.Snippet,
			AgentID:   agentID,
			Timestamp: g.clock.Next(),
		}
		if onSource != nil {
			onSource(src)
		}
	}
	return ev, nil
}

func quotaError(origin credential.Origin, cause error) error {
	msg := quotaUserMsg
	if origin != credential.UserOverride {
		msg = quotaSharedMsg
	}
	return &resilience.ProviderError{
		Kind:     resilience.KindQuotaExceeded,
		Provider: provider,
		Origin:   string(origin),
		Message:  msg,
		Err:      cause,
	}
}

func siteScoped(query string, domains []string) string {
	sites := make([]string, len(domains))
	for i, d := range domains {
		sites[i] = "site:" + d
	}
	return query + " (" + strings.Join(sites, " OR ") + ")"
}

func hostOf(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
