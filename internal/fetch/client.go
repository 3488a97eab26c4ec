// Package fetch wraps outbound provider calls with a per-provider daily
// budget, a minimum-interval throttle, a circuit breaker, and error
// classification into the resilience taxonomy.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/research-dashboard/internal/credential"
	"github.com/sells-group/research-dashboard/internal/monitoring"
	"github.com/sells-group/research-dashboard/internal/resilience"
)

const maxErrorBody = 4 << 10

// Resolver supplies credentials. Implemented by *credential.Resolver.
type Resolver interface {
	Resolve(ctx context.Context, p credential.Provider) credential.Credential
}

// Limits configures one provider's budget and throttle.
type Limits struct {
	DailyLimit  int
	MinInterval time.Duration
}

// Request describes one outbound HTTP call. The credential is attached by
// the client, as the KeyParam query parameter or the KeyHeader header.
type Request struct {
	Method    string
	URL       string
	Query     url.Values
	Header    http.Header
	Body      []byte
	KeyParam  string
	KeyHeader string

	// Inspect examines a 2xx body for provider soft errors.
	Inspect func(body []byte) error
}

// Response is a successful provider response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Origin     credential.Origin
}

// Caller issues budgeted provider calls. Implemented by *Client.
type Caller interface {
	Call(ctx context.Context, p credential.Provider, req Request) (*Response, error)
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client. A nil client is ignored.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithBreakers sets the circuit breaker registry.
func WithBreakers(b *resilience.ProviderBreakers) Option {
	return func(c *Client) { c.breakers = b }
}

// WithClock sets the clock used by budgets.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// Client is the rate-limited fetch client shared by all provider packages.
type Client struct {
	resolver Resolver
	limits   map[credential.Provider]Limits
	http     *http.Client
	breakers *resilience.ProviderBreakers
	now      func() time.Time

	mu       sync.Mutex
	budgets  map[credential.Provider]*Budget
	limiters map[credential.Provider]*rate.Limiter
}

// New creates a Client. Providers missing from limits are unlimited and
// unthrottled.
func New(resolver Resolver, limits map[credential.Provider]Limits, opts ...Option) *Client {
	c := &Client{
		resolver: resolver,
		limits:   limits,
		http:     &http.Client{Timeout: 30 * time.Second},
		now:      time.Now,
		budgets:  make(map[credential.Provider]*Budget),
		limiters: make(map[credential.Provider]*rate.Limiter),
	}
	for _, o := range opts {
		o(c)
	}
	if c.breakers == nil {
		cfg := resilience.DefaultCircuitBreakerConfig()
		cfg.OnStateChange = logCircuit
		c.breakers = resilience.NewProviderBreakers(cfg)
	}
	return c
}

func logCircuit(provider string, from, to resilience.CircuitState) {
	zap.L().Warn("fetch: circuit state change",
		zap.String("provider", provider),
		zap.String("from", from.String()),
		zap.String("to", to.String()),
	)
	monitoring.RecordCircuit(provider, int(to))
}

// CircuitLogger is an OnStateChange hook that logs transitions and exports
// them as metrics.
func CircuitLogger() func(string, resilience.CircuitState, resilience.CircuitState) {
	return logCircuit
}

func (c *Client) budget(p credential.Provider) *Budget {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.budgets[p]
	if !ok {
		b = NewBudget(string(p), c.limits[p].DailyLimit)
		b.now = c.now
		c.budgets[p] = b
	}
	return b
}

func (c *Client) limiter(p credential.Provider) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.limiters[p]
	if !ok {
		interval := c.limits[p].MinInterval
		if interval <= 0 {
			l = rate.NewLimiter(rate.Inf, 1)
		} else {
			l = rate.NewLimiter(rate.Every(interval), 1)
		}
		c.limiters[p] = l
	}
	return l
}

// Guard runs fn under p's credential, budget, breaker, and throttle. It is
// used directly by SDK-backed providers that own their transport. fn
// receives the resolved credential. Any failure returns the reserved call
// to the budget.
func (c *Client) Guard(ctx context.Context, p credential.Provider, fn func(ctx context.Context, cred credential.Credential) error) error {
	cred := c.resolver.Resolve(ctx, p)
	if !cred.Present() {
		monitoring.RecordProviderCall(string(p), "rejected", 0)
		return &resilience.ProviderError{Kind: resilience.KindNoCredential, Provider: string(p), Origin: string(cred.Origin)}
	}

	b := c.budget(p)
	if !b.Reserve(cred.Fingerprint()) {
		monitoring.RecordProviderCall(string(p), "rejected", 0)
		st := b.State()
		return &resilience.ProviderError{
			Kind:     resilience.KindDailyLimitExceeded,
			Provider: string(p),
			Origin:   string(cred.Origin),
			Message:  "daily limit of " + strconv.Itoa(st.Limit) + " calls reached",
		}
	}

	cb := c.breakers.Get(string(p))
	if err := cb.Allow(); err != nil {
		b.Release()
		monitoring.RecordProviderCall(string(p), "rejected", 0)
		return &resilience.ProviderError{Kind: resilience.KindProviderError, Provider: string(p), Origin: string(cred.Origin), Err: err}
	}

	if r := c.limiter(p).Reserve(); r.Delay() > 0 {
		zap.L().Debug("fetch: throttled", zap.String("provider", string(p)), zap.Duration("delay", r.Delay()))
		timer := time.NewTimer(r.Delay())
		select {
		case <-ctx.Done():
			timer.Stop()
			r.Cancel()
			b.Release()
			return eris.Wrapf(ctx.Err(), "fetch: %s throttle wait", p)
		case <-timer.C:
		}
	}
	b.Touch()

	start := time.Now()
	err := fn(ctx, cred)
	cb.Record(err)
	latency := time.Since(start)

	if err != nil {
		b.Release()
		var pe *resilience.ProviderError
		if errors.As(err, &pe) {
			if pe.Provider == "" {
				pe.Provider = string(p)
			}
			if pe.Origin == "" {
				pe.Origin = string(cred.Origin)
			}
		}
		status := "error"
		if resilience.IsKind(err, resilience.KindRateLimited) {
			status = "rate_limited"
		}
		monitoring.RecordProviderCall(string(p), status, latency)
		monitoring.RecordBudget(string(p), b.Remaining())
		return err
	}

	monitoring.RecordProviderCall(string(p), "success", latency)
	monitoring.RecordBudget(string(p), b.Remaining())
	return nil
}

// Call issues exactly one HTTP request for p after at most one throttle
// delay, and classifies the outcome. Nothing is cached here.
func (c *Client) Call(ctx context.Context, p credential.Provider, req Request) (*Response, error) {
	var resp *Response
	err := c.Guard(ctx, p, func(ctx context.Context, cred credential.Credential) error {
		r, err := c.do(ctx, p, req, cred)
		if err != nil {
			return err
		}
		r.Origin = cred.Origin
		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) do(ctx context.Context, p credential.Provider, req Request, cred credential.Credential) (*Response, error) {
	u, err := url.Parse(req.URL)
	if err != nil {
		return nil, eris.Wrapf(err, "fetch: parse %s url", p)
	}
	q := u.Query()
	for k, vs := range req.Query {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	if req.KeyParam != "" {
		q.Set(req.KeyParam, cred.Value)
	}
	u.RawQuery = q.Encode()

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, eris.Wrapf(err, "fetch: create %s request", p)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if req.Body != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if req.KeyHeader != "" {
		httpReq.Header.Set(req.KeyHeader, cred.Value)
	}

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, &resilience.ProviderError{Kind: resilience.KindProviderError, Provider: string(p), Err: eris.Wrap(err, "send request")}
	}
	defer httpResp.Body.Close() //nolint:errcheck

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &resilience.ProviderError{Kind: resilience.KindProviderError, Provider: string(p), StatusCode: httpResp.StatusCode, Err: eris.Wrap(err, "read body")}
	}

	if err := classify(p, httpResp, data); err != nil {
		return nil, err
	}
	if req.Inspect != nil {
		if err := req.Inspect(data); err != nil {
			return nil, err
		}
	}

	return &Response{StatusCode: httpResp.StatusCode, Header: httpResp.Header, Body: data}, nil
}

func classify(p credential.Provider, resp *http.Response, body []byte) error {
	code := resp.StatusCode
	if code >= 200 && code < 300 {
		return nil
	}
	msg := string(body)
	if len(msg) > maxErrorBody {
		msg = msg[:maxErrorBody]
	}
	pe := &resilience.ProviderError{Provider: string(p), StatusCode: code, Message: msg}
	switch {
	case code == http.StatusTooManyRequests:
		pe.Kind = resilience.KindRateLimited
		pe.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		pe.Kind = resilience.KindInvalidCredential
	default:
		pe.Kind = resilience.KindProviderError
	}
	return pe
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// BudgetStatus returns p's budget state.
func (c *Client) BudgetStatus(p credential.Provider) BudgetState {
	return c.budget(p).State()
}

// Remaining returns calls left today for p, or -1 when unlimited.
func (c *Client) Remaining(p credential.Provider) int {
	return c.budget(p).Remaining()
}

// ResetBudget drops p's per-credential state. Called when a credential
// changes or by an explicit operator reset.
func (c *Client) ResetBudget(p credential.Provider) {
	c.budget(p).Reset()
	c.breakers.Get(string(p)).Reset()
	monitoring.RecordBudget(string(p), c.budget(p).Remaining())
	zap.L().Info("fetch: budget reset", zap.String("provider", string(p)))
}

// StaticKey resolves every provider to one fixed user-supplied value. It is
// used to try a candidate key before it is saved.
type StaticKey string

// Resolve implements Resolver.
func (k StaticKey) Resolve(_ context.Context, p credential.Provider) credential.Credential {
	if k == "" {
		return credential.Credential{Provider: p, Origin: credential.Unset}
	}
	return credential.Credential{Provider: p, Value: string(k), Origin: credential.UserOverride}
}
