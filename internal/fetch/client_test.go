package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/research-dashboard/internal/credential"
	"github.com/sells-group/research-dashboard/internal/resilience"
)

type stubResolver struct {
	creds map[credential.Provider]credential.Credential
}

func (s *stubResolver) Resolve(_ context.Context, p credential.Provider) credential.Credential {
	if c, ok := s.creds[p]; ok {
		return c
	}
	return credential.Credential{Provider: p, Origin: credential.Unset}
}

func resolverWith(p credential.Provider, value string, origin credential.Origin) *stubResolver {
	return &stubResolver{creds: map[credential.Provider]credential.Credential{
		p: {Provider: p, Value: value, Origin: origin},
	}}
}

func TestCall_AttachesKeyAndQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.URL.Query().Get("apikey"))
		assert.Equal(t, "OVERVIEW", r.URL.Query().Get("function"))
		w.Write([]byte(`{"Symbol":"AAPL"}`)) //nolint:errcheck
	}))
	defer srv.Close()

	c := New(resolverWith(credential.Financial, "secret", credential.EnvironmentDefault), nil)
	resp, err := c.Call(context.Background(), credential.Financial, Request{
		URL:      srv.URL,
		Query:    map[string][]string{"function": {"OVERVIEW"}},
		KeyParam: "apikey",
	})
	require.NoError(t, err)
	assert.Equal(t, `{"Symbol":"AAPL"}`, string(resp.Body))
	assert.Equal(t, credential.EnvironmentDefault, resp.Origin)
	assert.Equal(t, 1, c.BudgetStatus(credential.Financial).Used)
}

func TestCall_HeaderKeyAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "k", r.Header.Get("x-goog-api-key"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.Write([]byte(`{}`)) //nolint:errcheck
	}))
	defer srv.Close()

	c := New(resolverWith(credential.Generation, "k", credential.UserOverride), nil)
	_, err := c.Call(context.Background(), credential.Generation, Request{
		Method:    http.MethodPost,
		URL:       srv.URL,
		Body:      []byte(`{"contents":[]}`),
		KeyHeader: "x-goog-api-key",
	})
	require.NoError(t, err)
}

func TestCall_NoCredential(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()

	c := New(&stubResolver{}, nil)
	_, err := c.Call(context.Background(), credential.Search, Request{URL: srv.URL})
	require.Error(t, err)
	assert.True(t, resilience.IsKind(err, resilience.KindNoCredential))
	assert.Zero(t, atomic.LoadInt32(&hits))
}

func TestCall_DailyLimitPerformsNoRequest(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write([]byte(`{}`)) //nolint:errcheck
	}))
	defer srv.Close()

	c := New(resolverWith(credential.Financial, "k", credential.EnvironmentDefault),
		map[credential.Provider]Limits{credential.Financial: {DailyLimit: 2}})

	for i := 0; i < 2; i++ {
		_, err := c.Call(context.Background(), credential.Financial, Request{URL: srv.URL})
		require.NoError(t, err)
	}
	_, err := c.Call(context.Background(), credential.Financial, Request{URL: srv.URL})
	require.Error(t, err)
	assert.True(t, resilience.IsKind(err, resilience.KindDailyLimitExceeded))
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
	assert.Equal(t, 2, c.BudgetStatus(credential.Financial).Used)
}

func TestCall_FailureReleasesBudget(t *testing.T) {
	var n int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		// Every other call fails.
		if atomic.AddInt32(&n, 1)%2 == 0 {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"bad"}`)) //nolint:errcheck
			return
		}
		w.Write([]byte(`{}`)) //nolint:errcheck
	}))
	defer srv.Close()

	c := New(resolverWith(credential.Search, "k", credential.EnvironmentDefault),
		map[credential.Provider]Limits{credential.Search: {DailyLimit: 100}})

	successes := 0
	for i := 0; i < 6; i++ {
		if _, err := c.Call(context.Background(), credential.Search, Request{URL: srv.URL}); err == nil {
			successes++
		}
	}
	assert.Equal(t, 3, successes)
	assert.Equal(t, successes, c.BudgetStatus(credential.Search).Used)
}

func TestCall_Classification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		header map[string]string
		kind   resilience.Kind
	}{
		{"rate limited", http.StatusTooManyRequests, map[string]string{"Retry-After": "7"}, resilience.KindRateLimited},
		{"unauthorized", http.StatusUnauthorized, nil, resilience.KindInvalidCredential},
		{"forbidden", http.StatusForbidden, nil, resilience.KindInvalidCredential},
		{"server error", http.StatusInternalServerError, nil, resilience.KindProviderError},
		{"bad request", http.StatusBadRequest, nil, resilience.KindProviderError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				for k, v := range tt.header {
					w.Header().Set(k, v)
				}
				w.WriteHeader(tt.status)
				w.Write([]byte(`{"error":{"message":"nope"}}`)) //nolint:errcheck
			}))
			defer srv.Close()

			c := New(resolverWith(credential.Search, "k", credential.UserOverride), nil)
			_, err := c.Call(context.Background(), credential.Search, Request{URL: srv.URL})
			require.Error(t, err)

			var pe *resilience.ProviderError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.kind, pe.Kind)
			assert.Equal(t, tt.status, pe.StatusCode)
			assert.Equal(t, "search", pe.Provider)
			assert.Equal(t, string(credential.UserOverride), pe.Origin)
			assert.Contains(t, pe.Message, "nope")
			if tt.kind == resilience.KindRateLimited {
				assert.Equal(t, 7*time.Second, pe.RetryAfter)
			}
			assert.Equal(t, 0, c.BudgetStatus(credential.Search).Used)
		})
	}
}

func TestCall_InspectSoftError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"Note":"Thank you for using Alpha Vantage!"}`)) //nolint:errcheck
	}))
	defer srv.Close()

	c := New(resolverWith(credential.Financial, "k", credential.EnvironmentDefault), nil)
	_, err := c.Call(context.Background(), credential.Financial, Request{
		URL: srv.URL,
		Inspect: func(body []byte) error {
			return resilience.NewError(resilience.KindRateLimited, "", string(body))
		},
	})
	require.Error(t, err)
	assert.True(t, resilience.IsKind(err, resilience.KindRateLimited))

	var pe *resilience.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "financial", pe.Provider)
	assert.Equal(t, 0, c.BudgetStatus(credential.Financial).Used)
}

func TestCall_ThrottleWaitsMinInterval(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{}`)) //nolint:errcheck
	}))
	defer srv.Close()

	c := New(resolverWith(credential.Financial, "k", credential.EnvironmentDefault),
		map[credential.Provider]Limits{credential.Financial: {MinInterval: 80 * time.Millisecond}})

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := c.Call(context.Background(), credential.Financial, Request{URL: srv.URL})
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
}

func TestCall_ThrottleCancelledReleasesBudget(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{}`)) //nolint:errcheck
	}))
	defer srv.Close()

	c := New(resolverWith(credential.Financial, "k", credential.EnvironmentDefault),
		map[credential.Provider]Limits{credential.Financial: {DailyLimit: 5, MinInterval: time.Hour}})

	_, err := c.Call(context.Background(), credential.Financial, Request{URL: srv.URL})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = c.Call(ctx, credential.Financial, Request{URL: srv.URL})
	require.Error(t, err)
	assert.Equal(t, 1, c.BudgetStatus(credential.Financial).Used)
}

func TestCall_CircuitOpensOnServerErrors(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	breakers := resilience.NewProviderBreakers(resilience.CircuitBreakerConfig{FailureThreshold: 2, ResetTimeout: time.Minute})
	c := New(resolverWith(credential.Generation, "k", credential.EnvironmentDefault), nil, WithBreakers(breakers))

	for i := 0; i < 4; i++ {
		_, _ = c.Call(context.Background(), credential.Generation, Request{URL: srv.URL})
	}
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
	assert.Equal(t, resilience.CircuitOpen, breakers.Get("generation").State())

	c.ResetBudget(credential.Generation)
	assert.Equal(t, resilience.CircuitClosed, breakers.Get("generation").State())
}

func TestGuard_PassesCredential(t *testing.T) {
	c := New(resolverWith(credential.Generation, "sdk-key", credential.UserOverride), nil)

	var got credential.Credential
	err := c.Guard(context.Background(), credential.Generation, func(_ context.Context, cred credential.Credential) error {
		got = cred
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "sdk-key", got.Value)
	assert.Equal(t, 1, c.BudgetStatus(credential.Generation).Used)
	assert.Equal(t, -1, c.Remaining(credential.Generation))
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, time.Duration(0), parseRetryAfter(""))
	assert.Equal(t, 30*time.Second, parseRetryAfter("30"))
	assert.Equal(t, time.Duration(0), parseRetryAfter("soon"))
}
