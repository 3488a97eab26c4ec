package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/research-dashboard/internal/credential"
	"github.com/sells-group/research-dashboard/internal/fetch"
	"github.com/sells-group/research-dashboard/internal/resilience"
)

type keyResolver string

func (k keyResolver) Resolve(_ context.Context, p credential.Provider) credential.Credential {
	return credential.Credential{Provider: p, Value: string(k), Origin: credential.UserOverride}
}

func TestSearch_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		q := r.URL.Query()
		assert.Equal(t, "test-key", q.Get("key"))
		assert.Equal(t, "engine-1", q.Get("cx"))
		assert.Equal(t, "Acme Corp competitors", q.Get("q"))
		assert.Equal(t, "5", q.Get("num"))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(SearchResponse{
			Items: []Item{{Title: "Acme rivals", Link: "https://www.reuters.com/acme", Snippet: "Acme competes with..."}},
		})
	}))
	defer srv.Close()

	client := NewClient(fetch.New(keyResolver("test-key"), nil), WithBaseURL(srv.URL))
	resp, err := client.Search(context.Background(), SearchRequest{Query: "Acme Corp competitors", CX: "engine-1", Num: 5})

	require.NoError(t, err)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "https://www.reuters.com/acme", resp.Items[0].Link)
	assert.Equal(t, credential.UserOverride, resp.Origin)
}

func TestSearch_NoItems(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"kind":"customsearch#search"}`)) //nolint:errcheck
	}))
	defer srv.Close()

	client := NewClient(fetch.New(keyResolver("k"), nil), WithBaseURL(srv.URL))
	resp, err := client.Search(context.Background(), SearchRequest{Query: "Nonexistent Corp", CX: "cx"})

	require.NoError(t, err)
	assert.Empty(t, resp.Items)
}

func TestSearch_NumCapped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "10", r.URL.Query().Get("num"))
		w.Write([]byte(`{}`)) //nolint:errcheck
	}))
	defer srv.Close()

	client := NewClient(fetch.New(keyResolver("k"), nil), WithBaseURL(srv.URL))
	_, err := client.Search(context.Background(), SearchRequest{Query: "q", CX: "cx", Num: 50})
	require.NoError(t, err)
}

func TestSearch_QuotaExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"code":429,"message":"Quota exceeded"}}`)) //nolint:errcheck
	}))
	defer srv.Close()

	client := NewClient(fetch.New(keyResolver("k"), nil), WithBaseURL(srv.URL))
	_, err := client.Search(context.Background(), SearchRequest{Query: "q", CX: "cx"})

	require.Error(t, err)
	assert.True(t, resilience.IsKind(err, resilience.KindRateLimited))
	assert.Contains(t, err.Error(), "google: search")
}

func TestSearch_MalformedJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{not json`)) //nolint:errcheck
	}))
	defer srv.Close()

	client := NewClient(fetch.New(keyResolver("k"), nil), WithBaseURL(srv.URL))
	_, err := client.Search(context.Background(), SearchRequest{Query: "q", CX: "cx"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode")
}
