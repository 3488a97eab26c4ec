// Package google is a client for the Custom Search JSON API.
package google

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/sells-group/research-dashboard/internal/credential"
	"github.com/sells-group/research-dashboard/internal/fetch"
)

const defaultBaseURL = "https://www.googleapis.com/customsearch/v1"

// Client performs Custom Search queries.
type Client interface {
	Search(ctx context.Context, req SearchRequest) (*SearchResponse, error)
}

// SearchRequest is one query against a search engine scope.
type SearchRequest struct {
	Query string
	// CX is the programmable search engine id.
	CX  string
	Num int
}

// SearchResponse is the subset of the Custom Search response we use.
type SearchResponse struct {
	Items []Item `json:"items"`
	// Origin is the credential origin the call was made with.
	Origin credential.Origin `json:"-"`
}

// Item is one search hit.
type Item struct {
	Title       string `json:"title"`
	Link        string `json:"link"`
	Snippet     string `json:"snippet"`
	DisplayLink string `json:"displayLink"`
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

// NewClient creates a Custom Search client that issues calls through caller.
func NewClient(caller fetch.Caller, opts ...Option) Client {
	c := &httpClient{caller: caller, baseURL: defaultBaseURL}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	params := url.Values{
		"cx": {req.CX},
		"q":  {req.Query},
	}
	if req.Num > 0 {
		// The API caps num at 10.
		params.Set("num", strconv.Itoa(min(req.Num, 10)))
	}

	resp, err := c.caller.Call(ctx, credential.Search, fetch.Request{
		URL:      c.baseURL,
		Query:    params,
		KeyParam: "key",
	})
	if err != nil {
		return nil, eris.Wrap(err, "google: search")
	}

	var out SearchResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return nil, eris.Wrap(err, "google: decode search response")
	}
	out.Origin = resp.Origin
	return &out, nil
}
