package evidence

import (
	"strings"
	"sync/atomic"
	"time"
)

// Result is one kept search hit.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Evidence is the outcome of one search.
type Evidence struct {
	Query  string
	Items  []Result
	Scoped bool
}

// Empty reports whether the search produced nothing usable.
func (e *Evidence) Empty() bool {
	return e == nil || len(e.Items) == 0
}

// Digest renders the evidence as the text block embedded in prompts.
func (e *Evidence) Digest() string {
	if e.Empty() {
		q := ""
		if e != nil {
			q = e.Query
		}
		return NoResults(q)
	}
	blocks := make([]string, len(e.Items))
	for i, it := range e.Items {
		blocks[i] = "Title: " + it.Title + "\nURL: " + it.URL + "\nSummary: " + it.Snippet
	}
	return strings.Join(blocks, "\n---\n")
}

// NoResults is the sentinel digest for a query with no usable results.
func NoResults(query string) string {
	return "No search results found for " + query + ". Using AI knowledge instead."
}

// Clock hands out strictly increasing timestamps, even for calls that land
// on the same wall-clock tick.
type Clock struct {
	last atomic.Int64
	now  func() time.Time
}

// NewClock creates a Clock backed by time.Now.
func NewClock() *Clock {
	return &Clock{now: time.Now}
}

// Next returns a timestamp later than every previous one.
func (c *Clock) Next() time.Time {
	for {
		prev := c.last.Load()
		n := c.now().UnixNano()
		if n <= prev {
			n = prev + 1
		}
		if c.last.CompareAndSwap(prev, n) {
			return time.Unix(0, n).UTC()
		}
	}
}
