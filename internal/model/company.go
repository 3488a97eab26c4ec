package model

import "time"

// RunStatus represents the state of a stored research run.
type RunStatus string

const (
	RunStatusRunning        RunStatus = "running"
	RunStatusDone           RunStatus = "done"
	RunStatusPartialFailure RunStatus = "partial_failure"
	RunStatusFailed         RunStatus = "failed"
)

// Terminal reports whether the run has finished.
func (s RunStatus) Terminal() bool {
	return s != RunStatusRunning
}

// Run is one persisted research run for a company.
type Run struct {
	ID           string          `json:"id"`
	Company      string          `json:"company"`
	Status       RunStatus       `json:"status"`
	Result       *ResearchResult `json:"result,omitempty"`
	Sources      []WebSource     `json:"sources,omitempty"`
	Error        string          `json:"error,omitempty"`
	NotionPageID string          `json:"notion_page_id,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
}

// Duration returns how long the run took, or zero while it is running.
func (r *Run) Duration() time.Duration {
	if r.CompletedAt == nil {
		return 0
	}
	return r.CompletedAt.Sub(r.CreatedAt)
}

// RunFilter narrows ListRuns.
type RunFilter struct {
	Company string
	Status  RunStatus
	Limit   int
}

// WebSource is one search result surfaced while a run is in progress.
type WebSource struct {
	URL       string    `json:"url"`
	Title     string    `json:"title"`
	Snippet   string    `json:"snippet"`
	AgentID   string    `json:"agent_id"`
	Timestamp time.Time `json:"timestamp"`
}
