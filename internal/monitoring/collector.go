package monitoring

import (
	"context"
	"sort"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/research-dashboard/internal/model"
)

// maxCollectRuns bounds how many runs one snapshot reads.
const maxCollectRuns = 10000

// RunStats holds a point-in-time view of research run outcomes.
type RunStats struct {
	Total          int     `json:"total"`
	Done           int     `json:"done"`
	PartialFailure int     `json:"partial_failure"`
	Failed         int     `json:"failed"`
	Running        int     `json:"running"`
	DegradedRate   float64 `json:"degraded_rate"`
	AvgDurationMs  int64   `json:"avg_duration_ms"`

	// AgentFailures counts degraded agents by agent id.
	AgentFailures map[string]int `json:"agent_failures"`
	// TopCompanies lists the most researched companies, most frequent first.
	TopCompanies []CompanyCount `json:"top_companies"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// CompanyCount is one row of RunStats.TopCompanies.
type CompanyCount struct {
	Company string `json:"company"`
	Runs    int    `json:"runs"`
}

// RunLister is the slice of the run store the collector reads.
type RunLister interface {
	ListRuns(ctx context.Context, filter model.RunFilter) ([]model.Run, error)
}

// Collector gathers run statistics from the store.
type Collector struct {
	runs    RunLister
	topN    int
	nowFunc func() time.Time
}

// NewCollector creates a new run statistics collector.
func NewCollector(runs RunLister) *Collector {
	return &Collector{runs: runs, topN: 5, nowFunc: time.Now}
}

// Collect gathers a snapshot of run outcomes over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*RunStats, error) {
	now := c.nowFunc().UTC()
	stats := &RunStats{
		AgentFailures: make(map[string]int),
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}
	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	runs, err := c.runs.ListRuns(ctx, model.RunFilter{Limit: maxCollectRuns})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	var totalDuration time.Duration
	var finished int
	companies := make(map[string]*CompanyCount)

	for i := range runs {
		r := &runs[i]
		if r.CreatedAt.Before(cutoff) {
			continue
		}
		stats.Total++

		switch r.Status {
		case model.RunStatusDone:
			stats.Done++
		case model.RunStatusPartialFailure:
			stats.PartialFailure++
		case model.RunStatusFailed:
			stats.Failed++
		case model.RunStatusRunning:
			stats.Running++
		}
		if r.Status.Terminal() && r.CompletedAt != nil {
			totalDuration += r.Duration()
			finished++
		}
		if r.Result != nil {
			for _, a := range r.Result.Agents {
				if !a.OK {
					stats.AgentFailures[a.Agent]++
				}
			}
		}

		key := r.Company
		if cc, ok := companies[key]; ok {
			cc.Runs++
		} else {
			companies[key] = &CompanyCount{Company: r.Company, Runs: 1}
		}
	}

	if finished > 0 {
		stats.DegradedRate = float64(stats.PartialFailure+stats.Failed) / float64(finished)
		stats.AvgDurationMs = (totalDuration / time.Duration(finished)).Milliseconds()
	}
	stats.TopCompanies = topCompanies(companies, c.topN)
	return stats, nil
}

func topCompanies(m map[string]*CompanyCount, n int) []CompanyCount {
	out := make([]CompanyCount, 0, len(m))
	for _, cc := range m {
		out = append(out, *cc)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Runs != out[j].Runs {
			return out[i].Runs > out[j].Runs
		}
		return out[i].Company < out[j].Company
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
