package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/sells-group/research-dashboard/internal/credential"
	"github.com/sells-group/research-dashboard/internal/fetch"
	"github.com/sells-group/research-dashboard/internal/model"
)

// printJSON writes v as indented JSON.
func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printSource writes one streamed search result as a single line.
func printSource(out io.Writer, s model.WebSource) {
	title := s.Title
	if title == "" {
		title = s.URL
	}
	_, _ = fmt.Fprintf(out, "[%s] %s\n    %s\n", s.AgentID, title, s.URL)
}

// renderRun writes a run header followed by its report sections.
func renderRun(out io.Writer, run *model.Run) {
	_, _ = fmt.Fprintf(out, "%s  (%s)\n", run.Company, run.Status)
	_, _ = fmt.Fprintf(out, "Run %s, started %s", run.ID, run.CreatedAt.Local().Format(time.DateTime))
	if run.CompletedAt != nil {
		_, _ = fmt.Fprintf(out, ", took %s", run.Duration().Round(100*time.Millisecond))
	}
	_, _ = fmt.Fprintln(out)
	if run.Error != "" {
		_, _ = fmt.Fprintf(out, "Error: %s\n", run.Error)
	}
	if run.NotionPageID != "" {
		_, _ = fmt.Fprintf(out, "Notion page: %s\n", run.NotionPageID)
	}
	if run.Result != nil {
		renderReport(out, run.Result)
	}
	if len(run.Sources) > 0 {
		_, _ = fmt.Fprintf(out, "\nSources (%d)\n", len(run.Sources))
		for _, s := range run.Sources {
			printSource(out, s)
		}
	}
}

// renderReport writes the report sections in display order.
func renderReport(out io.Writer, r *model.ResearchResult) {
	if len(r.Overview.Tags) > 0 {
		_, _ = fmt.Fprintf(out, "\nTags: %s\n", strings.Join(r.Overview.Tags, ", "))
	}
	for _, sec := range r.Sections() {
		_, _ = fmt.Fprintf(out, "\n== %s ==\n%s\n", sec[0], sec[1])
	}
	if ai := r.AIInitiatives; ai != nil && len(ai.Technologies) > 0 {
		_, _ = fmt.Fprintf(out, "\n== AI Technologies ==\n%s\n", strings.Join(ai.Technologies, ", "))
	}

	var degraded []string
	for _, a := range r.Agents {
		if !a.OK {
			degraded = append(degraded, a.Agent)
		}
	}
	if len(degraded) > 0 {
		_, _ = fmt.Fprintf(out, "\nDegraded agents: %s\n", strings.Join(degraded, ", "))
	}
}

// renderSnapshot writes a financial snapshot as a metric table followed by
// the revenue series.
func renderSnapshot(out io.Writer, s *model.FinancialSnapshot) {
	_, _ = fmt.Fprintf(out, "%s  %s  [%s]\n", s.Symbol, s.CompanyName, s.Source)
	if s.Sector != "" || s.Industry != "" {
		_, _ = fmt.Fprintf(out, "%s / %s\n", s.Sector, s.Industry)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, m := range s.Metrics() {
		_, _ = fmt.Fprintf(w, "%s\t%s\n", m.Label, formatMetric(m))
	}
	_ = w.Flush()

	renderSeries(out, "Quarterly revenue", s.QuarterlyDates, s.QuarterlyRevenue)
	renderSeries(out, "Annual revenue", s.AnnualDates, s.AnnualRevenue)
}

func renderSeries(out io.Writer, title string, dates []string, values []float64) {
	if len(values) == 0 {
		return
	}
	_, _ = fmt.Fprintf(out, "\n%s (B)\n", title)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for i, v := range values {
		label := "-"
		if i < len(dates) {
			label = dates[i]
		}
		_, _ = fmt.Fprintf(w, "  %s\t%s\n", label, humanize.FormatFloat("#,###.##", v))
	}
	_ = w.Flush()
}

// formatMetric renders a metric value with its unit, or "-" when unreported.
func formatMetric(m model.Metric) string {
	if m.Value == nil {
		return "-"
	}
	v := humanize.FormatFloat("#,###.##", *m.Value)
	switch m.Unit {
	case "$":
		return "$" + v
	case "":
		return v
	default:
		return v + m.Unit
	}
}

// renderStatus writes the credential origin of every provider.
func renderStatus(out io.Writer, statuses []credential.ProviderStatus) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "PROVIDER\tCONFIGURED\tSOURCE")
	for _, s := range statuses {
		configured := "no"
		if s.Valid {
			configured = "yes"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", s.Provider, configured, s.Source)
	}
	_ = w.Flush()
}

// renderBudgets writes today's usage per provider.
func renderBudgets(out io.Writer, budgets []fetch.BudgetState, now time.Time) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "PROVIDER\tUSED\tLIMIT\tREMAINING\tLAST CALL")
	for _, b := range budgets {
		limit, remaining := humanize.Comma(int64(b.Limit)), humanize.Comma(int64(b.Remaining))
		if b.Unlimited {
			limit, remaining = "unlimited", "-"
		}
		last := "never"
		if !b.LastCall.IsZero() {
			last = humanize.RelTime(b.LastCall, now, "ago", "from now")
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", b.Provider, humanize.Comma(int64(b.Used)), limit, remaining, last)
	}
	_ = w.Flush()
}
