package runs

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/research-dashboard/internal/model"
	"github.com/sells-group/research-dashboard/pkg/notion"
)

// Publisher writes finished runs to the Notion report database.
type Publisher struct {
	store  Store
	notion notion.Client
	dbID   string
}

// NewPublisher creates a Publisher for the database dbID.
func NewPublisher(st Store, client notion.Client, dbID string) *Publisher {
	return &Publisher{store: st, notion: client, dbID: dbID}
}

// Publish renders run runID as a Notion page and records the page id on
// the run. Publishing the same run again updates its page.
func (p *Publisher) Publish(ctx context.Context, runID string) (*notion.PublishResult, error) {
	run, err := p.store.GetRun(ctx, runID)
	if err != nil {
		return nil, eris.Wrap(err, "runs: load run")
	}
	if !run.Status.Terminal() || run.Result == nil {
		return nil, eris.Errorf("runs: run %s has no result to publish", runID)
	}

	res, err := notion.PublishReport(ctx, p.notion, p.dbID, Report(run))
	if err != nil {
		return nil, eris.Wrapf(err, "runs: publish %s", runID)
	}
	if err := p.store.SetNotionPage(ctx, run.ID, res.PageID); err != nil {
		return nil, eris.Wrap(err, "runs: record notion page")
	}

	zap.L().Info("runs: published",
		zap.String("run_id", run.ID),
		zap.String("page_id", res.PageID),
		zap.Bool("created", res.Created),
	)
	return res, nil
}

// Report converts a finished run into its Notion representation.
func Report(run *model.Run) notion.Report {
	at := run.CreatedAt
	if run.CompletedAt != nil {
		at = *run.CompletedAt
	}

	r := notion.Report{
		RunID:        run.ID,
		Company:      run.Company,
		Status:       string(run.Status),
		ResearchedAt: at,
	}
	if run.Result == nil {
		return r
	}

	for _, s := range run.Result.Sections() {
		r.Sections = append(r.Sections, notion.Section{Name: s[0], Text: s[1]})
	}
	r.Sections = append(r.Sections, notion.Section{Name: "Tags", Text: strings.Join(run.Result.Overview.Tags, ", ")})
	if ai := run.Result.AIInitiatives; ai != nil {
		r.Sections = append(r.Sections, notion.Section{Name: "AI Technologies", Text: strings.Join(ai.Technologies, ", ")})
	}
	return r
}
