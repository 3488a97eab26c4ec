// Package runs ties a research run to its persisted record: it opens the
// run row, collects the sources the orchestrator emits, stores the result
// and publishes finished runs to Notion.
package runs

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/research-dashboard/internal/model"
)

// Store is the slice of store.Store a Recorder writes to.
type Store interface {
	CreateRun(ctx context.Context, company string) (*model.Run, error)
	CompleteRun(ctx context.Context, runID string, result *model.ResearchResult, sources []model.WebSource) error
	FailRun(ctx context.Context, runID string, reason string) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	SetNotionPage(ctx context.Context, runID, pageID string) error
}

// Researcher produces a research result. Implemented by research.Orchestrator.
type Researcher interface {
	Run(ctx context.Context, company string, onSource func(model.WebSource)) *model.ResearchResult
}

// ErrNoCompany is returned when a run is requested for a blank name.
var ErrNoCompany = eris.New("runs: company is required")

// Recorder runs research and persists the outcome.
type Recorder struct {
	store    Store
	research Researcher
}

// NewRecorder creates a Recorder.
func NewRecorder(st Store, research Researcher) *Recorder {
	return &Recorder{store: st, research: research}
}

// Research runs the orchestrator for company and stores the result with
// every source that was emitted. onSource may be nil. A run whose context
// is cancelled before it completes is marked failed.
func (r *Recorder) Research(ctx context.Context, company string, onSource func(model.WebSource)) (*model.Run, error) {
	company = strings.TrimSpace(company)
	if company == "" {
		return nil, ErrNoCompany
	}

	run, err := r.store.CreateRun(ctx, company)
	if err != nil {
		return nil, eris.Wrap(err, "runs: create run")
	}
	log := zap.L().With(zap.String("run_id", run.ID), zap.String("company", company))

	// The orchestrator serializes source callbacks.
	var sources []model.WebSource
	result := r.research.Run(ctx, company, func(src model.WebSource) {
		sources = append(sources, src)
		if onSource != nil {
			onSource(src)
		}
	})

	if err := ctx.Err(); err != nil {
		if ferr := r.store.FailRun(context.WithoutCancel(ctx), run.ID, err.Error()); ferr != nil {
			log.Warn("runs: mark run failed", zap.Error(ferr))
		}
		return nil, eris.Wrapf(err, "runs: research %s", company)
	}

	if err := r.store.CompleteRun(ctx, run.ID, result, sources); err != nil {
		return nil, eris.Wrap(err, "runs: complete run")
	}

	run.Status = result.Status
	run.Result = result
	run.Sources = sources
	log.Info("runs: run recorded",
		zap.String("status", string(result.Status)),
		zap.Int("sources", len(sources)),
	)
	return run, nil
}
