// Package store persists credential overrides and research run history.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/research-dashboard/internal/model"
)

// ErrNotFound is returned (wrapped) when a run does not exist.
var ErrNotFound = eris.New("not found")

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Store is the persistence surface used by the settings service, the HTTP
// API and the CLI.
type Store interface {
	// Settings
	GetSetting(ctx context.Context, key string) (string, bool, error)
	PutSetting(ctx context.Context, key, value string) error
	DeleteSetting(ctx context.Context, key string) error
	ListSettings(ctx context.Context) (map[string]string, error)

	// Runs
	CreateRun(ctx context.Context, company string) (*model.Run, error)
	CompleteRun(ctx context.Context, runID string, result *model.ResearchResult, sources []model.WebSource) error
	FailRun(ctx context.Context, runID string, reason string) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter model.RunFilter) ([]model.Run, error)
	SetNotionPage(ctx context.Context, runID, pageID string) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open connects to the store named by driver ("sqlite" or "postgres").
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch driver {
	case "", "sqlite":
		return NewSQLite(dsn)
	case "postgres":
		return NewPostgres(ctx, dsn, nil)
	default:
		return nil, eris.Errorf("store: unknown driver %q", driver)
	}
}

const defaultListLimit = 100

func listLimit(n int) int {
	if n <= 0 {
		return defaultListLimit
	}
	return n
}

// completionStatus derives the stored status of a finished run.
func completionStatus(result *model.ResearchResult) model.RunStatus {
	if result == nil {
		return model.RunStatusFailed
	}
	if result.Status == model.RunStatusPartialFailure {
		return model.RunStatusPartialFailure
	}
	return model.RunStatusDone
}

func utcNow() time.Time {
	return time.Now().UTC()
}
