package store

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/research-dashboard/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

var runCols = []string{"id", "company", "status", "result", "error", "notion_page_id", "created_at", "completed_at"}

func TestPostgresStore_GetSetting(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT value FROM settings WHERE key = \$1`).
		WithArgs("credential.generation").
		WillReturnRows(pgxmock.NewRows([]string{"value"}).AddRow("g-key"))
	mock.ExpectQuery(`SELECT value FROM settings WHERE key = \$1`).
		WithArgs("credential.search").
		WillReturnError(pgx.ErrNoRows)

	v, ok, err := s.GetSetting(context.Background(), "credential.generation")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "g-key", v)

	_, ok, err = s.GetSetting(context.Background(), "credential.search")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_PutSetting_Upsert(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO "settings" .* ON CONFLICT \("key"\) DO UPDATE`).
		WithArgs("credential.search", "abc", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.PutSetting(context.Background(), "credential.search", "abc"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListSettings(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT key, value FROM settings`).
		WillReturnRows(pgxmock.NewRows([]string{"key", "value"}).
			AddRow("credential.search", "k").
			AddRow("credential.search_scope", "cx"))

	got, err := s.ListSettings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"credential.search": "k", "credential.search_scope": "cx"}, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO runs`).
		WithArgs(pgxmock.AnyArg(), "Tesla", "running", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	run, err := s.CreateRun(context.Background(), "Tesla")
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, model.RunStatusRunning, run.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CompleteRun_CopiesSources(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	result := &model.ResearchResult{CompanyName: "Tesla", Status: model.RunStatusPartialFailure}
	sources := []model.WebSource{
		{URL: "https://a", AgentID: "overview", Timestamp: time.Now()},
		{URL: "https://b", AgentID: "market", Timestamp: time.Now()},
	}

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE runs SET status = \$1, result = \$2, completed_at = \$3 WHERE id = \$4`).
		WithArgs("partial_failure", pgxmock.AnyArg(), pgxmock.AnyArg(), "run-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCopyFrom(pgx.Identifier{"run_sources"}, sourceColumns).WillReturnResult(2)
	mock.ExpectCommit()

	require.NoError(t, s.CompleteRun(context.Background(), "run-1", result, sources))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CompleteRun_NotFoundRollsBack(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE runs SET status`).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	err := s.CompleteRun(context.Background(), "missing", &model.ResearchResult{}, nil)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CompleteRun_CopyErrorRollsBack(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE runs SET status`).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCopyFrom(pgx.Identifier{"run_sources"}, sourceColumns).WillReturnError(fmt.Errorf("disk full"))
	mock.ExpectRollback()

	err := s.CompleteRun(context.Background(), "run-1", &model.ResearchResult{},
		[]model.WebSource{{URL: "https://a", AgentID: "overview", Timestamp: time.Now()}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "copy sources")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	created := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	completed := created.Add(time.Minute)
	resultJSON, err := json.Marshal(&model.ResearchResult{CompanyName: "Tesla", Status: model.RunStatusDone})
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT id, company, status, result, error, notion_page_id, created_at, completed_at FROM runs WHERE id = \$1`).
		WithArgs("run-1").
		WillReturnRows(pgxmock.NewRows(runCols).
			AddRow("run-1", "Tesla", "done", &resultJSON, "", "page-9", created, &completed))
	mock.ExpectQuery(`SELECT agent_id, url, title, snippet, found_at FROM run_sources`).
		WithArgs("run-1").
		WillReturnRows(pgxmock.NewRows([]string{"agent_id", "url", "title", "snippet", "found_at"}).
			AddRow("overview", "https://a", "A", "a", created))

	run, err := s.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusDone, run.Status)
	assert.Equal(t, "page-9", run.NotionPageID)
	require.NotNil(t, run.Result)
	assert.Equal(t, "Tesla", run.Result.CompanyName)
	require.NotNil(t, run.CompletedAt)
	assert.Equal(t, time.Minute, run.Duration())
	require.Len(t, run.Sources, 1)
	assert.Equal(t, "overview", run.Sources[0].AgentID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRun_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM runs WHERE id = $1`)).
		WithArgs("nonexistent-run").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetRun(context.Background(), "nonexistent-run")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.Contains(t, err.Error(), "get run")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListRuns_Filters(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	created := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM runs WHERE true AND status = \$1 AND lower\(company\) = lower\(\$2\) ORDER BY created_at DESC LIMIT \$3`).
		WithArgs("done", "tesla", 10).
		WillReturnRows(pgxmock.NewRows(runCols).
			AddRow("run-1", "Tesla", "done", (*[]byte)(nil), "", "", created, &created))

	runs, err := s.ListRuns(context.Background(), model.RunFilter{Status: model.RunStatusDone, Company: "tesla", Limit: 10})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Nil(t, runs[0].Result)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListRuns_DefaultLimit(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM runs WHERE true ORDER BY created_at DESC LIMIT \$1`).
		WithArgs(defaultListLimit).
		WillReturnRows(pgxmock.NewRows(runCols))

	runs, err := s.ListRuns(context.Background(), model.RunFilter{})
	require.NoError(t, err)
	assert.Empty(t, runs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SetNotionPage(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE runs SET notion_page_id = \$1 WHERE id = \$2`).
		WithArgs("page-1", "run-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE runs SET notion_page_id`).
		WithArgs("page-1", "gone").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	require.NoError(t, s.SetNotionPage(context.Background(), "run-1", "page-1"))
	assert.True(t, IsNotFound(s.SetNotionPage(context.Background(), "gone", "page-1")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`pg_advisory_lock`).WithArgs(int64(migrationLockID)).
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "schema_migrations"`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectQuery(`SELECT filename FROM "schema_migrations"`).
		WillReturnRows(pgxmock.NewRows([]string{"filename"}).AddRow("001_settings_runs.sql"))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS run_sources`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec(`INSERT INTO "schema_migrations"`).WithArgs("002_run_sources.sql").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`pg_advisory_unlock`).WithArgs(int64(migrationLockID)).
		WillReturnResult(pgxmock.NewResult("SELECT", 1))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
