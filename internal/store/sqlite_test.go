package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/research-dashboard/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func sampleResult(company string, status model.RunStatus) *model.ResearchResult {
	return &model.ResearchResult{
		CompanyName: company,
		Overview:    model.Overview{Summary: "s", History: "h", Leadership: "l", Tags: []string{"EV"}},
		Status:      status,
		Agents:      []model.AgentOutcome{{Agent: "overview", OK: true, DurationMs: 12}},
	}
}

// --- Settings ---

func TestSQLite_Settings_CRUD(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, ok, err := st.GetSetting(ctx, "credential.search")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, st.PutSetting(ctx, "credential.search", "first"))
	require.NoError(t, st.PutSetting(ctx, "credential.search", "second"))
	require.NoError(t, st.PutSetting(ctx, "credential.search_scope", "cx"))

	v, ok, err := st.GetSetting(ctx, "credential.search")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "second", v)

	all, err := st.ListSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"credential.search": "second", "credential.search_scope": "cx"}, all)

	require.NoError(t, st.DeleteSetting(ctx, "credential.search"))
	require.NoError(t, st.DeleteSetting(ctx, "credential.search"))
	_, ok, err = st.GetSetting(ctx, "credential.search")
	require.NoError(t, err)
	assert.False(t, ok)
}

// --- Runs ---

func TestSQLite_RunLifecycle(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, "Tesla")
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, model.RunStatusRunning, run.Status)

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, "Tesla", got.Company)
	assert.Nil(t, got.Result)
	assert.Nil(t, got.CompletedAt)

	found := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	sources := []model.WebSource{
		{URL: "https://www.reuters.com/a", Title: "A", Snippet: "a", AgentID: "overview", Timestamp: found},
		{URL: "https://www.sec.gov/b", Title: "B", Snippet: "b", AgentID: "financial", Timestamp: found.Add(time.Millisecond)},
	}
	require.NoError(t, st.CompleteRun(ctx, run.ID, sampleResult("Tesla", model.RunStatusDone), sources))

	got, err = st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusDone, got.Status)
	require.NotNil(t, got.Result)
	assert.Equal(t, []string{"EV"}, got.Result.Overview.Tags)
	require.Len(t, got.Sources, 2)
	assert.Equal(t, "financial", got.Sources[1].AgentID)
	assert.True(t, found.Equal(got.Sources[0].Timestamp))
	require.NotNil(t, got.CompletedAt)

	require.NoError(t, st.SetNotionPage(ctx, run.ID, "page-1"))
	got, err = st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, "page-1", got.NotionPageID)
}

func TestSQLite_CompleteRun_PartialFailure(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, "Acme")
	require.NoError(t, err)
	require.NoError(t, st.CompleteRun(ctx, run.ID, sampleResult("Acme", model.RunStatusPartialFailure), nil))

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusPartialFailure, got.Status)
	assert.Empty(t, got.Sources)
}

func TestSQLite_FailRun(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, "Acme")
	require.NoError(t, err)
	require.NoError(t, st.FailRun(ctx, run.ID, "client went away"))

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, got.Status)
	assert.Equal(t, "client went away", got.Error)
}

func TestSQLite_MissingRun(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.GetRun(ctx, "nope")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))

	assert.True(t, IsNotFound(st.CompleteRun(ctx, "nope", sampleResult("x", model.RunStatusDone), nil)))
	assert.True(t, IsNotFound(st.SetNotionPage(ctx, "nope", "p")))
	assert.True(t, IsNotFound(st.FailRun(ctx, "nope", "x")))
}

func TestSQLite_ListRuns(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	for _, c := range []string{"Tesla", "Apple", "tesla"} {
		run, err := st.CreateRun(ctx, c)
		require.NoError(t, err)
		require.NoError(t, st.CompleteRun(ctx, run.ID, sampleResult(c, model.RunStatusDone), nil))
		time.Sleep(2 * time.Millisecond)
	}
	_, err := st.CreateRun(ctx, "Nvidia")
	require.NoError(t, err)

	all, err := st.ListRuns(ctx, model.RunFilter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "Nvidia", all[0].Company)
	assert.Empty(t, all[1].Sources)

	teslas, err := st.ListRuns(ctx, model.RunFilter{Company: "TESLA"})
	require.NoError(t, err)
	assert.Len(t, teslas, 2)

	running, err := st.ListRuns(ctx, model.RunFilter{Status: model.RunStatusRunning})
	require.NoError(t, err)
	require.Len(t, running, 1)
	assert.Equal(t, "Nvidia", running[0].Company)

	limited, err := st.ListRuns(ctx, model.RunFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestSQLite_MigrateIsIdempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	assert.NoError(t, st.Migrate(context.Background()))
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "mysql", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown driver")
}

func TestOpen_SQLite(t *testing.T) {
	st, err := Open(context.Background(), "sqlite", filepath.Join(t.TempDir(), "open.db"))
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck
	assert.IsType(t, &SQLiteStore{}, st)
}
