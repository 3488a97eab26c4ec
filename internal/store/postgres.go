package store

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/research-dashboard/internal/db"
	"github.com/sells-group/research-dashboard/internal/model"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

const migrationLockID = 7305011

var settingsUpsert = db.UpsertConfig{
	Table:        "settings",
	Columns:      []string{"key", "value", "updated_at"},
	ConflictKeys: []string{"key"},
}

var sourceColumns = []string{"run_id", "position", "agent_id", "url", "title", "snippet", "found_at"}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	err := db.Migrate(ctx, s.pool, db.Migrations{
		FS:     migrationFS,
		Dir:    "migrations",
		Table:  "schema_migrations",
		LockID: migrationLockID,
	})
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.pool.QueryRow(ctx, `SELECT value FROM settings WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, eris.Wrapf(err, "postgres: get setting %s", key)
	}
	return value, true, nil
}

func (s *PostgresStore) PutSetting(ctx context.Context, key, value string) error {
	return eris.Wrapf(db.Upsert(ctx, s.pool, settingsUpsert, key, value, utcNow()), "postgres: put setting %s", key)
}

func (s *PostgresStore) DeleteSetting(ctx context.Context, key string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM settings WHERE key = $1`, key)
	return eris.Wrapf(err, "postgres: delete setting %s", key)
}

func (s *PostgresStore) ListSettings(ctx context.Context) (map[string]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT key, value FROM settings ORDER BY key`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list settings")
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, eris.Wrap(err, "postgres: scan setting")
		}
		out[k] = v
	}
	return out, eris.Wrap(rows.Err(), "postgres: list settings iterate")
}

func (s *PostgresStore) CreateRun(ctx context.Context, company string) (*model.Run, error) {
	id := uuid.New().String()
	now := utcNow()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, company, status, created_at) VALUES ($1, $2, $3, $4)`,
		id, company, string(model.RunStatusRunning), now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &model.Run{
		ID:        id,
		Company:   company,
		Status:    model.RunStatusRunning,
		CreatedAt: now,
	}, nil
}

// CompleteRun stores the result and copies the sources in one transaction.
func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, result *model.ResearchResult, sources []model.WebSource) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal result")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin complete run")
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE runs SET status = $1, result = $2, completed_at = $3 WHERE id = $4`,
		string(completionStatus(result)), resultJSON, utcNow(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}

	rows := make([][]any, len(sources))
	for i, src := range sources {
		rows[i] = []any{runID, i, src.AgentID, src.URL, src.Title, src.Snippet, src.Timestamp.UTC()}
	}
	if _, err := db.CopyFrom(ctx, tx, "run_sources", sourceColumns, rows); err != nil {
		return eris.Wrapf(err, "postgres: copy sources for run %s", runID)
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit complete run")
}

func (s *PostgresStore) FailRun(ctx context.Context, runID string, reason string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, error = $2, completed_at = $3 WHERE id = $4`,
		string(model.RunStatusFailed), reason, utcNow(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}

const runColumns = `id, company, status, result, error, notion_page_id, created_at, completed_at`

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	r, err := scanPGRun(s.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM runs WHERE id = $1`, runID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT agent_id, url, title, snippet, found_at FROM run_sources WHERE run_id = $1 ORDER BY position`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get sources %s", runID)
	}
	defer rows.Close()

	for rows.Next() {
		var src model.WebSource
		if err := rows.Scan(&src.AgentID, &src.URL, &src.Title, &src.Snippet, &src.Timestamp); err != nil {
			return nil, eris.Wrap(err, "postgres: scan source")
		}
		r.Sources = append(r.Sources, src)
	}
	return r, eris.Wrap(rows.Err(), "postgres: sources iterate")
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter model.RunFilter) ([]model.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.Company != "" {
		query += fmt.Sprintf(` AND lower(company) = lower($%d)`, argIdx)
		args = append(args, filter.Company)
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, argIdx)
	args = append(args, listLimit(filter.Limit))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanPGRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) SetNotionPage(ctx context.Context, runID, pageID string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE runs SET notion_page_id = $1 WHERE id = $2`, pageID, runID)
	if err != nil {
		return eris.Wrapf(err, "postgres: set notion page %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}

func scanPGRun(row pgx.Row) (*model.Run, error) {
	var r model.Run
	var status string
	var resultJSON *[]byte
	var completed *time.Time

	if err := row.Scan(&r.ID, &r.Company, &status, &resultJSON, &r.Error, &r.NotionPageID, &r.CreatedAt, &completed); err != nil {
		return nil, err
	}
	r.Status = model.RunStatus(status)
	r.CompletedAt = completed
	if resultJSON != nil && string(*resultJSON) != "null" {
		r.Result = &model.ResearchResult{}
		if err := json.Unmarshal(*resultJSON, r.Result); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal result")
		}
	}
	return &r, nil
}
