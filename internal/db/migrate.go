package db

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Migrations is a directory of .sql files applied in lexicographic order.
type Migrations struct {
	FS     fs.FS
	Dir    string
	Table  string // tracking table, e.g. "schema_migrations"
	LockID int64  // pg_advisory_lock key
}

// Migrate applies every file in m not yet recorded in the tracking table.
// An advisory lock serializes concurrent starts.
func Migrate(ctx context.Context, pool Pool, m Migrations) error {
	log := zap.L().With(zap.String("component", "db.migrate"))
	table := identifier(m.Table).Sanitize()

	if _, err := pool.Exec(ctx, "SELECT pg_advisory_lock($1)", m.LockID); err != nil {
		return eris.Wrap(err, "db: acquire migration advisory lock")
	}
	defer func() {
		if _, err := pool.Exec(ctx, "SELECT pg_advisory_unlock($1)", m.LockID); err != nil {
			log.Warn("db: failed to release migration advisory lock", zap.Error(err))
		}
	}()

	if _, err := pool.Exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	filename   TEXT PRIMARY KEY,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, table)); err != nil {
		return eris.Wrap(err, "db: ensure migration table")
	}

	entries, err := fs.ReadDir(m.FS, m.Dir)
	if err != nil {
		return eris.Wrap(err, "db: read migration dir")
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	applied, err := appliedMigrations(ctx, pool, table)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") || applied[name] {
			continue
		}

		data, err := fs.ReadFile(m.FS, path.Join(m.Dir, name))
		if err != nil {
			return eris.Wrapf(err, "db: read migration %s", name)
		}

		if _, err := pool.Exec(ctx, string(data)); err != nil {
			return eris.Wrapf(err, "db: apply migration %s", name)
		}
		if _, err := pool.Exec(ctx,
			fmt.Sprintf("INSERT INTO %s (filename) VALUES ($1)", table), name,
		); err != nil {
			return eris.Wrapf(err, "db: record migration %s", name)
		}
		log.Info("db: migration applied", zap.String("file", name))
	}
	return nil
}

func appliedMigrations(ctx context.Context, pool Pool, table string) (map[string]bool, error) {
	rows, err := pool.Query(ctx, "SELECT filename FROM "+table)
	if err != nil {
		return nil, eris.Wrap(err, "db: query applied migrations")
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, eris.Wrap(err, "db: scan migration row")
		}
		applied[name] = true
	}
	return applied, eris.Wrap(rows.Err(), "db: iterate migrations")
}
