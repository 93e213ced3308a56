package sqldb

import (
	"context"
	"embed"
	"fmt"
	"path"
	"sort"
	"strings"

	"go.uber.org/zap"
)

//go:embed migrations/sqlite/*.sql migrations/mysql/*.sql
var migrations embed.FS

// Migrate applies the dialect's embedded migrations that schema_migrations
// does not list yet and returns how many ran. Statements are executed one at
// a time since the MySQL driver rejects multi-statement strings by default.
// MySQL commits DDL implicitly, so a failed migration there may be partially
// applied; every statement uses IF NOT EXISTS and can be re-run.
func (s *Store) Migrate(ctx context.Context) (int, error) {
	if _, err := s.db.ExecContext(ctx, s.dialect.MigrationsTable); err != nil {
		return 0, fmt.Errorf("create schema_migrations: %w", err)
	}
	files, err := migrationFiles(s.dialect)
	if err != nil {
		return 0, err
	}

	applied := 0
	for _, name := range files {
		version := strings.SplitN(name, "_", 2)[0]
		var exists bool
		if err := s.db.GetContext(ctx, &exists,
			`SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = ?)`, version,
		); err != nil {
			return applied, fmt.Errorf("check migration %s: %w", name, err)
		}
		if exists {
			s.logger.Debug("skipping migration", zap.String("migration", name))
			continue
		}
		body, err := migrations.ReadFile(path.Join(s.dialect.migrationsDir(), name))
		if err != nil {
			return applied, fmt.Errorf("read %s: %w", name, err)
		}

		s.logger.Info("applying migration", zap.String("migration", name))
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return applied, fmt.Errorf("begin %s: %w", name, err)
		}
		for _, stmt := range splitStatements(string(body)) {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				_ = tx.Rollback()
				return applied, fmt.Errorf("execute %s: %w", name, err)
			}
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES (?)`, version); err != nil {
			_ = tx.Rollback()
			return applied, fmt.Errorf("record %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return applied, fmt.Errorf("commit %s: %w", name, err)
		}
		applied++
	}
	return applied, nil
}

func migrationFiles(d Dialect) ([]string, error) {
	entries, err := migrations.ReadDir(d.migrationsDir())
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

// splitStatements breaks a migration on semicolons. Migrations contain no
// semicolons inside literals.
func splitStatements(body string) []string {
	var out []string
	for _, part := range strings.Split(body, ";") {
		if stmt := strings.TrimSpace(part); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}
