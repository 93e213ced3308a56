// Package sqldb persists entities and run reports through database/sql, for
// SQLite (modernc.org/sqlite, pure Go) and MySQL/MariaDB.
package sqldb

import (
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql" // MySQL/MariaDB driver
	_ "modernc.org/sqlite"             // SQLite driver
)

// Dialect captures the SQL differences between the supported engines.
type Dialect struct {
	// Name is the config value and the database/sql driver name.
	Name string
	// LockSuffix is appended to natural-key lookups inside a transaction.
	LockSuffix string
	// MigrationsTable creates the migration bookkeeping table.
	MigrationsTable string
	// UpsertRun inserts or replaces an ingest_runs row.
	UpsertRun string
}

// SQLite writes serialize on the database file, so lookups need no row lock.
var SQLite = Dialect{
	Name: "sqlite",
	MigrationsTable: `CREATE TABLE IF NOT EXISTS schema_migrations (
	version TEXT PRIMARY KEY,
	applied_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
)`,
	UpsertRun: `INSERT INTO ingest_runs (run_id, state, partial, started_at, ended_at, report)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (run_id) DO UPDATE SET
	state = excluded.state,
	partial = excluded.partial,
	ended_at = excluded.ended_at,
	report = excluded.report`,
}

// MySQL covers MySQL 8 and MariaDB.
var MySQL = Dialect{
	Name:       "mysql",
	LockSuffix: " FOR UPDATE",
	MigrationsTable: `CREATE TABLE IF NOT EXISTS schema_migrations (
	version VARCHAR(32) NOT NULL PRIMARY KEY,
	applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`,
	UpsertRun: `INSERT INTO ingest_runs (run_id, state, partial, started_at, ended_at, report)
VALUES (?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
	state = VALUES(state),
	partial = VALUES(partial),
	ended_at = VALUES(ended_at),
	report = VALUES(report)`,
}

// DialectFor maps a driver name from config to its dialect.
func DialectFor(driver string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "sqlite", "sqlite3":
		return SQLite, nil
	case "mysql", "mariadb":
		return MySQL, nil
	default:
		return Dialect{}, fmt.Errorf("unsupported sql driver %q", driver)
	}
}

func (d Dialect) migrationsDir() string {
	return "migrations/" + d.Name
}
