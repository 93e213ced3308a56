package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/JakeFAU/govdata-ingest/internal/ingest"
	"github.com/JakeFAU/govdata-ingest/internal/store"
)

// Config controls the database/sql connection.
type Config struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	FuzzyThreshold  float64
}

// Store persists entities and run reports through sqlx over database/sql.
type Store struct {
	db        *sqlx.DB
	dialect   Dialect
	threshold float64
	logger    *zap.Logger
}

var (
	_ ingest.EntityStore = (*Store)(nil)
	_ ingest.RunStore    = (*Store)(nil)
)

// Open connects to the configured database and pings it.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	dialect, err := DialectFor(cfg.Driver)
	if err != nil {
		return nil, err
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store.dsn is required")
	}
	db, err := sql.Open(dialect.Name, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s connection: %w", dialect.Name, err)
	}

	switch {
	case dialect.Name == SQLite.Name:
		// One writer; also keeps ":memory:" databases on a single connection.
		db.SetMaxOpenConns(1)
	case cfg.MaxOpenConns > 0:
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		idle := cfg.MaxIdleConns
		if idle <= 0 || idle > cfg.MaxOpenConns {
			idle = cfg.MaxOpenConns
		}
		db.SetMaxIdleConns(idle)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil && logger != nil {
			logger.Error("failed to close database after ping failure", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("failed to ping %s: %w", dialect.Name, err)
	}
	if dialect.Name == SQLite.Name {
		if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("enable sqlite foreign keys: %w", err)
		}
	}
	return NewWithDB(db, dialect, cfg.FuzzyThreshold, logger), nil
}

// NewWithDB wraps an existing handle (primarily for testing).
func NewWithDB(db *sql.DB, dialect Dialect, threshold float64, logger *zap.Logger) *Store {
	if threshold <= 0 {
		threshold = store.DefaultFuzzyThreshold
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		db:        sqlx.NewDb(db, dialect.Name),
		dialect:   dialect,
		threshold: threshold,
		logger:    logger.Named(dialect.Name),
	}
}

// Ping checks connectivity for readiness probes.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close %s connection: %w", s.dialect.Name, err)
	}
	return nil
}

// Upsert writes rec inside its own transaction.
func (s *Store) Upsert(ctx context.Context, rec ingest.Record) (ingest.Outcome, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", store.Wrap(rec, fmt.Errorf("begin: %w", err))
	}
	outcome, err := store.Apply(ctx, sqlTx{tx: tx, lock: s.dialect.LockSuffix}, rec, s.threshold)
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.logger.Warn("rollback failed", zap.String("key", rec.KeyString()), zap.Error(rbErr))
		}
		return "", store.Wrap(rec, err)
	}
	if err := tx.Commit(); err != nil {
		return "", store.Wrap(rec, fmt.Errorf("commit: %w", err))
	}
	return outcome, nil
}

type sqlTx struct {
	tx   *sqlx.Tx
	lock string
}

func (t sqlTx) Lookup(ctx context.Context, row store.Row) ([]any, bool, error) {
	values := make([]any, len(row.Columns))
	dest := make([]any, len(values))
	for i := range values {
		dest[i] = &values[i]
	}
	err := t.tx.QueryRowContext(ctx, store.SelectSQL(row, store.Question)+t.lock, row.KeyValues...).Scan(dest...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return values, true, nil
}

func (t sqlTx) Insert(ctx context.Context, row store.Row) error {
	_, err := t.tx.ExecContext(ctx, store.InsertSQL(row, store.Question), row.InsertValues()...)
	return err
}

func (t sqlTx) Update(ctx context.Context, row store.Row) error {
	_, err := t.tx.ExecContext(ctx, store.UpdateSQL(row, store.Question), store.UpdateArgs(row)...)
	return err
}

func (t sqlTx) Speakers(ctx context.Context, name, jurisdiction string) ([]store.Speaker, error) {
	var out []store.Speaker
	if err := t.tx.SelectContext(ctx, &out, store.SpeakersSQL(store.Question), name, jurisdiction); err != nil {
		return nil, err
	}
	return out, nil
}
