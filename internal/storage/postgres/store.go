// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/JakeFAU/govdata-ingest/internal/ingest"
	"github.com/JakeFAU/govdata-ingest/internal/store"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	FuzzyThreshold  float64
}

// Pool is the subset of pgxpool.Pool the store needs; pgxmock satisfies it.
type Pool interface {
	Begin(context.Context) (pgx.Tx, error)
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Ping(context.Context) error
	Close()
}

// Store persists entities and run reports in Postgres.
type Store struct {
	pool      Pool
	threshold float64
	logger    *zap.Logger
}

// New connects a pgx pool using cfg.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return NewWithPool(pool, cfg.FuzzyThreshold, logger)
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(pool Pool, threshold float64, logger *zap.Logger) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if threshold <= 0 {
		threshold = store.DefaultFuzzyThreshold
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{pool: pool, threshold: threshold, logger: logger.Named("postgres")}, nil
}

// Ping checks connectivity for readiness probes.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

var (
	_ ingest.EntityStore = (*Store)(nil)
	_ ingest.RunStore    = (*Store)(nil)
)

// Upsert writes rec inside its own transaction.
func (s *Store) Upsert(ctx context.Context, rec ingest.Record) (ingest.Outcome, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", store.Wrap(rec, fmt.Errorf("begin: %w", err))
	}
	outcome, err := store.Apply(ctx, pgTx{tx: tx}, rec, s.threshold)
	if err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.logger.Warn("rollback failed", zap.String("key", rec.KeyString()), zap.Error(rbErr))
		}
		return "", store.Wrap(rec, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return "", store.Wrap(rec, fmt.Errorf("commit: %w", err))
	}
	return outcome, nil
}

type pgTx struct {
	tx pgx.Tx
}

func (t pgTx) Lookup(ctx context.Context, row store.Row) ([]any, bool, error) {
	values := make([]any, len(row.Columns))
	dest := make([]any, len(values))
	for i := range values {
		dest[i] = &values[i]
	}
	err := t.tx.QueryRow(ctx, store.SelectSQL(row, store.Dollar)+" FOR UPDATE", row.KeyValues...).Scan(dest...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return values, true, nil
}

func (t pgTx) Insert(ctx context.Context, row store.Row) error {
	_, err := t.tx.Exec(ctx, store.InsertSQL(row, store.Dollar), row.InsertValues()...)
	return err
}

func (t pgTx) Update(ctx context.Context, row store.Row) error {
	_, err := t.tx.Exec(ctx, store.UpdateSQL(row, store.Dollar), store.UpdateArgs(row)...)
	return err
}

func (t pgTx) Speakers(ctx context.Context, name, jurisdiction string) ([]store.Speaker, error) {
	rows, err := t.tx.Query(ctx, store.SpeakersSQL(store.Dollar), name, jurisdiction)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []store.Speaker
	for rows.Next() {
		var sp store.Speaker
		if err := rows.Scan(&sp.ID, &sp.Name, &sp.Jurisdiction); err != nil {
			return nil, err
		}
		out = append(out, sp)
	}
	return out, rows.Err()
}
