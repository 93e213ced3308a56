package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/govdata-ingest/internal/ingest"
)

const upsertRunSQL = `
INSERT INTO ingest_runs (run_id, state, partial, started_at, ended_at, report)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (run_id) DO UPDATE
SET state = EXCLUDED.state,
	partial = EXCLUDED.partial,
	ended_at = EXCLUDED.ended_at,
	report = EXCLUDED.report`

// SaveRun inserts or replaces a run report.
func (s *Store) SaveRun(ctx context.Context, report ingest.RunReport) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	var endedAt any
	if !report.EndedAt.IsZero() {
		endedAt = report.EndedAt
	}
	if _, err := s.pool.Exec(ctx, upsertRunSQL,
		report.RunID,
		string(report.State),
		report.Partial,
		report.StartedAt,
		endedAt,
		payload,
	); err != nil {
		return fmt.Errorf("save run %s: %w", report.RunID, err)
	}
	return nil
}

// GetRun loads one report or returns ingest.ErrRunNotFound.
func (s *Store) GetRun(ctx context.Context, runID string) (ingest.RunReport, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx, `SELECT report FROM ingest_runs WHERE run_id = $1`, runID).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return ingest.RunReport{}, ingest.ErrRunNotFound
	}
	if err != nil {
		return ingest.RunReport{}, fmt.Errorf("get run %s: %w", runID, err)
	}
	var report ingest.RunReport
	if err := json.Unmarshal(payload, &report); err != nil {
		return ingest.RunReport{}, fmt.Errorf("decode run %s: %w", runID, err)
	}
	return report, nil
}

// ListRuns returns the most recent reports, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]ingest.RunReport, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `SELECT report FROM ingest_runs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()
	var out []ingest.RunReport
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		var report ingest.RunReport
		if err := json.Unmarshal(payload, &report); err != nil {
			return nil, fmt.Errorf("decode run: %w", err)
		}
		out = append(out, report)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return out, nil
}
