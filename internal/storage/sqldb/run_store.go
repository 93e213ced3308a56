package sqldb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/JakeFAU/govdata-ingest/internal/ingest"
)

// timestampLayout is fixed width so lexical order on the text column matches
// chronological order.
const timestampLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// SaveRun inserts or replaces a run report.
func (s *Store) SaveRun(ctx context.Context, report ingest.RunReport) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	var endedAt any
	if !report.EndedAt.IsZero() {
		endedAt = formatTime(report.EndedAt)
	}
	if _, err := s.db.ExecContext(ctx, s.dialect.UpsertRun,
		report.RunID,
		string(report.State),
		report.Partial,
		formatTime(report.StartedAt),
		endedAt,
		string(payload),
	); err != nil {
		return fmt.Errorf("save run %s: %w", report.RunID, err)
	}
	return nil
}

// GetRun loads one report or returns ingest.ErrRunNotFound.
func (s *Store) GetRun(ctx context.Context, runID string) (ingest.RunReport, error) {
	var payload []byte
	err := s.db.GetContext(ctx, &payload, `SELECT report FROM ingest_runs WHERE run_id = ?`, runID)
	if errors.Is(err, sql.ErrNoRows) {
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
	var payloads [][]byte
	if err := s.db.SelectContext(ctx, &payloads, `SELECT report FROM ingest_runs ORDER BY started_at DESC LIMIT ?`, limit); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	out := make([]ingest.RunReport, 0, len(payloads))
	for _, payload := range payloads {
		var report ingest.RunReport
		if err := json.Unmarshal(payload, &report); err != nil {
			return nil, fmt.Errorf("decode run: %w", err)
		}
		out = append(out, report)
	}
	return out, nil
}
