package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/JakeFAU/govdata-ingest/internal/ingest"
)

// DefaultRunHistory bounds how many reports a RunStore retains.
const DefaultRunHistory = 100

// RunStore keeps recent run reports in memory.
type RunStore struct {
	mu    sync.RWMutex
	runs  map[string]ingest.RunReport
	order []string
	limit int
}

// NewRunStore constructs a RunStore retaining at most limit reports.
func NewRunStore(limit int) *RunStore {
	if limit <= 0 {
		limit = DefaultRunHistory
	}
	return &RunStore{
		runs:  make(map[string]ingest.RunReport),
		limit: limit,
	}
}

var _ ingest.RunStore = (*RunStore)(nil)

// SaveRun inserts or replaces the report for its run ID, evicting the oldest
// run once the history limit is exceeded.
func (s *RunStore) SaveRun(_ context.Context, report ingest.RunReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[report.RunID]; !exists {
		s.order = append(s.order, report.RunID)
	}
	s.runs[report.RunID] = report.Clone()
	for len(s.order) > s.limit {
		delete(s.runs, s.order[0])
		s.order = s.order[1:]
	}
	return nil
}

// GetRun returns a copy of one report or ingest.ErrRunNotFound.
func (s *RunStore) GetRun(_ context.Context, runID string) (ingest.RunReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	report, ok := s.runs[runID]
	if !ok {
		return ingest.RunReport{}, ingest.ErrRunNotFound
	}
	return report.Clone(), nil
}

// ListRuns returns copies of the most recent reports, newest first.
func (s *RunStore) ListRuns(_ context.Context, limit int) ([]ingest.RunReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ingest.RunReport, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		out = append(out, s.runs[s.order[i]].Clone())
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
