// Package memory provides in-process storage backends for development and tests.
package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/JakeFAU/govdata-ingest/internal/ingest"
	"github.com/JakeFAU/govdata-ingest/internal/store"
)

type storedRow struct {
	id      int64
	row     store.Row
	version int
}

// EntityStore keeps upserted records in maps keyed by natural key.
type EntityStore struct {
	mu        sync.Mutex
	rows      map[string]*storedRow
	speakers  []store.Speaker
	nextID    int64
	threshold float64
}

// NewEntityStore constructs an EntityStore. A non-positive threshold uses
// store.DefaultFuzzyThreshold for speaker matching.
func NewEntityStore(threshold float64) *EntityStore {
	if threshold <= 0 {
		threshold = store.DefaultFuzzyThreshold
	}
	return &EntityStore{
		rows:      make(map[string]*storedRow),
		threshold: threshold,
	}
}

var _ ingest.EntityStore = (*EntityStore)(nil)

// Upsert inserts or updates rec by natural key. The store lock is the
// transaction boundary.
func (s *EntityStore) Upsert(ctx context.Context, rec ingest.Record) (ingest.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	outcome, err := store.Apply(ctx, memTx{s}, rec, s.threshold)
	if err != nil {
		return "", store.Wrap(rec, err)
	}
	return outcome, nil
}

// Len returns the number of rows stored in table.
func (s *EntityStore) Len(table string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.rows {
		if r.row.Table == table {
			n++
		}
	}
	return n
}

// Get returns the stored columns of the row matching rec's natural key.
// Statements are not addressable this way since their key depends on
// speaker resolution.
func (s *EntityStore) Get(rec ingest.Record) (map[string]any, bool) {
	row, err := store.RowFor(rec, 0)
	if err != nil {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.rows[row.Key()]
	if !ok {
		return nil, false
	}
	out := make(map[string]any, len(stored.row.KeyColumns)+len(stored.row.Columns)+2)
	out["id"] = stored.id
	out["version"] = stored.version
	for i, c := range stored.row.KeyColumns {
		out[c] = stored.row.KeyValues[i]
	}
	for i, c := range stored.row.Columns {
		out[c] = stored.row.Values[i]
	}
	return out, true
}

// memTx implements store.Tx over the maps; the caller holds s.mu.
type memTx struct {
	s *EntityStore
}

func (t memTx) Lookup(_ context.Context, row store.Row) ([]any, bool, error) {
	stored, ok := t.s.rows[row.Key()]
	if !ok {
		return nil, false, nil
	}
	return append([]any(nil), stored.row.Values...), true, nil
}

func (t memTx) Insert(_ context.Context, row store.Row) error {
	t.s.nextID++
	t.s.rows[row.Key()] = &storedRow{id: t.s.nextID, row: cloneRow(row), version: 1}
	if row.Table == store.TablePoliticians {
		name, _ := row.KeyValues[0].(string)
		jurisdiction, _ := row.KeyValues[1].(string)
		t.s.speakers = append(t.s.speakers, store.Speaker{ID: t.s.nextID, Name: name, Jurisdiction: jurisdiction})
	}
	return nil
}

func (t memTx) Update(_ context.Context, row store.Row) error {
	stored, ok := t.s.rows[row.Key()]
	if !ok {
		return t.Insert(context.Background(), row)
	}
	stored.row.Values = append([]any(nil), row.Values...)
	stored.version++
	return nil
}

func (t memTx) Speakers(_ context.Context, name, jurisdiction string) ([]store.Speaker, error) {
	var out []store.Speaker
	for _, sp := range t.s.speakers {
		if strings.EqualFold(sp.Name, name) || sp.Jurisdiction == jurisdiction {
			out = append(out, sp)
		}
	}
	return out, nil
}

func cloneRow(r store.Row) store.Row {
	return store.Row{
		Table:      r.Table,
		KeyColumns: append([]string(nil), r.KeyColumns...),
		KeyValues:  append([]any(nil), r.KeyValues...),
		Columns:    append([]string(nil), r.Columns...),
		Values:     append([]any(nil), r.Values...),
	}
}
