package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/JakeFAU/govdata-ingest/internal/ingest"
)

// DefaultFuzzyThreshold is the minimum Jaro-Winkler similarity accepted when a
// speaker name does not exactly match a stored politician.
const DefaultFuzzyThreshold = 0.94

// Speaker is a stored politician that statements can be attributed to.
type Speaker struct {
	ID           int64  `db:"id"`
	Name         string `db:"name"`
	Jurisdiction string `db:"jurisdiction"`
}

// Tx is the per-entity unit of work a backend exposes to Apply. Every method
// runs inside the same transaction.
type Tx interface {
	// Lookup returns the stored mutable values for the row's natural key.
	Lookup(ctx context.Context, row Row) (values []any, found bool, err error)
	Insert(ctx context.Context, row Row) error
	Update(ctx context.Context, row Row) error
	// Speakers lists stored politicians whose name exactly matches (case
	// insensitively) or who sit in the given jurisdiction.
	Speakers(ctx context.Context, name, jurisdiction string) ([]Speaker, error)
}

// Apply performs the natural-key upsert for rec: insert when no row matches,
// update when a mutable column differs, and no write when identical.
func Apply(ctx context.Context, tx Tx, rec ingest.Record, threshold float64) (ingest.Outcome, error) {
	if rec == nil || !rec.HasNaturalKey() {
		return "", ingest.ErrNaturalKeyMissing
	}
	var politicianID int64
	if s, ok := rec.(*ingest.Statement); ok {
		speakers, err := tx.Speakers(ctx, s.SpeakerName, s.Jurisdiction)
		if err != nil {
			return "", fmt.Errorf("load speakers: %w", err)
		}
		id, ok := ResolveSpeaker(s.SpeakerName, s.Jurisdiction, speakers, threshold)
		if !ok {
			return "", ingest.ErrSpeakerUnresolved
		}
		politicianID = id
	}

	row, err := RowFor(rec, politicianID)
	if err != nil {
		return "", err
	}
	stored, found, err := tx.Lookup(ctx, row)
	if err != nil {
		return "", fmt.Errorf("lookup %s: %w", row.Table, err)
	}
	if !found {
		if err := tx.Insert(ctx, row); err != nil {
			return "", fmt.Errorf("insert %s: %w", row.Table, err)
		}
		return ingest.OutcomeInserted, nil
	}
	if Equal(stored, row.Values) {
		return ingest.OutcomeUnchanged, nil
	}
	if err := tx.Update(ctx, row); err != nil {
		return "", fmt.Errorf("update %s: %w", row.Table, err)
	}
	return ingest.OutcomeUpdated, nil
}

// Wrap attaches the record's kind and natural key to a backend failure.
func Wrap(rec ingest.Record, err error) error {
	if err == nil {
		return nil
	}
	if rec == nil {
		return &ingest.PersistenceError{Err: err}
	}
	return &ingest.PersistenceError{Kind: rec.Kind(), Key: rec.KeyString(), Err: err}
}

// ResolveSpeaker picks the politician a statement belongs to. An exact
// case-insensitive name match wins, preferring the statement's jurisdiction;
// otherwise the most similar name within the jurisdiction is accepted when
// its Jaro-Winkler score reaches threshold.
func ResolveSpeaker(name, jurisdiction string, candidates []Speaker, threshold float64) (int64, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, false
	}
	if threshold <= 0 {
		threshold = DefaultFuzzyThreshold
	}

	var exactElsewhere int64
	for _, c := range candidates {
		if !strings.EqualFold(c.Name, name) {
			continue
		}
		if c.Jurisdiction == jurisdiction {
			return c.ID, true
		}
		if exactElsewhere == 0 {
			exactElsewhere = c.ID
		}
	}
	if exactElsewhere != 0 {
		return exactElsewhere, true
	}

	lowered := strings.ToLower(name)
	var (
		bestID    int64
		bestScore float64
	)
	for _, c := range candidates {
		if c.Jurisdiction != jurisdiction {
			continue
		}
		score := matchr.JaroWinkler(lowered, strings.ToLower(c.Name), false)
		if score > bestScore {
			bestScore = score
			bestID = c.ID
		}
	}
	if bestID != 0 && bestScore >= threshold {
		return bestID, true
	}
	return 0, false
}
