package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/JakeFAU/govdata-ingest/internal/ingest"
	"github.com/JakeFAU/govdata-ingest/internal/store"
)

func TestEntityStoreLaterPartyWins(t *testing.T) {
	t.Parallel()

	s := NewEntityStore(0)
	ctx := context.Background()

	first := &ingest.Politician{Name: "Jane Doe", Jurisdiction: "Ontario", Party: "Green"}
	second := &ingest.Politician{Name: "Jane Doe", Jurisdiction: "Ontario", Party: "Liberal"}

	outcome, err := s.Upsert(ctx, first)
	if err != nil || outcome != ingest.OutcomeInserted {
		t.Fatalf("first Upsert() = %v, %v", outcome, err)
	}
	outcome, err = s.Upsert(ctx, second)
	if err != nil || outcome != ingest.OutcomeUpdated {
		t.Fatalf("second Upsert() = %v, %v", outcome, err)
	}
	if n := s.Len(store.TablePoliticians); n != 1 {
		t.Fatalf("Len() = %d, want 1", n)
	}
	row, ok := s.Get(second)
	if !ok {
		t.Fatal("expected stored politician")
	}
	if row["party"] != "Liberal" || row["version"] != 2 {
		t.Fatalf("unexpected row %+v", row)
	}
}

func TestEntityStoreIdempotentReplay(t *testing.T) {
	t.Parallel()

	s := NewEntityStore(0)
	ctx := context.Background()
	records := []ingest.Record{
		&ingest.Bill{BillNumber: "C-21", Title: "An Act respecting firearms", Status: "Royal assent"},
		&ingest.Vote{Jurisdiction: "Canada", BillNumber: "C-21", Date: "2024-03-20", YesCount: 170},
		&ingest.Committee{Name: "Finance", Jurisdiction: "Canada", Members: []string{"Pat Lee"}},
		&ingest.Election{Name: "General Election", Date: "2025-04-28", Jurisdiction: "Canada"},
	}
	for _, rec := range records {
		if outcome, err := s.Upsert(ctx, rec); err != nil || outcome != ingest.OutcomeInserted {
			t.Fatalf("first pass Upsert(%s) = %v, %v", rec.KeyString(), outcome, err)
		}
	}
	for _, rec := range records {
		if outcome, err := s.Upsert(ctx, rec); err != nil || outcome != ingest.OutcomeUnchanged {
			t.Fatalf("second pass Upsert(%s) = %v, %v", rec.KeyString(), outcome, err)
		}
	}
	row, _ := s.Get(records[0])
	if row["version"] != 1 {
		t.Fatalf("expected untouched row, got version %v", row["version"])
	}
}

func TestEntityStoreBillNumberReuseIsDistinct(t *testing.T) {
	t.Parallel()

	s := NewEntityStore(0)
	ctx := context.Background()
	_, _ = s.Upsert(ctx, &ingest.Bill{BillNumber: "C-2", Title: "An Act for the 44th Parliament"})
	_, _ = s.Upsert(ctx, &ingest.Bill{BillNumber: "C-2", Title: "An Act for the 45th Parliament"})
	if n := s.Len(store.TableBills); n != 2 {
		t.Fatalf("Len() = %d, want 2", n)
	}
}

func TestEntityStoreStatements(t *testing.T) {
	t.Parallel()

	s := NewEntityStore(0)
	ctx := context.Background()
	if _, err := s.Upsert(ctx, &ingest.Politician{Name: "Alex Tremblay", Jurisdiction: "Canada"}); err != nil {
		t.Fatalf("Upsert politician: %v", err)
	}

	stmt := &ingest.Statement{SpeakerName: "Alex Tremblay", Content: "I rise today.", Date: "2024-03-20", Jurisdiction: "Canada"}
	if outcome, err := s.Upsert(ctx, stmt); err != nil || outcome != ingest.OutcomeInserted {
		t.Fatalf("Upsert statement = %v, %v", outcome, err)
	}
	if outcome, err := s.Upsert(ctx, stmt); err != nil || outcome != ingest.OutcomeUnchanged {
		t.Fatalf("replay statement = %v, %v", outcome, err)
	}

	_, err := s.Upsert(ctx, &ingest.Statement{SpeakerName: "Unknown Person", Content: "Hi", Jurisdiction: "Canada"})
	if !errors.Is(err, ingest.ErrSpeakerUnresolved) {
		t.Fatalf("expected ErrSpeakerUnresolved, got %v", err)
	}
	var persistErr *ingest.PersistenceError
	if !errors.As(err, &persistErr) || persistErr.Kind != ingest.KindStatement {
		t.Fatalf("expected statement PersistenceError, got %v", err)
	}
	if n := s.Len(store.TableStatements); n != 1 {
		t.Fatalf("Len(statements) = %d, want 1", n)
	}
}
