package store

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/JakeFAU/govdata-ingest/internal/hash/sha256"
	"github.com/JakeFAU/govdata-ingest/internal/ingest"
)

// Table names, one per entity kind.
const (
	TablePoliticians = "politicians"
	TableBills       = "bills"
	TableVotes       = "votes"
	TableCommittees  = "committees"
	TableStatements  = "statements"
	TableElections   = "elections"
)

// Tables lists every entity table in dependency order: statements reference
// politicians.
var Tables = []string{
	TablePoliticians,
	TableBills,
	TableVotes,
	TableCommittees,
	TableElections,
	TableStatements,
}

// Row is the relational projection of one record: the natural-key columns
// that identify it and the mutable columns that an update may change.
type Row struct {
	Table      string
	KeyColumns []string
	KeyValues  []any
	Columns    []string
	Values     []any
}

// InsertColumns returns key columns followed by mutable columns.
func (r Row) InsertColumns() []string {
	return append(append([]string(nil), r.KeyColumns...), r.Columns...)
}

// InsertValues returns key values followed by mutable values.
func (r Row) InsertValues() []any {
	return append(append([]any(nil), r.KeyValues...), r.Values...)
}

// Key renders the natural key values for map lookups.
func (r Row) Key() string {
	parts := make([]string, len(r.KeyValues))
	for i, v := range r.KeyValues {
		parts[i] = Canonical(v)
	}
	return r.Table + ":" + strings.Join(parts, "|")
}

// ContentHash returns the hex SHA-256 digest used to identify statement text.
func ContentHash(content string) string {
	return sha256.SumString(content)
}

// RowFor builds the row for rec. Statements need the resolved politician ID
// of their speaker; other kinds ignore politicianID.
func RowFor(rec ingest.Record, politicianID int64) (Row, error) {
	switch r := rec.(type) {
	case *ingest.Politician:
		return Row{
			Table:      TablePoliticians,
			KeyColumns: []string{"name", "jurisdiction"},
			KeyValues:  []any{r.Name, r.Jurisdiction},
			Columns: []string{
				"role", "party", "constituency", "tier",
				"phone", "email", "website", "image_url", "source_id",
			},
			Values: []any{
				r.Role, r.Party, r.Constituency, r.Tier,
				r.Contact.Phone, r.Contact.Email, r.Contact.Website, r.ImageURL, r.SourceID,
			},
		}, nil
	case *ingest.Bill:
		return Row{
			Table:      TableBills,
			KeyColumns: []string{"bill_number", "title"},
			KeyValues:  []any{r.BillNumber, r.Title},
			Columns:    []string{"status", "sponsor", "summary", "category", "jurisdiction", "source_id"},
			Values:     []any{r.Status, r.Sponsor, r.Summary, r.Category, r.Jurisdiction, r.SourceID},
		}, nil
	case *ingest.Vote:
		return Row{
			Table:      TableVotes,
			KeyColumns: []string{"jurisdiction", "bill_number", "vote_date", "division"},
			KeyValues:  []any{r.Jurisdiction, r.BillNumber, r.Date, r.Division},
			Columns:    []string{"result", "yes_count", "no_count", "abstain_count"},
			Values:     []any{r.Result, r.YesCount, r.NoCount, r.AbstainCount},
		}, nil
	case *ingest.Committee:
		members := r.Members
		if members == nil {
			members = []string{}
		}
		encoded, err := json.Marshal(members)
		if err != nil {
			return Row{}, fmt.Errorf("encode committee members: %w", err)
		}
		return Row{
			Table:      TableCommittees,
			KeyColumns: []string{"name", "jurisdiction"},
			KeyValues:  []any{r.Name, r.Jurisdiction},
			Columns:    []string{"committee_type", "chair", "members"},
			Values:     []any{r.Type, r.Chair, string(encoded)},
		}, nil
	case *ingest.Election:
		return Row{
			Table:      TableElections,
			KeyColumns: []string{"name", "election_date", "jurisdiction"},
			KeyValues:  []any{r.Name, r.Date, r.Jurisdiction},
			Columns:    []string{"election_type", "status"},
			Values:     []any{r.ElectionType, r.Status},
		}, nil
	case *ingest.Statement:
		if politicianID <= 0 {
			return Row{}, ingest.ErrSpeakerUnresolved
		}
		return Row{
			Table:      TableStatements,
			KeyColumns: []string{"politician_id", "statement_date", "content_hash"},
			KeyValues:  []any{politicianID, r.Date, ContentHash(r.Content)},
			Columns:    []string{"speaker_name", "content", "context", "jurisdiction"},
			Values:     []any{r.SpeakerName, r.Content, r.Context, r.Jurisdiction},
		}, nil
	default:
		return Row{}, fmt.Errorf("unsupported record type %T", rec)
	}
}

// Canonical renders a column value as comparable text. Drivers disagree on
// scan types (MySQL returns []byte for text, Postgres returns int64 or int32
// for integers), so values are compared in this form.
func Canonical(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case int:
		return strconv.FormatInt(int64(t), 10)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case int64:
		return strconv.FormatInt(t, 10)
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(t)
	}
}

// Equal reports whether stored mutable values match the incoming ones.
func Equal(stored, incoming []any) bool {
	if len(stored) != len(incoming) {
		return false
	}
	for i := range stored {
		if Canonical(stored[i]) != Canonical(incoming[i]) {
			return false
		}
	}
	return true
}
