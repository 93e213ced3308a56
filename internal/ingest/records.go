package ingest

import "strings"

// EntityKind discriminates the Record union.
type EntityKind string

// Supported entity kinds.
const (
	KindPolitician EntityKind = "politician"
	KindBill       EntityKind = "bill"
	KindVote       EntityKind = "vote"
	KindCommittee  EntityKind = "committee"
	KindStatement  EntityKind = "statement"
	KindElection   EntityKind = "election"
)

// EntityKinds lists every entity kind in a fixed order.
var EntityKinds = []EntityKind{
	KindPolitician,
	KindBill,
	KindVote,
	KindCommittee,
	KindStatement,
	KindElection,
}

// Record is one extracted entity. It is transient and never persisted directly.
type Record interface {
	Kind() EntityKind
	// HasNaturalKey reports whether the fields needed for deduplication are present.
	HasNaturalKey() bool
	// KeyString renders the natural key for logs and error entries.
	KeyString() string
}

// Contact holds the public contact channels of an official.
type Contact struct {
	Phone   string `json:"phone,omitempty"`
	Email   string `json:"email,omitempty"`
	Website string `json:"website,omitempty"`
}

// Politician is an elected or appointed official.
type Politician struct {
	Name         string  `json:"name"`
	Role         string  `json:"role"`
	Party        string  `json:"party"`
	Constituency string  `json:"constituency"`
	Jurisdiction string  `json:"jurisdiction"`
	Tier         string  `json:"tier"`
	Contact      Contact `json:"contact"`
	ImageURL     string  `json:"image_url"`
	SourceID     string  `json:"source_id"`
}

// Kind implements Record.
func (*Politician) Kind() EntityKind { return KindPolitician }

// HasNaturalKey implements Record.
func (p *Politician) HasNaturalKey() bool { return present(p.Name) }

// KeyString implements Record.
func (p *Politician) KeyString() string { return joinKey(p.Name, p.Jurisdiction) }

// Bill is a piece of legislation.
type Bill struct {
	BillNumber   string `json:"bill_number"`
	Title        string `json:"title"`
	Status       string `json:"status"`
	Sponsor      string `json:"sponsor"`
	Summary      string `json:"summary"`
	Category     string `json:"category"`
	Jurisdiction string `json:"jurisdiction"`
	SourceID     string `json:"source_id"`
}

// Kind implements Record.
func (*Bill) Kind() EntityKind { return KindBill }

// HasNaturalKey implements Record.
func (b *Bill) HasNaturalKey() bool { return present(b.BillNumber) && present(b.Title) }

// KeyString implements Record.
func (b *Bill) KeyString() string { return joinKey(b.BillNumber, b.Title) }

// Vote is a recorded division on a bill. Division tells apart several
// divisions on the same bill in one sitting; it may be empty.
type Vote struct {
	BillNumber   string `json:"bill_number"`
	Division     string `json:"division,omitempty"`
	Date         string `json:"date"`
	Result       string `json:"result"`
	YesCount     int64  `json:"yes_count"`
	NoCount      int64  `json:"no_count"`
	AbstainCount int64  `json:"abstain_count"`
	Jurisdiction string `json:"jurisdiction"`
}

// Kind implements Record.
func (*Vote) Kind() EntityKind { return KindVote }

// HasNaturalKey implements Record.
func (v *Vote) HasNaturalKey() bool { return present(v.BillNumber) && present(v.Date) }

// KeyString implements Record.
func (v *Vote) KeyString() string { return joinKey(v.Jurisdiction, v.BillNumber, v.Date, v.Division) }

// Committee is a standing or special committee of a legislature or council.
type Committee struct {
	Name         string   `json:"name"`
	Type         string   `json:"type"`
	Chair        string   `json:"chair"`
	Members      []string `json:"members"`
	Jurisdiction string   `json:"jurisdiction"`
}

// Kind implements Record.
func (*Committee) Kind() EntityKind { return KindCommittee }

// HasNaturalKey implements Record.
func (c *Committee) HasNaturalKey() bool { return present(c.Name) }

// KeyString implements Record.
func (c *Committee) KeyString() string { return joinKey(c.Name, c.Jurisdiction) }

// Statement is something a politician said on the record.
type Statement struct {
	SpeakerName  string `json:"speaker_name"`
	Content      string `json:"content"`
	Date         string `json:"date"`
	Context      string `json:"context"`
	Jurisdiction string `json:"jurisdiction"`
}

// Kind implements Record.
func (*Statement) Kind() EntityKind { return KindStatement }

// HasNaturalKey implements Record.
func (s *Statement) HasNaturalKey() bool { return present(s.SpeakerName) && present(s.Content) }

// KeyString implements Record.
func (s *Statement) KeyString() string {
	return joinKey(s.SpeakerName, s.Date, truncateRunes(s.Content, 40))
}

// Election is a scheduled or completed election event.
type Election struct {
	Name         string `json:"name"`
	Date         string `json:"date"`
	ElectionType string `json:"election_type"`
	Status       string `json:"status"`
	Jurisdiction string `json:"jurisdiction"`
}

// Kind implements Record.
func (*Election) Kind() EntityKind { return KindElection }

// HasNaturalKey implements Record.
func (e *Election) HasNaturalKey() bool { return present(e.Name) }

// KeyString implements Record.
func (e *Election) KeyString() string { return joinKey(e.Name, e.Date, e.Jurisdiction) }

func present(s string) bool {
	return strings.TrimSpace(s) != ""
}

func truncateRunes(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

func joinKey(parts ...string) string {
	return strings.Join(parts, "|")
}
