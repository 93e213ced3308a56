// Package normalize cleans extracted records and infers jurisdiction,
// bill category and government tier from text heuristics.
package normalize

import (
	"github.com/JakeFAU/govdata-ingest/internal/ingest"
)

// Normalizer is stateless and safe for concurrent use.
type Normalizer struct{}

// New returns a Normalizer.
func New() *Normalizer { return &Normalizer{} }

var _ ingest.Normalizer = (*Normalizer)(nil)

// Normalize returns a cleaned copy of rec. It never fails and never mutates
// its input; unknown record types are returned unchanged.
func (n *Normalizer) Normalize(rec ingest.Record, src ingest.SourceDescriptor) ingest.Record {
	jurisdiction := Jurisdiction(src.Host())
	switch r := rec.(type) {
	case *ingest.Politician:
		return politician(*r, src, jurisdiction)
	case *ingest.Bill:
		return bill(*r, src, jurisdiction)
	case *ingest.Vote:
		return vote(*r, jurisdiction)
	case *ingest.Committee:
		return committee(*r, jurisdiction)
	case *ingest.Statement:
		return statement(*r, jurisdiction)
	case *ingest.Election:
		return election(*r, jurisdiction)
	default:
		return rec
	}
}

func politician(p ingest.Politician, src ingest.SourceDescriptor, jurisdiction string) *ingest.Politician {
	p.Name = PersonName(p.Name)
	p.Role = CleanText(p.Role)
	p.Party = CleanText(p.Party)
	p.Constituency = CleanText(p.Constituency)
	p.Jurisdiction = jurisdiction

	tier := RoleTier(p.Role, src.Tier)
	if p.Role == "" {
		tier = src.Tier
		p.Role = DefaultRole(tier)
	}
	p.Tier = tier.Title()

	p.Contact = ingest.Contact{
		Phone:   Phone(p.Contact.Phone),
		Email:   Email(p.Contact.Email),
		Website: AbsoluteURL(src.RootAddress, p.Contact.Website),
	}
	p.ImageURL = AbsoluteURL(src.RootAddress, p.ImageURL)
	p.SourceID = trimOnly(p.SourceID)
	return &p
}

func bill(b ingest.Bill, src ingest.SourceDescriptor, jurisdiction string) *ingest.Bill {
	b.BillNumber = BillNumber(b.BillNumber)
	b.Title = CleanText(b.Title)
	b.Status = CleanText(b.Status)
	b.Sponsor = PersonName(b.Sponsor)
	b.Summary = CleanText(b.Summary)
	b.Category = Category(b.Title)
	b.Jurisdiction = jurisdiction
	b.SourceID = AbsoluteURL(src.RootAddress, b.SourceID)
	return &b
}

func vote(v ingest.Vote, jurisdiction string) *ingest.Vote {
	v.BillNumber = BillNumber(v.BillNumber)
	v.Division = DivisionNumber(v.Division)
	v.Date = CanonicalDate(v.Date)
	v.Result = VoteResult(v.Result)
	v.Jurisdiction = jurisdiction
	return &v
}

func committee(c ingest.Committee, jurisdiction string) *ingest.Committee {
	c.Name = CleanText(c.Name)
	c.Type = CleanText(c.Type)
	c.Chair = PersonName(c.Chair)
	members := make([]string, 0, len(c.Members))
	for _, m := range c.Members {
		if m = PersonName(m); m != "" {
			members = append(members, m)
		}
	}
	c.Members = members
	c.Jurisdiction = jurisdiction
	return &c
}

func statement(s ingest.Statement, jurisdiction string) *ingest.Statement {
	s.SpeakerName = PersonName(s.SpeakerName)
	s.Content = CleanText(s.Content)
	s.Date = CanonicalDate(s.Date)
	s.Context = CleanText(s.Context)
	s.Jurisdiction = jurisdiction
	return &s
}

func election(e ingest.Election, jurisdiction string) *ingest.Election {
	e.Name = CleanText(e.Name)
	e.Date = CanonicalDate(e.Date)
	e.ElectionType = CleanText(e.ElectionType)
	e.Status = CleanText(e.Status)
	e.Jurisdiction = jurisdiction
	return &e
}
