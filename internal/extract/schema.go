package extract

import (
	"strconv"
	"strings"

	"github.com/JakeFAU/govdata-ingest/internal/ingest"
)

// Canonical field names shared by HTML schemas and CSV headers.
const (
	FieldName         = "name"
	FieldRole         = "role"
	FieldParty        = "party"
	FieldConstituency = "constituency"
	FieldPhone        = "phone"
	FieldEmail        = "email"
	FieldWebsite      = "website"
	FieldImageURL     = "image_url"
	FieldSourceID     = "source_id"
	FieldBillNumber   = "bill_number"
	FieldTitle        = "title"
	FieldStatus       = "status"
	FieldSponsor      = "sponsor"
	FieldSummary      = "summary"
	FieldDate         = "date"
	FieldResult       = "result"
	FieldYes          = "yes_count"
	FieldNo           = "no_count"
	FieldAbstain      = "abstain_count"
	FieldDivision     = "division"
	FieldType         = "type"
	FieldChair        = "chair"
	FieldMembers      = "members"
	FieldSpeaker      = "speaker"
	FieldContent      = "content"
	FieldContext      = "context"
)

// Fields holds the values extracted for one entity.
type Fields struct {
	Single map[string]string
	Multi  map[string][]string
}

// Get returns a single-valued field.
func (f Fields) Get(name string) string { return f.Single[name] }

// List returns a multi-valued field.
func (f Fields) List(name string) []string { return f.Multi[name] }

// Schema describes how to locate and assemble one entity kind.
type Schema struct {
	Kind       ingest.EntityKind
	Containers []Query
	Fields     map[string]Chain
	Multi      map[string]Chain
	Build      func(Fields) ingest.Record
}

// DefaultSchemas returns the built-in schemas for every entity kind.
func DefaultSchemas() map[ingest.EntityKind]Schema {
	return map[ingest.EntityKind]Schema{
		ingest.KindPolitician: politicianSchema(),
		ingest.KindBill:       billSchema(),
		ingest.KindVote:       voteSchema(),
		ingest.KindCommittee:  committeeSchema(),
		ingest.KindStatement:  statementSchema(),
		ingest.KindElection:   electionSchema(),
	}
}

// Table rows without data cells are header rows and never match.
var tableRows = CSS("table tr:has(td)")

func politicianSchema() Schema {
	return Schema{
		Kind: ingest.KindPolitician,
		Containers: []Query{
			CSS(".member-card, .mp-card, .ce-mip-mp-tile, [itemtype$='/Person']"),
			tableRows,
			XPath("//li[contains(concat(' ', normalize-space(@class), ' '), ' member ')]"),
		},
		Fields: map[string]Chain{
			FieldName: {
				CSS("[itemprop='name']"),
				CSS(".member-name, .ce-mip-mp-name"),
				CSS(".name"),
				CSS("h2, h3, h4"),
				XPath("./td[1]"),
				CSSAttr("a[title]", "title"),
			},
			FieldRole: {
				CSS("[itemprop='jobTitle']"),
				CSS(".role, .position, .title, .ce-mip-mp-title"),
				XPath("./td[contains(@class, 'role')]"),
			},
			FieldParty: {
				CSS("[itemprop='affiliation']"),
				CSS(".party, .ce-mip-mp-party, .caucus"),
				XPath("./td[contains(@class, 'party')]"),
			},
			FieldConstituency: {
				CSS(".constituency, .riding, .ward, .electoral-district, .ce-mip-mp-constituency"),
				XPath("./td[contains(@class, 'riding') or contains(@class, 'constituency') or contains(@class, 'ward')]"),
			},
			FieldPhone: {
				CSSAttr("a[href^='tel:']", "href"),
				CSS(".phone, .tel, [itemprop='telephone']"),
			},
			FieldEmail: {
				CSSAttr("a[href^='mailto:']", "href"),
				CSS(".email, [itemprop='email']"),
			},
			FieldWebsite: {
				CSSAttr("a.website, a[rel='external']", "href"),
				CSSAttr("[itemprop='url']", "href"),
			},
			FieldImageURL: {
				CSSAttr("img", "src"),
				CSSAttr("img", "data-src"),
			},
			FieldSourceID: {
				Self("data-member-id"),
				Self("id"),
				CSSAttr("a[href]", "href"),
			},
		},
		Build: func(f Fields) ingest.Record {
			return &ingest.Politician{
				Name:         f.Get(FieldName),
				Role:         f.Get(FieldRole),
				Party:        f.Get(FieldParty),
				Constituency: f.Get(FieldConstituency),
				Contact: ingest.Contact{
					Phone:   f.Get(FieldPhone),
					Email:   f.Get(FieldEmail),
					Website: f.Get(FieldWebsite),
				},
				ImageURL: f.Get(FieldImageURL),
				SourceID: f.Get(FieldSourceID),
			}
		},
	}
}

func billSchema() Schema {
	return Schema{
		Kind: ingest.KindBill,
		Containers: []Query{
			CSS(".bill, .bill-item, article.bill-tile"),
			tableRows,
			XPath("//li[contains(@class, 'bill')]"),
		},
		Fields: map[string]Chain{
			FieldBillNumber: {
				Self("data-bill-number"),
				CSS(".bill-number, .number"),
				XPath("./td[1]"),
			},
			FieldTitle: {
				CSS(".bill-title, .title"),
				CSS("h3 a, h3, h2"),
				XPath("./td[2]"),
			},
			FieldStatus: {
				CSS(".status, .bill-status, .stage"),
				XPath("./td[3]"),
			},
			FieldSponsor: {
				CSS(".sponsor, .bill-sponsor"),
				XPath("./td[4]"),
			},
			FieldSummary: {
				CSS(".summary, .description"),
				CSS("p"),
			},
			FieldSourceID: {
				Self("data-bill-id"),
				CSSAttr("a[href]", "href"),
			},
		},
		Build: func(f Fields) ingest.Record {
			return &ingest.Bill{
				BillNumber: f.Get(FieldBillNumber),
				Title:      f.Get(FieldTitle),
				Status:     f.Get(FieldStatus),
				Sponsor:    f.Get(FieldSponsor),
				Summary:    f.Get(FieldSummary),
				SourceID:   f.Get(FieldSourceID),
			}
		},
	}
}

func voteSchema() Schema {
	return Schema{
		Kind: ingest.KindVote,
		Containers: []Query{
			CSS(".vote, .division"),
			tableRows,
		},
		Fields: map[string]Chain{
			FieldDate: {
				CSSAttr("time[datetime]", "datetime"),
				CSS(".date"),
				XPath("./td[1]"),
			},
			FieldBillNumber: {
				CSS(".bill-number, .bill"),
				XPath("./td[2]"),
			},
			FieldResult: {
				CSS(".result, .decision"),
				XPath("./td[3]"),
			},
			FieldYes: {
				CSS(".yeas, .yes"),
				XPath("./td[4]"),
			},
			FieldNo: {
				CSS(".nays, .no"),
				XPath("./td[5]"),
			},
			FieldAbstain: {
				CSS(".abstain, .paired"),
				XPath("./td[6]"),
			},
			FieldDivision: {
				Self("data-division-id"),
				CSS(".division-number"),
				XPath("./td[7]"),
			},
		},
		Build: func(f Fields) ingest.Record {
			return &ingest.Vote{
				BillNumber:   f.Get(FieldBillNumber),
				Division:     f.Get(FieldDivision),
				Date:         f.Get(FieldDate),
				Result:       f.Get(FieldResult),
				YesCount:     parseCount(f.Get(FieldYes)),
				NoCount:      parseCount(f.Get(FieldNo)),
				AbstainCount: parseCount(f.Get(FieldAbstain)),
			}
		},
	}
}

func committeeSchema() Schema {
	return Schema{
		Kind: ingest.KindCommittee,
		Containers: []Query{
			CSS(".committee, .committee-card"),
			tableRows,
			XPath("//ul[contains(@class, 'committees')]/li"),
		},
		Fields: map[string]Chain{
			FieldName: {
				CSS(".committee-name, .name"),
				CSS("h3, h2"),
				XPath("./td[1]"),
				XPath("./a"),
			},
			FieldType: {
				CSS(".committee-type, .type"),
				XPath("./td[2]"),
			},
			FieldChair: {
				CSS(".chair, .committee-chair"),
				XPath("./td[3]"),
			},
		},
		Multi: map[string]Chain{
			FieldMembers: {
				CSS(".members li, .member-list li"),
				CSS(".member"),
			},
		},
		Build: func(f Fields) ingest.Record {
			return &ingest.Committee{
				Name:    f.Get(FieldName),
				Type:    f.Get(FieldType),
				Chair:   f.Get(FieldChair),
				Members: f.List(FieldMembers),
			}
		},
	}
}

func statementSchema() Schema {
	return Schema{
		Kind: ingest.KindStatement,
		Containers: []Query{
			CSS(".intervention, .statement, .speech"),
			CSS("blockquote"),
		},
		Fields: map[string]Chain{
			FieldSpeaker: {
				CSS(".speaker, .intervention-speaker, .attribution"),
				CSS("cite"),
				CSS("strong, b"),
			},
			FieldDate: {
				CSSAttr("time[datetime]", "datetime"),
				CSS(".date"),
			},
			FieldContext: {
				CSS(".topic, .context, .subject"),
				CSS("h3, h4"),
			},
		},
		Multi: map[string]Chain{
			FieldContent: {
				CSS(".content p, .text p, .paratext"),
				CSS(".content, .text"),
				CSS("p"),
			},
		},
		Build: func(f Fields) ingest.Record {
			return &ingest.Statement{
				SpeakerName: f.Get(FieldSpeaker),
				Content:     strings.Join(f.List(FieldContent), " "),
				Date:        f.Get(FieldDate),
				Context:     f.Get(FieldContext),
			}
		},
	}
}

func electionSchema() Schema {
	return Schema{
		Kind: ingest.KindElection,
		Containers: []Query{
			CSS(".election, .event"),
			tableRows,
		},
		Fields: map[string]Chain{
			FieldName: {
				CSS(".election-name, .name"),
				CSS("h3, h2"),
				XPath("./td[1]"),
			},
			FieldDate: {
				CSSAttr("time[datetime]", "datetime"),
				CSS(".date"),
				XPath("./td[2]"),
			},
			FieldType: {
				CSS(".election-type, .type"),
				XPath("./td[3]"),
			},
			FieldStatus: {
				CSS(".status"),
				XPath("./td[4]"),
			},
		},
		Build: func(f Fields) ingest.Record {
			return &ingest.Election{
				Name:         f.Get(FieldName),
				Date:         f.Get(FieldDate),
				ElectionType: f.Get(FieldType),
				Status:       f.Get(FieldStatus),
			}
		},
	}
}

// parseCount reads the digits of a tally such as "1,204" or "Yeas: 172".
func parseCount(s string) int64 {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return 0
	}
	n, err := strconv.ParseInt(b.String(), 10, 64)
	if err != nil {
		return 0
	}
	return n
}
