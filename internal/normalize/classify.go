package normalize

import (
	"regexp"
	"strings"

	"github.com/JakeFAU/govdata-ingest/internal/ingest"
)

// UnknownJurisdiction is assigned to records from unmapped hosts.
const UnknownJurisdiction = "Unknown"

// DefaultCategory is assigned to bills whose title matches no keyword group.
const DefaultCategory = "General"

type hostRule struct {
	suffix       string
	jurisdiction string
}

// jurisdictions is matched in order against the source host, either exactly
// or as a dot-separated suffix.
var jurisdictions = []hostRule{
	{"ourcommons.ca", "Canada"},
	{"sencanada.ca", "Canada"},
	{"parl.ca", "Canada"},
	{"elections.ca", "Canada"},
	{"canada.ca", "Canada"},
	{"ola.org", "Ontario"},
	{"elections.on.ca", "Ontario"},
	{"assnat.qc.ca", "Quebec"},
	{"electionsquebec.qc.ca", "Quebec"},
	{"leg.bc.ca", "British Columbia"},
	{"elections.bc.ca", "British Columbia"},
	{"assembly.ab.ca", "Alberta"},
	{"legassembly.sk.ca", "Saskatchewan"},
	{"gov.mb.ca", "Manitoba"},
	{"nslegislature.ca", "Nova Scotia"},
	{"legnb.ca", "New Brunswick"},
	{"toronto.ca", "Toronto"},
	{"montreal.ca", "Montreal"},
	{"vancouver.ca", "Vancouver"},
	{"calgary.ca", "Calgary"},
	{"ottawa.ca", "Ottawa"},
	{"edmonton.ca", "Edmonton"},
	{"winnipeg.ca", "Winnipeg"},
}

// Jurisdiction maps a network host to its canonical jurisdiction name.
func Jurisdiction(host string) string {
	host = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(host)), ".")
	if host == "" {
		return UnknownJurisdiction
	}
	for _, rule := range jurisdictions {
		if host == rule.suffix || strings.HasSuffix(host, "."+rule.suffix) {
			return rule.jurisdiction
		}
	}
	return UnknownJurisdiction
}

type keywordGroup struct {
	label   string
	pattern *regexp.Regexp
}

// group compiles a word-prefix matcher: each keyword must start at a word
// boundary, so "pharmac" matches "pharmacare" but "rent" skips "parent".
func group(label string, keywords ...string) keywordGroup {
	quoted := make([]string, len(keywords))
	for i, k := range keywords {
		quoted[i] = regexp.QuoteMeta(k)
	}
	return keywordGroup{
		label:   label,
		pattern: regexp.MustCompile(`\b(?:` + strings.Join(quoted, "|") + `)`),
	}
}

// categories is evaluated in order; the first matching group wins.
var categories = []keywordGroup{
	group("Environment", "environment", "climate", "carbon", "emission", "pollution", "conservation", "wildlife", "species", "water", "greenhouse"),
	group("Healthcare", "health", "medical", "hospital", "pharmac", "physician", "nurs", "mental health", "long-term care"),
	group("Education", "education", "school", "universit", "college", "student", "child care", "childcare"),
	group("Housing", "housing", "tenant", "rent", "residential", "homeless"),
	group("Justice", "criminal", "justice", "court", "police", "firearm", "crime", "sentenc", "correction"),
	group("Indigenous Affairs", "indigenous", "first nation", "métis", "metis", "inuit", "treaty"),
	group("Finance", "budget", "tax", "financ", "appropriation", "fiscal", "supply", "revenue", "borrowing"),
	group("Labour", "labour", "labor", "employment", "worker", "wage", "pension"),
	group("Transportation", "transport", "transit", "highway", "road", "railway", "airport", "vehicle"),
	group("Energy", "energy", "electricity", "oil", "pipeline", "hydro", "nuclear"),
	group("Agriculture", "agricultur", "farm", "food", "fisher"),
	group("Democratic Reform", "election", "electoral", "elections act", "referendum", "parliament of canada act"),
}

// Category classifies a bill title by its first matching keyword group.
func Category(title string) string {
	lowered := strings.ToLower(title)
	for _, g := range categories {
		if g.pattern.MatchString(lowered) {
			return g.label
		}
	}
	return DefaultCategory
}

type tierRule struct {
	tier    ingest.Tier
	pattern *regexp.Regexp
}

// tierRules is evaluated in order. Municipal and provincial titles are tested
// before federal ones so "Member of Provincial Parliament" is not read as an MP.
var tierRules = []tierRule{
	{ingest.TierMunicipal, regexp.MustCompile(`(?i)\b(mayor|deputy mayor|councill?or|alderman|alderwoman|reeve|city council|ward|maire|mairesse|conseill[eè]re?)\b`)},
	{ingest.TierProvincial, regexp.MustCompile(`(?i)\b(mpp|mla|mna|mha|premier|member of provincial parliament|legislative assembly|national assembly|assembl[ée]e nationale)\b|(?i)\bd[ée]put[ée]`)},
	{ingest.TierFederal, regexp.MustCompile(`(?i)\b(mp|senator|s[ée]nat(eur|rice)|member of parliament|prime minister|house of commons)\b`)},
}

// RoleTier infers the government tier from a free-text role, falling back to
// the source tier when the role carries no signal.
func RoleTier(role string, fallback ingest.Tier) ingest.Tier {
	for _, rule := range tierRules {
		if rule.pattern.MatchString(role) {
			return rule.tier
		}
	}
	return fallback
}

// DefaultRole returns the title given to officials listed without a role.
func DefaultRole(tier ingest.Tier) string {
	switch tier {
	case ingest.TierFederal:
		return "Member of Parliament"
	case ingest.TierProvincial:
		return "Member of the Legislative Assembly"
	case ingest.TierMunicipal:
		return "Councillor"
	default:
		return ""
	}
}
