package normalize

import (
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var whitespace = regexp.MustCompile(`\s+`)

// CleanText normalizes s to NFC, drops control characters and anything
// outside letters, digits, underscore, space and `.,()-'`, then collapses
// whitespace and trims.
func CleanText(s string) string {
	if s == "" {
		return ""
	}
	s = norm.NFC.String(s)
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		case unicode.IsControl(r):
		case unicode.IsLetter(r), unicode.IsDigit(r), unicode.IsMark(r):
			b.WriteRune(r)
		case strings.ContainsRune("_.,()-'", r):
			b.WriteRune(r)
		case r == '’' || r == '‘':
			b.WriteRune('\'')
		case r == '\u2013' || r == '\u2014':
			b.WriteRune('-')
		}
	}
	return strings.TrimSpace(whitespace.ReplaceAllString(b.String(), " "))
}

// trimOnly collapses whitespace without filtering characters. Contact values
// such as emails and URLs need their punctuation.
func trimOnly(s string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}

var honorifics = regexp.MustCompile(`(?i)^(?:(?:the\s+)?(?:right\s+)?hon(?:ou?rable|\.)?|m\.|mr\.?|mrs\.?|ms\.?|mme\.?|dr\.?|miss)\s+`)

var trailingParenthetical = regexp.MustCompile(`\s*\([^)]*\)\s*$`)

// PersonName strips honorifics and a trailing parenthetical riding or party
// label from a person's name, then cleans it.
func PersonName(s string) string {
	s = trimOnly(s)
	for {
		stripped := honorifics.ReplaceAllString(s, "")
		if stripped == s {
			break
		}
		s = stripped
	}
	s = strings.TrimSuffix(s, ":")
	s = trailingParenthetical.ReplaceAllString(s, "")
	return CleanText(s)
}

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006/01/02",
	"January 2, 2006",
	"Jan 2, 2006",
	"Jan. 2, 2006",
	"Monday, January 2, 2006",
	"2 January 2006",
	"02 Jan 2006",
}

// CanonicalDate renders a recognized date as YYYY-MM-DD. Unrecognized input
// is returned cleaned but otherwise unchanged.
func CanonicalDate(s string) string {
	s = trimOnly(s)
	if s == "" {
		return ""
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return CleanText(s)
}

// Email strips a mailto: scheme and any query.
func Email(s string) string {
	s = trimOnly(s)
	if len(s) >= 7 && strings.EqualFold(s[:7], "mailto:") {
		s = s[7:]
	}
	if i := strings.IndexByte(s, '?'); i >= 0 {
		s = s[:i]
	}
	return strings.ToLower(s)
}

// Phone strips a tel: scheme.
func Phone(s string) string {
	s = trimOnly(s)
	if len(s) >= 4 && strings.EqualFold(s[:4], "tel:") {
		s = s[4:]
	}
	return strings.TrimSpace(s)
}

// AbsoluteURL resolves ref against base. Refs that cannot be parsed are
// returned trimmed.
func AbsoluteURL(base, ref string) string {
	ref = trimOnly(ref)
	if ref == "" {
		return ""
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	if r.IsAbs() {
		return r.String()
	}
	b, err := url.Parse(base)
	if err != nil || !b.IsAbs() {
		return ref
	}
	return b.ResolveReference(r).String()
}

var (
	billPrefix = regexp.MustCompile(`(?i)^(?:bill\s|projet\s+de\s+loi\s|no\.|no\s|n°)\s*`)
	billLetter = regexp.MustCompile(`^([A-Za-z])\s*[-\s]?\s*(\d+[A-Za-z]?)$`)
)

// BillNumber canonicalizes bill identifiers: "bill c 21" becomes "C-21" and
// "Bill 5" becomes "5".
func BillNumber(s string) string {
	s = trimOnly(s)
	for {
		stripped := strings.TrimSpace(billPrefix.ReplaceAllString(s, ""))
		if stripped == s || stripped == "" {
			break
		}
		s = stripped
	}
	if m := billLetter.FindStringSubmatch(s); m != nil {
		return strings.ToUpper(m[1]) + "-" + strings.ToUpper(m[2])
	}
	return strings.ToUpper(CleanText(s))
}

var voteResults = []struct {
	result   string
	keywords *regexp.Regexp
}{
	{"Passed", regexp.MustCompile(`(?i)\b(agreed|carried|passed|adopted|adopt[ée]e?|accepted)\b`)},
	{"Defeated", regexp.MustCompile(`(?i)\b(negatived|defeated|lost|rejected|rejet[ée]e?|failed)\b`)},
	{"Tied", regexp.MustCompile(`(?i)\b(tie|tied)\b`)},
}

// VoteResult maps free-text division outcomes to Passed, Defeated or Tied.
func VoteResult(s string) string {
	s = CleanText(s)
	for _, vr := range voteResults {
		if vr.keywords.MatchString(s) {
			return vr.result
		}
	}
	return s
}

var divisionDigits = regexp.MustCompile(`\d+`)

// DivisionNumber reduces labels like "Division No. 712" or "#712" to the last
// number they carry. Labels without digits are cleaned and kept.
func DivisionNumber(s string) string {
	if all := divisionDigits.FindAllString(s, -1); len(all) > 0 {
		if n := strings.TrimLeft(all[len(all)-1], "0"); n != "" {
			return n
		}
		return "0"
	}
	return CleanText(s)
}
