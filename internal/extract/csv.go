package extract

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/jszwec/csvutil"
)

// csvRow is the union of every column the CSV exports are known to carry.
type csvRow struct {
	Name         string `csv:"name"`
	Role         string `csv:"role"`
	Party        string `csv:"party"`
	Constituency string `csv:"constituency"`
	Phone        string `csv:"phone"`
	Email        string `csv:"email"`
	Website      string `csv:"website"`
	ImageURL     string `csv:"image_url"`
	SourceID     string `csv:"source_id"`
	BillNumber   string `csv:"bill_number"`
	Title        string `csv:"title"`
	Status       string `csv:"status"`
	Sponsor      string `csv:"sponsor"`
	Summary      string `csv:"summary"`
	Date         string `csv:"date"`
	Result       string `csv:"result"`
	Yes          string `csv:"yes_count"`
	No           string `csv:"no_count"`
	Abstain      string `csv:"abstain_count"`
	Division     string `csv:"division"`
	Type         string `csv:"type"`
	Chair        string `csv:"chair"`
	Members      string `csv:"members"`
	Speaker      string `csv:"speaker"`
	Content      string `csv:"content"`
	Context      string `csv:"context"`
}

// headerAliases maps normalized export headers onto canonical field names.
var headerAliases = map[string]string{
	"name":               FieldName,
	"full_name":          FieldName,
	"member":             FieldName,
	"member_name":        FieldName,
	"councillor":         FieldName,
	"committee":          FieldName,
	"committee_name":     FieldName,
	"election":           FieldName,
	"election_name":      FieldName,
	"role":               FieldRole,
	"position":           FieldRole,
	"office":             FieldRole,
	"party":              FieldParty,
	"political_party":    FieldParty,
	"affiliation":        FieldParty,
	"caucus":             FieldParty,
	"constituency":       FieldConstituency,
	"riding":             FieldConstituency,
	"electoral_district": FieldConstituency,
	"district":           FieldConstituency,
	"ward":               FieldConstituency,
	"phone":              FieldPhone,
	"telephone":          FieldPhone,
	"email":              FieldEmail,
	"e_mail":             FieldEmail,
	"website":            FieldWebsite,
	"url":                FieldWebsite,
	"photo":              FieldImageURL,
	"photo_url":          FieldImageURL,
	"image_url":          FieldImageURL,
	"id":                 FieldSourceID,
	"source_id":          FieldSourceID,
	"person_id":          FieldSourceID,
	"bill":               FieldBillNumber,
	"bill_number":        FieldBillNumber,
	"bill_no":            FieldBillNumber,
	"number":             FieldBillNumber,
	"title":              FieldTitle,
	"long_title":         FieldTitle,
	"short_title":        FieldTitle,
	"status":             FieldStatus,
	"stage":              FieldStatus,
	"current_status":     FieldStatus,
	"sponsor":            FieldSponsor,
	"sponsor_name":       FieldSponsor,
	"summary":            FieldSummary,
	"description":        FieldSummary,
	"date":               FieldDate,
	"vote_date":          FieldDate,
	"sitting_date":       FieldDate,
	"election_date":      FieldDate,
	"result":             FieldResult,
	"decision":           FieldResult,
	"yeas":               FieldYes,
	"yes":                FieldYes,
	"yes_count":          FieldYes,
	"nays":               FieldNo,
	"no":                 FieldNo,
	"no_count":           FieldNo,
	"abstain":            FieldAbstain,
	"abstentions":        FieldAbstain,
	"paired":             FieldAbstain,
	"abstain_count":      FieldAbstain,
	"division":           FieldDivision,
	"division_number":    FieldDivision,
	"division_no":        FieldDivision,
	"vote_number":        FieldDivision,
	"vote_no":            FieldDivision,
	"type":               FieldType,
	"committee_type":     FieldType,
	"election_type":      FieldType,
	"chair":              FieldChair,
	"members":            FieldMembers,
	"speaker":            FieldSpeaker,
	"speaker_name":       FieldSpeaker,
	"content":            FieldContent,
	"text":               FieldContent,
	"statement":          FieldContent,
	"context":            FieldContext,
	"topic":              FieldContext,
	"subject":            FieldContext,
}

var headerSeparators = regexp.MustCompile(`[^a-z0-9]+`)

// canonicalHeader maps a raw header cell to its canonical field name, or
// returns the normalized raw value when no alias exists.
func canonicalHeader(raw string) string {
	key := strings.Trim(headerSeparators.ReplaceAllString(strings.ToLower(strings.TrimSpace(raw)), "_"), "_")
	if canonical, ok := headerAliases[key]; ok {
		return canonical
	}
	return key
}

// canonicalHeaders resolves every header cell. When two columns map to the
// same canonical name only the first keeps it.
func canonicalHeaders(raw []string) []string {
	seen := make(map[string]bool, len(raw))
	out := make([]string, len(raw))
	for i, h := range raw {
		name := canonicalHeader(h)
		if name == "" || seen[name] {
			name = "column_" + strconv.Itoa(i)
		}
		seen[name] = true
		out[i] = name
	}
	return out
}

var memberSeparators = regexp.MustCompile(`\s*[;|]\s*`)

var utf8BOM = []byte("\xef\xbb\xbf")

// decodeCSV returns the rows decoded before any read or decode error along
// with that error.
func decodeCSV(r io.Reader) ([]Fields, error) {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}
	reader := csv.NewReader(br)
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	dec, err := csvutil.NewDecoder(&fixedWidthReader{r: reader, width: len(header)}, canonicalHeaders(header)...)
	if err != nil {
		return nil, fmt.Errorf("create csv decoder: %w", err)
	}

	var out []Fields
	for {
		var row csvRow
		if err := dec.Decode(&row); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return out, fmt.Errorf("decode csv row: %w", err)
		}
		out = append(out, row.fields())
	}
	return out, nil
}

// fixedWidthReader pads or truncates ragged rows to the header width so a
// single malformed line does not abort the document.
type fixedWidthReader struct {
	r     *csv.Reader
	width int
}

func (f *fixedWidthReader) Read() ([]string, error) {
	record, err := f.r.Read()
	if err != nil {
		return nil, err
	}
	if len(record) > f.width {
		return record[:f.width], nil
	}
	for len(record) < f.width {
		record = append(record, "")
	}
	return record, nil
}

func (r csvRow) fields() Fields {
	f := Fields{
		Single: make(map[string]string),
		Multi:  make(map[string][]string),
	}
	set := func(name, value string) {
		if v := collapse(value); v != "" {
			f.Single[name] = v
		}
	}
	set(FieldName, r.Name)
	set(FieldRole, r.Role)
	set(FieldParty, r.Party)
	set(FieldConstituency, r.Constituency)
	set(FieldPhone, r.Phone)
	set(FieldEmail, r.Email)
	set(FieldWebsite, r.Website)
	set(FieldImageURL, r.ImageURL)
	set(FieldSourceID, r.SourceID)
	set(FieldBillNumber, r.BillNumber)
	set(FieldTitle, r.Title)
	set(FieldStatus, r.Status)
	set(FieldSponsor, r.Sponsor)
	set(FieldSummary, r.Summary)
	set(FieldDate, r.Date)
	set(FieldResult, r.Result)
	set(FieldYes, r.Yes)
	set(FieldNo, r.No)
	set(FieldAbstain, r.Abstain)
	set(FieldDivision, r.Division)
	set(FieldType, r.Type)
	set(FieldChair, r.Chair)
	set(FieldSpeaker, r.Speaker)
	set(FieldContext, r.Context)
	// Transcript exports often label the speaker column "name".
	if f.Single[FieldSpeaker] == "" && f.Single[FieldName] != "" {
		f.Single[FieldSpeaker] = f.Single[FieldName]
	}
	if content := collapse(r.Content); content != "" {
		f.Multi[FieldContent] = []string{content}
	}
	for _, m := range memberSeparators.Split(r.Members, -1) {
		if m = collapse(m); m != "" {
			f.Multi[FieldMembers] = append(f.Multi[FieldMembers], m)
		}
	}
	return f
}
