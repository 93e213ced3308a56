// Package ingest defines the core types shared across the ingestion pipeline.
package ingest

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Tier is the level of government a source belongs to.
type Tier string

// Supported government tiers.
const (
	TierFederal    Tier = "federal"
	TierProvincial Tier = "provincial"
	TierMunicipal  Tier = "municipal"
)

// Tiers lists every tier in a fixed order.
var Tiers = []Tier{TierFederal, TierProvincial, TierMunicipal}

// ParseTier converts a config string into a Tier.
func ParseTier(raw string) (Tier, error) {
	t := Tier(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range Tiers {
		if t == known {
			return t, nil
		}
	}
	return "", &ConfigurationError{Field: "tier", Value: raw}
}

// Title returns the capitalised tier label used in persisted rows.
func (t Tier) Title() string {
	switch t {
	case TierFederal:
		return "Federal"
	case TierProvincial:
		return "Provincial"
	case TierMunicipal:
		return "Municipal"
	default:
		return ""
	}
}

// DataType tags the kind of data an endpoint yields.
type DataType string

// Supported data types.
const (
	DataPoliticians DataType = "politicians"
	DataBills       DataType = "bills"
	DataVotes       DataType = "votes"
	DataCommittees  DataType = "committees"
	DataElections   DataType = "elections"
	DataStatements  DataType = "statements"
)

// DataTypes lists every data type in a fixed order.
var DataTypes = []DataType{
	DataPoliticians,
	DataBills,
	DataVotes,
	DataCommittees,
	DataElections,
	DataStatements,
}

var dataTypeAliases = map[string]DataType{
	"members":     DataPoliticians,
	"officials":   DataPoliticians,
	"legislation": DataBills,
	"hansard":     DataStatements,
}

// ParseDataType converts a config string into a DataType, honoring aliases.
func ParseDataType(raw string) (DataType, error) {
	key := strings.ToLower(strings.TrimSpace(raw))
	for _, known := range DataTypes {
		if DataType(key) == known {
			return known, nil
		}
	}
	if alias, ok := dataTypeAliases[key]; ok {
		return alias, nil
	}
	return "", &ConfigurationError{Field: "data_type", Value: raw}
}

// Kind maps a data type to the entity kind it yields.
func (d DataType) Kind() EntityKind {
	switch d {
	case DataPoliticians:
		return KindPolitician
	case DataBills:
		return KindBill
	case DataVotes:
		return KindVote
	case DataCommittees:
		return KindCommittee
	case DataElections:
		return KindElection
	case DataStatements:
		return KindStatement
	default:
		return ""
	}
}

// Format describes how an endpoint body is encoded.
type Format string

// Supported endpoint formats.
const (
	FormatHTML Format = "html"
	FormatCSV  Format = "csv"
)

// Endpoint is a relative path on a source plus its body format.
type Endpoint struct {
	Path   string `json:"path"`
	Format Format `json:"format"`
}

// SourceDescriptor identifies one government data provider.
type SourceDescriptor struct {
	Name               string                `json:"name"`
	RootAddress        string                `json:"root_address"`
	Endpoints          map[DataType]Endpoint `json:"endpoints"`
	Tier               Tier                  `json:"tier"`
	DataTypes          []DataType            `json:"data_types"`
	PolitenessInterval time.Duration         `json:"politeness_interval"`
	// RefreshInterval is advisory scheduling metadata for the external trigger.
	RefreshInterval time.Duration `json:"refresh_interval"`
	// Render requests the headless fetch engine for JavaScript-built pages.
	Render bool `json:"render"`
}

// Declares reports whether the source yields the data type.
func (s SourceDescriptor) Declares(dt DataType) bool {
	for _, d := range s.DataTypes {
		if d == dt {
			return true
		}
	}
	return false
}

// Host returns the lowercase hostname of the root address.
func (s SourceDescriptor) Host() string {
	u, err := url.Parse(s.RootAddress)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// EndpointURL resolves the absolute address for a data type.
func (s SourceDescriptor) EndpointURL(dt DataType) (string, error) {
	ep, ok := s.Endpoints[dt]
	if !ok {
		return "", &ConfigurationError{Field: "endpoints." + string(dt), Value: s.Name}
	}
	base, err := url.Parse(s.RootAddress)
	if err != nil {
		return "", fmt.Errorf("parse root address %q: %w", s.RootAddress, err)
	}
	ref, err := url.Parse(ep.Path)
	if err != nil {
		return "", fmt.Errorf("parse endpoint path %q: %w", ep.Path, err)
	}
	return base.ResolveReference(ref).String(), nil
}

// FormatFor returns the declared body format for a data type, defaulting to HTML.
func (s SourceDescriptor) FormatFor(dt DataType) Format {
	if ep, ok := s.Endpoints[dt]; ok && ep.Format != "" {
		return ep.Format
	}
	return FormatHTML
}

// Document is the raw body retrieved for one (source, data type) pair.
type Document struct {
	Source      string
	DataType    DataType
	URL         string
	StatusCode  int
	ContentType string
	Format      Format
	Body        []byte
	Attempts    int
	Duration    time.Duration
	FetchedAt   time.Time
	Rendered    bool
}
