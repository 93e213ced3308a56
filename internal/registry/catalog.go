package registry

import (
	"time"

	"github.com/JakeFAU/govdata-ingest/internal/ingest"
)

func html(path string) ingest.Endpoint { return ingest.Endpoint{Path: path, Format: ingest.FormatHTML} }

// defaultSources is the built-in Canadian catalog, federal first.
var defaultSources = []ingest.SourceDescriptor{
	{
		Name:        "House of Commons",
		RootAddress: "https://www.ourcommons.ca",
		Tier:        ingest.TierFederal,
		DataTypes: []ingest.DataType{
			ingest.DataPoliticians, ingest.DataVotes, ingest.DataCommittees, ingest.DataStatements,
		},
		Endpoints: map[ingest.DataType]ingest.Endpoint{
			ingest.DataPoliticians: html("/members/en/search"),
			ingest.DataVotes:       html("/members/en/votes"),
			ingest.DataCommittees:  html("/committees/en/list"),
			ingest.DataStatements:  html("/documentviewer/en/house/latest/hansard"),
		},
		PolitenessInterval: 2 * time.Second,
		RefreshInterval:    24 * time.Hour,
	},
	{
		Name:        "Senate of Canada",
		RootAddress: "https://sencanada.ca",
		Tier:        ingest.TierFederal,
		DataTypes:   []ingest.DataType{ingest.DataPoliticians, ingest.DataCommittees},
		Endpoints: map[ingest.DataType]ingest.Endpoint{
			ingest.DataPoliticians: html("/en/senators/"),
			ingest.DataCommittees:  html("/en/committees/"),
		},
		PolitenessInterval: 2 * time.Second,
		RefreshInterval:    72 * time.Hour,
	},
	{
		Name:        "LEGISinfo",
		RootAddress: "https://www.parl.ca",
		Tier:        ingest.TierFederal,
		DataTypes:   []ingest.DataType{ingest.DataBills},
		Endpoints: map[ingest.DataType]ingest.Endpoint{
			ingest.DataBills: html("/legisinfo/en/bills"),
		},
		PolitenessInterval: 2 * time.Second,
		RefreshInterval:    6 * time.Hour,
	},
	{
		Name:        "Elections Canada",
		RootAddress: "https://www.elections.ca",
		Tier:        ingest.TierFederal,
		DataTypes:   []ingest.DataType{ingest.DataElections},
		Endpoints: map[ingest.DataType]ingest.Endpoint{
			ingest.DataElections: html("/content.aspx?section=ele&dir=pas&document=index&lang=e"),
		},
		PolitenessInterval: 2 * time.Second,
		RefreshInterval:    168 * time.Hour,
	},
	{
		Name:        "Legislative Assembly of Ontario",
		RootAddress: "https://www.ola.org",
		Tier:        ingest.TierProvincial,
		DataTypes:   []ingest.DataType{ingest.DataPoliticians, ingest.DataBills, ingest.DataCommittees},
		Endpoints: map[ingest.DataType]ingest.Endpoint{
			ingest.DataPoliticians: html("/en/members/current"),
			ingest.DataBills:       html("/en/legislative-business/bills/current"),
			ingest.DataCommittees:  html("/en/legislative-business/committees"),
		},
		PolitenessInterval: 3 * time.Second,
		RefreshInterval:    24 * time.Hour,
	},
	{
		Name:        "Assemblée nationale du Québec",
		RootAddress: "https://www.assnat.qc.ca",
		Tier:        ingest.TierProvincial,
		DataTypes:   []ingest.DataType{ingest.DataPoliticians, ingest.DataBills},
		Endpoints: map[ingest.DataType]ingest.Endpoint{
			ingest.DataPoliticians: html("/en/deputes/index.html"),
			ingest.DataBills:       html("/en/travaux-parlementaires/projets-loi/projets-loi-43-1.html"),
		},
		PolitenessInterval: 3 * time.Second,
		RefreshInterval:    24 * time.Hour,
	},
	{
		Name:        "Legislative Assembly of British Columbia",
		RootAddress: "https://www.leg.bc.ca",
		Tier:        ingest.TierProvincial,
		DataTypes:   []ingest.DataType{ingest.DataPoliticians, ingest.DataBills},
		Endpoints: map[ingest.DataType]ingest.Endpoint{
			ingest.DataPoliticians: html("/members"),
			ingest.DataBills:       html("/parliamentary-business/overview/43rd-parliament/1st-session/bills/progress-of-bills"),
		},
		PolitenessInterval: 3 * time.Second,
		RefreshInterval:    24 * time.Hour,
		Render:             true,
	},
	{
		Name:        "Legislative Assembly of Alberta",
		RootAddress: "https://www.assembly.ab.ca",
		Tier:        ingest.TierProvincial,
		DataTypes:   []ingest.DataType{ingest.DataPoliticians},
		Endpoints: map[ingest.DataType]ingest.Endpoint{
			ingest.DataPoliticians: html("/members/members-of-the-legislative-assembly"),
		},
		PolitenessInterval: 3 * time.Second,
		RefreshInterval:    48 * time.Hour,
	},
	{
		Name:        "City of Toronto",
		RootAddress: "https://www.toronto.ca",
		Tier:        ingest.TierMunicipal,
		DataTypes:   []ingest.DataType{ingest.DataPoliticians, ingest.DataCommittees},
		Endpoints: map[ingest.DataType]ingest.Endpoint{
			ingest.DataPoliticians: html("/city-government/council/members-of-council/"),
			ingest.DataCommittees:  html("/city-government/council/council-committee-meetings/"),
		},
		PolitenessInterval: 3 * time.Second,
		RefreshInterval:    48 * time.Hour,
	},
	{
		Name:        "Ville de Montréal",
		RootAddress: "https://montreal.ca",
		Tier:        ingest.TierMunicipal,
		DataTypes:   []ingest.DataType{ingest.DataPoliticians},
		Endpoints: map[ingest.DataType]ingest.Endpoint{
			ingest.DataPoliticians: html("/en/city-government/mayor-and-councillors"),
		},
		PolitenessInterval: 3 * time.Second,
		RefreshInterval:    72 * time.Hour,
		Render:             true,
	},
	{
		Name:        "City of Vancouver",
		RootAddress: "https://vancouver.ca",
		Tier:        ingest.TierMunicipal,
		DataTypes:   []ingest.DataType{ingest.DataPoliticians},
		Endpoints: map[ingest.DataType]ingest.Endpoint{
			ingest.DataPoliticians: html("/your-government/vancouver-city-council.aspx"),
		},
		PolitenessInterval: 3 * time.Second,
		RefreshInterval:    72 * time.Hour,
	},
	{
		Name:        "City of Calgary",
		RootAddress: "https://www.calgary.ca",
		Tier:        ingest.TierMunicipal,
		DataTypes:   []ingest.DataType{ingest.DataPoliticians},
		Endpoints: map[ingest.DataType]ingest.Endpoint{
			ingest.DataPoliticians: html("/council.html"),
		},
		PolitenessInterval: 3 * time.Second,
		RefreshInterval:    72 * time.Hour,
	},
	{
		Name:        "City of Ottawa",
		RootAddress: "https://ottawa.ca",
		Tier:        ingest.TierMunicipal,
		DataTypes:   []ingest.DataType{ingest.DataPoliticians},
		Endpoints: map[ingest.DataType]ingest.Endpoint{
			ingest.DataPoliticians: html("/en/city-hall/mayor-and-city-councillors"),
		},
		PolitenessInterval: 3 * time.Second,
		RefreshInterval:    72 * time.Hour,
	},
}

// Default returns a registry over the built-in catalog.
func Default() *Registry {
	reg, err := New(defaultSources...)
	if err != nil {
		panic("registry: invalid built-in catalog: " + err.Error())
	}
	return reg
}
