// Package registry holds the static catalog of government data sources.
package registry

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/JakeFAU/govdata-ingest/internal/config"
	"github.com/JakeFAU/govdata-ingest/internal/ingest"
)

// Registry is an immutable, ordered catalog of sources.
type Registry struct {
	sources []ingest.SourceDescriptor
}

// New validates the descriptors and returns a registry preserving their order.
func New(sources ...ingest.SourceDescriptor) (*Registry, error) {
	seen := make(map[string]struct{}, len(sources))
	out := make([]ingest.SourceDescriptor, 0, len(sources))
	for _, src := range sources {
		if err := validate(src); err != nil {
			return nil, err
		}
		key := strings.ToLower(src.Name)
		if _, dup := seen[key]; dup {
			return nil, &ingest.ConfigurationError{Field: "sources.name", Value: src.Name, Err: fmt.Errorf("duplicate source name")}
		}
		seen[key] = struct{}{}
		out = append(out, clone(src))
	}
	return &Registry{sources: out}, nil
}

// FromConfig builds a registry from configured sources.
func FromConfig(cfgs []config.SourceConfig) (*Registry, error) {
	sources := make([]ingest.SourceDescriptor, 0, len(cfgs))
	for _, c := range cfgs {
		tier, err := ingest.ParseTier(c.Tier)
		if err != nil {
			return nil, fmt.Errorf("source %q: %w", c.Name, err)
		}
		src := ingest.SourceDescriptor{
			Name:               c.Name,
			RootAddress:        c.RootAddress,
			Tier:               tier,
			Endpoints:          make(map[ingest.DataType]ingest.Endpoint, len(c.Endpoints)),
			PolitenessInterval: c.PolitenessInterval,
			RefreshInterval:    c.RefreshInterval,
			Render:             c.Render,
		}
		for _, raw := range c.DataTypes {
			dt, err := ingest.ParseDataType(raw)
			if err != nil {
				return nil, fmt.Errorf("source %q: %w", c.Name, err)
			}
			src.DataTypes = append(src.DataTypes, dt)
		}
		for raw, ep := range c.Endpoints {
			dt, err := ingest.ParseDataType(raw)
			if err != nil {
				return nil, fmt.Errorf("source %q: %w", c.Name, err)
			}
			src.Endpoints[dt] = ingest.Endpoint{Path: ep.Path, Format: ingest.Format(strings.ToLower(ep.Format))}
		}
		sources = append(sources, src)
	}
	return New(sources...)
}

// ListSources returns the sources matching filter in declaration order.
// An unknown tier or data type is a configuration error.
func (r *Registry) ListSources(filter ingest.Filter) ([]ingest.SourceDescriptor, error) {
	var (
		tier     ingest.Tier
		dataType ingest.DataType
		err      error
	)
	if strings.TrimSpace(filter.Tier) != "" {
		if tier, err = ingest.ParseTier(filter.Tier); err != nil {
			return nil, err
		}
	}
	if strings.TrimSpace(filter.DataType) != "" {
		if dataType, err = ingest.ParseDataType(filter.DataType); err != nil {
			return nil, err
		}
	}
	out := make([]ingest.SourceDescriptor, 0, len(r.sources))
	for _, src := range r.sources {
		if tier != "" && src.Tier != tier {
			continue
		}
		if dataType != "" && !src.Declares(dataType) {
			continue
		}
		out = append(out, clone(src))
	}
	return out, nil
}

// Len reports the number of registered sources.
func (r *Registry) Len() int { return len(r.sources) }

func validate(src ingest.SourceDescriptor) error {
	if strings.TrimSpace(src.Name) == "" {
		return &ingest.ConfigurationError{Field: "sources.name", Value: src.Name}
	}
	u, err := url.Parse(src.RootAddress)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return &ingest.ConfigurationError{Field: "sources.root_address", Value: src.RootAddress, Err: err}
	}
	if _, err := ingest.ParseTier(string(src.Tier)); err != nil {
		return err
	}
	if len(src.DataTypes) == 0 {
		return &ingest.ConfigurationError{Field: "sources.data_types", Value: src.Name, Err: fmt.Errorf("no data types declared")}
	}
	if src.PolitenessInterval < 0 {
		return &ingest.ConfigurationError{Field: "sources.politeness_interval", Value: src.PolitenessInterval.String()}
	}
	for _, dt := range src.DataTypes {
		if _, err := ingest.ParseDataType(string(dt)); err != nil {
			return err
		}
		ep, ok := src.Endpoints[dt]
		if !ok || strings.TrimSpace(ep.Path) == "" {
			return &ingest.ConfigurationError{Field: "sources.endpoints." + string(dt), Value: src.Name, Err: fmt.Errorf("missing endpoint")}
		}
		switch ep.Format {
		case "", ingest.FormatHTML, ingest.FormatCSV:
		default:
			return &ingest.ConfigurationError{Field: "sources.endpoints." + string(dt) + ".format", Value: string(ep.Format)}
		}
	}
	return nil
}

func clone(src ingest.SourceDescriptor) ingest.SourceDescriptor {
	out := src
	out.DataTypes = append([]ingest.DataType(nil), src.DataTypes...)
	out.Endpoints = make(map[ingest.DataType]ingest.Endpoint, len(src.Endpoints))
	for k, v := range src.Endpoints {
		out.Endpoints[k] = v
	}
	return out
}
