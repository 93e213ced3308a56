// Package extract turns fetched documents into typed records using ordered
// selector-fallback chains for HTML and header aliasing for CSV.
package extract

import (
	"bytes"
	"io"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/JakeFAU/govdata-ingest/internal/ingest"
)

// Extractor applies per-kind schemas to documents. It is safe for concurrent use.
type Extractor struct {
	schemas map[ingest.EntityKind]Schema
	logger  *zap.Logger
}

// Option customizes an Extractor.
type Option func(*Extractor)

// WithSchema replaces the schema for one entity kind.
func WithSchema(s Schema) Option {
	return func(e *Extractor) {
		e.schemas[s.Kind] = s
	}
}

// WithLogger sets the logger used for document-level diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Extractor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New builds an Extractor with the default schemas.
func New(opts ...Option) *Extractor {
	e := &Extractor{
		schemas: DefaultSchemas(),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var _ ingest.Extractor = (*Extractor)(nil)

// Extract returns the records of one kind found in doc. It never fails: an
// unparseable document or an unmatched layout yields an empty result, and
// entities missing their natural key are counted as rejected.
func (e *Extractor) Extract(doc ingest.Document, kind ingest.EntityKind) ingest.ExtractResult {
	schema, ok := e.schemas[kind]
	if !ok || len(doc.Body) == 0 {
		return ingest.ExtractResult{}
	}

	var entities []Fields
	switch doc.Format {
	case ingest.FormatCSV:
		entities = e.csvEntities(doc, bytes.NewReader(doc.Body))
	default:
		root, err := html.Parse(bytes.NewReader(doc.Body))
		if err != nil {
			e.logger.Debug("html parse failed",
				zap.String("source", doc.Source),
				zap.String("url", doc.URL),
				zap.Error(err))
			return ingest.ExtractResult{}
		}
		entities = extractHTML(root, schema)
	}

	var result ingest.ExtractResult
	for _, fields := range entities {
		rec := schema.Build(fields)
		if !rec.HasNaturalKey() {
			result.Rejected++
			continue
		}
		result.Records = append(result.Records, rec)
	}
	e.logger.Debug("extracted",
		zap.String("source", doc.Source),
		zap.String("kind", string(kind)),
		zap.Int("records", len(result.Records)),
		zap.Int("rejected", result.Rejected))
	return result
}

// csvEntities keeps the rows decoded before a malformed line.
func (e *Extractor) csvEntities(doc ingest.Document, r io.Reader) []Fields {
	rows, err := decodeCSV(r)
	if err != nil {
		e.logger.Warn("csv decode stopped early",
			zap.String("source", doc.Source),
			zap.String("url", doc.URL),
			zap.Int("rows_kept", len(rows)),
			zap.Error(err))
	}
	return rows
}

func extractHTML(root *html.Node, schema Schema) []Fields {
	containers := Containers(root, schema.Containers)
	out := make([]Fields, 0, len(containers))
	for _, node := range containers {
		fields := Fields{
			Single: make(map[string]string, len(schema.Fields)),
			Multi:  make(map[string][]string, len(schema.Multi)),
		}
		for name, chain := range schema.Fields {
			if v := chain.First(node); v != "" {
				fields.Single[name] = v
			}
		}
		for name, chain := range schema.Multi {
			if vs := chain.All(node); len(vs) > 0 {
				fields.Multi[name] = vs
			}
		}
		out = append(out, fields)
	}
	return out
}
