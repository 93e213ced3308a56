// Package pipeline walks the source registry and drives each source through
// fetch, archive, extract, normalize and upsert, folding everything that
// happens into a RunReport.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/govdata-ingest/internal/archive"
	"github.com/JakeFAU/govdata-ingest/internal/ingest"
	"github.com/JakeFAU/govdata-ingest/internal/logging"
	"github.com/JakeFAU/govdata-ingest/internal/metrics"
)

const tracerName = "github.com/JakeFAU/govdata-ingest/internal/pipeline"

// SourceLister returns the ordered sources matching a filter.
type SourceLister interface {
	ListSources(filter ingest.Filter) ([]ingest.SourceDescriptor, error)
}

// Config controls Pipeline behavior.
type Config struct {
	// ExtractConcurrency bounds how many fetched documents of one source are
	// extracted at once. Values below one mean one.
	ExtractConcurrency int
}

// Dependencies are the collaborators a Pipeline drives. Runs, Sink and
// Archiver are optional.
type Dependencies struct {
	Sources    SourceLister
	Fetcher    ingest.Fetcher
	Extractor  ingest.Extractor
	Normalizer ingest.Normalizer
	Store      ingest.EntityStore
	Runs       ingest.RunStore
	Sink       ingest.ReportSink
	Archiver   *archive.Archiver
	Pauser     ingest.Pauser
	Clock      ingest.Clock
	IDs        ingest.IDGenerator
}

// Pipeline executes ingestion runs.
type Pipeline struct {
	deps   Dependencies
	cfg    Config
	tracer trace.Tracer
	logger *zap.Logger
}

// New validates deps and constructs a Pipeline.
func New(deps Dependencies, cfg Config, logger *zap.Logger) (*Pipeline, error) {
	switch {
	case deps.Sources == nil:
		return nil, fmt.Errorf("source registry is required")
	case deps.Fetcher == nil:
		return nil, fmt.Errorf("fetcher is required")
	case deps.Extractor == nil:
		return nil, fmt.Errorf("extractor is required")
	case deps.Normalizer == nil:
		return nil, fmt.Errorf("normalizer is required")
	case deps.Store == nil:
		return nil, fmt.Errorf("entity store is required")
	case deps.Pauser == nil:
		return nil, fmt.Errorf("pauser is required")
	case deps.Clock == nil:
		return nil, fmt.Errorf("clock is required")
	case deps.IDs == nil:
		return nil, fmt.Errorf("id generator is required")
	}
	if cfg.ExtractConcurrency < 1 {
		cfg.ExtractConcurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		deps:   deps,
		cfg:    cfg,
		tracer: otel.Tracer(tracerName),
		logger: logger.Named("pipeline"),
	}, nil
}

// RunIngestion allocates a run ID and executes one run. See Run.
func (p *Pipeline) RunIngestion(ctx context.Context, filter ingest.Filter) (ingest.RunReport, error) {
	runID, err := p.deps.IDs.NewID()
	if err != nil {
		return ingest.RunReport{}, fmt.Errorf("generate run id: %w", err)
	}
	return p.Run(ctx, runID, filter)
}

// Run executes one ingestion run under runID. The only errors returned are
// configuration errors detected before any network activity; every other
// failure is recorded in the report. Cancelling ctx stops the run between
// sources and marks the report partial.
func (p *Pipeline) Run(ctx context.Context, runID string, filter ingest.Filter) (ingest.RunReport, error) {
	report := ingest.NewRunReport(runID)

	plan, err := p.plan(filter)
	if err != nil {
		return report, err
	}

	ctx, span := p.tracer.Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.String("run_id", runID),
		attribute.String("filter.tier", filter.Tier),
		attribute.String("filter.data_type", filter.DataType),
		attribute.Int("sources", len(plan)),
	))
	defer span.End()

	metrics.IncActiveRuns()
	defer metrics.DecActiveRuns()

	logger := p.logger.With(zap.String("run_id", runID))
	report.State = ingest.RunRunning
	report.StartedAt = p.deps.Clock.Now()
	p.save(ctx, logger, report)
	logger.Info("run started", zap.Int("sources", len(plan)))

	for i, step := range plan {
		if ctx.Err() != nil {
			report.Partial = true
			logger.Warn("run cancelled between sources", zap.Int("remaining", len(plan)-i))
			break
		}
		// The source finishes on a detached context so a cancellation never
		// interrupts a fetch mid-retry or an upsert mid-transaction.
		sr := p.runSource(context.WithoutCancel(ctx), runID, step, &report)
		report.Sources = append(report.Sources, sr)
		p.save(ctx, logger, report)

		if i == len(plan)-1 {
			break
		}
		if err := p.deps.Pauser.Pause(ctx, step.source.PolitenessInterval); err != nil {
			report.Partial = true
			logger.Warn("run cancelled during politeness pause", zap.String("source", step.source.Name))
			break
		}
	}

	report.EndedAt = p.deps.Clock.Now()
	report.State = finalState(report)
	metrics.ObserveRun(string(report.State))
	if report.State == ingest.RunCompletedWithErrors {
		span.SetStatus(codes.Error, fmt.Sprintf("%d errors", len(report.Errors)))
	}
	span.SetAttributes(attribute.Bool("partial", report.Partial))

	finishCtx := context.WithoutCancel(ctx)
	p.save(finishCtx, logger, report)
	if p.deps.Sink != nil {
		if err := p.deps.Sink.Emit(finishCtx, report.Clone()); err != nil {
			logger.Error("emit run report failed", zap.Error(err))
		}
	}
	return report, nil
}

// step is one source plus the data types this run visits for it.
type step struct {
	source    ingest.SourceDescriptor
	dataTypes []ingest.DataType
}

// plan resolves the filter and every endpoint address up front so a bad
// registry entry fails the call before anything is fetched.
func (p *Pipeline) plan(filter ingest.Filter) ([]step, error) {
	sources, err := p.deps.Sources.ListSources(filter)
	if err != nil {
		return nil, err
	}
	var only ingest.DataType
	if strings.TrimSpace(filter.DataType) != "" {
		if only, err = ingest.ParseDataType(filter.DataType); err != nil {
			return nil, err
		}
	}
	plan := make([]step, 0, len(sources))
	for _, src := range sources {
		s := step{source: src}
		for _, dt := range src.DataTypes {
			if only != "" && dt != only {
				continue
			}
			if _, err := src.EndpointURL(dt); err != nil {
				return nil, err
			}
			s.dataTypes = append(s.dataTypes, dt)
		}
		plan = append(plan, s)
	}
	return plan, nil
}

// fetched pairs a data type report with the document retrieved for it.
type fetched struct {
	report  ingest.DataTypeReport
	doc     ingest.Document
	ok      bool
	records ingest.ExtractResult
}

func (p *Pipeline) runSource(ctx context.Context, runID string, s step, report *ingest.RunReport) ingest.SourceReport {
	src := s.source
	start := p.deps.Clock.Now()
	logger := logging.ForSource(p.logger, runID, src.Name).With(zap.String("tier", string(src.Tier)))

	ctx, span := p.tracer.Start(ctx, "pipeline.source", trace.WithAttributes(
		attribute.String("source", src.Name),
		attribute.String("tier", string(src.Tier)),
	))
	defer span.End()

	items := make([]fetched, len(s.dataTypes))
	for i, dt := range s.dataTypes {
		items[i] = p.fetch(ctx, logger, runID, src, dt, report)
	}

	var g errgroup.Group
	g.SetLimit(p.cfg.ExtractConcurrency)
	for i := range items {
		if !items[i].ok {
			continue
		}
		item := &items[i]
		g.Go(func() error {
			res := p.deps.Extractor.Extract(item.doc, item.doc.DataType.Kind())
			kept := res.Records[:0]
			for _, rec := range res.Records {
				// Cleanup can empty a key field, e.g. "(Vacant)" or a lone symbol.
				rec = p.deps.Normalizer.Normalize(rec, src)
				if rec == nil || !rec.HasNaturalKey() {
					res.Rejected++
					continue
				}
				kept = append(kept, rec)
			}
			res.Records = kept
			item.records = res
			return nil
		})
	}
	_ = g.Wait()

	fetchedCount, failedWrites := 0, 0
	sr := ingest.SourceReport{
		Name:      src.Name,
		Tier:      src.Tier,
		StartedAt: start,
		DataTypes: make([]ingest.DataTypeReport, 0, len(items)),
	}
	for i := range items {
		item := &items[i]
		if item.ok {
			fetchedCount++
			failedWrites += p.upsert(ctx, logger, src, item, report)
		}
		sr.DataTypes = append(sr.DataTypes, item.report)
	}

	switch {
	case len(items) > 0 && fetchedCount == 0:
		sr.Outcome = ingest.SourceFailed
	case fetchedCount < len(items) || failedWrites > 0:
		sr.Outcome = ingest.SourcePartial
	default:
		sr.Outcome = ingest.SourceSuccess
	}
	sr.Duration = p.deps.Clock.Now().Sub(start)
	metrics.ObserveSource(string(src.Tier), string(sr.Outcome), sr.Duration)
	span.SetAttributes(attribute.String("outcome", string(sr.Outcome)))
	if sr.Outcome == ingest.SourceFailed {
		span.SetStatus(codes.Error, "no data type fetched")
	}
	logger.Info("source finished",
		zap.String("outcome", string(sr.Outcome)),
		zap.Int("fetched", fetchedCount),
		zap.Int("data_types", len(items)),
		zap.Duration("duration", sr.Duration),
	)
	return sr
}

func (p *Pipeline) fetch(ctx context.Context, logger *zap.Logger, runID string, src ingest.SourceDescriptor, dt ingest.DataType, report *ingest.RunReport) fetched {
	item := fetched{report: ingest.DataTypeReport{DataType: dt}}
	item.report.URL, _ = src.EndpointURL(dt)

	doc, err := p.deps.Fetcher.Fetch(ctx, src, dt)
	if err != nil {
		var fetchErr *ingest.FetchError
		if errors.As(err, &fetchErr) {
			item.report.Attempts = fetchErr.Attempts
		}
		report.Errors = append(report.Errors, ingest.NewErrorEntry(src.Name, dt, err, p.deps.Clock.Now()))
		logger.Warn("fetch failed, skipping data type", zap.String("data_type", string(dt)), zap.Error(err))
		return item
	}
	item.ok = true
	item.doc = doc
	item.report.Fetched = true
	item.report.Attempts = doc.Attempts
	if doc.URL != "" {
		item.report.URL = doc.URL
	}

	if p.deps.Archiver != nil {
		uri, err := p.deps.Archiver.Store(ctx, runID, doc)
		if err != nil {
			logger.Warn("archive document failed", zap.String("data_type", string(dt)), zap.Error(err))
		} else {
			item.report.ArchiveKey = uri
		}
	}
	return item
}

// upsert writes the records of one data type in extraction order and returns
// the number of persistence failures.
func (p *Pipeline) upsert(ctx context.Context, logger *zap.Logger, src ingest.SourceDescriptor, item *fetched, report *ingest.RunReport) int {
	kind := item.doc.DataType.Kind()
	counts := ingest.Counts{
		Extracted: len(item.records.Records),
		Rejected:  item.records.Rejected,
	}
	for _, rec := range item.records.Records {
		outcome, err := p.deps.Store.Upsert(ctx, rec)
		if err == nil {
			counts.Record(outcome)
			continue
		}
		if errors.Is(err, ingest.ErrNaturalKeyMissing) {
			counts.Extracted--
			counts.Rejected++
			continue
		}
		report.Errors = append(report.Errors, ingest.NewErrorEntry(src.Name, item.doc.DataType, err, p.deps.Clock.Now()))
		if errors.Is(err, ingest.ErrSpeakerUnresolved) {
			counts.Rejected++
			logger.Info("statement speaker unresolved", zap.String("key", rec.KeyString()))
			continue
		}
		counts.Failed++
		logger.Error("upsert failed", zap.String("kind", string(kind)), zap.String("key", rec.KeyString()), zap.Error(err))
	}

	item.report.Counts = counts
	report.AddCounts(kind, counts)
	observeCounts(kind, counts)
	logger.Debug("data type persisted",
		zap.String("data_type", string(item.doc.DataType)),
		zap.Int("extracted", counts.Extracted),
		zap.Int("inserted", counts.Inserted),
		zap.Int("updated", counts.Updated),
		zap.Int("rejected", counts.Rejected),
	)
	return counts.Failed
}

func (p *Pipeline) save(ctx context.Context, logger *zap.Logger, report ingest.RunReport) {
	if p.deps.Runs == nil {
		return
	}
	if err := p.deps.Runs.SaveRun(ctx, report.Clone()); err != nil {
		logger.Error("save run report failed", zap.Error(err))
	}
}

func finalState(report ingest.RunReport) ingest.RunState {
	if len(report.Errors) > 0 {
		return ingest.RunCompletedWithErrors
	}
	for _, s := range report.Sources {
		if s.Outcome != ingest.SourceSuccess {
			return ingest.RunCompletedWithErrors
		}
	}
	return ingest.RunCompleted
}

func observeCounts(kind ingest.EntityKind, c ingest.Counts) {
	k := string(kind)
	metrics.ObserveRecords(k, "extracted", c.Extracted)
	metrics.ObserveRecords(k, string(ingest.OutcomeInserted), c.Inserted)
	metrics.ObserveRecords(k, string(ingest.OutcomeUpdated), c.Updated)
	metrics.ObserveRecords(k, string(ingest.OutcomeUnchanged), c.Unchanged)
	metrics.ObserveRecords(k, "rejected", c.Rejected)
	metrics.ObserveRecords(k, "failed", c.Failed)
}
