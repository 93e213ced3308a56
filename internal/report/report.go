// Package report fans a finished RunReport out to its sinks: the log, a JSON
// status file in the blob store and a Pub/Sub notification.
package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/govdata-ingest/internal/ingest"
)

// LogSink writes one structured line per run.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink returns a sink that logs through logger.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger.Named("report")}
}

// Emit implements ingest.ReportSink.
func (s *LogSink) Emit(_ context.Context, r ingest.RunReport) error {
	total := r.Total()
	fields := []zap.Field{
		zap.String("run_id", r.RunID),
		zap.String("state", string(r.State)),
		zap.Bool("partial", r.Partial),
		zap.Int("sources", len(r.Sources)),
		zap.Int("extracted", total.Extracted),
		zap.Int("inserted", total.Inserted),
		zap.Int("updated", total.Updated),
		zap.Int("unchanged", total.Unchanged),
		zap.Int("rejected", total.Rejected),
		zap.Int("failed", total.Failed),
		zap.Int("errors", len(r.Errors)),
		zap.Duration("duration", r.EndedAt.Sub(r.StartedAt)),
	}
	if r.State == ingest.RunCompletedWithErrors || r.Partial {
		s.logger.Warn("ingestion run finished", fields...)
		return nil
	}
	s.logger.Info("ingestion run finished", fields...)
	return nil
}

// StatusFileSink writes the report as JSON to <prefix>/<run_id>.json and
// refreshes <prefix>/latest.json.
type StatusFileSink struct {
	blobs  ingest.BlobStore
	prefix string
}

// NewStatusFileSink returns a sink that writes through blobs.
func NewStatusFileSink(blobs ingest.BlobStore, prefix string) *StatusFileSink {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = "status"
	}
	return &StatusFileSink{blobs: blobs, prefix: prefix}
}

// Emit implements ingest.ReportSink.
func (s *StatusFileSink) Emit(ctx context.Context, r ingest.RunReport) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	for _, name := range []string{r.RunID + ".json", "latest.json"} {
		if _, err := s.blobs.PutObject(ctx, path.Join(s.prefix, name), "application/json", data); err != nil {
			return fmt.Errorf("write status file %s: %w", name, err)
		}
	}
	return nil
}

// Notification is the message body published when a run finishes. It carries
// the summary, not the full error list.
type Notification struct {
	RunID   string                              `json:"run_id"`
	State   ingest.RunState                     `json:"state"`
	Partial bool                                `json:"partial"`
	Totals  map[ingest.EntityKind]ingest.Counts `json:"totals"`
	Errors  int                                 `json:"errors"`
	Failed  []string                            `json:"failed_sources,omitempty"`
}

// Attributes exposes filterable message attributes.
func (n Notification) Attributes() map[string]string {
	return map[string]string{
		"run_id":  n.RunID,
		"state":   string(n.State),
		"partial": fmt.Sprint(n.Partial),
	}
}

// NewNotification summarises r.
func NewNotification(r ingest.RunReport) Notification {
	n := Notification{
		RunID:   r.RunID,
		State:   r.State,
		Partial: r.Partial,
		Totals:  r.Totals,
		Errors:  len(r.Errors),
	}
	for _, src := range r.Sources {
		if src.Outcome == ingest.SourceFailed {
			n.Failed = append(n.Failed, src.Name)
		}
	}
	return n
}

// PublishSink publishes a Notification per run.
type PublishSink struct {
	publisher ingest.Publisher
	topic     string
}

// NewPublishSink returns a sink that publishes to topic.
func NewPublishSink(publisher ingest.Publisher, topic string) *PublishSink {
	return &PublishSink{publisher: publisher, topic: topic}
}

// Emit implements ingest.ReportSink.
func (s *PublishSink) Emit(ctx context.Context, r ingest.RunReport) error {
	if _, err := s.publisher.Publish(ctx, s.topic, NewNotification(r)); err != nil {
		return fmt.Errorf("publish run %s: %w", r.RunID, err)
	}
	return nil
}

// Fanout emits to every sink. A failing sink is logged and does not stop the
// others; the joined error is returned.
type Fanout struct {
	sinks  []ingest.ReportSink
	logger *zap.Logger
}

// NewFanout builds a Fanout, skipping nil sinks.
func NewFanout(logger *zap.Logger, sinks ...ingest.ReportSink) *Fanout {
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &Fanout{logger: logger.Named("report")}
	for _, s := range sinks {
		if s != nil {
			f.sinks = append(f.sinks, s)
		}
	}
	return f
}

// Emit implements ingest.ReportSink.
func (f *Fanout) Emit(ctx context.Context, r ingest.RunReport) error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.Emit(ctx, r); err != nil {
			f.logger.Error("report sink failed",
				zap.String("run_id", r.RunID),
				zap.String("sink", fmt.Sprintf("%T", s)),
				zap.Error(err),
			)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
