// Package dispatcher accepts run requests and executes them one at a time.
package dispatcher

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/govdata-ingest/internal/ingest"
)

// Runner executes one ingestion run.
type Runner interface {
	Run(ctx context.Context, runID string, filter ingest.Filter) (ingest.RunReport, error)
}

// SourceLister validates filters at submission time.
type SourceLister interface {
	ListSources(filter ingest.Filter) ([]ingest.SourceDescriptor, error)
}

// Dispatcher feeds queued run requests to a single runner so runs never
// overlap.
type Dispatcher struct {
	queue   ingest.Queue
	runner  Runner
	sources SourceLister
	runs    ingest.RunStore
	ids     ingest.IDGenerator
	clock   ingest.Clock
	logger  *zap.Logger
}

// New creates a Dispatcher.
func New(
	queue ingest.Queue,
	runner Runner,
	sources SourceLister,
	runs ingest.RunStore,
	ids ingest.IDGenerator,
	clock ingest.Clock,
	logger *zap.Logger,
) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		queue:   queue,
		runner:  runner,
		sources: sources,
		runs:    runs,
		ids:     ids,
		clock:   clock,
		logger:  logger.Named("dispatcher"),
	}
}

// Submit validates filter, records a not_started report and queues the run.
// It returns the run ID the caller can poll.
func (d *Dispatcher) Submit(ctx context.Context, filter ingest.Filter) (string, error) {
	if _, err := d.sources.ListSources(filter); err != nil {
		return "", err
	}
	runID, err := d.ids.NewID()
	if err != nil {
		return "", fmt.Errorf("generate run id: %w", err)
	}
	if err := d.runs.SaveRun(ctx, ingest.NewRunReport(runID)); err != nil {
		return "", fmt.Errorf("record queued run: %w", err)
	}
	if err := d.Enqueue(ctx, ingest.QueueItem{RunID: runID, Filter: filter, Submitted: d.clock.Now().Unix()}); err != nil {
		return "", err
	}
	d.logger.Info("run queued", zap.String("run_id", runID), zap.String("tier", filter.Tier), zap.String("data_type", filter.DataType))
	return runID, nil
}

// Enqueue proxies to the underlying queue.
func (d *Dispatcher) Enqueue(ctx context.Context, item ingest.QueueItem) error {
	if err := d.queue.Enqueue(ctx, item); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}

// Run blocks, executing queued runs until the context finishes or the queue
// is closed. A run in progress when ctx is cancelled stops at the next
// source boundary.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		item, err := d.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			d.logger.Error("queue dequeue failed", zap.Error(err))
			if errors.Is(err, ingest.ErrQueueClosed) {
				return
			}
			continue
		}
		d.logger.Debug("dequeued run", zap.String("run_id", item.RunID))
		d.execute(ctx, item)
	}
}

func (d *Dispatcher) execute(ctx context.Context, item ingest.QueueItem) {
	report, err := d.runner.Run(ctx, item.RunID, item.Filter)
	if err == nil {
		return
	}
	// The registry changed between submission and execution; close the run
	// out so pollers do not wait forever.
	d.logger.Error("run rejected", zap.String("run_id", item.RunID), zap.Error(err))
	now := d.clock.Now()
	report.RunID = item.RunID
	report.State = ingest.RunCompletedWithErrors
	report.StartedAt, report.EndedAt = now, now
	report.Errors = append(report.Errors, ingest.NewErrorEntry("", "", err, now))
	if err := d.runs.SaveRun(context.WithoutCancel(ctx), report); err != nil {
		d.logger.Error("save rejected run failed", zap.String("run_id", item.RunID), zap.Error(err))
	}
}
