package ingest

import (
	"context"
	"time"
)

// Fetcher retrieves the raw document for one endpoint of a source.
type Fetcher interface {
	Fetch(ctx context.Context, src SourceDescriptor, dataType DataType) (Document, error)
}

// Extractor turns a raw document into typed records.
type Extractor interface {
	Extract(doc Document, kind EntityKind) ExtractResult
}

// ExtractResult holds the records kept from a document plus the rejected count.
type ExtractResult struct {
	Records  []Record
	Rejected int
}

// Normalizer cleans and classifies a record using its source for context.
type Normalizer interface {
	Normalize(rec Record, src SourceDescriptor) Record
}

// EntityStore persists records idempotently by natural key.
type EntityStore interface {
	Upsert(ctx context.Context, rec Record) (Outcome, error)
}

// RunStore keeps run reports for the operator surface.
type RunStore interface {
	SaveRun(ctx context.Context, report RunReport) error
	GetRun(ctx context.Context, runID string) (RunReport, error)
	ListRuns(ctx context.Context, limit int) ([]RunReport, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Publisher pushes run notifications to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// ReportSink receives the final report of every run.
type ReportSink interface {
	Emit(ctx context.Context, report RunReport) error
}

// Pauser suspends the caller between sources.
type Pauser interface {
	Pause(ctx context.Context, d time.Duration) error
}

// Hasher computes digests for archive keys and statement identity.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}

// Filter narrows a run to a tier and/or data type. Empty fields match everything.
type Filter struct {
	Tier     string `json:"tier,omitempty"`
	DataType string `json:"data_type,omitempty"`
}

// QueueItem wraps a run request ready to execute.
type QueueItem struct {
	RunID     string
	Filter    Filter
	Submitted int64
}

// Queue provides enqueue/dequeue semantics for run requests.
type Queue interface {
	Enqueue(ctx context.Context, item QueueItem) error
	Dequeue(ctx context.Context) (QueueItem, error)
}
