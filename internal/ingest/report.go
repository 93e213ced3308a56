package ingest

import (
	"errors"
	"time"
)

// RunState tracks the lifecycle of one ingestion run.
type RunState string

// Run lifecycle states.
const (
	RunNotStarted          RunState = "not_started"
	RunRunning             RunState = "running"
	RunCompleted           RunState = "completed"
	RunCompletedWithErrors RunState = "completed_with_errors"
)

// Terminal reports whether the run has finished.
func (s RunState) Terminal() bool {
	return s == RunCompleted || s == RunCompletedWithErrors
}

// SourceOutcome summarises how one source fared in a run.
type SourceOutcome string

// Source outcomes.
const (
	SourceSuccess SourceOutcome = "success"
	SourcePartial SourceOutcome = "partial"
	SourceFailed  SourceOutcome = "failed"
)

// Outcome is the result of upserting one record.
type Outcome string

// Upsert outcomes.
const (
	OutcomeInserted  Outcome = "inserted"
	OutcomeUpdated   Outcome = "updated"
	OutcomeUnchanged Outcome = "unchanged"
)

// Counts tallies records for one entity kind.
type Counts struct {
	Extracted int `json:"extracted"`
	Inserted  int `json:"inserted"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Rejected  int `json:"rejected"`
	Failed    int `json:"failed"`
}

// Add accumulates other into c.
func (c *Counts) Add(other Counts) {
	c.Extracted += other.Extracted
	c.Inserted += other.Inserted
	c.Updated += other.Updated
	c.Unchanged += other.Unchanged
	c.Rejected += other.Rejected
	c.Failed += other.Failed
}

// Record tallies one upsert outcome.
func (c *Counts) Record(o Outcome) {
	switch o {
	case OutcomeInserted:
		c.Inserted++
	case OutcomeUpdated:
		c.Updated++
	case OutcomeUnchanged:
		c.Unchanged++
	}
}

// DataTypeReport captures what happened to one endpoint of a source.
type DataTypeReport struct {
	DataType   DataType `json:"data_type"`
	URL        string   `json:"url,omitempty"`
	Fetched    bool     `json:"fetched"`
	Attempts   int      `json:"attempts"`
	ArchiveKey string   `json:"archive_key,omitempty"`
	Counts     Counts   `json:"counts"`
}

// SourceReport summarises one source's contribution to a run.
type SourceReport struct {
	Name      string           `json:"name"`
	Tier      Tier             `json:"tier"`
	Outcome   SourceOutcome    `json:"outcome"`
	StartedAt time.Time        `json:"started_at"`
	Duration  time.Duration    `json:"duration"`
	DataTypes []DataTypeReport `json:"data_types"`
}

// ErrorKind classifies an entry in the run error list.
type ErrorKind string

// Error kinds recorded in a RunReport.
const (
	ErrorFetch         ErrorKind = "fetch"
	ErrorPersistence   ErrorKind = "persistence"
	ErrorUnresolved    ErrorKind = "speaker_unresolved"
	ErrorConfiguration ErrorKind = "configuration"
)

// ErrorEntry is one non-fatal failure observed during a run.
type ErrorEntry struct {
	Source   string    `json:"source"`
	DataType DataType  `json:"data_type,omitempty"`
	Kind     ErrorKind `json:"kind"`
	Key      string    `json:"key,omitempty"`
	// FetchKind, StatusCode and Attempts are set for fetch failures.
	FetchKind  FetchErrorKind `json:"fetch_kind,omitempty"`
	StatusCode int            `json:"status_code,omitempty"`
	Attempts   int            `json:"attempts,omitempty"`
	Message    string         `json:"message"`
	At         time.Time      `json:"at"`
}

// NewErrorEntry classifies err into an ErrorEntry.
func NewErrorEntry(source string, dt DataType, err error, at time.Time) ErrorEntry {
	entry := ErrorEntry{Source: source, DataType: dt, Message: err.Error(), At: at}
	var fetchErr *FetchError
	var persistErr *PersistenceError
	switch {
	case errors.Is(err, ErrSpeakerUnresolved):
		entry.Kind = ErrorUnresolved
		if errors.As(err, &persistErr) {
			entry.Key = persistErr.Key
		}
	case errors.As(err, &fetchErr):
		entry.Kind = ErrorFetch
		entry.Key = fetchErr.URL
		entry.FetchKind = fetchErr.Kind
		entry.StatusCode = fetchErr.StatusCode
		entry.Attempts = fetchErr.Attempts
	case errors.As(err, &persistErr):
		entry.Kind = ErrorPersistence
		entry.Key = persistErr.Key
	case IsConfigurationError(err):
		entry.Kind = ErrorConfiguration
	default:
		entry.Kind = ErrorPersistence
	}
	return entry
}

// RunReport is the structured summary of one ingestion run.
type RunReport struct {
	RunID     string                `json:"run_id"`
	State     RunState              `json:"state"`
	Partial   bool                  `json:"partial"`
	StartedAt time.Time             `json:"started_at"`
	EndedAt   time.Time             `json:"ended_at"`
	Sources   []SourceReport        `json:"sources"`
	Totals    map[EntityKind]Counts `json:"totals"`
	Errors    []ErrorEntry          `json:"errors"`
}

// NewRunReport returns an empty report in the not_started state.
func NewRunReport(runID string) RunReport {
	return RunReport{
		RunID:   runID,
		State:   RunNotStarted,
		Sources: []SourceReport{},
		Totals:  map[EntityKind]Counts{},
		Errors:  []ErrorEntry{},
	}
}

// AddCounts folds counts for kind into the run totals.
func (r *RunReport) AddCounts(kind EntityKind, c Counts) {
	if r.Totals == nil {
		r.Totals = map[EntityKind]Counts{}
	}
	total := r.Totals[kind]
	total.Add(c)
	r.Totals[kind] = total
}

// Total sums the counts across every kind.
func (r RunReport) Total() Counts {
	var sum Counts
	for _, c := range r.Totals {
		sum.Add(c)
	}
	return sum
}

// Clone returns a deep copy safe to hand to other goroutines.
func (r RunReport) Clone() RunReport {
	out := r
	out.Sources = make([]SourceReport, len(r.Sources))
	for i, s := range r.Sources {
		s.DataTypes = append([]DataTypeReport(nil), s.DataTypes...)
		out.Sources[i] = s
	}
	out.Totals = make(map[EntityKind]Counts, len(r.Totals))
	for k, v := range r.Totals {
		out.Totals[k] = v
	}
	out.Errors = append([]ErrorEntry(nil), r.Errors...)
	return out
}
