package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/govdata-ingest/internal/archive"
	"github.com/JakeFAU/govdata-ingest/internal/extract"
	hashsha "github.com/JakeFAU/govdata-ingest/internal/hash/sha256"
	"github.com/JakeFAU/govdata-ingest/internal/ingest"
	"github.com/JakeFAU/govdata-ingest/internal/normalize"
	"github.com/JakeFAU/govdata-ingest/internal/registry"
	"github.com/JakeFAU/govdata-ingest/internal/storage/memory"
)

type fakeFetcher struct {
	mu      sync.Mutex
	bodies  map[string]string
	fail    map[string]error
	calls   []string
	onFetch func(name string)
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{bodies: map[string]string{}, fail: map[string]error{}}
}

func (f *fakeFetcher) Fetch(ctx context.Context, src ingest.SourceDescriptor, dt ingest.DataType) (ingest.Document, error) {
	f.mu.Lock()
	f.calls = append(f.calls, src.Name+"/"+string(dt))
	body, err := f.bodies[src.Name], f.fail[src.Name]
	hook := f.onFetch
	f.mu.Unlock()

	if hook != nil {
		hook(src.Name)
	}
	if err != nil {
		return ingest.Document{}, err
	}
	if ctx.Err() != nil {
		return ingest.Document{}, ctx.Err()
	}
	url, _ := src.EndpointURL(dt)
	return ingest.Document{
		Source:   src.Name,
		DataType: dt,
		URL:      url,
		Format:   src.FormatFor(dt),
		Body:     []byte(body),
		Attempts: 1,
	}, nil
}

func (f *fakeFetcher) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fakePauser struct {
	mu     sync.Mutex
	pauses []time.Duration
}

func (p *fakePauser) Pause(ctx context.Context, d time.Duration) error {
	p.mu.Lock()
	p.pauses = append(p.pauses, d)
	p.mu.Unlock()
	return ctx.Err()
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (s *seqIDs) NewID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("run-%d", s.n), nil
}

type recordingSink struct {
	mu      sync.Mutex
	reports []ingest.RunReport
}

func (s *recordingSink) Emit(_ context.Context, r ingest.RunReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, r)
	return nil
}

// failingStore rejects records whose key contains failKey.
type failingStore struct {
	ingest.EntityStore
	failKey string
}

func (s failingStore) Upsert(ctx context.Context, rec ingest.Record) (ingest.Outcome, error) {
	if strings.Contains(rec.KeyString(), s.failKey) {
		return "", &ingest.PersistenceError{Kind: rec.Kind(), Key: rec.KeyString(), Err: errors.New("deadlock detected")}
	}
	return s.EntityStore.Upsert(ctx, rec)
}

func memberTable(rows ...string) string {
	var b strings.Builder
	b.WriteString(`<html><body><table><thead><tr><th>Name</th><th>Party</th></tr></thead><tbody>`)
	for _, r := range rows {
		b.WriteString(r)
	}
	b.WriteString(`</tbody></table></body></html>`)
	return b.String()
}

func member(name, party string) string {
	return fmt.Sprintf(`<tr><td>%s</td><td class="party">%s</td></tr>`, name, party)
}

func source(name, root string, interval time.Duration) ingest.SourceDescriptor {
	return ingest.SourceDescriptor{
		Name:               name,
		RootAddress:        root,
		Tier:               ingest.TierProvincial,
		DataTypes:          []ingest.DataType{ingest.DataPoliticians},
		Endpoints:          map[ingest.DataType]ingest.Endpoint{ingest.DataPoliticians: {Path: "/en/members", Format: ingest.FormatHTML}},
		PolitenessInterval: interval,
	}
}

type harness struct {
	pipeline *Pipeline
	fetcher  *fakeFetcher
	pauser   *fakePauser
	store    *memory.EntityStore
	runs     *memory.RunStore
	blobs    *memory.BlobStore
	sink     *recordingSink
}

func newHarness(t *testing.T, entities ingest.EntityStore, sources ...ingest.SourceDescriptor) *harness {
	t.Helper()

	reg, err := registry.New(sources...)
	require.NoError(t, err)

	h := &harness{
		fetcher: newFakeFetcher(),
		pauser:  &fakePauser{},
		store:   memory.NewEntityStore(0),
		runs:    memory.NewRunStore(10),
		blobs:   memory.NewBlobStore(),
		sink:    &recordingSink{},
	}
	if entities == nil {
		entities = h.store
	}
	arch, err := archive.New(h.blobs, hashsha.New(), "raw", zap.NewNop())
	require.NoError(t, err)

	h.pipeline, err = New(Dependencies{
		Sources:    reg,
		Fetcher:    h.fetcher,
		Extractor:  extract.New(),
		Normalizer: normalize.New(),
		Store:      entities,
		Runs:       h.runs,
		Sink:       h.sink,
		Archiver:   arch,
		Pauser:     h.pauser,
		Clock:      fixedClock{now: time.Date(2024, 3, 20, 12, 0, 0, 0, time.UTC)},
		IDs:        &seqIDs{},
	}, Config{ExtractConcurrency: 2}, zap.NewNop())
	require.NoError(t, err)
	return h
}

func TestRunTwoRowTableExtractsOneAndRejectsOne(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, source("Legislative Assembly of Ontario", "https://www.ola.org", time.Second))
	h.fetcher.bodies["Legislative Assembly of Ontario"] = memberTable(
		member("Alex Tremblay", "Liberal"),
		member("", "Conservative"),
	)

	report, err := h.pipeline.RunIngestion(context.Background(), ingest.Filter{})
	require.NoError(t, err)

	assert.Equal(t, "run-1", report.RunID)
	assert.Equal(t, ingest.RunCompleted, report.State)
	assert.False(t, report.Partial)
	assert.Equal(t, ingest.Counts{Extracted: 1, Rejected: 1, Inserted: 1}, report.Totals[ingest.KindPolitician])
	require.Len(t, report.Sources, 1)
	assert.Equal(t, ingest.SourceSuccess, report.Sources[0].Outcome)

	dtr := report.Sources[0].DataTypes[0]
	assert.True(t, dtr.Fetched)
	assert.Equal(t, "https://www.ola.org/en/members", dtr.URL)
	assert.True(t, strings.HasPrefix(dtr.ArchiveKey, "memory://raw/run-1/legislative-assembly-of-ontario/politicians-"), dtr.ArchiveKey)
	assert.Equal(t, 1, h.blobs.Len())

	row, ok := h.store.Get(&ingest.Politician{Name: "Alex Tremblay", Jurisdiction: "Ontario"})
	require.True(t, ok)
	assert.Equal(t, "Liberal", row["party"])

	saved, err := h.runs.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, ingest.RunCompleted, saved.State)
	require.Len(t, h.sink.reports, 1)
	assert.Equal(t, "run-1", h.sink.reports[0].RunID)
	assert.Empty(t, h.pauser.pauses, "no pause after the last source")
}

func TestRunIsIdempotent(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, source("Legislative Assembly of Ontario", "https://www.ola.org", 0))
	h.fetcher.bodies["Legislative Assembly of Ontario"] = memberTable(
		member("Alex Tremblay", "Liberal"),
		member("Sam Singh", "NDP"),
	)

	first, err := h.pipeline.RunIngestion(context.Background(), ingest.Filter{})
	require.NoError(t, err)
	require.Equal(t, 2, first.Totals[ingest.KindPolitician].Inserted)

	second, err := h.pipeline.RunIngestion(context.Background(), ingest.Filter{})
	require.NoError(t, err)
	assert.Equal(t, "run-2", second.RunID)
	assert.Equal(t, ingest.Counts{Extracted: 2, Unchanged: 2}, second.Totals[ingest.KindPolitician])
	assert.Equal(t, 2, h.store.Len("politicians"))
}

func TestRunLaterPartyWins(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil,
		source("Ontario Members", "https://www.ola.org", 0),
		source("Ontario Members Mirror", "https://members.ola.org", 0),
	)
	h.fetcher.bodies["Ontario Members"] = memberTable(member("Jane Doe", "Green"))
	h.fetcher.bodies["Ontario Members Mirror"] = memberTable(member("Jane Doe", "Liberal"))

	report, err := h.pipeline.RunIngestion(context.Background(), ingest.Filter{})
	require.NoError(t, err)
	assert.Equal(t, ingest.Counts{Extracted: 2, Inserted: 1, Updated: 1}, report.Totals[ingest.KindPolitician])

	row, ok := h.store.Get(&ingest.Politician{Name: "Jane Doe", Jurisdiction: "Ontario"})
	require.True(t, ok)
	assert.Equal(t, "Liberal", row["party"])
	assert.Equal(t, 1, h.store.Len("politicians"))
}

func TestRunIsolatesFailingSource(t *testing.T) {
	t.Parallel()

	var sources []ingest.SourceDescriptor
	for i := 1; i <= 5; i++ {
		sources = append(sources, source(fmt.Sprintf("Source %d", i), fmt.Sprintf("https://s%d.ola.org", i), time.Duration(i)*time.Second))
	}
	h := newHarness(t, nil, sources...)
	for i := 1; i <= 5; i++ {
		h.fetcher.bodies[fmt.Sprintf("Source %d", i)] = memberTable(member(fmt.Sprintf("Member %d", i), "Independent"))
	}
	h.fetcher.fail["Source 3"] = &ingest.FetchError{Kind: ingest.FetchHTTPStatus, StatusCode: 503, Attempts: 5, URL: "https://s3.ola.org/en/members"}

	report, err := h.pipeline.RunIngestion(context.Background(), ingest.Filter{})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"Source 1/politicians", "Source 2/politicians", "Source 3/politicians",
		"Source 4/politicians", "Source 5/politicians",
	}, h.fetcher.Calls())
	require.Len(t, report.Sources, 5)
	for i, sr := range report.Sources {
		want := ingest.SourceSuccess
		if i == 2 {
			want = ingest.SourceFailed
		}
		assert.Equal(t, want, sr.Outcome, sr.Name)
	}
	assert.Equal(t, 5, report.Sources[2].DataTypes[0].Attempts)
	assert.Equal(t, 4, report.Totals[ingest.KindPolitician].Inserted)
	assert.Equal(t, ingest.RunCompletedWithErrors, report.State)

	require.Len(t, report.Errors, 1)
	assert.Equal(t, "Source 3", report.Errors[0].Source)
	assert.Equal(t, ingest.ErrorFetch, report.Errors[0].Kind)
	assert.Equal(t, ingest.DataPoliticians, report.Errors[0].DataType)

	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 3 * time.Second, 4 * time.Second}, h.pauser.pauses)
}

func TestRunPersistenceFailureMarksSourcePartial(t *testing.T) {
	t.Parallel()

	inner := memory.NewEntityStore(0)
	h := newHarness(t, failingStore{EntityStore: inner, failKey: "Sam Singh"}, source("Legislative Assembly of Ontario", "https://www.ola.org", 0))
	h.fetcher.bodies["Legislative Assembly of Ontario"] = memberTable(
		member("Alex Tremblay", "Liberal"),
		member("Sam Singh", "NDP"),
		member("Lee Park", "Green"),
	)

	report, err := h.pipeline.RunIngestion(context.Background(), ingest.Filter{})
	require.NoError(t, err)
	assert.Equal(t, ingest.Counts{Extracted: 3, Inserted: 2, Failed: 1}, report.Totals[ingest.KindPolitician])
	assert.Equal(t, ingest.SourcePartial, report.Sources[0].Outcome)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, ingest.ErrorPersistence, report.Errors[0].Kind)
	assert.Equal(t, "Sam Singh|Ontario", report.Errors[0].Key)
	assert.Equal(t, 2, inner.Len("politicians"))
}

func TestRunCancellationMarksPartial(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil,
		source("Source A", "https://a.ola.org", time.Second),
		source("Source B", "https://b.ola.org", time.Second),
		source("Source C", "https://c.ola.org", time.Second),
	)
	for _, name := range []string{"Source A", "Source B", "Source C"} {
		h.fetcher.bodies[name] = memberTable(member("Member of "+name, "Independent"))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.fetcher.onFetch = func(name string) {
		if name == "Source B" {
			cancel()
		}
	}

	report, err := h.pipeline.RunIngestion(ctx, ingest.Filter{})
	require.NoError(t, err)
	assert.True(t, report.Partial)
	require.Len(t, report.Sources, 2)
	assert.Equal(t, ingest.SourceSuccess, report.Sources[1].Outcome, "in-flight source completes normally")
	assert.Equal(t, 2, report.Totals[ingest.KindPolitician].Inserted)
	assert.Equal(t, []string{"Source A/politicians", "Source B/politicians"}, h.fetcher.Calls())
	assert.True(t, report.State.Terminal())

	saved, err := h.runs.GetRun(context.Background(), report.RunID)
	require.NoError(t, err)
	assert.True(t, saved.Partial)
}

func TestRunConfigurationErrorBeforeFetch(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, source("Legislative Assembly of Ontario", "https://www.ola.org", 0))

	for _, filter := range []ingest.Filter{{Tier: "galactic"}, {DataType: "weather"}} {
		report, err := h.pipeline.RunIngestion(context.Background(), filter)
		require.Error(t, err)
		assert.True(t, ingest.IsConfigurationError(err))
		assert.Equal(t, ingest.RunNotStarted, report.State)
	}
	assert.Empty(t, h.fetcher.Calls())
	runs, err := h.runs.ListRuns(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestRunDataTypeFilter(t *testing.T) {
	t.Parallel()

	src := source("House of Commons", "https://www.ourcommons.ca", 0)
	src.Tier = ingest.TierFederal
	src.DataTypes = append(src.DataTypes, ingest.DataBills)
	src.Endpoints[ingest.DataBills] = ingest.Endpoint{Path: "/bills", Format: ingest.FormatHTML}
	h := newHarness(t, nil, src)
	h.fetcher.bodies["House of Commons"] = "<html><body></body></html>"

	report, err := h.pipeline.RunIngestion(context.Background(), ingest.Filter{DataType: "legislation"})
	require.NoError(t, err)
	assert.Equal(t, []string{"House of Commons/bills"}, h.fetcher.Calls())
	require.Len(t, report.Sources[0].DataTypes, 1)
	assert.Equal(t, ingest.DataBills, report.Sources[0].DataTypes[0].DataType)
	assert.Equal(t, ingest.RunCompleted, report.State, "an empty page is zero records, not an error")
}

func TestNewRequiresCollaborators(t *testing.T) {
	t.Parallel()

	_, err := New(Dependencies{}, Config{}, nil)
	require.ErrorContains(t, err, "source registry is required")

	reg, err := registry.New(source("A", "https://a.example.ca", 0))
	require.NoError(t, err)
	_, err = New(Dependencies{Sources: reg, Fetcher: newFakeFetcher()}, Config{}, nil)
	require.ErrorContains(t, err, "extractor is required")
}

func TestRunRejectsKeysEmptiedByNormalization(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, source("Legislative Assembly of Ontario", "https://www.ola.org", 0))
	h.fetcher.bodies["Legislative Assembly of Ontario"] = memberTable(
		member("Alex Tremblay", "Liberal"),
		member("(Vacant)", "NDP"),
		member("★", "Green"),
	)

	for range 2 {
		report, err := h.pipeline.RunIngestion(context.Background(), ingest.Filter{})
		require.NoError(t, err)
		counts := report.Totals[ingest.KindPolitician]
		assert.Equal(t, 1, counts.Extracted)
		assert.Equal(t, 2, counts.Rejected)
		assert.Zero(t, counts.Updated)
		assert.Empty(t, report.Errors)
	}

	assert.Equal(t, 1, h.store.Len("politicians"))
	_, ok := h.store.Get(&ingest.Politician{Name: "", Jurisdiction: "Ontario"})
	assert.False(t, ok)
}

func TestRunKeepsSameDayDivisionsApart(t *testing.T) {
	t.Parallel()

	src := ingest.SourceDescriptor{
		Name:        "House of Commons",
		RootAddress: "https://www.ourcommons.ca",
		Tier:        ingest.TierFederal,
		DataTypes:   []ingest.DataType{ingest.DataVotes},
		Endpoints:   map[ingest.DataType]ingest.Endpoint{ingest.DataVotes: {Path: "/members/en/votes", Format: ingest.FormatHTML}},
	}
	h := newHarness(t, nil, src)
	h.fetcher.bodies[src.Name] = `<html><body><table>
		<tr><th>Date</th><th>Bill</th><th>Result</th><th>Yeas</th><th>Nays</th><th>Paired</th></tr>
		<tr data-division-id="711"><td>2024-03-20</td><td>C-59</td><td>Negatived</td><td>110</td><td>208</td><td>0</td></tr>
		<tr data-division-id="712"><td>2024-03-20</td><td>C-59</td><td>Agreed to</td><td>172</td><td>146</td><td>0</td></tr>
	</table></body></html>`

	first, err := h.pipeline.RunIngestion(context.Background(), ingest.Filter{})
	require.NoError(t, err)
	assert.Equal(t, ingest.Counts{Extracted: 2, Inserted: 2}, first.Totals[ingest.KindVote])

	second, err := h.pipeline.RunIngestion(context.Background(), ingest.Filter{})
	require.NoError(t, err)
	assert.Equal(t, ingest.Counts{Extracted: 2, Unchanged: 2}, second.Totals[ingest.KindVote])
	assert.Equal(t, 2, h.store.Len("votes"))
}
