package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/govdata-ingest/internal/ingest"
)

type mockTx struct {
	mock.Mock
}

func (m *mockTx) Lookup(ctx context.Context, row Row) ([]any, bool, error) {
	args := m.Called(ctx, row)
	values, _ := args.Get(0).([]any)
	return values, args.Bool(1), args.Error(2)
}

func (m *mockTx) Insert(ctx context.Context, row Row) error {
	return m.Called(ctx, row).Error(0)
}

func (m *mockTx) Update(ctx context.Context, row Row) error {
	return m.Called(ctx, row).Error(0)
}

func (m *mockTx) Speakers(ctx context.Context, name, jurisdiction string) ([]Speaker, error) {
	args := m.Called(ctx, name, jurisdiction)
	speakers, _ := args.Get(0).([]Speaker)
	return speakers, args.Error(1)
}

func politician(party string) *ingest.Politician {
	return &ingest.Politician{Name: "Jane Doe", Jurisdiction: "Ontario", Party: party, Role: "MPP", Tier: "Provincial"}
}

func TestApplyInsertUpdateUnchanged(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	rec := politician("Green")
	row, err := RowFor(rec, 0)
	require.NoError(t, err)

	tx := &mockTx{}
	tx.On("Lookup", ctx, row).Return(nil, false, nil).Once()
	tx.On("Insert", ctx, row).Return(nil).Once()
	outcome, err := Apply(ctx, tx, rec, 0)
	require.NoError(t, err)
	require.Equal(t, ingest.OutcomeInserted, outcome)
	tx.AssertExpectations(t)

	tx = &mockTx{}
	tx.On("Lookup", ctx, row).Return(append([]any(nil), row.Values...), true, nil).Once()
	outcome, err = Apply(ctx, tx, rec, 0)
	require.NoError(t, err)
	require.Equal(t, ingest.OutcomeUnchanged, outcome)
	tx.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
	tx.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)

	later := politician("Liberal")
	laterRow, err := RowFor(later, 0)
	require.NoError(t, err)
	tx = &mockTx{}
	tx.On("Lookup", ctx, laterRow).Return(row.Values, true, nil).Once()
	tx.On("Update", ctx, laterRow).Return(nil).Once()
	outcome, err = Apply(ctx, tx, later, 0)
	require.NoError(t, err)
	require.Equal(t, ingest.OutcomeUpdated, outcome)
	tx.AssertExpectations(t)
}

func TestApplyStatementResolvesSpeaker(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	stmt := &ingest.Statement{SpeakerName: "Jane Do", Content: "I rise today.", Date: "2024-03-20", Jurisdiction: "Ontario"}

	tx := &mockTx{}
	tx.On("Speakers", ctx, "Jane Do", "Ontario").Return([]Speaker{
		{ID: 7, Name: "Jane Doe", Jurisdiction: "Ontario"},
		{ID: 8, Name: "John Smith", Jurisdiction: "Ontario"},
	}, nil)
	tx.On("Lookup", ctx, mock.MatchedBy(func(r Row) bool {
		return r.Table == TableStatements && r.KeyValues[0] == int64(7)
	})).Return(nil, false, nil)
	tx.On("Insert", ctx, mock.Anything).Return(nil)

	outcome, err := Apply(ctx, tx, stmt, DefaultFuzzyThreshold)
	require.NoError(t, err)
	require.Equal(t, ingest.OutcomeInserted, outcome)
	tx.AssertExpectations(t)
}

func TestApplyUnresolvedSpeakerAndFailures(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	stmt := &ingest.Statement{SpeakerName: "Nobody Known", Content: "Hello.", Jurisdiction: "Ontario"}
	tx := &mockTx{}
	tx.On("Speakers", ctx, "Nobody Known", "Ontario").Return([]Speaker{{ID: 1, Name: "Jane Doe", Jurisdiction: "Ontario"}}, nil)
	_, err := Apply(ctx, tx, stmt, DefaultFuzzyThreshold)
	require.ErrorIs(t, err, ingest.ErrSpeakerUnresolved)

	boom := errors.New("connection reset")
	rec := politician("Green")
	tx = &mockTx{}
	tx.On("Lookup", ctx, mock.Anything).Return(nil, false, nil)
	tx.On("Insert", ctx, mock.Anything).Return(boom)
	_, err = Apply(ctx, tx, rec, 0)
	require.ErrorIs(t, err, boom)

	wrapped := Wrap(rec, err)
	var persistErr *ingest.PersistenceError
	require.ErrorAs(t, wrapped, &persistErr)
	require.Equal(t, ingest.KindPolitician, persistErr.Kind)
	require.Equal(t, "Jane Doe|Ontario", persistErr.Key)
	require.NoError(t, Wrap(rec, nil))
}

func TestResolveSpeaker(t *testing.T) {
	t.Parallel()

	candidates := []Speaker{
		{ID: 1, Name: "Alex Tremblay", Jurisdiction: "Canada"},
		{ID: 2, Name: "Alex Tremblay", Jurisdiction: "Quebec"},
		{ID: 3, Name: "Marie Gagnon", Jurisdiction: "Quebec"},
	}
	tests := []struct {
		name         string
		speaker      string
		jurisdiction string
		wantID       int64
		wantOK       bool
	}{
		{name: "exact same jurisdiction", speaker: "alex tremblay", jurisdiction: "Quebec", wantID: 2, wantOK: true},
		{name: "exact other jurisdiction", speaker: "Alex Tremblay", jurisdiction: "Ontario", wantID: 1, wantOK: true},
		{name: "fuzzy within jurisdiction", speaker: "Marie Gagnonn", jurisdiction: "Quebec", wantID: 3, wantOK: true},
		{name: "fuzzy outside jurisdiction", speaker: "Marie Gagnonn", jurisdiction: "Canada", wantOK: false},
		{name: "too different", speaker: "Pierre Roy", jurisdiction: "Quebec", wantOK: false},
		{name: "empty", speaker: " ", jurisdiction: "Quebec", wantOK: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			id, ok := ResolveSpeaker(tt.speaker, tt.jurisdiction, candidates, DefaultFuzzyThreshold)
			require.Equal(t, tt.wantOK, ok)
			require.Equal(t, tt.wantID, id)
		})
	}
}

func TestRowForKeysAndSQL(t *testing.T) {
	t.Parallel()

	row, err := RowFor(&ingest.Vote{Jurisdiction: "Canada", BillNumber: "C-21", Date: "2024-03-20", Division: "712", Result: "Passed", YesCount: 170}, 0)
	require.NoError(t, err)
	require.Equal(t, "votes:Canada|C-21|2024-03-20|712", row.Key())
	require.Equal(t,
		"SELECT result, yes_count, no_count, abstain_count FROM votes WHERE jurisdiction = $1 AND bill_number = $2 AND vote_date = $3 AND division = $4",
		SelectSQL(row, Dollar))
	require.Equal(t,
		"UPDATE votes SET result = ?, yes_count = ?, no_count = ?, abstain_count = ?, updated_at = CURRENT_TIMESTAMP WHERE jurisdiction = ? AND bill_number = ? AND vote_date = ? AND division = ?",
		UpdateSQL(row, Question))
	require.Equal(t, []any{"Passed", int64(170), int64(0), int64(0), "Canada", "C-21", "2024-03-20", "712"}, UpdateArgs(row))

	committee, err := RowFor(&ingest.Committee{Name: "Finance", Jurisdiction: "Canada"}, 0)
	require.NoError(t, err)
	require.Equal(t, "[]", committee.Values[2])
	require.Contains(t, InsertSQL(committee, Dollar), "VALUES ($1, $2, $3, $4, $5, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)")

	_, err = RowFor(&ingest.Statement{SpeakerName: "x", Content: "y"}, 0)
	require.ErrorIs(t, err, ingest.ErrSpeakerUnresolved)
}

func TestEqualAcrossDriverTypes(t *testing.T) {
	t.Parallel()

	require.True(t, Equal([]any{[]byte("Passed"), int32(5)}, []any{"Passed", int64(5)}))
	require.False(t, Equal([]any{"Passed"}, []any{"Defeated"}))
	require.False(t, Equal([]any{"a"}, []any{"a", "b"}))
}

func TestApplyRefusesEmptyNaturalKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		rec  ingest.Record
	}{
		{name: "blank politician", rec: &ingest.Politician{Name: "  ", Jurisdiction: "Ontario"}},
		{name: "vote without date", rec: &ingest.Vote{BillNumber: "C-59", Jurisdiction: "Canada"}},
		{name: "nil record", rec: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tx := &mockTx{}
			_, err := Apply(context.Background(), tx, tt.rec, 0)
			require.ErrorIs(t, err, ingest.ErrNaturalKeyMissing)
			tx.AssertNotCalled(t, "Lookup", mock.Anything, mock.Anything)
			tx.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
		})
	}
}
