//go:build integration

package sqldb

import (
	"context"
	"fmt"
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/JakeFAU/govdata-ingest/internal/ingest"
)

func TestMySQLIntegration(t *testing.T) {
	ctx := context.Background()
	testcontainers.Logger = log.New(io.Discard, "", 0)

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		Started: true,
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "mysql:8.4",
			ExposedPorts: []string{"3306/tcp"},
			Env: map[string]string{
				"MYSQL_ROOT_PASSWORD": "ingest",
				"MYSQL_DATABASE":      "govdata",
			},
			WaitingFor: wait.ForListeningPort("3306/tcp").WithStartupTimeout(2 * time.Minute),
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Fatal(err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "3306/tcp")
	require.NoError(t, err)

	dsn := fmt.Sprintf("root:ingest@tcp(%s:%s)/govdata?parseTime=true", host, port.Port())
	var s *Store
	require.Eventually(t, func() bool {
		s, err = Open(ctx, Config{Driver: "mysql", DSN: dsn}, nil)
		return err == nil
	}, time.Minute, time.Second)
	defer s.Close() //nolint:errcheck

	applied, err := s.Migrate(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, applied)

	rec := &ingest.Politician{Name: "Jane Doe", Jurisdiction: "Ontario", Party: "Green"}
	for _, want := range []ingest.Outcome{ingest.OutcomeInserted, ingest.OutcomeUnchanged} {
		outcome, err := s.Upsert(ctx, rec)
		require.NoError(t, err)
		require.Equal(t, want, outcome)
	}
	rec.Party = "Liberal"
	outcome, err := s.Upsert(ctx, rec)
	require.NoError(t, err)
	require.Equal(t, ingest.OutcomeUpdated, outcome)

	variants := []ingest.Record{
		&ingest.Politician{Name: "JANE DOE", Jurisdiction: "Ontario"},
		&ingest.Politician{Name: "José Tremblay", Jurisdiction: "Québec"},
		&ingest.Politician{Name: "Jose Tremblay", Jurisdiction: "Québec"},
		&ingest.Vote{Jurisdiction: "Canada", BillNumber: "C-59", Date: "2024-03-20", Division: "711", Result: "Passed"},
		&ingest.Vote{Jurisdiction: "Canada", BillNumber: "C-59", Date: "2024-03-20", Division: "712", Result: "Defeated"},
	}
	for _, want := range []ingest.Outcome{ingest.OutcomeInserted, ingest.OutcomeUnchanged} {
		for _, r := range variants {
			outcome, err := s.Upsert(ctx, r)
			require.NoError(t, err)
			require.Equal(t, want, outcome, r.KeyString())
		}
	}

	stmt := &ingest.Statement{SpeakerName: "Jane Doe", Content: "I rise today.", Date: "2024-03-20", Jurisdiction: "Ontario"}
	outcome, err = s.Upsert(ctx, stmt)
	require.NoError(t, err)
	require.Equal(t, ingest.OutcomeInserted, outcome)

	require.NoError(t, s.SaveRun(ctx, ingest.RunReport{RunID: "run-1", State: ingest.RunCompleted, StartedAt: time.Now()}))
	got, err := s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	require.Equal(t, ingest.RunCompleted, got.State)
}
