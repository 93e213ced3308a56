package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/JakeFAU/govdata-ingest/internal/config"
)

func TestInitDisabledInstallsPropagatorOnly(t *testing.T) {
	shutdown, err := Init(context.Background(), config.TelemetryConfig{}, "", nil)
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))

	fields := otel.GetTextMapPropagator().Fields()
	require.Contains(t, fields, "traceparent")
	require.Contains(t, fields, "baggage")
}

func TestInitEnabledInstallsSDKProvider(t *testing.T) {
	shutdown, err := Init(context.Background(), config.TelemetryConfig{
		Enabled:      true,
		ServiceName:  "ingest-test",
		OTLPEndpoint: "http://127.0.0.1:4318/v1/traces",
	}, "v0.0.0-test", nil)
	require.NoError(t, err)

	_, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	require.True(t, ok)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, shutdown(ctx))
}
