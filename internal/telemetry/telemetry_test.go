package telemetry

import (
	"context"
	"testing"

	"github.com/nmem/nmem/internal/config"
	"github.com/stretchr/testify/require"
)

func TestNew_NoEndpointYieldsWorkingNoOpMeters(t *testing.T) {
	m, err := New(context.Background(), config.MetricsConfig{})
	require.NoError(t, err)
	require.NotNil(t, m.ObservationsIngested)
	require.NotNil(t, m.SweepDeletions)
	require.NotNil(t, m.RedactionsApplied)
	require.NotNil(t, m.RetrievalLatency)

	m.ObservationsIngested.Add(context.Background(), 1)
	m.RetrievalLatency.Record(context.Background(), 12.5)

	require.NoError(t, m.Shutdown(context.Background()))
}

func TestMeters_ShutdownIsSafeWithoutExporter(t *testing.T) {
	m := &Meters{}
	require.NoError(t, m.Shutdown(context.Background()))
}
