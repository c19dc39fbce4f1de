// Package telemetry wires an optional OTLP metrics exporter. It is a thin
// wrapper: when [metrics].endpoint is unset, every counter and histogram
// resolves to a no-op meter, so the rest of the module never branches on
// whether metrics are enabled.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.34.0"

	"github.com/nmem/nmem/internal/config"
)

// Meters bundles the handful of instruments the recorder, control loop and
// retriever record into.
type Meters struct {
	ObservationsIngested metric.Int64Counter
	SweepDeletions        metric.Int64Counter
	RedactionsApplied     metric.Int64Counter
	RetrievalLatency      metric.Float64Histogram

	shutdown func(context.Context) error
}

// Shutdown flushes and tears down the exporter. Safe to call on a no-op
// Meters (where it is a no-op itself).
func (m *Meters) Shutdown(ctx context.Context) error {
	if m.shutdown == nil {
		return nil
	}
	return m.shutdown(ctx)
}

// New builds Meters from cfg.Metrics. An empty endpoint yields a fully
// functional no-op implementation rather than an error, since metrics are
// an optional ambient concern, not a required collaborator.
func New(ctx context.Context, cfg config.MetricsConfig) (*Meters, error) {
	if cfg.Endpoint == "" {
		return newMeters(noop.NewMeterProvider().Meter("nmem"), nil)
	}

	res, err := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithAttributes(semconv.ServiceName("nmem")),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry resource: %w", err)
	}

	exp, err := otlpmetrichttp.New(ctx, otlpmetrichttp.WithEndpoint(cfg.Endpoint), otlpmetrichttp.WithInsecure())
	if err != nil {
		return nil, fmt.Errorf("telemetry metric exporter: %w", err)
	}
	reader := sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(15*time.Second))
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader), sdkmetric.WithResource(res))

	m, err := newMeters(mp.Meter("nmem"), mp.Shutdown)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func newMeters(meter metric.Meter, shutdown func(context.Context) error) (*Meters, error) {
	ingested, err := meter.Int64Counter("nmem.observations.ingested")
	if err != nil {
		return nil, err
	}
	deletions, err := meter.Int64Counter("nmem.sweep.deletions")
	if err != nil {
		return nil, err
	}
	redactions, err := meter.Int64Counter("nmem.redactions.applied")
	if err != nil {
		return nil, err
	}
	latency, err := meter.Float64Histogram("nmem.retrieval.latency_ms")
	if err != nil {
		return nil, err
	}
	return &Meters{
		ObservationsIngested: ingested,
		SweepDeletions:        deletions,
		RedactionsApplied:     redactions,
		RetrievalLatency:      latency,
		shutdown:              shutdown,
	}, nil
}
