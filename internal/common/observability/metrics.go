package observability

import (
	"context"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
)

// Observability owns the otel meter provider exported through the Prometheus registry.
type Observability struct {
	meterProvider *metric.MeterProvider
	meter         otelmetric.Meter
	queryCounter  otelmetric.Int64Counter
	queryDuration otelmetric.Float64Histogram
	stageDuration otelmetric.Float64Histogram
}

func New(serviceName string) *Observability {
	exporter, err := prometheus.New()
	if err != nil {
		log.Printf("Failed to create Prometheus exporter: %v", err)
		return &Observability{}
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter(serviceName)

	queryCounter, _ := meter.Int64Counter(
		"queries.processed",
		otelmetric.WithDescription("Number of questions answered or failed"),
	)

	queryDuration, _ := meter.Float64Histogram(
		"queries.duration",
		otelmetric.WithDescription("Question processing duration"),
		otelmetric.WithUnit("ms"),
	)

	stageDuration, _ := meter.Float64Histogram(
		"queries.stage.duration",
		otelmetric.WithDescription("Duration of a single orchestrator state"),
		otelmetric.WithUnit("ms"),
	)

	return &Observability{
		meterProvider: provider,
		meter:         meter,
		queryCounter:  queryCounter,
		queryDuration: queryDuration,
		stageDuration: stageDuration,
	}
}

// RecordQuery counts one finished request.
func (o *Observability) RecordQuery(ctx context.Context, intent, outcome string, duration time.Duration) {
	if o == nil {
		return
	}
	attrs := otelmetric.WithAttributes(
		attribute.String("intent", intent),
		attribute.String("outcome", outcome),
	)
	if o.queryCounter != nil {
		o.queryCounter.Add(ctx, 1, attrs)
	}
	if o.queryDuration != nil {
		o.queryDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
	}
}

// RecordStage records time spent in one orchestrator state.
func (o *Observability) RecordStage(ctx context.Context, stage string, duration time.Duration, failed bool) {
	if o == nil || o.stageDuration == nil {
		return
	}
	o.stageDuration.Record(ctx, float64(duration.Milliseconds()), otelmetric.WithAttributes(
		attribute.String("stage", stage),
		attribute.Bool("failed", failed),
	))
}

func (o *Observability) Shutdown() {
	if o != nil && o.meterProvider != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		o.meterProvider.Shutdown(ctx)
	}
}
