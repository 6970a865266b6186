package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// TracingConfig mirrors config.TracingConfig so this package stays free of the config import.
type TracingConfig struct {
	Enabled      bool
	ServiceName  string
	ServiceVer   string
	OTLPEndpoint string
}

// Tracer wraps the tracer handle. A Tracer is usable even when export is disabled.
type Tracer struct {
	tracer   oteltrace.Tracer
	provider *sdktrace.TracerProvider
}

// NewTracer always returns a usable Tracer; spans are only exported when cfg.Enabled.
func NewTracer(ctx context.Context, cfg TracingConfig) (*Tracer, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "query-orchestrator"
	}
	if !cfg.Enabled {
		return &Tracer{tracer: otel.Tracer(cfg.ServiceName)}, nil
	}
	if cfg.OTLPEndpoint == "" {
		cfg.OTLPEndpoint = "localhost:4317"
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return &Tracer{tracer: otel.Tracer(cfg.ServiceName)}, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVer),
		),
	)
	if err != nil {
		return &Tracer{tracer: otel.Tracer(cfg.ServiceName)}, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return &Tracer{tracer: tp.Tracer(cfg.ServiceName), provider: tp}, nil
}

// NoopTracer returns a Tracer backed by the global provider.
func NoopTracer() *Tracer {
	return &Tracer{tracer: otel.Tracer("query-orchestrator")}
}

// Start opens a span with string attributes taken from attrs.
func (t *Tracer) Start(ctx context.Context, name string, attrs map[string]string) (context.Context, oteltrace.Span) {
	if t == nil || t.tracer == nil {
		t = NoopTracer()
	}
	kv := make([]attribute.KeyValue, 0, len(attrs))
	for k, v := range attrs {
		kv = append(kv, attribute.String(k, v))
	}
	return t.tracer.Start(ctx, name, oteltrace.WithAttributes(kv...))
}

// End closes span, marking it failed when err is non-nil.
func End(span oteltrace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (t *Tracer) Shutdown(ctx context.Context) error {
	if t == nil || t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}
