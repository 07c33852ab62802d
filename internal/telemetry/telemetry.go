package telemetry

import (
	"context"
	"fmt"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.20.0"
)

// ServiceName identifies this process in traces.
const ServiceName = "tmap"

// Version is reported on every span resource.
var Version = "dev"

type tracerSettings struct {
	sampler sdktrace.Sampler
	attrs   []attribute.KeyValue
}

// TracerOption tunes the provider built by InitTracer.
type TracerOption func(*tracerSettings)

// WithSampleRatio keeps roughly ratio of root traces. Children follow their parent.
func WithSampleRatio(ratio float64) TracerOption {
	return func(s *tracerSettings) {
		s.sampler = sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
	}
}

// WithAttributes adds resource attributes such as the storage driver.
func WithAttributes(kv ...attribute.KeyValue) TracerOption {
	return func(s *tracerSettings) {
		s.attrs = append(s.attrs, kv...)
	}
}

// InitTracer installs a global tracer provider that prints spans as JSON to w
// and propagates both trace context and baggage. Callers own the returned shutdown.
func InitTracer(w io.Writer, opts ...TracerOption) (func(context.Context) error, error) {
	settings := tracerSettings{sampler: sdktrace.ParentBased(sdktrace.AlwaysSample())}
	for _, opt := range opts {
		opt(&settings)
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, fmt.Errorf("span exporter: %w", err)
	}

	res, err := serviceResource(settings.attrs)
	if err != nil {
		return nil, fmt.Errorf("trace resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(settings.sampler),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return tp.Shutdown, nil
}

func serviceResource(extra []attribute.KeyValue) (*resource.Resource, error) {
	attrs := append([]attribute.KeyValue{
		semconv.ServiceName(ServiceName),
		semconv.ServiceVersion(Version),
	}, extra...)
	return resource.New(context.Background(),
		resource.WithAttributes(attrs...),
		resource.WithProcessRuntimeName(),
	)
}
