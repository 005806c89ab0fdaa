// Package telemetry initializes OpenTelemetry tracing and metrics exporters.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/vinayprograms/agentrace/internal/trace"
)

// Shutdown flushes and stops the exporters.
type Shutdown func(ctx context.Context) error

// Init configures the global OpenTelemetry tracer and meter providers.
// If endpoint is empty, telemetry is disabled and no-op providers are used.
func Init(ctx context.Context, endpoint, serviceName, version string, insecure bool) (Shutdown, error) {
	if endpoint == "" {
		return func(ctx context.Context) error { return nil }, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: create resource: %w", err)
	}

	traceOpts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(endpoint),
	}
	if insecure {
		traceOpts = append(traceOpts, otlptracehttp.WithInsecure())
	}
	traceExp, err := otlptracehttp.New(ctx, traceOpts...)
	if err != nil {
		return nil, fmt.Errorf("telemetry: create trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExp,
			sdktrace.WithBatchTimeout(5*time.Second),
		),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(
		propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		),
	)

	metricOpts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(endpoint),
	}
	if insecure {
		metricOpts = append(metricOpts, otlpmetrichttp.WithInsecure())
	}
	metricExp, err := otlpmetrichttp.New(ctx, metricOpts...)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, fmt.Errorf("telemetry: create metric exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(metricExp,
				sdkmetric.WithInterval(15*time.Second),
			),
		),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	shutdown := func(ctx context.Context) error {
		var firstErr error
		if err := tp.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := mp.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
		return firstErr
	}
	return shutdown, nil
}

// TracerProvider returns the global tracer provider.
func TracerProvider() oteltrace.TracerProvider {
	return otel.GetTracerProvider()
}

// Meter returns the global meter for the given instrumentation scope.
func Meter(name string) metric.Meter {
	return otel.GetMeterProvider().Meter(name)
}

// ObserveEngine registers observable counters that report stats on every
// collection.
func ObserveEngine(m metric.Meter, stats func() trace.Stats) (metric.Registration, error) {
	counters := []struct {
		name, desc string
		value      func(trace.Stats) int
	}{
		{"agentrace.spans.opened", "Spans opened", func(s trace.Stats) int { return s.Opened }},
		{"agentrace.spans.closed", "Spans closed", func(s trace.Stats) int { return s.Closed }},
		{"agentrace.frames.suppressed", "Frames suppressed", func(s trace.Stats) int { return s.Suppressed }},
		{"agentrace.ends.absorbed", "End events for suppressed frames", func(s trace.Stats) int { return s.Absorbed }},
		{"agentrace.ends.orphaned", "End events for unknown runs", func(s trace.Stats) int { return s.Orphaned }},
		{"agentrace.ends.duplicate", "Repeated end events", func(s trace.Stats) int { return s.Duplicates }},
		{"agentrace.sink.errors", "Sink failures", func(s trace.Stats) int { return s.SinkErrors }},
		{"agentrace.sink.cross_context", "Cross-context sink errors", func(s trace.Stats) int { return s.CrossContext }},
	}

	observables := make([]metric.Observable, 0, len(counters))
	instruments := make([]metric.Int64ObservableCounter, 0, len(counters))
	for _, c := range counters {
		inst, err := m.Int64ObservableCounter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, fmt.Errorf("telemetry: create %s: %w", c.name, err)
		}
		instruments = append(instruments, inst)
		observables = append(observables, inst)
	}

	return m.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		s := stats()
		for i, c := range counters {
			o.ObserveInt64(instruments[i], int64(c.value(s)))
		}
		return nil
	}, observables...)
}
