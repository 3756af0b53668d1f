// Package telemetry wires the global OpenTelemetry tracer provider used by
// internal/toolpool, internal/reactloop, and internal/orchestrator, each of
// which holds its own package-level otel.Tracer(name) and expects a provider
// to already be registered by the time Handle/Run/CallTool are reached.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

// Config configures the tracer provider (spec.md §6 telemetry.*).
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string

	// SamplingRate controls what fraction of traces are recorded, 0.0-1.0.
	// The zero value defaults to 1.0 (always sample); pass NeverSample to
	// disable sampling entirely.
	SamplingRate float64

	Attributes map[string]string
}

// NeverSample requests a sampler that records no spans. Plain 0.0 cannot be
// used for this because the zero Config value must default to AlwaysSample.
const NeverSample = -1.0

// Shutdown flushes and releases the tracer provider. Safe to call on the
// zero value returned alongside a setup error.
type Shutdown func(context.Context) error

// Setup builds an SDK tracer provider, registers it as the global provider,
// and installs a W3C trace-context/baggage propagator. No span processor
// or exporter is registered: spans are created and sampled, then dropped
// when they end, exercising the SDK's resource/sampler/propagator
// machinery without depending on an OTLP collector being reachable at
// startup.
func Setup(ctx context.Context, cfg Config) (Shutdown, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "clinorch"
	}
	if cfg.SamplingRate == 0 {
		cfg.SamplingRate = 1.0
	}

	attrs := []attribute.KeyValue{
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	}
	if cfg.Environment != "" {
		attrs = append(attrs, semconv.DeploymentEnvironment(cfg.Environment))
	}
	for k, v := range cfg.Attributes {
		attrs = append(attrs, attribute.String(k, v))
	}

	res, err := resource.New(ctx, resource.WithAttributes(attrs...))
	if err != nil {
		res = resource.Default()
	}

	var sampler sdktrace.Sampler
	switch {
	case cfg.SamplingRate == NeverSample:
		sampler = sdktrace.NeverSample()
	case cfg.SamplingRate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	case cfg.SamplingRate <= 0.0:
		sampler = sdktrace.AlwaysSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(cfg.SamplingRate)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return func(shutdownCtx context.Context) error {
		if err := provider.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("telemetry: shutdown: %w", err)
		}
		return nil
	}, nil
}
