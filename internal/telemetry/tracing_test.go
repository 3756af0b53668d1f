package telemetry

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
)

func TestSetupRegistersGlobalProviderAndShutsDownCleanly(t *testing.T) {
	shutdown, err := Setup(context.Background(), Config{
		ServiceName:    "clinorch-test",
		ServiceVersion: "0.0.0-test",
		Environment:    "test",
		SamplingRate:   1.0,
	})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			t.Errorf("shutdown: %v", err)
		}
	}()

	tracer := otel.Tracer("telemetry_test")
	_, span := tracer.Start(context.Background(), "probe")
	defer span.End()

	if !span.SpanContext().IsValid() {
		t.Error("expected a valid span context from the registered provider")
	}
}

func TestSetupDefaultsSamplingRateToAlwaysSample(t *testing.T) {
	shutdown, err := Setup(context.Background(), Config{ServiceName: "clinorch-test"})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	defer shutdown(context.Background())

	tracer := otel.Tracer("telemetry_test_default")
	_, span := tracer.Start(context.Background(), "probe")
	defer span.End()

	if !span.SpanContext().IsSampled() {
		t.Error("expected default sampling rate to always-sample")
	}
}

func TestSetupNeverSamplesWhenConfigured(t *testing.T) {
	shutdown, err := Setup(context.Background(), Config{ServiceName: "clinorch-test", SamplingRate: NeverSample})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	defer shutdown(context.Background())

	tracer := otel.Tracer("telemetry_test_never")
	_, span := tracer.Start(context.Background(), "probe")
	defer span.End()

	if span.SpanContext().IsSampled() {
		t.Error("expected NeverSample sampling rate to never-sample")
	}
}
