package telemetry

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestSetupNoopWithoutEndpoint(t *testing.T) {
	t.Setenv(EnvEndpoint, "")
	t.Setenv(EnvEnabled, "")
	shutdown, err := Setup(context.Background(), "maestro-test", "")
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := shutdown(ctx); err != nil {
		t.Fatalf("noop shutdown should not error: %v", err)
	}
}

func TestSetupNoopWhenDisabled(t *testing.T) {
	t.Setenv(EnvEndpoint, "http://localhost:4318")
	t.Setenv(EnvEnabled, "false")
	shutdown, err := Setup(context.Background(), "maestro-test", "http://localhost:4318")
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestSetupCreatesProviderWhenEndpointSet(t *testing.T) {
	t.Setenv(EnvEndpoint, "")
	t.Setenv(EnvEnabled, "")
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	// Non-routable address so nothing is exported.
	shutdown, err := Setup(context.Background(), "maestro-test", "http://192.0.2.1:4318")
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestStartAndEndRecordErrors(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	_, span := Start(context.Background(), "skill.invoke", attribute.String("skill.id", "transport.play"))
	End(span, errors.New("engine unavailable"))

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	got := spans[0]
	if got.Name() != "skill.invoke" {
		t.Fatalf("unexpected span name %q", got.Name())
	}
	if got.Status().Code != codes.Error || got.Status().Description != "engine unavailable" {
		t.Fatalf("unexpected status %+v", got.Status())
	}
}
