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

func TestInitDisabled(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{Disable: true})
	if err != nil {
		t.Fatalf("Init returned error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown returned error: %v", err)
	}
	End(nil, nil)
}

func TestStartAndEnd(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	defer otel.SetTracerProvider(prev)

	_, span := Start(context.Background(), "step", attribute.String("graph.node", "router"))
	End(span, nil)
	_, failed := Start(context.Background(), "step")
	End(failed, errors.New("boom"))

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}
	if spans[0].Status().Code != codes.Ok || len(spans[0].Attributes()) != 1 {
		t.Fatalf("unexpected first span %+v", spans[0].Status())
	}
	if spans[1].Status().Code != codes.Error || spans[1].Status().Description != "boom" {
		t.Fatalf("unexpected failed span %+v", spans[1].Status())
	}
}

func TestSampler(t *testing.T) {
	if sampler(0).Description() != sdktrace.AlwaysSample().Description() {
		t.Fatal("ratio 0 should sample everything")
	}
	if sampler(0.5).Description() == sdktrace.AlwaysSample().Description() {
		t.Fatal("ratio 0.5 should use a ratio sampler")
	}
}
