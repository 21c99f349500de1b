package core

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestOTelTracerRecordsStatus(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	store := NewStore(nil, WithTracer(NewOTelTracer(provider.Tracer("test"))))
	mustAdd(t, store, person("1", "John", "", "Doe", "Male", "US"))
	_, _ = store.GetByID(context.Background(), "missing")

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}
	if spans[0].Name() != "entitystore.add" || spans[0].Status().Code != codes.Ok {
		t.Fatalf("unexpected add span: %s %v", spans[0].Name(), spans[0].Status())
	}
	if spans[1].Name() != "entitystore.get_by_id" || spans[1].Status().Code != codes.Error {
		t.Fatalf("unexpected get span: %s %v", spans[1].Name(), spans[1].Status())
	}
	if len(spans[1].Events()) == 0 {
		t.Fatal("expected the error to be recorded as a span event")
	}

	attrs := attribute.NewSet(spans[1].Attributes()...)
	if v, _ := attrs.Value(AttrEntityID); v.AsString() != "missing" {
		t.Fatalf("entity id attribute = %q", v.AsString())
	}
	if v, _ := attrs.Value(AttrOutcome); v.AsString() != string(OutcomeNotFound) {
		t.Fatalf("outcome attribute = %q", v.AsString())
	}
	if v, _ := attrs.Value(AttrAttempts); v.AsInt64() != 1 {
		t.Fatalf("attempts attribute = %d", v.AsInt64())
	}
}

func TestOTelTracerRecordsRetryAttempts(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	store := NewStore(newFlakyBackend(2),
		WithTracer(NewOTelTracer(provider.Tracer("test"))),
		WithWaitFunc((&waitRecorder{}).wait),
	)
	mustAdd(t, store, person("1", "John", "", "Doe", "Male", "US"))

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	attrs := attribute.NewSet(spans[0].Attributes()...)
	if v, _ := attrs.Value(AttrAttempts); v.AsInt64() != 3 {
		t.Fatalf("attempts attribute = %d, want 3", v.AsInt64())
	}
}

func TestOTelLineTracerExportsSpans(t *testing.T) {
	var buf bytes.Buffer
	tracer, shutdown := NewOTelLineTracer(&buf)
	store := NewStore(nil, WithTracer(tracer))
	mustAdd(t, store, person("7", "John", "", "Doe", "Male", "US"))
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	var got exportedSpan
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &got); err != nil {
		t.Fatalf("decode exported span: %v\n%s", err, buf.String())
	}
	if got.Name != "entitystore.add" || got.Status != codes.Ok.String() {
		t.Fatalf("unexpected span: %+v", got)
	}
	if got.Attributes[string(AttrEntityID)] != "7" || got.Attributes[string(AttrAttempts)] != "1" {
		t.Fatalf("unexpected attributes: %v", got.Attributes)
	}
	if len(got.TraceID) != 32 {
		t.Fatalf("expected a recorded trace id, got %q", got.TraceID)
	}
}

func TestOTelTracerDefaultsToNoop(t *testing.T) {
	ctx, span := NewOTelTracer(nil).Start(context.Background(), OpAdd, "1")
	if ctx == nil {
		t.Fatal("nil context")
	}
	span.End(1, nil)
}

func TestZapLoggerWritesKeyValues(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewZapLogger(&buf, "debug")
	if err != nil {
		t.Fatalf("new zap logger: %v", err)
	}
	store := NewStore(nil, WithLogger(logger))
	mustAdd(t, store, person("42", "John", "", "Doe", "Male", "US"))
	_ = logger.Sync()

	out := buf.String()
	if !strings.Contains(out, `"msg":"attempting operation"`) || !strings.Contains(out, `"id":"42"`) {
		t.Fatalf("expected debug attempt record, got %s", out)
	}

	if _, err := NewZapLogger(&buf, "chatty"); err == nil {
		t.Fatal("expected invalid level error")
	}
	WrapZap(nil).Info("discarded")
}
