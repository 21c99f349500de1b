package core

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Span attribute keys set by OTelTracer.
const (
	AttrOperation = attribute.Key("entitystore.operation")
	AttrEntityID  = attribute.Key("entitystore.entity_id")
	AttrAttempts  = attribute.Key("entitystore.attempts")
	AttrOutcome   = attribute.Key("entitystore.outcome")
)

// OTelTracer adapts an OpenTelemetry tracer to Tracer.
type OTelTracer struct {
	tracer trace.Tracer
}

// NewOTelTracer wraps t; nil selects a no-op OpenTelemetry tracer.
func NewOTelTracer(t trace.Tracer) *OTelTracer {
	if t == nil {
		t = noop.NewTracerProvider().Tracer("entitystore")
	}
	return &OTelTracer{tracer: t}
}

// NewOTelLineTracer runs an SDK tracer provider that exports every span
// synchronously to w as one JSON line. The returned func shuts the provider
// down.
func NewOTelLineTracer(w io.Writer) (*OTelTracer, func(context.Context) error) {
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(&spanLineExporter{enc: json.NewEncoder(w)}))
	return NewOTelTracer(tp.Tracer("entitystore")), tp.Shutdown
}

// Start implements Tracer.
func (t *OTelTracer) Start(ctx context.Context, operation, entityID string) (context.Context, TraceSpan) {
	attrs := []attribute.KeyValue{AttrOperation.String(operation)}
	if entityID != "" {
		attrs = append(attrs, AttrEntityID.String(entityID))
	}
	ctx, span := t.tracer.Start(ctx, "entitystore."+operation, trace.WithAttributes(attrs...))
	return ctx, otelSpan{span: span}
}

type otelSpan struct {
	span trace.Span
}

func (s otelSpan) End(attempts int, err error) {
	s.span.SetAttributes(AttrAttempts.Int(attempts), AttrOutcome.String(string(outcomeOf(err))))
	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
	} else {
		s.span.SetStatus(codes.Ok, "")
	}
	s.span.End()
}

type exportedSpan struct {
	Name       string            `json:"name"`
	TraceID    string            `json:"trace_id"`
	SpanID     string            `json:"span_id"`
	Status     string            `json:"status"`
	DurationMS float64           `json:"duration_ms"`
	Attributes map[string]string `json:"attributes"`
}

// spanLineExporter is an sdktrace.SpanExporter writing JSON lines.
type spanLineExporter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func (e *spanLineExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, s := range spans {
		if err := ctx.Err(); err != nil {
			return err
		}
		attrs := make(map[string]string, len(s.Attributes()))
		for _, kv := range s.Attributes() {
			attrs[string(kv.Key)] = kv.Value.Emit()
		}
		out := exportedSpan{
			Name:       s.Name(),
			TraceID:    s.SpanContext().TraceID().String(),
			SpanID:     s.SpanContext().SpanID().String(),
			Status:     s.Status().Code.String(),
			DurationMS: float64(s.EndTime().Sub(s.StartTime())) / float64(time.Millisecond),
			Attributes: attrs,
		}
		if err := e.enc.Encode(out); err != nil {
			return err
		}
	}
	return nil
}

func (e *spanLineExporter) Shutdown(context.Context) error { return nil }
