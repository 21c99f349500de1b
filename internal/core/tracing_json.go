package core

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// SpanRecord is one finished store operation as logged by JSONTracer.
type SpanRecord struct {
	Operation  string    `json:"operation"`
	EntityID   string    `json:"entity_id,omitempty"`
	Outcome    Outcome   `json:"outcome"`
	Attempts   int       `json:"attempts"`
	DurationMS float64   `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	Start      time.Time `json:"start"`
}

// JSONTracer logs every finished span as one JSON line and keeps the records
// in memory. A nil writer only keeps them.
type JSONTracer struct {
	now func() time.Time

	mu      sync.Mutex
	records []SpanRecord
	enc     *json.Encoder
}

// NewJSONTracer returns a tracer writing to w.
func NewJSONTracer(w io.Writer) *JSONTracer {
	t := &JSONTracer{now: time.Now}
	if w != nil {
		t.enc = json.NewEncoder(w)
	}
	return t
}

// Records returns the finished spans in completion order.
func (t *JSONTracer) Records() []SpanRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]SpanRecord(nil), t.records...)
}

// Start implements Tracer.
func (t *JSONTracer) Start(ctx context.Context, operation, entityID string) (context.Context, TraceSpan) {
	return ctx, &jsonSpan{
		tracer: t,
		rec:    SpanRecord{Operation: operation, EntityID: entityID, Start: t.now().UTC()},
	}
}

type jsonSpan struct {
	tracer *JSONTracer
	rec    SpanRecord
}

func (s *jsonSpan) End(attempts int, err error) {
	s.rec.Attempts = attempts
	s.rec.Outcome = outcomeOf(err)
	s.rec.DurationMS = float64(s.tracer.now().Sub(s.rec.Start)) / float64(time.Millisecond)
	if err != nil {
		s.rec.Error = err.Error()
	}
	s.tracer.record(s.rec)
}

func (t *JSONTracer) record(rec SpanRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.records = append(t.records, rec)
	if t.enc != nil {
		_ = t.enc.Encode(rec)
	}
}
