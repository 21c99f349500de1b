package core

import (
	"context"
	"expvar"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

var expvarSeq uint64

// ExpvarMetricsRecorder publishes per-operation totals via expvar for
// deployments that only want process-local metrics.
type ExpvarMetricsRecorder struct {
	name      string
	mu        sync.Mutex
	durations map[string]float64
	attempts  map[string]int64
	outcomes  map[string]map[Outcome]int64
}

// ExpvarMetricsSnapshot is a read-only copy of the recorded totals.
type ExpvarMetricsSnapshot struct {
	DurationsMS map[string]float64           `json:"durations_ms_total"`
	Attempts    map[string]int64             `json:"attempts_total"`
	Outcomes    map[string]map[Outcome]int64 `json:"outcomes_total"`
	RecordedAt  time.Time                    `json:"recorded_at"`
}

// NewExpvarMetricsRecorder publishes a recorder under name, or under a
// generated unique name when name is empty.
func NewExpvarMetricsRecorder(name string) *ExpvarMetricsRecorder {
	if name == "" {
		name = fmt.Sprintf("entitystore_metrics_%d", atomic.AddUint64(&expvarSeq, 1))
	}
	rec := &ExpvarMetricsRecorder{
		name:      name,
		durations: make(map[string]float64),
		attempts:  make(map[string]int64),
		outcomes:  make(map[string]map[Outcome]int64),
	}
	expvar.Publish(name, expvar.Func(func() any {
		return rec.Snapshot()
	}))
	return rec
}

// Name returns the expvar export name.
func (r *ExpvarMetricsRecorder) Name() string {
	return r.name
}

// Snapshot copies the aggregated totals.
func (r *ExpvarMetricsRecorder) Snapshot() ExpvarMetricsSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	durations := make(map[string]float64, len(r.durations))
	for op, total := range r.durations {
		durations[op] = total
	}
	attempts := make(map[string]int64, len(r.attempts))
	for op, n := range r.attempts {
		attempts[op] = n
	}
	outcomes := make(map[string]map[Outcome]int64, len(r.outcomes))
	for op, counts := range r.outcomes {
		cpy := make(map[Outcome]int64, len(counts))
		for outcome, n := range counts {
			cpy[outcome] = n
		}
		outcomes[op] = cpy
	}
	return ExpvarMetricsSnapshot{
		DurationsMS: durations,
		Attempts:    attempts,
		Outcomes:    outcomes,
		RecordedAt:  time.Now().UTC(),
	}
}

// Observe implements MetricsRecorder.
func (r *ExpvarMetricsRecorder) Observe(_ context.Context, operation string, outcome Outcome, attempts int, duration time.Duration) {
	if operation == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.durations[operation] += float64(duration) / float64(time.Millisecond)
	r.attempts[operation] += int64(attempts)
	if _, ok := r.outcomes[operation]; !ok {
		r.outcomes[operation] = make(map[Outcome]int64, 2)
	}
	r.outcomes[operation][outcome]++
}
