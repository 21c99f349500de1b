package core

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
)

// Logger is the structured logging contract used by the store and service.
// *slog.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// NewSlogLogger builds a log/slog logger writing to w. level is one of
// debug, info, warn, error; format is text or json.
func NewSlogLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if level != "" {
		if err := lvl.UnmarshalText([]byte(level)); err != nil {
			return nil, fmt.Errorf("log level %q: %w", level, err)
		}
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}

// Outcome classifies how a store or service operation ended.
type Outcome string

// Operation outcomes recorded by metrics.
const (
	OutcomeSuccess            Outcome = "success"
	OutcomeNotFound           Outcome = "not_found"
	OutcomeAlreadyExists      Outcome = "already_exists"
	OutcomeTransientFailure   Outcome = "transient_failure"
	OutcomeValidationMismatch Outcome = "validation_mismatch"
	OutcomeError              Outcome = "error"
)

// MetricsRecorder receives one observation per completed operation. attempts
// is the number of backend calls made, zero when none was made.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, outcome Outcome, attempts int, duration time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) Observe(context.Context, string, Outcome, int, time.Duration) {}

// Tracer starts spans around store operations. entityID is empty for
// operations that span the whole collection.
type Tracer interface {
	Start(ctx context.Context, operation, entityID string) (context.Context, TraceSpan)
}

// TraceSpan is ended exactly once with the number of backend calls made and
// the operation's error, if any.
type TraceSpan interface {
	End(attempts int, err error)
}

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, _, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End(int, error) {}
