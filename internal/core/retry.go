package core

import (
	"context"
	"entitystore/pkg/domain"
	"fmt"
	"math"
	"time"
)

// Default retry budget for mutating store operations.
const (
	DefaultRetryAttempts     = 3
	DefaultRetryInitialDelay = time.Second
	MaxRetryAttempts         = 10
)

// RetryPolicy bounds the attempts of one mutation. The delay after the n-th
// failed attempt is InitialDelay doubled n-1 times.
type RetryPolicy struct {
	Attempts     int
	InitialDelay time.Duration
}

// DefaultRetryPolicy returns three attempts starting at one second.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: DefaultRetryAttempts, InitialDelay: DefaultRetryInitialDelay}
}

func (p RetryPolicy) normalized() RetryPolicy {
	p.Attempts = min(max(p.Attempts, 1), MaxRetryAttempts)
	if p.InitialDelay < 0 {
		p.InitialDelay = 0
	}
	return p
}

// Delays lists the wait that follows each failed attempt. Doubling stops
// short of overflowing time.Duration.
func (p RetryPolicy) Delays() []time.Duration {
	p = p.normalized()
	out := make([]time.Duration, p.Attempts)
	d := p.InitialDelay
	for i := range out {
		out[i] = d
		if d <= math.MaxInt64/2 {
			d *= 2
		}
	}
	return out
}

// WaitFunc blocks for d or until ctx is done.
type WaitFunc func(ctx context.Context, d time.Duration) error

func waitContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// retry runs fn until it succeeds, returns a terminal outcome, or the budget
// is spent. Every failed attempt is followed by its delay, so the default
// policy waits 1s, 2s and 4s before reporting. fn must hold any backend lock
// only for its own duration; no lock is held here while waiting.
func (s *Store) retry(ctx context.Context, operation, id string, fn func(context.Context) error) (int, error) {
	delays := s.retryPolicy.Delays()
	var last error
	for attempt := 1; attempt <= len(delays); attempt++ {
		s.logger.Debug("attempting operation", "operation", operation, "id", id, "attempt", attempt)
		err := runAttempt(ctx, fn)
		if err == nil {
			return attempt, nil
		}
		if domain.IsTerminal(err) {
			return attempt, err
		}
		last = err
		delay := delays[attempt-1]
		s.logger.Warn("operation attempt failed", "operation", operation, "id", id, "attempt", attempt, "delay", delay, "error", err)
		if werr := s.wait(ctx, delay); werr != nil {
			return attempt, &domain.TransientFailureError{Operation: operation, Attempts: attempt, Cause: werr}
		}
	}
	s.logger.Error("operation failed after retries", "operation", operation, "id", id, "attempts", len(delays), "error", last)
	return len(delays), &domain.TransientFailureError{Operation: operation, Attempts: len(delays), Cause: last}
}

// runAttempt converts a panic inside fn into an ordinary attempt failure.
func runAttempt(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("attempt panicked: %v", r)
		}
	}()
	return fn(ctx)
}
