package core

import (
	"context"
	"entitystore/internal/infra/persistence/memory"
	"entitystore/pkg/domain"
	"errors"
	"time"
)

// Store operation names used in logs, traces and metrics.
const (
	OpAdd     = "add"
	OpUpdate  = "update"
	OpDelete  = "delete"
	OpGetByID = "get_by_id"
	OpGetAll  = "get_all"
)

// Store is the record store: the sole authority over the entity collection.
// Mutations are retried with exponential backoff on transient backend
// failures; NotFound and AlreadyExists are returned as-is on first sight.
type Store struct {
	backend     domain.Backend
	retryPolicy RetryPolicy
	logger      Logger
	metrics     MetricsRecorder
	tracer      Tracer
	wait        WaitFunc
	nowFn       func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithRetryPolicy overrides the default three-attempt policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(s *Store) { s.retryPolicy = p.normalized() }
}

// WithLogger sets the structured logger.
func WithLogger(l Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(s *Store) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithTracer sets the tracer.
func WithTracer(t Tracer) Option {
	return func(s *Store) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithWaitFunc replaces the backoff wait, mainly for tests.
func WithWaitFunc(w WaitFunc) Option {
	return func(s *Store) {
		if w != nil {
			s.wait = w
		}
	}
}

// WithNowFunc replaces the clock used for durations.
func WithNowFunc(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.nowFn = now
		}
	}
}

// NewStore wraps backend, defaulting to an in-memory backend when nil.
func NewStore(backend domain.Backend, opts ...Option) *Store {
	if backend == nil {
		backend = memory.NewStore()
	}
	s := &Store{
		backend:     backend,
		retryPolicy: DefaultRetryPolicy(),
		logger:      noopLogger{},
		metrics:     noopMetrics{},
		tracer:      noopTracer{},
		wait:        waitContext,
		nowFn:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RetryPolicy returns the active retry policy.
func (s *Store) RetryPolicy() RetryPolicy {
	return s.retryPolicy
}

// Add stores a new entity. A duplicate id yields domain.ErrAlreadyExists.
func (s *Store) Add(ctx context.Context, entity domain.Entity) error {
	entity = entity.Clone()
	return s.mutate(ctx, OpAdd, entity.ID, func(ctx context.Context) error {
		return s.backend.Insert(ctx, entity)
	})
}

// Update replaces every field except the id of the entity with entity.ID.
func (s *Store) Update(ctx context.Context, entity domain.Entity) error {
	entity = entity.Clone()
	return s.mutate(ctx, OpUpdate, entity.ID, func(ctx context.Context) error {
		return s.backend.Replace(ctx, entity)
	})
}

// Delete removes the entity with the given id.
func (s *Store) Delete(ctx context.Context, id string) error {
	return s.mutate(ctx, OpDelete, id, func(ctx context.Context) error {
		return s.backend.Remove(ctx, id)
	})
}

// GetByID returns a copy of the entity, or domain.ErrNotFound.
func (s *Store) GetByID(ctx context.Context, id string) (domain.Entity, error) {
	ctx, span := s.tracer.Start(ctx, OpGetByID, id)
	start := s.nowFn()
	e, err := s.backend.Get(ctx, id)
	s.metrics.Observe(ctx, OpGetByID, outcomeOf(err), 1, s.nowFn().Sub(start))
	span.End(1, err)
	return e, err
}

// GetAll returns a snapshot of every entity in insertion order.
func (s *Store) GetAll(ctx context.Context) ([]domain.Entity, error) {
	ctx, span := s.tracer.Start(ctx, OpGetAll, "")
	start := s.nowFn()
	all, err := s.backend.List(ctx)
	s.metrics.Observe(ctx, OpGetAll, outcomeOf(err), 1, s.nowFn().Sub(start))
	span.End(1, err)
	return all, err
}

func (s *Store) mutate(ctx context.Context, operation, id string, fn func(context.Context) error) error {
	ctx, span := s.tracer.Start(ctx, operation, id)
	start := s.nowFn()
	attempts, err := s.retry(ctx, operation, id, fn)
	s.metrics.Observe(ctx, operation, outcomeOf(err), attempts, s.nowFn().Sub(start))
	span.End(attempts, err)
	if err == nil {
		s.logger.Info("entity "+operation+" succeeded", "operation", operation, "id", id, "attempts", attempts)
	}
	return err
}

func outcomeOf(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, domain.ErrNotFound):
		return OutcomeNotFound
	case errors.Is(err, domain.ErrAlreadyExists):
		return OutcomeAlreadyExists
	case errors.Is(err, domain.ErrValidationMismatch):
		return OutcomeValidationMismatch
	case errors.Is(err, domain.ErrTransientFailure):
		return OutcomeTransientFailure
	default:
		return OutcomeError
	}
}
