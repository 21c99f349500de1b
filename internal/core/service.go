package core

import (
	"context"
	"entitystore/pkg/domain"
	"errors"
	"fmt"
)

// Generator produces synthetic entities with fresh unique ids.
type Generator interface {
	Generate(count int) []domain.Entity
}

// Service is the facade the transport layer calls: identifier validation on
// top of the record store plus the query engine.
type Service struct {
	store *Store
	query *QueryEngine
}

// NewService constructs a service backed by store.
func NewService(store *Store) *Service {
	return &Service{store: store, query: NewQueryEngine(store)}
}

// NewInMemoryService creates a service over a fresh in-memory store.
func NewInMemoryService(opts ...Option) *Service {
	return NewService(NewStore(nil, opts...))
}

// Create adds entity and returns the stored copy.
func (s *Service) Create(ctx context.Context, entity domain.Entity) (domain.Entity, error) {
	if entity.ID == "" {
		return domain.Entity{}, s.mismatch(ctx, OpAdd, domain.MismatchError{Field: "id", Want: "non-empty id", Got: ""})
	}
	if err := s.store.Add(ctx, entity); err != nil {
		return domain.Entity{}, err
	}
	return s.store.GetByID(ctx, entity.ID)
}

// Get returns the entity with the given id.
func (s *Service) Get(ctx context.Context, id string) (domain.Entity, error) {
	return s.store.GetByID(ctx, id)
}

// List returns every entity in insertion order.
func (s *Service) List(ctx context.Context) ([]domain.Entity, error) {
	return s.store.GetAll(ctx)
}

// Update replaces the entity addressed by id. An empty payload id adopts id;
// a different one is a domain.ErrValidationMismatch.
func (s *Service) Update(ctx context.Context, id string, entity domain.Entity) error {
	if entity.ID == "" {
		entity.ID = id
	}
	if entity.ID != id {
		return s.mismatch(ctx, OpUpdate, domain.MismatchError{Field: "id", Want: id, Got: entity.ID})
	}
	return s.store.Update(ctx, entity)
}

// Delete removes the entity with the given id.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.store.Delete(ctx, id)
}

// Search delegates to QueryEngine.Search.
func (s *Service) Search(ctx context.Context, text string, page PageRequest) (domain.Page, error) {
	return s.query.Search(ctx, text, page)
}

// Filter delegates to QueryEngine.Filter.
func (s *Service) Filter(ctx context.Context, criteria FilterCriteria, page PageRequest) (domain.Page, error) {
	return s.query.Filter(ctx, criteria, page)
}

// ListSorted delegates to QueryEngine.ListSorted.
func (s *Service) ListSorted(ctx context.Context, key SortKey, page PageRequest) (domain.Page, error) {
	return s.query.ListSorted(ctx, key, page)
}

// RunQuery delegates to QueryEngine.Run.
func (s *Service) RunQuery(ctx context.Context, q Query) (domain.Page, error) {
	return s.query.Run(ctx, q)
}

// Seed adds count generated entities and returns how many were stored.
// Generated ids that already exist are skipped.
func (s *Service) Seed(ctx context.Context, gen Generator, count int) (int, error) {
	if gen == nil {
		return 0, errors.New("seed: nil generator")
	}
	seeded := 0
	for _, e := range gen.Generate(count) {
		err := s.store.Add(ctx, e)
		switch {
		case err == nil:
			seeded++
		case errors.Is(err, domain.ErrAlreadyExists):
			s.store.logger.Warn("seed skipped existing entity", "id", e.ID)
		default:
			return seeded, fmt.Errorf("seed entity %q: %w", e.ID, err)
		}
	}
	s.store.logger.Info("seeded entities", "requested", count, "seeded", seeded)
	return seeded, nil
}

func (s *Service) mismatch(ctx context.Context, operation string, err domain.MismatchError) error {
	s.store.metrics.Observe(ctx, operation, OutcomeValidationMismatch, 0, 0)
	s.store.logger.Warn("rejected "+operation, "operation", operation, "error", err)
	return err
}
