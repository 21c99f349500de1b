// Package memory provides the in-memory entity backend used as the default
// volatile store and in tests.
package memory

import (
	"context"
	"entitystore/pkg/domain"
	"sync"
)

// Compile-time contract assertion ensuring memory.Store satisfies the storage seam.
var _ domain.Backend = (*Store)(nil)

// Store keeps entities in insertion order with an id index. All access is
// serialised by mu; values are cloned on the way in and on the way out.
type Store struct {
	mu      sync.RWMutex
	records []domain.Entity
	index   map[string]int
}

// NewStore constructs an empty in-memory backend.
func NewStore() *Store {
	return &Store{index: make(map[string]int)}
}

// Insert appends a new entity unless its id is already taken.
func (s *Store) Insert(_ context.Context, entity domain.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.index[entity.ID]; exists {
		return domain.AlreadyExistsError{ID: entity.ID}
	}
	s.index[entity.ID] = len(s.records)
	s.records = append(s.records, entity.Clone())
	return nil
}

// Replace overwrites every field of the stored entity with the same id.
func (s *Store) Replace(_ context.Context, entity domain.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos, ok := s.index[entity.ID]
	if !ok {
		return domain.NotFoundError{ID: entity.ID}
	}
	s.records[pos] = entity.Clone()
	return nil
}

// Remove deletes the entity and shifts later records down, keeping order.
func (s *Store) Remove(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos, ok := s.index[id]
	if !ok {
		return domain.NotFoundError{ID: id}
	}
	copy(s.records[pos:], s.records[pos+1:])
	s.records[len(s.records)-1] = domain.Entity{}
	s.records = s.records[:len(s.records)-1]
	delete(s.index, id)
	for i := pos; i < len(s.records); i++ {
		s.index[s.records[i].ID] = i
	}
	return nil
}

// Get returns a copy of the entity with the given id.
func (s *Store) Get(_ context.Context, id string) (domain.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pos, ok := s.index[id]
	if !ok {
		return domain.Entity{}, domain.NotFoundError{ID: id}
	}
	return s.records[pos].Clone(), nil
}

// List returns a point-in-time copy of every entity in insertion order.
func (s *Store) List(_ context.Context) ([]domain.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.CloneEntities(s.records), nil
}

// Len reports the number of stored entities.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
