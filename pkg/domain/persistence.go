package domain

import "context"

// Backend is the storage seam under the record store. Implementations must
// perform each call atomically with respect to a single record and return
// clones, never references into their own storage.
//
// Insert returns AlreadyExistsError for a duplicate id. Replace, Remove and
// Get return NotFoundError for a missing id. Any other error is treated by the
// store as a transient fault and retried.
type Backend interface {
	Insert(ctx context.Context, entity Entity) error
	Replace(ctx context.Context, entity Entity) error
	Remove(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (Entity, error)
	// List returns every entity in insertion order.
	List(ctx context.Context) ([]Entity, error)
}
