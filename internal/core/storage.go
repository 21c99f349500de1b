package core

import (
	"entitystore/internal/infra/persistence/memory"
	"entitystore/internal/infra/persistence/sqlite"
	"entitystore/pkg/domain"
	"fmt"
	"io"
	"strings"
)

// StorageDriver identifies a backend implementation. Every driver is volatile.
type StorageDriver string

const (
	StorageMemory StorageDriver = "memory" // ordered slice + index (default)
	StorageSQLite StorageDriver = "sqlite" // in-memory sqlite database
)

// ParseStorageDriver normalises a driver name; empty selects memory.
func ParseStorageDriver(s string) (StorageDriver, error) {
	switch d := StorageDriver(strings.ToLower(strings.TrimSpace(s))); d {
	case "", StorageMemory:
		return StorageMemory, nil
	case StorageSQLite:
		return StorageSQLite, nil
	default:
		return "", fmt.Errorf("unknown storage driver %q", s)
	}
}

// OpenBackend constructs the backend for driver. dsn is only read by sqlite.
func OpenBackend(driver StorageDriver, dsn string) (domain.Backend, error) {
	switch driver {
	case "", StorageMemory:
		return memory.NewStore(), nil
	case StorageSQLite:
		store, err := sqlite.NewStore(dsn)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", driver)
	}
}

// CloseBackend releases backend resources when the backend holds any.
func CloseBackend(b domain.Backend) error {
	if c, ok := b.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
