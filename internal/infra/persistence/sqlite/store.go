// Package sqlite provides an entity backend on an in-memory SQLite database.
// It exists to exercise the storage seam with a real driver whose failures
// (busy, locked, closed) surface as retryable errors; it never writes a file.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"entitystore/pkg/domain"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

// Compile-time contract assertion ensuring the store satisfies the storage seam.
var _ domain.Backend = (*Store)(nil)

// DefaultDSN opens a private in-memory database.
const DefaultDSN = ":memory:"

// ErrNonVolatileDSN rejects DSNs that would place the database on disk.
var ErrNonVolatileDSN = errors.New("sqlite dsn must be in-memory")

const schema = `CREATE TABLE IF NOT EXISTS entities (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	payload BLOB NOT NULL
)`

// Store keeps entities as JSON payloads in a single table. seq preserves
// insertion order; one pooled connection keeps the in-memory database alive
// and serialises every statement.
type Store struct {
	db  *sql.DB
	dsn string
}

// NewStore opens the database described by dsn (DefaultDSN when empty) and
// ensures the entities table exists.
func NewStore(dsn string) (*Store, error) {
	if dsn == "" {
		dsn = DefaultDSN
	}
	if !isVolatile(dsn) {
		return nil, fmt.Errorf("%w: %q", ErrNonVolatileDSN, dsn)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create entities table: %w", err)
	}
	return &Store{db: db, dsn: dsn}, nil
}

func isVolatile(dsn string) bool {
	return dsn == ":memory:" || strings.Contains(dsn, "mode=memory")
}

// Insert stores a new entity unless its id is already taken.
func (s *Store) Insert(ctx context.Context, entity domain.Entity) (retErr error) {
	payload, err := json.Marshal(entity)
	if err != nil {
		return fmt.Errorf("encode entity %q: %w", entity.ID, err)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM entities WHERE id = ?`, entity.ID).Scan(&exists)
	switch {
	case err == nil:
		return domain.AlreadyExistsError{ID: entity.ID}
	case !errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("check entity %q: %w", entity.ID, err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO entities(id, payload) VALUES(?, ?)`, entity.ID, payload); err != nil {
		return fmt.Errorf("insert entity %q: %w", entity.ID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert: %w", err)
	}
	return nil
}

// Replace overwrites the payload of an existing entity.
func (s *Store) Replace(ctx context.Context, entity domain.Entity) error {
	payload, err := json.Marshal(entity)
	if err != nil {
		return fmt.Errorf("encode entity %q: %w", entity.ID, err)
	}
	res, err := s.db.ExecContext(ctx, `UPDATE entities SET payload = ? WHERE id = ?`, payload, entity.ID)
	if err != nil {
		return fmt.Errorf("update entity %q: %w", entity.ID, err)
	}
	return requireAffected(res, entity.ID)
}

// Remove deletes the entity with the given id.
func (s *Store) Remove(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM entities WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete entity %q: %w", id, err)
	}
	return requireAffected(res, id)
}

func requireAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected for %q: %w", id, err)
	}
	if n == 0 {
		return domain.NotFoundError{ID: id}
	}
	return nil
}

// Get decodes the entity with the given id.
func (s *Store) Get(ctx context.Context, id string) (domain.Entity, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM entities WHERE id = ?`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Entity{}, domain.NotFoundError{ID: id}
	}
	if err != nil {
		return domain.Entity{}, fmt.Errorf("select entity %q: %w", id, err)
	}
	return decode(id, payload)
}

// List decodes every entity ordered by insertion sequence.
func (s *Store) List(ctx context.Context) ([]domain.Entity, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, payload FROM entities ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("select entities: %w", err)
	}
	defer func() { _ = rows.Close() }()
	out := []domain.Entity{}
	for rows.Next() {
		var (
			id      string
			payload []byte
		)
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		e, err := decode(id, payload)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entities: %w", err)
	}
	return out, nil
}

func decode(id string, payload []byte) (domain.Entity, error) {
	var e domain.Entity
	if err := json.Unmarshal(payload, &e); err != nil {
		return domain.Entity{}, fmt.Errorf("decode entity %q: %w", id, err)
	}
	return e, nil
}

// Close releases the database; the in-memory contents are discarded.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// DSN returns the data source name the store was opened with.
func (s *Store) DSN() string { return s.dsn }
