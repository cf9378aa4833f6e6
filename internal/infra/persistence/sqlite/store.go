// Package sqlite persists the run ledger to a SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"psimaker/internal/infra/persistence/memory"
	"psimaker/internal/ledger/core"
)

// Store serves reads from memory and writes every saved run to a single
// SQLite table as a JSON payload.
type Store struct {
	*memory.Store
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// NewStore opens (or creates) the ledger at path and loads existing runs.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = "psimaker.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create runs table: %w", err)
	}
	s := &Store{Store: memory.NewStore(), db: db, path: path}
	if err := s.load(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Driver returns the ledger driver identifier.
func (s *Store) Driver() core.Driver { return core.DriverSQLite }

func (s *Store) load() error {
	rows, err := s.db.Query(`SELECT id, payload FROM runs`)
	if err != nil {
		return fmt.Errorf("select runs: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var runs []core.RunRecord
	for rows.Next() {
		var id string
		var payload []byte
		if err := rows.Scan(&id, &payload); err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		var rec core.RunRecord
		if err := json.Unmarshal(payload, &rec); err != nil {
			return fmt.Errorf("decode run %s: %w", id, err)
		}
		runs = append(runs, rec)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate runs: %w", err)
	}
	s.ImportState(runs)
	return nil
}

// Save writes rec to the table, then to memory.
func (s *Store) Save(ctx context.Context, rec core.RunRecord) error {
	prepared, err := s.Prepare(rec)
	if err != nil {
		return err
	}
	data, err := json.Marshal(prepared)
	if err != nil {
		return fmt.Errorf("encode run %s: %w", prepared.ID, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx, `INSERT INTO runs(id,payload) VALUES(?,?) ON CONFLICT(id) DO UPDATE SET payload=excluded.payload`, prepared.ID, data); err != nil {
		return fmt.Errorf("upsert run %s: %w", prepared.ID, err)
	}
	s.Put(prepared)
	return nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }
