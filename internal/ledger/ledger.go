// Package ledger records every conversion run (source, status, counts,
// skipped participants) so runs can be inspected after the fact.
package ledger

import (
	"context"
	"fmt"
	"os"

	"psimaker/internal/infra/persistence/memory"
	"psimaker/internal/infra/persistence/postgres"
	"psimaker/internal/infra/persistence/sqlite"
	"psimaker/internal/ledger/core"
)

type (
	// Driver identifies a ledger backend.
	Driver = core.Driver
	// Status is the lifecycle state of a run.
	Status = core.Status
	// RunRecord is one ledger entry.
	RunRecord = core.RunRecord
	// Store persists run records.
	Store = core.Store
)

const (
	DriverMemory   = core.DriverMemory
	DriverSQLite   = core.DriverSQLite
	DriverPostgres = core.DriverPostgres

	StatusQueued    = core.StatusQueued
	StatusRunning   = core.StatusRunning
	StatusSucceeded = core.StatusSucceeded
	StatusFailed    = core.StatusFailed
)

var (
	// ErrNotFound is returned by Get for an unknown run.
	ErrNotFound = core.ErrNotFound
	// ErrInvalidRecord is returned by Save for a record without an ID.
	ErrInvalidRecord = core.ErrInvalidRecord
)

// Config selects a backend.
type Config struct {
	Driver Driver `yaml:"driver"`
	Path   string `yaml:"path"` // sqlite file
	DSN    string `yaml:"dsn"`  // postgres connection string
}

// ConfigFromEnv overlays environment variables on base:
//
//	PSIMAKER_LEDGER_DRIVER: memory|sqlite|postgres
//	PSIMAKER_SQLITE_PATH: path to the sqlite file
//	PSIMAKER_POSTGRES_DSN: postgres DSN when driver=postgres
func ConfigFromEnv(base Config) Config {
	if v := os.Getenv("PSIMAKER_LEDGER_DRIVER"); v != "" {
		base.Driver = Driver(v)
	}
	if v := os.Getenv("PSIMAKER_SQLITE_PATH"); v != "" {
		base.Path = v
	}
	if v := os.Getenv("PSIMAKER_POSTGRES_DSN"); v != "" {
		base.DSN = v
	}
	return base
}

// Open constructs the store selected by cfg. An empty driver means sqlite.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case DriverMemory:
		return NewMemory(), nil
	case "", DriverSQLite:
		s, err := sqlite.NewStore(cfg.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverPostgres:
		s, err := postgres.NewStore(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown ledger driver %q", cfg.Driver)
	}
}

// NewMemory returns an in-memory ledger.
func NewMemory() Store { return memory.NewStore() }
