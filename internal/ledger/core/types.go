// Package core defines the run ledger record and the store contract its
// drivers implement.
package core

import (
	"context"
	"errors"
	"time"
)

// Driver identifies a ledger storage backend.
type Driver string

const (
	DriverMemory   Driver = "memory"   // in-memory only (tests / one-shot runs)
	DriverSQLite   Driver = "sqlite"   // embedded sqlite file
	DriverPostgres Driver = "postgres" // PostgreSQL server
)

// Status is the lifecycle state of a conversion run.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further transition follows.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// RunRecord is the ledger entry of one source conversion.
type RunRecord struct {
	ID            string    `json:"id"`
	Source        string    `json:"source"`
	Output        string    `json:"output,omitempty"`
	Status        Status    `json:"status"`
	Rows          int       `json:"rows"`
	Groups        int       `json:"groups"`
	Interactions  int       `json:"interactions"`
	Participants  int       `json:"participants"`
	Flushes       int       `json:"flushes"`
	Warnings      int       `json:"warnings"`
	Skipped       []string  `json:"skipped,omitempty"`
	DroppedGroups []string  `json:"dropped_groups,omitempty"`
	Error         string    `json:"error,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	StartedAt     time.Time `json:"started_at,omitempty"`
	FinishedAt    time.Time `json:"finished_at,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Clone returns a deep copy of r.
func (r RunRecord) Clone() RunRecord {
	r.Skipped = append([]string(nil), r.Skipped...)
	r.DroppedGroups = append([]string(nil), r.DroppedGroups...)
	return r
}

// Store persists run records. Save inserts or replaces by ID.
type Store interface {
	Save(ctx context.Context, rec RunRecord) error
	Get(ctx context.Context, id string) (RunRecord, error)
	// List returns every run ordered by creation time, oldest first.
	List(ctx context.Context) ([]RunRecord, error)
	Close() error
	Driver() Driver
}

var (
	// ErrNotFound is returned by Get for an unknown run.
	ErrNotFound = errors.New("ledger: run not found")
	// ErrInvalidRecord is returned by Save for a record without an ID.
	ErrInvalidRecord = errors.New("ledger: invalid run record")
)
