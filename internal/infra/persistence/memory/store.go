// Package memory implements the run ledger in process memory. The SQL
// drivers embed it and snapshot every change to their tables.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"psimaker/internal/ledger/core"
)

// Store keeps run records in a map. It is safe for concurrent use.
type Store struct {
	mu   sync.RWMutex
	runs map[string]core.RunRecord
	now  func() time.Time
}

// NewStore returns an empty ledger.
func NewStore() *Store {
	return &Store{
		runs: make(map[string]core.RunRecord),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Driver returns the ledger driver identifier.
func (s *Store) Driver() core.Driver { return core.DriverMemory }

// Prepare validates rec and stamps its timestamps without storing it.
func (s *Store) Prepare(rec core.RunRecord) (core.RunRecord, error) {
	if strings.TrimSpace(rec.ID) == "" {
		return core.RunRecord{}, fmt.Errorf("%w: id required", core.ErrInvalidRecord)
	}
	if rec.Status == "" {
		rec.Status = core.StatusQueued
	}
	now := s.now()
	s.mu.RLock()
	existing, ok := s.runs[rec.ID]
	s.mu.RUnlock()
	switch {
	case ok && !existing.CreatedAt.IsZero():
		rec.CreatedAt = existing.CreatedAt
	case rec.CreatedAt.IsZero():
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	return rec.Clone(), nil
}

// Save inserts or replaces rec.
func (s *Store) Save(_ context.Context, rec core.RunRecord) error {
	prepared, err := s.Prepare(rec)
	if err != nil {
		return err
	}
	s.Put(prepared)
	return nil
}

// Put stores an already prepared record.
func (s *Store) Put(rec core.RunRecord) {
	s.mu.Lock()
	s.runs[rec.ID] = rec.Clone()
	s.mu.Unlock()
}

// Get returns the run with id.
func (s *Store) Get(_ context.Context, id string) (core.RunRecord, error) {
	s.mu.RLock()
	rec, ok := s.runs[id]
	s.mu.RUnlock()
	if !ok {
		return core.RunRecord{}, fmt.Errorf("%w: %s", core.ErrNotFound, id)
	}
	return rec.Clone(), nil
}

// List returns all runs, oldest first.
func (s *Store) List(_ context.Context) ([]core.RunRecord, error) {
	return s.ExportState(), nil
}

// ExportState returns a copy of every run, oldest first.
func (s *Store) ExportState() []core.RunRecord {
	s.mu.RLock()
	out := make([]core.RunRecord, 0, len(s.runs))
	for _, rec := range s.runs {
		out = append(out, rec.Clone())
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ImportState replaces the ledger content with runs.
func (s *Store) ImportState(runs []core.RunRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = make(map[string]core.RunRecord, len(runs))
	for _, rec := range runs {
		s.runs[rec.ID] = rec.Clone()
	}
}

// Close is a no-op.
func (s *Store) Close() error { return nil }
