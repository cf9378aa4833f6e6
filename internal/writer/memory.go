package writer

import (
	"context"
	"sync"

	"psimaker/pkg/interaction"
)

// MemoryWriter keeps every batch in memory.
type MemoryWriter struct {
	mu      sync.Mutex
	batches [][]interaction.InteractionRecord
}

// Write implements the pipeline writer contract.
func (m *MemoryWriter) Write(_ context.Context, records []interaction.InteractionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches = append(m.batches, append([]interaction.InteractionRecord(nil), records...))
	return nil
}

// Batches returns the received batches in order.
func (m *MemoryWriter) Batches() [][]interaction.InteractionRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]interaction.InteractionRecord, len(m.batches))
	copy(out, m.batches)
	return out
}

// Records returns every received record in order.
func (m *MemoryWriter) Records() []interaction.InteractionRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []interaction.InteractionRecord
	for _, b := range m.batches {
		out = append(out, b...)
	}
	return out
}
