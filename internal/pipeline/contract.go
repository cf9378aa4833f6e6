// Package pipeline turns a row source into interaction records:
//
//	rows.Source → Grouper → Assembler → Synthesizer → Emitter → Writer
//
// Every stage runs synchronously on the caller's goroutine; data only flows
// downstream. The Processor wires the stages for one source.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"psimaker/pkg/interaction"
)

// DefaultBatchSize is used when Process is called with a batch size <= 0.
const DefaultBatchSize = 1000

// Writer receives finished interaction records. It is invoked only when the
// emitter flushes, once per batch.
type Writer interface {
	Write(ctx context.Context, records []interaction.InteractionRecord) error
}

// WriterFunc adapts a function to Writer.
type WriterFunc func(ctx context.Context, records []interaction.InteractionRecord) error

// Write implements Writer.
func (f WriterFunc) Write(ctx context.Context, records []interaction.InteractionRecord) error {
	return f(ctx, records)
}

// Enricher resolves externally curated values (ontology terms, taxonomy ids)
// on an accepted participant before it joins its interaction. An error drops
// the whole interaction group.
type Enricher interface {
	Enrich(ctx context.Context, p *interaction.ParticipantRecord) error
}

// EnricherFunc adapts a function to Enricher.
type EnricherFunc func(ctx context.Context, p *interaction.ParticipantRecord) error

// Enrich implements Enricher.
func (f EnricherFunc) Enrich(ctx context.Context, p *interaction.ParticipantRecord) error {
	return f(ctx, p)
}

var (
	// ErrNoInteractionColumn aborts a run whose mapping lacks the interaction number.
	ErrNoInteractionColumn = errors.New("pipeline: interaction number column not mapped")
	// ErrInvalidInput reports a missing collaborator or a bad numeric option.
	ErrInvalidInput = errors.New("pipeline: invalid input")
)

// GroupError reports a failure confined to one interaction group. The
// processor drops the group and continues with the next one.
type GroupError struct {
	Interaction string
	Line        int
	Err         error
}

func (e *GroupError) Error() string {
	return fmt.Sprintf("interaction %q (line %d): %v", e.Interaction, e.Line, e.Err)
}

func (e *GroupError) Unwrap() error { return e.Err }
