package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"psimaker/pkg/interaction"
)

// Emitter buffers interaction records and hands them to a Writer in batches
// of at most max records.
type Emitter struct {
	w       Writer
	max     int
	buf     []interaction.InteractionRecord
	flushes int
	written int
	metrics MetricsRecorder
	logger  *zap.Logger
}

// NewEmitter builds an emitter. max <= 0 selects DefaultBatchSize.
func NewEmitter(w Writer, max int, metrics MetricsRecorder, logger *zap.Logger) *Emitter {
	if max <= 0 {
		max = DefaultBatchSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Emitter{w: w, max: max, metrics: metrics, logger: logger}
}

// Add appends rec and flushes once the buffer holds max records.
func (e *Emitter) Add(ctx context.Context, rec interaction.InteractionRecord) error {
	e.buf = append(e.buf, rec)
	if len(e.buf) >= e.max {
		return e.Flush(ctx)
	}
	return nil
}

// Close flushes whatever is left. An empty buffer does not reach the writer.
func (e *Emitter) Close(ctx context.Context) error {
	if len(e.buf) == 0 {
		return nil
	}
	return e.Flush(ctx)
}

// Flush hands the buffer to the writer in one call and clears it on success.
// On failure the buffer is kept so the caller can inspect it.
func (e *Emitter) Flush(ctx context.Context) error {
	if len(e.buf) == 0 {
		return nil
	}
	start := time.Now()
	batch := e.buf
	err := e.w.Write(ctx, batch)
	if e.metrics != nil {
		e.metrics.Observe(ctx, "flush", err == nil, time.Since(start))
	}
	if err != nil {
		return fmt.Errorf("flush batch %d: %w", e.flushes+1, err)
	}
	e.flushes++
	e.written += len(batch)
	e.logger.Debug("batch flushed", zap.Int("batch", e.flushes), zap.Int("records", len(batch)))
	e.buf = make([]interaction.InteractionRecord, 0, min(e.max, 64))
	return nil
}

// Pending returns the number of buffered records.
func (e *Emitter) Pending() int { return len(e.buf) }

// Flushes returns the number of successful flushes.
func (e *Emitter) Flushes() int { return e.flushes }

// Written returns the number of records handed to the writer.
func (e *Emitter) Written() int { return e.written }
