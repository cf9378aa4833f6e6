package writer

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"psimaker/internal/blob"
	"psimaker/pkg/interaction"
)

// BlobOptions configures a BlobWriter.
type BlobOptions struct {
	// Prefix is prepended to every object key.
	Prefix string
	// Run names the run directory; required.
	Run string
	// Format selects the encoder; json when empty.
	Format string
}

// BlobWriter stores every batch as one object at
// <prefix>/<run>/batch-<NNNN>.<ext>.
type BlobWriter struct {
	store  blob.Store
	enc    Encoder
	prefix string
	run    string
	logger *zap.Logger

	mu   sync.Mutex
	seq  int
	keys []string
}

// NewBlobWriter builds a writer for one run.
func NewBlobWriter(store blob.Store, opts BlobOptions, logger *zap.Logger) (*BlobWriter, error) {
	if store == nil {
		return nil, fmt.Errorf("blob writer: store required")
	}
	if opts.Run == "" {
		return nil, fmt.Errorf("blob writer: run required")
	}
	format := opts.Format
	if format == "" {
		format = "json"
	}
	enc, err := Lookup(format)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BlobWriter{store: store, enc: enc, prefix: opts.Prefix, run: opts.Run, logger: logger}, nil
}

// Write encodes records and stores them as the next batch object.
func (w *BlobWriter) Write(ctx context.Context, records []interaction.InteractionRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	seq := w.seq + 1
	var buf bytes.Buffer
	if err := w.enc.Encode(&buf, Batch{Run: w.run, Sequence: seq, Records: records}); err != nil {
		return fmt.Errorf("encode batch %d: %w", seq, err)
	}
	key := w.key(seq)
	info, err := w.store.Put(ctx, key, &buf, blob.PutOptions{
		ContentType: w.enc.ContentType(),
		Metadata: map[string]string{
			"run":     w.run,
			"batch":   strconv.Itoa(seq),
			"records": strconv.Itoa(len(records)),
		},
	})
	if err != nil {
		return fmt.Errorf("store batch %d: %w", seq, err)
	}
	w.seq = seq
	w.keys = append(w.keys, key)
	w.logger.Info("batch written",
		zap.String("key", key),
		zap.Int("batch", seq),
		zap.Int("records", len(records)),
		zap.Int64("bytes", info.Size))
	return nil
}

// Keys returns the object keys written so far.
func (w *BlobWriter) Keys() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.keys...)
}

// Location returns the key prefix all batches of this run share.
func (w *BlobWriter) Location() string {
	return path.Join(w.prefix, w.run) + "/"
}

func (w *BlobWriter) key(seq int) string {
	return path.Join(w.prefix, w.run, fmt.Sprintf("batch-%04d.%s", seq, w.enc.Extension()))
}
