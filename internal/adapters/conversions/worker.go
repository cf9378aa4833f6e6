// Package conversions runs source conversions in the background and records
// every run in the ledger.
package conversions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"psimaker/internal/blob"
	"psimaker/internal/columns"
	"psimaker/internal/ledger"
	"psimaker/internal/pipeline"
	"psimaker/internal/rows"
	"psimaker/internal/writer"
)

// BlobScheme prefixes a Job source that names an object in the input store
// instead of a local file.
const BlobScheme = "blob://"

// DefaultQueueSize bounds the number of jobs waiting for the worker.
const DefaultQueueSize = 32

// ErrQueueFull is returned by Enqueue when no more jobs can wait.
var ErrQueueFull = errors.New("conversions: queue full")

// ErrStopped is returned by Enqueue after Stop and recorded on runs that were
// still queued when the worker stopped.
var ErrStopped = errors.New("conversions: worker stopped")

// Job describes one source to convert.
type Job struct {
	// Source is a file path or BlobScheme + key.
	Source    string
	Mapping   columns.MappingSpec
	Input     rows.Options
	Features  int
	BatchSize int
	// Format selects the output encoder; json when empty.
	Format string
}

// Deps wires the worker to its collaborators. Ledger and Output are required.
type Deps struct {
	Ledger    ledger.Store
	Output    blob.Store
	Input     blob.Store
	Prefix    string
	Logger    *zap.Logger
	Metrics   pipeline.MetricsRecorder
	Tracer    pipeline.Tracer
	Enricher  pipeline.Enricher
	QueueSize int
}

// Worker converts queued jobs one at a time.
type Worker struct {
	deps   Deps
	logger *zap.Logger

	queue chan task
	mu    sync.RWMutex
	runs  map[string]*ledger.RunRecord
	done  map[string]chan struct{}

	stopped bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type task struct {
	id  string
	job Job
}

// NewWorker constructs a worker. Call Start to begin processing.
func NewWorker(deps Deps) (*Worker, error) {
	if deps.Ledger == nil {
		return nil, fmt.Errorf("conversions: ledger required")
	}
	if deps.Output == nil {
		return nil, fmt.Errorf("conversions: output store required")
	}
	size := deps.QueueSize
	if size <= 0 {
		size = DefaultQueueSize
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		deps:   deps,
		logger: logger,
		queue:  make(chan task, size),
		runs:   make(map[string]*ledger.RunRecord),
		done:   make(map[string]chan struct{}),
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Start begins processing queued jobs.
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.loop()
}

// Stop signals the worker to halt and waits for the current job to finish.
// Jobs still queued are recorded as failed with ErrStopped.
func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	w.stopped = true
	w.mu.Unlock()
	w.cancel()
	finished := make(chan struct{})
	go func() {
		w.wg.Wait()
		w.drain()
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) drain() {
	for {
		select {
		case t := <-w.queue:
			w.abandon(t)
		default:
			return
		}
	}
}

func (w *Worker) abandon(t task) {
	w.update(t.id, func(r *ledger.RunRecord) {
		r.Status = ledger.StatusFailed
		r.Error = ErrStopped.Error()
		r.FinishedAt = time.Now().UTC()
	})
	w.logger.Warn("conversion abandoned", zap.String("run", t.id), zap.String("source", t.job.Source))
	w.finish(t.id)
}

func (w *Worker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case t := <-w.queue:
			if w.ctx.Err() != nil {
				w.abandon(t)
				return
			}
			w.process(t)
		}
	}
}

// Enqueue records a queued run and schedules it.
func (w *Worker) Enqueue(ctx context.Context, job Job) (ledger.RunRecord, error) {
	if strings.TrimSpace(job.Source) == "" {
		return ledger.RunRecord{}, fmt.Errorf("conversions: source required")
	}
	if len(job.Mapping) == 0 {
		return ledger.RunRecord{}, fmt.Errorf("conversions: mapping required")
	}
	if job.Features < 0 {
		return ledger.RunRecord{}, fmt.Errorf("conversions: negative feature count %d", job.Features)
	}
	if _, err := writer.Lookup(formatOf(job)); err != nil {
		return ledger.RunRecord{}, err
	}
	w.mu.RLock()
	stopped := w.stopped
	w.mu.RUnlock()
	if stopped {
		return ledger.RunRecord{}, ErrStopped
	}

	now := time.Now().UTC()
	rec := ledger.RunRecord{
		ID:        uuid.NewString(),
		Source:    job.Source,
		Status:    ledger.StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := w.deps.Ledger.Save(ctx, rec); err != nil {
		return ledger.RunRecord{}, fmt.Errorf("record run: %w", err)
	}

	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		rec = w.reject(ctx, rec, ErrStopped)
		return rec, ErrStopped
	}
	select {
	case w.queue <- task{id: rec.ID, job: job}:
		stored := rec.Clone()
		w.runs[rec.ID] = &stored
		w.done[rec.ID] = make(chan struct{})
		w.mu.Unlock()
	default:
		w.mu.Unlock()
		rec = w.reject(ctx, rec, ErrQueueFull)
		return rec, ErrQueueFull
	}
	w.logger.Info("conversion queued", zap.String("run", rec.ID), zap.String("source", job.Source))
	return rec, nil
}

func (w *Worker) reject(ctx context.Context, rec ledger.RunRecord, cause error) ledger.RunRecord {
	rec.Status = ledger.StatusFailed
	rec.Error = cause.Error()
	rec.FinishedAt = time.Now().UTC()
	rec.UpdatedAt = rec.FinishedAt
	if err := w.deps.Ledger.Save(ctx, rec); err != nil {
		w.logger.Warn("record rejected run", zap.String("run", rec.ID), zap.Error(err))
	}
	return rec
}

// Get returns a snapshot of a run, falling back to the ledger for runs of
// earlier processes.
func (w *Worker) Get(ctx context.Context, id string) (ledger.RunRecord, error) {
	w.mu.RLock()
	rec, ok := w.runs[id]
	if ok {
		snapshot := rec.Clone()
		w.mu.RUnlock()
		return snapshot, nil
	}
	w.mu.RUnlock()
	return w.deps.Ledger.Get(ctx, id)
}

// Wait blocks until the run reaches a terminal status or ctx ends.
func (w *Worker) Wait(ctx context.Context, id string) (ledger.RunRecord, error) {
	w.mu.RLock()
	ch, ok := w.done[id]
	w.mu.RUnlock()
	if ok {
		select {
		case <-ch:
		case <-ctx.Done():
			return ledger.RunRecord{}, ctx.Err()
		}
	}
	rec, err := w.Get(ctx, id)
	if err != nil {
		return ledger.RunRecord{}, err
	}
	if !rec.Status.Terminal() {
		return rec, fmt.Errorf("conversions: run %s is %s and not handled by this worker", id, rec.Status)
	}
	return rec, nil
}

func (w *Worker) process(t task) {
	log := w.logger.With(zap.String("run", t.id), zap.String("source", t.job.Source))
	w.update(t.id, func(r *ledger.RunRecord) {
		r.Status = ledger.StatusRunning
		r.StartedAt = time.Now().UTC()
	})
	log.Info("conversion started")

	report, location, err := w.convert(t)
	w.update(t.id, func(r *ledger.RunRecord) {
		r.Output = location
		r.Rows = report.Rows
		r.Groups = report.Groups
		r.Interactions = report.Interactions
		r.Participants = report.Participants
		r.Flushes = report.Flushes
		r.Warnings = report.Warnings
		r.Skipped = append([]string(nil), report.Skipped...)
		r.DroppedGroups = append([]string(nil), report.DroppedGroups...)
		r.FinishedAt = time.Now().UTC()
		if err != nil {
			r.Status = ledger.StatusFailed
			r.Error = err.Error()
			return
		}
		r.Status = ledger.StatusSucceeded
	})
	if err != nil {
		log.Error("conversion failed", zap.Error(err))
	} else {
		log.Info("conversion finished",
			zap.Int("interactions", report.Interactions),
			zap.Int("flushes", report.Flushes),
			zap.Int("skipped", len(report.Skipped)))
	}

	w.finish(t.id)
}

func (w *Worker) finish(id string) {
	w.mu.Lock()
	if ch, ok := w.done[id]; ok {
		close(ch)
		delete(w.done, id)
	}
	w.mu.Unlock()
}

func (w *Worker) convert(t task) (pipeline.Report, string, error) {
	src, closeSrc, err := w.open(t.job)
	if err != nil {
		return pipeline.Report{}, "", err
	}
	defer closeSrc()

	mapping, err := t.job.Mapping.Build(rows.HeaderOf(src))
	if err != nil {
		return pipeline.Report{}, "", err
	}
	out, err := writer.NewBlobWriter(w.deps.Output, writer.BlobOptions{
		Prefix: w.deps.Prefix,
		Run:    t.id,
		Format: formatOf(t.job),
	}, w.logger)
	if err != nil {
		return pipeline.Report{}, "", err
	}
	opts := []pipeline.Option{
		pipeline.WithLogger(w.logger.With(zap.String("run", t.id))),
		pipeline.WithMetrics(w.deps.Metrics),
		pipeline.WithTracer(w.deps.Tracer),
	}
	if w.deps.Enricher != nil {
		opts = append(opts, pipeline.WithEnricher(w.deps.Enricher))
	}
	p := pipeline.NewProcessor(out, opts...)
	err = p.Process(w.ctx, src, mapping, t.job.Features, t.job.BatchSize)
	return p.Report(), out.Location(), err
}

func (w *Worker) open(job Job) (rows.Source, func(), error) {
	if key, ok := strings.CutPrefix(job.Source, BlobScheme); ok {
		if w.deps.Input == nil {
			return nil, nil, fmt.Errorf("conversions: no input store for %s", job.Source)
		}
		d, err := rows.OpenBlob(w.ctx, w.deps.Input, key, job.Input)
		if err != nil {
			return nil, nil, err
		}
		return d, func() { _ = d.Close() }, nil
	}
	d, err := rows.OpenFile(job.Source, job.Input)
	if err != nil {
		return nil, nil, err
	}
	return d, func() { _ = d.Close() }, nil
}

func (w *Worker) update(id string, fn func(*ledger.RunRecord)) {
	w.mu.Lock()
	rec, ok := w.runs[id]
	if !ok {
		w.mu.Unlock()
		return
	}
	fn(rec)
	rec.UpdatedAt = time.Now().UTC()
	snapshot := rec.Clone()
	w.mu.Unlock()
	// the ledger write must survive a Stop issued mid-run
	if err := w.deps.Ledger.Save(context.WithoutCancel(w.ctx), snapshot); err != nil {
		w.logger.Warn("record run status", zap.String("run", id), zap.String("status", string(snapshot.Status)), zap.Error(err))
	}
}

func formatOf(job Job) string {
	if job.Format == "" {
		return "json"
	}
	return job.Format
}
