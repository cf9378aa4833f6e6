package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"psimaker/internal/columns"
	"psimaker/internal/rows"
	"psimaker/pkg/interaction"
)

// Report summarises one Process call.
type Report struct {
	Rows          int      `json:"rows"`
	RowsSkipped   int      `json:"rows_skipped"`
	ShortReads    int      `json:"short_reads"`
	Groups        int      `json:"groups"`
	Interactions  int      `json:"interactions"`
	Participants  int      `json:"participants"`
	Skipped       []string `json:"skipped,omitempty"`
	DroppedGroups []string `json:"dropped_groups,omitempty"`
	Flushes       int      `json:"flushes"`
	Warnings      int      `json:"warnings"`
}

// Option configures a Processor.
type Option func(*Processor)

// WithLogger sets the structured logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Processor) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithMetrics sets the recorder observing group, flush and process stages.
func WithMetrics(m MetricsRecorder) Option {
	return func(p *Processor) {
		if m != nil {
			p.metrics = m
		}
	}
}

// WithTracer sets the tracer opening a span per Process call.
func WithTracer(t Tracer) Option {
	return func(p *Processor) {
		if t != nil {
			p.tracer = t
		}
	}
}

// WithEnricher installs an enricher run on every accepted participant.
func WithEnricher(e Enricher) Option {
	return func(p *Processor) { p.enricher = e }
}

// Processor drives one source at a time through the pipeline stages. It is
// not safe for concurrent use.
type Processor struct {
	writer   Writer
	logger   *zap.Logger
	metrics  MetricsRecorder
	tracer   Tracer
	enricher Enricher

	report Report
}

// NewProcessor builds a processor flushing to w.
func NewProcessor(w Writer, opts ...Option) *Processor {
	p := &Processor{
		writer:  w,
		logger:  zap.NewNop(),
		metrics: noopMetrics{},
		tracer:  noopTracer{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process reads src to exhaustion and hands every synthesized interaction to
// the writer in batches of batchSize (DefaultBatchSize when <= 0). Each
// participant row is resolved for feature indices 0..features-1.
//
// A missing interaction number column, a source error or a writer error
// aborts the run. Rejected participants and dropped groups are reported
// through Skipped and Report.
func (p *Processor) Process(ctx context.Context, src rows.Source, mapping interaction.ColumnMapping, features, batchSize int) (err error) {
	p.report = Report{}
	start := time.Now()
	ctx, span := p.tracer.Start(ctx, "process")
	defer func() {
		span.End(err)
		p.metrics.Observe(ctx, "process", err == nil, time.Since(start))
	}()

	if p.writer == nil || src == nil {
		return fmt.Errorf("%w: writer and source are required", ErrInvalidInput)
	}
	if features < 0 {
		return fmt.Errorf("%w: feature count %d", ErrInvalidInput, features)
	}
	if !mapping.Has(interaction.InteractionNumber.Name) {
		return ErrNoInteractionColumn
	}

	resolver := columns.NewResolver(mapping, p.logger)
	grouper := NewGrouper(src, resolver, mapping.MinWidth(), p.logger)
	assembler := NewAssembler(resolver, features, p.enricher, p.logger)
	synth := NewSynthesizer(p.logger)
	emitter := NewEmitter(p.writer, batchSize, p.metrics, p.logger)

	defer func() {
		p.report.Rows = grouper.RowsRead()
		p.report.RowsSkipped = grouper.RowsSkipped()
		p.report.ShortReads = resolver.ShortReads()
		p.report.Flushes = emitter.Flushes()
		p.report.Warnings = assembler.Warnings() + synth.Warnings()
	}()

	for {
		grp, err := grouper.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		p.report.Groups++
		rec, ok, err := p.group(ctx, assembler, synth, grp)
		if err != nil {
			var gerr *GroupError
			if errors.As(err, &gerr) {
				p.report.DroppedGroups = append(p.report.DroppedGroups, grp.Key)
				p.logger.Warn("interaction dropped", zap.String("interaction", grp.Key), zap.Error(err))
				continue
			}
			return err
		}
		if !ok {
			continue
		}
		p.report.Interactions++
		p.report.Participants += len(rec.Participants)
		if err := emitter.Add(ctx, rec); err != nil {
			return err
		}
	}
	if err := emitter.Close(ctx); err != nil {
		return err
	}
	p.logger.Info("source processed",
		zap.Int("groups", p.report.Groups),
		zap.Int("interactions", p.report.Interactions),
		zap.Int("skipped", len(p.report.Skipped)),
		zap.Int("flushes", emitter.Flushes()))
	return nil
}

func (p *Processor) group(ctx context.Context, a *Assembler, s *Synthesizer, grp Group) (rec interaction.InteractionRecord, ok bool, err error) {
	start := time.Now()
	defer func() {
		p.metrics.Observe(ctx, "group", err == nil, time.Since(start))
	}()
	accepted, skipped, err := a.Assemble(ctx, grp)
	p.report.Skipped = append(p.report.Skipped, skipped...)
	if err != nil {
		return interaction.InteractionRecord{}, false, err
	}
	rec, ok = s.Synthesize(grp.Key, accepted)
	if !ok {
		p.logger.Warn("interaction has no accepted participants",
			zap.String("interaction", grp.Key),
			zap.Int("line", grp.FirstLine()))
	}
	return rec, ok, nil
}

// Skipped returns the identifiers of participants rejected by the last run.
func (p *Processor) Skipped() []string {
	out := make([]string, len(p.report.Skipped))
	copy(out, p.report.Skipped)
	return out
}

// Flushes returns the number of writer calls made by the last run.
func (p *Processor) Flushes() int { return p.report.Flushes }

// Report returns the summary of the last run.
func (p *Processor) Report() Report {
	r := p.report
	r.Skipped = append([]string(nil), p.report.Skipped...)
	r.DroppedGroups = append([]string(nil), p.report.DroppedGroups...)
	return r
}
