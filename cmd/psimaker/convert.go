package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"psimaker/internal/adapters/conversions"
	"psimaker/internal/blob"
	"psimaker/internal/columns"
	"psimaker/internal/ledger"
	"psimaker/internal/pipeline"
)

type convertOptions struct {
	mapping   string
	features  int
	batchSize int
	format    string
	trace     string
	metrics   bool
}

func newConvertCmd(a *app) *cobra.Command {
	opts := &convertOptions{}
	cmd := &cobra.Command{
		Use:   "convert INPUT...",
		Short: "Convert one or more tables",
		Long: `Converts every INPUT (a file path, or blob://<key> for the configured input
store) in its own run. Runs are processed one at a time; a failed run does
not stop the others.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.convert(cmd, opts, args)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&opts.mapping, "mapping", "m", "", "column mapping file (overrides the config mapping)")
	f.IntVar(&opts.features, "features", 0, "feature slots per participant")
	f.IntVar(&opts.batchSize, "batch-size", 0, "interactions per output batch")
	f.StringVar(&opts.format, "format", "", "output format: json, jsonl or xml")
	f.StringVar(&opts.trace, "trace", "", "write pipeline spans as JSON lines to this file")
	f.BoolVar(&opts.metrics, "metrics", false, "print stage counters after the runs")
	return cmd
}

func (a *app) convert(cmd *cobra.Command, opts *convertOptions, inputs []string) error {
	cfg := a.cfg
	spec := cfg.Mapping
	if opts.mapping != "" {
		loaded, err := columns.LoadMapping(opts.mapping)
		if err != nil {
			return err
		}
		spec = loaded
	}
	if len(spec) == 0 {
		return fmt.Errorf("no column mapping: pass --mapping or set mapping in the config")
	}
	features, batchSize, format := cfg.Pipeline.Features, cfg.Pipeline.BatchSize, cfg.Output.Format
	if cmd.Flags().Changed("features") {
		features = opts.features
	}
	if cmd.Flags().Changed("batch-size") {
		batchSize = opts.batchSize
	}
	if opts.format != "" {
		format = opts.format
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runs, err := ledger.Open(ctx, cfg.Ledger)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer func() { _ = runs.Close() }()
	out, err := blob.Open(ctx, cfg.Output.Config)
	if err != nil {
		return fmt.Errorf("open output store: %w", err)
	}
	var in blob.Store
	if cfg.Input.Store != nil {
		if in, err = blob.Open(ctx, *cfg.Input.Store); err != nil {
			return fmt.Errorf("open input store: %w", err)
		}
	}

	reg := prometheus.NewRegistry()
	prom, err := pipeline.NewPrometheusRecorder(reg)
	if err != nil {
		return err
	}
	deps := conversions.Deps{
		Ledger:  runs,
		Output:  out,
		Input:   in,
		Prefix:  cfg.Output.Prefix,
		Logger:  a.logger,
		Metrics: prom,
		// every input is queued before the first wait
		QueueSize: max(len(inputs), conversions.DefaultQueueSize),
	}
	if opts.trace != "" {
		f, err := os.Create(opts.trace)
		if err != nil {
			return fmt.Errorf("open trace file: %w", err)
		}
		defer func() { _ = f.Close() }()
		deps.Tracer = pipeline.NewJSONTracer(f)
	}
	enricher, err := cfg.Lookup.Enricher(a.logger)
	if err != nil {
		return err
	}
	if enricher != nil {
		deps.Enricher = enricher
	}

	worker, err := conversions.NewWorker(deps)
	if err != nil {
		return err
	}
	worker.Start()
	defer func() { _ = worker.Stop(context.Background()) }()

	ids := make([]string, 0, len(inputs))
	for _, input := range inputs {
		rec, err := worker.Enqueue(ctx, conversions.Job{
			Source:    input,
			Mapping:   spec,
			Input:     cfg.Input.Options(),
			Features:  features,
			BatchSize: batchSize,
			Format:    format,
		})
		if err != nil {
			return fmt.Errorf("queue %s: %w", input, err)
		}
		ids = append(ids, rec.ID)
	}

	var results []ledger.RunRecord
	for _, id := range ids {
		rec, err := worker.Wait(ctx, id)
		if err != nil {
			return err
		}
		results = append(results, rec)
	}
	printRuns(cmd.OutOrStdout(), results)
	if opts.metrics {
		if err := printCounters(cmd.OutOrStdout(), reg); err != nil {
			a.logger.Warn("gather metrics", zap.Error(err))
		}
	}

	var failed int
	for _, rec := range results {
		if rec.Status == ledger.StatusFailed {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d runs failed", failed, len(results))
	}
	return nil
}

func printRuns(w io.Writer, recs []ledger.RunRecord) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSOURCE\tSTATUS\tINTERACTIONS\tFLUSHES\tSKIPPED\tDROPPED\tOUTPUT")
	for _, r := range recs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			r.ID, r.Source, r.Status, r.Interactions, r.Flushes, len(r.Skipped), len(r.DroppedGroups), r.Output)
	}
	_ = tw.Flush()
	for _, r := range recs {
		if r.Error != "" {
			fmt.Fprintf(w, "%s: %s\n", r.ID, r.Error)
		}
	}
}

// printCounters writes the operation/status counters of reg.
func printCounters(w io.Writer, reg prometheus.Gatherer) error {
	families, err := reg.Gather()
	if err != nil {
		return err
	}
	var lines []string
	for _, mf := range families {
		if mf.GetName() != "psimaker_pipeline_operations_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			var op, status string
			for _, lp := range m.GetLabel() {
				switch lp.GetName() {
				case "operation":
					op = lp.GetValue()
				case "status":
					status = lp.GetValue()
				}
			}
			lines = append(lines, fmt.Sprintf("%s\t%s\t%.0f", op, status, m.GetCounter().GetValue()))
		}
	}
	if len(lines) == 0 {
		return errors.New("no pipeline counters recorded")
	}
	sort.Strings(lines)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "OPERATION\tSTATUS\tCOUNT")
	for _, l := range lines {
		fmt.Fprintln(tw, l)
	}
	return tw.Flush()
}
