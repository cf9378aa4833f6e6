package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"psimaker/internal/rows"
	"psimaker/pkg/interaction"
)

func TestProcessTwoGroupsOneFlush(t *testing.T) {
	w := &captureWriter{}
	p := NewProcessor(w)
	src := rows.NewSlice([][]string{
		row("1", "A", "bait"),
		row("1", "B", "prey"),
		row("2", "C", "bait"),
	})

	if err := p.Process(context.Background(), src, testMapping(), 0, 10); err != nil {
		t.Fatalf("process: %v", err)
	}

	if len(w.batches) != 1 || p.Flushes() != 1 {
		t.Fatalf("writer calls = %d, flushes = %d; want 1", len(w.batches), p.Flushes())
	}
	got := w.batches[0]
	if len(got) != 2 || got[0].Number != "1" || got[1].Number != "2" {
		t.Fatalf("unexpected batch %+v", got)
	}

	var names []string
	for _, part := range got[0].Participants {
		names = append(names, part.Name())
	}
	if diff := cmp.Diff([]string{"A", "B"}, names); diff != "" {
		t.Fatalf("participants (-want +got):\n%s", diff)
	}
	for _, rec := range got {
		if rec.Type != interaction.TypePhysicalAssociation {
			t.Fatalf("interaction %s type = %q", rec.Number, rec.Type)
		}
	}
	if len(p.Skipped()) != 0 {
		t.Fatalf("unexpected skipped %v", p.Skipped())
	}

	rep := p.Report()
	if rep.Rows != 3 || rep.Groups != 2 || rep.Interactions != 2 || rep.Participants != 3 {
		t.Fatalf("unexpected report %+v", rep)
	}
}

func TestProcessFlushCountIsCeilOfRecordsOverBatch(t *testing.T) {
	for _, m := range []int{0, 1, 4, 5, 6, 23} {
		for _, n := range []int{1, 2, 5, 10} {
			t.Run(fmt.Sprintf("M=%d/N=%d", m, n), func(t *testing.T) {
				w := &captureWriter{}
				p := NewProcessor(w)
				if err := p.Process(context.Background(), rows.NewSlice(interactions(m)), testMapping(), 0, n); err != nil {
					t.Fatalf("process: %v", err)
				}
				want := (m + n - 1) / n
				if p.Flushes() != want || len(w.batches) != want {
					t.Fatalf("flushes = %d (writer calls %d), want %d", p.Flushes(), len(w.batches), want)
				}
				for i, b := range w.batches {
					if len(b) == 0 || len(b) > n {
						t.Fatalf("batch %d has %d records, want 1..%d", i, len(b), n)
					}
				}
				if got := len(w.records()); got != m {
					t.Fatalf("records written = %d, want %d", got, m)
				}
			})
		}
	}
}

func TestProcessDefaultBatchSize(t *testing.T) {
	w := &captureWriter{}
	p := NewProcessor(w)
	if err := p.Process(context.Background(), rows.NewSlice(interactions(3)), testMapping(), 0, 0); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(w.batches) != 1 || len(w.batches[0]) != 3 {
		t.Fatalf("expected one batch of 3, got %d batches", len(w.batches))
	}
}

func TestProcessRejectedParticipantDoesNotBlockGroup(t *testing.T) {
	w := &captureWriter{}
	p := NewProcessor(w)
	src := rows.NewSlice([][]string{
		row("1", "A", "bait"),
		with(row("1", "B", "prey"), colID, ""),
		row("1", "C", "prey"),
		with(with(row("2", "", "bait"), colName, ""), colOrganism, ""),
		row("3", "D", "bait"),
	})

	if err := p.Process(context.Background(), src, testMapping(), 0, 10); err != nil {
		t.Fatalf("process: %v", err)
	}

	if diff := cmp.Diff([]string{"B", "P-"}, p.Skipped()); diff != "" {
		t.Fatalf("skipped (-want +got):\n%s", diff)
	}
	recs := w.records()
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
	if recs[0].Number != "1" || len(recs[0].Participants) != 2 || recs[1].Number != "3" {
		t.Fatalf("unexpected records %+v", recs)
	}
}

func TestProcessMissingInteractionColumn(t *testing.T) {
	m := testMapping().Map()
	delete(m, interaction.InteractionNumber.Name)
	mapping := interaction.MustColumnMapping(m)

	w := &captureWriter{}
	err := NewProcessor(w).Process(context.Background(), rows.NewSlice(interactions(2)), mapping, 0, 10)
	if !errors.Is(err, ErrNoInteractionColumn) {
		t.Fatalf("expected ErrNoInteractionColumn, got %v", err)
	}
	if len(w.batches) != 0 {
		t.Fatalf("nothing should be written, got %d batches", len(w.batches))
	}
}

func TestProcessInvalidInput(t *testing.T) {
	err := NewProcessor(nil).Process(context.Background(), rows.NewSlice(nil), testMapping(), 0, 1)
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("nil writer: expected ErrInvalidInput, got %v", err)
	}
	err = NewProcessor(&captureWriter{}).Process(context.Background(), rows.NewSlice(nil), testMapping(), -1, 1)
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("negative features: expected ErrInvalidInput, got %v", err)
	}
}

func TestProcessSourceErrorAborts(t *testing.T) {
	w := &captureWriter{}
	src := &failingSource{
		rows: []interaction.RawRow{{Line: 1, Cells: row("1", "A", "bait")}},
		err:  errBoom,
	}
	err := NewProcessor(w).Process(context.Background(), src, testMapping(), 0, 10)
	if !errors.Is(err, errBoom) {
		t.Fatalf("expected source error, got %v", err)
	}
	if len(w.batches) != 0 {
		t.Fatalf("nothing should be written, got %d batches", len(w.batches))
	}
}

func TestProcessWriterErrorAborts(t *testing.T) {
	w := &captureWriter{err: errBoom}
	metrics := &captureMetricsRecorder{}
	p := NewProcessor(w, WithMetrics(metrics))

	err := p.Process(context.Background(), rows.NewSlice(interactions(5)), testMapping(), 0, 2)
	if !errors.Is(err, errBoom) {
		t.Fatalf("expected writer error, got %v", err)
	}
	if p.Flushes() != 0 {
		t.Fatalf("flushes = %d, want 0", p.Flushes())
	}
	if metrics.count("flush", false) != 1 || metrics.count("process", false) != 1 {
		t.Fatalf("expected one failed flush and one failed process observation")
	}
}

func TestProcessEnricherFailureDropsGroup(t *testing.T) {
	w := &captureWriter{}
	enricher := EnricherFunc(func(_ context.Context, p *interaction.ParticipantRecord) error {
		if p.Name() == "B" {
			return errBoom
		}
		p.Set(interaction.ParticipantType, "protein")
		return nil
	})
	p := NewProcessor(w, WithEnricher(enricher))
	src := rows.NewSlice([][]string{
		row("1", "A", "bait"),
		row("1", "B", "prey"),
		row("2", "C", "bait"),
	})

	if err := p.Process(context.Background(), src, testMapping(), 0, 10); err != nil {
		t.Fatalf("process: %v", err)
	}

	recs := w.records()
	if len(recs) != 1 || recs[0].Number != "2" {
		t.Fatalf("expected only interaction 2, got %+v", recs)
	}
	if got := recs[0].Participants[0].Type(); got != "protein" {
		t.Fatalf("enriched type = %q", got)
	}
	if diff := cmp.Diff([]string{"1"}, p.Report().DroppedGroups); diff != "" {
		t.Fatalf("dropped groups (-want +got):\n%s", diff)
	}
}

func TestProcessResetsBetweenRuns(t *testing.T) {
	w := &captureWriter{}
	p := NewProcessor(w)
	src := rows.NewSlice([][]string{with(row("1", "A", "bait"), colID, "")})
	if err := p.Process(context.Background(), src, testMapping(), 0, 10); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if len(p.Skipped()) != 1 {
		t.Fatalf("first run skipped = %v", p.Skipped())
	}

	if err := p.Process(context.Background(), rows.NewSlice(interactions(1)), testMapping(), 0, 10); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(p.Skipped()) != 0 || p.Flushes() != 1 {
		t.Fatalf("second run skipped = %v, flushes = %d", p.Skipped(), p.Flushes())
	}
}

func TestProcessDelimitedSource(t *testing.T) {
	data := "Interaction number,Participant name,Participant ID,Participant ID database,Participant organism,Experimental role\n" +
		"1,A,P1,uniprotkb,9606,bait\n" +
		"1,B,P2,uniprotkb,9606,prey\n" +
		"\n" +
		"2,C,P3,uniprotkb,10090,bait\n"
	src, err := rows.NewDelimitedBytes([]byte(data), rows.Options{Delimiter: ',', HeaderRows: 1})
	if err != nil {
		t.Fatalf("source: %v", err)
	}
	mapping := interaction.MustColumnMapping(map[string]int{
		"Interaction number":      0,
		"Participant name":        1,
		"Participant ID":          2,
		"Participant ID database": 3,
		"Participant organism":    4,
		"Experimental role":       5,
	})

	w := &captureWriter{}
	if err := NewProcessor(w).Process(context.Background(), src, mapping, 0, 1); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(w.batches) != 2 {
		t.Fatalf("expected 2 batches, got %d", len(w.batches))
	}
	if got := w.batches[1][0].Participants[0].Organism(); got != "10090" {
		t.Fatalf("organism = %q", got)
	}
}

func TestProcessIsDeterministic(t *testing.T) {
	input := [][]string{
		with(row("1", "A", "bait"), colParamType, "kd;ic50"),
		with(row("1", "B", "prey"), colParamValue, "1.5;2"),
		row("2", "C", "bait"),
		row("2", "D", "prey"),
		row("2", "E", "prey"),
	}
	run := func() []interaction.InteractionRecord {
		w := &captureWriter{}
		if err := NewProcessor(w).Process(context.Background(), rows.NewSlice(input), testMapping(), 1, 2); err != nil {
			t.Fatalf("process: %v", err)
		}
		return w.records()
	}
	first, second := run(), run()
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("runs differ (-first +second):\n%s", diff)
	}
	if first[1].Type != interaction.TypeAssociation {
		t.Fatalf("three participants should default to %q, got %q", interaction.TypeAssociation, first[1].Type)
	}
}

func TestGroupErrorUnwrap(t *testing.T) {
	err := error(&GroupError{Interaction: "7", Line: 3, Err: io.ErrUnexpectedEOF})
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("GroupError does not unwrap: %v", err)
	}
	if !strings.Contains(err.Error(), `interaction "7" (line 3)`) {
		t.Fatalf("unexpected message %q", err.Error())
	}
}
