package pipeline

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"psimaker/internal/columns"
	"psimaker/internal/rows"
	"psimaker/pkg/interaction"
)

func collectGroups(t *testing.T, input [][]string) ([]Group, *Grouper) {
	t.Helper()
	mapping := testMapping()
	g := NewGrouper(rows.NewSlice(input), columns.NewResolver(mapping, nil), mapping.MinWidth(), nil)
	var out []Group
	for {
		grp, err := g.Next(context.Background())
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("next group: %v", err)
		}
		out = append(out, grp)
	}
	return out, g
}

func groupKeys(groups []Group) []string {
	keys := make([]string, len(groups))
	for i, g := range groups {
		keys[i] = g.Key
	}
	return keys
}

func TestGrouperSplitsOnValueChange(t *testing.T) {
	groups, _ := collectGroups(t, [][]string{
		row("1", "A", "bait"),
		row("1", "B", "prey"),
		row("2", "C", "bait"),
		row("1", "D", "bait"),
	})
	if diff := cmp.Diff([]string{"1", "2", "1"}, groupKeys(groups)); diff != "" {
		t.Fatalf("group keys (-want +got):\n%s", diff)
	}
	if len(groups[0].Rows) != 2 || groups[0].FirstLine() != 1 {
		t.Fatalf("unexpected first group %+v", groups[0])
	}
}

func TestGrouperIsIdempotent(t *testing.T) {
	input := [][]string{
		row("7", "A", "bait"),
		row("7", "B", "prey"),
		row("8", "C", "bait"),
		row("9", "D", "bait"),
		row("9", "E", "prey"),
	}
	first, _ := collectGroups(t, input)
	second, _ := collectGroups(t, input)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("grouping differs between runs:\n%s", diff)
	}
	total := 0
	for _, g := range first {
		total += len(g.Rows)
	}
	if total != len(input) {
		t.Fatalf("grouped %d rows, want %d", total, len(input))
	}
}

func TestGrouperSkipsNarrowAndBlankRows(t *testing.T) {
	groups, g := collectGroups(t, [][]string{
		row("1", "A", "bait"),
		{"2", "X"},
		make([]string, testWidth),
		row("1", "B", "prey"),
	})
	if diff := cmp.Diff([]string{"1"}, groupKeys(groups)); diff != "" {
		t.Fatalf("narrow row must not close the group:\n%s", diff)
	}
	if len(groups[0].Rows) != 2 {
		t.Fatalf("expected 2 rows in group, got %d", len(groups[0].Rows))
	}
	if g.RowsSkipped() != 2 || g.RowsRead() != 4 {
		t.Fatalf("read=%d skipped=%d, want 4 and 2", g.RowsRead(), g.RowsSkipped())
	}
}

func TestGrouperEmptySource(t *testing.T) {
	groups, _ := collectGroups(t, nil)
	if len(groups) != 0 {
		t.Fatalf("expected no groups, got %d", len(groups))
	}
}

func TestAssemblerRoleDependentFields(t *testing.T) {
	mapping := testMapping()
	a := NewAssembler(columns.NewResolver(mapping, nil), 0, nil, nil)
	grp := Group{Key: "1", Rows: []interaction.RawRow{
		{Line: 1, Cells: with(with(row("1", "A", "bait"), colMethodBait, "tap"), colMethodPrey, "ignored")},
		{Line: 2, Cells: with(with(row("1", "B", " prey "), colMethodBait, "ignored"), colMethodPrey, "western blot")},
		{Line: 3, Cells: with(row("1", "C", ""), colMethodBait, "ignored")},
	}}

	accepted, skipped, err := a.Assemble(context.Background(), grp)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if len(skipped) != 0 || len(accepted) != 3 {
		t.Fatalf("accepted=%d skipped=%v", len(accepted), skipped)
	}
	method := interaction.ParticipantIdentificationMethod
	if got := accepted[0].Get(method); got != "tap" {
		t.Fatalf("bait method = %q", got)
	}
	if got := accepted[1].Get(method); got != "western blot" {
		t.Fatalf("prey method = %q", got)
	}
	if _, ok := accepted[2].Fields[method.Name]; ok {
		t.Fatalf("row without role must not resolve role-dependent fields")
	}
}

func TestAssemblerFeatures(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	mapping := testMapping()
	a := NewAssembler(columns.NewResolver(mapping, zap.New(core)), 2, nil, zap.New(core))
	cells := row("1", "A", "bait")
	cells[colFeatureLabel] = "binding site"
	cells[colFeatureXref] = "IPR1;IPR2"
	cells[colFeatureXrefDB] = "interpro"

	accepted, _, err := a.Assemble(context.Background(), Group{Key: "1", Rows: []interaction.RawRow{{Line: 4, Cells: cells}}})
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	feats := accepted[0].Features
	if len(feats) != 1 || feats[0].Index != 0 {
		t.Fatalf("expected one feature at index 0, got %+v", feats)
	}
	want := []interaction.Xref{{ID: "IPR1", Database: "interpro"}, {ID: "IPR2"}}
	if diff := cmp.Diff(want, feats[0].Xrefs()); diff != "" {
		t.Fatalf("feature xrefs (-want +got):\n%s", diff)
	}
	if a.Warnings() != 1 {
		t.Fatalf("expected one padding warning, got %d", a.Warnings())
	}
	if logs.FilterMessage("feature column not mapped").Len() == 0 {
		t.Fatalf("expected unmapped feature columns for index 1 to be reported")
	}
}

func TestIdentifierFallback(t *testing.T) {
	p := interaction.ParticipantRecord{Line: 12, Fields: map[string]string{}}
	if got := Identifier(p); got != "line 12" {
		t.Fatalf("identifier = %q", got)
	}
	p.Set(interaction.ParticipantID, "Q1")
	if got := Identifier(p); got != "Q1" {
		t.Fatalf("identifier = %q", got)
	}
	p.Set(interaction.ParticipantName, "egfr")
	if got := Identifier(p); got != "egfr" {
		t.Fatalf("identifier = %q", got)
	}
}

func participant(fields map[string]string) interaction.ParticipantRecord {
	return interaction.ParticipantRecord{Fields: fields}
}

func TestSynthesizerScalarsAndType(t *testing.T) {
	s := NewSynthesizer(nil)
	if _, ok := s.Synthesize("1", nil); ok {
		t.Fatalf("no participants must yield no record")
	}

	parts := []interaction.ParticipantRecord{
		participant(map[string]string{"Interaction detection method": "tap", "Host organism": "9606"}),
		participant(map[string]string{"Interaction detection method": "", "Interaction type": "direct interaction"}),
	}
	rec, ok := s.Synthesize("5", parts)
	if !ok {
		t.Fatalf("expected a record")
	}
	if rec.DetectionMethod != "tap" || rec.HostOrganism != "9606" || rec.Type != "direct interaction" {
		t.Fatalf("unexpected scalars %+v", rec)
	}
	if s.Warnings() != 1 {
		t.Fatalf("missing figure legend should warn once, got %d", s.Warnings())
	}

	three := []interaction.ParticipantRecord{participant(nil), participant(nil), participant(nil)}
	rec, _ = s.Synthesize("6", three)
	if rec.Type != interaction.TypeAssociation {
		t.Fatalf("type = %q, want %q", rec.Type, interaction.TypeAssociation)
	}
	rec, _ = s.Synthesize("7", three[:2])
	if rec.Type != interaction.TypePhysicalAssociation {
		t.Fatalf("type = %q, want %q", rec.Type, interaction.TypePhysicalAssociation)
	}
}

func TestMergeTuples(t *testing.T) {
	parts := []interaction.ParticipantRecord{
		participant(map[string]string{
			"Variable condition description": "temperature;ph",
			"Variable condition value":       "37;7.4",
			"Variable condition unit":        "celsius",
		}),
		participant(map[string]string{
			"Variable condition description": "temperature;ph",
			"Variable condition value":       "37;7.4",
			"Variable condition unit":        "celsius",
		}),
		participant(map[string]string{
			"Variable condition description": ";salt",
			"Variable condition value":       "",
		}),
	}
	got := MergeTuples(parts, interaction.ConditionFields)
	want := [][]string{
		{"temperature", "37", "celsius"},
		{"ph", "7.4", ""},
		{"salt", "", ""},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("tuples (-want +got):\n%s", diff)
	}
}

func TestSynthesizerMergesParametersAcrossParticipants(t *testing.T) {
	kd := map[string]string{
		"Interaction parameter type":  "kd",
		"Interaction parameter value": "1.5",
		"Interaction parameter unit":  "nM",
	}
	parts := []interaction.ParticipantRecord{
		participant(kd),
		participant(map[string]string{
			"Interaction parameter type":  "ic50;kd",
			"Interaction parameter value": "3;1.5",
			"Interaction parameter unit":  "uM;nM",
		}),
		participant(kd),
	}
	rec, ok := NewSynthesizer(nil).Synthesize("1", parts)
	if !ok {
		t.Fatalf("expected a record")
	}
	want := []interaction.Parameter{
		{Type: "kd", Value: "1.5", Unit: "nM"},
		{Type: "ic50", Value: "3", Unit: "uM"},
	}
	if diff := cmp.Diff(want, rec.Parameters); diff != "" {
		t.Fatalf("parameters (-want +got):\n%s", diff)
	}
}

func TestEmitterKeepsBufferOnWriterError(t *testing.T) {
	w := &captureWriter{err: errBoom}
	e := NewEmitter(w, 2, nil, nil)
	ctx := context.Background()
	if err := e.Add(ctx, interaction.InteractionRecord{Number: "1"}); err != nil {
		t.Fatalf("first add: %v", err)
	}
	if err := e.Add(ctx, interaction.InteractionRecord{Number: "2"}); !errors.Is(err, errBoom) {
		t.Fatalf("expected writer error, got %v", err)
	}
	if e.Pending() != 2 || e.Flushes() != 0 {
		t.Fatalf("pending=%d flushes=%d", e.Pending(), e.Flushes())
	}

	w.err = nil
	if err := e.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	if e.Pending() != 0 || e.Flushes() != 1 || e.Written() != 2 {
		t.Fatalf("pending=%d flushes=%d written=%d", e.Pending(), e.Flushes(), e.Written())
	}
}

func TestEmitterCloseOnEmptyBufferSkipsWriter(t *testing.T) {
	w := &captureWriter{}
	e := NewEmitter(w, 0, nil, nil)
	if err := e.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if len(w.batches) != 0 {
		t.Fatalf("writer called for empty buffer")
	}
}
