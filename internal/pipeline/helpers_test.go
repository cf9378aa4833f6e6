package pipeline

import (
	"context"
	"errors"
	"strconv"
	"time"

	"psimaker/internal/rows"
	"psimaker/pkg/interaction"
)

// Column layout shared by the pipeline tests.
const (
	colNumber = iota
	colName
	colID
	colDatabase
	colOrganism
	colRole
	colMethodBait
	colMethodPrey
	colType
	colParamType
	colParamValue
	colFeatureLabel
	colFeatureXref
	colFeatureXrefDB
	testWidth
)

func testMapping() interaction.ColumnMapping {
	return interaction.MustColumnMapping(map[string]int{
		"Interaction number":                    colNumber,
		"Participant name":                      colName,
		"Participant ID":                        colID,
		"Participant ID database":               colDatabase,
		"Participant organism":                  colOrganism,
		"Experimental role":                     colRole,
		"Participant identification methodbait": colMethodBait,
		"Participant identification methodprey": colMethodPrey,
		"Interaction type":                      colType,
		"Interaction parameter type":            colParamType,
		"Interaction parameter value":           colParamValue,
		"Feature short label_0":                 colFeatureLabel,
		"Feature xref_0":                        colFeatureXref,
		"Feature xref database_0":               colFeatureXrefDB,
	})
}

// row builds a full-width row for participant name in interaction num.
func row(num, name, role string) []string {
	cells := make([]string, testWidth)
	cells[colNumber] = num
	cells[colName] = name
	cells[colID] = "P-" + name
	cells[colDatabase] = "uniprotkb"
	cells[colOrganism] = "9606"
	cells[colRole] = role
	return cells
}

func with(cells []string, col int, value string) []string {
	cells[col] = value
	return cells
}

// interactions builds n single-participant interactions.
func interactions(n int) [][]string {
	out := make([][]string, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, row("I"+strconv.Itoa(i), "P"+strconv.Itoa(i), "bait"))
	}
	return out
}

type captureWriter struct {
	batches [][]interaction.InteractionRecord
	err     error
}

func (c *captureWriter) Write(_ context.Context, records []interaction.InteractionRecord) error {
	if c.err != nil {
		return c.err
	}
	c.batches = append(c.batches, append([]interaction.InteractionRecord(nil), records...))
	return nil
}

func (c *captureWriter) records() []interaction.InteractionRecord {
	var out []interaction.InteractionRecord
	for _, b := range c.batches {
		out = append(out, b...)
	}
	return out
}

type failingSource struct {
	rows []interaction.RawRow
	err  error
}

func (f *failingSource) Next(context.Context) (interaction.RawRow, error) {
	if len(f.rows) == 0 {
		return interaction.RawRow{}, f.err
	}
	r := f.rows[0]
	f.rows = f.rows[1:]
	return r, nil
}

func (f *failingSource) Width() int { return testWidth }

var _ rows.Source = (*failingSource)(nil)

var errBoom = errors.New("boom")

type metricsCall struct {
	op      string
	success bool
}

type captureMetricsRecorder struct {
	calls []metricsCall
}

func (c *captureMetricsRecorder) Observe(_ context.Context, op string, success bool, _ time.Duration) {
	c.calls = append(c.calls, metricsCall{op: op, success: success})
}

func (c *captureMetricsRecorder) count(op string, success bool) int {
	n := 0
	for _, call := range c.calls {
		if call.op == op && call.success == success {
			n++
		}
	}
	return n
}
