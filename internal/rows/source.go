// Package rows exposes tabular input as a single-pass sequence of raw rows.
package rows

import (
	"context"
	"io"

	"psimaker/pkg/interaction"
)

// Source yields rows in order. Next returns io.EOF once the rows are
// exhausted. Sources are single-pass and cannot be rewound.
type Source interface {
	Next(ctx context.Context) (interaction.RawRow, error)
	// Width is the column count of the first data row (0 for an empty source).
	Width() int
}

// Headed is implemented by sources that consumed a header row.
type Headed interface {
	Header() []string
}

// HeaderOf returns the header of src, or nil when it has none.
func HeaderOf(src Source) []string {
	if h, ok := src.(Headed); ok {
		return h.Header()
	}
	return nil
}

// Slice is an in-memory Source.
type Slice struct {
	rows   [][]string
	header []string
	pos    int
}

// NewSlice returns a source over rows. Line numbers start at 1.
func NewSlice(rows [][]string) *Slice {
	return &Slice{rows: rows}
}

// NewSliceWithHeader returns a source whose first element is a header row.
func NewSliceWithHeader(header []string, rows [][]string) *Slice {
	return &Slice{rows: rows, header: header}
}

// Next implements Source.
func (s *Slice) Next(ctx context.Context) (interaction.RawRow, error) {
	if err := ctx.Err(); err != nil {
		return interaction.RawRow{}, err
	}
	if s.pos >= len(s.rows) {
		return interaction.RawRow{}, io.EOF
	}
	cells := append([]string(nil), s.rows[s.pos]...)
	s.pos++
	line := s.pos
	if s.header != nil {
		line++
	}
	return interaction.RawRow{Line: line, Cells: cells}, nil
}

// Width implements Source.
func (s *Slice) Width() int {
	if len(s.rows) == 0 {
		return 0
	}
	return len(s.rows[0])
}

// Header implements Headed.
func (s *Slice) Header() []string { return s.header }
