package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"psimaker/internal/columns"
	"psimaker/internal/rows"
	"psimaker/pkg/interaction"
)

// Group is a contiguous run of rows sharing one interaction number.
type Group struct {
	Key  string
	Rows []interaction.RawRow
}

// FirstLine returns the source line of the group's first row.
func (g Group) FirstLine() int {
	if len(g.Rows) == 0 {
		return 0
	}
	return g.Rows[0].Line
}

// Grouper splits a row source into groups on every change of the interaction
// number value. Equal numbers that are not adjacent form separate groups.
type Grouper struct {
	src      rows.Source
	resolver *columns.Resolver
	minWidth int
	logger   *zap.Logger

	open    bool
	key     string
	pending []interaction.RawRow
	done    bool

	read    int
	skipped int
}

// NewGrouper builds a grouper. Rows narrower than minWidth are skipped.
func NewGrouper(src rows.Source, resolver *columns.Resolver, minWidth int, logger *zap.Logger) *Grouper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Grouper{src: src, resolver: resolver, minWidth: minWidth, logger: logger}
}

// Next returns the next completed group, or io.EOF once the source is
// exhausted and the last group has been returned.
func (g *Grouper) Next(ctx context.Context) (Group, error) {
	if g.done {
		return Group{}, io.EOF
	}
	for {
		row, err := g.src.Next(ctx)
		if errors.Is(err, io.EOF) {
			g.done = true
			if !g.open {
				return Group{}, io.EOF
			}
			g.open = false
			return g.take(""), nil
		}
		if err != nil {
			return Group{}, fmt.Errorf("read row: %w", err)
		}
		g.read++
		if row.Width() < g.minWidth {
			g.skipped++
			g.logger.Warn("row narrower than mapping, skipped",
				zap.Int("line", row.Line),
				zap.Int("width", row.Width()),
				zap.Int("required", g.minWidth))
			continue
		}
		if row.Blank() {
			g.skipped++
			continue
		}
		key, _ := g.resolver.Resolve(interaction.InteractionNumber, row, -1)
		if !g.open {
			g.open = true
			g.key = key
			g.pending = append(g.pending, row)
			continue
		}
		if key != g.key {
			done := g.take(key)
			g.pending = append(g.pending, row)
			return done, nil
		}
		g.pending = append(g.pending, row)
	}
}

// RowsRead counts rows pulled from the source.
func (g *Grouper) RowsRead() int { return g.read }

// RowsSkipped counts narrow and blank rows.
func (g *Grouper) RowsSkipped() int { return g.skipped }

// take closes the current group and opens the next one under key.
func (g *Grouper) take(next string) Group {
	grp := Group{Key: g.key, Rows: g.pending}
	g.key = next
	g.pending = nil
	return grp
}
