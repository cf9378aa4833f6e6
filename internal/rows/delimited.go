package rows

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"psimaker/internal/blob"
	"psimaker/pkg/interaction"
)

// Options controls how delimited text is split into rows.
type Options struct {
	// Delimiter separates cells. Zero selects it from the file extension
	// (tab for .tsv/.tab/.txt, comma otherwise).
	Delimiter rune
	// HeaderRows is the number of leading rows treated as header. The last
	// header row is exposed through Header.
	HeaderRows int
	// TrimSpace trims leading white space of each cell.
	TrimSpace bool
}

// Delimited reads CSV or TSV rows. Records may have different widths.
type Delimited struct {
	r      *csv.Reader
	closer io.Closer
	header []string
	first  *interaction.RawRow
	width  int
	err    error
}

// NewDelimited consumes the header rows and peeks at the first data row so
// that Width is known before iteration starts.
func NewDelimited(r io.Reader, opts Options) (*Delimited, error) {
	delim := opts.Delimiter
	if delim == 0 {
		delim = ','
	}
	cr := csv.NewReader(r)
	cr.Comma = delim
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = opts.TrimSpace
	cr.ReuseRecord = false

	d := &Delimited{r: cr}
	for i := 0; i < opts.HeaderRows; i++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return d, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read header: %w", err)
		}
		d.header = rec
	}
	row, err := d.read()
	switch {
	case errors.Is(err, io.EOF):
		d.err = io.EOF
	case err != nil:
		return nil, err
	default:
		d.first = &row
		d.width = row.Width()
	}
	return d, nil
}

// OpenFile opens a delimited file. The caller must Close it.
func OpenFile(path string, opts Options) (*Delimited, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	if opts.Delimiter == 0 {
		opts.Delimiter = DelimiterFor(path)
	}
	d, err := NewDelimited(f, opts)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	d.closer = f
	return d, nil
}

// OpenBlob reads an input object from a blob store.
func OpenBlob(ctx context.Context, store blob.Store, key string, opts Options) (*Delimited, error) {
	_, body, err := store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("get input %s: %w", key, err)
	}
	if opts.Delimiter == 0 {
		opts.Delimiter = DelimiterFor(key)
	}
	d, err := NewDelimited(body, opts)
	if err != nil {
		_ = body.Close()
		return nil, err
	}
	d.closer = body
	return d, nil
}

// DelimiterFor picks the delimiter from a file name.
func DelimiterFor(name string) rune {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".tsv", ".tab", ".txt":
		return '\t'
	default:
		return ','
	}
}

// Next implements Source.
func (d *Delimited) Next(ctx context.Context) (interaction.RawRow, error) {
	if err := ctx.Err(); err != nil {
		return interaction.RawRow{}, err
	}
	if d.first != nil {
		row := *d.first
		d.first = nil
		return row, nil
	}
	if d.err != nil {
		return interaction.RawRow{}, d.err
	}
	row, err := d.read()
	if err != nil {
		d.err = err
		return interaction.RawRow{}, err
	}
	return row, nil
}

// Width implements Source.
func (d *Delimited) Width() int { return d.width }

// Header implements Headed.
func (d *Delimited) Header() []string { return d.header }

// Close releases the underlying file or object body.
func (d *Delimited) Close() error {
	if d.closer == nil {
		return nil
	}
	err := d.closer.Close()
	d.closer = nil
	return err
}

func (d *Delimited) read() (interaction.RawRow, error) {
	rec, err := d.r.Read()
	if errors.Is(err, io.EOF) {
		return interaction.RawRow{}, io.EOF
	}
	if err != nil {
		return interaction.RawRow{}, fmt.Errorf("read row: %w", err)
	}
	line, _ := d.r.FieldPos(0)
	return interaction.RawRow{Line: line, Cells: rec}, nil
}

// ReadAll drains src into memory. It is meant for small inputs and tests.
func ReadAll(ctx context.Context, src Source) ([]interaction.RawRow, error) {
	var out []interaction.RawRow
	for {
		row, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, row)
	}
}

// NewDelimitedBytes is a convenience for in-memory documents.
func NewDelimitedBytes(data []byte, opts Options) (*Delimited, error) {
	return NewDelimited(bytes.NewReader(data), opts)
}
