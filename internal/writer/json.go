package writer

import (
	"encoding/json"
	"io"
)

// JSONEncoder writes the batch as a single JSON document.
type JSONEncoder struct {
	Indent string
}

// Encode implements Encoder.
func (e JSONEncoder) Encode(w io.Writer, b Batch) error {
	enc := json.NewEncoder(w)
	if e.Indent != "" {
		enc.SetIndent("", e.Indent)
	}
	return enc.Encode(b)
}

// ContentType implements Encoder.
func (JSONEncoder) ContentType() string { return "application/json" }

// Extension implements Encoder.
func (JSONEncoder) Extension() string { return "json" }

// JSONLinesEncoder writes one interaction per line.
type JSONLinesEncoder struct{}

// Encode implements Encoder.
func (JSONLinesEncoder) Encode(w io.Writer, b Batch) error {
	enc := json.NewEncoder(w)
	for _, rec := range b.Records {
		if err := enc.Encode(rec); err != nil {
			return err
		}
	}
	return nil
}

// ContentType implements Encoder.
func (JSONLinesEncoder) ContentType() string { return "application/x-ndjson" }

// Extension implements Encoder.
func (JSONLinesEncoder) Extension() string { return "jsonl" }
