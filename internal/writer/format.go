// Package writer turns flushed batches of interaction records into output
// documents. Every flush becomes one document.
package writer

import (
	"fmt"
	"io"
	"sort"
	"sync"

	"psimaker/pkg/interaction"
)

// Batch is one flushed group of records. Sequence starts at 1 per run.
type Batch struct {
	Run      string                          `json:"run"`
	Sequence int                             `json:"batch"`
	Records  []interaction.InteractionRecord `json:"interactions"`
}

// Encoder renders a batch in one output format.
type Encoder interface {
	Encode(w io.Writer, b Batch) error
	ContentType() string
	Extension() string
}

var (
	registryMu sync.RWMutex
	registry   = map[string]Encoder{}
)

// Register makes an encoder available under name. A later registration
// replaces an earlier one.
func Register(name string, enc Encoder) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = enc
}

// Lookup returns the encoder registered under name.
func Lookup(name string) (Encoder, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	enc, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown output format %q (have %v)", name, formatsLocked())
	}
	return enc, nil
}

// Formats lists the registered format names.
func Formats() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return formatsLocked()
}

func formatsLocked() []string {
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func init() {
	Register("json", JSONEncoder{Indent: "  "})
	Register("jsonl", JSONLinesEncoder{})
	Register("xml", XMLEncoder{})
}
