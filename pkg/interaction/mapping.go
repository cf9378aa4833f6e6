package interaction

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ColumnMapping maps physical semantic keys to zero-based column indices.
// It is immutable after construction.
type ColumnMapping struct {
	index map[string]int
}

// NewColumnMapping validates and copies the supplied key → index map.
func NewColumnMapping(m map[string]int) (ColumnMapping, error) {
	out := make(map[string]int, len(m))
	for key, idx := range m {
		if strings.TrimSpace(key) == "" {
			return ColumnMapping{}, fmt.Errorf("column mapping: empty key")
		}
		if idx < 0 {
			return ColumnMapping{}, fmt.Errorf("column mapping: negative index %d for %q", idx, key)
		}
		out[key] = idx
	}
	return ColumnMapping{index: out}, nil
}

// MustColumnMapping is NewColumnMapping for fixed, known-good maps.
func MustColumnMapping(m map[string]int) ColumnMapping {
	cm, err := NewColumnMapping(m)
	if err != nil {
		panic(err)
	}
	return cm
}

// Index returns the column for a physical key.
func (m ColumnMapping) Index(key string) (int, bool) {
	idx, ok := m.index[key]
	return idx, ok
}

// Has reports whether a physical key is mapped.
func (m ColumnMapping) Has(key string) bool {
	_, ok := m.index[key]
	return ok
}

// Len returns the number of mapped keys.
func (m ColumnMapping) Len() int { return len(m.index) }

// Keys returns the mapped keys in ascending order.
func (m ColumnMapping) Keys() []string {
	keys := make([]string, 0, len(m.index))
	for k := range m.index {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Map returns a copy of the underlying map.
func (m ColumnMapping) Map() map[string]int {
	out := make(map[string]int, len(m.index))
	for k, v := range m.index {
		out[k] = v
	}
	return out
}

// MinWidth is the narrowest row that still carries every mapped required
// column (interaction number and participant identity). Optional columns
// beyond it may be missing from short rows.
func (m ColumnMapping) MinWidth() int {
	width := 0
	required := append([]Field{InteractionNumber}, IdentityFields...)
	for _, f := range required {
		if idx, ok := m.index[f.Name]; ok && idx+1 > width {
			width = idx + 1
		}
	}
	return width
}

// RoleKey composes the physical key of a role-dependent field.
func RoleKey(name, role string) string { return name + role }

// FeatureKey composes the physical key of a feature-indexed field.
func FeatureKey(name string, feature int) string { return name + "_" + strconv.Itoa(feature) }
