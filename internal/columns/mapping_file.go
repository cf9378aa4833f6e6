package columns

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"psimaker/pkg/interaction"
)

// ColumnRef points at a column either by zero-based index or by header text.
type ColumnRef struct {
	Index  int
	Header string
}

// UnmarshalYAML accepts an integer index or a header string.
func (c *ColumnRef) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: column must be an index or a header name", node.Line)
	}
	if node.Tag == "!!int" {
		idx, err := strconv.Atoi(node.Value)
		if err != nil {
			return fmt.Errorf("line %d: %w", node.Line, err)
		}
		*c = ColumnRef{Index: idx}
		return nil
	}
	if strings.TrimSpace(node.Value) == "" {
		return fmt.Errorf("line %d: empty header name", node.Line)
	}
	*c = ColumnRef{Index: -1, Header: node.Value}
	return nil
}

// MarshalYAML writes the index or the header back out.
func (c ColumnRef) MarshalYAML() (any, error) {
	if c.Header != "" {
		return c.Header, nil
	}
	return c.Index, nil
}

// MappingSpec is the column selection handed over by the user: physical
// semantic key → column reference.
type MappingSpec map[string]ColumnRef

// LoadMapping reads a YAML mapping file.
func LoadMapping(path string) (MappingSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read mapping: %w", err)
	}
	return ParseMapping(data)
}

// ParseMapping decodes a YAML mapping document.
func ParseMapping(data []byte) (MappingSpec, error) {
	var spec MappingSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("parse mapping: %w", err)
	}
	if spec == nil {
		spec = MappingSpec{}
	}
	return spec, nil
}

// Build resolves header references against header and validates every key
// against the field catalog.
func (s MappingSpec) Build(header []string) (interaction.ColumnMapping, error) {
	byHeader := make(map[string]int, len(header))
	for i, h := range header {
		norm := normalizeHeader(h)
		if _, dup := byHeader[norm]; !dup {
			byHeader[norm] = i
		}
	}
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[string]int, len(s))
	var problems []string
	for _, key := range keys {
		if err := ValidateKey(key); err != nil {
			problems = append(problems, err.Error())
			continue
		}
		ref := s[key]
		if ref.Header == "" {
			out[key] = ref.Index
			continue
		}
		idx, ok := byHeader[normalizeHeader(ref.Header)]
		if !ok {
			problems = append(problems, fmt.Sprintf("%s: header %q not found", key, ref.Header))
			continue
		}
		out[key] = idx
	}
	if len(problems) > 0 {
		return interaction.ColumnMapping{}, fmt.Errorf("column mapping: %s", strings.Join(problems, "; "))
	}
	return interaction.NewColumnMapping(out)
}

// ValidateKey checks that a physical key is a catalog field, a role-dependent
// field followed by a role, or a feature-indexed field followed by "_N".
func ValidateKey(key string) error {
	if f, ok := interaction.LookupField(key); ok && f.Kind == interaction.Plain {
		return nil
	}
	for _, f := range interaction.FeatureFields {
		if rest, ok := strings.CutPrefix(key, f.Name+"_"); ok {
			if n, err := strconv.Atoi(rest); err == nil && n >= 0 {
				return nil
			}
		}
	}
	for _, f := range interaction.RowFields {
		if f.Kind != interaction.RoleDependent {
			continue
		}
		if rest, ok := strings.CutPrefix(key, f.Name); ok && strings.TrimSpace(rest) != "" {
			return nil
		}
	}
	return fmt.Errorf("unknown mapping key %q", key)
}

func normalizeHeader(h string) string {
	return strings.ToLower(strings.Join(strings.Fields(h), " "))
}
