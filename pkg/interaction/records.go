package interaction

import "strings"

// RawRow is one source row. Line is the 1-based position in the source and
// only used for diagnostics.
type RawRow struct {
	Line  int
	Cells []string
}

// Width returns the number of cells in the row.
func (r RawRow) Width() int { return len(r.Cells) }

// Cell returns the cell at idx; ok is false when idx is outside the row.
func (r RawRow) Cell(idx int) (string, bool) {
	if idx < 0 || idx >= len(r.Cells) {
		return "", false
	}
	return r.Cells[idx], true
}

// Blank reports whether every cell is empty after trimming.
func (r RawRow) Blank() bool {
	for _, c := range r.Cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// Xref is one cross-reference of a feature or participant.
type Xref struct {
	ID        string `json:"id" xml:"id,attr"`
	Database  string `json:"db" xml:"db,attr"`
	Qualifier string `json:"qualifier,omitempty" xml:"refType,attr,omitempty"`
}

// Parameter is a measured quantity attached to an interaction or feature.
type Parameter struct {
	Type        string `json:"type" xml:"term,attr"`
	Value       string `json:"value" xml:"factor,attr"`
	Unit        string `json:"unit,omitempty" xml:"unit,attr,omitempty"`
	Base        string `json:"base,omitempty" xml:"base,attr,omitempty"`
	Exponent    string `json:"exponent,omitempty" xml:"exponent,attr,omitempty"`
	Uncertainty string `json:"uncertainty,omitempty" xml:"uncertainty,attr,omitempty"`
}

// VariableCondition is one experimental condition varied within an interaction.
type VariableCondition struct {
	Description string `json:"description" xml:"description"`
	Value       string `json:"value,omitempty" xml:"value,omitempty"`
	Unit        string `json:"unit,omitempty" xml:"unit,omitempty"`
}

// FeatureRecord holds the resolved feature-indexed fields for one feature
// ordinal of a participant. Multi-valued fields are semicolon-joined.
type FeatureRecord struct {
	Index  int               `json:"index"`
	Fields map[string]string `json:"fields"`
}

// Get returns the value of a feature field.
func (f FeatureRecord) Get(field Field) string { return f.Fields[field.Name] }

// Xrefs pairs the parallel xref, database and qualifier lists.
func (f FeatureRecord) Xrefs() []Xref {
	ids := SplitList(f.Get(FeatureXref))
	dbs := SplitList(f.Get(FeatureXrefDatabase))
	quals := SplitList(f.Get(FeatureXrefQualifier))
	out := make([]Xref, 0, len(ids))
	for i, id := range ids {
		if id == "" {
			continue
		}
		out = append(out, Xref{ID: id, Database: at(dbs, i), Qualifier: at(quals, i)})
	}
	return out
}

// Parameters pairs the parallel feature parameter lists.
func (f FeatureRecord) Parameters() []Parameter {
	types := SplitList(f.Get(FeatureParameterType))
	values := SplitList(f.Get(FeatureParameterValue))
	units := SplitList(f.Get(FeatureParameterUnit))
	bases := SplitList(f.Get(FeatureParameterBase))
	exps := SplitList(f.Get(FeatureParameterExponent))
	uncs := SplitList(f.Get(FeatureParameterUncertainty))
	out := make([]Parameter, 0, len(types))
	for i, t := range types {
		if t == "" && at(values, i) == "" {
			continue
		}
		out = append(out, Parameter{
			Type:        t,
			Value:       at(values, i),
			Unit:        at(units, i),
			Base:        at(bases, i),
			Exponent:    at(exps, i),
			Uncertainty: at(uncs, i),
		})
	}
	return out
}

// ParticipantRecord holds every resolved plain and role-dependent field of
// one row plus its features. Fields are keyed by logical field name.
type ParticipantRecord struct {
	Line     int               `json:"line"`
	Fields   map[string]string `json:"fields"`
	Features []FeatureRecord   `json:"features,omitempty"`
}

// Get returns the value of a field.
func (p ParticipantRecord) Get(field Field) string { return p.Fields[field.Name] }

// Set stores a field value, allocating the map when needed.
func (p *ParticipantRecord) Set(field Field, value string) {
	if p.Fields == nil {
		p.Fields = make(map[string]string)
	}
	p.Fields[field.Name] = value
}

func (p ParticipantRecord) Name() string     { return p.Get(ParticipantName) }
func (p ParticipantRecord) ID() string       { return p.Get(ParticipantID) }
func (p ParticipantRecord) Database() string { return p.Get(ParticipantIDDatabase) }
func (p ParticipantRecord) Organism() string { return p.Get(ParticipantOrganism) }
func (p ParticipantRecord) Type() string     { return p.Get(ParticipantType) }
func (p ParticipantRecord) Role() string     { return p.Get(ExperimentalRole) }

// MissingIdentity lists the identity fields that are empty.
func (p ParticipantRecord) MissingIdentity() []string {
	var missing []string
	for _, f := range IdentityFields {
		if strings.TrimSpace(p.Get(f)) == "" {
			missing = append(missing, f.Name)
		}
	}
	return missing
}

// Xrefs pairs the participant xref and xref database lists.
func (p ParticipantRecord) Xrefs() []Xref {
	ids := SplitList(p.Get(ParticipantXref))
	dbs := SplitList(p.Get(ParticipantXrefDatabase))
	out := make([]Xref, 0, len(ids))
	for i, id := range ids {
		if id == "" {
			continue
		}
		out = append(out, Xref{ID: id, Database: at(dbs, i)})
	}
	return out
}

// InteractionRecord is one synthesized interaction. It must not be modified
// after it has been handed to a batch emitter.
type InteractionRecord struct {
	Number          string `json:"number"`
	DetectionMethod string `json:"detection_method,omitempty"`
	Type            string `json:"type"`
	HostOrganism    string `json:"host_organism,omitempty"`
	FigureLegend    string `json:"figure_legend,omitempty"`
	Publication     string `json:"publication,omitempty"`
	// Parameters and Conditions are collected from every participant row in
	// order of first appearance. Identical tuples are kept once, even when
	// they come from different participants.
	Parameters   []Parameter         `json:"parameters,omitempty"`
	Conditions   []VariableCondition `json:"variable_conditions,omitempty"`
	Participants []ParticipantRecord `json:"participants"`
}

// Interaction type values assigned when the rows do not supply one.
const (
	TypeAssociation         = "association"
	TypePhysicalAssociation = "physical association"
)

// ListSeparator joins multi-valued cells.
const ListSeparator = ";"

// SplitList splits a semicolon-joined cell into trimmed items. An empty cell
// yields no items; empty positions between separators are kept.
func SplitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ListSeparator)
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// JoinList is the inverse of SplitList.
func JoinList(items []string) string { return strings.Join(items, ListSeparator) }

func at(items []string, i int) string {
	if i < len(items) {
		return items[i]
	}
	return ""
}
