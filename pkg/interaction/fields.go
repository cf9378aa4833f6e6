// Package interaction defines the records produced when tabular
// molecular-interaction data is grouped into interactions, together with
// the semantic field catalog used to locate values in a row.
package interaction

// Kind describes how a semantic field maps onto physical column keys.
type Kind int

const (
	// Plain fields resolve to the same column for every row.
	Plain Kind = iota
	// RoleDependent fields exist once per experimental role; the physical
	// key is the field name followed by the role value read from the row.
	RoleDependent
	// FeatureIndexed fields repeat once per feature; the physical key is the
	// field name followed by "_" and the feature ordinal.
	FeatureIndexed
)

func (k Kind) String() string {
	switch k {
	case Plain:
		return "plain"
	case RoleDependent:
		return "role-dependent"
	case FeatureIndexed:
		return "feature-indexed"
	default:
		return "unknown"
	}
}

// Scope tells which record a field ends up in.
type Scope int

const (
	ScopeParticipant Scope = iota
	ScopeInteraction
	ScopeFeature
)

// Field is a semantic key in the column mapping.
type Field struct {
	Name  string
	Kind  Kind
	Scope Scope
}

// Interaction-scoped fields. They are repeated on every row of a group.
var (
	InteractionNumber          = Field{Name: "Interaction number", Kind: Plain, Scope: ScopeInteraction}
	InteractionDetectionMethod = Field{Name: "Interaction detection method", Kind: Plain, Scope: ScopeInteraction}
	InteractionType            = Field{Name: "Interaction type", Kind: Plain, Scope: ScopeInteraction}
	HostOrganism               = Field{Name: "Host organism", Kind: Plain, Scope: ScopeInteraction}
	FigureLegend               = Field{Name: "Interaction figure legend", Kind: Plain, Scope: ScopeInteraction}
	PublicationID              = Field{Name: "Publication ID", Kind: Plain, Scope: ScopeInteraction}

	InteractionParameterType        = Field{Name: "Interaction parameter type", Kind: Plain, Scope: ScopeInteraction}
	InteractionParameterValue       = Field{Name: "Interaction parameter value", Kind: Plain, Scope: ScopeInteraction}
	InteractionParameterUnit        = Field{Name: "Interaction parameter unit", Kind: Plain, Scope: ScopeInteraction}
	InteractionParameterBase        = Field{Name: "Interaction parameter base", Kind: Plain, Scope: ScopeInteraction}
	InteractionParameterExponent    = Field{Name: "Interaction parameter exponent", Kind: Plain, Scope: ScopeInteraction}
	InteractionParameterUncertainty = Field{Name: "Interaction parameter uncertainty", Kind: Plain, Scope: ScopeInteraction}

	VariableConditionDescription = Field{Name: "Variable condition description", Kind: Plain, Scope: ScopeInteraction}
	VariableConditionValue       = Field{Name: "Variable condition value", Kind: Plain, Scope: ScopeInteraction}
	VariableConditionUnit        = Field{Name: "Variable condition unit", Kind: Plain, Scope: ScopeInteraction}
)

// Participant-scoped fields.
var (
	ParticipantName         = Field{Name: "Participant name", Kind: Plain, Scope: ScopeParticipant}
	ParticipantID           = Field{Name: "Participant ID", Kind: Plain, Scope: ScopeParticipant}
	ParticipantIDDatabase   = Field{Name: "Participant ID database", Kind: Plain, Scope: ScopeParticipant}
	ParticipantOrganism     = Field{Name: "Participant organism", Kind: Plain, Scope: ScopeParticipant}
	ParticipantType         = Field{Name: "Participant type", Kind: Plain, Scope: ScopeParticipant}
	ExperimentalRole        = Field{Name: "Experimental role", Kind: Plain, Scope: ScopeParticipant}
	BiologicalRole          = Field{Name: "Biological role", Kind: Plain, Scope: ScopeParticipant}
	ParticipantXref         = Field{Name: "Participant xref", Kind: Plain, Scope: ScopeParticipant}
	ParticipantXrefDatabase = Field{Name: "Participant xref database", Kind: Plain, Scope: ScopeParticipant}

	ParticipantIdentificationMethod = Field{Name: "Participant identification method", Kind: RoleDependent, Scope: ScopeParticipant}
	ExperimentalPreparation         = Field{Name: "Experimental preparation", Kind: RoleDependent, Scope: ScopeParticipant}
	ExpressedInOrganism             = Field{Name: "Expressed in organism", Kind: RoleDependent, Scope: ScopeParticipant}
)

// Feature-indexed fields.
var (
	FeatureShortName     = Field{Name: "Feature short label", Kind: FeatureIndexed, Scope: ScopeFeature}
	FeatureType          = Field{Name: "Feature type", Kind: FeatureIndexed, Scope: ScopeFeature}
	FeatureStart         = Field{Name: "Feature start location", Kind: FeatureIndexed, Scope: ScopeFeature}
	FeatureEnd           = Field{Name: "Feature end location", Kind: FeatureIndexed, Scope: ScopeFeature}
	FeatureRangeType     = Field{Name: "Feature range type", Kind: FeatureIndexed, Scope: ScopeFeature}
	FeatureXref          = Field{Name: "Feature xref", Kind: FeatureIndexed, Scope: ScopeFeature}
	FeatureXrefDatabase  = Field{Name: "Feature xref database", Kind: FeatureIndexed, Scope: ScopeFeature}
	FeatureXrefQualifier = Field{Name: "Feature xref qualifier", Kind: FeatureIndexed, Scope: ScopeFeature}

	FeatureParameterType        = Field{Name: "Feature parameter type", Kind: FeatureIndexed, Scope: ScopeFeature}
	FeatureParameterValue       = Field{Name: "Feature parameter value", Kind: FeatureIndexed, Scope: ScopeFeature}
	FeatureParameterUnit        = Field{Name: "Feature parameter unit", Kind: FeatureIndexed, Scope: ScopeFeature}
	FeatureParameterBase        = Field{Name: "Feature parameter base", Kind: FeatureIndexed, Scope: ScopeFeature}
	FeatureParameterExponent    = Field{Name: "Feature parameter exponent", Kind: FeatureIndexed, Scope: ScopeFeature}
	FeatureParameterUncertainty = Field{Name: "Feature parameter uncertainty", Kind: FeatureIndexed, Scope: ScopeFeature}
)

// RowFields lists every plain and role-dependent field in catalog order.
// The assembler resolves all of them for each row.
var RowFields = []Field{
	InteractionNumber,
	InteractionDetectionMethod,
	InteractionType,
	HostOrganism,
	FigureLegend,
	PublicationID,
	InteractionParameterType,
	InteractionParameterValue,
	InteractionParameterUnit,
	InteractionParameterBase,
	InteractionParameterExponent,
	InteractionParameterUncertainty,
	VariableConditionDescription,
	VariableConditionValue,
	VariableConditionUnit,
	ParticipantName,
	ParticipantID,
	ParticipantIDDatabase,
	ParticipantOrganism,
	ParticipantType,
	ExperimentalRole,
	BiologicalRole,
	ParticipantXref,
	ParticipantXrefDatabase,
	ParticipantIdentificationMethod,
	ExperimentalPreparation,
	ExpressedInOrganism,
}

// FeatureFields lists every feature-indexed field in catalog order.
var FeatureFields = []Field{
	FeatureShortName,
	FeatureType,
	FeatureStart,
	FeatureEnd,
	FeatureRangeType,
	FeatureXref,
	FeatureXrefDatabase,
	FeatureXrefQualifier,
	FeatureParameterType,
	FeatureParameterValue,
	FeatureParameterUnit,
	FeatureParameterBase,
	FeatureParameterExponent,
	FeatureParameterUncertainty,
}

// IdentityFields must be non-empty for a participant to be accepted.
var IdentityFields = []Field{ParticipantName, ParticipantID, ParticipantIDDatabase, ParticipantOrganism}

// ParameterFields are the interaction parameter columns, in tuple order.
var ParameterFields = []Field{
	InteractionParameterType,
	InteractionParameterValue,
	InteractionParameterUnit,
	InteractionParameterBase,
	InteractionParameterExponent,
	InteractionParameterUncertainty,
}

// ConditionFields are the variable-condition columns, in tuple order.
var ConditionFields = []Field{VariableConditionDescription, VariableConditionValue, VariableConditionUnit}

// LookupField returns the catalog field with the given logical name.
func LookupField(name string) (Field, bool) {
	for _, f := range RowFields {
		if f.Name == name {
			return f, true
		}
	}
	for _, f := range FeatureFields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}
