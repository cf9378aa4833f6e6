package pipeline

import (
	"strings"

	"go.uber.org/zap"

	"psimaker/pkg/interaction"
)

// Synthesizer merges the participants of one group into an interaction record.
type Synthesizer struct {
	logger   *zap.Logger
	warnings int
}

// NewSynthesizer builds a synthesizer.
func NewSynthesizer(logger *zap.Logger) *Synthesizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Synthesizer{logger: logger}
}

// scalarChecks are the interaction fields whose absence is worth a warning.
var scalarChecks = []interaction.Field{
	interaction.InteractionDetectionMethod,
	interaction.HostOrganism,
	interaction.FigureLegend,
}

// Synthesize builds the record for group key from its accepted participants.
// ok is false when there are no participants.
func (s *Synthesizer) Synthesize(key string, participants []interaction.ParticipantRecord) (rec interaction.InteractionRecord, ok bool) {
	if len(participants) == 0 {
		return interaction.InteractionRecord{}, false
	}
	rec = interaction.InteractionRecord{
		Number:          key,
		DetectionMethod: lastValue(participants, interaction.InteractionDetectionMethod),
		Type:            lastValue(participants, interaction.InteractionType),
		HostOrganism:    lastValue(participants, interaction.HostOrganism),
		FigureLegend:    lastValue(participants, interaction.FigureLegend),
		Publication:     lastValue(participants, interaction.PublicationID),
		Participants:    participants,
	}
	if rec.Type == "" {
		rec.Type = defaultType(len(participants))
	}

	var empty []string
	for _, f := range scalarChecks {
		if lastValue(participants, f) == "" {
			empty = append(empty, f.Name)
		}
	}
	if len(empty) > 0 {
		s.warnings++
		s.logger.Warn("interaction fields empty",
			zap.String("interaction", key),
			zap.Strings("fields", empty))
	}

	for _, t := range MergeTuples(participants, interaction.ParameterFields) {
		rec.Parameters = append(rec.Parameters, interaction.Parameter{
			Type:        t[0],
			Value:       t[1],
			Unit:        t[2],
			Base:        t[3],
			Exponent:    t[4],
			Uncertainty: t[5],
		})
	}
	for _, t := range MergeTuples(participants, interaction.ConditionFields) {
		rec.Conditions = append(rec.Conditions, interaction.VariableCondition{
			Description: t[0],
			Value:       t[1],
			Unit:        t[2],
		})
	}
	return rec, true
}

// Warnings counts interactions with empty scalar fields.
func (s *Synthesizer) Warnings() int { return s.warnings }

func defaultType(participants int) string {
	if participants > 2 {
		return interaction.TypeAssociation
	}
	return interaction.TypePhysicalAssociation
}

// lastValue returns the last non-empty value of f across participants. The
// value is expected to be identical on every row of a group.
func lastValue(participants []interaction.ParticipantRecord, f interaction.Field) string {
	v := ""
	for _, p := range participants {
		if cur := p.Get(f); cur != "" {
			v = cur
		}
	}
	return v
}

// MergeTuples reads the semicolon-joined lists of fields from every
// participant and zips them positionally into tuples (field i of a tuple comes
// from list i). Missing positions become "". All-empty tuples are dropped and
// repeated tuples keep their first appearance.
func MergeTuples(participants []interaction.ParticipantRecord, fields []interaction.Field) [][]string {
	var out [][]string
	seen := make(map[string]struct{})
	for _, p := range participants {
		lists := make([][]string, len(fields))
		n := 0
		for i, f := range fields {
			lists[i] = interaction.SplitList(p.Get(f))
			if len(lists[i]) > n {
				n = len(lists[i])
			}
		}
		for j := 0; j < n; j++ {
			tuple := make([]string, len(fields))
			blank := true
			for i := range fields {
				if j < len(lists[i]) {
					tuple[i] = lists[i][j]
				}
				if tuple[i] != "" {
					blank = false
				}
			}
			if blank {
				continue
			}
			sig := strings.Join(tuple, "\x1f")
			if _, dup := seen[sig]; dup {
				continue
			}
			seen[sig] = struct{}{}
			out = append(out, tuple)
		}
	}
	return out
}
