package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"psimaker/internal/columns"
	"psimaker/pkg/interaction"
)

// Assembler converts the rows of a group into participant records.
type Assembler struct {
	resolver *columns.Resolver
	features int
	enricher Enricher
	logger   *zap.Logger
	warnings int
}

// NewAssembler builds an assembler resolving features 0..features-1.
// enricher may be nil.
func NewAssembler(resolver *columns.Resolver, features int, enricher Enricher, logger *zap.Logger) *Assembler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assembler{resolver: resolver, features: features, enricher: enricher, logger: logger}
}

// Assemble returns the accepted participants of grp and the identifiers of
// rejected ones. A participant missing a name, id, id database or organism
// is rejected without affecting the others. A non-nil error is a *GroupError.
func (a *Assembler) Assemble(ctx context.Context, grp Group) (accepted []interaction.ParticipantRecord, skipped []string, err error) {
	for _, row := range grp.Rows {
		p := a.participant(row)
		if missing := p.MissingIdentity(); len(missing) > 0 {
			id := Identifier(p)
			skipped = append(skipped, id)
			a.logger.Warn("participant rejected",
				zap.String("interaction", grp.Key),
				zap.Int("line", row.Line),
				zap.String("participant", id),
				zap.Strings("missing", missing))
			continue
		}
		if a.enricher != nil {
			if err := a.enricher.Enrich(ctx, &p); err != nil {
				return nil, skipped, &GroupError{Interaction: grp.Key, Line: row.Line, Err: err}
			}
		}
		accepted = append(accepted, p)
	}
	return accepted, skipped, nil
}

// Warnings counts soft problems found while assembling.
func (a *Assembler) Warnings() int { return a.warnings }

func (a *Assembler) participant(row interaction.RawRow) interaction.ParticipantRecord {
	p := interaction.ParticipantRecord{Line: row.Line, Fields: make(map[string]string)}
	for _, f := range interaction.RowFields {
		if v, mapped := a.resolver.Resolve(f, row, -1); mapped {
			p.Fields[f.Name] = v
		}
	}
	for i := 0; i < a.features; i++ {
		fr := interaction.FeatureRecord{Index: i, Fields: make(map[string]string)}
		for _, f := range interaction.FeatureFields {
			if v, mapped := a.resolver.Resolve(f, row, i); mapped && v != "" {
				fr.Fields[f.Name] = v
			}
		}
		if len(fr.Fields) == 0 {
			continue
		}
		if alignXrefs(fr) {
			a.warnings++
			a.logger.Warn("feature xref lists differ in length, padded",
				zap.Int("line", row.Line),
				zap.Int("feature", i))
		}
		p.Features = append(p.Features, fr)
	}
	return p
}

// alignXrefs pads the non-empty xref, database and qualifier lists of a
// feature to the same length. It reports whether padding was needed.
func alignXrefs(fr interaction.FeatureRecord) bool {
	fields := []interaction.Field{interaction.FeatureXref, interaction.FeatureXrefDatabase, interaction.FeatureXrefQualifier}
	lists := make([][]string, len(fields))
	longest := 0
	for i, f := range fields {
		lists[i] = interaction.SplitList(fr.Fields[f.Name])
		if len(lists[i]) > longest {
			longest = len(lists[i])
		}
	}
	if longest == 0 {
		return false
	}
	padded := false
	for i, f := range fields {
		if len(lists[i]) == 0 || len(lists[i]) == longest {
			continue
		}
		padded = true
		for len(lists[i]) < longest {
			lists[i] = append(lists[i], "")
		}
		fr.Fields[f.Name] = interaction.JoinList(lists[i])
	}
	return padded
}

// Identifier is the best available label of a participant: its name, else
// its id, else its source line.
func Identifier(p interaction.ParticipantRecord) string {
	if n := p.Name(); n != "" {
		return n
	}
	if id := p.ID(); id != "" {
		return id
	}
	return fmt.Sprintf("line %d", p.Line)
}
