package lookup

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"psimaker/pkg/interaction"
)

// Enricher rewrites the configured fields of a participant and its features
// to their canonical values. Multi-valued cells are resolved item by item.
type Enricher struct {
	lookup Lookup
	fields []interaction.Field
	strict bool
	logger *zap.Logger
}

// NewEnricher builds an enricher for the named fields. Names must be catalog
// field names of participant or feature scope.
func NewEnricher(l Lookup, fieldNames []string, strict bool, logger *zap.Logger) (*Enricher, error) {
	if l == nil {
		return nil, fmt.Errorf("lookup: enricher needs a lookup")
	}
	fields := make([]interaction.Field, 0, len(fieldNames))
	for _, name := range fieldNames {
		f, ok := interaction.LookupField(name)
		if !ok {
			return nil, fmt.Errorf("lookup: unknown field %q", name)
		}
		if f.Scope == interaction.ScopeInteraction {
			return nil, fmt.Errorf("lookup: field %q is interaction scoped", name)
		}
		fields = append(fields, f)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Enricher{lookup: l, fields: fields, strict: strict, logger: logger}, nil
}

// Enrich resolves every configured field of p in place.
func (e *Enricher) Enrich(ctx context.Context, p *interaction.ParticipantRecord) error {
	for _, f := range e.fields {
		if f.Scope == interaction.ScopeFeature {
			for i := range p.Features {
				v, err := e.resolve(ctx, f, p.Features[i].Fields[f.Name], p.Line)
				if err != nil {
					return err
				}
				if v != "" {
					p.Features[i].Fields[f.Name] = v
				}
			}
			continue
		}
		v, err := e.resolve(ctx, f, p.Get(f), p.Line)
		if err != nil {
			return err
		}
		if v != "" {
			p.Set(f, v)
		}
	}
	return nil
}

func (e *Enricher) resolve(ctx context.Context, f interaction.Field, value string, line int) (string, error) {
	items := interaction.SplitList(value)
	if len(items) == 0 {
		return "", nil
	}
	for i, item := range items {
		if item == "" {
			continue
		}
		canonical, ok, err := e.lookup.Resolve(ctx, f.Name, item)
		if err != nil {
			return "", fmt.Errorf("resolve %s %q: %w", f.Name, item, err)
		}
		if !ok {
			if e.strict {
				return "", fmt.Errorf("%w: %s %q", ErrUnknownTerm, f.Name, item)
			}
			e.logger.Debug("term kept as given", zap.String("field", f.Name), zap.String("term", item), zap.Int("line", line))
			continue
		}
		items[i] = canonical
	}
	return interaction.JoinList(items), nil
}
