// Package columns resolves semantic fields to cell values of a row using a
// column mapping. Role-dependent and feature-indexed fields are composed per
// row rather than expanded up front.
package columns

import (
	"strings"

	"go.uber.org/zap"

	"psimaker/pkg/interaction"
)

// Resolver implements the two-stage lookup: compose the physical key for a
// field from the row context, then read the mapped cell.
// It is not safe for concurrent use.
type Resolver struct {
	mapping  interaction.ColumnMapping
	logger   *zap.Logger
	reported map[string]struct{}
	short    int
}

// NewResolver constructs a resolver over mapping. A nil logger disables logging.
func NewResolver(mapping interaction.ColumnMapping, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		mapping:  mapping,
		logger:   logger,
		reported: make(map[string]struct{}),
	}
}

// Mapping returns the mapping the resolver reads from.
func (r *Resolver) Mapping() interaction.ColumnMapping { return r.mapping }

// Role returns the trimmed experimental role cell of the row, or "" when the
// role column is unmapped or outside the row.
func (r *Resolver) Role(row interaction.RawRow) string {
	idx, ok := r.mapping.Index(interaction.ExperimentalRole.Name)
	if !ok {
		return ""
	}
	v, _ := row.Cell(idx)
	return strings.TrimSpace(v)
}

// Key composes the physical mapping key of field for row. ok is false when
// the key cannot be composed (a role-dependent field on a row without a role).
func (r *Resolver) Key(field interaction.Field, row interaction.RawRow, feature int) (string, bool) {
	switch field.Kind {
	case interaction.RoleDependent:
		role := r.Role(row)
		if role == "" {
			return "", false
		}
		return interaction.RoleKey(field.Name, role), true
	case interaction.FeatureIndexed:
		if feature < 0 {
			return "", false
		}
		return interaction.FeatureKey(field.Name, feature), true
	default:
		return field.Name, true
	}
}

// Resolve returns the trimmed value of field in row. mapped is false when the
// composed key is absent from the mapping. A mapped column beyond the row's
// width yields "" with mapped true; short rows are not an error.
func (r *Resolver) Resolve(field interaction.Field, row interaction.RawRow, feature int) (value string, mapped bool) {
	key, ok := r.Key(field, row, feature)
	if !ok {
		return "", false
	}
	idx, ok := r.mapping.Index(key)
	if !ok {
		if field.Kind == interaction.FeatureIndexed {
			r.reportOnce(key)
		}
		return "", false
	}
	cell, inRow := row.Cell(idx)
	if !inRow {
		r.short++
		return "", true
	}
	return strings.TrimSpace(cell), true
}

// ShortReads counts mapped columns that fell outside their row.
func (r *Resolver) ShortReads() int { return r.short }

func (r *Resolver) reportOnce(key string) {
	if _, seen := r.reported[key]; seen {
		return
	}
	r.reported[key] = struct{}{}
	r.logger.Warn("feature column not mapped", zap.String("key", key))
}
