package lookup

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"psimaker/internal/pipeline"
	"psimaker/pkg/interaction"
)

var _ pipeline.Enricher = (*Enricher)(nil)

func roles() *Table {
	return NewTable(map[string]map[string]string{
		"Experimental role":    {"b": "bait", "p": "prey"},
		"Participant organism": {"human": "9606", "homo sapiens": "9606"},
		"Feature type":         {"bs": "binding-associated region"},
	})
}

func TestTableResolve(t *testing.T) {
	ctx := context.Background()
	tbl := roles()
	cases := []struct {
		field, term, want string
		ok                bool
	}{
		{"Experimental role", "B", "bait", true},
		{"Experimental role", " prey ", "prey", true},
		{"Experimental role", "neutral", "", false},
		{"Participant organism", "Homo Sapiens", "9606", true},
		{"Biological role", "enzyme", "", false},
	}
	for _, tc := range cases {
		got, ok, err := tbl.Resolve(ctx, tc.field, tc.term)
		require.NoError(t, err)
		assert.Equal(t, tc.ok, ok, "%s/%s", tc.field, tc.term)
		assert.Equal(t, tc.want, got, "%s/%s", tc.field, tc.term)
	}
	assert.Equal(t, []string{"Experimental role", "Feature type", "Participant organism"}, tbl.Fields())
}

type countingLookup struct {
	calls int
	err   error
}

func (c *countingLookup) Resolve(_ context.Context, _, term string) (string, bool, error) {
	c.calls++
	if c.err != nil {
		return "", false, c.err
	}
	return "x-" + term, term != "unknown", nil
}

func TestCachedReadThrough(t *testing.T) {
	ctx := context.Background()
	backing := &countingLookup{}
	c, err := NewCached(backing, 2)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		v, ok, err := c.Resolve(ctx, "f", "a")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "x-a", v)
	}
	_, ok, err := c.Resolve(ctx, "f", "unknown")
	require.NoError(t, err)
	assert.False(t, ok)
	_, _, _ = c.Resolve(ctx, "f", "unknown")

	assert.Equal(t, 2, backing.calls)
	hits, misses := c.Stats()
	assert.Equal(t, int64(3), hits)
	assert.Equal(t, int64(2), misses)

	// a third key evicts "a"
	_, _, _ = c.Resolve(ctx, "f", "b")
	assert.Equal(t, 2, c.Len())
	_, _, _ = c.Resolve(ctx, "f", "a")
	assert.Equal(t, 4, backing.calls)
}

func TestCachedDoesNotCacheErrors(t *testing.T) {
	backing := &countingLookup{err: errors.New("service down")}
	c, err := NewCached(backing, 0)
	require.NoError(t, err)
	_, _, err = c.Resolve(context.Background(), "f", "a")
	require.Error(t, err)
	assert.Equal(t, 0, c.Len())

	_, err = NewCached(nil, 1)
	assert.Error(t, err)
}

func participant() interaction.ParticipantRecord {
	return interaction.ParticipantRecord{
		Line: 7,
		Fields: map[string]string{
			"Participant name":     "egfr",
			"Experimental role":    "B",
			"Participant organism": "human;mouse",
		},
		Features: []interaction.FeatureRecord{
			{Index: 0, Fields: map[string]string{"Feature type": "BS"}},
			{Index: 1, Fields: map[string]string{}},
		},
	}
}

func TestEnricherNormalisesFields(t *testing.T) {
	e, err := NewEnricher(roles(), []string{"Experimental role", "Participant organism", "Feature type"}, false, nil)
	require.NoError(t, err)

	p := participant()
	require.NoError(t, e.Enrich(context.Background(), &p))
	assert.Equal(t, "bait", p.Role())
	assert.Equal(t, "9606;mouse", p.Organism())
	assert.Equal(t, "binding-associated region", p.Features[0].Fields["Feature type"])
	assert.Empty(t, p.Features[1].Fields)
	assert.Equal(t, "egfr", p.Name())
}

func TestEnricherStrictRejectsUnknown(t *testing.T) {
	e, err := NewEnricher(roles(), []string{"Participant organism"}, true, nil)
	require.NoError(t, err)

	p := participant()
	err = e.Enrich(context.Background(), &p)
	require.ErrorIs(t, err, ErrUnknownTerm)
	assert.Contains(t, err.Error(), `"mouse"`)
}

func TestNewEnricherValidatesFields(t *testing.T) {
	_, err := NewEnricher(roles(), []string{"Colour"}, false, nil)
	assert.ErrorContains(t, err, "unknown field")
	_, err = NewEnricher(roles(), []string{"Host organism"}, false, nil)
	assert.ErrorContains(t, err, "interaction scoped")
	_, err = NewEnricher(nil, nil, false, nil)
	assert.Error(t, err)
}
