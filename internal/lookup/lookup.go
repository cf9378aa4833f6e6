// Package lookup normalises curated vocabulary (roles, methods, organisms)
// on participants before they join an interaction.
package lookup

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// ErrUnknownTerm is returned in strict mode for a value the lookup does not know.
var ErrUnknownTerm = errors.New("lookup: unknown term")

// Lookup maps a raw value of a field to its canonical form. ok is false when
// the term is unknown.
type Lookup interface {
	Resolve(ctx context.Context, field, term string) (canonical string, ok bool, err error)
}

// Table is a static synonym table keyed by field name. Matching ignores case
// and surrounding space.
type Table struct {
	terms map[string]map[string]string
}

// NewTable builds a table from field -> synonym -> canonical value. A
// canonical value is also accepted as its own synonym.
func NewTable(terms map[string]map[string]string) *Table {
	t := &Table{terms: make(map[string]map[string]string, len(terms))}
	for field, synonyms := range terms {
		m := make(map[string]string, len(synonyms)*2)
		for syn, canonical := range synonyms {
			m[normalize(syn)] = canonical
			m[normalize(canonical)] = canonical
		}
		t.terms[field] = m
	}
	return t
}

// Fields returns the field names the table covers, sorted.
func (t *Table) Fields() []string {
	out := make([]string, 0, len(t.terms))
	for f := range t.terms {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Resolve implements Lookup.
func (t *Table) Resolve(_ context.Context, field, term string) (string, bool, error) {
	m, ok := t.terms[field]
	if !ok {
		return "", false, nil
	}
	canonical, ok := m[normalize(term)]
	return canonical, ok, nil
}

func normalize(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

type cacheKey struct{ field, term string }

type cacheEntry struct {
	canonical string
	ok        bool
}

// Cached is a read-through LRU in front of another Lookup. Unknown terms are
// cached too; errors are not.
type Cached struct {
	next   Lookup
	cache  *lru.Cache[cacheKey, cacheEntry]
	hits   atomic.Int64
	misses atomic.Int64
}

// DefaultCacheSize is used when NewCached gets a size <= 0.
const DefaultCacheSize = 4096

// NewCached wraps next with an LRU of the given size.
func NewCached(next Lookup, size int) (*Cached, error) {
	if next == nil {
		return nil, errors.New("lookup: nil backing lookup")
	}
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[cacheKey, cacheEntry](size)
	if err != nil {
		return nil, err
	}
	return &Cached{next: next, cache: cache}, nil
}

// Resolve implements Lookup.
func (c *Cached) Resolve(ctx context.Context, field, term string) (string, bool, error) {
	key := cacheKey{field: field, term: term}
	if e, ok := c.cache.Get(key); ok {
		c.hits.Add(1)
		return e.canonical, e.ok, nil
	}
	c.misses.Add(1)
	canonical, ok, err := c.next.Resolve(ctx, field, term)
	if err != nil {
		return "", false, err
	}
	c.cache.Add(key, cacheEntry{canonical: canonical, ok: ok})
	return canonical, ok, nil
}

// Stats returns the cache hit and miss counts.
func (c *Cached) Stats() (hits, misses int64) { return c.hits.Load(), c.misses.Load() }

// Len returns the number of cached entries.
func (c *Cached) Len() int { return c.cache.Len() }
