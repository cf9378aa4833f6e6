// Package testutil holds the layering assertions used by architecture tests:
// the record model stays free of internal packages and the pipeline stays
// free of storage and output drivers.
package testutil

import (
	"fmt"
	"sort"
	"strings"
	"testing"

	"golang.org/x/tools/go/packages"
)

// PrefixForbidden matches the given packages and everything below them.
func PrefixForbidden(prefixes ...string) func(path string) bool {
	return func(path string) bool {
		for _, p := range prefixes {
			if path == p || strings.HasPrefix(path, p+"/") {
				return true
			}
		}
		return false
	}
}

// InternalImportForbidden matches any package under an internal/ directory.
func InternalImportForbidden(path string) bool {
	return strings.Contains(path, "/internal/")
}

// AssertNoDirectImports fails when a non-test file of the packages matched by
// pattern imports a forbidden path.
func AssertNoDirectImports(t testing.TB, pattern string, forbidden func(string) bool, reason string) {
	t.Helper()
	pkgs := load(t, pattern, packages.NeedName|packages.NeedImports)
	if viols := importViolations(pkgs, forbidden, false); len(viols) > 0 {
		t.Fatalf("forbidden direct imports (%s):\n%s", reason, strings.Join(viols, "\n"))
	}
}

// AssertNoTransitiveDependency fails when the packages matched by pattern
// reach a forbidden path through any chain of imports.
func AssertNoTransitiveDependency(t testing.TB, pattern string, forbidden func(string) bool, reason string) {
	t.Helper()
	pkgs := load(t, pattern, packages.NeedName|packages.NeedImports|packages.NeedDeps)
	if viols := importViolations(pkgs, forbidden, true); len(viols) > 0 {
		t.Fatalf("forbidden transitive dependencies (%s):\n%s", reason, strings.Join(viols, "\n"))
	}
}

func load(t testing.TB, pattern string, mode packages.LoadMode) []*packages.Package {
	t.Helper()
	pkgs, err := packages.Load(&packages.Config{Mode: mode}, pattern)
	if err != nil {
		t.Fatalf("load %s: %v", pattern, err)
	}
	if packages.PrintErrors(pkgs) > 0 {
		t.Fatalf("load %s: package errors", pattern)
	}
	return pkgs
}

// importViolations lists "importer -> imported" for every forbidden edge. With
// transitive set the whole import graph below pkgs is walked.
func importViolations(pkgs []*packages.Package, forbidden func(string) bool, transitive bool) []string {
	seen := make(map[string]bool)
	found := make(map[string]struct{})
	var visit func(p *packages.Package)
	visit = func(p *packages.Package) {
		if seen[p.PkgPath] {
			return
		}
		seen[p.PkgPath] = true
		for path, dep := range p.Imports {
			if forbidden(path) {
				found[fmt.Sprintf("%s -> %s", p.PkgPath, path)] = struct{}{}
			}
			if transitive && dep != nil {
				visit(dep)
			}
		}
	}
	for _, p := range pkgs {
		visit(p)
	}
	out := make([]string, 0, len(found))
	for v := range found {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
