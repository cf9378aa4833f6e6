package testutil

import (
	"reflect"
	"testing"

	"golang.org/x/tools/go/packages"
)

func TestPrefixForbiddenPredicate(t *testing.T) {
	forbidden := PrefixForbidden("psimaker/internal/infra", "psimaker/internal/ledger")
	cases := []struct {
		in   string
		want bool
	}{
		{"psimaker/internal/infra", true},
		{"psimaker/internal/infra/blob/s3", true},
		{"psimaker/internal/ledger", true},
		{"psimaker/internal/infrastructure", false},
		{"psimaker/internal/pipeline", false},
	}
	for _, c := range cases {
		if got := forbidden(c.in); got != c.want {
			t.Fatalf("PrefixForbidden(%q)=%v want %v", c.in, got, c.want)
		}
	}
}

func TestInternalImportForbiddenPredicate(t *testing.T) {
	if !InternalImportForbidden("psimaker/internal/rows") {
		t.Fatal("internal package not matched")
	}
	if InternalImportForbidden("psimaker/pkg/interaction") {
		t.Fatal("public package matched")
	}
}

func graph() []*packages.Package {
	blob := &packages.Package{PkgPath: "psimaker/internal/blob"}
	rows := &packages.Package{PkgPath: "psimaker/internal/rows", Imports: map[string]*packages.Package{
		"psimaker/internal/blob": blob,
	}}
	root := &packages.Package{PkgPath: "psimaker/internal/pipeline", Imports: map[string]*packages.Package{
		"fmt":                    {PkgPath: "fmt"},
		"psimaker/internal/rows": rows,
	}}
	return []*packages.Package{root}
}

func TestImportViolationsDirect(t *testing.T) {
	got := importViolations(graph(), PrefixForbidden("psimaker/internal/blob"), false)
	if len(got) != 0 {
		t.Fatalf("direct scan followed the graph: %v", got)
	}
	got = importViolations(graph(), PrefixForbidden("psimaker/internal/rows"), false)
	want := []string{"psimaker/internal/pipeline -> psimaker/internal/rows"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("violations = %v, want %v", got, want)
	}
}

func TestImportViolationsTransitive(t *testing.T) {
	got := importViolations(graph(), InternalImportForbidden, true)
	want := []string{
		"psimaker/internal/pipeline -> psimaker/internal/rows",
		"psimaker/internal/rows -> psimaker/internal/blob",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("violations = %v, want %v", got, want)
	}
}
