package module

import (
	"testing"

	"crossmod/internal/engine/source"
)

func asn1(name string) Identifier {
	return NewIdentifier(name, NotationASN1, source.Location{})
}

func TestIdentifierNormalization(t *testing.T) {
	tests := []struct {
		name string
		a, b Identifier
		want bool
	}{
		{"asn1 hyphen matches underscore", asn1("My-Type"), asn1("My_Type"), true},
		{"ttcn keeps hyphen", NewIdentifier("a-b", NotationTTCN, source.Location{}), NewIdentifier("a_b", NotationTTCN, source.Location{}), false},
		{"notation differs", asn1("X"), NewIdentifier("X", NotationTTCN, source.Location{}), false},
		{"location ignored", NewIdentifier("X", NotationASN1, source.Location{Unit: "a", Line: 3}), asn1("X"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Equal(tt.b); got != tt.want {
				t.Fatalf("Equal() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseNotation(t *testing.T) {
	for in, want := range map[string]Notation{"asn1": NotationASN1, "ASN.1": NotationASN1, "ttcn3": NotationTTCN, " TTCN ": NotationTTCN} {
		got, err := ParseNotation(in)
		if err != nil || got != want {
			t.Fatalf("ParseNotation(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseNotation("cobol"); err == nil {
		t.Fatal("expected error for unknown notation")
	}
}

func TestExportsSymbol(t *testing.T) {
	m := New(asn1("A"), "a.asn")
	m.AddAssignment(&Assignment{ID: asn1("X")})
	if !m.ExportsSymbol(asn1("Anything")) {
		t.Fatal("export-all module must export every name")
	}

	m.Exports = Exports{Symbols: []Symbol{NewSymbol("X-Y", NotationASN1, source.Location{})}}
	if !m.ExportsSymbol(asn1("X_Y")) {
		t.Fatal("expected normalized export match")
	}
	if m.ExportsSymbol(asn1("Z")) {
		t.Fatal("Z is not on the export list")
	}
}

func TestAssignmentLookupFirstWins(t *testing.T) {
	m := New(asn1("A"), "a.asn")
	first := &Assignment{ID: asn1("T"), Kind: KindType}
	m.AddAssignment(first)
	m.AddAssignment(&Assignment{ID: asn1("T"), Kind: KindValue})

	got, ok := m.Assignment("T")
	if !ok || got != first {
		t.Fatalf("expected first declaration, got %+v", got)
	}

	m.AddAssignment(&Assignment{ID: asn1("U")})
	if !m.HasAssignment("U") {
		t.Fatal("index not rebuilt after AddAssignment")
	}
}

func TestImportsRegisterPromotesToPlural(t *testing.T) {
	var im Imports
	im.ResetDerived()

	if im.Register("Foo", 1) {
		t.Fatal("first registration must not promote")
	}
	if im.Register("Foo", 1) {
		t.Fatal("same source twice must not promote")
	}
	if !im.Register("Foo", 2) {
		t.Fatal("second source must promote")
	}
	if _, ok := im.Singular("Foo"); ok {
		t.Fatal("Foo must leave the singular map")
	}
	ids, ok := im.Plural("Foo")
	if !ok || len(ids) != 2 {
		t.Fatalf("plural = %v, %v", ids, ok)
	}
	im.Register("Foo", 3)
	ids, _ = im.Plural("Foo")
	if len(ids) != 3 {
		t.Fatalf("expected third source appended, got %v", ids)
	}
}

func TestCloneIsDeep(t *testing.T) {
	m := New(asn1("A"), "a.asn")
	m.ID = 4
	m.LastImportCheck = 9
	m.AddAssignment(&Assignment{ID: asn1("T"), References: []Reference{{Name: "B"}}})
	e := NewImportSymbols(asn1("B"), source.Location{}, NewSymbol("B", NotationASN1, source.Location{}))
	e.TargetID = 2
	e.UsedForImportation = true
	m.Imports.Edges = append(m.Imports.Edges, e)

	cp := m.Clone()
	if cp.ID != NoModule || !cp.LastImportCheck.IsZero() {
		t.Fatal("clone must look freshly parsed")
	}
	if cp.Imports.Edges[0].TargetID != NoModule || cp.Imports.Edges[0].UsedForImportation {
		t.Fatal("clone must drop edge resolution state")
	}
	cp.Assignments[0].References[0].Name = "changed"
	cp.Imports.Edges[0].Symbols[0].Name = "changed"
	if m.Assignments[0].References[0].Name != "B" || m.Imports.Edges[0].Symbols[0].Name != "B" {
		t.Fatal("clone shares slices with original")
	}
}

func TestImportedNamesDeduplicates(t *testing.T) {
	m := New(asn1("A"), "a.asn")
	m.Imports.Edges = []*ImportEdge{
		NewImportAll(asn1("B-1"), source.Location{}),
		NewImportAll(asn1("C"), source.Location{}),
		NewImportAll(asn1("B_1"), source.Location{}),
	}
	got := m.ImportedNames()
	if len(got) != 2 || got[0] != "B_1" || got[1] != "C" {
		t.Fatalf("ImportedNames() = %v", got)
	}
}

func TestWalk(t *testing.T) {
	m := New(asn1("A"), "a.asn")
	m.Imports.Edges = []*ImportEdge{
		NewImportSymbols(asn1("B"), source.Location{}, NewSymbol("x", NotationASN1, source.Location{})),
	}
	m.AddAssignment(&Assignment{ID: asn1("T"), References: []Reference{{Name: "x"}, {Name: "y"}}})
	m.AddAssignment(&Assignment{ID: asn1("U"), References: []Reference{{Name: "z"}}})

	var refs []string
	Walk(m, func(n Node) Action {
		switch v := n.(type) {
		case *Assignment:
			if v.ID.Name == "U" {
				return SkipChildren
			}
		case *Reference:
			refs = append(refs, v.Name)
		}
		return Continue
	})
	if len(refs) != 2 || refs[0] != "x" || refs[1] != "y" {
		t.Fatalf("unexpected refs %v", refs)
	}

	visited := 0
	completed := Walk(m, func(n Node) Action {
		visited++
		if _, ok := n.(*Symbol); ok {
			return Abort
		}
		return Continue
	})
	if completed {
		t.Fatal("Walk must report abort")
	}
	if visited != 3 {
		t.Fatalf("expected module, edge, symbol visited; got %d", visited)
	}
}
