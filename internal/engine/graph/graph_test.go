package graph

import (
	"errors"
	"fmt"
	"reflect"
	"testing"

	"crossmod/internal/engine/module"
)

type interner struct {
	ids   map[string]module.ModuleID
	names []string
}

func newInterner() *interner {
	return &interner{ids: make(map[string]module.ModuleID)}
}

func (n *interner) id(name string) module.ModuleID {
	if id, ok := n.ids[name]; ok {
		return id
	}
	id := module.ModuleID(len(n.names))
	n.ids[name] = id
	n.names = append(n.names, name)
	return id
}

func (n *interner) Name(id module.ModuleID) string { return n.names[id] }

func (n *interner) IDOf(key string) (module.ModuleID, bool) {
	id, ok := n.ids[key]
	return id, ok
}

// build creates a graph from "A": {"B", "C"} style adjacency.
func build(t *testing.T, edges map[string][]string) (*ImportGraph, *interner) {
	t.Helper()
	names := newInterner()
	g := New(names)
	for from, targets := range edges {
		ids := make([]module.ModuleID, 0, len(targets))
		for _, to := range targets {
			ids = append(ids, names.id(to))
		}
		g.SetModule(names.id(from), ids)
	}
	return g, names
}

func namesOf(names *interner, ids []module.ModuleID) []string {
	res := make([]string, 0, len(ids))
	for _, id := range ids {
		res = append(res, names.Name(id))
	}
	return res
}

func TestSetModuleReplacesEdges(t *testing.T) {
	g, names := build(t, map[string][]string{"A": {"B"}, "B": nil})
	a, b := names.id("A"), names.id("B")
	if got := g.Importers(b); !reflect.DeepEqual(got, []module.ModuleID{a}) {
		t.Fatalf("Importers(B) = %v", got)
	}

	g.SetModule(a, []module.ModuleID{names.id("C")})
	if got := g.Importers(b); len(got) != 0 {
		t.Fatalf("stale importer edge kept: %v", got)
	}
	if g.EdgeCount() != 1 {
		t.Fatalf("EdgeCount = %d, want 1", g.EdgeCount())
	}
	if g.HasModule(names.id("C")) {
		t.Fatal("missing target must not become a node")
	}
}

func TestSelectBrokenPartsClosure(t *testing.T) {
	// D -> B -> A, C -> A, E isolated
	g, names := build(t, map[string][]string{
		"A": nil,
		"B": {"A"},
		"C": {"A"},
		"D": {"B"},
		"E": nil,
	})

	sel := g.SelectBrokenParts([]module.ModuleID{names.id("A")}, nil)
	got := namesOf(names, sel.Order)
	want := []string{"A", "B", "C", "D"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("order = %v, want %v", got, want)
	}
	if sel.Changed != 1 || sel.Dependents != 3 {
		t.Fatalf("counts changed=%d dependents=%d", sel.Changed, sel.Dependents)
	}
	if sel.Contains(names.id("E")) {
		t.Fatal("unrelated module selected")
	}

	// Changing a leaf importer selects only itself.
	sel = g.SelectBrokenParts([]module.ModuleID{names.id("D")}, nil)
	if got := namesOf(names, sel.Order); !reflect.DeepEqual(got, []string{"D"}) {
		t.Fatalf("order = %v", got)
	}
}

func TestSelectBrokenPartsEmptyWithoutChanges(t *testing.T) {
	g, _ := build(t, map[string][]string{"A": nil, "B": {"A"}})
	if sel := g.SelectBrokenParts(nil, nil); !sel.Empty() {
		t.Fatalf("expected empty selection, got %v", sel.Order)
	}
}

func TestSelectBrokenPartsRemovedModulePropagates(t *testing.T) {
	g, names := build(t, map[string][]string{"A": nil, "B": {"A"}})
	a := names.id("A")
	g.RemoveModule(a)

	sel := g.SelectBrokenParts([]module.ModuleID{a}, nil)
	if got := namesOf(names, sel.Order); !reflect.DeepEqual(got, []string{"B"}) {
		t.Fatalf("order = %v, want [B]", got)
	}
	if sel.Changed != 0 || sel.Dependents != 1 {
		t.Fatalf("counts changed=%d dependents=%d", sel.Changed, sel.Dependents)
	}
}

func TestSelectBrokenPartsStaleAndCycles(t *testing.T) {
	// A -> B -> C -> A, Z -> A, S stale
	g, names := build(t, map[string][]string{
		"A": {"B"},
		"B": {"C"},
		"C": {"A"},
		"Z": {"A"},
		"S": nil,
	})
	sel := g.SelectBrokenParts([]module.ModuleID{names.id("B")}, []module.ModuleID{names.id("S")})
	got := namesOf(names, sel.Order)
	if len(got) != 5 {
		t.Fatalf("expected all five modules, got %v", got)
	}
	pos := map[string]int{}
	for i, n := range got {
		pos[n] = i
	}
	if pos["Z"] < pos["A"] {
		t.Fatalf("importer Z ordered before A: %v", got)
	}
	if sel.Stale != 1 {
		t.Fatalf("Stale = %d", sel.Stale)
	}
}

func TestTopoOrderAcyclic(t *testing.T) {
	g, names := build(t, map[string][]string{
		"App":   {"Lib", "Types"},
		"Lib":   {"Types"},
		"Types": nil,
	})
	order := g.TopoOrder([]module.ModuleID{names.id("App"), names.id("Lib"), names.id("Types")})
	if got := namesOf(names, order); !reflect.DeepEqual(got, []string{"Types", "Lib", "App"}) {
		t.Fatalf("order = %v", got)
	}
}

func TestTopoOrderLongChain(t *testing.T) {
	// M0000 -> M0001 -> ... -> M1999, so name order is the reverse of
	// dependency order.
	const n = 2000
	names := newInterner()
	g := New(names)
	ids := make([]module.ModuleID, n)
	for i := 0; i < n; i++ {
		ids[i] = names.id(fmt.Sprintf("M%04d", i))
	}
	for i := 0; i < n; i++ {
		var targets []module.ModuleID
		if i+1 < n {
			targets = []module.ModuleID{ids[i+1]}
		}
		g.SetModule(ids[i], targets)
	}

	order := g.TopoOrder(ids)
	if len(order) != n {
		t.Fatalf("order has %d modules, want %d", len(order), n)
	}
	for i, id := range order {
		if want := ids[n-1-i]; id != want {
			t.Fatalf("order[%d] = %s, want %s", i, names.Name(id), names.Name(want))
		}
	}

	sel := g.SelectBrokenParts([]module.ModuleID{ids[n-1]}, nil)
	if len(sel.Order) != n || sel.Order[0] != ids[n-1] || sel.Order[n-1] != ids[0] {
		t.Fatalf("selection order spans %d modules", len(sel.Order))
	}
}

func TestDetectCycles(t *testing.T) {
	g, _ := build(t, map[string][]string{
		"A":    {"B"},
		"B":    {"C"},
		"C":    {"A"},
		"Self": {"Self"},
		"D":    {"A"},
	})
	cycles := g.DetectCycles()
	want := [][]string{{"A", "B", "C"}, {"Self"}}
	if !reflect.DeepEqual(cycles, want) {
		t.Fatalf("cycles = %v, want %v", cycles, want)
	}
}

func TestFindImportChain(t *testing.T) {
	g, _ := build(t, map[string][]string{
		"A": {"B", "C"},
		"B": {"D"},
		"C": {"D"},
		"D": nil,
	})
	path, ok := g.FindImportChain("A", "D")
	if !ok || !reflect.DeepEqual(path, []string{"A", "B", "D"}) {
		t.Fatalf("path = %v, %v", path, ok)
	}
	if _, ok := g.FindImportChain("D", "A"); ok {
		t.Fatal("no path expected against edge direction")
	}
	if _, ok := g.FindImportChain("A", "Nope"); ok {
		t.Fatal("unknown target must fail")
	}
}

func TestAnalyzeImpact(t *testing.T) {
	g, _ := build(t, map[string][]string{
		"Core": nil,
		"Mid":  {"Core"},
		"Top":  {"Mid"},
		"Side": {"Core"},
	})
	report, err := g.AnalyzeImpact("Core")
	if err != nil {
		t.Fatalf("AnalyzeImpact: %v", err)
	}
	if !reflect.DeepEqual(report.DirectImporters, []string{"Mid", "Side"}) {
		t.Fatalf("direct = %v", report.DirectImporters)
	}
	if !reflect.DeepEqual(report.TransitiveImporters, []string{"Top"}) {
		t.Fatalf("transitive = %v", report.TransitiveImporters)
	}

	_, err = g.AnalyzeImpact("Unknown")
	if !errors.Is(err, ErrImpactTargetNotFound) {
		t.Fatalf("expected ErrImpactTargetNotFound, got %v", err)
	}
}

func TestComputeModuleMetrics(t *testing.T) {
	g, _ := build(t, map[string][]string{
		"A": {"B"},
		"B": {"C"},
		"C": nil,
	})
	m := g.ComputeModuleMetrics(map[string]int{"C": 4})
	if m["A"].Depth != 2 || m["C"].Depth != 0 {
		t.Fatalf("depths A=%d C=%d", m["A"].Depth, m["C"].Depth)
	}
	if m["C"].FanIn != 1 || m["A"].FanOut != 1 {
		t.Fatalf("fan metrics wrong: %+v", m)
	}
	if m["C"].ImportanceScore != 4 {
		t.Fatalf("importance C = %v, want 4", m["C"].ImportanceScore)
	}
}
