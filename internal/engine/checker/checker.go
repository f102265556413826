// Package checker is the reference body checker. It verifies what can be
// verified without a full grammar: assignment names are unique, exported
// symbols exist and every reference collected by the grammar resolves.
package checker

import (
	"strings"

	"crossmod/internal/core/ports"
	"crossmod/internal/engine/clock"
	"crossmod/internal/engine/diag"
	"crossmod/internal/engine/module"
)

type Checker struct{}

var _ ports.BodyChecker = Checker{}

func New() Checker { return Checker{} }

func (Checker) CheckModuleBody(m *module.Module, _ clock.Timestamp, lookup ports.SymbolLookup) []*diag.Diagnostic {
	if m == nil || m.SkippedFromChecking {
		return nil
	}

	var out []*diag.Diagnostic
	first := make(map[string]*module.Assignment, len(m.Assignments))
	reported := make(map[string]bool)

	module.Walk(m, func(n module.Node) module.Action {
		switch n := n.(type) {
		case *module.ImportEdge:
			return module.SkipChildren
		case *module.Symbol:
			if !m.Exports.All && !declaredOrImported(m, n.Name) {
				out = append(out, diag.NewError(diag.CodeNoSuchAssignment,
					"exported symbol %s is neither declared nor imported", n.Name).
					At(n.Location))
			}
		case *module.Assignment:
			key := n.ID.Normalized()
			if prev, ok := first[key]; ok {
				out = append(out, diag.NewError(diag.CodeDuplicateAssignment,
					"duplicate definition with name %s", n.ID.Name).
					At(n.ID.Location).
					WithRelated(prev.ID.Location, "previous definition is here"))
				return module.SkipChildren
			}
			first[key] = n
		case *module.Reference:
			if lookup == nil {
				return module.Continue
			}
			key := referenceKey(n)
			if reported[key] {
				return module.Continue
			}
			if _, d := lookup.Lookup(m, *n); d != nil {
				reported[key] = true
				out = append(out, d)
			}
		}
		return module.Continue
	})

	for _, d := range out {
		d.InPhase(diag.PhaseSemantic)
	}
	return out
}

func declaredOrImported(m *module.Module, name string) bool {
	if m.HasAssignment(name) {
		return true
	}
	key := strings.ReplaceAll(name, "-", "_")
	if _, ok := m.Imports.Singular(key); ok {
		return true
	}
	if _, ok := m.Imports.Plural(key); ok {
		return true
	}
	for _, e := range m.Imports.Edges {
		if e.ImportAll && !e.Excluded {
			return true
		}
	}
	return false
}

func referenceKey(r *module.Reference) string {
	return r.Module + "." + r.Name + "@" + r.Location.String()
}
