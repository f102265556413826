package resolver

import (
	"crossmod/internal/core/ports"
	"crossmod/internal/engine/diag"
	"crossmod/internal/engine/module"
)

// maxReexportDepth bounds how far a re-exported symbol is followed.
const maxReexportDepth = 32

var _ ports.SymbolLookup = (*Resolver)(nil)

// Lookup resolves a reference from inside m. Unqualified names are searched in
// the local assignments, then the uniquely imported symbols, then the symbols
// imported from more than one module (an ambiguity), and last the modules
// imported as a whole. Edges a name resolves through are marked used.
func (r *Resolver) Lookup(m *module.Module, ref module.Reference) (ports.Resolution, *diag.Diagnostic) {
	if ref.Module != "" {
		return r.LookupQualified(m, ref.Module, ref)
	}

	if a, ok := m.Assignment(ref.Name); ok {
		return ports.Resolution{Module: m, Assignment: a}, nil
	}

	key := symbolKey(ref.Name)
	if id, ok := m.Imports.Singular(key); ok {
		markUsed(m, id, key)
		target, a := r.follow(r.modules.ByID(id), key, 0)
		return ports.Resolution{Module: target, Assignment: a, Imported: true}, nil
	}
	if ids, ok := m.Imports.Plural(key); ok {
		return ports.Resolution{}, r.ambiguous(ref, ids)
	}

	var (
		found []module.ModuleID
		edges []*module.ImportEdge
	)
	for _, e := range m.Imports.Edges {
		if e.Excluded || !e.ImportAll {
			continue
		}
		target := r.modules.ByID(e.TargetID)
		if target == nil || !provides(target, ref.Name, key) {
			continue
		}
		edges = append(edges, e)
		if !containsID(found, e.TargetID) {
			found = append(found, e.TargetID)
		}
	}
	switch len(found) {
	case 0:
		return ports.Resolution{}, diag.NewError(diag.CodeNoSuchAssignment,
			"there is no assignment or imported symbol with name %s", ref.Name).
			At(ref.Location).
			InPhase(diag.PhaseSemantic)
	case 1:
		for _, e := range edges {
			e.UsedForImportation = true
		}
		target, a := r.follow(r.modules.ByID(found[0]), key, 0)
		return ports.Resolution{Module: target, Assignment: a, Imported: true}, nil
	default:
		return ports.Resolution{}, r.ambiguous(ref, found)
	}
}

// LookupQualified resolves moduleName.name. The qualifier must be m itself or
// a module m imports.
func (r *Resolver) LookupQualified(m *module.Module, moduleName string, ref module.Reference) (ports.Resolution, *diag.Diagnostic) {
	qualifier := module.NormalizeName(moduleName, m.Notation)
	key := symbolKey(ref.Name)

	if qualifier == m.Key() {
		if a, ok := m.Assignment(ref.Name); ok {
			return ports.Resolution{Module: m, Assignment: a}, nil
		}
		return ports.Resolution{}, diag.NewError(diag.CodeNoSuchAssignment,
			"there is no assignment with name %s in module %s", ref.Name, m.Name.Name).
			At(ref.Location).
			InPhase(diag.PhaseSemantic)
	}

	var edges []*module.ImportEdge
	for _, e := range m.Imports.Edges {
		if !e.Excluded && e.Target.Normalized() == qualifier {
			edges = append(edges, e)
		}
	}
	if len(edges) == 0 {
		return ports.Resolution{}, diag.NewError(diag.CodeMissingModule,
			"module %s is not imported by %s", moduleName, m.Name.Name).
			At(ref.Location).
			InPhase(diag.PhaseSemantic)
	}

	target := r.modules.ByID(edges[0].TargetID)
	if target == nil {
		return ports.Resolution{}, diag.NewError(diag.CodeMissingModule,
			"there is no module with name %s", moduleName).
			At(ref.Location).
			InPhase(diag.PhaseSemantic)
	}
	if !target.ExportsSymbol(module.NewIdentifier(ref.Name, m.Notation, ref.Location)) {
		return ports.Resolution{}, diag.NewError(diag.CodeSymbolNotExported,
			"symbol %s is not exported from module %s", ref.Name, target.Name.Name).
			At(ref.Location).
			InPhase(diag.PhaseSemantic)
	}
	if !provides(target, ref.Name, key) {
		return ports.Resolution{}, diag.NewError(diag.CodeNoSuchAssignment,
			"there is no assignment with name %s in module %s", ref.Name, target.Name.Name).
			At(ref.Location).
			InPhase(diag.PhaseSemantic)
	}
	for _, e := range edges {
		e.UsedForImportation = true
	}
	owner, a := r.follow(target, key, 0)
	return ports.Resolution{Module: owner, Assignment: a, Imported: true}, nil
}

// follow returns the module declaring key, starting at m and walking through
// re-exports. When the declaration cannot be reached, m is returned with a nil
// assignment: the import check already accepted the symbol.
func (r *Resolver) follow(m *module.Module, key string, depth int) (*module.Module, *module.Assignment) {
	if m == nil {
		return nil, nil
	}
	if a, ok := m.Assignment(key); ok {
		return m, a
	}
	if depth >= maxReexportDepth {
		return m, nil
	}
	for _, e := range m.Imports.Edges {
		for _, sym := range e.Symbols {
			if symbolKey(sym.Name) != key {
				continue
			}
			_, next := r.modules.Resolve(e.Target.Normalized())
			if next == nil || next == m {
				continue
			}
			if owner, a := r.follow(next, key, depth+1); a != nil {
				return owner, a
			}
		}
	}
	return m, nil
}

func (r *Resolver) ambiguous(ref module.Reference, ids []module.ModuleID) *diag.Diagnostic {
	d := diag.NewError(diag.CodeAmbiguousSymbol,
		"it is not possible to resolve reference %s unambiguously", ref.Name).
		At(ref.Location).
		InPhase(diag.PhaseSemantic)
	for _, id := range ids {
		if target := r.modules.ByID(id); target != nil {
			d.WithRelated(target.Name.Location, "could be the symbol imported from "+target.Name.Name)
		}
	}
	return d
}

// provides reports whether m exports name and either declares it or imports it
// by name.
func provides(m *module.Module, name, key string) bool {
	if !m.ExportsSymbol(module.Identifier{Name: name, Notation: m.Notation}) {
		return false
	}
	return m.HasAssignment(name) || reexports(m, key)
}

// markUsed flags the edges to id that import key explicitly.
func markUsed(m *module.Module, id module.ModuleID, key string) {
	for _, e := range m.Imports.EdgesTo(id) {
		for _, sym := range e.Symbols {
			if symbolKey(sym.Name) == key {
				e.UsedForImportation = true
				break
			}
		}
	}
}

func containsID(ids []module.ModuleID, id module.ModuleID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}
