// Package resolver checks module imports against the registry, detects
// circular importation and resolves symbol references for the body checker.
//
// Every import check is cached per compilation timestamp: a module whose
// LastImportCheck is not older than the cycle timestamp is skipped, so one
// cycle checks each module at most once no matter how often it is reached.
package resolver

import (
	"log/slog"
	"strings"

	"crossmod/internal/engine/clock"
	"crossmod/internal/engine/diag"
	"crossmod/internal/engine/module"
)

type Resolver struct {
	modules Modules
	sink    diag.Sink
}

func New(modules Modules, sink diag.Sink) *Resolver {
	if sink == nil {
		sink = diag.Discard
	}
	return &Resolver{modules: modules, sink: sink}
}

func (r *Resolver) report(d *diag.Diagnostic) {
	r.sink.Report(d.InPhase(diag.PhaseImport))
}

// symbolKey is the notation-independent comparison key of an imported name.
func symbolKey(name string) string {
	return strings.ReplaceAll(name, "-", "_")
}

// CheckImports resolves every import edge of m, recursing into imported
// modules through chain. Failing edges are reported and resolution continues
// with the next one.
func (r *Resolver) CheckImports(m *module.Module, chain *Chain, ts clock.Timestamp) {
	if m == nil || !m.LastImportCheck.Less(ts) {
		return
	}
	m.LastImportCheck = ts
	m.Erroneous = false
	m.Imports.ResetDerived()

	r.checkExports(m)

	seenTargets := make(map[string]*module.ImportEdge, len(m.Imports.Edges))
	for _, e := range m.Imports.Edges {
		key := e.Target.Normalized()

		if key == m.Key() {
			r.report(diag.NewError(diag.CodeSelfImport, "module %s imports itself", m.Name.Name).
				At(e.Location))
			e.Excluded = true
			continue
		}

		if prev, ok := seenTargets[key]; ok && r.duplicateTarget(m, prev, e) {
			e.Excluded = true
			continue
		}
		seenTargets[key] = e

		id, target := r.modules.Resolve(key)
		e.TargetID = id
		if target == nil {
			r.report(diag.NewError(diag.CodeMissingModule, "there is no module with name %s", e.Target.Name).
				At(e.Location))
			e.Excluded = true
			m.Erroneous = true
			continue
		}
		if m.Notation == module.NotationASN1 && target.Notation != module.NotationASN1 {
			r.report(diag.NewError(diag.CodeNotASN1Module, "the module referred to here, %s, is not an ASN.1 module", e.Target.Name).
				At(e.Location).
				WithRelated(target.Name.Location, "module declared here"))
			e.Excluded = true
			m.Erroneous = true
			continue
		}

		if !r.modules.IsUpToDate(id) {
			mark := chain.MarkState()
			if chain.Add(id) {
				r.CheckImports(target, chain, ts)
			} else {
				chain.recordCycle(id, e)
			}
			chain.PreviousState(mark)
		}

		r.registerSymbols(m, e, id, target)
	}

	if m.Erroneous {
		slog.Debug("module imports unresolved", "module", m.Name.Name, "timestamp", ts.String())
	}
}

// duplicateTarget reports a second import of the same module. ASN.1 allows one
// FROM clause per module; TTCN only flags a repeated import of everything.
func (r *Resolver) duplicateTarget(m *module.Module, prev, e *module.ImportEdge) bool {
	switch {
	case m.Notation == module.NotationASN1:
		r.report(diag.NewError(diag.CodeDuplicateImport, "duplicate import from module %s was ignored", e.Target.Name).
			At(e.Location).
			WithRelated(prev.Location, "previous import here"))
		return true
	case prev.ImportAll && e.ImportAll:
		r.report(diag.NewWarning(diag.CodeDuplicateImport, "module %s is imported more than once", e.Target.Name).
			At(e.Location).
			WithRelated(prev.Location, "previous import here"))
		return true
	default:
		return false
	}
}

func (r *Resolver) checkExports(m *module.Module) {
	if m.Exports.All {
		return
	}
	seen := make(map[string]module.Symbol, len(m.Exports.Symbols))
	for _, sym := range m.Exports.Symbols {
		key := symbolKey(sym.Name)
		if prev, ok := seen[key]; ok {
			r.report(diag.NewError(diag.CodeDuplicateSymbol, "duplicate symbol %s in the export list", sym.Name).
				At(sym.Location).
				WithRelated(prev.Location, "previously exported here"))
			continue
		}
		seen[key] = sym
	}
}

// registerSymbols validates an explicit symbol list against target and fills
// the singular and plural maps of m. Import-all edges are resolved lazily by
// Lookup.
func (r *Resolver) registerSymbols(m *module.Module, e *module.ImportEdge, id module.ModuleID, target *module.Module) {
	if e.ImportAll {
		return
	}
	seen := make(map[string]module.Symbol, len(e.Symbols))
	for _, sym := range e.Symbols {
		key := symbolKey(sym.Name)
		if prev, ok := seen[key]; ok {
			d := diag.NewError(diag.CodeDuplicateImport, "duplicate import of symbol %s", sym.Name)
			if m.Notation == module.NotationTTCN {
				d = diag.NewWarning(diag.CodeDuplicateImport, "duplicate import of symbol %s", sym.Name)
			}
			r.report(d.At(sym.Location).WithRelated(prev.Location, "previously imported here"))
			continue
		}
		seen[key] = sym

		if !target.ExportsSymbol(sym.Identifier) {
			r.report(diag.NewError(diag.CodeSymbolNotExported, "symbol %s is not exported from module %s", sym.Name, target.Name.Name).
				At(sym.Location))
			m.Erroneous = true
			continue
		}
		if !target.HasAssignment(sym.Name) && !reexports(target, key) {
			r.report(diag.NewError(diag.CodeNoSuchAssignment, "there is no assignment with name %s exported from module %s", sym.Name, target.Name.Name).
				At(sym.Location))
			m.Erroneous = true
			continue
		}
		m.Imports.Register(key, id)
	}
}

// reexports reports whether m itself imports key by name, making it visible to
// m's importers when m exports it.
func reexports(m *module.Module, key string) bool {
	for _, e := range m.Imports.Edges {
		for _, sym := range e.Symbols {
			if symbolKey(sym.Name) == key {
				return true
			}
		}
	}
	return false
}

// ExportsSymbol reports whether id is visible to importers of m.
func ExportsSymbol(m *module.Module, id module.Identifier) bool {
	return m != nil && m.ExportsSymbol(id)
}
