package module

import (
	"sort"

	"crossmod/internal/engine/source"
)

// ImportEdge is one import clause: a target module plus an optional explicit
// symbol list. ImportAll edges make everything the target exports visible.
type ImportEdge struct {
	Target    Identifier
	TargetID  ModuleID
	Symbols   []Symbol
	ImportAll bool
	Location  source.Location

	// UsedForImportation is set lazily when a lookup resolves through this edge.
	UsedForImportation bool
	// Excluded edges (self imports, missing or wrong-notation targets) take no
	// part in symbol resolution.
	Excluded bool
}

// NewImportAll builds a symbol-less edge.
func NewImportAll(target Identifier, loc source.Location) *ImportEdge {
	return &ImportEdge{Target: target, TargetID: NoModule, ImportAll: true, Location: loc}
}

// NewImportSymbols builds an edge restricted to symbols.
func NewImportSymbols(target Identifier, loc source.Location, symbols ...Symbol) *ImportEdge {
	return &ImportEdge{Target: target, TargetID: NoModule, Symbols: symbols, Location: loc}
}

// Imports is the ordered edge list of a module plus the symbol maps derived by
// the last import check.
type Imports struct {
	Edges []*ImportEdge

	singular map[string]ModuleID
	plural   map[string][]ModuleID
}

// ResetDerived clears the maps computed by an import check and the per-edge
// resolution state.
func (im *Imports) ResetDerived() {
	im.singular = make(map[string]ModuleID)
	im.plural = make(map[string][]ModuleID)
	for _, e := range im.Edges {
		e.TargetID = NoModule
		e.Excluded = false
		e.UsedForImportation = false
	}
}

// Register records that name is imported from module from. A name already
// registered from a different module is promoted to the plural set; the return
// value reports whether that happened.
func (im *Imports) Register(name string, from ModuleID) (promoted bool) {
	if im.singular == nil {
		im.singular = make(map[string]ModuleID)
	}
	if im.plural == nil {
		im.plural = make(map[string][]ModuleID)
	}

	if sources, ok := im.plural[name]; ok {
		for _, id := range sources {
			if id == from {
				return false
			}
		}
		im.plural[name] = append(sources, from)
		return false
	}

	prev, ok := im.singular[name]
	if !ok {
		im.singular[name] = from
		return false
	}
	if prev == from {
		return false
	}
	delete(im.singular, name)
	im.plural[name] = []ModuleID{prev, from}
	return true
}

// Singular returns the one module name uniquely resolves to.
func (im *Imports) Singular(name string) (ModuleID, bool) {
	id, ok := im.singular[name]
	return id, ok
}

// Plural returns the modules an ambiguous name resolves to.
func (im *Imports) Plural(name string) ([]ModuleID, bool) {
	ids, ok := im.plural[name]
	if !ok {
		return nil, false
	}
	return append([]ModuleID(nil), ids...), true
}

func (im *Imports) SingularNames() []string {
	res := make([]string, 0, len(im.singular))
	for name := range im.singular {
		res = append(res, name)
	}
	sort.Strings(res)
	return res
}

func (im *Imports) PluralNames() []string {
	res := make([]string, 0, len(im.plural))
	for name := range im.plural {
		res = append(res, name)
	}
	sort.Strings(res)
	return res
}

// EdgesTo returns the non-excluded edges resolved to target.
func (im *Imports) EdgesTo(target ModuleID) []*ImportEdge {
	res := make([]*ImportEdge, 0, 1)
	for _, e := range im.Edges {
		if !e.Excluded && e.TargetID == target {
			res = append(res, e)
		}
	}
	return res
}
