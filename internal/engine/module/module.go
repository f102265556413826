package module

import (
	"crossmod/internal/engine/clock"
	"crossmod/internal/engine/source"
)

type AssignmentKind int

const (
	KindType AssignmentKind = iota
	KindValue
	KindValueSet
	KindObjectClass
	KindObject
	KindObjectSet
	KindConst
	KindTemplate
	KindFunction
	KindAltstep
	KindTestcase
	KindModulePar
	KindExternal
)

func (k AssignmentKind) String() string {
	switch k {
	case KindType:
		return "type"
	case KindValue:
		return "value"
	case KindValueSet:
		return "value set"
	case KindObjectClass:
		return "object class"
	case KindObject:
		return "object"
	case KindObjectSet:
		return "object set"
	case KindConst:
		return "const"
	case KindTemplate:
		return "template"
	case KindFunction:
		return "function"
	case KindAltstep:
		return "altstep"
	case KindTestcase:
		return "testcase"
	case KindModulePar:
		return "modulepar"
	case KindExternal:
		return "external"
	default:
		return "assignment"
	}
}

// Reference is a use of a name inside an assignment body. Module is empty for
// unqualified references.
type Reference struct {
	Module   string
	Name     string
	Location source.Location
}

// Assignment is a local top-level declaration. Body is the notation-specific
// payload owned by the type-checker collaborator.
type Assignment struct {
	ID         Identifier
	Kind       AssignmentKind
	References []Reference
	Body       any
}

// Exports is either "export everything" or an explicit symbol list.
type Exports struct {
	All     bool
	Symbols []Symbol
	// Location of the EXPORTS clause, when there is one.
	Location source.Location
}

// Module is the top-level compilation unit.
type Module struct {
	ID       ModuleID
	Name     Identifier
	Notation Notation
	Unit     source.Handle

	Assignments []*Assignment
	Exports     Exports
	Imports     Imports

	LastImportCheck   clock.Timestamp
	LastSemanticCheck clock.Timestamp

	// SkippedFromChecking defers checking for reasons unrelated to the module's
	// content. Such modules are never type-checked.
	SkippedFromChecking bool
	// Erroneous is set by the import check when some import could not be resolved.
	Erroneous bool

	assignmentIndex map[string]*Assignment
}

// New creates an empty module owned by unit. Exports default to "all", which is
// the meaning of a missing EXPORTS clause in both notations.
func New(name Identifier, unit source.Handle) *Module {
	return &Module{
		ID:       NoModule,
		Name:     name,
		Notation: name.Notation,
		Unit:     unit,
		Exports:  Exports{All: true},
	}
}

// Key is the registry key of the module name.
func (m *Module) Key() string {
	return m.Name.Normalized()
}

// AddAssignment appends a local declaration.
func (m *Module) AddAssignment(a *Assignment) {
	m.Assignments = append(m.Assignments, a)
	m.assignmentIndex = nil
}

// Assignment finds a local declaration by name. The first declaration wins when
// a name is declared twice.
func (m *Module) Assignment(name string) (*Assignment, bool) {
	if m.assignmentIndex == nil {
		m.assignmentIndex = make(map[string]*Assignment, len(m.Assignments))
		for _, a := range m.Assignments {
			key := a.ID.Normalized()
			if _, exists := m.assignmentIndex[key]; !exists {
				m.assignmentIndex[key] = a
			}
		}
	}
	a, ok := m.assignmentIndex[NormalizeName(name, m.Notation)]
	return a, ok
}

// HasAssignment reports whether name is declared locally.
func (m *Module) HasAssignment(name string) bool {
	_, ok := m.Assignment(name)
	return ok
}

// ExportsSymbol reports whether id is visible to importers: true iff the
// module exports everything or id is on its explicit export list.
func (m *Module) ExportsSymbol(id Identifier) bool {
	if m.Exports.All {
		return true
	}
	key := NormalizeName(id.Name, m.Notation)
	for _, sym := range m.Exports.Symbols {
		if sym.Normalized() == key {
			return true
		}
	}
	return false
}

// ImportedNames returns the normalized target names of every import edge, in
// declaration order, without duplicates.
func (m *Module) ImportedNames() []string {
	seen := make(map[string]bool, len(m.Imports.Edges))
	res := make([]string, 0, len(m.Imports.Edges))
	for _, e := range m.Imports.Edges {
		key := e.Target.Normalized()
		if seen[key] {
			continue
		}
		seen[key] = true
		res = append(res, key)
	}
	return res
}

// Clone returns a deep copy of the parse products. Check timestamps and the
// derived import maps are reset, so the copy looks freshly parsed.
func (m *Module) Clone() *Module {
	if m == nil {
		return nil
	}
	cp := &Module{
		ID:                  NoModule,
		Name:                m.Name,
		Notation:            m.Notation,
		Unit:                m.Unit,
		SkippedFromChecking: m.SkippedFromChecking,
		Exports: Exports{
			All:      m.Exports.All,
			Symbols:  append([]Symbol(nil), m.Exports.Symbols...),
			Location: m.Exports.Location,
		},
	}
	cp.Assignments = make([]*Assignment, 0, len(m.Assignments))
	for _, a := range m.Assignments {
		ac := *a
		ac.References = append([]Reference(nil), a.References...)
		cp.Assignments = append(cp.Assignments, &ac)
	}
	cp.Imports.Edges = make([]*ImportEdge, 0, len(m.Imports.Edges))
	for _, e := range m.Imports.Edges {
		ec := &ImportEdge{
			Target:    e.Target,
			TargetID:  NoModule,
			Symbols:   append([]Symbol(nil), e.Symbols...),
			ImportAll: e.ImportAll,
			Location:  e.Location,
		}
		cp.Imports.Edges = append(cp.Imports.Edges, ec)
	}
	return cp
}
