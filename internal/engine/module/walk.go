package module

// Action steers Walk.
type Action int

const (
	Continue Action = iota
	SkipChildren
	Abort
)

// Node is any element Walk visits: *Module, *ImportEdge, *Symbol,
// *Assignment or *Reference.
type Node interface {
	node()
}

func (*Module) node()     {}
func (*ImportEdge) node() {}
func (*Symbol) node()     {}
func (*Assignment) node() {}
func (*Reference) node()  {}

// Walk visits m depth-first: the module, its export symbols, each import edge
// with its symbols, then each assignment with its references. It returns false
// when fn aborted the traversal.
func Walk(m *Module, fn func(Node) Action) bool {
	switch fn(m) {
	case Abort:
		return false
	case SkipChildren:
		return true
	}

	for i := range m.Exports.Symbols {
		if fn(&m.Exports.Symbols[i]) == Abort {
			return false
		}
	}
	for _, e := range m.Imports.Edges {
		switch fn(e) {
		case Abort:
			return false
		case SkipChildren:
			continue
		}
		for i := range e.Symbols {
			if fn(&e.Symbols[i]) == Abort {
				return false
			}
		}
	}
	for _, a := range m.Assignments {
		switch fn(a) {
		case Abort:
			return false
		case SkipChildren:
			continue
		}
		for i := range a.References {
			if fn(&a.References[i]) == Abort {
				return false
			}
		}
	}
	return true
}
