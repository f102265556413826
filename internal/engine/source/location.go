// Package source keeps the last-known text of every source unit and whether it
// is syntactically fresh. Handles are opaque to the engine.
package source

import "fmt"

// Handle identifies one source unit (usually a file path).
type Handle string

// Location points at a position inside a source unit. Line and Column are 1-based;
// zero means unknown.
type Location struct {
	Unit   Handle
	Line   int
	Column int
}

func (l Location) IsZero() bool {
	return l.Unit == "" && l.Line == 0 && l.Column == 0
}

func (l Location) String() string {
	switch {
	case l.Line == 0:
		return string(l.Unit)
	case l.Column == 0:
		return fmt.Sprintf("%s:%d", l.Unit, l.Line)
	default:
		return fmt.Sprintf("%s:%d:%d", l.Unit, l.Line, l.Column)
	}
}
