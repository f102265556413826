// Package diag carries the diagnostics produced by every analysis phase.
// The engine reports through a Sink and never renders or persists them.
package diag

import (
	"fmt"

	"crossmod/internal/engine/source"
)

// Severity represents the severity level of a diagnostic
type Severity int

const (
	Error Severity = iota
	Warning
	Info
)

func (s Severity) String() string {
	switch s {
	case Error:
		return "error"
	case Warning:
		return "warning"
	case Info:
		return "info"
	default:
		return "unknown"
	}
}

// Phase records which stage of a cycle produced a diagnostic, so a stage can
// invalidate exactly its own previous output for a unit.
type Phase int

const (
	PhaseUnset Phase = iota
	PhaseSyntax
	PhaseRegistry
	PhaseImport
	PhaseSemantic
	// PhaseProject marks conflicts with dependency projects, recomputed
	// every cycle.
	PhaseProject
)

func (p Phase) String() string {
	switch p {
	case PhaseSyntax:
		return "syntax"
	case PhaseRegistry:
		return "registry"
	case PhaseImport:
		return "import"
	case PhaseSemantic:
		return "semantic"
	case PhaseProject:
		return "project"
	default:
		return "unset"
	}
}

// Label is an additional location attached to a diagnostic, e.g. the other
// half of a duplicate.
type Label struct {
	Location source.Location
	Message  string
}

// Diagnostic is a single finding against a source location.
type Diagnostic struct {
	Severity Severity
	Code     Code
	Phase    Phase
	Message  string
	Location source.Location
	Related  []Label
}

// NewError creates a new error diagnostic
func NewError(code Code, format string, args ...any) *Diagnostic {
	return &Diagnostic{Severity: Error, Code: code, Message: fmt.Sprintf(format, args...)}
}

// NewWarning creates a new warning diagnostic
func NewWarning(code Code, format string, args ...any) *Diagnostic {
	return &Diagnostic{Severity: Warning, Code: code, Message: fmt.Sprintf(format, args...)}
}

// At sets the primary location.
func (d *Diagnostic) At(loc source.Location) *Diagnostic {
	d.Location = loc
	return d
}

// WithRelated adds a secondary location.
func (d *Diagnostic) WithRelated(loc source.Location, message string) *Diagnostic {
	d.Related = append(d.Related, Label{Location: loc, Message: message})
	return d
}

func (d *Diagnostic) InPhase(p Phase) *Diagnostic {
	d.Phase = p
	return d
}

func (d *Diagnostic) Clone() *Diagnostic {
	if d == nil {
		return nil
	}
	cp := *d
	cp.Related = append([]Label(nil), d.Related...)
	return &cp
}

func (d *Diagnostic) String() string {
	return fmt.Sprintf("%s: %s [%s] %s", d.Location, d.Severity, d.Code, d.Message)
}
