// Package ports declares the contracts between the analysis core and the
// collaborators it does not own: source access, grammars, body checking,
// diagnostic sinks, task scheduling and history persistence.
package ports

import (
	"context"
	"time"

	"crossmod/internal/data/history"
	"crossmod/internal/engine/clock"
	"crossmod/internal/engine/diag"
	"crossmod/internal/engine/module"
	"crossmod/internal/engine/source"
)

// SourceProvider hands the core the text of a source unit. Exclusion policy and
// editor buffering stay with the implementation.
type SourceProvider interface {
	ReadText(h source.Handle) ([]byte, error)
	IsAccessible(h source.Handle) bool
}

// Grammar parses one unit. It must behave as a pure function of its inputs;
// a nil module means the unit did not yield a module identifier.
type Grammar interface {
	Parse(h source.Handle, text []byte) (*module.Module, []*diag.Diagnostic)
}

// GrammarFunc adapts a function to Grammar.
type GrammarFunc func(h source.Handle, text []byte) (*module.Module, []*diag.Diagnostic)

func (f GrammarFunc) Parse(h source.Handle, text []byte) (*module.Module, []*diag.Diagnostic) {
	return f(h, text)
}

// Resolution is the target of a successful symbol lookup.
type Resolution struct {
	Module     *module.Module
	Assignment *module.Assignment
	Imported   bool
}

// SymbolLookup resolves references from inside a module body after its imports
// have been checked.
type SymbolLookup interface {
	Lookup(m *module.Module, ref module.Reference) (Resolution, *diag.Diagnostic)
}

// BodyChecker is the type-checking collaborator, called once per selected
// module after its imports are resolved.
type BodyChecker interface {
	CheckModuleBody(m *module.Module, ts clock.Timestamp, lookup SymbolLookup) []*diag.Diagnostic
}

// BodyCheckerFunc adapts a function to BodyChecker.
type BodyCheckerFunc func(m *module.Module, ts clock.Timestamp, lookup SymbolLookup) []*diag.Diagnostic

func (f BodyCheckerFunc) CheckModuleBody(m *module.Module, ts clock.Timestamp, lookup SymbolLookup) []*diag.Diagnostic {
	return f(m, ts, lookup)
}

// DiagnosticSink receives every diagnostic the core produces.
type DiagnosticSink = diag.Sink

// Task is one unit of schedulable work.
type Task func(ctx context.Context) error

// TaskHandle identifies a submitted task.
type TaskHandle interface {
	Done() <-chan struct{}
	Err() error
}

// Scheduler is the minimal scheduling contract: run independent tasks, await
// them, and observe cancellation.
type Scheduler interface {
	Submit(task Task) TaskHandle
	AwaitAll(handles []TaskHandle) error
	IsCancelled() bool
}

// HistoryStore persists cycle summaries.
type HistoryStore interface {
	SaveRun(run history.CycleRun) error
	LoadRuns(project string, since time.Time) ([]history.CycleRun, error)
	Close() error
}
