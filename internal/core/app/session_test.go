package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "crossmod/internal/core/errors"
	"crossmod/internal/core/ports"
	"crossmod/internal/data/history"
	"crossmod/internal/engine/checker"
	"crossmod/internal/engine/clock"
	"crossmod/internal/engine/diag"
	"crossmod/internal/engine/module"
	"crossmod/internal/engine/parser"
	"crossmod/internal/engine/source"
)

// lineGrammar understands a tiny line format:
//
//	module NAME
//	import TARGET SYM...
//	def NAME REF...
//
// Text without a module line yields no module.
func lineGrammar(h source.Handle, text []byte) (*module.Module, []*diag.Diagnostic) {
	var m *module.Module
	for i, line := range strings.Split(string(text), "\n") {
		f := strings.Fields(line)
		if len(f) < 2 {
			continue
		}
		loc := source.Location{Unit: h, Line: i + 1, Column: 1}
		switch {
		case f[0] == "module":
			m = module.New(module.NewIdentifier(f[1], module.NotationASN1, loc), h)
		case m == nil:
		case f[0] == "import":
			syms := make([]module.Symbol, 0, len(f)-2)
			for _, s := range f[2:] {
				syms = append(syms, module.NewSymbol(s, module.NotationASN1, loc))
			}
			target := module.NewIdentifier(f[1], module.NotationASN1, loc)
			m.Imports.Edges = append(m.Imports.Edges, module.NewImportSymbols(target, loc, syms...))
		case f[0] == "def":
			a := &module.Assignment{ID: module.NewIdentifier(f[1], module.NotationASN1, loc), Kind: module.KindType}
			for _, r := range f[2:] {
				a.References = append(a.References, module.Reference{Name: r, Location: loc})
			}
			m.AddAssignment(a)
		}
	}
	return m, nil
}

func lineRouter() *parser.Router {
	r := parser.NewRouter()
	r.Register(ports.GrammarFunc(lineGrammar), module.NotationASN1, ".mod")
	return r
}

func newTestSession(t *testing.T, opts SessionOptions) *Session {
	t.Helper()
	if opts.Router == nil {
		opts.Router = lineRouter()
	}
	if opts.Project == "" {
		opts.Project = "test"
	}
	opts.Settings.Workers = 2
	s, err := NewSession(opts)
	require.NoError(t, err)
	return s
}

func write(s *Session, files map[string]string) {
	for name, text := range files {
		s.UpdateUnit(source.Handle(name), []byte(text))
	}
}

func analyze(t *testing.T, s *Session) CycleReport {
	t.Helper()
	report, err := s.AnalyzeCycle(context.Background())
	require.NoError(t, err)
	require.Equal(t, history.StatusCompleted, report.Status)
	return report
}

func codesOf(diags []*diag.Diagnostic) []diag.Code {
	out := make([]diag.Code, 0, len(diags))
	for _, d := range diags {
		out = append(out, d.Code)
	}
	return out
}

func lookupModule(t *testing.T, s *Session, name string) *module.Module {
	t.Helper()
	m, ok := s.Registry().Lookup(name)
	require.True(t, ok, "module %s not registered", name)
	return m
}

func TestAnalyzeCycleChecksChangedAndDependents(t *testing.T) {
	s := newTestSession(t, SessionOptions{})
	write(s, map[string]string{
		"a.mod": "module A\ndef X\n",
		"b.mod": "module B\nimport A X\ndef Y X\n",
		"c.mod": "module C\ndef Z\n",
	})

	first := analyze(t, s)
	assert.Equal(t, 3, first.Parsed)
	assert.Equal(t, 3, first.Selected)
	assert.Equal(t, 3, first.Checked)
	assert.Equal(t, []string{"A", "B", "C"}, first.Changed)
	assert.Empty(t, s.Diagnostics().All())
	assert.Equal(t, 3, s.Registry().UpToDateCount())

	idle := analyze(t, s)
	assert.Zero(t, idle.Parsed)
	assert.Zero(t, idle.Selected)

	write(s, map[string]string{"a.mod": "module A\ndef X\ndef W\n"})
	third := analyze(t, s)
	assert.Equal(t, 1, third.Parsed)
	assert.Equal(t, 2, third.Selected)
	assert.Equal(t, []string{"A"}, third.Changed)

	assert.Equal(t, third.Timestamp, lookupModule(t, s, "A").LastSemanticCheck)
	assert.Equal(t, third.Timestamp, lookupModule(t, s, "B").LastSemanticCheck)
	assert.Equal(t, first.Timestamp, lookupModule(t, s, "C").LastSemanticCheck)
	assert.True(t, first.Timestamp.Less(third.Timestamp))
	assert.Zero(t, s.Registry().OutdatedCount())
}

func TestMissingModuleRecoversWhenAdded(t *testing.T) {
	s := newTestSession(t, SessionOptions{})
	write(s, map[string]string{"b.mod": "module B\nimport A X\ndef Y X\n"})

	analyze(t, s)
	assert.Contains(t, codesOf(s.Diagnostics().All()), diag.CodeMissingModule)
	assert.True(t, lookupModule(t, s, "B").Erroneous)

	write(s, map[string]string{"a.mod": "module A\ndef X\n"})
	report := analyze(t, s)
	assert.Equal(t, 2, report.Selected, "the importer of the new module is re-checked")
	assert.Empty(t, s.Diagnostics().All())
	assert.False(t, lookupModule(t, s, "B").Erroneous)
}

func TestDuplicateModuleRejectedUntilRenamed(t *testing.T) {
	s := newTestSession(t, SessionOptions{})
	write(s, map[string]string{
		"a1.mod": "module A\ndef X\n",
		"a2.mod": "module A\ndef Y\n",
	})

	analyze(t, s)
	dups := s.Diagnostics().WithCode(diag.CodeDuplicateModule)
	require.Len(t, dups, 2)
	assert.Equal(t, source.Handle("a1.mod"), lookupModule(t, s, "A").Unit)
	assert.Equal(t, []source.Handle{"a2.mod"}, s.Store().Linked("a1.mod"))

	write(s, map[string]string{"a2.mod": "module A2\ndef Y\n"})
	report := analyze(t, s)
	assert.Equal(t, 2, report.Parsed, "linked units are re-parsed together")
	assert.Empty(t, s.Diagnostics().WithCode(diag.CodeDuplicateModule))
	assert.Equal(t, []string{"A", "A2"}, s.Registry().Names())
	assert.Empty(t, s.Store().Linked("a1.mod"))
}

func TestModulesSwapNamesInOneBatch(t *testing.T) {
	s := newTestSession(t, SessionOptions{})
	write(s, map[string]string{
		"a.mod": "module X\n",
		"b.mod": "module Y\n",
	})
	analyze(t, s)

	write(s, map[string]string{
		"a.mod": "module Y\n",
		"b.mod": "module X\n",
	})
	analyze(t, s)
	assert.Empty(t, s.Diagnostics().All())
	assert.Equal(t, source.Handle("b.mod"), lookupModule(t, s, "X").Unit)
	assert.Equal(t, source.Handle("a.mod"), lookupModule(t, s, "Y").Unit)
}

func TestCircularImportReportedOnce(t *testing.T) {
	files := map[string]string{
		"a.mod": "module A\nimport B Tb\ndef Ta\n",
		"b.mod": "module B\nimport C Tc\ndef Tb\n",
		"c.mod": "module C\nimport A Ta\ndef Tc\n",
	}

	s := newTestSession(t, SessionOptions{Settings: Settings{ReportCircularImports: true}})
	write(s, files)
	report := analyze(t, s)

	require.Len(t, report.Cycles, 1)
	cycle := report.Cycles[0]
	require.Len(t, cycle, 4)
	assert.Equal(t, cycle[0], cycle[3])
	assert.ElementsMatch(t, []string{"A", "B", "C"}, cycle[:3])
	assert.Len(t, s.Diagnostics().WithCode(diag.CodeCircularImport), 1)
	assert.Equal(t, 3, report.Checked)

	quiet := newTestSession(t, SessionOptions{})
	write(quiet, files)
	report = analyze(t, quiet)
	assert.Len(t, report.Cycles, 1)
	assert.Empty(t, quiet.Diagnostics().WithCode(diag.CodeCircularImport))
}

func TestCancelledBeforeParsingLeavesStateAlone(t *testing.T) {
	s := newTestSession(t, SessionOptions{})
	write(s, map[string]string{"a.mod": "module A\n"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report, err := s.AnalyzeCycle(ctx)
	require.Error(t, err)
	assert.True(t, domainerrors.IsCode(err, domainerrors.CodeCancelled))
	assert.Equal(t, history.StatusCancelled, report.Status)
	assert.Zero(t, s.Registry().Len())
	assert.True(t, s.HasWork())

	report = analyze(t, s)
	assert.Equal(t, 1, report.Checked)
}

func TestCancelledCheckKeepsPendingWork(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancelOnA := true
	body := ports.BodyCheckerFunc(func(m *module.Module, ts clock.Timestamp, lookup ports.SymbolLookup) []*diag.Diagnostic {
		if cancelOnA && m.Name.Name == "A" {
			cancel()
		}
		return checker.New().CheckModuleBody(m, ts, lookup)
	})

	s := newTestSession(t, SessionOptions{Checker: body})
	write(s, map[string]string{
		"a.mod": "module A\ndef X\n",
		"b.mod": "module B\nimport A X\ndef Y X\n",
	})

	report, err := s.AnalyzeCycle(ctx)
	require.Error(t, err)
	assert.Equal(t, history.StatusCancelled, report.Status)
	assert.Equal(t, 2, s.Registry().Len(), "merge completed before the check phase")
	assert.Zero(t, s.Registry().UpToDateCount(), "a cancelled cycle marks nothing up to date")
	assert.True(t, s.HasWork())

	cancelOnA = false
	report = analyze(t, s)
	assert.Zero(t, report.Parsed)
	assert.Equal(t, 2, report.Selected)
	assert.Equal(t, 2, s.Registry().UpToDateCount())
	assert.False(t, s.HasWork())
}

func TestModuleFailureIsIsolated(t *testing.T) {
	body := ports.BodyCheckerFunc(func(m *module.Module, ts clock.Timestamp, lookup ports.SymbolLookup) []*diag.Diagnostic {
		if m.Name.Name == "Boom" {
			panic("checker bug")
		}
		return nil
	})
	s := newTestSession(t, SessionOptions{Checker: body})
	write(s, map[string]string{
		"boom.mod": "module Boom\n",
		"fine.mod": "module Fine\n",
	})

	report := analyze(t, s)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.Checked)
	internal := s.Diagnostics().WithCode(diag.CodeInternal)
	require.Len(t, internal, 1)
	assert.Equal(t, source.Handle("boom.mod"), internal[0].Location.Unit)

	boom := lookupModule(t, s, "Boom")
	assert.False(t, s.Registry().IsUpToDate(boom.ID))
	assert.True(t, s.Registry().IsUpToDate(lookupModule(t, s, "Fine").ID))

	report = analyze(t, s)
	assert.Equal(t, 1, report.Selected, "failed modules stay stale")
}

func TestRemovedUnitBreaksImporters(t *testing.T) {
	s := newTestSession(t, SessionOptions{})
	write(s, map[string]string{
		"a.mod": "module A\ndef X\n",
		"b.mod": "module B\nimport A X\ndef Y X\n",
	})
	analyze(t, s)

	require.True(t, s.RemoveUnit("a.mod"))
	report := analyze(t, s)
	assert.Equal(t, []string{"A"}, report.Changed)
	assert.Equal(t, []string{"B"}, s.Registry().Names())
	assert.Contains(t, codesOf(s.Diagnostics().All()), diag.CodeMissingModule)
	_, shadowed := s.Registry().Outdated("A")
	assert.False(t, shadowed)
}

func TestHighlyErroneousUnitReleasesModule(t *testing.T) {
	s := newTestSession(t, SessionOptions{})
	write(s, map[string]string{
		"a.mod": "module A\ndef X\n",
		"b.mod": "module B\nimport A X\n",
	})
	analyze(t, s)

	write(s, map[string]string{"a.mod": "garbage only\n"})
	analyze(t, s)
	_, ok := s.Registry().Lookup("A")
	assert.False(t, ok)
	assert.True(t, s.Store().IsHighlyErroneous("a.mod"))
	all := codesOf(s.Diagnostics().All())
	assert.Contains(t, all, diag.CodeHighlyErroneous)
	assert.Contains(t, all, diag.CodeMissingModule)

	write(s, map[string]string{"a.mod": "module A\ndef X\n"})
	analyze(t, s)
	assert.Empty(t, s.Diagnostics().All())
}

func TestSkipCheckingAndUnusedImports(t *testing.T) {
	s := newTestSession(t, SessionOptions{Settings: Settings{
		WarnUnusedImports:    true,
		UnusedImportExcludes: []string{"Quiet*"},
		SkipChecking:         []string{"Gen*"},
	}})
	write(s, map[string]string{
		"gen.mod":   "module Generated\ndef T\ndef T\n",
		"lib.mod":   "module Lib\ndef X\n",
		"quiet.mod": "module QuietLib\ndef Q\n",
		"use.mod":   "module User\nimport Lib X\nimport QuietLib Q\ndef Y\n",
	})
	analyze(t, s)

	gen := lookupModule(t, s, "Generated")
	assert.True(t, gen.SkippedFromChecking)
	assert.True(t, s.Registry().IsUpToDate(gen.ID))
	assert.Empty(t, s.Diagnostics().WithCode(diag.CodeDuplicateAssignment))

	unused := s.Diagnostics().WithCode(diag.CodeUnusedImport)
	require.Len(t, unused, 1)
	assert.Contains(t, unused[0].Message, "Lib")
}

func TestSetSettingsRejectsBadPattern(t *testing.T) {
	s := newTestSession(t, SessionOptions{})
	err := s.SetSettings(Settings{UnusedImportExcludes: []string{"[oops"}})
	require.Error(t, err)
	assert.True(t, domainerrors.IsCode(err, domainerrors.CodeValidationError))
}

func TestHandleChangesReadsFromDisk(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.mod")
	require.NoError(t, os.WriteFile(path, []byte("module A\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("module N\n"), 0o644))

	s := newTestSession(t, SessionOptions{})
	assert.Equal(t, 1, s.HandleChanges([]string{path, filepath.Join(dir, "notes.txt")}))
	assert.Zero(t, s.HandleChanges([]string{path}), "unchanged text is not a change")
	analyze(t, s)
	lookupModule(t, s, "A")

	require.NoError(t, os.Remove(path))
	assert.Equal(t, 1, s.HandleChanges([]string{path}))
	analyze(t, s)
	assert.Zero(t, s.Registry().Len())
}

type memoryHistory struct {
	runs []history.CycleRun
}

func (h *memoryHistory) SaveRun(run history.CycleRun) error {
	h.runs = append(h.runs, run)
	return nil
}

func (h *memoryHistory) LoadRuns(string, time.Time) ([]history.CycleRun, error) {
	return h.runs, nil
}

func (h *memoryHistory) Close() error { return nil }

func TestCycleHistoryIsRecorded(t *testing.T) {
	store := &memoryHistory{}
	s := newTestSession(t, SessionOptions{History: store})
	write(s, map[string]string{"a.mod": "module A\ndef X Missing\n"})
	report := analyze(t, s)

	require.Len(t, store.runs, 1)
	run := store.runs[0]
	assert.Equal(t, report.ID, run.ID)
	assert.Equal(t, "test", run.Project)
	assert.Equal(t, history.StatusCompleted, run.Status)
	assert.Equal(t, uint64(report.Timestamp), run.Timestamp)
	assert.Equal(t, 1, run.Errors)
	assert.Equal(t, report.ID, s.LastReport().ID)
}
