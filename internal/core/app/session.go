// Package app drives incremental analysis cycles. A Session owns the state of
// one project; a Workspace ties the sessions of several projects together and
// a Coordinator serializes the cycles requested for them.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/gobwas/glob"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"crossmod/internal/core/config"
	domainerrors "crossmod/internal/core/errors"
	"crossmod/internal/core/ports"
	"crossmod/internal/data/history"
	"crossmod/internal/engine/checker"
	"crossmod/internal/engine/clock"
	"crossmod/internal/engine/diag"
	"crossmod/internal/engine/graph"
	"crossmod/internal/engine/module"
	"crossmod/internal/engine/parser"
	"crossmod/internal/engine/registry"
	"crossmod/internal/engine/resolver"
	"crossmod/internal/engine/source"
	"crossmod/internal/shared/observability"
	"crossmod/internal/shared/scheduler"
)

// Settings are the analysis knobs that may change between cycles.
type Settings struct {
	Workers               int
	ReportCircularImports bool
	WarnUnusedImports     bool
	UnusedImportExcludes  []string
	// SkipChecking lists module name patterns whose bodies are never checked.
	SkipChecking []string
}

func SettingsFromConfig(a config.Analysis) Settings {
	return Settings{
		Workers:               a.Workers,
		ReportCircularImports: a.ReportCircular(),
		WarnUnusedImports:     a.WarnUnusedImports,
		UnusedImportExcludes:  append([]string(nil), a.UnusedImportExcludes...),
		SkipChecking:          append([]string(nil), a.SkipChecking...),
	}
}

type compiledSettings struct {
	Settings
	unusedExcludes []glob.Glob
	skip           []glob.Glob
}

func compileSettings(s Settings) (compiledSettings, error) {
	unused, err := resolver.CompileExcludes(s.UnusedImportExcludes)
	if err != nil {
		return compiledSettings{}, domainerrors.Wrap(err, domainerrors.CodeValidationError, "invalid unused import exclude pattern")
	}
	skip, err := resolver.CompileExcludes(s.SkipChecking)
	if err != nil {
		return compiledSettings{}, domainerrors.Wrap(err, domainerrors.CodeValidationError, "invalid skip_checking pattern")
	}
	return compiledSettings{Settings: s, unusedExcludes: unused, skip: skip}, nil
}

type SessionOptions struct {
	Project  string
	Settings Settings

	// Router selects grammars and supported extensions. Defaults to
	// parser.DefaultRouter().
	Router         *parser.Router
	ParseCacheSize int
	Checker        ports.BodyChecker
	Provider       ports.SourceProvider
	History        ports.HistoryStore
	Clock          *clock.Clock
	// Dependencies are the sessions of projects this one imports from. Their
	// registries are searched when a name is not found locally.
	Dependencies []*Session
}

// Session holds the registry, import graph and diagnostics of one project and
// runs its analysis cycles. Cycles of one session never overlap; change intake
// (UpdateUnit, RemoveUnit, HandleChanges) is safe from any goroutine.
type Session struct {
	project string

	clock    *clock.Clock
	store    *source.Store
	registry *registry.Registry
	graph    *graph.ImportGraph
	scope    *resolver.Scope
	router   *parser.Router
	pool     *parser.Pool
	checker  ports.BodyChecker
	provider ports.SourceProvider
	history  ports.HistoryStore
	bag      *diag.Bag
	sink     diag.Sink

	cycleMu sync.Mutex

	mu       sync.Mutex
	settings compiledSettings
	pending  map[module.ModuleID]bool
	removed  map[source.Handle]bool
	last     CycleReport
}

func NewSession(opts SessionOptions) (*Session, error) {
	settings, err := compileSettings(opts.Settings)
	if err != nil {
		return nil, domainerrors.AddContext(err, domainerrors.CtxProject, opts.Project)
	}
	if opts.Project == "" {
		opts.Project = config.DefaultProject
	}
	if opts.Router == nil {
		opts.Router = parser.DefaultRouter()
	}
	if opts.Checker == nil {
		opts.Checker = checker.New()
	}
	if opts.Provider == nil {
		opts.Provider = NewFSProvider()
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	var cache *parser.Cache
	if opts.ParseCacheSize > 0 {
		cache = parser.NewCache(opts.ParseCacheSize)
	}

	reg := registry.New()
	deps := make([]*registry.Registry, 0, len(opts.Dependencies))
	for _, d := range opts.Dependencies {
		deps = append(deps, d.registry)
	}

	s := &Session{
		project:  opts.Project,
		clock:    opts.Clock,
		store:    source.NewStore(),
		registry: reg,
		graph:    graph.New(reg),
		scope:    resolver.NewScope(reg, deps...),
		router:   opts.Router,
		pool:     parser.NewPool(opts.Router, cache),
		checker:  opts.Checker,
		provider: opts.Provider,
		history:  opts.History,
		bag:      diag.NewBag(),
		settings: settings,
		pending:  make(map[module.ModuleID]bool),
		removed:  make(map[source.Handle]bool),
	}
	s.sink = diag.SinkFunc(func(d *diag.Diagnostic) {
		if d == nil {
			return
		}
		observability.DiagnosticsTotal.WithLabelValues(d.Severity.String()).Inc()
		s.bag.Report(d)
	})
	return s, nil
}

func (s *Session) Project() string              { return s.project }
func (s *Session) Registry() *registry.Registry { return s.registry }
func (s *Session) Graph() *graph.ImportGraph    { return s.graph }
func (s *Session) Diagnostics() *diag.Bag       { return s.bag }
func (s *Session) Store() *source.Store         { return s.store }

// Lookup resolves a reference from inside m against the current registries.
func (s *Session) Lookup(m *module.Module, ref module.Reference) (ports.Resolution, *diag.Diagnostic) {
	return resolver.New(s.scope, nil).Lookup(m, ref)
}

func (s *Session) LastReport() CycleReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// SetSettings replaces the analysis settings used from the next cycle on.
func (s *Session) SetSettings(settings Settings) error {
	compiled, err := compileSettings(settings)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.settings = compiled
	s.mu.Unlock()
	return nil
}

func (s *Session) currentSettings() compiledSettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// UpdateUnit records new text for h, for example an unsaved editor buffer. It
// returns false when the text did not change.
func (s *Session) UpdateUnit(h source.Handle, text []byte) bool {
	return s.store.Update(h, text)
}

// RemoveUnit forgets h. Its module leaves the registry in the next cycle.
func (s *Session) RemoveUnit(h source.Handle) bool {
	if !s.store.Remove(h) {
		return false
	}
	s.pool.Forget(h)
	s.mu.Lock()
	s.removed[h] = true
	s.mu.Unlock()
	return true
}

// IsSupported reports whether path has an extension one of the grammars handles.
func (s *Session) IsSupported(path string) bool {
	return s.router.IsSupported(path)
}

// HandleChanges refreshes the units behind paths from the source provider.
// Unreadable or vanished paths are removed. It returns how many units changed.
func (s *Session) HandleChanges(paths []string) int {
	changed := 0
	for _, p := range paths {
		if !s.router.IsSupported(p) {
			continue
		}
		h := source.Handle(filepath.Clean(p))
		if !s.provider.IsAccessible(h) {
			if s.RemoveUnit(h) {
				changed++
			}
			continue
		}
		text, err := s.provider.ReadText(h)
		if err != nil {
			slog.Warn("failed to read source unit", "project", s.project, "unit", h, "error", err)
			continue
		}
		if s.store.Update(h, text) {
			changed++
		}
	}
	if changed > 0 {
		slog.Info("detected changes", "project", s.project, "count", changed)
	}
	return changed
}

// MarkChanged adds module names changed elsewhere (in a dependency project) to
// the pending set, so local importers are re-checked by the next cycle.
func (s *Session) MarkChanged(names ...string) {
	if len(names) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, name := range names {
		s.pending[s.registry.Intern(name)] = true
	}
}

// HasWork reports whether a cycle would have anything to do.
func (s *Session) HasWork() bool {
	if len(s.store.Outdated()) > 0 {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) > 0 || len(s.removed) > 0 {
		return true
	}
	return false
}

func (s *Session) markPending(id module.ModuleID) {
	if !id.Valid() {
		return
	}
	s.mu.Lock()
	s.pending[id] = true
	s.mu.Unlock()
}

// AnalyzeCycle runs one incremental cycle: parse outdated units, merge them
// into the registry, select the broken parts, then resolve imports and check
// bodies of exactly the selection in import order. A cancelled cycle leaves
// the up-to-date set alone and keeps its pending changes for the next one.
func (s *Session) AnalyzeCycle(ctx context.Context) (CycleReport, error) {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	ts := s.clock.Tick()
	report := CycleReport{
		ID:        uuid.NewString(),
		Project:   s.project,
		Timestamp: ts,
		StartedAt: time.Now().UTC(),
	}
	ctx, span := observability.Tracer.Start(ctx, "cycle", trace.WithAttributes(
		attribute.String("project", s.project),
		attribute.String("cycle.id", report.ID),
		attribute.Int64("cycle.timestamp", int64(ts)),
	))
	defer span.End()

	err := s.runCycle(ctx, ts, &report)

	report.Duration = time.Since(report.StartedAt)
	report.Errors, report.Warnings = s.bag.Counts()
	switch {
	case err == nil:
		report.Status = history.StatusCompleted
	case domainerrors.IsCode(err, domainerrors.CodeCancelled):
		report.Status = history.StatusCancelled
	default:
		report.Status = history.StatusFailed
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		err = domainerrors.AddContext(err, domainerrors.CtxProject, s.project)
	}
	s.finish(report)
	return report, err
}

func (s *Session) runCycle(ctx context.Context, ts clock.Timestamp, report *CycleReport) error {
	settings := s.currentSettings()

	results, err := s.parse(ctx, settings.Workers, report)
	if err != nil {
		return err
	}
	s.merge(ctx, results, settings)

	if err := ctx.Err(); err != nil {
		return domainerrors.Cancelled(err, "select")
	}
	sel, changed := s.selectBrokenParts(ctx)
	report.Selected = len(sel.Order)

	ok, err := s.check(ctx, ts, sel, settings, report)
	if err != nil {
		return err
	}
	s.reportShadowedModules()
	s.commit(ts, sel, ok, changed, report)
	return nil
}

func (s *Session) parse(ctx context.Context, workers int, report *CycleReport) ([]parser.Result, error) {
	ctx, end := observability.StartPhase(ctx, "parse", attribute.String("project", s.project))
	defer end()

	outdated := s.store.Outdated()
	snaps := make([]source.Snapshot, 0, len(outdated))
	for _, h := range outdated {
		if snap, ok := s.store.Snapshot(h); ok {
			snaps = append(snaps, snap)
		}
	}
	if len(snaps) == 0 {
		return nil, domainerrors.Cancelled(ctx.Err(), "parse")
	}

	results, err := s.pool.ParseBatch(ctx, scheduler.New(ctx, workers), snaps)
	if err != nil {
		return nil, domainerrors.Cancelled(err, "parse")
	}
	report.Parsed = len(results)
	for _, r := range results {
		if r.Cached {
			report.CacheHits++
		}
		if r.Err != nil {
			slog.Error("parse failed", "project", s.project, "unit", r.Unit, "error", r.Err)
		}
	}
	return results, nil
}

// merge applies removals and parse results in input order. Renamed and
// highly erroneous units release their old module first, so two units may
// swap names within one batch.
func (s *Session) merge(ctx context.Context, results []parser.Result, settings compiledSettings) {
	_, end := observability.StartPhase(ctx, "merge", attribute.String("project", s.project))
	defer end()

	s.mu.Lock()
	removed := make([]source.Handle, 0, len(s.removed))
	for h := range s.removed {
		removed = append(removed, h)
	}
	s.removed = make(map[source.Handle]bool)
	s.mu.Unlock()
	sort.Slice(removed, func(i, j int) bool { return removed[i] < removed[j] })

	for _, h := range removed {
		s.bag.ClearUnit(h)
		if m := s.registry.RemoveUnit(h); m != nil {
			s.graph.RemoveModule(m.ID)
			s.markPending(m.ID)
			slog.Debug("module removed", "project", s.project, "module", m.Name.Name, "unit", h)
		}
	}

	live := make([]parser.Result, 0, len(results))
	for _, r := range results {
		if !s.store.IsAccessible(r.Unit) {
			continue
		}
		s.bag.ClearUnit(r.Unit, diag.PhaseSyntax, diag.PhaseRegistry)
		s.store.Unlink(r.Unit)
		for _, d := range r.Diagnostics {
			s.sink.Report(d)
		}
		if old := s.registry.ModuleOfUnit(r.Unit); old != nil && (r.Module == nil || old.Key() != r.Module.Key()) {
			s.registry.Retire(r.Unit)
			s.graph.RemoveModule(old.ID)
			s.markPending(old.ID)
		}
		live = append(live, r)
	}

	for _, r := range live {
		if r.Module != nil {
			if matchesAny(settings.skip, r.Module.Name.Name) {
				r.Module.SkippedFromChecking = true
			}
			s.install(r.Module)
		}
		s.store.MarkParsed(r.Unit, r.Version, r.HighlyErroneous)
	}
}

func (s *Session) install(m *module.Module) {
	res := s.registry.AddModule(m)
	if res.Status == registry.Duplicate {
		for _, d := range res.Diagnostics {
			s.sink.Report(d)
		}
		s.store.Link(m.Unit, res.Owner.Unit)
		slog.Debug("duplicate module rejected", "project", s.project, "module", m.Name.Name,
			"unit", m.Unit, "owner", res.Owner.Unit)
		return
	}

	targets := make([]module.ModuleID, 0, len(m.Imports.Edges))
	for _, e := range m.Imports.Edges {
		targets = append(targets, s.registry.Intern(e.Target.Normalized()))
	}
	s.graph.SetModule(res.ID, targets)
	s.markPending(res.ID)
}

func (s *Session) selectBrokenParts(ctx context.Context) (graph.Selection, []module.ModuleID) {
	_, end := observability.StartPhase(ctx, "select", attribute.String("project", s.project))
	defer end()

	s.mu.Lock()
	changed := make([]module.ModuleID, 0, len(s.pending))
	for id := range s.pending {
		changed = append(changed, id)
	}
	s.mu.Unlock()
	sort.Slice(changed, func(i, j int) bool { return changed[i] < changed[j] })

	var stale []module.ModuleID
	for _, m := range s.registry.Modules() {
		if !s.registry.IsUpToDate(m.ID) {
			stale = append(stale, m.ID)
		}
	}

	sel := s.graph.SelectBrokenParts(changed, stale)
	observability.SelectedModules.Observe(float64(len(sel.Order)))
	slog.Debug("selected broken parts", "project", s.project,
		"changed", sel.Changed, "dependents", sel.Dependents, "stale", sel.Stale)
	return sel, changed
}

// cycleView treats every selected local module as not up to date, so the
// resolver walks into it even before the registry bit is updated.
type cycleView struct {
	*resolver.Scope
	sel graph.Selection
}

func (v cycleView) IsUpToDate(id module.ModuleID) bool {
	if v.sel.Contains(id) && !v.Scope.IsForeign(id) {
		return false
	}
	return v.Scope.IsUpToDate(id)
}

func (s *Session) check(ctx context.Context, ts clock.Timestamp, sel graph.Selection, settings compiledSettings, report *CycleReport) (map[module.ModuleID]bool, error) {
	ctx, end := observability.StartPhase(ctx, "check",
		attribute.String("project", s.project), attribute.Int("selected", len(sel.Order)))
	defer end()

	if err := ctx.Err(); err != nil {
		return nil, domainerrors.Cancelled(err, "check")
	}
	for _, id := range sel.Order {
		if m := s.registry.ByID(id); m != nil {
			s.bag.ClearUnit(m.Unit, diag.PhaseImport, diag.PhaseSemantic)
		}
	}

	res := resolver.New(cycleView{Scope: s.scope, sel: sel}, s.sink)
	det := resolver.NewDetector(res, settings.ReportCircularImports)

	ok := make(map[module.ModuleID]bool, len(sel.Order))
	for _, id := range sel.Order {
		if err := ctx.Err(); err != nil {
			return nil, domainerrors.Cancelled(err, "check")
		}
		m := s.registry.ByID(id)
		if m == nil {
			continue
		}
		cycle, err := s.checkModule(m, ts, det, res, settings)
		if err != nil {
			report.Failed++
			observability.ModuleFailuresTotal.Inc()
			slog.Error("module check failed", "project", s.project, "module", m.Name.Name, "error", err)
			s.sink.Report(diag.NewError(diag.CodeInternal, "checking module %s failed: %v", m.Name.Name, err).
				At(m.Name.Location).InPhase(diag.PhaseSemantic))
			continue
		}
		if cycle != nil {
			report.Cycles = append(report.Cycles, cycle)
		}
		report.Checked++
		ok[id] = true
	}
	return ok, nil
}

func (s *Session) checkModule(m *module.Module, ts clock.Timestamp, det *resolver.Detector, res *resolver.Resolver, settings compiledSettings) (cycle []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			cycle, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()

	cycle = det.Check(m, ts)
	if m.SkippedFromChecking {
		return cycle, nil
	}
	semantic := diag.PhaseSink(s.sink, diag.PhaseSemantic)
	for _, d := range s.checker.CheckModuleBody(m, ts, res) {
		semantic.Report(d)
	}
	if settings.WarnUnusedImports {
		for _, d := range resolver.UnusedImports(m, settings.unusedExcludes) {
			s.sink.Report(d)
		}
	}
	return cycle, nil
}

// reportShadowedModules reports local modules whose name is also declared by
// a dependency project, at both declarations, and links the two units.
func (s *Session) reportShadowedModules() {
	s.bag.ClearPhase(diag.PhaseProject)
	for _, m := range s.registry.Modules() {
		s.store.UnlinkMissing(m.Unit)
		other := s.scope.Shadowed(m.Key())
		if other == nil || other.Unit == m.Unit {
			continue
		}
		for _, d := range registry.DuplicateDiagnostics(other, m, diag.PhaseProject) {
			s.sink.Report(d)
		}
		s.store.Link(m.Unit, other.Unit)
		slog.Debug("module shadows a dependency module", "project", s.project, "module", m.Name.Name,
			"unit", m.Unit, "owner", other.Unit)
	}
}

func (s *Session) commit(ts clock.Timestamp, sel graph.Selection, ok map[module.ModuleID]bool, changed []module.ModuleID, report *CycleReport) {
	for _, id := range sel.Order {
		m := s.registry.ByID(id)
		if m == nil {
			continue
		}
		if !ok[id] {
			s.registry.ClearUpToDate(id)
			continue
		}
		m.LastSemanticCheck = ts
		s.registry.MarkUpToDate(id)
		s.registry.DropOutdated(id)
	}

	names := make([]string, 0, len(changed))
	s.mu.Lock()
	for _, id := range changed {
		delete(s.pending, id)
	}
	s.mu.Unlock()
	for _, id := range changed {
		if s.registry.ByID(id) == nil {
			s.registry.DropOutdated(id)
		}
		names = append(names, s.registry.Name(id))
	}
	sort.Strings(names)
	report.Changed = names

	rechecked := make([]string, 0, len(sel.Order))
	for _, id := range sel.Order {
		rechecked = append(rechecked, s.registry.Name(id))
	}
	sort.Strings(rechecked)
	report.Rechecked = rechecked
}

func (s *Session) finish(report CycleReport) {
	observability.CyclesTotal.WithLabelValues(report.Status).Inc()
	observability.CycleDuration.Observe(report.Duration.Seconds())
	observability.RegistryModules.WithLabelValues(s.project).Set(float64(s.registry.Len()))
	observability.ImportEdges.WithLabelValues(s.project).Set(float64(s.graph.EdgeCount()))

	s.mu.Lock()
	s.last = report
	s.mu.Unlock()

	slog.Info("cycle finished",
		"project", s.project,
		"status", report.Status,
		"parsed", report.Parsed,
		"selected", report.Selected,
		"checked", report.Checked,
		"failed", report.Failed,
		"errors", report.Errors,
		"warnings", report.Warnings,
		"duration", report.Duration,
	)

	if s.history == nil {
		return
	}
	if err := s.history.SaveRun(report.historyRun()); err != nil {
		slog.Warn("failed to save cycle history", "project", s.project, "cycle", report.ID, "error", err)
	}
}

func matchesAny(globs []glob.Glob, name string) bool {
	for _, g := range globs {
		if g.Match(name) {
			return true
		}
	}
	return false
}
