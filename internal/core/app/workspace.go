package app

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"reflect"
	"strings"
	"sync"

	"crossmod/internal/core/config"
	domainerrors "crossmod/internal/core/errors"
	"crossmod/internal/core/ports"
	"crossmod/internal/engine/clock"
	"crossmod/internal/engine/diag"
	"crossmod/internal/engine/graph"
	"crossmod/internal/engine/module"
	"crossmod/internal/engine/parser"
	"crossmod/internal/shared/util"
)

type WorkspaceOptions struct {
	// Root anchors relative project roots and exclude patterns.
	Root     string
	History  ports.HistoryStore
	Checker  ports.BodyChecker
	Provider *FSProvider
}

// Workspace owns one Session per configured project. Projects are analyzed in
// dependency order; a project sees the modules of every project it depends on,
// directly or not, after its own.
type Workspace struct {
	root       string
	order      []string
	projects   map[string]config.ResolvedProject
	sessions   map[string]*Session
	filter     *util.PathFilter
	dependents map[string][]string
	locks      *LockSet
	provider   *FSProvider
	clock      *clock.Clock

	mu  sync.RWMutex
	cfg *config.Config
}

func NewWorkspace(cfg *config.Config, opts WorkspaceOptions) (*Workspace, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	root := opts.Root
	if root == "" {
		root = "."
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeValidationError, "resolve workspace root")
	}
	projects, err := config.ResolveProjects(cfg, abs)
	if err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeValidationError, "resolve projects")
	}
	if opts.Provider == nil {
		opts.Provider = NewFSProvider()
	}

	w := &Workspace{
		root:       abs,
		projects:   make(map[string]config.ResolvedProject, len(projects)),
		sessions:   make(map[string]*Session, len(projects)),
		dependents: make(map[string][]string, len(projects)),
		locks:      NewLockSet(),
		provider:   opts.Provider,
		clock:      clock.New(),
		cfg:        cfg,
	}

	router := RouterFromConfig(cfg.Languages)
	settings := SettingsFromConfig(cfg.Analysis)
	w.filter, err = util.NewPathFilter(abs, cfg.Exclude.Dirs, cfg.Exclude.Files, router.Extensions())
	if err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeValidationError, "compile exclude patterns")
	}

	for _, p := range projects {
		w.order = append(w.order, p.Name)
		w.projects[p.Name] = p

		deps := make([]*Session, 0)
		for _, name := range w.dependencyClosure(p.Name) {
			deps = append(deps, w.sessions[name])
		}
		s, err := NewSession(SessionOptions{
			Project:        p.Name,
			Settings:       settings,
			Router:         router,
			ParseCacheSize: cfg.Analysis.ParseCacheSize,
			Checker:        opts.Checker,
			Provider:       opts.Provider,
			History:        opts.History,
			Clock:          w.clock,
			Dependencies:   deps,
		})
		if err != nil {
			return nil, err
		}
		w.sessions[p.Name] = s
	}

	for _, name := range w.order {
		for _, dep := range w.dependencyClosure(name) {
			w.dependents[dep] = append(w.dependents[dep], name)
		}
	}
	return w, nil
}

// RouterFromConfig registers the enabled notations with their configured
// extensions.
func RouterFromConfig(langs config.Languages) *parser.Router {
	r := parser.NewRouter()
	if langs.ASN1.IsEnabled() {
		exts := langs.ASN1.Extensions
		if len(exts) == 0 {
			exts = parser.DefaultASN1Extensions
		}
		r.Register(parser.ASN1Grammar{}, module.NotationASN1, exts...)
	}
	if langs.TTCN.IsEnabled() {
		exts := langs.TTCN.Extensions
		if len(exts) == 0 {
			exts = parser.DefaultTTCNExtensions
		}
		r.Register(parser.TTCNGrammar{}, module.NotationTTCN, exts...)
	}
	return r
}

// dependencyClosure lists every project name reaches through depends_on,
// nearest first, declaration order within one level.
func (w *Workspace) dependencyClosure(name string) []string {
	seen := map[string]bool{name: true}
	queue := append([]string(nil), w.projects[name].DependsOn...)
	var out []string
	for len(queue) > 0 {
		curr := queue[0]
		queue = queue[1:]
		if seen[curr] {
			continue
		}
		seen[curr] = true
		out = append(out, curr)
		queue = append(queue, w.projects[curr].DependsOn...)
	}
	return out
}

func (w *Workspace) Root() string { return w.root }

// Projects returns the project names in dependency order.
func (w *Workspace) Projects() []string {
	return append([]string(nil), w.order...)
}

func (w *Workspace) Session(name string) (*Session, bool) {
	s, ok := w.sessions[name]
	return s, ok
}

func (w *Workspace) Provider() *FSProvider { return w.provider }

func (w *Workspace) Config() *config.Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.cfg
}

// WatchRoots returns every project root once, sorted.
func (w *Workspace) WatchRoots() []string {
	seen := make(map[string]bool)
	for _, p := range w.projects {
		for _, r := range p.Roots {
			seen[r] = true
		}
	}
	return util.SortedStringKeys(seen)
}

// Filter returns the path filter shared by every project.
func (w *Workspace) Filter() *util.PathFilter { return w.filter }

// Scan loads every accepted file below the project roots.
func (w *Workspace) Scan() (int, error) {
	total := 0
	for _, name := range w.order {
		files, err := ScanDirectories(w.projects[name].Roots, w.filter)
		if err != nil {
			return total, domainerrors.AddContext(
				domainerrors.Wrap(err, domainerrors.CodeNotFound, "scan project roots"),
				domainerrors.CtxProject, name)
		}
		n := w.sessions[name].HandleChanges(files)
		slog.Info("scanned project", "project", name, "files", len(files), "changed", n)
		total += n
	}
	return total, nil
}

// ProjectsFor returns the projects whose roots contain path.
func (w *Workspace) ProjectsFor(path string) []string {
	var out []string
	for _, name := range w.order {
		for _, r := range w.projects[name].Roots {
			if util.HasPathPrefix(filepath.ToSlash(path), filepath.ToSlash(r)) {
				out = append(out, name)
				break
			}
		}
	}
	return out
}

// HandleChanges routes changed paths to the owning projects and returns the
// names of the projects that have new work.
func (w *Workspace) HandleChanges(paths []string) []string {
	byProject := make(map[string][]string)
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			continue
		}
		for _, name := range w.ProjectsFor(abs) {
			if !w.filter.Accept(abs) {
				continue
			}
			byProject[name] = append(byProject[name], abs)
		}
	}

	var affected []string
	for _, name := range w.order {
		if len(byProject[name]) == 0 {
			continue
		}
		if w.sessions[name].HandleChanges(byProject[name]) > 0 {
			affected = append(affected, name)
		}
	}
	return affected
}

// Analyze runs a cycle for each named project (all when none is given) and
// for every project depending on them, in dependency order. The combined lock
// covers the analyzed projects and everything they depend on.
func (w *Workspace) Analyze(ctx context.Context, names ...string) ([]CycleReport, error) {
	targets, err := w.expand(names)
	if err != nil {
		return nil, err
	}

	lockNames := make([]string, 0, len(targets))
	for name := range targets {
		lockNames = append(lockNames, name)
		lockNames = append(lockNames, w.dependencyClosure(name)...)
	}
	release := w.locks.Acquire(lockNames...)
	defer release()

	reports := make([]CycleReport, 0, len(targets))
	for _, name := range w.order {
		if !targets[name] {
			continue
		}
		report, err := w.sessions[name].AnalyzeCycle(ctx)
		reports = append(reports, report)
		if err != nil {
			return reports, err
		}
		for _, dep := range w.dependents[name] {
			w.sessions[dep].MarkChanged(report.Changed...)
			w.sessions[dep].MarkChanged(report.Rechecked...)
		}
	}
	return reports, nil
}

func (w *Workspace) expand(names []string) (map[string]bool, error) {
	if len(names) == 0 {
		names = w.order
	}
	targets := make(map[string]bool)
	for _, name := range names {
		if _, ok := w.sessions[name]; !ok {
			return nil, domainerrors.AddContext(
				domainerrors.New(domainerrors.CodeNotFound, "unknown project"),
				domainerrors.CtxProject, name)
		}
		targets[name] = true
		for _, dep := range w.dependents[name] {
			targets[dep] = true
		}
	}
	return targets, nil
}

// Reload applies the analysis section of cfg to every session. Changes to
// projects, roots or languages need a restart and are only logged.
func (w *Workspace) Reload(cfg *config.Config) error {
	w.mu.Lock()
	prev := w.cfg
	w.cfg = cfg
	w.mu.Unlock()

	if !reflect.DeepEqual(prev.Projects, cfg.Projects) || !reflect.DeepEqual(prev.Languages, cfg.Languages) {
		slog.Warn("project or language changes take effect after a restart")
	}
	settings := SettingsFromConfig(cfg.Analysis)
	for _, name := range w.order {
		if err := w.sessions[name].SetSettings(settings); err != nil {
			return domainerrors.AddContext(err, domainerrors.CtxProject, name)
		}
	}
	slog.Info("analysis settings reloaded", "workers", settings.Workers,
		"report_circular_imports", settings.ReportCircularImports,
		"warn_unused_imports", settings.WarnUnusedImports)
	return nil
}

// Diagnostics returns the diagnostics of every project ordered by location.
func (w *Workspace) Diagnostics() []*diag.Diagnostic {
	var out []*diag.Diagnostic
	for _, name := range w.order {
		out = append(out, w.sessions[name].Diagnostics().All()...)
	}
	return out
}

// Counts sums errors and warnings over all projects.
func (w *Workspace) Counts() (errors, warnings int) {
	for _, name := range w.order {
		e, wn := w.sessions[name].Diagnostics().Counts()
		errors += e
		warnings += wn
	}
	return errors, warnings
}

// Cycles lists the import cycles of each project.
func (w *Workspace) Cycles() map[string][][]string {
	out := make(map[string][][]string, len(w.order))
	for _, name := range w.order {
		if cycles := w.sessions[name].Graph().DetectCycles(); len(cycles) > 0 {
			out[name] = cycles
		}
	}
	return out
}

func queryKey(name string) string {
	return strings.ReplaceAll(strings.TrimSpace(name), "-", "_")
}

// TraceImportChain finds the shortest import path between two modules of the
// same project.
func (w *Workspace) TraceImportChain(from, to string) (string, []string, error) {
	for _, name := range w.order {
		if path, ok := w.sessions[name].Graph().FindImportChain(queryKey(from), queryKey(to)); ok {
			return name, path, nil
		}
	}
	err := domainerrors.New(domainerrors.CodeNotFound, fmt.Sprintf("no import chain from %s to %s", from, to))
	return "", nil, domainerrors.AddContext(err, domainerrors.CtxModule, from)
}

// AnalyzeImpact reports the importers of a module in the first project that
// knows it.
func (w *Workspace) AnalyzeImpact(moduleName string) (string, graph.ImpactReport, error) {
	var lastErr error
	for _, name := range w.order {
		report, err := w.sessions[name].Graph().AnalyzeImpact(queryKey(moduleName))
		if err == nil {
			return name, report, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = graph.ErrImpactTargetNotFound
	}
	err := domainerrors.Wrap(lastErr, domainerrors.CodeNotFound, "impact target not found")
	return "", graph.ImpactReport{}, domainerrors.AddContext(err, domainerrors.CtxModule, moduleName)
}

// LookupSymbol resolves "Module.Symbol" the way a reference inside Module's
// body would resolve: local assignments first, then its imports. The module is
// taken from the first project that declares it.
func (w *Workspace) LookupSymbol(qualified string) (string, ports.Resolution, error) {
	moduleName, symbol, ok := strings.Cut(strings.TrimSpace(qualified), ".")
	if !ok || moduleName == "" || symbol == "" {
		return "", ports.Resolution{}, domainerrors.New(domainerrors.CodeValidationError,
			fmt.Sprintf("expected Module.Symbol, got %q", qualified))
	}
	for _, name := range w.order {
		s := w.sessions[name]
		m, found := s.Registry().Lookup(queryKey(moduleName))
		if !found {
			continue
		}
		res, d := s.Lookup(m, module.Reference{Name: symbol, Location: m.Name.Location})
		if d != nil {
			err := domainerrors.New(domainerrors.CodeNotFound, d.Message)
			return name, ports.Resolution{}, domainerrors.AddContext(err, domainerrors.CtxModule, moduleName)
		}
		if res.Assignment == nil {
			err := domainerrors.New(domainerrors.CodeNotFound, fmt.Sprintf("%s does not resolve to an assignment", qualified))
			return name, res, domainerrors.AddContext(err, domainerrors.CtxModule, moduleName)
		}
		return name, res, nil
	}
	err := domainerrors.New(domainerrors.CodeNotFound, "unknown module")
	return "", ports.Resolution{}, domainerrors.AddContext(err, domainerrors.CtxModule, moduleName)
}
