package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	coreapp "crossmod/internal/core/app"
	"crossmod/internal/core/config"
	"crossmod/internal/core/ports"
	"crossmod/internal/data/history"
	"crossmod/internal/shared/observability"
	"crossmod/internal/shared/util"
	"crossmod/internal/shared/version"
	"crossmod/internal/ui/report"
)

const (
	exitOK       = 0
	exitFindings = 1
	exitFailure  = 2
)

// Run executes the command line and returns the process exit code: 0 when
// the analysis found no errors, 1 when it did, 2 when it could not run.
func Run(args []string) int {
	return run(args, os.Stdout, os.Stderr)
}

func run(args []string, stdout, stderr io.Writer) int {
	opts, err := parseOptions(args, stderr)
	if err != nil {
		return exitFailure
	}

	if opts.version {
		fmt.Fprintf(stdout, "crossmod v%s\n", version.Version)
		return exitOK
	}

	configureLogging(stderr, opts.verbose)

	cwd, err := os.Getwd()
	if err != nil {
		slog.Error("failed to detect working directory", "error", err)
		return exitFailure
	}

	cfg, cfgPath, err := loadConfig(opts.configPath, cwd)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return exitFailure
	}

	if err := applyModeOptions(&opts, cfg, cwd); err != nil {
		fmt.Fprintln(stderr, err.Error())
		return exitFailure
	}

	paths, err := config.ResolvePaths(cfg, cwd)
	if err != nil {
		slog.Error("failed to resolve runtime paths", "error", err)
		return exitFailure
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, observability.TracingConfig{
		Endpoint:    cfg.Observability.OTLPEndpoint,
		Insecure:    cfg.Observability.OTLPInsecure,
		ServiceName: cfg.Observability.ServiceName,
	})
	if err != nil {
		slog.Error("failed to set up tracing", "error", err)
		return exitFailure
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			slog.Warn("failed to flush traces", "error", err)
		}
	}()

	store, err := openHistoryStore(cfg, paths, opts.history)
	if err != nil {
		slog.Error("history setup failed", "error", err)
		return exitFailure
	}
	var historyStore ports.HistoryStore
	if store != nil {
		defer store.Close()
		historyStore = store
	}

	ws, err := coreapp.NewWorkspace(cfg, coreapp.WorkspaceOptions{
		Root:    paths.ProjectRoot,
		History: historyStore,
	})
	if err != nil {
		slog.Error("failed to initialize workspace", "error", err)
		return exitFailure
	}

	if _, err := ws.Scan(); err != nil {
		slog.Error("initial scan failed", "error", err)
		return exitFailure
	}
	reports, err := ws.Analyze(ctx)
	if err != nil {
		slog.Error("initial analysis failed", "error", err)
		return exitFailure
	}

	if done, code := runSingleCommand(ws, opts, stdout, stderr); done {
		return code
	}

	if opts.history {
		if err := runHistoryMode(opts, ws, historyStore, stdout); err != nil {
			slog.Error("history mode failed", "error", err)
			return exitFailure
		}
	}

	format := reportFormat(opts, cfg)
	errs, err := writeReport(report.NewSnapshot(ws, reports), format, opts, stdout)
	if err != nil {
		slog.Error("failed to write report", "error", err)
		return exitFailure
	}

	if !opts.watch {
		if errs > 0 {
			return exitFindings
		}
		return exitOK
	}

	if err := runWatch(ctx, ws, cfgPath, historyStore, opts, format, stdout); err != nil {
		slog.Error("watch mode failed", "error", err)
		return exitFailure
	}
	return exitOK
}

func runSingleCommand(ws *coreapp.Workspace, opts cliOptions, stdout, stderr io.Writer) (bool, int) {
	if opts.trace {
		project, path, err := ws.TraceImportChain(opts.args[0], opts.args[1])
		if err != nil {
			fmt.Fprintln(stderr, err.Error())
			return true, exitFindings
		}
		fmt.Fprint(stdout, report.FormatImportChain(project, path))
		return true, exitOK
	}

	if opts.impact != "" {
		project, impact, err := ws.AnalyzeImpact(opts.impact)
		if err != nil {
			fmt.Fprintln(stderr, err.Error())
			return true, exitFindings
		}
		fmt.Fprint(stdout, report.FormatImpactReport(project, impact))
		return true, exitOK
	}

	if opts.lookup != "" {
		project, res, err := ws.LookupSymbol(opts.lookup)
		if err != nil {
			fmt.Fprintln(stderr, err.Error())
			return true, exitFindings
		}
		from, symbol, _ := strings.Cut(opts.lookup, ".")
		fmt.Fprint(stdout, report.FormatLookup(ws.Root(), project, from, symbol, res))
		return true, exitOK
	}

	if opts.query != "" {
		rows, err := ws.QueryModules(opts.query, opts.limit)
		if err != nil {
			fmt.Fprintln(stderr, err.Error())
			return true, exitFailure
		}
		if opts.format == report.FormatJSON {
			data, err := report.RenderModuleRowsJSON(ws.Root(), rows)
			if err != nil {
				fmt.Fprintln(stderr, err.Error())
				return true, exitFailure
			}
			_, _ = stdout.Write(data)
			return true, exitOK
		}
		fmt.Fprint(stdout, report.FormatModuleRows(ws.Root(), rows))
		return true, exitOK
	}

	return false, exitOK
}

func reportFormat(opts cliOptions, cfg *config.Config) string {
	if opts.format != "" {
		return opts.format
	}
	if cfg.Output.Format != "" {
		return cfg.Output.Format
	}
	return report.FormatText
}

// writeReport renders snap and returns its error count.
func writeReport(snap report.Snapshot, format string, opts cliOptions, stdout io.Writer) (int, error) {
	var (
		data []byte
		err  error
	)
	if format == report.FormatText {
		data = []byte(report.RenderText(snap, opts.color && opts.output == ""))
	} else {
		data, err = report.Render(format, snap)
		if err != nil {
			return 0, fmt.Errorf("render %s report: %w", format, err)
		}
	}

	if opts.output != "" {
		if err := util.WriteFileWithDirs(opts.output, data, 0o644); err != nil {
			return 0, fmt.Errorf("write report %q: %w", opts.output, err)
		}
	} else if _, err := stdout.Write(data); err != nil {
		return 0, err
	}
	errs, _ := snap.Counts()
	return errs, nil
}

func runWatch(ctx context.Context, ws *coreapp.Workspace, cfgPath string, store ports.HistoryStore, opts cliOptions, format string, stdout io.Writer) error {
	cfg := ws.Config()
	coord := coreapp.NewCoordinator(ws, coreapp.CoordinatorOptions{
		Limiter: util.NewLimiter(cfg.Analysis.MaxCyclesPerSecond, cfg.Analysis.CycleBurst),
		History: store,
		OnResult: func(res coreapp.Result) {
			if res.Status != history.StatusCompleted {
				return
			}
			if _, err := writeReport(report.NewSnapshot(ws, res.Reports), format, opts, stdout); err != nil {
				slog.Error("failed to write report", "error", err)
			}
		},
	})

	fw, err := ws.StartWatcher(coord)
	if err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}
	defer fw.Close()

	if cfgPath != "" {
		cw := config.NewWatcher(cfgPath, func(next *config.Config) {
			if err := ws.Reload(next); err != nil {
				slog.Error("rejected config reload", "error", err)
				return
			}
			coord.SetRate(next.Analysis.MaxCyclesPerSecond, next.Analysis.CycleBurst)
			fw.SetDebounce(next.Watch.Debounce)
			coord.Submit()
		})
		if err := cw.Start(ctx); err != nil {
			slog.Warn("config hot reload unavailable", "error", err)
		} else {
			defer cw.Stop()
		}
	}

	if cfg.Observability.Enabled {
		health := coreapp.NewHealthService(ws, coord, cfg.History.Enabled || opts.history, store)
		srv := NewObservabilityServer(cfg.Observability.Address, ws, health)
		if err := srv.Start(ctx); err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Stop(shutdownCtx)
		}()
	}

	slog.Info("watching for changes", "roots", ws.WatchRoots())
	if err := coord.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func loadConfig(path, cwd string) (*config.Config, string, error) {
	if path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, "", err
		}
		return cfg, path, nil
	}

	candidate := filepath.Join(cwd, config.DefaultFileName)
	if info, err := os.Stat(candidate); err == nil && info.Mode().IsRegular() {
		cfg, err := config.Load(candidate)
		if err != nil {
			return nil, "", err
		}
		return cfg, candidate, nil
	}
	slog.Debug("no config file found, using defaults", "cwd", cwd)
	return config.Default(), "", nil
}

func applyModeOptions(opts *cliOptions, cfg *config.Config, cwd string) error {
	if opts.once && opts.watch {
		return fmt.Errorf("--once and --watch cannot be combined")
	}
	if opts.trace && opts.impact != "" {
		return fmt.Errorf("--trace and --impact cannot be combined")
	}
	if opts.query != "" && (opts.trace || opts.impact != "") {
		return fmt.Errorf("--query cannot be combined with --trace or --impact")
	}
	if opts.lookup != "" && (opts.trace || opts.impact != "" || opts.query != "") {
		return fmt.Errorf("--lookup cannot be combined with --trace, --impact or --query")
	}
	if (opts.trace || opts.impact != "" || opts.query != "" || opts.lookup != "") && opts.watch {
		return fmt.Errorf("--trace, --impact, --query and --lookup cannot be combined with --watch")
	}
	if opts.limit < 0 {
		return fmt.Errorf("--limit must not be negative")
	}

	switch opts.format {
	case "", report.FormatText, report.FormatJSON, report.FormatSARIF:
	default:
		return fmt.Errorf("--format must be text, json or sarif, got %q", opts.format)
	}

	if (opts.historyTSV != "" || opts.historyJSON != "") && !opts.history {
		return fmt.Errorf("--history-tsv/--history-json require --history")
	}
	if _, err := parseSince(opts.since); err != nil {
		return err
	}

	if opts.trace {
		if len(opts.args) != 2 {
			return fmt.Errorf("trace mode requires two module arguments: crossmod --trace <from> <to>")
		}
		return nil
	}

	if len(opts.args) > 0 {
		if len(cfg.Projects) > 1 {
			return fmt.Errorf("positional paths require a config with a single project, found %d", len(cfg.Projects))
		}
		name := config.DefaultProject
		if len(cfg.Projects) == 1 {
			name = cfg.Projects[0].Name
		}
		roots := make([]string, 0, len(opts.args))
		for _, arg := range opts.args {
			roots = append(roots, config.ResolveRelative(cwd, arg))
		}
		cfg.Projects = []config.Project{{Name: name, Roots: roots}}
	}
	return nil
}

func parseSince(value string) (time.Time, error) {
	raw := strings.TrimSpace(value)
	if raw == "" {
		return time.Time{}, nil
	}

	rfc3339, err := time.Parse(time.RFC3339, raw)
	if err == nil {
		return rfc3339.UTC(), nil
	}

	dateOnly, err := time.Parse("2006-01-02", raw)
	if err == nil {
		return dateOnly.UTC(), nil
	}

	return time.Time{}, fmt.Errorf("--since must be RFC3339 or YYYY-MM-DD, got %q", value)
}

func openHistoryStore(cfg *config.Config, paths config.ResolvedPaths, requested bool) (*history.Store, error) {
	if !cfg.History.Enabled && !requested {
		return nil, nil
	}
	store, err := history.Open(paths.HistoryPath)
	if err != nil {
		return nil, fmt.Errorf("open history store: %w", err)
	}
	return store, nil
}

func runHistoryMode(opts cliOptions, ws *coreapp.Workspace, store ports.HistoryStore, stdout io.Writer) error {
	if store == nil {
		return fmt.Errorf("history store unavailable")
	}
	since, err := parseSince(opts.since)
	if err != nil {
		return err
	}

	var (
		summaries []history.Summary
		all       []history.CycleRun
	)
	for _, project := range ws.Projects() {
		runs, err := store.LoadRuns(project, since)
		if err != nil {
			return fmt.Errorf("load history of %s: %w", project, err)
		}
		summaries = append(summaries, history.Summarize(project, runs))
		all = append(all, runs...)
	}
	fmt.Fprint(stdout, report.RenderHistorySummary(summaries))

	if opts.historyTSV != "" {
		tsv, err := report.RenderHistoryTSV(all)
		if err != nil {
			return fmt.Errorf("render history TSV: %w", err)
		}
		if err := util.WriteFileWithDirs(opts.historyTSV, tsv, 0o644); err != nil {
			return fmt.Errorf("write history TSV %q: %w", opts.historyTSV, err)
		}
	}

	if opts.historyJSON != "" {
		raw, err := report.RenderHistoryJSON(summaries, all)
		if err != nil {
			return fmt.Errorf("render history JSON: %w", err)
		}
		if err := util.WriteFileWithDirs(opts.historyJSON, raw, 0o644); err != nil {
			return fmt.Errorf("write history JSON %q: %w", opts.historyJSON, err)
		}
	}
	return nil
}

// configureLogging sends logs to stderr so stdout carries only reports.
func configureLogging(out io.Writer, verbose bool) {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)
}
