package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics definitions
var (
	ParsingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "crossmod_parsing_seconds",
		Help:    "Time spent parsing a source unit.",
		Buckets: prometheus.DefBuckets,
	}, []string{"notation"})

	ParseCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crossmod_parse_cache_hits_total",
		Help: "Total number of parse results served from the content-hash cache.",
	})

	HighlyErroneousUnitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crossmod_highly_erroneous_units_total",
		Help: "Total number of units that did not yield a module identifier.",
	})

	RegistryModules = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "crossmod_registry_modules",
		Help: "Number of modules currently registered, per project.",
	}, []string{"project"})

	ImportEdges = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "crossmod_import_edges",
		Help: "Number of import edges in the module graph, per project.",
	}, []string{"project"})

	CyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crossmod_cycles_total",
		Help: "Total number of analysis cycles by final status.",
	}, []string{"status"})

	CycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "crossmod_cycle_seconds",
		Help:    "Wall time of a complete analysis cycle.",
		Buckets: prometheus.DefBuckets,
	})

	PhaseDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "crossmod_phase_seconds",
		Help:    "Time spent in one phase of an analysis cycle.",
		Buckets: prometheus.DefBuckets,
	}, []string{"phase"})

	SelectedModules = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "crossmod_selected_modules",
		Help:    "Size of the re-check set chosen by the broken-parts selector.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})

	ModuleFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crossmod_module_failures_total",
		Help: "Total number of modules whose checking failed with an internal error.",
	})

	DiagnosticsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crossmod_diagnostics_total",
		Help: "Total number of diagnostics reported, by severity.",
	}, []string{"severity"})

	WatcherEventsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crossmod_watcher_events_total",
		Help: "Total number of file system events received by the watcher.",
	})

	CycleRequestsSupersededTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crossmod_cycle_requests_superseded_total",
		Help: "Total number of queued cycle requests replaced by a newer request for the same scope.",
	})
)
