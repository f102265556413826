// Package config loads the TOML configuration of crossmod: projects and their
// dependency order, per-notation file extensions, exclusion patterns, analysis
// tuning, history and observability.
package config

import (
	"time"
)

type Config struct {
	Version       int           `toml:"version"`
	Paths         Paths         `toml:"paths"`
	Projects      []Project     `toml:"projects"`
	Languages     Languages     `toml:"languages"`
	Exclude       Exclude       `toml:"exclude"`
	Watch         Watch         `toml:"watch"`
	Analysis      Analysis      `toml:"analysis"`
	History       History       `toml:"history"`
	Observability Observability `toml:"observability"`
	Output        Output        `toml:"output"`
}

type Paths struct {
	ProjectRoot string `toml:"project_root"`
}

// Project is one analysis scope. Module names are unique inside a project;
// a project resolves imports it cannot satisfy itself through the projects it
// depends on.
type Project struct {
	Name      string   `toml:"name"`
	Roots     []string `toml:"roots"`
	DependsOn []string `toml:"depends_on"`
}

type Languages struct {
	ASN1 Language `toml:"asn1"`
	TTCN Language `toml:"ttcn"`
}

type Language struct {
	Enabled    *bool    `toml:"enabled"`
	Extensions []string `toml:"extensions"`
}

func (l Language) IsEnabled() bool {
	if l.Enabled == nil {
		return true
	}
	return *l.Enabled
}

type Exclude struct {
	Dirs  []string `toml:"dirs"`
	Files []string `toml:"files"`
}

type Watch struct {
	Debounce time.Duration `toml:"debounce"`
}

type Analysis struct {
	Workers               int      `toml:"workers"`
	ReportCircularImports *bool    `toml:"report_circular_imports"`
	WarnUnusedImports     bool     `toml:"warn_unused_imports"`
	UnusedImportExcludes  []string `toml:"unused_import_excludes"`
	SkipChecking          []string `toml:"skip_checking"`
	ParseCacheSize        int      `toml:"parse_cache_size"`
	MaxCyclesPerSecond    float64  `toml:"max_cycles_per_second"`
	CycleBurst            int      `toml:"cycle_burst"`
}

func (a Analysis) ReportCircular() bool {
	if a.ReportCircularImports == nil {
		return true
	}
	return *a.ReportCircularImports
}

type History struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

type Observability struct {
	Enabled      bool   `toml:"enabled"`
	Address      string `toml:"address"`
	OTLPEndpoint string `toml:"otlp_endpoint"`
	OTLPInsecure bool   `toml:"otlp_insecure"`
	ServiceName  string `toml:"service_name"`
}

type Output struct {
	Format string `toml:"format"`
}
