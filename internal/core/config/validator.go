package config

import (
	"fmt"
	"net"
	"sort"

	"github.com/gobwas/glob"
)

// Validate returns every problem found in cfg, in a stable order.
func Validate(cfg *Config) []error {
	var errs []error
	errs = append(errs, validateVersion(cfg)...)
	errs = append(errs, validateProjects(cfg)...)
	errs = append(errs, validateLanguages(cfg)...)
	errs = append(errs, validatePatterns("exclude.dirs", cfg.Exclude.Dirs)...)
	errs = append(errs, validatePatterns("exclude.files", cfg.Exclude.Files)...)
	errs = append(errs, validatePatterns("analysis.unused_import_excludes", cfg.Analysis.UnusedImportExcludes)...)
	errs = append(errs, validatePatterns("analysis.skip_checking", cfg.Analysis.SkipChecking)...)
	errs = append(errs, validateAnalysis(cfg)...)
	errs = append(errs, validateObservability(cfg)...)
	errs = append(errs, validateOutput(cfg)...)
	return errs
}

func validateVersion(cfg *Config) []error {
	if cfg.Version != 1 {
		return []error{fmt.Errorf("unsupported config version %d; supported version is 1", cfg.Version)}
	}
	return nil
}

func validateProjects(cfg *Config) []error {
	var errs []error
	known := make(map[string]bool, len(cfg.Projects))
	for i, p := range cfg.Projects {
		ref := fmt.Sprintf("projects[%d]", i)
		if p.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name must not be empty", ref))
			continue
		}
		if known[p.Name] {
			errs = append(errs, fmt.Errorf("duplicate project name %q", p.Name))
		}
		known[p.Name] = true
		if len(p.Roots) == 0 {
			errs = append(errs, fmt.Errorf("%s (%s) must define at least one root", ref, p.Name))
		}
		for _, root := range p.Roots {
			if root == "" {
				errs = append(errs, fmt.Errorf("%s (%s) has an empty root", ref, p.Name))
			}
		}
	}

	for _, p := range cfg.Projects {
		for _, dep := range p.DependsOn {
			switch {
			case dep == p.Name:
				errs = append(errs, fmt.Errorf("project %q depends on itself", p.Name))
			case !known[dep]:
				errs = append(errs, fmt.Errorf("project %q depends on unknown project %q", p.Name, dep))
			}
		}
	}
	if len(errs) > 0 {
		return errs
	}

	if _, err := ProjectOrder(cfg.Projects); err != nil {
		errs = append(errs, err)
	}
	return errs
}

func validateLanguages(cfg *Config) []error {
	var errs []error
	owner := make(map[string]string)
	check := func(name string, lang Language) {
		if !lang.IsEnabled() {
			return
		}
		for _, ext := range lang.Extensions {
			if ext == "" {
				errs = append(errs, fmt.Errorf("languages.%s.extensions must not include empty values", name))
				continue
			}
			if prev, ok := owner[ext]; ok && prev != name {
				errs = append(errs, fmt.Errorf("extension %q is claimed by both languages.%s and languages.%s", ext, prev, name))
			}
			owner[ext] = name
		}
	}
	check("asn1", cfg.Languages.ASN1)
	check("ttcn", cfg.Languages.TTCN)
	if !cfg.Languages.ASN1.IsEnabled() && !cfg.Languages.TTCN.IsEnabled() {
		errs = append(errs, fmt.Errorf("at least one of languages.asn1 and languages.ttcn must be enabled"))
	}
	return errs
}

func validatePatterns(field string, patterns []string) []error {
	var errs []error
	for _, p := range patterns {
		if _, err := glob.Compile(p); err != nil {
			errs = append(errs, fmt.Errorf("%s: invalid pattern %q: %v", field, p, err))
		}
	}
	return errs
}

func validateAnalysis(cfg *Config) []error {
	var errs []error
	a := cfg.Analysis
	if a.Workers < 0 {
		errs = append(errs, fmt.Errorf("analysis.workers must be >= 0, got %d", a.Workers))
	}
	if a.ParseCacheSize < 0 {
		errs = append(errs, fmt.Errorf("analysis.parse_cache_size must be >= 0, got %d", a.ParseCacheSize))
	}
	if a.MaxCyclesPerSecond < 0 {
		errs = append(errs, fmt.Errorf("analysis.max_cycles_per_second must be >= 0, got %v", a.MaxCyclesPerSecond))
	}
	if a.CycleBurst < 1 {
		errs = append(errs, fmt.Errorf("analysis.cycle_burst must be >= 1, got %d", a.CycleBurst))
	}
	if cfg.Watch.Debounce < 0 {
		errs = append(errs, fmt.Errorf("watch.debounce must not be negative"))
	}
	return errs
}

func validateObservability(cfg *Config) []error {
	if !cfg.Observability.Enabled {
		return nil
	}
	if _, _, err := net.SplitHostPort(cfg.Observability.Address); err != nil {
		return []error{fmt.Errorf("observability.address %q: %v", cfg.Observability.Address, err)}
	}
	return nil
}

func validateOutput(cfg *Config) []error {
	switch cfg.Output.Format {
	case "text", "json", "sarif":
		return nil
	default:
		return []error{fmt.Errorf("output.format must be one of: text, json, sarif")}
	}
}

// ProjectOrder returns project names with every project after the projects it
// depends on. Ties are broken by name. A dependency cycle is an error.
func ProjectOrder(projects []Project) ([]string, error) {
	deps := make(map[string][]string, len(projects))
	for _, p := range projects {
		deps[p.Name] = p.DependsOn
	}
	names := make([]string, 0, len(deps))
	for name := range deps {
		names = append(names, name)
	}
	sort.Strings(names)

	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(names))
	order := make([]string, 0, len(names))

	var visit func(name string, path []string) error
	visit = func(name string, path []string) error {
		switch state[name] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("project dependency cycle: %v", append(path, name))
		}
		state[name] = visiting
		path = append(append([]string(nil), path...), name)
		sorted := append([]string(nil), deps[name]...)
		sort.Strings(sorted)
		for _, dep := range sorted {
			if _, ok := deps[dep]; !ok {
				continue
			}
			if err := visit(dep, path); err != nil {
				return err
			}
		}
		state[name] = done
		order = append(order, name)
		return nil
	}

	for _, name := range names {
		if err := visit(name, nil); err != nil {
			return nil, err
		}
	}
	return order, nil
}
