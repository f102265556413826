package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

type ResolvedPaths struct {
	ProjectRoot string
	HistoryPath string
}

// ResolvedProject is a project with absolute, cleaned roots.
type ResolvedProject struct {
	Name      string
	Roots     []string
	DependsOn []string
}

func ResolvePaths(cfg *Config, cwd string) (ResolvedPaths, error) {
	if strings.TrimSpace(cwd) == "" {
		return ResolvedPaths{}, fmt.Errorf("cwd must not be empty")
	}

	projectRoot := strings.TrimSpace(cfg.Paths.ProjectRoot)
	if projectRoot != "" {
		projectRoot = ResolveRelative(cwd, projectRoot)
	} else {
		root, err := DetectProjectRoot([]string{cwd})
		if err != nil {
			return ResolvedPaths{}, err
		}
		projectRoot = root
	}

	return ResolvedPaths{
		ProjectRoot: filepath.Clean(projectRoot),
		HistoryPath: ResolveRelative(projectRoot, cfg.History.Path),
	}, nil
}

// ResolveProjects materializes the configured projects relative to root in
// dependency order.
func ResolveProjects(cfg *Config, root string) ([]ResolvedProject, error) {
	order, err := ProjectOrder(cfg.Projects)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]Project, len(cfg.Projects))
	for _, p := range cfg.Projects {
		byName[p.Name] = p
	}

	out := make([]ResolvedProject, 0, len(order))
	for _, name := range order {
		p := byName[name]
		roots := make([]string, 0, len(p.Roots))
		for _, r := range p.Roots {
			roots = append(roots, ResolveRelative(root, r))
		}
		out = append(out, ResolvedProject{
			Name:      p.Name,
			Roots:     roots,
			DependsOn: append([]string(nil), p.DependsOn...),
		})
	}
	return out, nil
}

func ResolveRelative(base, value string) string {
	raw := strings.TrimSpace(value)
	if raw == "" {
		return filepath.Clean(base)
	}
	if filepath.IsAbs(raw) {
		return filepath.Clean(raw)
	}
	return filepath.Clean(filepath.Join(base, raw))
}

// DetectProjectRoot walks up from each candidate looking for a config file or
// a repository marker, falling back to the working directory.
func DetectProjectRoot(candidates []string) (string, error) {
	markers := []string{
		DefaultFileName,
		".git",
	}

	for _, candidate := range candidates {
		if strings.TrimSpace(candidate) == "" {
			continue
		}

		abs, err := filepath.Abs(candidate)
		if err != nil {
			continue
		}
		root := abs
		if info, err := os.Stat(abs); err == nil && !info.IsDir() {
			root = filepath.Dir(abs)
		}

		for {
			for _, marker := range markers {
				if _, err := os.Stat(filepath.Join(root, marker)); err == nil {
					return filepath.Clean(root), nil
				}
			}
			parent := filepath.Dir(root)
			if parent == root {
				break
			}
			root = parent
		}
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Clean(cwd), nil
}
