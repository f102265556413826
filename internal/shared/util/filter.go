package util

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
)

// PathFilter decides which directories and files take part in a scan. Patterns
// without a separator match the base name; the others match the path relative
// to the filter root.
type PathFilter struct {
	root       string
	dirs       []glob.Glob
	dirPaths   []glob.Glob
	files      []glob.Glob
	filePaths  []glob.Glob
	extensions map[string]bool
}

func NewPathFilter(root string, excludeDirs, excludeFiles, extensions []string) (*PathFilter, error) {
	f := &PathFilter{root: root, extensions: make(map[string]bool, len(extensions))}
	var err error
	if f.dirs, f.dirPaths, err = compilePatterns(excludeDirs, "dir"); err != nil {
		return nil, err
	}
	if f.files, f.filePaths, err = compilePatterns(excludeFiles, "file"); err != nil {
		return nil, err
	}
	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		f.extensions[ext] = true
	}
	return f, nil
}

func compilePatterns(patterns []string, label string) (base, full []glob.Glob, err error) {
	for _, p := range patterns {
		p = NormalizePatternPath(p)
		if p == "" {
			continue
		}
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, nil, fmt.Errorf("invalid exclude %s pattern %q: %w", label, p, err)
		}
		if ContainsPathSeparator(p) {
			full = append(full, g)
		} else {
			base = append(base, g)
		}
	}
	return base, full, nil
}

func (f *PathFilter) relative(path string) string {
	if f.root == "" {
		return NormalizePatternPath(path)
	}
	rel, err := filepath.Rel(f.root, path)
	if err != nil {
		return NormalizePatternPath(path)
	}
	return NormalizePatternPath(rel)
}

func matchAny(globs []glob.Glob, s string) bool {
	for _, g := range globs {
		if g.Match(s) {
			return true
		}
	}
	return false
}

// SkipDir reports whether a directory and everything below it is excluded.
func (f *PathFilter) SkipDir(path string) bool {
	if matchAny(f.dirs, filepath.Base(path)) {
		return true
	}
	return matchAny(f.dirPaths, f.relative(path))
}

// Accept reports whether a file has a supported extension, is not excluded by
// a file pattern and does not live under an excluded directory.
func (f *PathFilter) Accept(path string) bool {
	if len(f.extensions) > 0 && !f.extensions[strings.ToLower(filepath.Ext(path))] {
		return false
	}
	if matchAny(f.files, filepath.Base(path)) || matchAny(f.filePaths, f.relative(path)) {
		return false
	}
	rel := f.relative(path)
	if rel == "" || strings.HasPrefix(rel, "../") {
		return true
	}
	parts := strings.Split(rel, "/")
	for i := range parts[:len(parts)-1] {
		if matchAny(f.dirs, parts[i]) || matchAny(f.dirPaths, strings.Join(parts[:i+1], "/")) {
			return false
		}
	}
	return true
}
