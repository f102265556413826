package app

import (
	"io/fs"
	"path/filepath"
	"sort"

	"crossmod/internal/shared/util"
)

// ScanDirectories lists the files below roots accepted by filter, sorted and
// without duplicates.
func ScanDirectories(roots []string, filter *util.PathFilter) ([]string, error) {
	seen := make(map[string]bool)
	for _, root := range roots {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if path != root && filter.SkipDir(path) {
					return filepath.SkipDir
				}
				return nil
			}
			if !d.Type().IsRegular() || !filter.Accept(path) {
				return nil
			}
			seen[filepath.Clean(path)] = true
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	files := make([]string, 0, len(seen))
	for path := range seen {
		files = append(files, path)
	}
	sort.Strings(files)
	return files, nil
}
