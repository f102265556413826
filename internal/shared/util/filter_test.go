package util

import (
	"path/filepath"
	"testing"
)

func TestPathFilter(t *testing.T) {
	root := filepath.FromSlash("/work/proj")
	f, err := NewPathFilter(root, []string{".git", "gen/*"}, []string{"*_old.asn", "specs/draft.ttcn"}, []string{"asn", ".TTCN"})
	if err != nil {
		t.Fatalf("NewPathFilter: %v", err)
	}

	dirs := []struct {
		path string
		skip bool
	}{
		{filepath.Join(root, ".git"), true},
		{filepath.Join(root, "gen", "v1"), true},
		{filepath.Join(root, "gen"), false},
		{filepath.Join(root, "specs"), false},
	}
	for _, tt := range dirs {
		if got := f.SkipDir(tt.path); got != tt.skip {
			t.Errorf("SkipDir(%q) = %v, want %v", tt.path, got, tt.skip)
		}
	}

	files := []struct {
		path   string
		accept bool
	}{
		{filepath.Join(root, "a.asn"), true},
		{filepath.Join(root, "b.ttcn"), true},
		{filepath.Join(root, "c.go"), false},
		{filepath.Join(root, "a_old.asn"), false},
		{filepath.Join(root, "specs", "draft.ttcn"), false},
		{filepath.Join(root, "specs", "final.ttcn"), true},
		{filepath.Join(root, ".git", "x.asn"), false},
		{filepath.Join(root, "gen", "v1", "x.asn"), false},
	}
	for _, tt := range files {
		if got := f.Accept(tt.path); got != tt.accept {
			t.Errorf("Accept(%q) = %v, want %v", tt.path, got, tt.accept)
		}
	}
}

func TestPathFilterInvalidPattern(t *testing.T) {
	if _, err := NewPathFilter("", []string{"[oops"}, nil, nil); err == nil {
		t.Fatal("expected invalid pattern error")
	}
}
