package watcher

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"crossmod/internal/shared/util"
)

func newFilter(t *testing.T, root string, dirs, files []string) *util.PathFilter {
	t.Helper()
	f, err := util.NewPathFilter(root, dirs, files, []string{".asn", ".ttcn"})
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func waitFor(t *testing.T, changed <-chan []string, want string, timeout time.Duration) {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case paths := <-changed:
			for _, p := range paths {
				if p == want {
					return
				}
			}
		case <-deadline:
			t.Fatalf("timed out waiting for change event on %s", want)
		}
	}
}

func TestNewWatcher_RejectsNilCallback(t *testing.T) {
	w, err := NewWatcher(100*time.Millisecond, nil, nil)
	if err == nil {
		t.Fatal("expected error for nil callback")
	}
	if !errors.Is(err, os.ErrInvalid) {
		t.Fatalf("expected os.ErrInvalid, got %v", err)
	}
	if w != nil {
		t.Fatal("expected nil watcher when callback is invalid")
	}
}

func TestWatcher(t *testing.T) {
	tmpDir := t.TempDir()

	changedFiles := make(chan []string, 8)
	w, err := NewWatcher(50*time.Millisecond, newFilter(t, tmpDir, []string{"exclude_dir"}, []string{"*_old.asn"}), func(paths []string) {
		changedFiles <- paths
	})
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	if err := w.Watch([]string{tmpDir}); err != nil {
		t.Fatal(err)
	}

	testFile := filepath.Join(tmpDir, "Types.asn")
	if err := os.WriteFile(testFile, []byte("Types DEFINITIONS ::= BEGIN END"), 0o644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, changedFiles, testFile, 2*time.Second)

	for _, name := range []string{"notes.txt", "Types_old.asn"} {
		if err := os.WriteFile(filepath.Join(tmpDir, name), []byte("ignored"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	select {
	case paths := <-changedFiles:
		for _, p := range paths {
			if base := filepath.Base(p); base == "notes.txt" || base == "Types_old.asn" {
				t.Errorf("excluded file %s triggered event", base)
			}
		}
	case <-time.After(300 * time.Millisecond):
	}

	subdir := filepath.Join(tmpDir, "newdir")
	if err := os.MkdirAll(subdir, 0o755); err != nil {
		t.Fatal(err)
	}
	subFile := filepath.Join(subdir, "Nested.ttcn")
	if err := os.WriteFile(subFile, []byte("module Nested {}"), 0o644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, changedFiles, subFile, 2*time.Second)
}

func TestWatcher_RemoveTriggersChange(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "Gone.ttcn")
	if err := os.WriteFile(path, []byte("module Gone {}"), 0o644); err != nil {
		t.Fatal(err)
	}

	changedFiles := make(chan []string, 8)
	w, err := NewWatcher(20*time.Millisecond, newFilter(t, tmpDir, nil, nil), func(paths []string) {
		changedFiles <- paths
	})
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()
	if err := w.Watch([]string{tmpDir}); err != nil {
		t.Fatal(err)
	}

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	waitFor(t, changedFiles, path, 2*time.Second)
}

func TestWatcher_SkipsExcludedDirectories(t *testing.T) {
	tmpDir := t.TempDir()
	excluded := filepath.Join(tmpDir, "build")
	if err := os.MkdirAll(excluded, 0o755); err != nil {
		t.Fatal(err)
	}

	w, err := NewWatcher(10*time.Millisecond, newFilter(t, tmpDir, []string{"build"}, nil), func([]string) {})
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()
	if err := w.Watch([]string{tmpDir}); err != nil {
		t.Fatal(err)
	}

	for _, p := range w.fsWatcher.WatchList() {
		if p == excluded {
			t.Fatalf("excluded directory %s is watched", excluded)
		}
	}
}
