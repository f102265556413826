package app

import (
	"sort"
	"sync"
)

// LockSet hands out one mutex per project and acquires groups of them in name
// order, so two cycles over overlapping project sets cannot deadlock.
type LockSet struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewLockSet() *LockSet {
	return &LockSet{locks: make(map[string]*sync.Mutex)}
}

func (l *LockSet) lockFor(name string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[name]
	if !ok {
		m = &sync.Mutex{}
		l.locks[name] = m
	}
	return m
}

// Acquire locks every named project and returns the matching release function.
func (l *LockSet) Acquire(names ...string) func() {
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)

	held := make([]*sync.Mutex, 0, len(sorted))
	for i, name := range sorted {
		if i > 0 && name == sorted[i-1] {
			continue
		}
		m := l.lockFor(name)
		m.Lock()
		held = append(held, m)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			for i := len(held) - 1; i >= 0; i-- {
				held[i].Unlock()
			}
		})
	}
}
