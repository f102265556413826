package source

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"sort"
	"sync"
)

var ErrUnknownUnit = errors.New("unknown source unit")

// Snapshot is an immutable view of a unit's text taken for one parse.
type Snapshot struct {
	Handle  Handle
	Text    []byte
	Hash    [32]byte
	Version uint64
}

type unit struct {
	text            []byte
	hash            [32]byte
	version         uint64
	outdated        bool
	highlyErroneous bool
}

// Store maps handles to their last-known text and syntactic freshness.
//
// Units can be linked: marking one of them outdated also marks its linked
// peers. The driver links the two owners of a duplicated module name so the
// conflict is re-evaluated when either changes.
type Store struct {
	mu    sync.RWMutex
	units map[Handle]*unit
	links map[Handle]map[Handle]bool
}

func NewStore() *Store {
	return &Store{
		units: make(map[Handle]*unit),
		links: make(map[Handle]map[Handle]bool),
	}
}

// Update records new text for h. It returns true when the unit is new or its
// content changed, in which case the unit (and its linked peers) become outdated.
func (s *Store) Update(h Handle, text []byte) bool {
	hash := sha256.Sum256(text)

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.units[h]
	if ok && u.hash == hash {
		return false
	}
	if !ok {
		u = &unit{}
		s.units[h] = u
	}
	u.text = append([]byte(nil), text...)
	u.hash = hash
	u.version++
	u.highlyErroneous = false
	s.markOutdatedLocked(h)
	return true
}

// MarkOutdated forces a re-parse of h and its linked peers.
func (s *Store) MarkOutdated(h Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markOutdatedLocked(h)
}

func (s *Store) markOutdatedLocked(h Handle) {
	if u, ok := s.units[h]; ok {
		u.outdated = true
	}
	for peer := range s.links[h] {
		if u, ok := s.units[peer]; ok {
			u.outdated = true
		}
	}
}

// Remove forgets h. It returns false if h was unknown.
func (s *Store) Remove(h Handle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.units[h]; !ok {
		return false
	}
	delete(s.units, h)
	for peer := range s.links[h] {
		delete(s.links[peer], h)
		if u, ok := s.units[peer]; ok {
			u.outdated = true
		}
	}
	delete(s.links, h)
	return true
}

// Outdated returns the handles that need a syntactic re-parse, sorted so that
// merge order is deterministic.
func (s *Store) Outdated() []Handle {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res := make([]Handle, 0)
	for h, u := range s.units {
		if u.outdated {
			res = append(res, h)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i] < res[j] })
	return res
}

// Snapshot captures the current text of h for parsing.
func (s *Store) Snapshot(h Handle) (Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.units[h]
	if !ok {
		return Snapshot{}, false
	}
	return Snapshot{Handle: h, Text: u.text, Hash: u.hash, Version: u.version}, true
}

// MarkParsed clears the outdated flag for h unless the text changed after the
// snapshot at version was taken.
func (s *Store) MarkParsed(h Handle, version uint64, highlyErroneous bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.units[h]
	if !ok || u.version != version {
		return
	}
	u.outdated = false
	u.highlyErroneous = highlyErroneous
}

func (s *Store) IsOutdated(h Handle) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.units[h]
	return ok && u.outdated
}

func (s *Store) IsHighlyErroneous(h Handle) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.units[h]
	return ok && u.highlyErroneous
}

// Link ties a and b together for outdating purposes.
func (s *Store) Link(a, b Handle) {
	if a == b {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.links[a] == nil {
		s.links[a] = make(map[Handle]bool)
	}
	if s.links[b] == nil {
		s.links[b] = make(map[Handle]bool)
	}
	s.links[a][b] = true
	s.links[b][a] = true
}

// Unlink drops every link of h.
func (s *Store) Unlink(h Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for peer := range s.links[h] {
		delete(s.links[peer], h)
		if len(s.links[peer]) == 0 {
			delete(s.links, peer)
		}
	}
	delete(s.links, h)
}

// UnlinkMissing drops the links of h to handles this store does not hold.
func (s *Store) UnlinkMissing(h Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for peer := range s.links[h] {
		if _, ok := s.units[peer]; ok {
			continue
		}
		delete(s.links[h], peer)
		delete(s.links, peer)
	}
	if len(s.links[h]) == 0 {
		delete(s.links, h)
	}
}

// Linked returns the peers currently linked to h.
func (s *Store) Linked(h Handle) []Handle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]Handle, 0, len(s.links[h]))
	for peer := range s.links[h] {
		res = append(res, peer)
	}
	sort.Slice(res, func(i, j int) bool { return res[i] < res[j] })
	return res
}

func (s *Store) Handles() []Handle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]Handle, 0, len(s.units))
	for h := range s.units {
		res = append(res, h)
	}
	sort.Slice(res, func(i, j int) bool { return res[i] < res[j] })
	return res
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.units)
}

// ReadText implements the source provider contract over the in-memory text.
func (s *Store) ReadText(h Handle) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.units[h]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownUnit, h)
	}
	return append([]byte(nil), u.text...), nil
}

func (s *Store) IsAccessible(h Handle) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.units[h]
	return ok
}
