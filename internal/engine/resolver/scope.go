package resolver

import (
	"sync"

	"crossmod/internal/engine/module"
	"crossmod/internal/engine/registry"
)

// Modules is the registry view the resolver works against. Resolve interns key
// and returns its id even when no module currently carries that name.
type Modules interface {
	Resolve(key string) (module.ModuleID, *module.Module)
	ByID(id module.ModuleID) *module.Module
	IsUpToDate(id module.ModuleID) bool
}

// Scope resolves names in the registry of the analyzed project first, then in
// the registries of the projects it depends on. Modules found in a dependency
// are read-only: they count as up to date and are never re-checked from here.
type Scope struct {
	primary *registry.Registry
	deps    []*registry.Registry

	mu      sync.Mutex
	foreign map[module.ModuleID]*module.Module
}

func NewScope(primary *registry.Registry, deps ...*registry.Registry) *Scope {
	return &Scope{
		primary: primary,
		deps:    deps,
		foreign: make(map[module.ModuleID]*module.Module),
	}
}

func (s *Scope) Resolve(key string) (module.ModuleID, *module.Module) {
	id := s.primary.Intern(key)
	if m := s.primary.ByID(id); m != nil {
		return id, m
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.foreign, id)
	for _, dep := range s.deps {
		if m, ok := dep.Lookup(key); ok {
			s.foreign[id] = m
			return id, m
		}
	}
	return id, nil
}

// Shadowed returns the first dependency module declaring key, whether or not
// the primary registry declares it too.
func (s *Scope) Shadowed(key string) *module.Module {
	for _, dep := range s.deps {
		if m, ok := dep.Lookup(key); ok {
			return m
		}
	}
	return nil
}

func (s *Scope) ByID(id module.ModuleID) *module.Module {
	if m := s.primary.ByID(id); m != nil {
		return m
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.foreign[id]
}

func (s *Scope) IsUpToDate(id module.ModuleID) bool {
	if s.primary.ByID(id) != nil {
		return s.primary.IsUpToDate(id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.foreign[id]
	return ok
}

// IsForeign reports whether id currently resolves into a dependency project.
func (s *Scope) IsForeign(id module.ModuleID) bool {
	if s.primary.ByID(id) != nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.foreign[id]
	return ok
}
