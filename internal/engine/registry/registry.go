// Package registry is the authoritative map from module name to the current
// module value of one project. It also retains superseded modules in a shadow
// map and tracks which modules are semantically up to date.
package registry

import (
	"errors"
	"sync"

	"github.com/bits-and-blooms/bitset"
	"github.com/tidwall/btree"

	"crossmod/internal/engine/diag"
	"crossmod/internal/engine/module"
	"crossmod/internal/engine/source"
)

var ErrModuleNotFound = errors.New("module not found")

// AddStatus tells what AddModule did with a candidate.
type AddStatus int

const (
	Installed AddStatus = iota
	Replaced
	Duplicate
)

func (s AddStatus) String() string {
	switch s {
	case Installed:
		return "installed"
	case Replaced:
		return "replaced"
	default:
		return "duplicate"
	}
}

type AddResult struct {
	Status AddStatus
	ID     module.ModuleID
	// Previous is the superseded module of the same unit, now in the shadow map.
	Previous *module.Module
	// Owner is the module that kept the name when Status is Duplicate.
	Owner       *module.Module
	Diagnostics []*diag.Diagnostic
}

// Registry is safe for concurrent readers; mutations are expected from the
// single cycle goroutine of the owning session.
//
// Names are interned to stable ModuleIDs for the registry lifetime, so import
// edges and graph nodes can refer to modules that do not exist (yet).
type Registry struct {
	mu sync.RWMutex

	ids   map[string]module.ModuleID
	names []string

	current  []*module.Module
	outdated map[module.ModuleID]*module.Module
	byUnit   map[source.Handle]module.ModuleID
	upToDate *bitset.BitSet

	sorted btree.Map[string, module.ModuleID]
}

func New() *Registry {
	return &Registry{
		ids:      make(map[string]module.ModuleID),
		outdated: make(map[module.ModuleID]*module.Module),
		byUnit:   make(map[source.Handle]module.ModuleID),
		upToDate: bitset.New(64),
	}
}

// Intern returns the stable id of a normalized module name, allocating one on
// first use.
func (r *Registry) Intern(key string) module.ModuleID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.internLocked(key)
}

func (r *Registry) internLocked(key string) module.ModuleID {
	if id, ok := r.ids[key]; ok {
		return id
	}
	id := module.ModuleID(len(r.names))
	r.ids[key] = id
	r.names = append(r.names, key)
	r.current = append(r.current, nil)
	return id
}

// IDOf returns the id of key if it was ever interned.
func (r *Registry) IDOf(key string) (module.ModuleID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.ids[key]
	return id, ok
}

// Name returns the normalized name behind id.
func (r *Registry) Name(id module.ModuleID) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !id.Valid() || int(id) >= len(r.names) {
		return ""
	}
	return r.names[id]
}

// IDCount is one past the highest interned id.
func (r *Registry) IDCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.names)
}

// Lookup returns the current module registered under a normalized name.
func (r *Registry) Lookup(key string) (*module.Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.ids[key]
	if !ok || r.current[id] == nil {
		return nil, false
	}
	return r.current[id], true
}

func (r *Registry) ByID(id module.ModuleID) *module.Module {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !id.Valid() || int(id) >= len(r.current) {
		return nil
	}
	return r.current[id]
}

// ModuleOfUnit returns the current module owned by h.
func (r *Registry) ModuleOfUnit(h source.Handle) *module.Module {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byUnit[h]
	if !ok {
		return nil
	}
	return r.current[id]
}

// AddModule registers candidate. A name owned by a different unit is a
// duplicate: both locations are reported and the candidate is rejected. A
// previous module of the same unit moves to the shadow map. The installed
// module is not up to date.
func (r *Registry) AddModule(candidate *module.Module) AddResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := candidate.Key()
	id := r.internLocked(key)

	if owner := r.current[id]; owner != nil && owner.Unit != candidate.Unit {
		return AddResult{
			Status:      Duplicate,
			ID:          id,
			Owner:       owner,
			Diagnostics: DuplicateDiagnostics(owner, candidate, diag.PhaseRegistry),
		}
	}

	// A unit owns at most one module; a renamed module releases its old name.
	if prevID, ok := r.byUnit[candidate.Unit]; ok && prevID != id {
		r.retireLocked(prevID)
	}

	res := AddResult{Status: Installed, ID: id}
	if prev := r.current[id]; prev != nil {
		r.outdated[id] = prev
		res.Status = Replaced
		res.Previous = prev
	}

	candidate.ID = id
	r.current[id] = candidate
	r.byUnit[candidate.Unit] = id
	r.sorted.Set(key, id)
	r.upToDate.Clear(uint(id))
	return res
}

// DuplicateDiagnostics reports a name clash at both declarations, each
// pointing at the other.
func DuplicateDiagnostics(owner, candidate *module.Module, phase diag.Phase) []*diag.Diagnostic {
	return []*diag.Diagnostic{
		diag.NewError(diag.CodeDuplicateModule, "duplicate module name %s", candidate.Name.Name).
			At(candidate.Name.Location).
			WithRelated(owner.Name.Location, "module first declared here").
			InPhase(phase),
		diag.NewError(diag.CodeDuplicateModule, "module name %s is declared again elsewhere", owner.Name.Name).
			At(owner.Name.Location).
			WithRelated(candidate.Name.Location, "duplicate declaration").
			InPhase(phase),
	}
}

// Retire moves the module owned by h to the shadow map and frees its name. It
// is used when a unit stops declaring a module without disappearing.
func (r *Registry) Retire(h source.Handle) *module.Module {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byUnit[h]
	if !ok {
		return nil
	}
	return r.retireLocked(id)
}

func (r *Registry) retireLocked(id module.ModuleID) *module.Module {
	m := r.current[id]
	if m == nil {
		return nil
	}
	r.outdated[id] = m
	r.current[id] = nil
	delete(r.byUnit, m.Unit)
	r.sorted.Delete(r.names[id])
	r.upToDate.Clear(uint(id))
	return m
}

// RemoveUnit permanently drops the module of a deleted unit, including its
// shadow entry.
func (r *Registry) RemoveUnit(h source.Handle) *module.Module {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byUnit[h]
	if !ok {
		return nil
	}
	m := r.retireLocked(id)
	delete(r.outdated, id)
	return m
}

// Outdated returns the shadow entry of a normalized name.
func (r *Registry) Outdated(key string) (*module.Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.ids[key]
	if !ok {
		return nil, false
	}
	m, ok := r.outdated[id]
	return m, ok
}

// DropOutdated discards the shadow entry of id once its successor is checked.
func (r *Registry) DropOutdated(id module.ModuleID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.outdated, id)
}

func (r *Registry) OutdatedCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.outdated)
}

func (r *Registry) MarkUpToDate(id module.ModuleID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id.Valid() && int(id) < len(r.current) && r.current[id] != nil {
		r.upToDate.Set(uint(id))
	}
}

func (r *Registry) ClearUpToDate(id module.ModuleID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id.Valid() {
		r.upToDate.Clear(uint(id))
	}
}

func (r *Registry) IsUpToDate(id module.ModuleID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return id.Valid() && r.upToDate.Test(uint(id))
}

func (r *Registry) UpToDateCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int(r.upToDate.Count())
}

// Names returns the normalized names of all current modules in order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sorted.Keys()
}

// Modules returns the current modules ordered by name.
func (r *Registry) Modules() []*module.Module {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := make([]*module.Module, 0, r.sorted.Len())
	r.sorted.Scan(func(_ string, id module.ModuleID) bool {
		res = append(res, r.current[id])
		return true
	})
	return res
}

// WithPrefix lists current module names starting with prefix, in order.
func (r *Registry) WithPrefix(prefix string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var res []string
	r.sorted.Ascend(prefix, func(name string, _ module.ModuleID) bool {
		if len(name) < len(prefix) || name[:len(prefix)] != prefix {
			return false
		}
		res = append(res, name)
		return true
	})
	return res
}

// Len is the number of current modules.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sorted.Len()
}
