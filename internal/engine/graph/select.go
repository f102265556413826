package graph

import (
	"container/heap"
	"sort"

	"github.com/bits-and-blooms/bitset"

	"crossmod/internal/engine/module"
)

// Selection is the re-check set of one cycle.
type Selection struct {
	// Order lists selected modules, imported before importer where the graph
	// allows it.
	Order []module.ModuleID
	// Reached marks every id visited by the traversal, existing or not.
	Reached *bitset.BitSet
	// Changed and Dependents count how each selected module got in.
	Changed    int
	Dependents int
	Stale      int
}

func (s Selection) Contains(id module.ModuleID) bool {
	return s.Reached != nil && id.Valid() && s.Reached.Test(uint(id))
}

func (s Selection) Empty() bool { return len(s.Order) == 0 }

// SelectBrokenParts computes the modules to re-check: the changed ones, every
// module transitively importing a changed one, and the stale ones (existing
// modules that are not up to date for other reasons, such as a failed check).
// Changed ids of modules that no longer exist still propagate to importers.
func (g *ImportGraph) SelectBrokenParts(changed, stale []module.ModuleID) Selection {
	g.mu.RLock()
	defer g.mu.RUnlock()

	size := uint(1)
	for _, set := range [][]module.ModuleID{changed, stale} {
		for _, id := range set {
			if id.Valid() && uint(id)+1 > size {
				size = uint(id) + 1
			}
		}
	}
	visited := bitset.New(size)
	sel := Selection{Reached: visited}

	queue := make([]module.ModuleID, 0, len(changed))
	for _, id := range changed {
		if id.Valid() && !visited.Test(uint(id)) {
			visited.Set(uint(id))
			queue = append(queue, id)
			if g.nodes[id] {
				sel.Changed++
			}
		}
	}
	for len(queue) > 0 {
		curr := queue[0]
		queue = queue[1:]
		for importer := range g.importedBy[curr] {
			if visited.Test(uint(importer)) {
				continue
			}
			visited.Set(uint(importer))
			queue = append(queue, importer)
			if g.nodes[importer] {
				sel.Dependents++
			}
		}
	}
	for _, id := range stale {
		if id.Valid() && g.nodes[id] && !visited.Test(uint(id)) {
			visited.Set(uint(id))
			sel.Stale++
		}
	}

	selected := make([]module.ModuleID, 0, sel.Changed+sel.Dependents+sel.Stale)
	for i, ok := visited.NextSet(0); ok; i, ok = visited.NextSet(i + 1) {
		if g.nodes[module.ModuleID(i)] {
			selected = append(selected, module.ModuleID(i))
		}
	}
	sel.Order = g.topoOrderLocked(selected, visited)
	return sel
}

// TopoOrder orders ids imported-before-importer.
func (g *ImportGraph) TopoOrder(ids []module.ModuleID) []module.ModuleID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	in := bitset.New(uint(len(ids)) + 1)
	for _, id := range ids {
		in.Set(uint(id))
	}
	return g.topoOrderLocked(ids, in)
}

// topoOrderLocked is Kahn's algorithm over the subgraph induced by ids, taking
// the lowest-named ready module first. When only cycles remain, the
// lowest-named remaining module goes first.
func (g *ImportGraph) topoOrderLocked(ids []module.ModuleID, in *bitset.BitSet) []module.ModuleID {
	pending := make(map[module.ModuleID]int, len(ids))
	byName := make([]module.ModuleID, 0, len(ids))
	names := make(map[module.ModuleID]string, len(ids))
	for _, id := range ids {
		if _, dup := pending[id]; dup {
			continue
		}
		n := 0
		for to := range g.imports[id] {
			if to != id && in.Test(uint(to)) && g.nodes[to] {
				n++
			}
		}
		pending[id] = n
		names[id] = g.names.Name(id)
		byName = append(byName, id)
	}
	sort.Slice(byName, func(i, j int) bool { return names[byName[i]] < names[byName[j]] })

	ready := &readyHeap{names: names}
	for _, id := range byName {
		if pending[id] == 0 {
			ready.ids = append(ready.ids, id)
		}
	}
	heap.Init(ready)

	done := make(map[module.ModuleID]bool, len(byName))
	order := make([]module.ModuleID, 0, len(byName))
	next := 0
	for len(order) < len(byName) {
		var id module.ModuleID
		if ready.Len() > 0 {
			id = heap.Pop(ready).(module.ModuleID)
		} else {
			for done[byName[next]] {
				next++
			}
			id = byName[next]
		}
		if done[id] {
			continue
		}
		done[id] = true
		order = append(order, id)
		for importer := range g.importedBy[id] {
			if importer == id || done[importer] {
				continue
			}
			if n, ok := pending[importer]; ok && n > 0 {
				pending[importer] = n - 1
				if n == 1 {
					heap.Push(ready, importer)
				}
			}
		}
	}
	return order
}

// readyHeap orders module ids by name.
type readyHeap struct {
	ids   []module.ModuleID
	names map[module.ModuleID]string
}

func (h *readyHeap) Len() int           { return len(h.ids) }
func (h *readyHeap) Less(i, j int) bool { return h.names[h.ids[i]] < h.names[h.ids[j]] }
func (h *readyHeap) Swap(i, j int)      { h.ids[i], h.ids[j] = h.ids[j], h.ids[i] }
func (h *readyHeap) Push(x any)         { h.ids = append(h.ids, x.(module.ModuleID)) }

func (h *readyHeap) Pop() any {
	last := h.ids[len(h.ids)-1]
	h.ids = h.ids[:len(h.ids)-1]
	return last
}
