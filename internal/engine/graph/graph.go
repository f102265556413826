// Package graph keeps the module import graph of one project, keyed by arena
// ids, with its inverted edges for change propagation.
package graph

import (
	"sort"
	"sync"

	"crossmod/internal/engine/module"
)

// Names maps ids to normalized module names and back. The registry
// implements it.
type Names interface {
	Name(id module.ModuleID) string
	IDOf(key string) (module.ModuleID, bool)
}

type ImportGraph struct {
	mu sync.RWMutex

	names Names

	// nodes holds the ids of modules that currently exist.
	nodes map[module.ModuleID]bool

	// Relationships
	imports    map[module.ModuleID]map[module.ModuleID]int // from -> to -> edge count
	importedBy map[module.ModuleID]map[module.ModuleID]bool
}

type ModuleMetrics struct {
	Depth           int
	FanIn           int
	FanOut          int
	ImportanceScore float64 // (FanIn*2) + FanOut + (Assignments*0.5)
}

func New(names Names) *ImportGraph {
	return &ImportGraph{
		names:      names,
		nodes:      make(map[module.ModuleID]bool),
		imports:    make(map[module.ModuleID]map[module.ModuleID]int),
		importedBy: make(map[module.ModuleID]map[module.ModuleID]bool),
	}
}

// SetModule records that id exists and replaces its outgoing edges. Targets
// may name modules that do not exist; their importers are found again when the
// target appears.
func (g *ImportGraph) SetModule(id module.ModuleID, targets []module.ModuleID) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.dropEdgesLocked(id)
	g.nodes[id] = true
	out := make(map[module.ModuleID]int, len(targets))
	for _, to := range targets {
		if !to.Valid() {
			continue
		}
		out[to]++
		if g.importedBy[to] == nil {
			g.importedBy[to] = make(map[module.ModuleID]bool)
		}
		g.importedBy[to][id] = true
	}
	g.imports[id] = out
}

// RemoveModule forgets id's outgoing edges. Edges pointing at id stay, so its
// former importers are still its dependents.
func (g *ImportGraph) RemoveModule(id module.ModuleID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.dropEdgesLocked(id)
	delete(g.nodes, id)
}

func (g *ImportGraph) dropEdgesLocked(id module.ModuleID) {
	for to := range g.imports[id] {
		delete(g.importedBy[to], id)
		if len(g.importedBy[to]) == 0 {
			delete(g.importedBy, to)
		}
	}
	delete(g.imports, id)
}

func (g *ImportGraph) HasModule(id module.ModuleID) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.nodes[id]
}

// Imports returns the distinct targets of id, sorted by id.
func (g *ImportGraph) Imports(id module.ModuleID) []module.ModuleID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return sortedIDs(g.imports[id])
}

// Importers returns the modules importing id, sorted by id.
func (g *ImportGraph) Importers(id module.ModuleID) []module.ModuleID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return sortedIDs(g.importedBy[id])
}

func sortedIDs[V any](set map[module.ModuleID]V) []module.ModuleID {
	res := make([]module.ModuleID, 0, len(set))
	for id := range set {
		res = append(res, id)
	}
	sort.Slice(res, func(i, j int) bool { return res[i] < res[j] })
	return res
}

func (g *ImportGraph) ModuleCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// EdgeCount counts distinct from/to pairs.
func (g *ImportGraph) EdgeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n := 0
	for _, targets := range g.imports {
		n += len(targets)
	}
	return n
}

// nodeNamesLocked returns existing module names, sorted, with their ids.
func (g *ImportGraph) nodeNamesLocked() ([]string, map[string]module.ModuleID) {
	names := make([]string, 0, len(g.nodes))
	byName := make(map[string]module.ModuleID, len(g.nodes))
	for id := range g.nodes {
		name := g.names.Name(id)
		names = append(names, name)
		byName[name] = id
	}
	sort.Strings(names)
	return names, byName
}

// adjacencyLocked restricts edges to existing modules, by name.
func (g *ImportGraph) adjacencyLocked(names []string, byName map[string]module.ModuleID) map[string][]string {
	adjacency := make(map[string][]string, len(names))
	for _, name := range names {
		targets := make([]string, 0, len(g.imports[byName[name]]))
		for to := range g.imports[byName[name]] {
			if g.nodes[to] {
				targets = append(targets, g.names.Name(to))
			}
		}
		sort.Strings(targets)
		adjacency[name] = targets
	}
	return adjacency
}

// ComputeModuleMetrics returns fan-in, fan-out and depth per module name. Depth
// is measured on the condensation, so modules of one cycle share it. sizes
// gives the assignment count used by the importance score.
func (g *ImportGraph) ComputeModuleMetrics(sizes map[string]int) map[string]ModuleMetrics {
	g.mu.RLock()
	defer g.mu.RUnlock()

	names, byName := g.nodeNamesLocked()
	adjacency := g.adjacencyLocked(names, byName)

	fanIn := make(map[string]int, len(names))
	for _, from := range names {
		for _, to := range adjacency[from] {
			fanIn[to]++
		}
	}

	componentOf, components := stronglyConnectedComponents(names, adjacency)
	componentEdges := make(map[int]map[int]bool, len(components))
	for _, from := range names {
		for _, to := range adjacency[from] {
			fc, tc := componentOf[from], componentOf[to]
			if fc == tc {
				continue
			}
			if componentEdges[fc] == nil {
				componentEdges[fc] = make(map[int]bool)
			}
			componentEdges[fc][tc] = true
		}
	}

	depthByComp := make(map[int]int, len(components))
	var computeDepth func(int) int
	computeDepth = func(comp int) int {
		if depth, ok := depthByComp[comp]; ok {
			return depth
		}
		maxDepth := 0
		for next := range componentEdges[comp] {
			if d := 1 + computeDepth(next); d > maxDepth {
				maxDepth = d
			}
		}
		depthByComp[comp] = maxDepth
		return maxDepth
	}

	metrics := make(map[string]ModuleMetrics, len(names))
	for _, name := range names {
		fi, fo := fanIn[name], len(adjacency[name])
		metrics[name] = ModuleMetrics{
			Depth:           computeDepth(componentOf[name]),
			FanIn:           fi,
			FanOut:          fo,
			ImportanceScore: float64(fi*2) + float64(fo) + float64(sizes[name])*0.5,
		}
	}
	return metrics
}

func stronglyConnectedComponents(nodes []string, adjacency map[string][]string) (map[string]int, [][]string) {
	index := 0
	stack := make([]string, 0, len(nodes))
	onStack := make(map[string]bool, len(nodes))
	indexByNode := make(map[string]int, len(nodes))
	lowLink := make(map[string]int, len(nodes))
	componentOf := make(map[string]int, len(nodes))
	components := make([][]string, 0)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indexByNode[v] = index
		lowLink[v] = index
		index++

		stack = append(stack, v)
		onStack[v] = true

		for _, w := range adjacency[v] {
			if _, seen := indexByNode[w]; !seen {
				strongConnect(w)
				if lowLink[w] < lowLink[v] {
					lowLink[v] = lowLink[w]
				}
			} else if onStack[w] && indexByNode[w] < lowLink[v] {
				lowLink[v] = indexByNode[w]
			}
		}

		if lowLink[v] != indexByNode[v] {
			return
		}

		component := make([]string, 0)
		for {
			last := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			onStack[last] = false
			component = append(component, last)
			if last == v {
				break
			}
		}
		sort.Strings(component)
		compID := len(components)
		components = append(components, component)
		for _, n := range component {
			componentOf[n] = compID
		}
	}

	for _, node := range nodes {
		if _, seen := indexByNode[node]; !seen {
			strongConnect(node)
		}
	}

	return componentOf, components
}
