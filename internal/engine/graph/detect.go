package graph

import "sort"

// DetectCycles lists every import cycle among existing modules. Each cycle is
// a strongly connected component (or a self-import) rotated to start at its
// lowest name and ordered along its import edges.
func (g *ImportGraph) DetectCycles() [][]string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	names, byName := g.nodeNamesLocked()
	adjacency := g.adjacencyLocked(names, byName)
	_, components := stronglyConnectedComponents(names, adjacency)

	var cycles [][]string
	for _, comp := range components {
		if len(comp) == 1 {
			self := false
			for _, to := range adjacency[comp[0]] {
				if to == comp[0] {
					self = true
				}
			}
			if self {
				cycles = append(cycles, []string{comp[0]})
			}
			continue
		}
		cycles = append(cycles, walkComponent(comp, adjacency))
	}
	sort.Slice(cycles, func(i, j int) bool { return cycles[i][0] < cycles[j][0] })
	return cycles
}

// walkComponent orders the members of a component by following edges from its
// lowest member, preferring the lowest unvisited successor. Members not
// reached that way are appended in name order.
func walkComponent(comp []string, adjacency map[string][]string) []string {
	members := make(map[string]bool, len(comp))
	for _, n := range comp {
		members[n] = true
	}
	visited := make(map[string]bool, len(comp))
	path := make([]string, 0, len(comp))
	for curr := comp[0]; curr != ""; {
		visited[curr] = true
		path = append(path, curr)
		next := ""
		for _, to := range adjacency[curr] {
			if members[to] && !visited[to] {
				next = to
				break
			}
		}
		curr = next
	}
	for _, n := range comp {
		if !visited[n] {
			path = append(path, n)
		}
	}
	return path
}

// FindImportChain returns the shortest import path between two modules.
func (g *ImportGraph) FindImportChain(from, to string) ([]string, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	fromID, ok := g.names.IDOf(from)
	if !ok || !g.nodes[fromID] {
		return nil, false
	}
	toID, ok := g.names.IDOf(to)
	if !ok || !g.nodes[toID] {
		return nil, false
	}
	if from == to {
		return []string{from}, true
	}

	queue := []string{from}
	visited := map[string]bool{from: true}
	prev := make(map[string]string)

	for len(queue) > 0 {
		curr := queue[0]
		queue = queue[1:]
		currID, _ := g.names.IDOf(curr)

		neighbors := make([]string, 0, len(g.imports[currID]))
		for next := range g.imports[currID] {
			if !g.nodes[next] {
				continue
			}
			neighbors = append(neighbors, g.names.Name(next))
		}
		sort.Strings(neighbors)

		for _, next := range neighbors {
			if visited[next] {
				continue
			}
			visited[next] = true
			prev[next] = curr

			if next == to {
				path := []string{to}
				for node := to; node != from; {
					p, ok := prev[node]
					if !ok {
						return nil, false
					}
					path = append(path, p)
					node = p
				}
				for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
					path[i], path[j] = path[j], path[i]
				}
				return path, true
			}

			queue = append(queue, next)
		}
	}

	return nil, false
}
