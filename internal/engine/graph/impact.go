package graph

import (
	"errors"
	"fmt"
	"sort"
)

var ErrImpactTargetNotFound = errors.New("impact target not found")

type ImpactReport struct {
	TargetModule        string
	DirectImporters     []string
	TransitiveImporters []string
}

type ImpactTargetError struct {
	Target string
}

func (e *ImpactTargetError) Error() string {
	return fmt.Sprintf("%v: %s", ErrImpactTargetNotFound, e.Target)
}

func (e *ImpactTargetError) Unwrap() error {
	return ErrImpactTargetNotFound
}

// AnalyzeImpact lists the modules that would be re-checked if name changed,
// split into direct and transitive importers. The target may be a module that
// no longer exists but is still imported.
func (g *ImportGraph) AnalyzeImpact(name string) (ImpactReport, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	id, ok := g.names.IDOf(name)
	if !ok || (!g.nodes[id] && len(g.importedBy[id]) == 0) {
		return ImpactReport{}, &ImpactTargetError{Target: name}
	}

	report := ImpactReport{TargetModule: name}
	direct := make([]string, 0, len(g.importedBy[id]))
	for importer := range g.importedBy[id] {
		direct = append(direct, g.names.Name(importer))
	}
	sort.Strings(direct)
	report.DirectImporters = direct

	seen := map[string]bool{name: true}
	queue := make([]string, 0, len(direct))
	for _, d := range direct {
		seen[d] = true
		queue = append(queue, d)
	}

	transitive := make([]string, 0)
	for len(queue) > 0 {
		curr := queue[0]
		queue = queue[1:]
		currID, _ := g.names.IDOf(curr)
		for next := range g.importedBy[currID] {
			nextName := g.names.Name(next)
			if seen[nextName] {
				continue
			}
			seen[nextName] = true
			queue = append(queue, nextName)
			transitive = append(transitive, nextName)
		}
	}
	sort.Strings(transitive)
	report.TransitiveImporters = transitive
	return report, nil
}
