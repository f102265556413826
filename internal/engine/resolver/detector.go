package resolver

import (
	"strings"

	"crossmod/internal/engine/clock"
	"crossmod/internal/engine/diag"
	"crossmod/internal/engine/module"
)

// Detector runs the import check of one module with a fresh importation chain
// and reports the first circular importation it meets.
type Detector struct {
	resolver       *Resolver
	reportCircular bool
}

func NewDetector(r *Resolver, reportCircular bool) *Detector {
	return &Detector{resolver: r, reportCircular: reportCircular}
}

// Check resolves m's imports at ts. It returns the names along the first cycle
// found, closed by its first element, or nil.
func (d *Detector) Check(m *module.Module, ts clock.Timestamp) []string {
	if m == nil {
		return nil
	}
	chain := NewChain(m.ID)
	d.resolver.CheckImports(m, chain, ts)

	ids, edge, ok := chain.Cycle()
	if !ok {
		return nil
	}
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		if cm := d.resolver.modules.ByID(id); cm != nil {
			names = append(names, cm.Name.Name)
		}
	}
	if d.reportCircular {
		d.resolver.report(diag.NewWarning(diag.CodeCircularImport,
			"circular import chain: %s", strings.Join(names, " -> ")).
			At(edge.Location))
	}
	return names
}
