package app

import (
	"crossmod/internal/data/query"
)

// ModuleRows lists every current module of every project with its graph
// metrics, for SELECT queries.
func (w *Workspace) ModuleRows() []query.ModuleRow {
	var rows []query.ModuleRow
	for _, name := range w.order {
		sess := w.sessions[name]
		reg := sess.Registry()
		modules := reg.Modules()

		sizes := make(map[string]int, len(modules))
		for _, m := range modules {
			sizes[m.Name.Normalized()] = len(m.Assignments)
		}
		metrics := sess.Graph().ComputeModuleMetrics(sizes)

		for _, m := range modules {
			key := m.Name.Normalized()
			mm := metrics[key]
			rows = append(rows, query.ModuleRow{
				Project:     name,
				Name:        m.Name.Name,
				Notation:    m.Notation.String(),
				File:        string(m.Unit),
				Assignments: len(m.Assignments),
				FanIn:       mm.FanIn,
				FanOut:      mm.FanOut,
				Depth:       mm.Depth,
				UpToDate:    reg.IsUpToDate(m.ID),
				Erroneous:   m.Erroneous,
				Skipped:     m.SkippedFromChecking,
			})
		}
	}
	return rows
}

// QueryModules runs a SELECT modules query over ModuleRows.
func (w *Workspace) QueryModules(raw string, limit int) ([]query.ModuleRow, error) {
	return query.Execute(raw, w.ModuleRows(), limit)
}
