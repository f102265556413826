package report

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/goccy/go-json"

	"crossmod/internal/core/ports"
	"crossmod/internal/data/query"
	"crossmod/internal/engine/graph"
)

func FormatImportChain(project string, path []string) string {
	return fmt.Sprintf("%s: %s\n", project, strings.Join(path, " -> "))
}

// FormatLookup prints where a symbol referenced from module from resolves to.
func FormatLookup(root, project, from, symbol string, res ports.Resolution) string {
	via := "local"
	if res.Imported {
		via = "imported"
	}
	return fmt.Sprintf("%s: %s.%s -> %s.%s (%s %s, %s)\n", project, from, symbol,
		res.Module.Name.Name, res.Assignment.ID.Name, via, res.Assignment.Kind, relativePath(root, string(res.Module.Unit)))
}

func FormatImpactReport(project string, report graph.ImpactReport) string {
	var b strings.Builder

	b.WriteString("Impact Analysis\n")
	b.WriteString("===============\n")
	b.WriteString(fmt.Sprintf("Project: %s\n", project))
	b.WriteString(fmt.Sprintf("Target module: %s\n", report.TargetModule))
	b.WriteString("\n")

	b.WriteString(fmt.Sprintf("Direct importers (%d)\n", len(report.DirectImporters)))
	for _, mod := range report.DirectImporters {
		b.WriteString(fmt.Sprintf("- %s\n", mod))
	}
	b.WriteString("\n")

	b.WriteString(fmt.Sprintf("Transitive impact (%d)\n", len(report.TransitiveImporters)))
	for _, mod := range report.TransitiveImporters {
		b.WriteString(fmt.Sprintf("- %s\n", mod))
	}

	return b.String()
}

// FormatModuleRows prints query results as an aligned table.
func FormatModuleRows(root string, rows []query.ModuleRow) string {
	var b strings.Builder
	tw := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PROJECT\tMODULE\tNOTATION\tFAN-IN\tFAN-OUT\tDEPTH\tSTATE\tFILE")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%s\t%s\n",
			r.Project, r.Name, r.Notation, r.FanIn, r.FanOut, r.Depth, rowState(r), relativePath(root, r.File))
	}
	_ = tw.Flush()
	fmt.Fprintf(&b, "%d modules\n", len(rows))
	return b.String()
}

func rowState(r query.ModuleRow) string {
	switch {
	case r.Skipped:
		return "skipped"
	case r.Erroneous:
		return "erroneous"
	case r.UpToDate:
		return "ok"
	default:
		return "stale"
	}
}

// RenderModuleRowsJSON encodes query results with root-relative files.
func RenderModuleRowsJSON(root string, rows []query.ModuleRow) ([]byte, error) {
	out := make([]query.ModuleRow, len(rows))
	for i, r := range rows {
		r.File = relativePath(root, r.File)
		out[i] = r
	}
	return json.MarshalIndent(out, "", "  ")
}
