// Package report renders analysis results for people (text) and tools (JSON,
// SARIF, TSV). It never touches engine state; callers pass snapshots in.
package report

import (
	"path/filepath"

	"github.com/goccy/go-json"

	"crossmod/internal/core/app"
	"crossmod/internal/engine/diag"
)

const (
	FormatText  = "text"
	FormatJSON  = "json"
	FormatSARIF = "sarif"
)

// Snapshot is everything one run has to say: the cycle reports, the current
// diagnostics and the import cycles per project.
type Snapshot struct {
	Root        string
	Reports     []app.CycleReport
	Diagnostics []*diag.Diagnostic
	Cycles      map[string][][]string
}

// NewSnapshot collects the current state of ws.
func NewSnapshot(ws *app.Workspace, reports []app.CycleReport) Snapshot {
	return Snapshot{
		Root:        ws.Root(),
		Reports:     reports,
		Diagnostics: ws.Diagnostics(),
		Cycles:      ws.Cycles(),
	}
}

// Counts returns errors and warnings among the snapshot diagnostics.
func (s Snapshot) Counts() (errors, warnings int) {
	for _, d := range s.Diagnostics {
		switch d.Severity {
		case diag.Error:
			errors++
		case diag.Warning:
			warnings++
		}
	}
	return errors, warnings
}

type jsonLocation struct {
	File   string `json:"file"`
	Line   int    `json:"line,omitempty"`
	Column int    `json:"column,omitempty"`
}

type jsonRelated struct {
	Location jsonLocation `json:"location"`
	Message  string       `json:"message"`
}

type jsonDiagnostic struct {
	Severity string        `json:"severity"`
	Code     string        `json:"code"`
	Phase    string        `json:"phase"`
	Message  string        `json:"message"`
	Location jsonLocation  `json:"location"`
	Related  []jsonRelated `json:"related,omitempty"`
}

type jsonSnapshot struct {
	Errors      int                   `json:"errors"`
	Warnings    int                   `json:"warnings"`
	Reports     []app.CycleReport     `json:"reports"`
	Diagnostics []jsonDiagnostic      `json:"diagnostics"`
	Cycles      map[string][][]string `json:"cycles,omitempty"`
}

// RenderJSON encodes s with file paths relative to s.Root.
func RenderJSON(s Snapshot) ([]byte, error) {
	out := jsonSnapshot{
		Reports:     s.Reports,
		Diagnostics: make([]jsonDiagnostic, 0, len(s.Diagnostics)),
		Cycles:      s.Cycles,
	}
	if out.Reports == nil {
		out.Reports = []app.CycleReport{}
	}
	out.Errors, out.Warnings = s.Counts()
	for _, d := range s.Diagnostics {
		jd := jsonDiagnostic{
			Severity: d.Severity.String(),
			Code:     string(d.Code),
			Phase:    d.Phase.String(),
			Message:  d.Message,
			Location: jsonLocation{File: relativePath(s.Root, string(d.Location.Unit)), Line: d.Location.Line, Column: d.Location.Column},
		}
		for _, r := range d.Related {
			jd.Related = append(jd.Related, jsonRelated{
				Location: jsonLocation{File: relativePath(s.Root, string(r.Location.Unit)), Line: r.Location.Line, Column: r.Location.Column},
				Message:  r.Message,
			})
		}
		out.Diagnostics = append(out.Diagnostics, jd)
	}
	return json.MarshalIndent(out, "", "  ")
}

// Render dispatches on format. Unknown formats fall back to text.
func Render(format string, s Snapshot) ([]byte, error) {
	switch format {
	case FormatJSON:
		return RenderJSON(s)
	case FormatSARIF:
		return GenerateSARIF(s.Root, s.Diagnostics)
	default:
		return []byte(RenderText(s, false)), nil
	}
}

// relativePath makes path relative to root when it lies below it and always
// uses forward slashes.
func relativePath(root, path string) string {
	if root != "" && filepath.IsAbs(path) {
		if rel, err := filepath.Rel(root, path); err == nil && !filepath.IsAbs(rel) && rel != ".." && !hasParentPrefix(rel) {
			path = rel
		}
	}
	return filepath.ToSlash(path)
}

func hasParentPrefix(rel string) bool {
	return len(rel) >= 3 && rel[:3] == ".."+string(filepath.Separator)
}
