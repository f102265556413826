package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"crossmod/internal/data/history"
	"crossmod/internal/engine/diag"
	"crossmod/internal/shared/util"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#3B82F6")).
			Bold(true)

	fileStyle = lipgloss.NewStyle().
			Underline(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F87171")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FBBF24")).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#10B981")).
			Bold(true)

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#64748B")).
			Italic(true)
)

type painter struct {
	color bool
}

func (p painter) paint(style lipgloss.Style, s string) string {
	if !p.color {
		return s
	}
	return style.Render(s)
}

func (p painter) severity(d *diag.Diagnostic) string {
	label := d.Severity.String()
	switch d.Severity {
	case diag.Error:
		return p.paint(errorStyle, label)
	case diag.Warning:
		return p.paint(warningStyle, label)
	default:
		return p.paint(mutedStyle, label)
	}
}

// RenderText formats s for a terminal. With color off the output is plain
// text.
func RenderText(s Snapshot, color bool) string {
	p := painter{color: color}
	var b strings.Builder

	for _, r := range s.Reports {
		line := fmt.Sprintf("%s: %s, parsed %d (%d cached), checked %d of %d selected",
			r.Project, r.Status, r.Parsed, r.CacheHits, r.Checked, r.Selected)
		if r.Failed > 0 {
			line += fmt.Sprintf(", %d failed", r.Failed)
		}
		line += fmt.Sprintf(" in %s", r.Duration.Round(time.Millisecond))
		if r.Status != history.StatusCompleted {
			line = p.paint(warningStyle, line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	if len(s.Reports) > 0 {
		b.WriteString("\n")
	}

	var current string
	for _, d := range s.Diagnostics {
		file := relativePath(s.Root, string(d.Location.Unit))
		if file != current {
			if current != "" {
				b.WriteString("\n")
			}
			b.WriteString(p.paint(fileStyle, file))
			b.WriteString("\n")
			current = file
		}
		fmt.Fprintf(&b, "  %d:%d %s [%s] %s\n", d.Location.Line, d.Location.Column, p.severity(d), d.Code, d.Message)
		for _, r := range d.Related {
			fmt.Fprintf(&b, "      %s %s:%d:%d\n", p.paint(mutedStyle, r.Message+":"),
				relativePath(s.Root, string(r.Location.Unit)), r.Location.Line, r.Location.Column)
		}
	}
	if len(s.Diagnostics) > 0 {
		b.WriteString("\n")
	}

	for _, project := range util.SortedStringKeys(s.Cycles) {
		for _, c := range s.Cycles[project] {
			fmt.Fprintf(&b, "%s %s: %s\n", p.paint(errorStyle, "cycle"), project, strings.Join(c, " -> "))
		}
	}

	errs, warns := s.Counts()
	summary := fmt.Sprintf("%d errors, %d warnings", errs, warns)
	switch {
	case errs > 0:
		summary = p.paint(errorStyle, summary)
	case warns > 0:
		summary = p.paint(warningStyle, summary)
	default:
		summary = p.paint(successStyle, "no problems found")
	}
	b.WriteString(p.paint(titleStyle, "Summary: "))
	b.WriteString(summary)
	b.WriteString("\n")
	return b.String()
}
