package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"crossmod/internal/data/history"
)

// RenderHistoryTSV writes one row per stored cycle run, oldest first as given.
func RenderHistoryTSV(runs []history.CycleRun) ([]byte, error) {
	var buf strings.Builder

	buf.WriteString("StartedAt\tProject\tID\tStatus\tTimestamp\tDurationMs\tParsed\tSelected\tChecked\tFailed\tErrors\tWarnings\n")
	for _, r := range runs {
		buf.WriteString(fmt.Sprintf(
			"%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t%d\n",
			r.StartedAt.Format(time.RFC3339),
			r.Project,
			r.ID,
			r.Status,
			r.Timestamp,
			r.Duration.Milliseconds(),
			r.Parsed,
			r.Selected,
			r.Checked,
			r.Failed,
			r.Errors,
			r.Warnings,
		))
	}

	return []byte(buf.String()), nil
}

type historyDocument struct {
	Summaries []history.Summary  `json:"summaries"`
	Runs      []history.CycleRun `json:"runs"`
}

func RenderHistoryJSON(summaries []history.Summary, runs []history.CycleRun) ([]byte, error) {
	if runs == nil {
		runs = []history.CycleRun{}
	}
	return json.MarshalIndent(historyDocument{Summaries: summaries, Runs: runs}, "", "  ")
}

// RenderHistorySummary is the one-line-per-project view printed by --history.
func RenderHistorySummary(summaries []history.Summary) string {
	var b strings.Builder
	for _, s := range summaries {
		if s.Runs == 0 {
			fmt.Fprintf(&b, "%s: no recorded cycles\n", s.Project)
			continue
		}
		fmt.Fprintf(&b, "%s: %d cycles (%d completed, %d cancelled, %d superseded, %d failed), avg %s, max %s, errors %d (%+d)\n",
			s.Project, s.Runs,
			s.ByStatus[history.StatusCompleted],
			s.ByStatus[history.StatusCancelled],
			s.ByStatus[history.StatusSuperseded],
			s.ByStatus[history.StatusFailed],
			s.AvgDuration.Round(time.Millisecond),
			s.MaxDuration.Round(time.Millisecond),
			s.LastErrors, s.DeltaErrors,
		)
	}
	return b.String()
}
