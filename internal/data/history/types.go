// Package history persists one summary row per analysis cycle in SQLite.
package history

import (
	"sort"
	"time"
)

const SchemaVersion = 1

// Cycle statuses as recorded by the driver and the coordinator.
const (
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
	StatusSuperseded = "superseded"
	StatusFailed     = "failed"
)

// CycleRun summarizes one analysis cycle of one project.
type CycleRun struct {
	ID        string        `json:"id"`
	Project   string        `json:"project"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Status    string        `json:"status"`
	// Timestamp is the compilation timestamp the cycle stamped on checked modules.
	Timestamp uint64 `json:"timestamp"`

	Parsed   int `json:"parsed"`
	Selected int `json:"selected"`
	Checked  int `json:"checked"`
	Failed   int `json:"failed"`
	Errors   int `json:"errors"`
	Warnings int `json:"warnings"`
}

// Summary aggregates runs of one project.
type Summary struct {
	Project      string         `json:"project"`
	Runs         int            `json:"runs"`
	ByStatus     map[string]int `json:"by_status"`
	AvgDuration  time.Duration  `json:"avg_duration"`
	MaxDuration  time.Duration  `json:"max_duration"`
	LastErrors   int            `json:"last_errors"`
	DeltaErrors  int            `json:"delta_errors"`
	LastFinished time.Time      `json:"last_finished"`
}

// Summarize folds runs, in any order, into a Summary. Error deltas compare the
// last two completed runs.
func Summarize(project string, runs []CycleRun) Summary {
	s := Summary{Project: project, ByStatus: make(map[string]int)}
	if len(runs) == 0 {
		return s
	}
	sorted := append([]CycleRun(nil), runs...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].StartedAt.Before(sorted[j].StartedAt) })

	var total time.Duration
	var completed []CycleRun
	for _, r := range sorted {
		s.Runs++
		s.ByStatus[r.Status]++
		total += r.Duration
		if r.Duration > s.MaxDuration {
			s.MaxDuration = r.Duration
		}
		if r.Status == StatusCompleted {
			completed = append(completed, r)
		}
	}
	s.AvgDuration = total / time.Duration(s.Runs)
	last := sorted[len(sorted)-1]
	s.LastFinished = last.StartedAt.Add(last.Duration)

	if n := len(completed); n > 0 {
		s.LastErrors = completed[n-1].Errors
		if n > 1 {
			s.DeltaErrors = completed[n-1].Errors - completed[n-2].Errors
		}
	}
	return s
}
