package app

import (
	"time"

	"crossmod/internal/data/history"
	"crossmod/internal/engine/clock"
)

// CycleReport summarizes one AnalyzeCycle run of one project.
type CycleReport struct {
	ID        string          `json:"id"`
	Project   string          `json:"project"`
	Status    string          `json:"status"`
	Timestamp clock.Timestamp `json:"timestamp"`
	StartedAt time.Time       `json:"started_at"`
	Duration  time.Duration   `json:"duration"`

	Parsed    int `json:"parsed"`
	CacheHits int `json:"cache_hits"`
	Selected  int `json:"selected"`
	Checked   int `json:"checked"`
	Failed    int `json:"failed"`
	Errors    int `json:"errors"`
	Warnings  int `json:"warnings"`

	// Changed lists the normalized names of modules added, replaced or removed
	// by this cycle. Dependent projects re-check their importers of these names.
	Changed []string `json:"changed,omitempty"`
	// Rechecked lists the names of every module selected by this cycle.
	// Importers in dependent projects must be re-checked against them too.
	Rechecked []string `json:"rechecked,omitempty"`
	// Cycles holds the circular import chains met while checking, each closed
	// by its first name.
	Cycles [][]string `json:"cycles,omitempty"`
}

func (r CycleReport) Completed() bool {
	return r.Status == history.StatusCompleted
}

func (r CycleReport) historyRun() history.CycleRun {
	return history.CycleRun{
		ID:        r.ID,
		Project:   r.Project,
		StartedAt: r.StartedAt,
		Duration:  r.Duration,
		Status:    r.Status,
		Timestamp: uint64(r.Timestamp),
		Parsed:    r.Parsed,
		Selected:  r.Selected,
		Checked:   r.Checked,
		Failed:    r.Failed,
		Errors:    r.Errors,
		Warnings:  r.Warnings,
	}
}
