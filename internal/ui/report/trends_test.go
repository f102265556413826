package report

import (
	"strings"
	"testing"
	"time"

	"crossmod/internal/data/history"
)

func TestRenderHistoryTSV(t *testing.T) {
	runs := []history.CycleRun{
		{
			ID:        "c1",
			Project:   "app",
			StartedAt: time.Date(2026, 2, 13, 0, 0, 0, 0, time.UTC),
			Duration:  1500 * time.Millisecond,
			Status:    history.StatusCompleted,
			Timestamp: 7,
			Parsed:    3,
			Selected:  4,
			Checked:   4,
			Errors:    2,
			Warnings:  1,
		},
	}

	out, err := RenderHistoryTSV(runs)
	if err != nil {
		t.Fatalf("render tsv: %v", err)
	}

	body := string(out)
	if !strings.HasPrefix(body, "StartedAt\tProject\tID\tStatus") {
		t.Fatalf("missing header in output: %s", body)
	}
	if !strings.Contains(body, "2026-02-13T00:00:00Z\tapp\tc1\tcompleted\t7\t1500\t3\t4\t4\t0\t2\t1\n") {
		t.Fatalf("missing row values in output: %s", body)
	}
}

func TestRenderHistoryJSON(t *testing.T) {
	summary := history.Summarize("app", nil)

	out, err := RenderHistoryJSON([]history.Summary{summary}, nil)
	if err != nil {
		t.Fatalf("render json: %v", err)
	}
	if !strings.Contains(string(out), "\"project\": \"app\"") {
		t.Fatalf("missing project in json: %s", string(out))
	}
	if !strings.Contains(string(out), "\"runs\": []") {
		t.Fatalf("runs must encode as an empty list: %s", string(out))
	}
}

func TestRenderHistorySummary(t *testing.T) {
	base := time.Date(2026, 2, 13, 0, 0, 0, 0, time.UTC)
	runs := []history.CycleRun{
		{StartedAt: base, Duration: time.Second, Status: history.StatusCompleted, Errors: 5},
		{StartedAt: base.Add(time.Minute), Status: history.StatusSuperseded},
		{StartedAt: base.Add(2 * time.Minute), Duration: 3 * time.Second, Status: history.StatusCompleted, Errors: 2},
	}
	out := RenderHistorySummary([]history.Summary{
		history.Summarize("app", runs),
		history.Summarize("base", nil),
	})

	want := "app: 3 cycles (2 completed, 0 cancelled, 1 superseded, 0 failed), avg 1.333s, max 3s, errors 2 (-3)\n" +
		"base: no recorded cycles\n"
	if out != want {
		t.Fatalf("unexpected summary:\n%s\nwant:\n%s", out, want)
	}
}
