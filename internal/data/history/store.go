package history

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const (
	driverName  = "sqlite"
	maxAttempts = 5
)

type Store struct {
	path string
	db   *sql.DB
	mu   sync.Mutex
}

func Open(path string) (*Store, error) {
	cleanPath := strings.TrimSpace(path)
	if cleanPath == "" {
		return nil, fmt.Errorf("history path must not be empty")
	}
	if info, err := os.Stat(cleanPath); err == nil && info.IsDir() {
		return nil, fmt.Errorf("history path %q is a directory, expected file", cleanPath)
	}

	dir := filepath.Dir(cleanPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history directory %q: %w", dir, err)
		}
	}

	// busy_timeout + WAL reduce lock conflicts while watch mode writes runs.
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(2000)&_pragma=journal_mode(WAL)", cleanPath)
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite history %q: %w", cleanPath, err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite history %q: %w", cleanPath, err)
	}
	if err := EnsureSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize sqlite schema %q: %w", cleanPath, err)
	}

	return &Store{path: cleanPath, db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SaveRun inserts run, assigning a fresh id when it has none. Saving a run
// with an existing id overwrites it.
func (s *Store) SaveRun(run CycleRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if _, err := uuid.Parse(run.ID); err != nil {
		return fmt.Errorf("invalid cycle run id %q: %w", run.ID, err)
	}
	run.Project = strings.TrimSpace(run.Project)
	if run.Project == "" {
		run.Project = "default"
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	if run.Status == "" {
		return fmt.Errorf("cycle run %s has no status", run.ID)
	}

	query := `
INSERT INTO cycle_runs (
  id, project, started_utc, duration_ms, status, compilation_ts,
  parsed, selected, checked, failed, errors, warnings
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  project=excluded.project,
  started_utc=excluded.started_utc,
  duration_ms=excluded.duration_ms,
  status=excluded.status,
  compilation_ts=excluded.compilation_ts,
  parsed=excluded.parsed,
  selected=excluded.selected,
  checked=excluded.checked,
  failed=excluded.failed,
  errors=excluded.errors,
  warnings=excluded.warnings
`
	return s.withRetry("save cycle run", func() error {
		_, err := s.db.Exec(
			query,
			run.ID,
			run.Project,
			run.StartedAt.UTC().Format(time.RFC3339Nano),
			run.Duration.Milliseconds(),
			run.Status,
			int64(run.Timestamp),
			run.Parsed,
			run.Selected,
			run.Checked,
			run.Failed,
			run.Errors,
			run.Warnings,
		)
		return err
	})
}

// LoadRuns returns the runs of project started at or after since, oldest
// first. A zero since loads everything.
func (s *Store) LoadRuns(project string, since time.Time) ([]CycleRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	project = strings.TrimSpace(project)
	if project == "" {
		project = "default"
	}

	base := `
SELECT
  id, project, started_utc, duration_ms, status, compilation_ts,
  parsed, selected, checked, failed, errors, warnings
FROM cycle_runs
WHERE project = ?`
	args := []any{project}
	if !since.IsZero() {
		base += " AND started_utc >= ?"
		args = append(args, since.UTC().Format(time.RFC3339Nano))
	}
	base += " ORDER BY started_utc ASC, id ASC"

	var rows *sql.Rows
	err := s.withRetry("load cycle runs", func() error {
		var qErr error
		rows, qErr = s.db.Query(base, args...)
		return qErr
	})
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := make([]CycleRun, 0)
	for rows.Next() {
		var (
			startedRaw string
			durationMS int64
			ts         int64
			run        CycleRun
		)
		if err := rows.Scan(
			&run.ID,
			&run.Project,
			&startedRaw,
			&durationMS,
			&run.Status,
			&ts,
			&run.Parsed,
			&run.Selected,
			&run.Checked,
			&run.Failed,
			&run.Errors,
			&run.Warnings,
		); err != nil {
			return nil, fmt.Errorf("scan cycle run row: %w", err)
		}
		started, err := time.Parse(time.RFC3339Nano, startedRaw)
		if err != nil {
			return nil, fmt.Errorf("parse cycle run timestamp %q: %w", startedRaw, err)
		}
		run.StartedAt = started.UTC()
		run.Duration = time.Duration(durationMS) * time.Millisecond
		run.Timestamp = uint64(ts)
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cycle run rows: %w", err)
	}
	return runs, nil
}

func (s *Store) withRetry(op string, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !isLockError(err) || attempt == maxAttempts {
			break
		}
		time.Sleep(time.Duration(attempt*25) * time.Millisecond)
	}
	return fmt.Errorf("%s: %w", op, lastErr)
}

func isLockError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "busy")
}

func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

func IsCorruptError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "malformed") || strings.Contains(msg, "not a database") || errors.Is(err, os.ErrInvalid)
}
