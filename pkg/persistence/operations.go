package persistence

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// timeLayout is how timestamps are stored; it sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// DefaultHistoryLimit caps ListRuns when the caller passes a non-positive limit.
const DefaultHistoryLimit = 20

// DatabaseOperations provides methods for run history and scan archive operations.
type DatabaseOperations struct {
	db *sql.DB
}

// NewDatabaseOperations creates a new database operations handler.
func NewDatabaseOperations(db *sql.DB) *DatabaseOperations {
	return &DatabaseOperations{db: db}
}

// CreateRun inserts a run in the running state. An empty ID is filled in.
func (ops *DatabaseOperations) CreateRun(run *Run) error {
	if run.ID == "" {
		run.ID = GenerateRunID()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	if run.Status == "" {
		run.Status = RunStatusRunning
	}

	_, err := ops.db.Exec(`
		INSERT INTO runs (id, target, lhost, dry_run, status, reason, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			target = excluded.target,
			lhost = excluded.lhost,
			dry_run = excluded.dry_run
	`, run.ID, run.Target, run.LHost, boolToInt(run.DryRun), run.Status, run.Reason, formatTime(run.StartedAt))
	if err != nil {
		return fmt.Errorf("failed to create run %s: %w", run.ID, err)
	}
	return nil
}

// SetRunPlan records the plan chosen for a run.
func (ops *DatabaseOperations) SetRunPlan(runID string, plan map[string]any) error {
	encoded, err := encodeJSON(plan)
	if err != nil {
		return fmt.Errorf("failed to encode plan: %w", err)
	}
	return ops.updateRun(runID, `UPDATE runs SET plan = ? WHERE id = ?`, encoded, runID)
}

// SetReconStatus records the scanner status observed for a run.
func (ops *DatabaseOperations) SetReconStatus(runID, status string) error {
	return ops.updateRun(runID, `UPDATE runs SET recon_status = ? WHERE id = ?`, status, runID)
}

// CompleteRun stores the terminal result of a run.
func (ops *DatabaseOperations) CompleteRun(runID, status, reason string, details map[string]any, duration time.Duration) error {
	encoded, err := encodeJSON(details)
	if err != nil {
		return fmt.Errorf("failed to encode details: %w", err)
	}
	return ops.updateRun(runID, `
		UPDATE runs
		SET status = ?, reason = ?, details = ?, finished_at = ?, duration_ms = ?
		WHERE id = ?
	`, status, reason, encoded, formatTime(time.Now().UTC()), duration.Milliseconds(), runID)
}

func (ops *DatabaseOperations) updateRun(runID, query string, args ...any) error {
	res, err := ops.db.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("failed to update run %s: %w", runID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return nil
}

// GetRun returns a single run by ID.
func (ops *DatabaseOperations) GetRun(runID string) (*Run, error) {
	row := ops.db.QueryRow(runSelect+` WHERE id = ?`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// ListRuns returns the most recent runs, newest first.
func (ops *DatabaseOperations) ListRuns(limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	rows, err := ops.db.Query(runSelect+` ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return runs, nil
}

// SaveScan archives a scanner result and returns its row ID.
func (ops *DatabaseOperations) SaveScan(scan *Scan) (int64, error) {
	if scan.CreatedAt.IsZero() {
		scan.CreatedAt = time.Now().UTC()
	}
	parsed, err := encodeJSON(scan.Parsed)
	if err != nil {
		return 0, fmt.Errorf("failed to encode parsed scan: %w", err)
	}

	res, err := ops.db.Exec(`
		INSERT INTO scans (run_id, target, kind, status, raw, parsed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, nullString(scan.RunID), scan.Target, scan.Kind, scan.Status, scan.Raw, parsed, formatTime(scan.CreatedAt))
	if err != nil {
		return 0, fmt.Errorf("failed to save scan for %s: %w", scan.Target, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read scan id: %w", err)
	}
	scan.ID = id
	return id, nil
}

// ListScans returns the scans archived for a run, oldest first.
func (ops *DatabaseOperations) ListScans(runID string) ([]*Scan, error) {
	rows, err := ops.db.Query(`
		SELECT id, COALESCE(run_id, ''), target, kind, status, COALESCE(raw, ''), COALESCE(parsed, ''), created_at
		FROM scans WHERE run_id = ? ORDER BY id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query scans: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var scans []*Scan
	for rows.Next() {
		var (
			scan            Scan
			parsed, created string
		)
		if err := rows.Scan(&scan.ID, &scan.RunID, &scan.Target, &scan.Kind, &scan.Status, &scan.Raw, &parsed, &created); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		if parsed != "" {
			if err := json.Unmarshal([]byte(parsed), &scan.Parsed); err != nil {
				return nil, fmt.Errorf("failed to decode parsed scan %d: %w", scan.ID, err)
			}
		}
		scan.CreatedAt = parseTime(created)
		scans = append(scans, &scan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate scans: %w", err)
	}
	return scans, nil
}

const runSelect = `
	SELECT id, target, lhost, dry_run, status, reason,
		COALESCE(details, ''), COALESCE(plan, ''), COALESCE(recon_status, ''),
		started_at, COALESCE(finished_at, ''), duration_ms
	FROM runs`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var (
		run                   Run
		dryRun                int
		details, plan         string
		startedAt, finishedAt string
		durationMS            int64
	)
	err := row.Scan(&run.ID, &run.Target, &run.LHost, &dryRun, &run.Status, &run.Reason,
		&details, &plan, &run.ReconStatus, &startedAt, &finishedAt, &durationMS)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	run.DryRun = dryRun != 0
	run.StartedAt = parseTime(startedAt)
	if finishedAt != "" {
		t := parseTime(finishedAt)
		run.FinishedAt = &t
	}
	run.Duration = time.Duration(durationMS) * time.Millisecond

	if details != "" {
		if err := json.Unmarshal([]byte(details), &run.Details); err != nil {
			return nil, fmt.Errorf("failed to decode details for run %s: %w", run.ID, err)
		}
	}
	if plan != "" {
		if err := json.Unmarshal([]byte(plan), &run.Plan); err != nil {
			return nil, fmt.Errorf("failed to decode plan for run %s: %w", run.ID, err)
		}
	}
	return &run, nil
}

// encodeJSON returns NULL for nil values so COALESCE can tell "unset" from "{}".
func encodeJSON(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if m, ok := v.(map[string]any); ok && m == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err //nolint:wrapcheck // wrapped by callers
	}
	return string(b), nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
