package persistence

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrRunNotFound is returned when a run ID has no row.
var ErrRunNotFound = errors.New("run not found")

// RunStatusRunning marks a run that has started but not yet recorded a result.
const RunStatusRunning = "running"

// Run is one orchestrator execution as stored in history.
//
//nolint:govet // field order follows the table
type Run struct {
	StartedAt   time.Time      `json:"started_at"`
	FinishedAt  *time.Time     `json:"finished_at,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
	Plan        map[string]any `json:"plan,omitempty"`
	ID          string         `json:"id"`
	Target      string         `json:"target"`
	LHost       string         `json:"lhost"`
	Status      string         `json:"status"`
	Reason      string         `json:"reason"`
	ReconStatus string         `json:"recon_status,omitempty"`
	Duration    time.Duration  `json:"duration"`
	DryRun      bool           `json:"dry_run"`
}

// Finished reports whether a result has been recorded for the run.
func (r *Run) Finished() bool {
	return r.FinishedAt != nil
}

// Scan is an archived scanner result. RunID is empty for standalone scans.
type Scan struct {
	CreatedAt time.Time `json:"created_at"`
	Parsed    any       `json:"parsed,omitempty"`
	RunID     string    `json:"run_id,omitempty"`
	Target    string    `json:"target"`
	Kind      string    `json:"kind"`
	Status    string    `json:"status"`
	Raw       string    `json:"raw,omitempty"`
	ID        int64     `json:"id"`
}

// GenerateRunID returns a new random run identifier.
func GenerateRunID() string {
	return uuid.NewString()
}
