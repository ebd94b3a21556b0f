package orchestrator

import (
	"context"
	"time"

	"spectra/pkg/failure"
	"spectra/pkg/plan"
)

// ReconStatusError marks a scan that produced nothing usable.
const ReconStatusError = "error"

// Recon is scanner output as consumed by planning.
type Recon struct {
	Parsed any    `json:"parsed,omitempty"`
	Status string `json:"status"`
	Raw    string `json:"raw,omitempty"`
}

// Usable reports whether planning may consume this recon, partial data included.
func (r Recon) Usable() bool {
	return r.Status != ReconStatusError
}

// AdvisorView is what the planner sees: parsed output when available, raw otherwise.
func (r Recon) AdvisorView() map[string]any {
	view := map[string]any{"status": r.Status}
	if r.Parsed != nil {
		view["parsed"] = r.Parsed
	} else if r.Raw != "" {
		view["raw"] = r.Raw
	}
	return view
}

// Scanner performs reconnaissance against a target.
type Scanner interface {
	Scan(ctx context.Context, target string) (Recon, error)
}

// Planner turns recon output into a plan or a manual-review request.
type Planner interface {
	Strategy(ctx context.Context, recon any) (plan.Outcome, error)
}

// SessionTypeShell is the unstabilized session variant that gets an upgrade attempt.
const SessionTypeShell = "shell"

// SessionTypeUpgradedShell is reported after a successful upgrade.
const SessionTypeUpgradedShell = "upgraded_shell"

// Session is the attribute mapping the backend reports for one session.
type Session map[string]any

// Type returns the session's "type" attribute.
func (s Session) Type() string {
	t, _ := s["type"].(string)
	return t
}

// Console is the execution log of a dispatched plan.
type Console interface {
	Read(ctx context.Context) (string, error)
}

// Backend executes plans and owns the session registry.
type Backend interface {
	// Sessions snapshots the registry as identifier to attributes.
	Sessions(ctx context.Context) (map[string]Session, error)
	// Execute dispatches p against target and returns its console.
	Execute(ctx context.Context, p plan.Plan, target string) (Console, error)
	// Upgrade stabilizes a session, calling back to lhost.
	Upgrade(ctx context.Context, sessionID, lhost string) error
}

// LogClassifier maps console output to a failure reason.
type LogClassifier interface {
	Classify(log string) failure.Reason
}

// LogClassifierFunc adapts a function to LogClassifier.
type LogClassifierFunc func(log string) failure.Reason

// Classify calls f.
func (f LogClassifierFunc) Classify(log string) failure.Reason { return f(log) }

// ConfirmFunc asks the operator to approve dispatch of p.
type ConfirmFunc func(ctx context.Context, p plan.Plan) (bool, error)

// Observer is notified of run lifecycle events. Implementations must not block.
type Observer interface {
	RunStarted(ctx context.Context, runID, target, lhost string, dryRun bool)
	ReconCompleted(ctx context.Context, runID, target, status, raw string, parsed any)
	PlanReady(ctx context.Context, runID string, plan map[string]any)
	PollTick(ctx context.Context, runID string, tick int)
	RunFinished(ctx context.Context, runID, status, reason string, details map[string]any, elapsed time.Duration)
}
