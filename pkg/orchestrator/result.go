package orchestrator

// Status is the terminal status of a run.
type Status string

// Run statuses.
const (
	StatusSuccess     Status = "success"
	StatusFailure     Status = "failure"
	StatusPartial     Status = "partial"
	StatusInterrupted Status = "interrupted"
	StatusUnknown     Status = "unknown"
)

// Reason codes for results not derived from a failure.Error.
const (
	ReasonShutdownRequested    = "shutdown_requested"
	ReasonNoPlan               = "no_plan"
	ReasonReconFailed          = "recon_failed"
	ReasonManualReview         = "manual_review_required"
	ReasonDryRun               = "dry_run"
	ReasonOperatorDeclined     = "operator_declined"
	ReasonSessionOpened        = "session_opened"
	ReasonSessionUpgraded      = "session_opened_and_upgraded"
	ReasonSessionUpgradeFailed = "session_opened_upgrade_failed"
	ReasonExploitFailed        = "exploit_failed"
	ReasonTimeoutNoSession     = "timeout_no_session"
)

// Result is the single structured outcome of a run.
type Result struct {
	Details map[string]any `json:"details"`
	RunID   string         `json:"run_id,omitempty"`
	Status  Status         `json:"status"`
	Reason  string         `json:"reason"`
}

// Map renders the result in its wire shape: status, reason and details.
func (r Result) Map() map[string]any {
	details := r.Details
	if details == nil {
		details = map[string]any{}
	}
	return map[string]any{
		"status":  string(r.Status),
		"reason":  r.Reason,
		"details": details,
	}
}

func newResult(status Status, reason string, details map[string]any) Result {
	if details == nil {
		details = map[string]any{}
	}
	return Result{Status: status, Reason: reason, Details: details}
}

func interrupted() Result {
	return newResult(StatusInterrupted, ReasonShutdownRequested, nil)
}
