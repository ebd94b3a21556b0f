package persistence

import (
	"context"
	"time"

	"spectra/pkg/logx"
)

// ScanKindRecon labels scans captured during a run's RECON phase.
const ScanKindRecon = "recon"

// HistoryRecorder writes run lifecycle events to the database. Storage errors are
// logged and swallowed; history must never change the outcome of a run.
type HistoryRecorder struct {
	ops    *DatabaseOperations
	logger *logx.Logger
}

// NewHistoryRecorder creates a recorder backed by ops.
func NewHistoryRecorder(ops *DatabaseOperations) *HistoryRecorder {
	return &HistoryRecorder{ops: ops, logger: logx.NewLogger("history")}
}

// RunStarted inserts the run row.
func (h *HistoryRecorder) RunStarted(_ context.Context, runID, target, lhost string, dryRun bool) {
	run := &Run{ID: runID, Target: target, LHost: lhost, DryRun: dryRun}
	if err := h.ops.CreateRun(run); err != nil {
		h.logger.Warn("failed to record run start: %v", err)
	}
}

// ReconCompleted archives the scan and marks the recon status on the run.
func (h *HistoryRecorder) ReconCompleted(_ context.Context, runID, target, status, raw string, parsed any) {
	scan := &Scan{RunID: runID, Target: target, Kind: ScanKindRecon, Status: status, Raw: raw, Parsed: parsed}
	if _, err := h.ops.SaveScan(scan); err != nil {
		h.logger.Warn("failed to archive recon for run %s: %v", runID, err)
	}
	if err := h.ops.SetReconStatus(runID, status); err != nil {
		h.logger.Warn("failed to record recon status: %v", err)
	}
}

// PlanReady stores the validated plan.
func (h *HistoryRecorder) PlanReady(_ context.Context, runID string, plan map[string]any) {
	if err := h.ops.SetRunPlan(runID, plan); err != nil {
		h.logger.Warn("failed to record plan: %v", err)
	}
}

// PollTick is not persisted.
func (h *HistoryRecorder) PollTick(context.Context, string, int) {}

// RunFinished stores the terminal result.
func (h *HistoryRecorder) RunFinished(_ context.Context, runID, status, reason string, details map[string]any, elapsed time.Duration) {
	if err := h.ops.CompleteRun(runID, status, reason, details, elapsed); err != nil {
		h.logger.Warn("failed to record run result: %v", err)
	}
}
