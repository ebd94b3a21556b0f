// Package orchestrator runs one recon, plan, dispatch and verify cycle against a
// target and reduces every exit path to a single Result.
package orchestrator

import (
	"context"
	"runtime/debug"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"spectra/pkg/failure"
	"spectra/pkg/logx"
	"spectra/pkg/plan"
)

// State names a phase of the run state machine.
type State string

// States, in the order a successful run visits them.
const (
	StateRecon        State = "RECON"
	StatePlanning     State = "PLANNING"
	StateManualReview State = "MANUAL_REVIEW"
	StateDispatch     State = "DISPATCH"
	StatePolling      State = "POLLING"
	StateSuccess      State = "SUCCESS"
	StateFailure      State = "FAILURE"
	StateTimeout      State = "TIMEOUT"
	StateInterrupted  State = "INTERRUPTED"
)

// Defaults for Options.
const (
	DefaultDeadline       = 60 * time.Second
	DefaultTick           = 5 * time.Second
	DefaultTerminalMarker = "Exploit completed"
	// maxLogBytes bounds the console output kept for marker detection and details.
	maxLogBytes = 64 * 1024
)

// Options tune a run.
type Options struct {
	// Confirm gates dispatch. Nil dispatches without asking, except for plans that
	// require manual approval, which then stop as manual review.
	Confirm ConfirmFunc
	// TerminalMarker is console text meaning the exploit finished without a session.
	TerminalMarker string
	// Observers receive lifecycle events in order.
	Observers []Observer
	// Deadline bounds the polling phase.
	Deadline time.Duration
	// Tick is the delay between polls.
	Tick time.Duration
	// DryRun stops after planning.
	DryRun bool
}

func (o Options) withDefaults() Options {
	if o.Deadline <= 0 {
		o.Deadline = DefaultDeadline
	}
	if o.Tick <= 0 {
		o.Tick = DefaultTick
	}
	if o.TerminalMarker == "" {
		o.TerminalMarker = DefaultTerminalMarker
	}
	return o
}

// Orchestrator drives the run state machine. It is safe to reuse for sequential runs.
type Orchestrator struct {
	scanner    Scanner
	planner    Planner
	backend    Backend
	classifier LogClassifier
	logger     *logx.Logger
	opts       Options
}

// New creates an orchestrator over its collaborators.
func New(scanner Scanner, planner Planner, backend Backend, classifier LogClassifier, opts Options) *Orchestrator {
	return &Orchestrator{
		scanner:    scanner,
		planner:    planner,
		backend:    backend,
		classifier: classifier,
		logger:     logx.NewLogger("orchestrator"),
		opts:       opts.withDefaults(),
	}
}

// run carries per-run state through the phases.
type run struct {
	ctx    context.Context //nolint:containedctx // scoped to a single Run call
	id     string
	target string
	lhost  string
	state  State
}

// Run executes one full cycle. It never panics and never returns an error: every
// exit path, including cancellation via ctx, produces exactly one Result.
func (o *Orchestrator) Run(ctx context.Context, target, lhost string) (result Result) {
	id := uuid.NewString()
	ctx = logx.WithRunID(ctx, id)
	r := &run{ctx: ctx, id: id, target: target, lhost: lhost}
	started := time.Now()

	o.logger.Info("run %s: target=%s lhost=%s dry_run=%t", r.id, target, lhost, o.opts.DryRun)
	for _, obs := range o.opts.Observers {
		obs.RunStarted(ctx, r.id, target, lhost, o.opts.DryRun)
	}

	defer func() {
		if p := recover(); p != nil {
			o.logger.Error("run %s: panic in %s: %v", r.id, r.state, p)
			fe := failure.Newf(failure.ReasonUndefined, "panic: %v", p)
			fe.Trace = string(debug.Stack())
			result = failureResult(fe)
		}
		result.RunID = r.id
		o.logger.Info("run %s finished in %s: status=%s reason=%s", r.id, r.state, result.Status, result.Reason)
		for _, obs := range o.opts.Observers {
			o.notifyFinished(ctx, obs, r.id, result, time.Since(started))
		}
	}()

	res, err := o.execute(r)
	if err != nil {
		return failureResult(failure.As(err))
	}
	return res
}

// notifyFinished delivers the final event. It runs after Run's recover, so a
// panicking observer is contained here.
func (o *Orchestrator) notifyFinished(ctx context.Context, obs Observer, runID string, res Result, elapsed time.Duration) {
	defer func() {
		if p := recover(); p != nil {
			o.logger.Error("run %s: observer panicked on finish: %v", runID, p)
		}
	}()
	obs.RunFinished(ctx, runID, string(res.Status), res.Reason, res.Details, elapsed)
}

func failureResult(fe *failure.Error) Result {
	return newResult(StatusFailure, fe.Reason.String(), fe.Fields())
}

func (o *Orchestrator) enter(r *run, s State) {
	o.logger.Debug("run %s: %s -> %s", r.id, r.state, s)
	r.state = s
}

// cancelled records the interruption and reports whether the run must stop.
func (o *Orchestrator) cancelled(r *run) bool {
	if r.ctx.Err() == nil {
		return false
	}
	o.logger.Warn("run %s: shutdown requested during %s", r.id, r.state)
	o.enter(r, StateInterrupted)
	return true
}

// execute walks the state machine. Structured errors are returned, not converted.
func (o *Orchestrator) execute(r *run) (Result, error) {
	if o.cancelled(r) {
		return interrupted(), nil
	}

	// RECON
	o.enter(r, StateRecon)
	recon, scanErr := o.scanner.Scan(r.ctx, r.target)
	if o.cancelled(r) {
		return interrupted(), nil
	}
	if scanErr != nil && recon.Status == "" {
		recon.Status = ReconStatusError
	}
	for _, obs := range o.opts.Observers {
		obs.ReconCompleted(r.ctx, r.id, r.target, recon.Status, recon.Raw, recon.Parsed)
	}
	if scanErr != nil || !recon.Usable() {
		o.enter(r, StateFailure)
		details := map[string]any{"recon_status": recon.Status}
		if scanErr != nil {
			details["error"] = scanErr.Error()
		}
		return newResult(StatusFailure, ReasonReconFailed, details), nil
	}

	// PLANNING
	o.enter(r, StatePlanning)
	outcome, planErr := o.planner.Strategy(r.ctx, recon.AdvisorView())
	if o.cancelled(r) {
		return interrupted(), nil
	}
	if planErr != nil {
		o.logger.Error("run %s: advisor failed: %v", r.id, planErr)
		o.enter(r, StateFailure)
		return newResult(StatusFailure, ReasonNoPlan, map[string]any{
			"error":  planErr.Error(),
			"reason": failure.ReasonOf(planErr).String(),
		}), nil
	}

	if review, ok := outcome.ManualReview(); ok {
		o.enter(r, StateManualReview)
		return newResult(StatusPartial, ReasonManualReview, map[string]any{"rationale": review.Rationale}), nil
	}
	p, ok := outcome.Plan()
	if !ok {
		o.enter(r, StateFailure)
		return newResult(StatusFailure, ReasonNoPlan, nil), nil
	}
	for _, obs := range o.opts.Observers {
		obs.PlanReady(r.ctx, r.id, p.Map())
	}

	if o.opts.DryRun {
		o.logger.Info("run %s: dry run, not dispatching %s", r.id, p.Module)
		return newResult(StatusPartial, ReasonDryRun, map[string]any{"plan": p.Map()}), nil
	}

	if res, stop := o.confirm(r, p); stop {
		return res, nil
	}
	if o.cancelled(r) {
		return interrupted(), nil
	}

	// DISPATCH
	o.enter(r, StateDispatch)
	baseline, err := o.backend.Sessions(r.ctx)
	if o.cancelled(r) {
		return interrupted(), nil
	}
	if err != nil {
		return Result{}, failure.Wrap(failure.ReasonRPCSync, "failed to read session registry before dispatch", err)
	}
	console, err := o.backend.Execute(r.ctx, p, r.target)
	if o.cancelled(r) {
		return interrupted(), nil
	}
	if err != nil {
		return Result{}, failure.Wrap(failure.ReasonIncompatible, "dispatch failed", err).
			WithDetail("plan", p.Map())
	}
	o.logger.Info("run %s: dispatched %s, %d sessions in baseline", r.id, p.Module, len(baseline))

	return o.poll(r, baseline, console)
}

// confirm applies the operator gate. stop is true when the run ends here.
func (o *Orchestrator) confirm(r *run, p plan.Plan) (Result, bool) {
	if o.opts.Confirm == nil {
		if p.ManualReview {
			o.enter(r, StateManualReview)
			rationale := "plan requires manual approval"
			if p.Rationale != "" {
				rationale = p.Rationale
			}
			return newResult(StatusPartial, ReasonManualReview, map[string]any{
				"rationale": rationale,
				"plan":      p.Map(),
			}), true
		}
		return Result{}, false
	}

	approved, err := o.opts.Confirm(r.ctx, p)
	if o.cancelled(r) {
		return interrupted(), true
	}
	if err != nil || !approved {
		details := map[string]any{"plan": p.Map()}
		if err != nil {
			details["error"] = err.Error()
		}
		o.logger.Warn("run %s: operator declined %s", r.id, p.Module)
		return newResult(StatusPartial, ReasonOperatorDeclined, details), true
	}
	return Result{}, false
}

// poll watches the session registry until a new session appears, the console shows
// the terminal marker, the deadline passes or ctx is cancelled. New sessions are
// always diffed against baseline.
func (o *Orchestrator) poll(r *run, baseline map[string]Session, console Console) (Result, error) {
	o.enter(r, StatePolling)

	deadline := time.NewTimer(o.opts.Deadline)
	defer deadline.Stop()
	ticker := time.NewTicker(o.opts.Tick)
	defer ticker.Stop()

	var log string
	for tick := 1; ; tick++ {
		if o.cancelled(r) {
			return interrupted(), nil
		}
		for _, obs := range o.opts.Observers {
			obs.PollTick(r.ctx, r.id, tick)
		}

		current, err := o.backend.Sessions(r.ctx)
		if o.cancelled(r) {
			return interrupted(), nil
		}
		if err != nil {
			return Result{}, failure.Wrap(failure.ReasonRPCSync, "failed to read session registry while polling", err).
				WithDetail("tick", tick)
		}
		logx.Debug(r.ctx, "poll", "tick %d: %d sessions (baseline %d)", tick, len(current), len(baseline))

		if id, session, found := firstNewSession(baseline, current); found {
			return o.sessionOpened(r, id, session), nil
		}

		if console != nil {
			if res, done := o.checkConsole(r, console, &log); done {
				return res, nil
			}
		}

		select {
		case <-r.ctx.Done():
			o.enter(r, StateInterrupted)
			return interrupted(), nil
		case <-deadline.C:
			o.enter(r, StateTimeout)
			o.logger.Warn("run %s: no session after %v", r.id, o.opts.Deadline)
			return newResult(StatusFailure, ReasonTimeoutNoSession, nil), nil
		case <-ticker.C:
		}
	}
}

func (o *Orchestrator) sessionOpened(r *run, id string, session Session) Result {
	o.enter(r, StateSuccess)
	sessionType := session.Type()
	o.logger.Info("run %s: session %s opened (type %q)", r.id, id, sessionType)

	if sessionType != SessionTypeShell {
		return newResult(StatusSuccess, ReasonSessionOpened, map[string]any{
			"session_id": id,
			"type":       sessionType,
		})
	}

	if err := o.backend.Upgrade(r.ctx, id, r.lhost); err != nil {
		// The session did open; a failed upgrade does not demote the run.
		o.logger.Warn("run %s: upgrade of session %s failed: %v", r.id, id, err)
		return newResult(StatusSuccess, ReasonSessionUpgradeFailed, map[string]any{
			"session_id":    id,
			"type":          sessionType,
			"upgrade_error": err.Error(),
		})
	}
	return newResult(StatusSuccess, ReasonSessionUpgraded, map[string]any{
		"session_id": id,
		"type":       SessionTypeUpgradedShell,
	})
}

// checkConsole reads new console output into log, which keeps only the last
// maxLogBytes. The marker is matched across read boundaries. Read errors are ignored.
func (o *Orchestrator) checkConsole(r *run, console Console, log *string) (Result, bool) {
	data, err := console.Read(r.ctx)
	if err != nil {
		o.logger.Debug("run %s: console read failed: %v", r.id, err)
		return Result{}, false
	}
	if data == "" {
		return Result{}, false
	}
	marker := o.opts.TerminalMarker
	found := strings.Contains(tail(*log, len(marker)-1)+data, marker)
	*log = tail(*log+data, maxLogBytes)
	if !found {
		return Result{}, false
	}
	text := *log

	o.enter(r, StateFailure)
	classification := failure.ReasonUndefined
	if o.classifier != nil {
		classification = o.classifier.Classify(text)
	}
	o.logger.Error("run %s: exploit failed: %s", r.id, classification)
	return newResult(StatusFailure, ReasonExploitFailed, map[string]any{
		"classification": classification.String(),
		"log":            text,
	}), true
}

// firstNewSession returns a session present in current but not in baseline. When
// several appeared, the lowest identifier wins: numeric identifiers compare as
// numbers, others lexically, numbers first.
func firstNewSession(baseline, current map[string]Session) (string, Session, bool) {
	var fresh []string
	for id := range current {
		if _, seen := baseline[id]; !seen {
			fresh = append(fresh, id)
		}
	}
	if len(fresh) == 0 {
		return "", nil, false
	}
	sort.Slice(fresh, func(i, j int) bool { return lessID(fresh[i], fresh[j]) })
	return fresh[0], current[fresh[0]], true
}

// tail returns at most the last n bytes of s, starting on a rune boundary.
func tail(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	i := len(s) - n
	for i < len(s) && !utf8.RuneStart(s[i]) {
		i++
	}
	return s[i:]
}

func lessID(a, b string) bool {
	na, errA := strconv.ParseInt(a, 10, 64)
	nb, errB := strconv.ParseInt(b, 10, 64)
	switch {
	case errA == nil && errB == nil:
		return na < nb
	case errA == nil:
		return true
	case errB == nil:
		return false
	default:
		return a < b
	}
}
