package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spectra/pkg/failure"
	"spectra/pkg/plan"
)

const proseWrappedPlan = `I think this works: {"module":"m","payload":"p","options":{},"vector":"system"} thanks`

type fakeScanner struct {
	recon Recon
	err   error
	hook  func()
}

func (f *fakeScanner) Scan(context.Context, string) (Recon, error) {
	if f.hook != nil {
		f.hook()
	}
	return f.recon, f.err
}

type textPlanner struct {
	validator *plan.Validator
	text      string
	err       error
	panicWith any
	seen      any
	onCall    func()
}

func newPlanner(text string) *textPlanner {
	return &textPlanner{text: text, validator: plan.NewValidator(plan.Options{})}
}

func (p *textPlanner) Strategy(ctx context.Context, recon any) (plan.Outcome, error) {
	p.seen = recon
	if p.onCall != nil {
		p.onCall()
	}
	if p.panicWith != nil {
		panic(p.panicWith)
	}
	if p.err != nil {
		return plan.Outcome{}, p.err
	}
	return p.validator.FromAdvisorText(ctx, p.text), nil
}

type fakeConsole struct {
	reads []string
	err   error
	calls int
}

func (c *fakeConsole) Read(context.Context) (string, error) {
	c.calls++
	if c.err != nil {
		return "", c.err
	}
	if len(c.reads) == 0 {
		return "", nil
	}
	next := c.reads[0]
	c.reads = c.reads[1:]
	return next, nil
}

// fakeBackend replays one snapshot per Sessions call; the last one repeats.
type fakeBackend struct {
	mu           sync.Mutex
	snapshots    []map[string]Session
	sessionErrAt int // 1-based call that fails; 0 never
	console      *fakeConsole
	executeErr   error
	upgradeErr   error
	onExecute    func()
	onSessions   func(call int) error
	sessionCalls int
	executed     []plan.Plan
	upgraded     []string
}

func (b *fakeBackend) Sessions(context.Context) (map[string]Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sessionCalls++
	if b.onSessions != nil {
		if err := b.onSessions(b.sessionCalls); err != nil {
			return nil, err
		}
	}
	if b.sessionErrAt == b.sessionCalls {
		return nil, errors.New("rpc: connection reset")
	}
	if len(b.snapshots) == 0 {
		return map[string]Session{}, nil
	}
	idx := min(b.sessionCalls-1, len(b.snapshots)-1)
	return b.snapshots[idx], nil
}

func (b *fakeBackend) Execute(_ context.Context, p plan.Plan, _ string) (Console, error) {
	b.executed = append(b.executed, p)
	if b.onExecute != nil {
		b.onExecute()
	}
	if b.executeErr != nil {
		return nil, b.executeErr
	}
	if b.console == nil {
		return &fakeConsole{}, nil
	}
	return b.console, nil
}

func (b *fakeBackend) Upgrade(_ context.Context, sessionID, _ string) error {
	b.upgraded = append(b.upgraded, sessionID)
	return b.upgradeErr
}

type event struct {
	kind   string
	status string
	reason string
}

type recordingObserver struct {
	mu     sync.Mutex
	events []event
	ticks  int
}

func (o *recordingObserver) add(e event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, e)
}

func (o *recordingObserver) RunStarted(context.Context, string, string, string, bool) {
	o.add(event{kind: "started"})
}

func (o *recordingObserver) ReconCompleted(_ context.Context, _, _, status, _ string, _ any) {
	o.add(event{kind: "recon", status: status})
}

func (o *recordingObserver) PlanReady(context.Context, string, map[string]any) {
	o.add(event{kind: "plan"})
}

func (o *recordingObserver) PollTick(context.Context, string, int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ticks++
}

func (o *recordingObserver) RunFinished(_ context.Context, _, status, reason string, _ map[string]any, _ time.Duration) {
	o.add(event{kind: "finished", status: status, reason: reason})
}

var okRecon = Recon{Status: "ok", Parsed: map[string]any{"hosts": []any{}}}

func fastOptions() Options {
	return Options{Deadline: 200 * time.Millisecond, Tick: 10 * time.Millisecond}
}

func newTestOrchestrator(backend Backend, planner Planner, opts Options) *Orchestrator {
	classifier := LogClassifierFunc(func(string) failure.Reason { return failure.ReasonPatched })
	return New(&fakeScanner{recon: okRecon}, planner, backend, classifier, opts)
}

func TestSessionOpened(t *testing.T) {
	backend := &fakeBackend{snapshots: []map[string]Session{
		{},
		{"1": {"type": "meterpreter"}},
	}}
	planner := newPlanner(proseWrappedPlan)
	o := newTestOrchestrator(backend, planner, fastOptions())

	res := o.Run(context.Background(), "10.0.0.5", "10.0.0.1")
	assert.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, ReasonSessionOpened, res.Reason)
	assert.Equal(t, map[string]any{"session_id": "1", "type": "meterpreter"}, res.Details)
	assert.NotEmpty(t, res.RunID)

	require.Len(t, backend.executed, 1)
	assert.Equal(t, "m", backend.executed[0].Module)
	assert.Equal(t, plan.VectorSystem, backend.executed[0].Vector)
	assert.False(t, backend.executed[0].ManualReview)
	assert.Empty(t, backend.upgraded)

	view, ok := planner.seen.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "ok", view["status"])
}

func TestManualReviewStopsRun(t *testing.T) {
	backend := &fakeBackend{}
	o := newTestOrchestrator(backend, newPlanner(`{"manual_review": true, "rationale": "unsafe target"}`), fastOptions())

	res := o.Run(context.Background(), "10.0.0.5", "10.0.0.1")
	assert.Equal(t, map[string]any{
		"status":  "partial",
		"reason":  "manual_review_required",
		"details": map[string]any{"rationale": "unsafe target"},
	}, res.Map())
	assert.Zero(t, backend.sessionCalls)
	assert.Empty(t, backend.executed)
}

func TestShellSessionUpgraded(t *testing.T) {
	backend := &fakeBackend{snapshots: []map[string]Session{
		{},
		{"s1": {"type": "shell"}},
	}}
	o := newTestOrchestrator(backend, newPlanner(proseWrappedPlan), fastOptions())

	res := o.Run(context.Background(), "10.0.0.5", "10.0.0.1")
	assert.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, ReasonSessionUpgraded, res.Reason)
	assert.Equal(t, map[string]any{"session_id": "s1", "type": "upgraded_shell"}, res.Details)
	assert.Equal(t, []string{"s1"}, backend.upgraded)
}

func TestShellUpgradeFailureIsStillSuccess(t *testing.T) {
	backend := &fakeBackend{
		snapshots:  []map[string]Session{{}, {"s1": {"type": "shell"}}},
		upgradeErr: errors.New("post module failed"),
	}
	o := newTestOrchestrator(backend, newPlanner(proseWrappedPlan), fastOptions())

	res := o.Run(context.Background(), "10.0.0.5", "10.0.0.1")
	assert.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, ReasonSessionUpgradeFailed, res.Reason)
	assert.Equal(t, "s1", res.Details["session_id"])
	assert.Equal(t, "post module failed", res.Details["upgrade_error"])
}

func TestTimeoutWithoutSession(t *testing.T) {
	backend := &fakeBackend{snapshots: []map[string]Session{{"7": {"type": "meterpreter"}}}}
	observer := &recordingObserver{}
	opts := Options{Deadline: 60 * time.Millisecond, Tick: 5 * time.Millisecond, Observers: []Observer{observer}}
	o := newTestOrchestrator(backend, newPlanner(proseWrappedPlan), opts)

	start := time.Now()
	res := o.Run(context.Background(), "10.0.0.5", "10.0.0.1")
	assert.Equal(t, StatusFailure, res.Status)
	assert.Equal(t, ReasonTimeoutNoSession, res.Reason)
	assert.Equal(t, map[string]any{}, res.Details)
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
	assert.Greater(t, observer.ticks, 1)
	// Pre-existing sessions never count as new.
	assert.Greater(t, backend.sessionCalls, 2)
}

func TestCancelAfterDispatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	console := &fakeConsole{}
	backend := &fakeBackend{console: console, onExecute: cancel}
	o := newTestOrchestrator(backend, newPlanner(proseWrappedPlan), fastOptions())

	res := o.Run(ctx, "10.0.0.5", "10.0.0.1")
	assert.Equal(t, Result{Status: StatusInterrupted, Reason: ReasonShutdownRequested, Details: map[string]any{}, RunID: res.RunID}, res)
	// Only the dispatch baseline was read.
	assert.Equal(t, 1, backend.sessionCalls)
	assert.Zero(t, console.calls)
	assert.Empty(t, backend.upgraded)
}

func TestCancelDuringRecon(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	planner := newPlanner(proseWrappedPlan)
	backend := &fakeBackend{}
	o := New(&fakeScanner{recon: okRecon, hook: cancel}, planner, backend, nil, fastOptions())

	res := o.Run(ctx, "10.0.0.5", "10.0.0.1")
	assert.Equal(t, StatusInterrupted, res.Status)
	assert.Equal(t, ReasonShutdownRequested, res.Reason)
	assert.Empty(t, res.Details)
	assert.Nil(t, planner.seen)
}

func TestCancelDuringPlanningIsInterrupted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	planner := newPlanner("")
	planner.onCall = cancel
	planner.err = failure.Wrap(failure.ReasonAdvisor, "advisor request failed", context.Canceled)
	backend := &fakeBackend{}

	o := newTestOrchestrator(backend, planner, fastOptions())
	res := o.Run(ctx, "10.0.0.5", "10.0.0.1")
	assert.Equal(t, StatusInterrupted, res.Status)
	assert.Equal(t, ReasonShutdownRequested, res.Reason)
	assert.Zero(t, backend.sessionCalls)
}

func TestCancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	planner := newPlanner(proseWrappedPlan)

	o := newTestOrchestrator(&fakeBackend{}, planner, fastOptions())
	res := o.Run(ctx, "10.0.0.5", "10.0.0.1")
	assert.Equal(t, StatusInterrupted, res.Status)
	assert.Nil(t, planner.seen)
}

func TestAdvisorFailureIsNoPlan(t *testing.T) {
	planner := newPlanner("")
	planner.err = failure.New(failure.ReasonAdvisor, "advisor exhausted")
	backend := &fakeBackend{}
	o := newTestOrchestrator(backend, planner, fastOptions())

	res := o.Run(context.Background(), "10.0.0.5", "10.0.0.1")
	assert.Equal(t, StatusFailure, res.Status)
	assert.Equal(t, ReasonNoPlan, res.Reason)
	assert.Equal(t, "ADVISOR_FAILURE", res.Details["reason"])
	assert.Zero(t, backend.sessionCalls)
}

func TestInvalidAdvisorTextIsManualReview(t *testing.T) {
	o := newTestOrchestrator(&fakeBackend{}, newPlanner(`{"module":"m","payload":"p","vector":"cloud"}`), fastOptions())

	res := o.Run(context.Background(), "10.0.0.5", "10.0.0.1")
	assert.Equal(t, StatusPartial, res.Status)
	assert.Equal(t, ReasonManualReview, res.Reason)
	assert.Contains(t, res.Details["rationale"], "cloud")
}

func TestReconFailure(t *testing.T) {
	planner := newPlanner(proseWrappedPlan)
	o := New(&fakeScanner{recon: Recon{Status: "error"}}, planner, &fakeBackend{}, nil, fastOptions())

	res := o.Run(context.Background(), "10.0.0.5", "10.0.0.1")
	assert.Equal(t, StatusFailure, res.Status)
	assert.Equal(t, ReasonReconFailed, res.Reason)
	assert.Nil(t, planner.seen)

	o = New(&fakeScanner{err: errors.New("nmap missing")}, planner, &fakeBackend{}, nil, fastOptions())
	res = o.Run(context.Background(), "10.0.0.5", "10.0.0.1")
	assert.Equal(t, ReasonReconFailed, res.Reason)
	assert.Equal(t, "nmap missing", res.Details["error"])
	assert.Equal(t, ReconStatusError, res.Details["recon_status"])
}

func TestWarningReconIsUsable(t *testing.T) {
	backend := &fakeBackend{snapshots: []map[string]Session{{}, {"2": {"type": "meterpreter"}}}}
	o := New(&fakeScanner{recon: Recon{Status: "warning", Raw: "Note: Host seems down"}}, newPlanner(proseWrappedPlan), backend, nil, fastOptions())

	res := o.Run(context.Background(), "10.0.0.5", "10.0.0.1")
	assert.Equal(t, StatusSuccess, res.Status)
}

func TestBaselineReadFailureIsRPCSync(t *testing.T) {
	backend := &fakeBackend{sessionErrAt: 1}
	o := newTestOrchestrator(backend, newPlanner(proseWrappedPlan), fastOptions())

	res := o.Run(context.Background(), "10.0.0.5", "10.0.0.1")
	assert.Equal(t, StatusFailure, res.Status)
	assert.Equal(t, "RPC_SYNC_ISSUE", res.Reason)
	assert.Contains(t, res.Details["cause"], "connection reset")
	assert.NotEmpty(t, res.Details["trace"])
	assert.Empty(t, backend.executed)
}

func TestPollReadFailureIsFatal(t *testing.T) {
	backend := &fakeBackend{sessionErrAt: 3}
	o := newTestOrchestrator(backend, newPlanner(proseWrappedPlan), fastOptions())

	res := o.Run(context.Background(), "10.0.0.5", "10.0.0.1")
	assert.Equal(t, "RPC_SYNC_ISSUE", res.Reason)
	assert.Equal(t, 2, res.Details["tick"])
	assert.Equal(t, 3, backend.sessionCalls)
}

func TestDispatchFailureCarriesPlan(t *testing.T) {
	backend := &fakeBackend{executeErr: errors.New("invalid payload for target arch")}
	o := newTestOrchestrator(backend, newPlanner(proseWrappedPlan), fastOptions())

	res := o.Run(context.Background(), "10.0.0.5", "10.0.0.1")
	assert.Equal(t, StatusFailure, res.Status)
	assert.Equal(t, "PAYLOAD_OR_ARCH_MISMATCH", res.Reason)
	assert.Equal(t, "invalid payload for target arch", res.Details["cause"])
	planDetails, ok := res.Details["plan"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "m", planDetails["module"])
}

func TestTerminalMarkerClassifiesFailure(t *testing.T) {
	console := &fakeConsole{reads: []string{"[*] Started reverse TCP handler\n", "[*] Exploit completed, but no session was created.\n"}}
	backend := &fakeBackend{console: console}
	o := newTestOrchestrator(backend, newPlanner(proseWrappedPlan), fastOptions())

	res := o.Run(context.Background(), "10.0.0.5", "10.0.0.1")
	assert.Equal(t, StatusFailure, res.Status)
	assert.Equal(t, ReasonExploitFailed, res.Reason)
	assert.Equal(t, "PATCHED_OR_NOT_VULNERABLE", res.Details["classification"])
	assert.Contains(t, res.Details["log"], "Started reverse TCP handler")
	assert.Contains(t, res.Details["log"], "Exploit completed")
}

func TestTerminalMarkerAfterLargeOutput(t *testing.T) {
	console := &fakeConsole{reads: []string{
		strings.Repeat("x", 70*1024),
		"[*] Exploit compl",
		"eted, but no session was created.\n",
	}}
	backend := &fakeBackend{console: console}
	o := newTestOrchestrator(backend, newPlanner(proseWrappedPlan), fastOptions())

	res := o.Run(context.Background(), "10.0.0.5", "10.0.0.1")
	assert.Equal(t, ReasonExploitFailed, res.Reason)
	log, ok := res.Details["log"].(string)
	require.True(t, ok)
	assert.LessOrEqual(t, len(log), maxLogBytes)
	assert.True(t, strings.HasSuffix(log, "no session was created.\n"))
}

func TestTail(t *testing.T) {
	assert.Equal(t, "", tail("abc", 0))
	assert.Equal(t, "abc", tail("abc", 5))
	assert.Equal(t, "bc", tail("abc", 2))
	assert.Equal(t, "", tail("é", 1))
}

func TestCancelDuringBackendCalls(t *testing.T) {
	t.Run("baseline", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		backend := &fakeBackend{onSessions: func(int) error {
			cancel()
			return ctx.Err()
		}}
		res := newTestOrchestrator(backend, newPlanner(proseWrappedPlan), fastOptions()).Run(ctx, "10.0.0.5", "10.0.0.1")
		assert.Equal(t, StatusInterrupted, res.Status)
		assert.Equal(t, ReasonShutdownRequested, res.Reason)
		assert.Empty(t, backend.executed)
	})

	t.Run("dispatch", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		backend := &fakeBackend{executeErr: context.Canceled, onExecute: cancel}
		res := newTestOrchestrator(backend, newPlanner(proseWrappedPlan), fastOptions()).Run(ctx, "10.0.0.5", "10.0.0.1")
		assert.Equal(t, StatusInterrupted, res.Status)
		assert.Equal(t, ReasonShutdownRequested, res.Reason)
	})

	t.Run("poll", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		backend := &fakeBackend{onSessions: func(call int) error {
			if call == 2 {
				cancel()
				return ctx.Err()
			}
			return nil
		}}
		res := newTestOrchestrator(backend, newPlanner(proseWrappedPlan), fastOptions()).Run(ctx, "10.0.0.5", "10.0.0.1")
		assert.Equal(t, StatusInterrupted, res.Status)
		assert.Equal(t, ReasonShutdownRequested, res.Reason)
	})
}

type panickingObserver struct{ recordingObserver }

func (*panickingObserver) RunFinished(context.Context, string, string, string, map[string]any, time.Duration) {
	panic("observer broke")
}

func TestPanickingObserverIsContained(t *testing.T) {
	backend := &fakeBackend{snapshots: []map[string]Session{{}, {"1": {"type": "meterpreter"}}}}
	after := &recordingObserver{}
	opts := fastOptions()
	opts.Observers = []Observer{&panickingObserver{}, after}
	o := newTestOrchestrator(backend, newPlanner(proseWrappedPlan), opts)

	var res Result
	require.NotPanics(t, func() { res = o.Run(context.Background(), "10.0.0.5", "10.0.0.1") })
	assert.Equal(t, StatusSuccess, res.Status)
	require.NotEmpty(t, after.events)
	assert.Equal(t, "finished", after.events[len(after.events)-1].kind)
}

func TestConsoleReadErrorsAreSwallowed(t *testing.T) {
	console := &fakeConsole{err: errors.New("console gone")}
	backend := &fakeBackend{console: console}
	o := newTestOrchestrator(backend, newPlanner(proseWrappedPlan), Options{Deadline: 40 * time.Millisecond, Tick: 5 * time.Millisecond})

	res := o.Run(context.Background(), "10.0.0.5", "10.0.0.1")
	assert.Equal(t, ReasonTimeoutNoSession, res.Reason)
	assert.Greater(t, console.calls, 1)
}

func TestPanicBecomesUndefined(t *testing.T) {
	planner := newPlanner("")
	planner.panicWith = "boom"
	observer := &recordingObserver{}
	opts := fastOptions()
	opts.Observers = []Observer{observer}
	o := newTestOrchestrator(&fakeBackend{}, planner, opts)

	var res Result
	require.NotPanics(t, func() { res = o.Run(context.Background(), "10.0.0.5", "10.0.0.1") })
	assert.Equal(t, StatusFailure, res.Status)
	assert.Equal(t, "UNDEFINED", res.Reason)
	assert.Contains(t, res.Details["message"], "boom")

	last := observer.events[len(observer.events)-1]
	assert.Equal(t, event{kind: "finished", status: "failure", reason: "UNDEFINED"}, last)
}

func TestDryRunStopsAfterPlanning(t *testing.T) {
	backend := &fakeBackend{}
	opts := fastOptions()
	opts.DryRun = true
	o := newTestOrchestrator(backend, newPlanner(proseWrappedPlan), opts)

	res := o.Run(context.Background(), "10.0.0.5", "10.0.0.1")
	assert.Equal(t, StatusPartial, res.Status)
	assert.Equal(t, ReasonDryRun, res.Reason)
	planDetails, ok := res.Details["plan"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "p", planDetails["payload"])
	assert.Zero(t, backend.sessionCalls)
}

func TestConfirmGate(t *testing.T) {
	t.Run("declined", func(t *testing.T) {
		backend := &fakeBackend{}
		opts := fastOptions()
		opts.Confirm = func(context.Context, plan.Plan) (bool, error) { return false, nil }
		o := newTestOrchestrator(backend, newPlanner(proseWrappedPlan), opts)

		res := o.Run(context.Background(), "10.0.0.5", "10.0.0.1")
		assert.Equal(t, StatusPartial, res.Status)
		assert.Equal(t, ReasonOperatorDeclined, res.Reason)
		assert.Empty(t, backend.executed)
	})

	t.Run("prompt error declines", func(t *testing.T) {
		opts := fastOptions()
		opts.Confirm = func(context.Context, plan.Plan) (bool, error) { return false, errors.New("EOF") }
		o := newTestOrchestrator(&fakeBackend{}, newPlanner(proseWrappedPlan), opts)

		res := o.Run(context.Background(), "10.0.0.5", "10.0.0.1")
		assert.Equal(t, ReasonOperatorDeclined, res.Reason)
		assert.Equal(t, "EOF", res.Details["error"])
	})

	t.Run("approved", func(t *testing.T) {
		backend := &fakeBackend{snapshots: []map[string]Session{{}, {"1": {"type": "meterpreter"}}}}
		var asked plan.Plan
		opts := fastOptions()
		opts.Confirm = func(_ context.Context, p plan.Plan) (bool, error) {
			asked = p
			return true, nil
		}
		o := newTestOrchestrator(backend, newPlanner(proseWrappedPlan), opts)

		res := o.Run(context.Background(), "10.0.0.5", "10.0.0.1")
		assert.Equal(t, StatusSuccess, res.Status)
		assert.Equal(t, "m", asked.Module)
	})
}

func TestRequiredApprovalWithoutConfirmStops(t *testing.T) {
	planner := newPlanner(proseWrappedPlan)
	planner.validator = plan.NewValidator(plan.Options{RequireManualApproval: true})
	backend := &fakeBackend{}
	o := newTestOrchestrator(backend, planner, fastOptions())

	res := o.Run(context.Background(), "10.0.0.5", "10.0.0.1")
	assert.Equal(t, StatusPartial, res.Status)
	assert.Equal(t, ReasonManualReview, res.Reason)
	assert.Empty(t, backend.executed)
}

func TestLowestNewSessionWins(t *testing.T) {
	backend := &fakeBackend{snapshots: []map[string]Session{
		{"1": {"type": "shell"}},
		{"1": {"type": "shell"}, "10": {"type": "meterpreter"}, "9": {"type": "meterpreter"}, "a": {"type": "shell"}},
	}}
	o := newTestOrchestrator(backend, newPlanner(proseWrappedPlan), fastOptions())

	res := o.Run(context.Background(), "10.0.0.5", "10.0.0.1")
	assert.Equal(t, ReasonSessionOpened, res.Reason)
	assert.Equal(t, "9", res.Details["session_id"])
	assert.Empty(t, backend.upgraded)
}

func TestLessID(t *testing.T) {
	assert.True(t, lessID("2", "10"))
	assert.True(t, lessID("10", "a"))
	assert.False(t, lessID("b", "3"))
	assert.True(t, lessID("a", "b"))
}

func TestObserverSequence(t *testing.T) {
	backend := &fakeBackend{snapshots: []map[string]Session{{}, {}, {"1": {"type": "meterpreter"}}}}
	observer := &recordingObserver{}
	opts := fastOptions()
	opts.Observers = []Observer{observer}
	o := newTestOrchestrator(backend, newPlanner(proseWrappedPlan), opts)

	res := o.Run(context.Background(), "10.0.0.5", "10.0.0.1")
	require.Equal(t, StatusSuccess, res.Status)

	kinds := make([]string, 0, len(observer.events))
	for _, e := range observer.events {
		kinds = append(kinds, e.kind)
	}
	assert.Equal(t, []string{"started", "recon", "plan", "finished"}, kinds)
	assert.Equal(t, 2, observer.ticks)
	assert.Equal(t, "ok", observer.events[1].status)
}
