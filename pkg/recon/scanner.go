// Package recon drives nmap and turns its XML output into structured reports.
package recon

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"spectra/pkg/config"
	"spectra/pkg/exec"
	"spectra/pkg/logx"
)

// Status classifies a scan result.
type Status string

// Scan statuses. nmap exits non-zero for benign cases such as no hosts up, so a
// non-zero exit is a warning rather than an error.
const (
	StatusOK      Status = "ok"
	StatusWarning Status = "warning"
	StatusError   Status = "error"
)

// Error codes carried in Result.Error.
const (
	ErrNmapNotInstalled = "nmap_not_installed"
	ErrNmapFailed       = "nmap_failed"
)

// Scan names used by ScanAll.
const (
	ScanServices = "services"
	ScanWeb      = "web"
	ScanPorts    = "ports"
)

// DefaultPortRange is scanned by ScanAll's port scan.
const DefaultPortRange = "1-1024"

// Result is the outcome of one nmap invocation.
type Result struct {
	Parsed     *Report `json:"parsed,omitempty"`
	Status     Status  `json:"status"`
	Command    string  `json:"command,omitempty"`
	Raw        string  `json:"raw,omitempty"`
	Error      string  `json:"error,omitempty"`
	LastError  string  `json:"last_error,omitempty"`
	Elapsed    float64 `json:"elapsed,omitempty"`
	ReturnCode int     `json:"returncode"`
}

// Usable reports whether the result carries output worth handing on.
func (r *Result) Usable() bool {
	return r.Status != StatusError
}

// Summary aggregates the results of ScanAll.
type Summary struct {
	Scans     map[string]*Result `json:"scans"`
	Target    string             `json:"target"`
	Timestamp int64              `json:"timestamp"`
}

// Scanner runs nmap through an executor.
type Scanner struct {
	executor exec.Executor
	logger   *logx.Logger
	sleep    func(ctx context.Context, d time.Duration) error
	nmapPath string
	timeout  time.Duration
	attempts int
	parallel int
}

// NewScanner creates a scanner. The nmap binary comes from cfg.NmapPath or PATH;
// when neither resolves every scan reports nmap_not_installed.
func NewScanner(cfg config.ScanConfig, executor exec.Executor) *Scanner {
	logger := logx.NewLogger("scanner")

	nmapPath, err := exec.FindBinary(cfg.NmapPath, "nmap")
	if err != nil {
		logger.Warn("nmap not found in PATH; scanning will fail unless nmap is installed")
		nmapPath = ""
	}

	s := &Scanner{
		executor: executor,
		logger:   logger,
		sleep:    sleepContext,
		nmapPath: nmapPath,
		timeout:  cfg.Timeout.D(),
		attempts: max(1, cfg.Retries),
		parallel: max(1, cfg.Parallel),
	}
	if s.timeout <= 0 {
		s.timeout = config.DefaultScanTimeout
	}
	return s
}

// NmapPath returns the resolved nmap binary, empty when not installed.
func (s *Scanner) NmapPath() string {
	return s.nmapPath
}

// ScanServices runs service and version detection against open ports.
func (s *Scanner) ScanServices(ctx context.Context, target string) *Result {
	return s.scan(ctx, []string{"-sV", "-Pn", "--open", target})
}

// ScanWeb enumerates common web paths on ports 80 and 443.
func (s *Scanner) ScanWeb(ctx context.Context, target string) *Result {
	return s.scan(ctx, []string{"-p", "80,443", "--script", "http-enum", target})
}

// ScanPorts runs a TCP connect scan over ports, e.g. "22,80,443" or "1-65535".
func (s *Scanner) ScanPorts(ctx context.Context, target, ports string) *Result {
	if ports == "" {
		ports = DefaultPortRange
	}
	return s.scan(ctx, []string{"-p", ports, "-sT", "-Pn", target})
}

// ScanAll runs the service, web and port scans with at most the configured number
// in flight. Individual failures are captured per scan.
func (s *Scanner) ScanAll(ctx context.Context, target string) *Summary {
	scans := map[string]func(context.Context) *Result{
		ScanServices: func(ctx context.Context) *Result { return s.ScanServices(ctx, target) },
		ScanWeb:      func(ctx context.Context) *Result { return s.ScanWeb(ctx, target) },
		ScanPorts:    func(ctx context.Context) *Result { return s.ScanPorts(ctx, target, DefaultPortRange) },
	}

	var (
		mu      sync.Mutex
		results = make(map[string]*Result, len(scans))
	)

	var g errgroup.Group
	g.SetLimit(s.parallel)
	for name, fn := range scans {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("scan %s panicked: %v", name, r)
					mu.Lock()
					results[name] = &Result{Status: StatusError, Error: fmt.Sprint(r)}
					mu.Unlock()
				}
			}()
			res := fn(ctx)
			mu.Lock()
			results[name] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return &Summary{Target: target, Timestamp: time.Now().Unix(), Scans: results}
}

// scan runs nmap with args plus XML-to-stdout and parses usable output.
func (s *Scanner) scan(ctx context.Context, args []string) *Result {
	if s.nmapPath == "" {
		return &Result{Status: StatusError, Error: ErrNmapNotInstalled}
	}

	cmd := append([]string{s.nmapPath}, args...)
	cmd = append(cmd, "-oX", "-")
	command := strings.Join(cmd, " ")
	opts := &exec.Opts{Timeout: s.timeout}

	var lastErr error
	for attempt := 1; attempt <= s.attempts; attempt++ {
		s.logger.Debug("running nmap (attempt %d): %s", attempt, command)

		res, err := s.executor.Run(ctx, cmd, opts)
		if err == nil {
			result := &Result{
				Status:     StatusOK,
				Command:    command,
				Elapsed:    res.Duration.Seconds(),
				ReturnCode: res.ExitCode,
				Raw:        res.Stdout,
			}
			if !res.Succeeded() {
				result.Status = StatusWarning
			}
			if result.Raw == "" {
				result.Raw = res.Stderr
			}
			if result.Raw != "" {
				result.Parsed = ParseXML(result.Raw)
			}
			return result
		}

		lastErr = err
		s.logger.Warn("nmap failed (attempt %d/%d): %v", attempt, s.attempts, err)
		if ctx.Err() != nil {
			break
		}
		if attempt < s.attempts {
			if err := s.sleep(ctx, time.Duration(attempt)*time.Second); err != nil {
				lastErr = err
				break
			}
		}
	}

	return &Result{Status: StatusError, Error: ErrNmapFailed, Command: command, LastError: lastErr.Error()}
}

// SaveScan writes v as indented JSON to path.
func SaveScan(v any, path string) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode scan: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write scan to %s: %w", path, err)
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
