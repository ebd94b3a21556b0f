// Package logx provides component loggers with a level threshold and
// domain-filtered debug output correlated by run ID.
package logx

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Level is a log severity.
type Level string

// Levels, lowest first.
const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

//nolint:gochecknoglobals // fixed lookup table
var levelRank = map[Level]int{LevelDebug: 0, LevelInfo: 1, LevelWarn: 2, LevelError: 3}

// LookupLevel maps a CLI/config string to a Level and reports whether it was known.
func LookupLevel(s string) (Level, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug, true
	case "INFO":
		return LevelInfo, true
	case "WARN", "WARNING":
		return LevelWarn, true
	case "ERROR":
		return LevelError, true
	default:
		return LevelInfo, false
	}
}

// ParseLevel is LookupLevel with unknown values mapped to INFO.
func ParseLevel(s string) Level {
	l, _ := LookupLevel(s)
	return l
}

type runIDKey struct{}

// WithRunID tags ctx so Debug lines carry the run ID instead of "system".
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

// RunID returns the run ID carried by ctx, if any.
func RunID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}

// settings is the process-wide logging state.
type settings struct {
	out     io.Writer
	domains map[string]bool // nil means every domain
	min     Level
	debug   bool
	mu      sync.RWMutex
}

//nolint:gochecknoglobals // process-wide logging configuration
var global = &settings{out: os.Stderr, min: LevelInfo}

func init() { //nolint:gochecknoinits // env configuration must apply before the first log line
	if v := os.Getenv("DEBUG"); v == "1" || strings.EqualFold(v, "true") {
		EnableDebug(splitDomains(os.Getenv("DEBUG_DOMAINS"))...)
	}
}

func splitDomains(s string) []string {
	var out []string
	for _, d := range strings.Split(s, ",") {
		if d = strings.TrimSpace(d); d != "" {
			out = append(out, d)
		}
	}
	return out
}

// SetOutput replaces the log sink. nil restores stderr.
func SetOutput(w io.Writer) {
	if w == nil {
		w = os.Stderr
	}
	global.mu.Lock()
	global.out = w
	global.mu.Unlock()
}

// SetLevel sets the threshold for Info/Warn/Error. DEBUG also turns on debug
// output for every domain.
func SetLevel(level Level) {
	global.mu.Lock()
	global.min = level
	global.mu.Unlock()
	if level == LevelDebug {
		EnableDebug()
	}
}

// EnableDebug turns debug output on, limited to domains when any are given.
func EnableDebug(domains ...string) {
	global.mu.Lock()
	defer global.mu.Unlock()
	global.debug = true
	global.domains = nil
	if len(domains) > 0 {
		global.domains = make(map[string]bool, len(domains))
		for _, d := range domains {
			global.domains[d] = true
		}
	}
}

// DisableDebug turns debug output off.
func DisableDebug() {
	global.mu.Lock()
	defer global.mu.Unlock()
	global.debug = false
	global.domains = nil
}

func debugOn(domain string) bool {
	global.mu.RLock()
	defer global.mu.RUnlock()
	if !global.debug {
		return false
	}
	return global.domains == nil || domain == "" || global.domains[domain]
}

func write(component string, level Level, msg string) {
	global.mu.RLock()
	defer global.mu.RUnlock()
	if level != LevelDebug && levelRank[level] < levelRank[global.min] {
		return
	}
	ts := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
	fmt.Fprintf(global.out, "[%s] [%s] %s: %s\n", ts, component, level, msg)
}

// Logger writes lines tagged with a component name.
type Logger struct {
	component string
}

// NewLogger returns a logger for component.
func NewLogger(component string) *Logger {
	return &Logger{component: component}
}

// Debug logs when debug output is on for any domain.
func (l *Logger) Debug(format string, args ...any) {
	if debugOn("") {
		write(l.component, LevelDebug, fmt.Sprintf(format, args...))
	}
}

func (l *Logger) Info(format string, args ...any) {
	write(l.component, LevelInfo, fmt.Sprintf(format, args...))
}

func (l *Logger) Warn(format string, args ...any) {
	write(l.component, LevelWarn, fmt.Sprintf(format, args...))
}

func (l *Logger) Error(format string, args ...any) {
	write(l.component, LevelError, fmt.Sprintf(format, args...))
}

// Debug logs for one domain, tagged with the run ID from ctx.
//
//	DEBUG=1                            every domain
//	DEBUG=1 DEBUG_DOMAINS=poll         only poll
//	DEBUG=1 DEBUG_DOMAINS=plan,advisor two domains
func Debug(ctx context.Context, domain, format string, args ...any) {
	if !debugOn(domain) {
		return
	}
	component := RunID(ctx)
	if component == "" {
		component = "system"
	}
	write(component, LevelDebug, "["+domain+"] "+fmt.Sprintf(format, args...))
}
