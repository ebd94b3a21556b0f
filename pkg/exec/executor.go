// Package exec runs external tools such as nmap as child processes.
package exec

import (
	"context"
	"errors"
	"time"
)

// ErrTimeout is returned when a command is killed because its timeout elapsed.
var ErrTimeout = errors.New("command timed out")

// Executor runs a command and reports its output and exit status.
type Executor interface {
	// Run executes cmd. A non-zero exit status is reported through Result.ExitCode,
	// not as an error; errors mean the command could not run to completion.
	Run(ctx context.Context, cmd []string, opts *Opts) (Result, error)

	// Name returns the executor name for logging.
	Name() string
}

// Opts contains options for command execution.
type Opts struct {
	// Env contains extra environment variables (KEY=VALUE format).
	Env []string

	// Timeout is the maximum duration for command execution. Zero means no limit.
	Timeout time.Duration

	// WorkDir is the working directory for the command.
	WorkDir string
}

// Result contains the result of command execution.
type Result struct {
	Stdout       string
	Stderr       string
	ExecutorUsed string
	Duration     time.Duration
	ExitCode     int
}

// Succeeded reports a zero exit status.
func (r Result) Succeeded() bool {
	return r.ExitCode == 0
}

// DefaultExecOpts returns default execution options.
func DefaultExecOpts() Opts {
	return Opts{Timeout: 5 * time.Minute}
}
