// Package main implements the spectra CLI: recon, advisor planning and Metasploit
// dispatch against a single authorized target.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"spectra/pkg/logx"
	"spectra/pkg/version"
)

// Process exit codes.
const (
	exitOK          = 0
	exitFailure     = 1
	exitPartial     = 2
	exitBackendDown = 3
	exitInterrupted = 130
)

// exitError carries a specific exit code out of a command.
type exitError struct {
	err  error
	code int
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

//nolint:gochecknoglobals // cobra flag targets
var (
	projectDir string
	logLevel   string
	tee        bool
)

func main() {
	root := newRootCmd()
	err := root.Execute()

	if closeErr := logx.CloseLogFile(); closeErr != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to close log file: %v\n", closeErr)
	}
	os.Exit(exitCode(err))
}

// exitCode maps a command error to the process exit status.
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", ee.err)
		}
		return ee.code
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	return exitFailure
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "spectra",
		Short: "Advisor-driven recon and exploitation runner",
		Long: `spectra scans a target with nmap, asks a language-model advisor for an
exploitation plan, and dispatches that plan through Metasploit's RPC daemon,
watching for a new session until a deadline.

Only run it against systems you are authorized to test.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetVersionTemplate(version.String() + "\n")

	root.PersistentFlags().StringVar(&projectDir, "projectdir", ".", "Project directory holding .spectra/")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (DEBUG, INFO, WARN, ERROR); overrides config")
	root.PersistentFlags().BoolVar(&tee, "tee", false, "Also write logs to stderr (default: file only)")

	root.AddCommand(newRunCmd(), newScanCmd(), newHistoryCmd(), newStatsCmd(), newSecretsCmd(), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}
