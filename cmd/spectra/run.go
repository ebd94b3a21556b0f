package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"spectra/pkg/advisor"
	"spectra/pkg/agent"
	llmmetrics "spectra/pkg/agent/middleware/metrics"
	"spectra/pkg/config"
	"spectra/pkg/exec"
	"spectra/pkg/logx"
	"spectra/pkg/metrics"
	"spectra/pkg/msf"
	"spectra/pkg/orchestrator"
	"spectra/pkg/persistence"
	"spectra/pkg/plan"
	"spectra/pkg/recon"
)

// closeTimeout bounds backend cleanup after a run.
const closeTimeout = 10 * time.Second

type runFlags struct {
	msfPassword string
	dryRun      bool
	yes         bool
}

func newRunCmd() *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run <target> <lhost>",
		Short: "Scan, plan and dispatch against a target",
		Long: `Run the full pipeline against <target>: nmap service scan, advisor plan,
operator confirmation, Metasploit dispatch and session polling. <lhost> is the
callback address payloads and shell upgrades connect back to.

Exit status: 0 session opened, 1 failure, 2 partial (manual review, dry run,
declined), 3 RPC daemon unreachable, 130 interrupted.

Examples:
  spectra run 10.0.0.9 10.0.0.5
  spectra run --dry-run 10.0.0.9 10.0.0.5
  MSF_PASSWORD=secret spectra run --yes 10.0.0.9 10.0.0.5`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd, args[0], args[1], f)
		},
	}
	cmd.Flags().StringVar(&f.msfPassword, "msf-password", "", "msfrpcd password (default: $MSF_PASSWORD or prompt)")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "Stop after planning; never touch the RPC daemon")
	cmd.Flags().BoolVarP(&f.yes, "yes", "y", false, "Dispatch without asking for confirmation")
	return cmd
}

func runPipeline(cmd *cobra.Command, target, lhost string, f runFlags) error {
	cfg, err := setupProject()
	if err != nil {
		return err
	}
	logger := logx.NewLogger("spectra")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	runRecorder := metrics.NewRunRecorder(reg)

	db, ops, err := openHistory(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	planner, err := newAdvisor(cfg, llmmetrics.NewPrometheusRecorder(reg))
	if err != nil {
		return err
	}

	scanner := recon.NewScanner(cfg.Scan, exec.NewLocalExec())

	var backend *msf.Backend
	if !f.dryRun {
		password, err := msfPassword(f.msfPassword)
		if err != nil {
			return &exitError{code: exitBackendDown, err: fmt.Errorf("no msfrpcd password: %w", err)}
		}
		backend = msf.NewBackend(msf.NewClient(cfg.MSF, password), lhost, cfg.MSF.UpgradePort)
		v, err := backend.Connect(ctx)
		if err != nil {
			return &exitError{code: exitBackendDown, err: fmt.Errorf("cannot reach msfrpcd at %s: %w", msf.Endpoint(cfg.MSF), err)}
		}
		logger.Info("connected to Metasploit %s", v)
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
			defer cancel()
			if err := backend.Close(closeCtx); err != nil {
				logger.Warn("backend cleanup: %v", err)
			}
		}()
	}

	opts := orchestrator.Options{
		Observers: []orchestrator.Observer{persistence.NewHistoryRecorder(ops), runRecorder},
		Deadline:  cfg.Poll.Deadline.D(),
		Tick:      cfg.Poll.Tick.D(),
		DryRun:    f.dryRun,
	}
	if !f.yes {
		opts.Confirm = terminalConfirm(os.Stdin, cmd.ErrOrStderr())
	}

	var be orchestrator.Backend
	if backend != nil {
		be = backend
	}
	result := orchestrator.New(scanner, planner, be, msf.Classifier{}, opts).Run(ctx, target, lhost)

	if err := printJSON(cmd.OutOrStdout(), result.Map()); err != nil {
		logger.Error("failed to print result: %v", err)
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Textfile != "" {
		path, err := config.ResolvePath(cfg.Metrics.Textfile)
		if err == nil {
			err = metrics.WriteTextfile(reg, path)
		}
		if err != nil {
			logger.Warn("metrics textfile export failed: %v", err)
		}
	}

	if code := resultExitCode(result); code != exitOK {
		return &exitError{code: code}
	}
	return nil
}

// newAdvisor builds the advisor on the configured provider's middleware chain.
func newAdvisor(cfg config.Config, recorder llmmetrics.Recorder) (*advisor.Advisor, error) {
	client, err := agent.NewLLMClientFactory(cfg.Advisor, recorder).CreateClient()
	if err != nil {
		return nil, fmt.Errorf("failed to create advisor client: %w", err)
	}
	return advisor.New(
		advisor.NewClient(client, cfg.Advisor.MaxTokens, cfg.Advisor.Temperature),
		advisor.Options{
			RequireManualApproval: cfg.Advisor.RequireManualApproval,
			MaxReconTokens:        cfg.Advisor.MaxReconTokens,
		},
	), nil
}

// terminalConfirm shows the plan and asks before dispatch.
func terminalConfirm(in io.Reader, out io.Writer) orchestrator.ConfirmFunc {
	return func(ctx context.Context, p plan.Plan) (bool, error) {
		fmt.Fprintln(out, "Proposed plan:")
		if err := printJSON(out, p.Map()); err != nil {
			return false, err
		}
		if p.ManualReview {
			fmt.Fprintln(out, "This plan is flagged for manual review.")
		}
		return askYesNo(ctx, in, out, "Dispatch this plan?")
	}
}

// resultExitCode maps a run result to the process exit status.
func resultExitCode(r orchestrator.Result) int {
	switch r.Status {
	case orchestrator.StatusSuccess:
		return exitOK
	case orchestrator.StatusPartial:
		return exitPartial
	case orchestrator.StatusInterrupted:
		return exitInterrupted
	default:
		return exitFailure
	}
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
