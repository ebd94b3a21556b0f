package main

import (
	"fmt"
	"io"
	"maps"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"spectra/pkg/exec"
	"spectra/pkg/logx"
	"spectra/pkg/metrics"
	"spectra/pkg/persistence"
	"spectra/pkg/recon"
)

func newScanCmd() *cobra.Command {
	var (
		out string
		all bool
	)
	cmd := &cobra.Command{
		Use:   "scan <target>",
		Short: "Run nmap against a target and print the parsed result",
		Long: `Run the service scan (or, with --all, the service, web and port scans in
parallel) and print the parsed JSON. Nothing is dispatched.

Examples:
  spectra scan 10.0.0.9
  spectra scan --all --out scan.json 10.0.0.9`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setupProject()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			db, ops, err := openHistory(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			scanner := recon.NewScanner(cfg.Scan, exec.NewLocalExec())
			scans := map[string]*recon.Result{}
			var result any
			if all {
				summary := scanner.ScanAll(ctx, args[0])
				scans = summary.Scans
				result = summary
			} else {
				r := scanner.ScanServices(ctx, args[0])
				scans[recon.ScanServices] = r
				result = r
			}

			failed := false
			for kind, r := range scans {
				failed = failed || !r.Usable()
				archiveScan(ops, args[0], kind, r)
			}

			if out != "" {
				if err := recon.SaveScan(result, out); err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Saved scan to %s\n", out)
			} else if err := printJSON(cmd.OutOrStdout(), result); err != nil {
				return err
			}

			if ctx.Err() != nil {
				return &exitError{code: exitInterrupted}
			}
			if failed {
				return &exitError{code: exitFailure, err: fmt.Errorf("scan of %s failed", args[0])}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "Write JSON to this file instead of stdout")
	cmd.Flags().BoolVar(&all, "all", false, "Run service, web and port scans")
	return cmd
}

// archiveScan stores a standalone scan; failures are logged, not fatal.
func archiveScan(ops *persistence.DatabaseOperations, target, kind string, r *recon.Result) {
	scan := &persistence.Scan{Target: target, Kind: kind, Status: string(r.Status), Raw: r.Raw}
	if r.Parsed != nil {
		scan.Parsed = r.Parsed
	}
	if _, err := ops.SaveScan(scan); err != nil {
		logx.NewLogger("spectra").Warn("failed to archive %s scan: %v", kind, err)
	}
}

func newHistoryCmd() *cobra.Command {
	var (
		limit int
		runID string
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent runs",
		Long: `List recent runs from the history database, newest first. With --run, print
one run in full along with its archived scans.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := setupProject()
			if err != nil {
				return err
			}
			db, ops, err := openHistory(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			if runID != "" {
				return showRun(cmd.OutOrStdout(), ops, runID)
			}
			runs, err := ops.ListRuns(limit)
			if err != nil {
				return err
			}
			return writeRunTable(cmd.OutOrStdout(), runs)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", persistence.DefaultHistoryLimit, "Number of runs to show")
	cmd.Flags().StringVar(&runID, "run", "", "Show one run in detail")
	return cmd
}

func showRun(w io.Writer, ops *persistence.DatabaseOperations, runID string) error {
	run, err := ops.GetRun(runID)
	if err != nil {
		return err
	}
	scans, err := ops.ListScans(runID)
	if err != nil {
		return err
	}
	return printJSON(w, map[string]any{"run": run, "scans": scans})
}

func writeRunTable(w io.Writer, runs []*persistence.Run) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTARTED\tTARGET\tSTATUS\tREASON\tDURATION")
	for _, r := range runs {
		started := r.StartedAt.Local().Format(time.DateTime)
		reason := r.Reason
		if reason == "" {
			reason = "-"
		}
		mode := ""
		if r.DryRun {
			mode = " (dry run)"
		}
		duration := "-"
		if r.Finished() {
			duration = r.Duration.Round(time.Millisecond).String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s%s\t%s\t%s\n",
			r.ID, started, r.Target, r.Status, mode, reason, duration)
	}
	return tw.Flush()
}

func newStatsCmd() *cobra.Command {
	var (
		promURL string
		window  string
	)
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize run outcomes from Prometheus",
		Long: `Query a Prometheus server that scrapes spectra's exported metrics and print
run counts by status and reason, plus advisor token usage, over a window.

Example:
  spectra stats --prometheus http://localhost:9090 --window 7d`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			qs, err := metrics.NewQueryService(promURL)
			if err != nil {
				return err
			}
			stats, err := qs.GetRunStats(cmd.Context(), window)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Runs in last %s: %d\n", window, stats.Total)
			tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
			for _, status := range slices.Sorted(maps.Keys(stats.ByStatus)) {
				fmt.Fprintf(tw, "  status %s\t%d\n", status, stats.ByStatus[status])
			}
			for _, reason := range stats.Reasons() {
				fmt.Fprintf(tw, "  reason %s\t%d\n", reason, stats.ByReason[reason])
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(w, "Advisor tokens: %d prompt, %d completion\n", stats.PromptTokens, stats.CompletionTokens)
			return nil
		},
	}
	cmd.Flags().StringVar(&promURL, "prometheus", "http://localhost:9090", "Prometheus server URL")
	cmd.Flags().StringVar(&window, "window", "24h", "PromQL range window")
	return cmd
}
