package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"subservient/internal/config"
	"subservient/internal/escalation"
	"subservient/internal/library"
	"subservient/internal/pipeline"
	"subservient/internal/preflight"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var noReview bool
	var force bool

	cmd := &cobra.Command{
		Use:   "run [video...]",
		Short: "Search, download and synchronize subtitles, then review what is left",
		Long: "Resolve every wanted language of every video under the library roots " +
			"(or only the given videos). When pairs end up in the manual review queue " +
			"and stdin is a terminal, an interactive review follows. Raising the search " +
			"limit during review restarts the run.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithReview(cmd, ctx, args, noReview, force)
		},
	}
	cmd.Flags().BoolVar(&noReview, "no-review", false, "Do not enter the review prompt after the run")
	cmd.Flags().BoolVar(&force, "force", false, "Prompt for review even when stdin is not a terminal")
	return cmd
}

func newAcquireCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "acquire [video...]",
		Short: "Search and download one batch per pending pair without synchronizing",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := runOnce(cmd, ctx, escalation.ModeAcquire, args)
			return err
		},
	}
}

func newSyncCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "sync [video...]",
		Short: "Synchronize downloaded candidates without searching",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := runOnce(cmd, ctx, escalation.ModeSync, args)
			return err
		},
	}
}

func runWithReview(cmd *cobra.Command, ctx *commandContext, args []string, noReview, force bool) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	if err := checkReady(cfg); err != nil {
		return err
	}
	signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	lock, err := pipeline.AcquireLock(cfg.LockPath())
	if err != nil {
		return err
	}
	defer lock.Release()

	out := cmd.OutOrStdout()
	for {
		runner, err := ctx.newRunner(cmd, escalation.ModeFull)
		if err != nil {
			return err
		}
		summary, err := executeRun(signalCtx, runner, cfg.Library.SeriesMode, args)
		printSummary(out, summary)
		if err != nil {
			return err
		}
		if noReview {
			return nil
		}
		entries, err := runner.Queue().List()
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			return nil
		}
		if !force && !isTerminal(cmd.InOrStdin()) {
			fmt.Fprintf(out, "%d pair(s) await manual review; run `subservient review` from a terminal\n", len(entries))
			return nil
		}
		restart, err := reviewQueue(signalCtx, cmd, runner, ctx.logger, cfg.Acquisition.MaxSearchResults)
		if err != nil {
			return err
		}
		if !restart {
			return nil
		}
		fmt.Fprintf(out, "Search limit raised to %d; restarting\n", cfg.Acquisition.MaxSearchResults)
	}
}

func runOnce(cmd *cobra.Command, ctx *commandContext, mode escalation.Mode, args []string) (pipeline.Summary, error) {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return pipeline.Summary{}, err
	}
	if err := checkReady(cfg); err != nil {
		return pipeline.Summary{}, err
	}
	signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	lock, err := pipeline.AcquireLock(cfg.LockPath())
	if err != nil {
		return pipeline.Summary{}, err
	}
	defer lock.Release()

	runner, err := ctx.newRunner(cmd, mode)
	if err != nil {
		return pipeline.Summary{}, err
	}
	summary, err := executeRun(signalCtx, runner, cfg.Library.SeriesMode, args)
	printSummary(cmd.OutOrStdout(), summary)
	return summary, err
}

func executeRun(ctx context.Context, runner *pipeline.Runner, seriesMode bool, args []string) (pipeline.Summary, error) {
	videos, err := targetVideos(ctx, runner, seriesMode, args)
	if err != nil {
		return pipeline.Summary{}, err
	}
	return runner.Run(ctx, videos)
}

// checkReady refuses to start when a directory or a required binary is
// unusable, before any ledger file is touched.
func checkReady(cfg *config.Config) error {
	if failed, ok := preflight.FirstFailure(preflight.RunAll(cfg)); ok {
		return fmt.Errorf("preflight %s failed: %s (run `subservient doctor` for the full report)", failed.Name, failed.Detail)
	}
	return nil
}

// targetVideos returns the videos named on the command line, or the whole
// library when none are.
func targetVideos(ctx context.Context, runner *pipeline.Runner, seriesMode bool, args []string) ([]library.Video, error) {
	if len(args) > 0 {
		return library.FromPaths(args, seriesMode, nil)
	}
	return runner.Discover(ctx)
}

func printSummary(w io.Writer, s pipeline.Summary) {
	if s.RunID == "" {
		return
	}
	rows := [][]string{
		{"Videos", strconv.Itoa(s.Videos)},
		{"Pairs", strconv.Itoa(s.Pairs)},
		{"Already resolved", strconv.Itoa(s.AlreadyResolved)},
		{"Resolved", strconv.Itoa(s.Resolved)},
		{"  with offset", strconv.Itoa(s.SoftAccepted)},
		{"Queued for review", strconv.Itoa(s.Queued)},
		{"Pending", strconv.Itoa(s.Pending)},
		{"Deferred", strconv.Itoa(s.Deferred)},
		{"No audio", strconv.Itoa(s.NoAudio)},
		{"Skipped", strconv.Itoa(s.Skipped)},
		{"Downloaded", strconv.Itoa(s.Downloaded)},
		{"Tested", strconv.Itoa(s.Tested)},
		{"Rejected (drift)", strconv.Itoa(s.Rejected)},
		{"Tool failures", strconv.Itoa(s.ToolFailed)},
		{"Errors", strconv.Itoa(len(s.Errors))},
	}
	fmt.Fprintln(w, renderTable([]string{"Run " + s.RunID, "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
	for _, e := range s.Errors {
		fmt.Fprintf(w, "error: %v\n", e)
	}
}
