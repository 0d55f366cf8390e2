package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"subservient/internal/config"
	"subservient/internal/escalation"
	"subservient/internal/pipeline"
	"subservient/internal/review"
	"subservient/internal/services"
)

func newReviewCommand(ctx *commandContext) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "review",
		Short: "Work through the manual review queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if !force && !isTerminal(cmd.InOrStdin()) {
				return errors.New("review needs an interactive terminal (use --force to read answers from stdin)")
			}
			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			lock, err := pipeline.AcquireLock(cfg.LockPath())
			if err != nil {
				return err
			}
			defer lock.Release()

			runner, err := ctx.newRunner(cmd, escalation.ModeFull)
			if err != nil {
				return err
			}
			restart, err := reviewQueue(signalCtx, cmd, runner, ctx.logger, cfg.Acquisition.MaxSearchResults)
			if err != nil {
				return err
			}
			if restart {
				fmt.Fprintf(cmd.OutOrStdout(), "Search limit raised to %d; run `subservient run` to apply it to every pending pair\n",
					cfg.Acquisition.MaxSearchResults)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Read answers from stdin even when it is not a terminal")
	cmd.AddCommand(newReviewListCommand(ctx))
	return cmd
}

func newReviewListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the manual review queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			entries, err := review.NewQueue(cfg.ReviewQueuePath()).List()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "Review queue is empty")
				return nil
			}
			rows := make([][]string, 0, len(entries))
			for i, e := range entries {
				rows = append(rows, []string{
					strconv.Itoa(i + 1),
					filepath.Base(e.Video),
					strings.ToUpper(e.Language),
					e.Query,
					string(e.Reason),
					strconv.Itoa(e.Attempts),
					e.QueuedAt.Local().Format("2006-01-02 15:04"),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"#", "Video", "Lang", "Query", "Reason", "Attempts", "Queued"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
			))
			return nil
		},
	}
}

func reviewQueue(ctx context.Context, cmd *cobra.Command, runner *pipeline.Runner, logger *slog.Logger, limit int) (bool, error) {
	session, err := review.NewSession(runner.Queue(), runner.ReviewEffects(), limit, logger)
	if err != nil {
		return false, err
	}
	return promptReview(ctx, session, cmd.InOrStdin(), cmd.OutOrStdout())
}

// promptReview is the text front end of a review session. It returns
// whether the operator raised the search limit.
func promptReview(ctx context.Context, session *review.Session, in io.Reader, out io.Writer) (bool, error) {
	machine := session.Machine()
	reader := bufio.NewReader(in)
	ask := func(prompt string) (string, error) {
		fmt.Fprint(out, prompt)
		line, err := reader.ReadString('\n')
		if err != nil && (!errors.Is(err, io.EOF) || line == "") {
			return "", err
		}
		return strings.TrimSpace(line), nil
	}

	for !machine.Done() {
		if err := ctx.Err(); err != nil {
			return machine.RestartRequested(), err
		}
		entry, _ := machine.Current()
		i, total := machine.Progress()
		options := machine.Options()

		fmt.Fprintf(out, "\n[%d/%d] %s [%s]\n", i, total, filepath.Base(entry.Video), strings.ToUpper(entry.Language))
		fmt.Fprintf(out, "  %s\n", filepath.Dir(entry.Video))
		fmt.Fprintf(out, "  query: %q  reason: %s  candidates tried: %d\n", entry.Query, describeReason(entry.Reason), entry.Attempts)
		for n, action := range options {
			fmt.Fprintf(out, "  %s) %s\n", optionKey(n, action), optionLabel(action, machine.Limit()))
		}

		answer, err := ask("> ")
		if err != nil {
			if errors.Is(err, io.EOF) {
				return machine.RestartRequested(), nil
			}
			return machine.RestartRequested(), err
		}
		action, ok := pickAction(answer, options)
		if !ok {
			fmt.Fprintf(out, "unknown choice %q\n", answer)
			continue
		}

		input := review.Input{Action: action}
		switch action {
		case review.ActionManualQuery:
			if input.Query, err = ask("Search string: "); err != nil {
				return machine.RestartRequested(), nil
			}
		case review.ActionDeleteVideo:
			confirm, err := ask(fmt.Sprintf("Delete %s? [y/N] ", entry.Video))
			if err != nil || !isYes(confirm) {
				continue
			}
		case review.ActionRaiseLimit:
			value, err := ask(fmt.Sprintf("New limit (%d < n <= %d): ", machine.Limit(), config.MaxSearchResultsCeiling))
			if err != nil {
				return machine.RestartRequested(), nil
			}
			if input.Limit, err = strconv.Atoi(value); err != nil {
				fmt.Fprintf(out, "not a number: %q\n", value)
				continue
			}
		case review.ActionSkipPermanent:
			confirm, err := ask("Never search this pair again? [y/N] ")
			if err != nil {
				return machine.RestartRequested(), nil
			}
			input.Confirmed = isYes(confirm)
		}

		if err := session.Handle(ctx, input); err != nil {
			if errors.Is(err, context.Canceled) {
				return machine.RestartRequested(), err
			}
			fmt.Fprintf(out, "%s\n", describeReviewError(err))
			continue
		}
		if action == review.ActionManualQuery {
			if current, ok := machine.Current(); ok && current.Video == entry.Video && current.Language == entry.Language {
				fmt.Fprintln(out, "No synchronized subtitle found with that search string")
			} else {
				fmt.Fprintln(out, "Resolved")
			}
		}
	}
	return machine.RestartRequested(), nil
}

func optionKey(n int, action review.Action) string {
	if action == review.ActionQuit {
		return "q"
	}
	return strconv.Itoa(n + 1)
}

func pickAction(answer string, options []review.Action) (review.Action, bool) {
	answer = strings.ToLower(strings.TrimSpace(answer))
	for n, action := range options {
		if answer == optionKey(n, action) {
			return action, true
		}
	}
	return 0, false
}

func optionLabel(action review.Action, limit int) string {
	switch action {
	case review.ActionManualQuery:
		return "Search with a different string"
	case review.ActionDeleteVideo:
		return "Delete the video"
	case review.ActionRaiseLimit:
		return fmt.Sprintf("Raise the search limit (now %d)", limit)
	case review.ActionSkipOnce:
		return "Skip for now"
	case review.ActionSkipPermanent:
		return "Skip permanently"
	case review.ActionQuit:
		return "Quit review"
	}
	return action.String()
}

func describeReason(reason review.Reason) string {
	if reason == review.ReasonLimitReached {
		return "search limit reached"
	}
	return "no usable subtitle found"
}

func describeReviewError(err error) string {
	switch {
	case errors.Is(err, review.ErrConfirmationRequired):
		return "not confirmed; entry kept"
	case errors.Is(err, services.ErrValidation):
		return "invalid: " + err.Error()
	default:
		return "failed: " + err.Error()
	}
}

func isYes(answer string) bool {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	}
	return false
}
