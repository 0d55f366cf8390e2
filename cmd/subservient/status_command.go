package main

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"subservient/internal/escalation"
	"subservient/internal/library"
	"subservient/internal/pipeline"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var pendingOnly bool

	cmd := &cobra.Command{
		Use:   "status [video...]",
		Short: "Show the state of every (video, language) pair",
		Long:  "Derives each pair's state from the subtitle files next to the video and the review queue. Nothing is changed.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			runner, err := ctx.inspectRunner()
			if err != nil {
				return err
			}
			videos, err := targetVideos(cmd.Context(), runner, cfg.Library.SeriesMode, args)
			if err != nil {
				return err
			}
			statuses, err := runner.Inspect(videos)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderStatus(statuses, pendingOnly))
			return nil
		},
	}
	cmd.Flags().BoolVar(&pendingOnly, "pending", false, "Hide resolved and skipped pairs")
	return cmd
}

func renderStatus(statuses []pipeline.PairStatus, pendingOnly bool) string {
	counts := make(map[escalation.State]int)
	rows := make([][]string, 0, len(statuses))
	skipped := 0
	for _, s := range statuses {
		if s.Skipped {
			skipped++
		} else {
			counts[s.State]++
		}
		if pendingOnly && (s.Skipped || s.State == escalation.StateResolved) {
			continue
		}
		state := s.State.String()
		if s.Skipped {
			state = "SKIPPED"
		}
		rows = append(rows, []string{
			displayVideo(s.Video),
			strings.ToUpper(s.Language),
			state,
			strconv.Itoa(s.Untested),
			strconv.Itoa(s.Drift),
			strconv.Itoa(s.Failed),
		})
	}
	var b strings.Builder
	if len(rows) > 0 {
		b.WriteString(renderTable(
			[]string{"Video", "Lang", "State", "Untested", "Drift", "Failed"},
			rows,
			[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight},
		))
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "%d pair(s): %d resolved, %d with untested candidates, %d need a subtitle, %d in review, %d skipped",
		len(statuses),
		counts[escalation.StateResolved],
		counts[escalation.StateHasUntested],
		counts[escalation.StateNeedsSubtitle],
		counts[escalation.StateExhausted],
		skipped,
	)
	return b.String()
}

func displayVideo(v library.Video) string {
	return filepath.Join(filepath.Base(filepath.Dir(v.Path)), v.Name())
}
