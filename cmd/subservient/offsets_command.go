package main

import (
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"subservient/internal/ledger"
	"subservient/internal/pipeline"
	"subservient/internal/review"
	"subservient/internal/syncer"
)

func newOffsetsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "offsets",
		Short: "Subtitles accepted with a corrected offset",
		Long: "Subtitles whose alignment moved them by more than the accept threshold are " +
			"listed here until someone has watched a scene and marked them done.",
	}
	cmd.AddCommand(newOffsetsListCommand(ctx))
	cmd.AddCommand(newOffsetsDoneCommand(ctx))
	cmd.AddCommand(newOffsetsShiftCommand(ctx))
	cmd.AddCommand(newOffsetsRestoreCommand(ctx))
	cmd.AddCommand(newOffsetsDriftCommand(ctx))
	return cmd
}

func newOffsetsListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List subtitles waiting for a manual check",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			entries, err := review.NewOffsetQueue(cfg.OffsetQueuePath()).List()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "No subtitles waiting for an offset check")
				return nil
			}
			rows := make([][]string, 0, len(entries))
			for _, e := range entries {
				rows = append(rows, []string{
					e.Title,
					strings.ToUpper(e.Language),
					fmt.Sprintf("%.3f", e.Offset),
					e.CueTime,
					e.FirstLine,
					e.VideoPath(),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Title", "Lang", "Offset (s)", "First cue", "Text", "Video"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft, alignLeft},
			))
			return nil
		},
	}
}

func newOffsetsDoneCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "done <video> <lang>",
		Short: "Mark a subtitle as checked",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			video, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolve video path: %w", err)
			}
			found, err := review.NewOffsetQueue(cfg.OffsetQueuePath()).Done(video, args[1])
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("no offset entry for %s [%s]", video, strings.ToUpper(args[1]))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Marked %s [%s] as checked\n", filepath.Base(video), strings.ToUpper(args[1]))
			return nil
		},
	}
}

func newOffsetsShiftCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "shift <subtitle> <milliseconds>",
		Short: "Move every cue of a subtitle by a number of milliseconds",
		Long: "Positive values delay the subtitle, negative values make it appear earlier. Cues never move before zero. " +
			"Put -- before a negative value: subservient offsets shift -- movie.en.srt -500",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			ms, err := strconv.Atoi(strings.TrimSpace(args[1]))
			if err != nil {
				return fmt.Errorf("invalid milliseconds %q", args[1])
			}
			lock, err := pipeline.AcquireLock(cfg.LockPath())
			if err != nil {
				return err
			}
			defer lock.Release()

			if err := syncer.ShiftFile(args[0], time.Duration(ms)*time.Millisecond); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Shifted %s by %+d ms\n", filepath.Base(args[0]), ms)
			return nil
		},
	}
}

func newOffsetsRestoreCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "restore <video> <lang>",
		Short: "Undo the correction the aligner applied and mark the subtitle as checked",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			video, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolve video path: %w", err)
			}
			lock, err := pipeline.AcquireLock(cfg.LockPath())
			if err != nil {
				return err
			}
			defer lock.Release()

			queue := review.NewOffsetQueue(cfg.OffsetQueuePath())
			entry, err := lookupOffset(queue, video, args[1])
			if err != nil {
				return err
			}
			ms := int(math.Round(-entry.Offset * 1000))
			out := cmd.OutOrStdout()
			if ms == 0 {
				fmt.Fprintf(out, "No offset to restore for %s [%s]\n", entry.Video, strings.ToUpper(entry.Language))
			} else {
				if err := syncer.ShiftFile(entry.SubtitlePath(), time.Duration(ms)*time.Millisecond); err != nil {
					return err
				}
				fmt.Fprintf(out, "Restored original timing of %s (%+d ms)\n", entry.Subtitle, ms)
			}
			if _, err := queue.Done(video, args[1]); err != nil {
				return err
			}
			return nil
		},
	}
}

func newOffsetsDriftCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "drift <video> <lang>",
		Short: "Reject a corrected subtitle so the next run fetches another candidate",
		Long: "The subtitle goes back to the candidate name it was accepted from, marked DRIFT. " +
			"Its popularity is never downloaded again and the slot is backfilled on the next run.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			video, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolve video path: %w", err)
			}
			lock, err := pipeline.AcquireLock(cfg.LockPath())
			if err != nil {
				return err
			}
			defer lock.Release()

			queue := review.NewOffsetQueue(cfg.OffsetQueuePath())
			entry, err := lookupOffset(queue, video, args[1])
			if err != nil {
				return err
			}
			candidate, ok := ledger.Parse(entry.Candidate)
			if !ok {
				return fmt.Errorf("offset entry for %s [%s] has no candidate name to return to", entry.Video, strings.ToUpper(entry.Language))
			}
			pair := ledger.Pair{Video: video, Language: candidate.Language, Episode: candidate.Episode}
			drift, err := ledger.Demote(pair, candidate)
			if err != nil {
				return err
			}
			if _, err := queue.Done(video, args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Marked %s as %s; the next run fetches another candidate\n", entry.Subtitle, drift.FileName())
			return nil
		},
	}
}

func lookupOffset(queue *review.OffsetQueue, video, lang string) (review.OffsetEntry, error) {
	entry, ok, err := queue.Lookup(video, lang)
	if err != nil {
		return review.OffsetEntry{}, err
	}
	if !ok {
		return review.OffsetEntry{}, fmt.Errorf("no offset entry for %s [%s]", video, strings.ToUpper(lang))
	}
	return entry, nil
}
