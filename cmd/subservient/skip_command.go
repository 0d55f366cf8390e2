package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"subservient/internal/runstate"
)

func newSkipCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "skip",
		Short: "Manage the skip registry",
		Long:  "Pairs in the skip registry are never searched, downloaded or synchronized.",
	}
	cmd.AddCommand(newSkipListCommand(ctx))
	cmd.AddCommand(newSkipAddCommand(ctx))
	cmd.AddCommand(newSkipRemoveCommand(ctx))
	return cmd
}

func skipStore(ctx *commandContext) (*runstate.Store, error) {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return nil, err
	}
	return runstate.NewStore(cfg.RuntimeStatePath()), nil
}

func newSkipListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List skipped videos",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := skipStore(ctx)
			if err != nil {
				return err
			}
			entries, err := store.SkipEntries()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "Skip registry is empty")
				return nil
			}
			rows := make([][]string, 0, len(entries))
			for _, e := range entries {
				langs := make([]string, len(e.Languages))
				for i, l := range e.Languages {
					langs[i] = strings.ToUpper(l)
				}
				rows = append(rows, []string{e.Video, strings.Join(langs, ",")})
			}
			fmt.Fprintln(out, renderTable([]string{"Video", "Languages"}, rows, nil))
			return nil
		},
	}
}

func newSkipAddCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "add <video> <lang...>",
		Short: "Never process these languages of a video",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := skipStore(ctx)
			if err != nil {
				return err
			}
			video, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolve video path: %w", err)
			}
			if err := store.AddSkip(video, args[1:]...); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Skipping %s [%s]\n", filepath.Base(video), strings.ToUpper(strings.Join(args[1:], ",")))
			return nil
		},
	}
}

func newSkipRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <video> [lang...]",
		Short: "Remove languages (or the whole video) from the skip registry",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := skipStore(ctx)
			if err != nil {
				return err
			}
			video, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolve video path: %w", err)
			}
			changed, err := store.RemoveSkip(video, args[1:]...)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !changed {
				fmt.Fprintf(out, "%s was not in the skip registry\n", filepath.Base(video))
				return nil
			}
			fmt.Fprintf(out, "Removed %s from the skip registry\n", filepath.Base(video))
			return nil
		},
	}
}
