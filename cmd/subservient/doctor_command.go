package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"subservient/internal/preflight"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	var offline bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check binaries, directory permissions and catalog access",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			results := preflight.RunAll(cfg)
			if !offline {
				results = append(results, preflight.CheckOpenSubtitles(cmd.Context(),
					cfg.OpenSubtitles.APIURL, cfg.OpenSubtitles.APIKey, cfg.OpenSubtitles.UserAgent))
			}

			rows := make([][]string, 0, len(results))
			for _, r := range results {
				status := "ok"
				if !r.Passed {
					status = "FAIL"
				}
				rows = append(rows, []string{r.Name, status, r.Detail})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Check", "Status", "Detail"}, rows, nil))

			if failed, ok := preflight.FirstFailure(results); ok {
				return errors.New("doctor: " + failed.Name + ": " + failed.Detail)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "Skip the OpenSubtitles reachability check")
	return cmd
}
