package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"shivuk/internal/preflight"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	var offline bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check credentials, directories, and disk space",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			var results []preflight.Result
			if offline {
				results = preflight.RunLocal(cfg)
			} else {
				results = preflight.RunAll(cmd.Context(), cfg)
			}

			out := cmd.OutOrStdout()
			colorize := isTerminal(out)
			failed := 0
			for _, r := range results {
				if !r.Passed {
					failed++
				}
				fmt.Fprintln(out, renderCheck(r, colorize))
			}
			fmt.Fprintln(out)
			fmt.Fprintln(out, renderCheckSummary(results, offline, colorize))
			if failed > 0 {
				return fmt.Errorf("%d of %d checks failed", failed, len(results))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "Skip the generation API round trip")
	return cmd
}
