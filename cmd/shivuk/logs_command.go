package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"shivuk/internal/logs"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var (
		follow    bool
		lines     int
		level     string
		component string
		raw       bool
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Display the shivuk log",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path := cfg.LogFilePath()
			if path == "" {
				return fmt.Errorf("no log directory configured (paths.log_dir)")
			}

			filter := logs.Filter{MinLevel: logs.ParseLevel(level), Component: component}
			out := cmd.OutOrStdout()
			printed := false
			emit := func(line string) {
				if raw {
					fmt.Fprintln(out, line)
					printed = true
					return
				}
				if rendered, ok := logs.Render(line, filter); ok {
					fmt.Fprintln(out, rendered)
					printed = true
				}
			}

			initial, offset, err := logs.Last(path, lines)
			if err != nil {
				return err
			}
			for _, line := range initial {
				emit(line)
			}
			if !follow {
				if !printed {
					fmt.Fprintln(out, "No log entries available")
				}
				return nil
			}
			return logs.Follow(cmd.Context(), path, offset, emit)
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Follow log output")
	cmd.Flags().IntVarP(&lines, "lines", "n", 10, "Number of lines to show (0 for all)")
	cmd.Flags().StringVar(&level, "level", "debug", "Minimum level to show (debug, info, warn, error)")
	cmd.Flags().StringVar(&component, "component", "", "Only show entries from this component")
	cmd.Flags().BoolVar(&raw, "raw", false, "Print lines exactly as written")
	return cmd
}
