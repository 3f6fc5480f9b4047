package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"proxyfarm/internal/logs"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var (
		lines  int
		follow bool
		terms  []string
	)

	cmd := &cobra.Command{
		Use:       "logs [coordinator|worker]",
		Short:     "Show the coordinator or worker log",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"coordinator", "worker"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			role := "coordinator"
			if len(args) == 1 {
				role = args[0]
			}
			reader := logs.Reader{
				Path:   filepath.Join(cfg.Paths.LogDir, role+".log"),
				Filter: logs.Filter{Terms: terms},
			}

			out := cmd.OutOrStdout()
			tail, offset, err := reader.Last(lines)
			if err != nil {
				return err
			}
			for _, line := range tail {
				fmt.Fprintln(out, line)
			}
			if !follow {
				return nil
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return reader.Follow(runCtx, offset, func(line string) {
				fmt.Fprintln(out, line)
			})
		},
	}

	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of trailing lines to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new lines until interrupted")
	cmd.Flags().StringSliceVarP(&terms, "grep", "g", nil, "Only show lines containing every term (task id, clip, batch id)")
	return cmd
}
