package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"proxyfarm/internal/staging"
)

func newSegmentsCommand(ctx *commandContext) *cobra.Command {
	segmentsCmd := &cobra.Command{
		Use:   "segments",
		Short: "Inspect and clean chunk segment scratch space",
	}

	segmentsCmd.AddCommand(newSegmentsListCommand(ctx))
	segmentsCmd.AddCommand(newSegmentsCleanCommand(ctx))

	return segmentsCmd
}

func newSegmentsListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List segment directories",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			tempDir := strings.TrimSpace(cfg.Paths.TempDir)
			dirs, err := staging.ListDirectories(tempDir)
			if err != nil {
				return fmt.Errorf("list segment directories: %w", err)
			}

			var totalSize int64
			for _, dir := range dirs {
				totalSize += dir.Size
			}
			if ctx.JSONMode() {
				if dirs == nil {
					dirs = []staging.DirInfo{}
				}
				return writeJSON(cmd, map[string]any{
					"temp_dir":         tempDir,
					"directories":      dirs,
					"total_size_bytes": totalSize,
				})
			}

			out := cmd.OutOrStdout()
			if len(dirs) == 0 {
				fmt.Fprintln(out, "No segment directories found")
				return nil
			}
			fmt.Fprintf(out, "Segment directory: %s\n\n", tempDir)
			rows := make([][]string, 0, len(dirs))
			for _, dir := range dirs {
				rows = append(rows, []string{
					dir.Name,
					fmt.Sprint(dir.Segments),
					formatDuration(time.Since(dir.ModTime)),
					formatBytes(dir.Size),
				})
			}
			fmt.Fprint(out, renderTable(
				[]string{"Source", "Segments", "Age", "Size"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignRight, alignRight},
			))
			fmt.Fprintf(out, "\nTotal: %d directories, %s\n", len(dirs), formatBytes(totalSize))
			return nil
		},
	}
}

func newSegmentsCleanCommand(ctx *commandContext) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove segment directories left behind by earlier runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.logger("")
			if err != nil {
				return err
			}
			result := staging.CleanStale(cmd.Context(), cfg.Paths.TempDir, olderThan, nil, logger)
			if ctx.JSONMode() {
				errs := make([]string, 0, len(result.Errors))
				for _, e := range result.Errors {
					errs = append(errs, fmt.Sprintf("%s: %v", e.Path, e.Error))
				}
				return writeJSON(cmd, map[string]any{"removed": len(result.Removed), "errors": errs})
			}
			out := cmd.OutOrStdout()
			switch {
			case len(result.Removed) == 0 && len(result.Errors) == 0:
				fmt.Fprintln(out, "No segment directories to clean")
			case len(result.Errors) > 0:
				fmt.Fprintf(out, "Removed %d segment directories, %d errors\n", len(result.Removed), len(result.Errors))
				for _, e := range result.Errors {
					fmt.Fprintf(out, "  Error: %s: %v\n", e.Path, e.Error)
				}
			default:
				fmt.Fprintf(out, "Removed %d segment directories\n", len(result.Removed))
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 24*time.Hour, "Only remove directories untouched for this long")
	return cmd
}
