package main

import (
	"fmt"
	"os"

	"github.com/dkempner/codereel/internal/config"
	"github.com/dkempner/codereel/internal/repair"
	"github.com/spf13/cobra"
)

func repairCmd() *cobra.Command {
	var dryRun, backup bool
	var maxSplits int
	var include, exclude []string

	cmd := &cobra.Command{
		Use:   "repair",
		Short: "Fix CSV files where consecutive rows were merged onto one line",
		Long: `Some recorders drop the newline between rows, producing lines that
hold several rows back to back. This scans the CSV root for lines where
a new "sequence,timestamp," row start appears mid-line (outside any
quoted field) and reinserts the missing newlines. Files are rewritten
atomically; use --dry-run to only report what would change.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			opts := repair.Options{
				DryRun:    dryRun,
				Backup:    backup,
				MaxSplits: maxSplits,
				Include:   include,
				Exclude:   exclude,
			}

			report := func(path string, inserted int) {
				verb := "fixed"
				if dryRun {
					verb = "would fix"
				}
				fmt.Fprintf(os.Stderr, "  %s %s (+%d rows)\n", verb, path, inserted)
			}

			stats, err := repair.Run(cfg.CSVRoot, opts, report)
			if err != nil {
				return fmt.Errorf("repair: %w", err)
			}

			fmt.Fprintf(os.Stderr, "Done. %s\n", stats)
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report merged lines without modifying files")
	cmd.Flags().BoolVar(&backup, "backup", false, "Write a .bak copy before modifying a file")
	cmd.Flags().IntVar(&maxSplits, "max-splits", repair.DefaultMaxSplits, "Max rows recovered from a single line")
	cmd.Flags().StringSliceVar(&include, "include", nil, "Only process paths containing one of these substrings")
	cmd.Flags().StringSliceVar(&exclude, "exclude", nil, "Skip paths containing one of these substrings")

	return cmd
}
