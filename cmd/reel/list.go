package main

import (
	"github.com/dkempner/codereel/internal/config"
	"github.com/dkempner/codereel/internal/corpus"
	"github.com/dkempner/codereel/internal/search"
	"github.com/dkempner/codereel/internal/tui"
	"github.com/spf13/cobra"
)

func listCmd() *cobra.Command {
	var split string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Browse all serialized sessions",
		Long:  `Opens a TUI panel showing every serialized session. Type to filter by transcript content.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			db, err := corpus.OpenDB(cfg.DBPath)
			if err != nil {
				return err
			}
			defer db.Close()

			opts := search.Options{
				Split: split,
				Limit: limit,
			}

			return tui.RunList(db, opts)
		},
	}

	cmd.Flags().StringVar(&split, "split", "", "Filter by split (train/val)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Max results (0 = no limit)")

	return cmd
}
