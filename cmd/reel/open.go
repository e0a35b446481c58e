package main

import (
	"github.com/dkempner/codereel/internal/config"
	"github.com/dkempner/codereel/internal/corpus"
	"github.com/dkempner/codereel/internal/open"
	"github.com/spf13/cobra"
)

func openCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "open <sessionKey>",
		Short: "Open the original CSV recording in $EDITOR",
		Args:  cobra.ExactArgs(1),
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

			return open.OpenSession(db, args[0])
		},
	}
}
