package main

import (
	"fmt"

	"github.com/dkempner/codereel/internal/config"
	"github.com/dkempner/codereel/internal/corpus"
	"github.com/dkempner/codereel/internal/render"
	"github.com/spf13/cobra"
)

func previewCmd() *cobra.Command {
	var hitDocID int
	var context int
	var query string

	cmd := &cobra.Command{
		Use:   "preview <sessionKey>",
		Short: "Preview a session transcript with context around a hit",
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

			out, _, err := render.RenderSession(db, args[0], render.Options{
				HitDocID: hitDocID,
				Context:  context,
				Query:    query,
			})
			if err != nil {
				return err
			}

			fmt.Print(out)
			return nil
		},
	}

	cmd.Flags().IntVar(&hitDocID, "hit", -1, "Document ID to highlight")
	cmd.Flags().IntVar(&context, "context", 10, "Documents before/after hit to show")
	cmd.Flags().StringVar(&query, "query", "", "Search query for keyword highlighting")

	return cmd
}
