package main

import (
	"fmt"
	"os"

	"github.com/dkempner/codereel/internal/config"
	"github.com/dkempner/codereel/internal/corpus"
	"github.com/spf13/cobra"
)

func serializeCmd() *cobra.Command {
	var maxDocs int
	var workers int

	cmd := &cobra.Command{
		Use:   "serialize",
		Short: "Replay recorded CSV sessions into transcripts and store document chunks",
		Long: `Scans the CSV root for session recordings, replays each into a
deterministic transcript, splits it into overlapping chunks, and stores
the result in the corpus database. Sessions whose file is unchanged
since the last run are skipped; vanished sessions are pruned.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if maxDocs > 0 {
				cfg.MaxDocs = maxDocs
			}
			if workers > 0 {
				cfg.Workers = workers
			}

			db, err := corpus.OpenDB(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			defer db.Close()

			fmt.Fprintf(os.Stderr, "Scanning %s...\n", cfg.CSVRoot)

			logf := func(format string, a ...interface{}) {
				fmt.Fprintf(os.Stderr, format+"\n", a...)
			}
			stats, err := corpus.SerializeAll(db, cfg, logf)
			if err != nil {
				return fmt.Errorf("serialize: %w", err)
			}

			fmt.Fprintf(os.Stderr, "Done. %s\n", stats)
			return nil
		},
	}

	cmd.Flags().IntVar(&maxDocs, "max-docs", 0, "Stop after writing this many new documents (0 = unlimited)")
	cmd.Flags().IntVar(&workers, "workers", 0, "Parallel replay workers (0 = GOMAXPROCS)")

	return cmd
}
