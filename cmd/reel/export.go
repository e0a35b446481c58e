package main

import (
	"fmt"
	"os"

	"github.com/dkempner/codereel/internal/config"
	"github.com/dkempner/codereel/internal/corpus"
	"github.com/spf13/cobra"
)

func exportCmd() *cobra.Command {
	var outDir string
	var shardSize int

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export document chunks as gzipped JSONL shards",
		Long: `Writes the stored document chunks as train_NNNNN.jsonl.gz and
val_NNNNN.jsonl.gz shard files, one JSON object per line with a single
"text" field. Shards are written in session order so repeated exports
of an unchanged corpus produce identical files.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if outDir == "" {
				outDir = cfg.ExportDir
			}
			if shardSize <= 0 {
				shardSize = cfg.ShardSize
			}

			db, err := corpus.OpenDB(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			defer db.Close()

			fmt.Fprintf(os.Stderr, "Exporting to %s...\n", outDir)

			stats, err := corpus.ExportShards(db, outDir, shardSize)
			if err != nil {
				return fmt.Errorf("export: %w", err)
			}

			fmt.Fprintf(os.Stderr, "Done. %s\n", stats)
			return nil
		},
	}

	cmd.Flags().StringVar(&outDir, "out", "", "Output directory (default from config)")
	cmd.Flags().IntVar(&shardSize, "shard-size", 0, "Documents per shard (default from config)")

	return cmd
}
