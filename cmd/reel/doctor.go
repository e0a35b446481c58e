package main

import (
	"fmt"
	"os"

	"github.com/dkempner/codereel/internal/config"
	"github.com/dkempner/codereel/internal/corpus"
	"github.com/dkempner/codereel/internal/scan"
	"github.com/spf13/cobra"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Self-check: verify CSV root, DB, FTS5, and show stats",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}

			// check CSV root
			fmt.Println("=== CSV Root ===")
			checkDir("Recordings", cfg.CSVRoot)

			// scan file counts
			fmt.Println("\n=== File Scan ===")
			files, err := scan.ScanRoot(cfg.CSVRoot)
			if err != nil {
				fmt.Printf("  scan error: %v\n", err)
			} else {
				fmt.Printf("  CSV recordings: %d\n", len(files))
			}

			// check DB
			fmt.Println("\n=== Database ===")
			fmt.Printf("  Path: %s\n", cfg.DBPath)
			if _, err := os.Stat(cfg.DBPath); os.IsNotExist(err) {
				fmt.Println("  Status: NOT FOUND (run 'reel serialize' first)")
				return nil
			}

			db, err := corpus.OpenDB(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			defer db.Close()

			sessionCount, err := db.SessionCount()
			if err != nil {
				return fmt.Errorf("count sessions: %w", err)
			}

			docCount, err := db.DocCount()
			if err != nil {
				return fmt.Errorf("count docs: %w", err)
			}

			trainDocs, err := db.DocCountBySplit("train")
			if err != nil {
				return fmt.Errorf("count train docs: %w", err)
			}
			valDocs, err := db.DocCountBySplit("val")
			if err != nil {
				return fmt.Errorf("count val docs: %w", err)
			}

			fmt.Printf("  Sessions: %d\n", sessionCount)
			fmt.Printf("  Docs:     %d (train=%d, val=%d)\n", docCount, trainDocs, valDocs)

			if lastRun, err := db.GetMeta("last_run_at"); err == nil && lastRun != "" {
				fmt.Printf("  Last serialize: %s\n", lastRun)
			}

			// check FTS5
			fmt.Println("\n=== FTS5 ===")
			var ftsCount int
			err = db.Raw().QueryRow("SELECT COUNT(*) FROM docs_fts").Scan(&ftsCount)
			if err != nil {
				fmt.Printf("  FTS5 error: %v\n", err)
			} else {
				fmt.Printf("  FTS5 entries: %d\n", ftsCount)
				if ftsCount == docCount {
					fmt.Println("  Status: OK (synced)")
				} else {
					fmt.Printf("  Status: MISMATCH (docs=%d, fts=%d)\n", docCount, ftsCount)
				}
			}

			// check DB file size
			if info, err := os.Stat(cfg.DBPath); err == nil {
				sizeMB := float64(info.Size()) / 1024 / 1024
				fmt.Printf("\n=== DB Size: %.1f MB ===\n", sizeMB)
			}

			return nil
		},
	}
}

func checkDir(name, path string) {
	if info, err := os.Stat(path); err != nil {
		fmt.Printf("  %s: %s (NOT FOUND)\n", name, path)
	} else if !info.IsDir() {
		fmt.Printf("  %s: %s (NOT A DIRECTORY)\n", name, path)
	} else {
		fmt.Printf("  %s: %s (OK)\n", name, path)
	}
}
