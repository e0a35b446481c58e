package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/dkempner/codereel/internal/config"
	"github.com/dkempner/codereel/internal/corpus"
	"github.com/dkempner/codereel/internal/search"
	"github.com/dkempner/codereel/internal/tui"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const (
	sColorReset   = "\033[0m"
	sColorBoldRed = "\033[1;31m"
	sColorBlue    = "\033[1;34m"
	sColorGreen   = "\033[1;32m"
	sColorDim     = "\033[2m"
)

func colorizeSplit(split string) string {
	switch split {
	case "train":
		return sColorGreen + split + sColorReset
	case "val":
		return sColorBlue + split + sColorReset
	default:
		return split
	}
}

func colorizeSnippet(snippet string) string {
	snippet = strings.ReplaceAll(snippet, ">>>", sColorBoldRed)
	snippet = strings.ReplaceAll(snippet, "<<<", sColorReset)
	return snippet
}

func searchCmd() *cobra.Command {
	var split string
	var limit int

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Full-text search across serialized transcripts",
		Long: `Search document chunks using FTS5. Output is TSV for fzf integration:
  sessionKey, docId, split, sourcePath, snippet

Recommended shell function (add to .zshrc):
  reelf() {
    reel search "$*" | fzf \
      --ansi \
      --delimiter='\t' --with-nth=3.. \
      --preview 'reel preview {1} --hit {2} --context 5 --query {q}' \
      --preview-window=right:60%:wrap \
      --preview-debounce=150 \
      --bind 'enter:execute(reel open {1})'
  }`,
		Args: cobra.ExactArgs(1),
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

			// Interactive TUI when stdout is a terminal; TSV output for pipes
			if term.IsTerminal(int(os.Stdout.Fd())) {
				return tui.Run(db, args[0], opts)
			}

			opts.Query = args[0]
			results, err := search.Search(db, opts)
			if err != nil {
				return err
			}

			if len(results) == 0 {
				fmt.Fprintln(os.Stderr, "No results found.")
				return nil
			}

			for _, r := range results {
				snippet := strings.ReplaceAll(r.Snippet, "\t", " ")
				snippet = strings.ReplaceAll(snippet, "\n", " ")
				snippet = colorizeSnippet(snippet)
				// first two fields (sessionKey, docID) stay plain for fzf {1} {2}
				fmt.Printf("%s\t%d\t%s\t%s%s%s\t%s\n",
					r.SessionKey,
					r.DocID,
					colorizeSplit(r.Split),
					sColorDim, r.FilePath, sColorReset,
					snippet,
				)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&split, "split", "", "Filter by split (train/val)")
	cmd.Flags().IntVar(&limit, "limit", 100, "Max results")

	return cmd
}
