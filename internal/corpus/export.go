package corpus

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
)

// ExportStats summarizes a shard export run.
type ExportStats struct {
	TrainShards int
	ValShards   int
	TrainDocs   int
	ValDocs     int
}

func (s ExportStats) String() string {
	return fmt.Sprintf("train_shards=%d train_docs=%d val_shards=%d val_docs=%d",
		s.TrainShards, s.TrainDocs, s.ValShards, s.ValDocs)
}

// shardDoc is the one-record-per-line shard payload.
type shardDoc struct {
	Text string `json:"text"`
}

// ExportShards writes the docs table out as gzip-compressed JSONL shard
// files (train_00000.jsonl.gz, val_00000.jsonl.gz, ...) with at most
// shardSize docs per shard. The container format is reel's own; consumers
// only rely on the ordered {"text": ...} records.
func ExportShards(db *DB, outDir string, shardSize int) (ExportStats, error) {
	if shardSize <= 0 {
		shardSize = 20000
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return ExportStats{}, fmt.Errorf("create export dir: %w", err)
	}

	var stats ExportStats

	trainShards, trainDocs, err := exportSplit(db, outDir, "train", shardSize)
	if err != nil {
		return stats, err
	}
	stats.TrainShards, stats.TrainDocs = trainShards, trainDocs

	valShards, valDocs, err := exportSplit(db, outDir, "val", shardSize)
	if err != nil {
		return stats, err
	}
	stats.ValShards, stats.ValDocs = valShards, valDocs

	return stats, nil
}

func exportSplit(db *DB, outDir, split string, shardSize int) (shards, docs int, err error) {
	var (
		f       *os.File
		zw      *gzip.Writer
		enc     *json.Encoder
		inShard int
	)

	closeShard := func() error {
		if zw == nil {
			return nil
		}
		if err := zw.Close(); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		zw, f, enc = nil, nil, nil
		return nil
	}

	openShard := func() error {
		name := fmt.Sprintf("%s_%05d.jsonl.gz", split, shards)
		var err error
		f, err = os.Create(filepath.Join(outDir, name))
		if err != nil {
			return err
		}
		zw = gzip.NewWriter(f)
		enc = json.NewEncoder(zw)
		shards++
		inShard = 0
		return nil
	}

	walkErr := db.WalkDocsBySplit(split, func(doc DocRow) error {
		if zw != nil && inShard >= shardSize {
			if err := closeShard(); err != nil {
				return err
			}
		}
		if zw == nil {
			if err := openShard(); err != nil {
				return err
			}
		}
		if err := enc.Encode(shardDoc{Text: doc.Text}); err != nil {
			return err
		}
		inShard++
		docs++
		return nil
	})
	if walkErr != nil {
		closeShard()
		return shards, docs, fmt.Errorf("export %s: %w", split, walkErr)
	}
	if err := closeShard(); err != nil {
		return shards, docs, fmt.Errorf("export %s: %w", split, err)
	}
	return shards, docs, nil
}
