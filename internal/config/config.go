package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config holds all reel settings. Values come from
// ~/.config/reel/config.toml with defaults filled in first.
type Config struct {
	CSVRoot   string `toml:"csv_root"`
	DBPath    string `toml:"db_path"`
	ExportDir string `toml:"export_dir"`

	TargetChars     int   `toml:"target_chars"`
	OverlapChars    int   `toml:"overlap_chars"`
	MinSessionChars int   `toml:"min_session_chars"`
	LongPauseMs     int64 `toml:"long_pause_threshold_ms"`

	ValRatio  float64 `toml:"val_ratio"`
	Seed      int64   `toml:"seed"`
	MaxDocs   int     `toml:"max_docs"`   // 0 = unlimited
	ShardSize int     `toml:"shard_size"` // docs per exported shard
	Workers   int     `toml:"workers"`    // 0 = GOMAXPROCS
}

func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		CSVRoot:         filepath.Join(home, "recordings"),
		DBPath:          filepath.Join(home, ".config", "reel", "corpus.db"),
		ExportDir:       filepath.Join(home, ".config", "reel", "shards"),
		TargetChars:     8192,
		OverlapChars:    128,
		MinSessionChars: 1024,
		LongPauseMs:     120000,
		ValRatio:        0.10,
		Seed:            42,
		ShardSize:       20000,
	}

	cfgPath := filepath.Join(home, ".config", "reel", "config.toml")
	if _, err := os.Stat(cfgPath); err == nil {
		if _, err := toml.DecodeFile(cfgPath, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", cfgPath, err)
		}
	}

	// expand ~ in paths
	cfg.CSVRoot = expandHome(cfg.CSVRoot, home)
	cfg.DBPath = expandHome(cfg.DBPath, home)
	cfg.ExportDir = expandHome(cfg.ExportDir, home)

	return cfg, nil
}

func expandHome(path, home string) string {
	if len(path) > 1 && path[0] == '~' && path[1] == '/' {
		return filepath.Join(home, path[2:])
	}
	return path
}
