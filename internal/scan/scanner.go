package scan

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FileInfo describes one discovered session CSV.
type FileInfo struct {
	Path  string
	Mtime int64
	Size  int64
}

// ScanRoot recursively finds session CSV files under root. Results are
// sorted by path so downstream shuffling and split assignment are
// deterministic for a fixed file set.
func ScanRoot(root string) ([]FileInfo, error) {
	var files []FileInfo

	if root == "" {
		return nil, nil
	}

	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // skip unreadable dirs
		}
		if info.IsDir() {
			return nil
		}
		if !strings.EqualFold(filepath.Ext(path), ".csv") {
			return nil
		}
		files = append(files, FileInfo{
			Path:  path,
			Mtime: info.ModTime().Unix(),
			Size:  info.Size(),
		})
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}
