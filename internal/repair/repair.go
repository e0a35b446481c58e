// Package repair fixes session CSV files whose rows were accidentally merged
// onto one line by the recorder. A new row is assumed to start at a
// `digits,digits` token (the Sequence,Time prefix) that sits outside quoted
// fields, is not glued to a preceding comma, and is followed by a comma.
package repair

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// rowStartRe matches the numeric Sequence,Time prefix of a CSV row.
// RE2 has no lookaround, so the digit-boundary guards from the heuristic are
// enforced separately in rowStartIndices.
var rowStartRe = regexp.MustCompile(`\d+,\d+`)

// Options controls a repair run.
type Options struct {
	DryRun    bool
	Backup    bool     // write .bak alongside modified files
	MaxSplits int      // safety cap on rows recovered from one line
	Include   []string // only process paths containing one of these substrings
	Exclude   []string // skip paths containing one of these substrings
}

// DefaultMaxSplits bounds how many rows may be recovered from a single
// merged line before giving up on it.
const DefaultMaxSplits = 8

// Stats summarizes a repair run.
type Stats struct {
	Scanned  int
	Modified int
	Inserted int
}

func (s Stats) String() string {
	return fmt.Sprintf("scanned=%d modified=%d inserted=%d", s.Scanned, s.Modified, s.Inserted)
}

// Run repairs every CSV under root. Modified files are reported on report
// (one line per file) when it is non-nil.
func Run(root string, opts Options, report func(path string, inserted int)) (Stats, error) {
	if opts.MaxSplits <= 0 {
		opts.MaxSplits = DefaultMaxSplits
	}

	var stats Stats
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // skip unreadable entries
		}
		if info.IsDir() || !strings.EqualFold(filepath.Ext(path), ".csv") {
			return nil
		}
		if !shouldProcess(path, opts) {
			return nil
		}
		stats.Scanned++

		changed, inserted, err := ProcessFile(path, opts)
		if err != nil {
			return fmt.Errorf("repair %s: %w", path, err)
		}
		if changed {
			stats.Modified++
			stats.Inserted += inserted
			if report != nil {
				report(path, inserted)
			}
		}
		return nil
	})
	return stats, err
}

func shouldProcess(path string, opts Options) bool {
	if len(opts.Include) > 0 {
		ok := false
		for _, k := range opts.Include {
			if strings.Contains(path, k) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	for _, k := range opts.Exclude {
		if strings.Contains(path, k) {
			return false
		}
	}
	return true
}

// ProcessFile rewrites one CSV in place (atomically) if any of its lines
// hold multiple merged rows. It reports whether the file changed and how
// many newlines were inserted.
func ProcessFile(path string, opts Options) (bool, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return false, 0, err
	}

	lines := splitKeepingContent(string(data))
	var out strings.Builder
	changed := false
	inserted := 0

	for _, line := range lines {
		if NeedsSplit(line) {
			parts := SplitLine(line, opts.MaxSplits)
			if len(parts) > 1 {
				changed = true
				inserted += len(parts) - 1
			}
			for _, p := range parts {
				out.WriteString(p)
				out.WriteString("\n")
			}
		} else {
			out.WriteString(line)
			out.WriteString("\n")
		}
	}

	if !changed || opts.DryRun {
		return changed, inserted, nil
	}

	if opts.Backup {
		if err := os.WriteFile(path+".bak", data, 0o644); err != nil {
			return false, 0, fmt.Errorf("write backup: %w", err)
		}
	}
	if err := atomicWrite(path, out.String()); err != nil {
		return false, 0, err
	}
	return true, inserted, nil
}

// splitKeepingContent splits on newlines without dropping a trailing empty
// segment ambiguity: the final newline is re-added uniformly at write time.
func splitKeepingContent(s string) []string {
	s = strings.TrimSuffix(s, "\n")
	if s == "" {
		return nil
	}
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

func atomicWrite(path, content string) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".repair-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// insideQuotes reports whether byte position idx sits inside a CSV quoted
// field. Doubled quotes ("") escape a quote inside a quoted field.
func insideQuotes(line string, idx int) bool {
	in := false
	for i := 0; i < idx && i < len(line); i++ {
		if line[i] != '"' {
			continue
		}
		if in && i+1 < idx && line[i+1] == '"' {
			i++ // skip escaped quote
			continue
		}
		in = !in
	}
	return in
}

// rowStartIndices finds byte offsets where a new CSV row likely begins
// within a possibly merged line:
//   - a digits,digits token with digit boundaries on both sides
//   - outside quoted fields
//   - at line start or not immediately after a comma (subsequent numeric
//     columns like 0,0 would otherwise match)
//   - immediately followed by a comma (the end of the Time column)
func rowStartIndices(line string) []int {
	var starts []int
	for _, m := range rowStartRe.FindAllStringIndex(line, -1) {
		s, e := m[0], m[1]
		if s > 0 && isDigit(line[s-1]) {
			continue
		}
		if e < len(line) && isDigit(line[e]) {
			continue
		}
		if insideQuotes(line, s) {
			continue
		}
		if s > 0 && line[s-1] == ',' {
			continue
		}
		if e < len(line) && line[e] != ',' {
			continue
		}
		starts = append(starts, s)
	}
	sort.Ints(starts)
	return starts
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

// NeedsSplit reports whether a line appears to hold more than one CSV row.
// A single row start still needs a split when header-like content precedes
// the first timestamp.
func NeedsSplit(line string) bool {
	starts := rowStartIndices(line)
	if len(starts) >= 2 {
		return true
	}
	if len(starts) == 1 {
		return !onlySeparators(line[:starts[0]])
	}
	return false
}

func onlySeparators(s string) bool {
	return strings.Trim(s, " ,;|\t\r\n") == ""
}

// SplitLine recovers the individual CSV rows merged into line. Lines with no
// detectable row start are returned unchanged.
func SplitLine(line string, maxSplits int) []string {
	starts := rowStartIndices(line)
	if len(starts) == 0 {
		return []string{line}
	}

	// Content before the first timestamp becomes its own leading chunk when
	// it is more than separators (a carried-over header, typically).
	first := starts[0]
	if !onlySeparators(line[:first]) {
		first = 0
	}

	indices := append([]int{first}, starts...)
	indices = dedupSorted(indices)

	var chunks []string
	for i, idx := range indices {
		next := len(line)
		if i+1 < len(indices) {
			next = indices[i+1]
		}
		segment := strings.TrimLeft(line[idx:next], " \t,;|\r")
		segment = strings.TrimRight(segment, "\r\n")
		if segment != "" {
			chunks = append(chunks, segment)
		}
		if len(chunks) >= maxSplits {
			break
		}
	}

	if len(chunks) == 0 {
		return []string{line}
	}
	return chunks
}

func dedupSorted(xs []int) []int {
	sort.Ints(xs)
	out := xs[:0]
	for i, x := range xs {
		if i == 0 || x != out[len(out)-1] {
			out = append(out, x)
		}
	}
	return out
}
