package parse

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Column order expected in session CSVs. The upstream recorder always writes
// this header; repair (internal/repair) runs before parsing, so each row is
// one event.
var requiredColumns = []string{
	"Sequence", "Time", "File", "RangeOffset", "RangeLength", "Text", "Language", "Type",
}

// ParseSession reads one session CSV into an ordered Event sequence.
// Rows are kept in file order; Time is never used to re-sort events.
func ParseSession(filePath, root string) (*Session, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sess := &Session{
		Key:      SessionKey(filePath, root),
		FilePath: filePath,
	}

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1 // validated per row against the header
	r.LazyQuotes = true

	header, err := r.Read()
	if err == io.EOF {
		return sess, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	cols, err := columnIndex(header)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filePath, err)
	}

	rowNum := 1
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", rowNum+1, err)
		}
		rowNum++

		ev, err := parseRow(row, cols)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", rowNum, err)
		}
		sess.Events = append(sess.Events, ev)
	}

	return sess, nil
}

// SessionKey derives a stable key from the CSV path relative to the root.
func SessionKey(filePath, root string) string {
	rel, err := filepath.Rel(root, filePath)
	if err != nil {
		rel = filePath
	}
	return strings.TrimSuffix(filepath.ToSlash(rel), ".csv")
}

func columnIndex(header []string) (map[string]int, error) {
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.TrimSpace(name)] = i
	}
	var missing []string
	for _, name := range requiredColumns {
		if _, ok := cols[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required CSV columns: %s", strings.Join(missing, ", "))
	}
	return cols, nil
}

func parseRow(row []string, cols map[string]int) (Event, error) {
	field := func(name string) string {
		i := cols[name]
		if i >= len(row) {
			return ""
		}
		return row[i]
	}

	seq, err := parseIntField(field("Sequence"), "Sequence")
	if err != nil {
		return Event{}, err
	}
	timeMs, err := parseIntField(field("Time"), "Time")
	if err != nil {
		return Event{}, err
	}
	offset, err := parseIntField(field("RangeOffset"), "RangeOffset")
	if err != nil {
		return Event{}, err
	}
	length, err := parseIntField(field("RangeLength"), "RangeLength")
	if err != nil {
		return Event{}, err
	}

	rawType := field("Type")
	ev := Event{
		Sequence:    seq,
		TimeMs:      timeMs,
		File:        field("File"),
		RangeOffset: int(offset),
		RangeLength: int(length),
		Text:        optional(field("Text")),
		Language:    optional(field("Language")),
		Kind:        ParseKind(rawType),
		RawType:     rawType,
	}
	return ev, nil
}

// parseIntField accepts plain integers and the float renderings some
// exporters produce for integer columns ("12.0").
func parseIntField(s, name string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int64(f), nil
	}
	return 0, fmt.Errorf("column %s: not a number: %q", name, s)
}

// optional maps an empty CSV field to an absent payload.
func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
