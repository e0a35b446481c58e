package render

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/dkempner/codereel/internal/corpus"
	"github.com/mattn/go-runewidth"
)

const (
	colorReset   = "\033[0m"
	colorAct     = "\033[1;32m" // bold green for action markers
	colorObs     = "\033[1;34m" // bold blue for observation markers
	colorComment = "\033[2;35m" // dim magenta for // annotation lines
	colorFence   = "\033[2;33m" // dim yellow for fence delimiters
	colorDim     = "\033[2m"
	colorHit     = "\033[43m"   // yellow background
	colorBoldRed = "\033[1;31m" // bold red for keyword highlights
)

type Options struct {
	HitDocID int
	Context  int    // docs before/after hit to show
	Width    int    // wrap width (0 = no wrap)
	Query    string // search query for keyword highlighting
}

// fts5Operators are FTS5 operators that should not be highlighted as keywords.
var fts5Operators = map[string]bool{
	"AND": true, "OR": true, "NOT": true, "NEAR": true,
	"and": true, "or": true, "not": true, "near": true,
}

// highlightKeywords wraps case-insensitive matches of query terms in bold red ANSI codes.
func highlightKeywords(text, query string) string {
	if query == "" {
		return text
	}
	terms := strings.Fields(query)
	var filtered []string
	for _, t := range terms {
		if !fts5Operators[t] {
			filtered = append(filtered, t)
		}
	}
	if len(filtered) == 0 {
		return text
	}
	for _, term := range filtered {
		lower := strings.ToLower(term)
		i := 0
		for i < len(text) {
			idx := strings.Index(strings.ToLower(text[i:]), lower)
			if idx < 0 {
				break
			}
			pos := i + idx
			orig := text[pos : pos+len(term)]
			replacement := colorBoldRed + orig + colorReset
			text = text[:pos] + replacement + text[pos+len(term):]
			i = pos + len(replacement)
		}
	}
	return text
}

// colorizeTranscript colors the marker vocabulary of a replayed transcript:
// <act .../> and <obs .../> lines, // annotation lines, and fence delimiters.
// Everything else (file and terminal content) is left untouched.
func colorizeTranscript(text string) string {
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		switch {
		case strings.HasPrefix(l, "<act "):
			lines[i] = colorAct + l + colorReset
		case strings.HasPrefix(l, "<obs "):
			lines[i] = colorObs + l + colorReset
		case strings.HasPrefix(l, "// "):
			lines[i] = colorComment + l + colorReset
		case strings.HasPrefix(l, "```"):
			lines[i] = colorFence + l + colorReset
		}
	}
	return strings.Join(lines, "\n")
}

// wrapLine breaks a single line into multiple lines that fit within maxWidth
// visible columns, correctly skipping ANSI escape sequences when measuring width.
func wrapLine(line string, maxWidth int) []string {
	if maxWidth <= 0 {
		return []string{line}
	}

	var result []string
	var cur strings.Builder
	visW := 0

	i := 0
	for i < len(line) {
		// check for ANSI escape sequence: ESC[ ... m
		if i+1 < len(line) && line[i] == '\033' && line[i+1] == '[' {
			j := i + 2
			for j < len(line) && line[j] != 'm' {
				j++
			}
			if j < len(line) {
				j++ // include 'm'
			}
			cur.WriteString(line[i:j])
			i = j
			continue
		}

		r, size := utf8.DecodeRuneInString(line[i:])
		rw := runewidth.RuneWidth(r)

		if visW+rw > maxWidth {
			result = append(result, cur.String())
			cur.Reset()
			visW = 0
		}

		cur.WriteRune(r)
		visW += rw
		i += size
	}

	if cur.Len() > 0 {
		result = append(result, cur.String())
	}

	if len(result) == 0 {
		return []string{""}
	}
	return result
}

// RenderSession renders a session's stored docs and returns the content,
// the 0-based line number of the hit doc header (-1 if no hit), and any error.
// Consecutive docs overlap by the configured chunk overlap; the doc headers
// make that visible rather than papering over it.
func RenderSession(db *corpus.DB, sessionKey string, opts Options) (string, int, error) {
	if opts.Context == 0 {
		opts.Context = 10
	}
	if opts.Context < 0 {
		opts.Context = 1000000 // no limit
	}

	session, err := db.GetSessionByKey(sessionKey)
	if err != nil {
		return "", -1, fmt.Errorf("get session: %w", err)
	}
	if session == nil {
		return "", -1, fmt.Errorf("session not found: %s", sessionKey)
	}

	docs, hitIdx, startPos, totalCount, err := db.GetDocsWindow(sessionKey, opts.HitDocID, opts.Context)
	if err != nil {
		return "", -1, fmt.Errorf("get docs: %w", err)
	}

	if totalCount == 0 {
		return "(empty session)", -1, nil
	}

	skipAfter := totalCount - startPos - len(docs)

	var b strings.Builder
	hitLine := -1
	lineCount := 0
	separator := colorDim + "--------------------------------------------------" + colorReset
	wrapW := opts.Width

	// helper to track line count; wraps long lines if Width is set
	writeLine := func(s string) {
		wrapped := wrapLine(s, wrapW)
		for _, wl := range wrapped {
			b.WriteString(wl)
			b.WriteString("\n")
			lineCount++
		}
	}

	writeLine(fmt.Sprintf("%s--- %s [%s] %s ---%s",
		colorDim, sessionKey, session.Split, session.FilePath, colorReset))

	if startPos > 0 {
		writeLine(fmt.Sprintf("%s... (%d docs before) ...%s", colorDim, startPos, colorReset))
	}

	for i, d := range docs {
		isHit := (i == hitIdx)

		if i > 0 {
			writeLine(separator)
		}

		if isHit {
			hitLine = lineCount
		}

		if isHit {
			writeLine(fmt.Sprintf("%s>> doc %d/%d <<%s", colorHit, d.DocID+1, totalCount, colorReset))
		} else {
			writeLine(fmt.Sprintf("%sdoc %d/%d%s", colorDim, d.DocID+1, totalCount, colorReset))
		}

		text := colorizeTranscript(d.Text)
		text = highlightKeywords(text, opts.Query)

		for _, tl := range strings.Split(text, "\n") {
			writeLine(tl)
		}
		writeLine("") // blank line after doc
	}

	if skipAfter > 0 {
		writeLine(fmt.Sprintf("%s... (%d docs after) ...%s", colorDim, skipAfter, colorReset))
	}

	return b.String(), hitLine, nil
}
