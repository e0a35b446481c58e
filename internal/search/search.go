package search

import (
	"database/sql"
	"fmt"
	"strings"
	"unicode"

	"github.com/dkempner/codereel/internal/corpus"
)

type Result struct {
	SessionKey string
	DocID      int
	Split      string
	FilePath   string
	Snippet    string
	Rank       float64
}

type Options struct {
	Query string
	Split string // "" = all, "train", "val"
	Limit int
}

// containsCJK returns true if the string contains any CJK Unified Ideograph.
// FTS5's unicode61 tokenizer cannot match those as substrings, so CJK
// queries fall back to LIKE.
func containsCJK(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Han, r) {
			return true
		}
	}
	return false
}

// makeSnippet extracts a snippet around the first occurrence of query in text.
// Matching folds case per rune rather than via strings.ToLower: a lowered
// copy can change byte length (U+212A and friends), which would skew the
// offsets back into the original string.
func makeSnippet(text, query string, contextChars int) string {
	runes := []rune(text)
	qRunes := []rune(query)
	runePos := runeIndexFold(runes, qRunes)
	if runePos < 0 {
		// no match, return head
		if len(runes) > contextChars*2 {
			return string(runes[:contextChars*2]) + "..."
		}
		return text
	}
	start := runePos - contextChars
	if start < 0 {
		start = 0
	}
	end := runePos + len(qRunes) + contextChars
	if end > len(runes) {
		end = len(runes)
	}
	prefix := ""
	suffix := ""
	if start > 0 {
		prefix = "..."
	}
	if end < len(runes) {
		suffix = "..."
	}
	snippet := string(runes[start:runePos]) +
		">>>" + string(runes[runePos:runePos+len(qRunes)]) + "<<<" +
		string(runes[runePos+len(qRunes):end])
	return prefix + snippet + suffix
}

// runeIndexFold returns the rune index of the first case-insensitive
// occurrence of needle in haystack, or -1 if absent.
func runeIndexFold(haystack, needle []rune) int {
	if len(needle) == 0 {
		return -1
	}
	for i := 0; i+len(needle) <= len(haystack); i++ {
		match := true
		for j, r := range needle {
			if unicode.ToLower(haystack[i+j]) != unicode.ToLower(r) {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

// Search runs a full-text query over the corpus docs and returns the
// best-ranked hit per session.
func Search(db *corpus.DB, opts Options) ([]Result, error) {
	if opts.Limit <= 0 {
		opts.Limit = 100
	}

	// Fetch more results before dedup so we still have enough after
	origLimit := opts.Limit
	opts.Limit = origLimit * 3

	var results []Result
	var err error
	if containsCJK(opts.Query) {
		results, err = searchLike(db, opts)
	} else {
		results, err = searchFTS(db, opts)
	}
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var deduped []Result
	for _, r := range results {
		if seen[r.SessionKey] {
			continue
		}
		seen[r.SessionKey] = true
		deduped = append(deduped, r)
		if len(deduped) >= origLimit {
			break
		}
	}
	return deduped, nil
}

func searchFTS(db *corpus.DB, opts Options) ([]Result, error) {
	conditions := []string{"docs_fts MATCH ?"}
	args := []interface{}{opts.Query}

	if opts.Split != "" {
		conditions = append(conditions, "d.split = ?")
		args = append(args, opts.Split)
	}

	where := strings.Join(conditions, " AND ")

	query := fmt.Sprintf(`
		SELECT
			d.session_key,
			d.doc_id,
			d.split,
			s.file_path,
			snippet(docs_fts, 0, '>>>','<<<', '...', 40) as snip,
			bm25(docs_fts, 1.0) as rank
		FROM docs_fts
		JOIN docs d ON docs_fts.rowid = d.rowid
		JOIN sessions s ON d.session_key = s.session_key
		WHERE %s
		ORDER BY rank
		LIMIT ?
	`, where)

	args = append(args, opts.Limit)

	rows, err := db.Raw().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("search query: %w", err)
	}
	defer rows.Close()

	return scanResults(rows)
}

func searchLike(db *corpus.DB, opts Options) ([]Result, error) {
	conditions := []string{"d.text LIKE ?"}
	args := []interface{}{"%" + opts.Query + "%"}

	if opts.Split != "" {
		conditions = append(conditions, "d.split = ?")
		args = append(args, opts.Split)
	}

	where := strings.Join(conditions, " AND ")

	query := fmt.Sprintf(`
		SELECT
			d.session_key,
			d.doc_id,
			d.split,
			s.file_path,
			d.text
		FROM docs d
		JOIN sessions s ON d.session_key = s.session_key
		WHERE %s
		ORDER BY d.session_key, d.doc_id
		LIMIT ?
	`, where)

	args = append(args, opts.Limit)

	rows, err := db.Raw().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("search query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var fullText string
		if err := rows.Scan(&r.SessionKey, &r.DocID, &r.Split, &r.FilePath, &fullText); err != nil {
			return nil, err
		}
		r.Snippet = makeSnippet(fullText, opts.Query, 30)
		results = append(results, r)
	}
	return results, rows.Err()
}

func scanResults(rows *sql.Rows) ([]Result, error) {
	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.SessionKey, &r.DocID, &r.Split, &r.FilePath, &r.Snippet, &r.Rank); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// ListAll returns one Result per session (its first doc as the snippet),
// ordered by session key. Used by the TUI list mode.
func ListAll(db *corpus.DB, opts Options) ([]Result, error) {
	conditions := []string{"d.doc_id = 0"}
	var args []interface{}

	if opts.Split != "" {
		conditions = append(conditions, "s.split = ?")
		args = append(args, opts.Split)
	}

	where := strings.Join(conditions, " AND ")

	query := fmt.Sprintf(`
		SELECT
			s.session_key,
			d.doc_id,
			s.split,
			s.file_path,
			d.text
		FROM sessions s
		JOIN docs d ON d.session_key = s.session_key
		WHERE %s
		ORDER BY s.session_key
	`, where)

	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := db.Raw().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var head string
		if err := rows.Scan(&r.SessionKey, &r.DocID, &r.Split, &r.FilePath, &head); err != nil {
			return nil, err
		}
		if len([]rune(head)) > 80 {
			head = string([]rune(head)[:80]) + "..."
		}
		r.Snippet = head
		results = append(results, r)
	}
	return results, rows.Err()
}
