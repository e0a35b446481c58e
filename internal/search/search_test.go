package search_test

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/dkempner/codereel/internal/corpus"
	"github.com/dkempner/codereel/internal/search"
)

// seedDB builds a corpus with a few hand-placed sessions and docs.
func seedDB(t *testing.T) *corpus.DB {
	t.Helper()
	db, err := corpus.OpenDB(filepath.Join(t.TempDir(), "corpus.db"))
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	type doc struct {
		key, split, path string
		docID            int
		text             string
	}
	docs := []doc{
		{"proj/alpha", "train", "/r/proj/alpha.csv", 0, "<act terminal_command />\n```bash\ngrep needle main.go\n```"},
		{"proj/alpha", "train", "/r/proj/alpha.csv", 1, "second doc also mentions needle twice needle"},
		{"proj/beta", "val", "/r/proj/beta.csv", 0, "<act focus file=\"app.py\" />\nnothing special here"},
		{"proj/gamma", "train", "/r/proj/gamma.csv", 0, "日本語のテキストを含むセッション"},
	}

	seen := map[string]bool{}
	for _, d := range docs {
		if !seen[d.key] {
			seen[d.key] = true
			_, err := db.Raw().Exec(
				`INSERT INTO sessions (session_key, file_path, split) VALUES (?, ?, ?)`,
				d.key, d.path, d.split)
			if err != nil {
				t.Fatal(err)
			}
		}
		_, err := db.Raw().Exec(
			`INSERT INTO docs (session_key, doc_id, split, text) VALUES (?, ?, ?, ?)`,
			d.key, d.docID, d.split, d.text)
		if err != nil {
			t.Fatal(err)
		}
	}
	return db
}

func TestSearchFTS(t *testing.T) {
	db := seedDB(t)

	results, err := search.Search(db, search.Options{Query: "needle"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	// Both hits live in proj/alpha; dedup leaves one result per session.
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1 (per-session dedup): %+v", len(results), results)
	}
	r := results[0]
	if r.SessionKey != "proj/alpha" || r.Split != "train" {
		t.Errorf("result = %+v", r)
	}
	if r.FilePath != "/r/proj/alpha.csv" {
		t.Errorf("FilePath = %q", r.FilePath)
	}
	if !strings.Contains(r.Snippet, ">>>") || !strings.Contains(r.Snippet, "<<<") {
		t.Errorf("snippet missing hit markers: %q", r.Snippet)
	}
}

func TestSearchNoResults(t *testing.T) {
	db := seedDB(t)

	results, err := search.Search(db, search.Options{Query: "zzznothing"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("got %d results, want none", len(results))
	}
}

func TestSearchSplitFilter(t *testing.T) {
	db := seedDB(t)

	results, err := search.Search(db, search.Options{Query: "nothing", Split: "train"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("train filter leaked val docs: %+v", results)
	}

	results, err = search.Search(db, search.Options{Query: "nothing", Split: "val"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].SessionKey != "proj/beta" {
		t.Errorf("val results = %+v", results)
	}
}

func TestSearchCJKFallback(t *testing.T) {
	db := seedDB(t)

	results, err := search.Search(db, search.Options{Query: "日本語"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].SessionKey != "proj/gamma" {
		t.Fatalf("CJK results = %+v", results)
	}
	if !strings.Contains(results[0].Snippet, ">>>日本語<<<") {
		t.Errorf("CJK snippet = %q", results[0].Snippet)
	}
}

func TestSearchCJKSnippetAfterCaseFoldingRunes(t *testing.T) {
	// U+212A (Kelvin sign) lowercases to a shorter encoding; snippet offsets
	// must still land on the match when such runes precede it.
	db, err := corpus.OpenDB(filepath.Join(t.TempDir(), "corpus.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	if _, err := db.Raw().Exec(
		`INSERT INTO sessions (session_key, file_path, split) VALUES ('s', '/s.csv', 'train')`); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Raw().Exec(
		`INSERT INTO docs (session_key, doc_id, split, text) VALUES ('s', 0, 'train', ?)`,
		"KKK日本語データ"); err != nil {
		t.Fatal(err)
	}

	results, err := search.Search(db, search.Options{Query: "日本語"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("results = %+v", results)
	}
	if !strings.Contains(results[0].Snippet, ">>>日本語<<<") {
		t.Errorf("hit markers misplaced: %q", results[0].Snippet)
	}
}

func TestListAll(t *testing.T) {
	db := seedDB(t)

	results, err := search.ListAll(db, search.Options{})
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d sessions, want 3", len(results))
	}
	// Ordered by session key; snippet is the head of doc 0.
	if results[0].SessionKey != "proj/alpha" || results[0].DocID != 0 {
		t.Errorf("first result = %+v", results[0])
	}
	if results[1].SessionKey != "proj/beta" || results[2].SessionKey != "proj/gamma" {
		t.Errorf("order wrong: %+v", results)
	}

	results, err = search.ListAll(db, search.Options{Split: "val"})
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if len(results) != 1 || results[0].SessionKey != "proj/beta" {
		t.Errorf("val list = %+v", results)
	}

	results, err = search.ListAll(db, search.Options{Limit: 2})
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if len(results) != 2 {
		t.Errorf("limit ignored: %d results", len(results))
	}
}

func TestListAllTruncatesLongHead(t *testing.T) {
	db, err := corpus.OpenDB(filepath.Join(t.TempDir(), "corpus.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	long := strings.Repeat("x", 200)
	if _, err := db.Raw().Exec(
		`INSERT INTO sessions (session_key, file_path, split) VALUES ('s', '/s.csv', 'train')`); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Raw().Exec(
		`INSERT INTO docs (session_key, doc_id, split, text) VALUES ('s', 0, 'train', ?)`, long); err != nil {
		t.Fatal(err)
	}

	results, err := search.ListAll(db, search.Options{})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("results = %+v", results)
	}
	if got := results[0].Snippet; len([]rune(got)) != 83 || !strings.HasSuffix(got, "...") {
		t.Errorf("snippet not truncated to 80 runes + ellipsis: %d runes", len([]rune(got)))
	}
}
