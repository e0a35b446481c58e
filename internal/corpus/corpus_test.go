package corpus_test

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"

	"github.com/dkempner/codereel/internal/config"
	"github.com/dkempner/codereel/internal/corpus"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		CSVRoot:         t.TempDir(),
		DBPath:          filepath.Join(t.TempDir(), "corpus.db"),
		ExportDir:       t.TempDir(),
		TargetChars:     120,
		OverlapChars:    10,
		MinSessionChars: 10,
		LongPauseMs:     120000,
		ValRatio:        0,
		Seed:            42,
		ShardSize:       20000,
		Workers:         1,
	}
}

// writeSessionCSV writes a session whose replay yields one terminal command
// fence per word.
func writeSessionCSV(t *testing.T, root, rel string, words ...string) {
	t.Helper()
	var sb strings.Builder
	sb.WriteString("Sequence,Time,File,RangeOffset,RangeLength,Text,Language,Type\n")
	for i, w := range words {
		fmt.Fprintf(&sb, "%d,%d,,0,0,%s,,terminal_command\n", i+1, (i+1)*1000, w)
	}
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		t.Fatal(err)
	}
}

func openTestDB(t *testing.T, cfg *config.Config) *corpus.DB {
	t.Helper()
	db, err := corpus.OpenDB(cfg.DBPath)
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSerializeAllRoundTrip(t *testing.T) {
	cfg := testConfig(t)
	writeSessionCSV(t, cfg.CSVRoot, "a.csv", "make", "build")
	writeSessionCSV(t, cfg.CSVRoot, "sub/b.csv", "go", "test")
	db := openTestDB(t, cfg)

	stats, err := corpus.SerializeAll(db, cfg, nil)
	if err != nil {
		t.Fatalf("SerializeAll: %v", err)
	}
	if stats.Scanned != 2 || stats.Updated != 2 || stats.Skipped != 0 || stats.Errors != 0 {
		t.Errorf("first run stats = %+v", stats)
	}

	n, err := db.SessionCount()
	if err != nil || n != 2 {
		t.Fatalf("SessionCount = %d, %v", n, err)
	}

	sess, err := db.GetSessionByKey("sub/b")
	if err != nil || sess == nil {
		t.Fatalf("GetSessionByKey: %v, %v", sess, err)
	}
	if sess.Split != "train" || sess.Events != 2 {
		t.Errorf("session = %+v", sess)
	}

	docs, err := db.GetDocs("sub/b")
	if err != nil || len(docs) == 0 {
		t.Fatalf("GetDocs: %v, %v", docs, err)
	}
	if !strings.Contains(docs[0].Text, "<act terminal_command />") {
		t.Errorf("doc text missing marker:\n%s", docs[0].Text)
	}
	if !strings.Contains(docs[0].Text, "```bash\ngo\n```") {
		t.Errorf("doc text missing command fence:\n%s", docs[0].Text)
	}

	if runID, err := db.GetMeta("last_run_id"); err != nil || runID == "" {
		t.Errorf("last_run_id = %q, %v", runID, err)
	}

	// Second run: nothing changed on disk, everything is skipped.
	stats, err = corpus.SerializeAll(db, cfg, nil)
	if err != nil {
		t.Fatalf("SerializeAll (rerun): %v", err)
	}
	if stats.Skipped != 2 || stats.Updated != 0 {
		t.Errorf("rerun stats = %+v, want all skipped", stats)
	}
}

func TestSerializeAllTooShort(t *testing.T) {
	cfg := testConfig(t)
	cfg.MinSessionChars = 100000
	writeSessionCSV(t, cfg.CSVRoot, "tiny.csv", "ls")
	db := openTestDB(t, cfg)

	stats, err := corpus.SerializeAll(db, cfg, nil)
	if err != nil {
		t.Fatalf("SerializeAll: %v", err)
	}
	if stats.TooShort != 1 || stats.Updated != 0 {
		t.Errorf("stats = %+v", stats)
	}
	if n, _ := db.SessionCount(); n != 0 {
		t.Errorf("too-short session was stored anyway (%d sessions)", n)
	}
}

func TestSerializeAllShrunkSessionIsDropped(t *testing.T) {
	// A stored session whose recording shrinks under the threshold must be
	// removed on the next run, not linger with stale docs.
	cfg := testConfig(t)
	writeSessionCSV(t, cfg.CSVRoot, "s.csv", "one", "two", "three")
	db := openTestDB(t, cfg)

	if _, err := corpus.SerializeAll(db, cfg, nil); err != nil {
		t.Fatal(err)
	}
	if n, _ := db.SessionCount(); n != 1 {
		t.Fatalf("session not stored")
	}

	cfg.MinSessionChars = 100000
	writeSessionCSV(t, cfg.CSVRoot, "s.csv", "one") // touch the file too
	stats, err := corpus.SerializeAll(db, cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	if stats.TooShort != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if n, _ := db.SessionCount(); n != 0 {
		t.Errorf("shrunk session still stored")
	}
}

func TestSerializeAllPrune(t *testing.T) {
	cfg := testConfig(t)
	writeSessionCSV(t, cfg.CSVRoot, "keep.csv", "aa", "bb")
	writeSessionCSV(t, cfg.CSVRoot, "gone.csv", "cc", "dd")
	db := openTestDB(t, cfg)

	if _, err := corpus.SerializeAll(db, cfg, nil); err != nil {
		t.Fatal(err)
	}

	if err := os.Remove(filepath.Join(cfg.CSVRoot, "gone.csv")); err != nil {
		t.Fatal(err)
	}

	stats, err := corpus.SerializeAll(db, cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Pruned != 1 {
		t.Errorf("Pruned = %d, want 1", stats.Pruned)
	}
	if n, _ := db.SessionCount(); n != 1 {
		t.Errorf("SessionCount = %d, want 1", n)
	}
	if sess, _ := db.GetSessionByKey("gone"); sess != nil {
		t.Error("vanished session still present")
	}
}

func TestSerializeAllSplitDeterministic(t *testing.T) {
	cfg := testConfig(t)
	cfg.ValRatio = 0.2
	for i := 0; i < 10; i++ {
		writeSessionCSV(t, cfg.CSVRoot, fmt.Sprintf("s%02d.csv", i), "cmd", "run")
	}

	splits := func(dbPath string) map[string]string {
		cfg2 := *cfg
		cfg2.DBPath = dbPath
		db := openTestDB(t, &cfg2)
		if _, err := corpus.SerializeAll(db, &cfg2, nil); err != nil {
			t.Fatal(err)
		}
		sessions, err := db.ListSessions("", 0)
		if err != nil {
			t.Fatal(err)
		}
		out := make(map[string]string, len(sessions))
		for _, s := range sessions {
			out[s.SessionKey] = s.Split
		}
		return out
	}

	first := splits(filepath.Join(t.TempDir(), "a.db"))
	second := splits(filepath.Join(t.TempDir(), "b.db"))

	valCount := 0
	for key, split := range first {
		if split == "val" {
			valCount++
		}
		if second[key] != split {
			t.Errorf("session %s split differs across runs: %s vs %s", key, split, second[key])
		}
	}
	if valCount != 2 {
		t.Errorf("val sessions = %d, want 2 of 10", valCount)
	}
}

func TestSerializeAllMaxDocs(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxDocs = 1
	for i := 0; i < 5; i++ {
		writeSessionCSV(t, cfg.CSVRoot, fmt.Sprintf("s%d.csv", i), "alpha", "beta")
	}
	db := openTestDB(t, cfg)

	stats, err := corpus.SerializeAll(db, cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Updated != 1 {
		t.Errorf("Updated = %d, want writes to stop after the cap", stats.Updated)
	}
	if n, _ := db.SessionCount(); n != 1 {
		t.Errorf("SessionCount = %d, want 1", n)
	}
}

func TestExportShards(t *testing.T) {
	cfg := testConfig(t)
	// Enough words that the transcript splits into several docs at 120 chars.
	words := make([]string, 20)
	for i := range words {
		words[i] = fmt.Sprintf("command%02d", i)
	}
	writeSessionCSV(t, cfg.CSVRoot, "big.csv", words...)
	db := openTestDB(t, cfg)

	if _, err := corpus.SerializeAll(db, cfg, nil); err != nil {
		t.Fatal(err)
	}
	docCount, err := db.DocCount()
	if err != nil {
		t.Fatal(err)
	}
	if docCount < 3 {
		t.Fatalf("expected several docs, got %d", docCount)
	}

	stats, err := corpus.ExportShards(db, cfg.ExportDir, 2)
	if err != nil {
		t.Fatalf("ExportShards: %v", err)
	}
	if stats.TrainDocs != docCount {
		t.Errorf("TrainDocs = %d, want %d", stats.TrainDocs, docCount)
	}
	wantShards := (docCount + 1) / 2
	if stats.TrainShards != wantShards {
		t.Errorf("TrainShards = %d, want %d", stats.TrainShards, wantShards)
	}
	if stats.ValShards != 0 || stats.ValDocs != 0 {
		t.Errorf("empty val split still produced shards: %+v", stats)
	}

	// Read every shard back and count the records.
	read := 0
	for i := 0; i < stats.TrainShards; i++ {
		name := filepath.Join(cfg.ExportDir, fmt.Sprintf("train_%05d.jsonl.gz", i))
		f, err := os.Open(name)
		if err != nil {
			t.Fatalf("shard %s missing: %v", name, err)
		}
		zr, err := gzip.NewReader(f)
		if err != nil {
			t.Fatalf("gzip %s: %v", name, err)
		}
		dec := json.NewDecoder(zr)
		for {
			var rec struct {
				Text string `json:"text"`
			}
			if err := dec.Decode(&rec); err == io.EOF {
				break
			} else if err != nil {
				t.Fatalf("decode %s: %v", name, err)
			}
			if rec.Text == "" {
				t.Errorf("empty text record in %s", name)
			}
			read++
		}
		zr.Close()
		f.Close()
	}
	if read != docCount {
		t.Errorf("read %d records from shards, want %d", read, docCount)
	}

	// No val shard files at all.
	if _, err := os.Stat(filepath.Join(cfg.ExportDir, "val_00000.jsonl.gz")); !os.IsNotExist(err) {
		t.Error("val shard file written for empty split")
	}
}

func TestSerializeAllReportsMetaFailure(t *testing.T) {
	cfg := testConfig(t)
	db := openTestDB(t, cfg)

	// With the meta table gone, the run bookkeeping at the end of a
	// serialize pass cannot be written; that must surface as an error.
	if _, err := db.Raw().Exec("DROP TABLE meta"); err != nil {
		t.Fatal(err)
	}

	_, err := corpus.SerializeAll(db, cfg, nil)
	if err == nil {
		t.Error("expected error when run metadata cannot be recorded")
	} else if !strings.Contains(err.Error(), "record run id") {
		t.Errorf("error = %v, want run-id recording failure", err)
	}
}

func TestMetaRoundTrip(t *testing.T) {
	cfg := testConfig(t)
	db := openTestDB(t, cfg)

	if v, err := db.GetMeta("absent"); err != nil || v != "" {
		t.Errorf("GetMeta(absent) = %q, %v", v, err)
	}
	if err := db.SetMeta("k", "v1"); err != nil {
		t.Fatal(err)
	}
	if err := db.SetMeta("k", "v2"); err != nil {
		t.Fatal(err)
	}
	if v, _ := db.GetMeta("k"); v != "v2" {
		t.Errorf("GetMeta(k) = %q, want v2", v)
	}
}

func TestGetDocsWindow(t *testing.T) {
	cfg := testConfig(t)
	db := openTestDB(t, cfg)

	_, err := db.Raw().Exec(
		`INSERT INTO sessions (session_key, file_path, split) VALUES ('s', '/tmp/s.csv', 'train')`)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		_, err := db.Raw().Exec(
			`INSERT INTO docs (session_key, doc_id, split, text) VALUES ('s', ?, 'train', ?)`,
			i, fmt.Sprintf("doc %d body", i))
		if err != nil {
			t.Fatal(err)
		}
	}

	docs, hitIdx, startPos, total, err := db.GetDocsWindow("s", 2, 1)
	if err != nil {
		t.Fatalf("GetDocsWindow: %v", err)
	}
	if total != 5 || startPos != 1 || hitIdx != 1 {
		t.Errorf("total=%d startPos=%d hitIdx=%d", total, startPos, hitIdx)
	}
	if len(docs) != 3 || docs[0].DocID != 1 || docs[2].DocID != 3 {
		t.Errorf("window docs = %+v", docs)
	}

	// hit doc that doesn't exist: whole session, no hit index
	docs, hitIdx, startPos, total, err = db.GetDocsWindow("s", 99, 1)
	if err != nil {
		t.Fatalf("GetDocsWindow: %v", err)
	}
	if len(docs) != 5 || hitIdx != -1 || startPos != 0 || total != 5 {
		t.Errorf("missing-hit window: docs=%d hitIdx=%d startPos=%d total=%d",
			len(docs), hitIdx, startPos, total)
	}
}

func TestDeleteSessionRemovesDocs(t *testing.T) {
	cfg := testConfig(t)
	writeSessionCSV(t, cfg.CSVRoot, "s.csv", "xx", "yy")
	db := openTestDB(t, cfg)

	if _, err := corpus.SerializeAll(db, cfg, nil); err != nil {
		t.Fatal(err)
	}
	if err := db.DeleteSession("s"); err != nil {
		t.Fatal(err)
	}
	if n, _ := db.DocCount(); n != 0 {
		t.Errorf("DocCount = %d after delete", n)
	}
	if docs, _ := db.GetDocs("s"); len(docs) != 0 {
		t.Errorf("docs remain after delete: %v", docs)
	}
}
