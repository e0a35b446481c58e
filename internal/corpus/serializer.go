package corpus

import (
	"fmt"
	"math/rand"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dkempner/codereel/internal/chunk"
	"github.com/dkempner/codereel/internal/config"
	"github.com/dkempner/codereel/internal/parse"
	"github.com/dkempner/codereel/internal/replay"
	"github.com/dkempner/codereel/internal/scan"
)

type Stats struct {
	Scanned   int
	Updated   int
	Skipped   int
	TooShort  int
	Pruned    int
	Errors    int
	TrainDocs int
	ValDocs   int
}

func (s Stats) String() string {
	return fmt.Sprintf("scanned=%d updated=%d skipped=%d too_short=%d pruned=%d errors=%d train_docs=%d val_docs=%d",
		s.Scanned, s.Updated, s.Skipped, s.TooShort, s.Pruned, s.Errors, s.TrainDocs, s.ValDocs)
}

// job is one session file that needs (re-)serialization.
type job struct {
	file  scan.FileInfo
	key   string
	split string
}

// outcome carries a replayed and chunked session back to the single writer.
type outcome struct {
	job
	docs            []string
	events          int
	transcriptChars int
	tooShort        bool
	err             error
}

// SerializeAll rebuilds the corpus from the session CSVs under cfg.CSVRoot.
//
// Sessions are shuffled with the configured seed over the sorted file list
// and the tail of the permutation routed to the validation split, so split
// assignment is deterministic for a fixed file set. Replay is farmed out to
// workers (each session owns its replay state, so there is nothing to
// coordinate); all database writes go through this goroutine.
func SerializeAll(db *DB, cfg *config.Config, logf func(format string, args ...interface{})) (Stats, error) {
	if logf == nil {
		logf = func(string, ...interface{}) {}
	}

	var stats Stats

	files, err := scan.ScanRoot(cfg.CSVRoot)
	if err != nil {
		return stats, fmt.Errorf("scan: %w", err)
	}
	stats.Scanned = len(files)

	rng := rand.New(rand.NewSource(cfg.Seed))
	shuffled := make([]scan.FileInfo, len(files))
	copy(shuffled, files)
	rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	valCount := int(float64(len(shuffled)) * cfg.ValRatio)
	trainCount := len(shuffled) - valCount

	// track which sessions we see, for pruning
	seenKeys := make(map[string]struct{}, len(shuffled))

	var jobs []job
	for i, fi := range shuffled {
		split := "train"
		if i >= trainCount {
			split = "val"
		}
		key := parse.SessionKey(fi.Path, cfg.CSVRoot)
		seenKeys[key] = struct{}{}

		info, err := db.GetSessionInfo(key)
		if err != nil {
			stats.Errors++
			continue
		}
		// Unchanged file with unchanged split assignment: docs are current.
		if info != nil && info.Mtime == fi.Mtime && info.Size == fi.Size && info.Split == split {
			stats.Skipped++
			continue
		}
		jobs = append(jobs, job{file: fi, key: key, split: split})
	}

	docsWritten := 0
	for out := range runWorkers(jobs, cfg) {
		if out.err != nil {
			stats.Errors++
			logf("  WARN: %s: %v", out.file.Path, out.err)
			continue
		}
		if out.tooShort {
			stats.TooShort++
			logf("  skip %s: transcript too short (%d chars)", out.file.Path, out.transcriptChars)
			// a session stored by an earlier run must not linger once it
			// falls under the threshold
			if err := db.DeleteSession(out.key); err != nil {
				stats.Errors++
			}
			continue
		}
		if cfg.MaxDocs > 0 && docsWritten >= cfg.MaxDocs {
			continue // cap reached; keep draining workers
		}

		if err := writeSession(db, out); err != nil {
			stats.Errors++
			logf("  WARN: store %s: %v", out.file.Path, err)
			continue
		}
		stats.Updated++
		docsWritten += len(out.docs)
		if out.split == "val" {
			stats.ValDocs += len(out.docs)
		} else {
			stats.TrainDocs += len(out.docs)
		}
	}

	pruned, err := pruneSessions(db, seenKeys)
	if err != nil {
		return stats, fmt.Errorf("prune: %w", err)
	}
	stats.Pruned = pruned

	if err := db.SetMeta("last_run_id", uuid.NewString()); err != nil {
		return stats, fmt.Errorf("record run id: %w", err)
	}
	if err := db.SetMeta("last_run_at", time.Now().UTC().Format(time.RFC3339)); err != nil {
		return stats, fmt.Errorf("record run time: %w", err)
	}

	return stats, nil
}

// runWorkers replays sessions concurrently and returns the outcome stream.
// The returned channel closes once every job has been processed.
func runWorkers(jobs []job, cfg *config.Config) <-chan outcome {
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	in := make(chan job)
	out := make(chan outcome)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range in {
				out <- replayJob(j, cfg)
			}
		}()
	}

	go func() {
		for _, j := range jobs {
			in <- j
		}
		close(in)
	}()
	go func() {
		wg.Wait()
		close(out)
	}()

	return out
}

func replayJob(j job, cfg *config.Config) outcome {
	o := outcome{job: j}

	sess, err := parse.ParseSession(j.file.Path, cfg.CSVRoot)
	if err != nil {
		o.err = fmt.Errorf("parse: %w", err)
		return o
	}
	o.events = len(sess.Events)

	res, err := replay.Replay(sess.Events, replay.Options{LongPauseThresholdMs: cfg.LongPauseMs})
	if err != nil {
		o.err = fmt.Errorf("replay: %w", err)
		return o
	}

	o.transcriptChars = len([]rune(res.Transcript))
	if o.transcriptChars < cfg.MinSessionChars {
		o.tooShort = true
		return o
	}

	o.docs = chunk.Split(res.Transcript, cfg.TargetChars, cfg.OverlapChars)
	return o
}

func writeSession(db *DB, out outcome) error {
	// delete old data first
	if err := db.DeleteSession(out.key); err != nil {
		return err
	}

	tx, err := db.Raw().Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO sessions (session_key, file_path, split, events, transcript_chars, mtime, size)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		out.key,
		out.file.Path,
		out.split,
		out.events,
		out.transcriptChars,
		out.file.Mtime,
		out.file.Size,
	)
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(
		`INSERT INTO docs (session_key, doc_id, split, text) VALUES (?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, text := range out.docs {
		if _, err := stmt.Exec(out.key, i, out.split, text); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func pruneSessions(db *DB, seenKeys map[string]struct{}) (int, error) {
	allKeys, err := db.AllSessionKeys()
	if err != nil {
		return 0, err
	}

	pruned := 0
	for key := range allKeys {
		if _, ok := seenKeys[key]; !ok {
			if err := db.DeleteSession(key); err != nil {
				return pruned, err
			}
			pruned++
		}
	}
	return pruned, nil
}
