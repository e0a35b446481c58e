package corpus

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const schema = `
PRAGMA journal_mode = WAL;
PRAGMA synchronous = NORMAL;
PRAGMA cache_size = -64000;
PRAGMA busy_timeout = 5000;

CREATE TABLE IF NOT EXISTS sessions (
    session_key      TEXT PRIMARY KEY,
    file_path        TEXT NOT NULL,
    split            TEXT NOT NULL DEFAULT 'train',
    events           INTEGER NOT NULL DEFAULT 0,
    transcript_chars INTEGER NOT NULL DEFAULT 0,
    mtime            INTEGER NOT NULL DEFAULT 0,
    size             INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS docs (
    session_key TEXT NOT NULL,
    doc_id      INTEGER NOT NULL,
    split       TEXT NOT NULL,
    text        TEXT NOT NULL,
    PRIMARY KEY (session_key, doc_id)
);

CREATE VIRTUAL TABLE IF NOT EXISTS docs_fts USING fts5(
    text,
    content=docs,
    content_rowid=rowid,
    tokenize='unicode61'
);

-- triggers to keep FTS in sync
CREATE TRIGGER IF NOT EXISTS docs_ai AFTER INSERT ON docs BEGIN
    INSERT INTO docs_fts(rowid, text) VALUES (new.rowid, new.text);
END;

CREATE TRIGGER IF NOT EXISTS docs_ad AFTER DELETE ON docs BEGIN
    INSERT INTO docs_fts(docs_fts, rowid, text) VALUES('delete', old.rowid, old.text);
END;

CREATE TRIGGER IF NOT EXISTS docs_au AFTER UPDATE ON docs BEGIN
    INSERT INTO docs_fts(docs_fts, rowid, text) VALUES('delete', old.rowid, old.text);
    INSERT INTO docs_fts(rowid, text) VALUES (new.rowid, new.text);
END;

CREATE TABLE IF NOT EXISTS meta (key TEXT PRIMARY KEY, value TEXT);
`

// schemaVersion should be bumped whenever replay or chunking semantics
// change, to force a full re-serialize.
const schemaVersion = "1"

type DB struct {
	db *sql.DB
}

func OpenDB(dbPath string) (*DB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	d := &DB{db: db}
	d.migrateSchemaVersion()
	return d, nil
}

func (d *DB) migrateSchemaVersion() {
	var ver string
	err := d.db.QueryRow("SELECT value FROM meta WHERE key = 'schema_version'").Scan(&ver)
	if err != nil || ver != schemaVersion {
		// force re-serialize by resetting all session mtime/size to 0
		d.db.Exec("UPDATE sessions SET mtime = 0, size = 0")
		d.db.Exec("INSERT OR REPLACE INTO meta (key, value) VALUES ('schema_version', ?)", schemaVersion)
	}
}

func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) Raw() *sql.DB {
	return d.db
}

// SetMeta records a key/value pair in the meta table (run id, run time).
func (d *DB) SetMeta(key, value string) error {
	_, err := d.db.Exec("INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)", key, value)
	return err
}

func (d *DB) GetMeta(key string) (string, error) {
	var v string
	err := d.db.QueryRow("SELECT value FROM meta WHERE key = ?", key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return v, err
}

// SessionInfo is the change-detection fingerprint of a stored session.
type SessionInfo struct {
	Mtime int64
	Size  int64
	Split string
}

func (d *DB) GetSessionInfo(sessionKey string) (*SessionInfo, error) {
	var info SessionInfo
	err := d.db.QueryRow(
		"SELECT mtime, size, split FROM sessions WHERE session_key = ?",
		sessionKey,
	).Scan(&info.Mtime, &info.Size, &info.Split)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &info, nil
}

func (d *DB) AllSessionKeys() (map[string]struct{}, error) {
	rows, err := d.db.Query("SELECT session_key FROM sessions")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := make(map[string]struct{})
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys[k] = struct{}{}
	}
	return keys, rows.Err()
}

func (d *DB) DeleteSession(sessionKey string) error {
	tx, err := d.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM docs WHERE session_key = ?", sessionKey); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM sessions WHERE session_key = ?", sessionKey); err != nil {
		return err
	}
	return tx.Commit()
}

func (d *DB) SessionCount() (int, error) {
	var n int
	err := d.db.QueryRow("SELECT COUNT(*) FROM sessions").Scan(&n)
	return n, err
}

func (d *DB) DocCount() (int, error) {
	var n int
	err := d.db.QueryRow("SELECT COUNT(*) FROM docs").Scan(&n)
	return n, err
}

func (d *DB) DocCountBySplit(split string) (int, error) {
	var n int
	err := d.db.QueryRow("SELECT COUNT(*) FROM docs WHERE split = ?", split).Scan(&n)
	return n, err
}

type SessionRow struct {
	SessionKey      string
	FilePath        string
	Split           string
	Events          int
	TranscriptChars int
}

func (d *DB) GetSessionByKey(sessionKey string) (*SessionRow, error) {
	var s SessionRow
	err := d.db.QueryRow(
		"SELECT session_key, file_path, split, events, transcript_chars FROM sessions WHERE session_key = ?",
		sessionKey,
	).Scan(&s.SessionKey, &s.FilePath, &s.Split, &s.Events, &s.TranscriptChars)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

type DocRow struct {
	SessionKey string
	DocID      int
	Split      string
	Text       string
}

func (d *DB) GetDocs(sessionKey string) ([]DocRow, error) {
	rows, err := d.db.Query(
		"SELECT session_key, doc_id, split, text FROM docs WHERE session_key = ? ORDER BY doc_id",
		sessionKey,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []DocRow
	for rows.Next() {
		var c DocRow
		if err := rows.Scan(&c.SessionKey, &c.DocID, &c.Split, &c.Text); err != nil {
			return nil, err
		}
		docs = append(docs, c)
	}
	return docs, rows.Err()
}

// GetDocsWindow returns a window of docs around a hit doc, loading only the
// necessary rows. startPos is the number of docs before the returned window;
// totalCount is the total number of docs in the session.
func (d *DB) GetDocsWindow(sessionKey string, hitDocID, context int) (docs []DocRow, hitIdx int, startPos int, totalCount int, err error) {
	err = d.db.QueryRow(
		"SELECT COUNT(*) FROM docs WHERE session_key = ?", sessionKey,
	).Scan(&totalCount)
	if err != nil {
		return nil, -1, 0, 0, err
	}

	// find the 0-based position of the hit doc
	hitPos := -1
	if hitDocID >= 0 {
		err = d.db.QueryRow(`
			SELECT pos FROM (
				SELECT doc_id, ROW_NUMBER() OVER (ORDER BY doc_id) - 1 AS pos
				FROM docs WHERE session_key = ?
			) WHERE doc_id = ?`,
			sessionKey, hitDocID,
		).Scan(&hitPos)
		if err == sql.ErrNoRows {
			hitPos = -1
			err = nil
		} else if err != nil {
			return nil, -1, 0, 0, err
		}
	}

	startPos = 0
	limit := totalCount
	if hitPos >= 0 {
		startPos = hitPos - context
		if startPos < 0 {
			startPos = 0
		}
		endPos := hitPos + context + 1
		if endPos > totalCount {
			endPos = totalCount
		}
		limit = endPos - startPos
	}

	rows, err := d.db.Query(
		"SELECT session_key, doc_id, split, text FROM docs WHERE session_key = ? ORDER BY doc_id LIMIT ? OFFSET ?",
		sessionKey, limit, startPos,
	)
	if err != nil {
		return nil, -1, 0, 0, err
	}
	defer rows.Close()

	var result []DocRow
	localHitIdx := -1
	for rows.Next() {
		var c DocRow
		if err := rows.Scan(&c.SessionKey, &c.DocID, &c.Split, &c.Text); err != nil {
			return nil, -1, 0, 0, err
		}
		if c.DocID == hitDocID {
			localHitIdx = len(result)
		}
		result = append(result, c)
	}
	return result, localHitIdx, startPos, totalCount, rows.Err()
}

// WalkDocsBySplit streams every doc of one split in (session_key, doc_id)
// order. Used by shard export.
func (d *DB) WalkDocsBySplit(split string, fn func(DocRow) error) error {
	rows, err := d.db.Query(
		"SELECT session_key, doc_id, split, text FROM docs WHERE split = ? ORDER BY session_key, doc_id",
		split,
	)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var c DocRow
		if err := rows.Scan(&c.SessionKey, &c.DocID, &c.Split, &c.Text); err != nil {
			return err
		}
		if err := fn(c); err != nil {
			return err
		}
	}
	return rows.Err()
}

// ListSessions returns all sessions ordered by key, optionally filtered by
// split.
func (d *DB) ListSessions(split string, limit int) ([]SessionRow, error) {
	q := "SELECT session_key, file_path, split, events, transcript_chars FROM sessions"
	var args []interface{}
	if split != "" {
		q += " WHERE split = ?"
		args = append(args, split)
	}
	q += " ORDER BY session_key"
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := d.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []SessionRow
	for rows.Next() {
		var s SessionRow
		if err := rows.Scan(&s.SessionKey, &s.FilePath, &s.Split, &s.Events, &s.TranscriptChars); err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}
