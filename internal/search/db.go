// Package search implements the Search Index (§4.7): an incremental
// full-text index over exported (or raw) sessions, backed by SQLite
// FTS5, with recency-adjusted ranking computed in Go.
package search

import (
	"database/sql"
	_ "embed"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/wesm/sessionctl/internal/sessionerr"
)

//go:embed schema.sql
var schemaSQL string

const schemaFTS = `
CREATE VIRTUAL TABLE IF NOT EXISTS documents_fts USING fts5(
    content,
    content='documents',
    content_rowid='id',
    tokenize='porter unicode61'
);

CREATE TRIGGER IF NOT EXISTS documents_ai AFTER INSERT ON documents BEGIN
    INSERT INTO documents_fts(rowid, content) VALUES (new.id, new.content);
END;

CREATE TRIGGER IF NOT EXISTS documents_ad AFTER DELETE ON documents BEGIN
    INSERT INTO documents_fts(documents_fts, rowid, content)
        VALUES('delete', old.id, old.content);
END;

CREATE TRIGGER IF NOT EXISTS documents_au AFTER UPDATE ON documents BEGIN
    INSERT INTO documents_fts(documents_fts, rowid, content)
        VALUES('delete', old.id, old.content);
    INSERT INTO documents_fts(rowid, content) VALUES (new.id, new.content);
END;
`

// DB is the Search Index's SQLite connection: a single writer
// serialized by mu, matching spec.md's "enforced by convention"
// single-writer contract rather than OS-level file locks.
type DB struct {
	path string
	conn *sql.DB
	mu   sync.Mutex
}

func makeDSN(path string) string {
	params := url.Values{}
	params.Set("_journal_mode", "WAL")
	params.Set("_busy_timeout", "5000")
	params.Set("_synchronous", "NORMAL")
	return path + "?" + params.Encode()
}

// Open creates or opens the search index database at path,
// initializing its schema (and FTS5 index, when the module is
// available) on first use.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, sessionerr.Wrap(sessionerr.IOError, "creating search index directory", err)
	}
	conn, err := sql.Open("sqlite3", makeDSN(path))
	if err != nil {
		return nil, sessionerr.Wrap(sessionerr.IOError, "opening search index", err)
	}
	conn.SetMaxOpenConns(1)

	db := &DB{path: path, conn: conn}
	if err := db.init(); err != nil {
		conn.Close()
		return nil, sessionerr.Wrap(sessionerr.IOError, "initializing search index schema", err)
	}
	return db, nil
}

func (db *DB) init() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, err := db.conn.Exec(schemaSQL); err != nil {
		return err
	}
	if _, err := db.conn.Exec(schemaFTS); err != nil {
		if !strings.Contains(err.Error(), "no such module") {
			return fmt.Errorf("initializing fts: %w", err)
		}
	}
	return nil
}

// HasFTS reports whether FTS5 query support is actually usable —
// the module may be absent from the runtime's sqlite3 build even
// though the virtual table statement parsed.
func (db *DB) HasFTS() bool {
	_, err := db.conn.Exec("SELECT 1 FROM documents_fts LIMIT 1")
	return err == nil
}

// Path returns the index file's path.
func (db *DB) Path() string { return db.path }

// Close closes the underlying connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Update executes fn within a write lock and transaction.
func (db *DB) Update(fn func(tx *sql.Tx) error) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// query runs a read-only query under the same lock as writers,
// since the index uses a single connection.
func (db *DB) query(query string, args ...any) (*sql.Rows, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.conn.Query(query, args...)
}
