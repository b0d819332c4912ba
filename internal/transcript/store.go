// Package transcript journals the context log to SQLite.
//
// The journal is write-through and append-only; it is never read back
// into a running agent.
package transcript

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/flynn-ai/vox/internal/convo"
	apperrors "github.com/flynn-ai/vox/internal/errors"
)

// Store writes context entries to a SQLite database.
// It implements convo.Sink.
type Store struct {
	db    *sql.DB
	retry *apperrors.Policy
}

// writePolicy retries writes that lost a lock race with another process
// sharing the journal.
func writePolicy() *apperrors.Policy {
	p := apperrors.DefaultPolicy()
	p.RetryIf = isBusy
	return p
}

func isBusy(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
}

// Row is one journaled entry.
type Row struct {
	Seq        int64
	ID         string
	Kind       convo.Kind
	Value      string
	ParamsJSON string
	CallID     string
	ResponseID string
	CreatedAt  time.Time
}

// Open opens (creating if needed) the journal at dbPath.
func Open(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}

	db, err := openDB(dbPath)
	if err != nil {
		return nil, err
	}

	s := &Store{db: db, retry: writePolicy()}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// openDB opens a single SQLite database with WAL enabled.
func openDB(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL")
	if err != nil {
		return nil, err
	}
	// Entries arrive one at a time from the log; one connection keeps
	// inserts ordered.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, err
		}
	}
	return db, nil
}

func (s *Store) init() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
		description TEXT
	);

	CREATE TABLE IF NOT EXISTS entries (
		seq             INTEGER PRIMARY KEY AUTOINCREMENT,
		id              TEXT NOT NULL UNIQUE,
		kind            TEXT NOT NULL,
		value           TEXT NOT NULL,
		params_json     TEXT,
		call_id         TEXT,
		response_id     TEXT,
		created_at      INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_entries_kind ON entries(kind);
	CREATE INDEX IF NOT EXISTS idx_entries_call ON entries(call_id);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return ensureSchemaVersion(s.db, 1, "Initial transcript schema")
}

// Record journals one entry. A tool result also links its call.
func (s *Store) Record(e convo.Entry) error {
	return apperrors.Do(context.Background(), s.retry, func() error {
		return s.record(e)
	})
}

func (s *Store) record(e convo.Entry) error {
	var paramsJSON, callID sql.NullString

	switch v := e.(type) {
	case *convo.ToolCall:
		b, err := json.Marshal(v.Params())
		if err != nil {
			return fmt.Errorf("encode params of %s: %w", v.ID(), err)
		}
		paramsJSON = sql.NullString{String: string(b), Valid: true}
	case *convo.ToolResult:
		callID = sql.NullString{String: v.CallID(), Valid: true}
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`INSERT INTO entries (id, kind, value, params_json, call_id, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID(), string(e.Kind()), e.Value(), paramsJSON, callID, e.CreatedAt().UnixNano(),
	); err != nil {
		return fmt.Errorf("insert entry %s: %w", e.ID(), err)
	}

	if callID.Valid {
		if _, err := tx.Exec(
			`UPDATE entries SET response_id = ? WHERE id = ? AND response_id IS NULL`,
			e.ID(), callID.String,
		); err != nil {
			return fmt.Errorf("link result %s: %w", e.ID(), err)
		}
	}

	return tx.Commit()
}

// Recent returns up to limit entries, oldest first.
func (s *Store) Recent(limit int) ([]Row, error) {
	rows, err := s.db.Query(`
		SELECT seq, id, kind, value, params_json, call_id, response_id, created_at
		FROM (SELECT * FROM entries ORDER BY seq DESC LIMIT ?)
		ORDER BY seq ASC`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var (
			r                          Row
			kind                       string
			params, callID, responseID sql.NullString
			created                    int64
		)
		if err := rows.Scan(&r.Seq, &r.ID, &kind, &r.Value, &params, &callID, &responseID, &created); err != nil {
			return nil, err
		}
		r.Kind = convo.Kind(kind)
		r.ParamsJSON = params.String
		r.CallID = callID.String
		r.ResponseID = responseID.String
		r.CreatedAt = time.Unix(0, created)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func ensureSchemaVersion(db *sql.DB, version int, description string) error {
	var current sql.NullInt64
	if err := db.QueryRow("SELECT MAX(version) FROM schema_migrations").Scan(&current); err != nil {
		return err
	}

	if !current.Valid || int(current.Int64) < version {
		_, err := db.Exec(
			"INSERT INTO schema_migrations (version, description) VALUES (?, ?)",
			version,
			description,
		)
		return err
	}

	return nil
}
