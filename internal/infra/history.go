package infra

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ringlight/ringlightd/internal/domain"
)

const historySchema = `
CREATE TABLE IF NOT EXISTS sessions (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	cause      TEXT    NOT NULL,
	mode       TEXT    NOT NULL,
	started_at INTEGER NOT NULL,
	ended_at   INTEGER
);`

// SQLiteHistory persists activation sessions to a local SQLite file.
type SQLiteHistory struct {
	db *sql.DB
}

// NewSQLiteHistory opens (creating if needed) the history database.
func NewSQLiteHistory(path string) (*SQLiteHistory, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	if _, err := db.Exec(historySchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init history schema: %w", err)
	}
	return &SQLiteHistory{db: db}, nil
}

// Begin records the start of an activation and returns its row id.
func (h *SQLiteHistory) Begin(trigger string, mode domain.Mode, at time.Time) (int64, error) {
	res, err := h.db.Exec(
		`INSERT INTO sessions (cause, mode, started_at) VALUES (?, ?, ?)`,
		trigger, string(mode), at.Unix())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// End closes an open activation.
func (h *SQLiteHistory) End(id int64, at time.Time) error {
	_, err := h.db.Exec(`UPDATE sessions SET ended_at = ? WHERE id = ?`, at.Unix(), id)
	return err
}

// Recent returns up to n sessions, newest first.
func (h *SQLiteHistory) Recent(n int) ([]domain.Session, error) {
	rows, err := h.db.Query(
		`SELECT id, cause, mode, started_at, ended_at
		 FROM sessions ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Session
	for rows.Next() {
		var (
			s       domain.Session
			mode    string
			started int64
			ended   sql.NullInt64
		)
		if err := rows.Scan(&s.ID, &s.Trigger, &mode, &started, &ended); err != nil {
			return nil, err
		}
		s.Mode = domain.Mode(mode)
		s.StartedAt = time.Unix(started, 0)
		if ended.Valid {
			s.EndedAt = time.Unix(ended.Int64, 0)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Close releases the database handle.
func (h *SQLiteHistory) Close() error {
	return h.db.Close()
}

// NopHistory is the degraded-mode store used when the database cannot be
// opened: history is advisory, never worth failing startup over.
type NopHistory struct{}

func (NopHistory) Begin(string, domain.Mode, time.Time) (int64, error) { return 0, nil }
func (NopHistory) End(int64, time.Time) error                         { return nil }
func (NopHistory) Recent(int) ([]domain.Session, error)               { return nil, nil }
func (NopHistory) Close() error                                       { return nil }

// Ensure both stores implement domain.SessionStore.
var (
	_ domain.SessionStore = (*SQLiteHistory)(nil)
	_ domain.SessionStore = NopHistory{}
)
