// Package audit appends pipeline events to a SQLite-backed log.
package audit

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNoPath is returned by a Logger that is not bound to a database file.
var ErrNoPath = errors.New("audit db path is not set")

const tsLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Logger writes audit events to a specific SQLite DB path.
type Logger struct {
	DBPath string
}

// Event is one row of the audit log.
type Event struct {
	ID      int64
	Time    time.Time
	Actor   string
	Type    string
	Payload json.RawMessage
}

// NewLogger returns a Logger bound to the provided DB path.
func NewLogger(dbPath string) *Logger {
	return &Logger{DBPath: dbPath}
}

// LogEvent writes an audit event to the configured SQLite-backed log.
func (l *Logger) LogEvent(actor string, eventType string, payload any) error {
	resolved, err := l.resolveDBPath()
	if err != nil {
		return err
	}
	return writeEvent(resolved, actor, eventType, payload)
}

// Events returns up to limit events in insertion order, most recent last.
// A limit <= 0 returns every event.
func (l *Logger) Events(limit int) ([]Event, error) {
	resolved, err := l.resolveDBPath()
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", resolved)
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	defer func() {
		_ = db.Close()
	}()
	if err := ensureSchema(db); err != nil {
		return nil, err
	}

	query := `SELECT id, ts, actor, type, payload_json FROM events ORDER BY id ASC`
	args := []any{}
	if limit > 0 {
		query = `SELECT id, ts, actor, type, payload_json FROM (
			SELECT * FROM events ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC`
		args = append(args, limit)
	}
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var ev Event
		var ts, payload string
		if err := rows.Scan(&ev.ID, &ts, &ev.Actor, &ev.Type, &payload); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		ev.Time, _ = time.Parse(tsLayout, ts)
		ev.Payload = json.RawMessage(payload)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}

func ensureSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts TEXT NOT NULL,
			actor TEXT NOT NULL,
			type TEXT NOT NULL,
			payload_json TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create audit schema: %w", err)
	}
	return nil
}

func (l *Logger) resolveDBPath() (string, error) {
	if l == nil || l.DBPath == "" {
		return "", ErrNoPath
	}
	absPath, err := filepath.Abs(l.DBPath)
	if err != nil {
		return "", fmt.Errorf("resolve audit db path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return "", fmt.Errorf("ensure audit db dir: %w", err)
	}
	return absPath, nil
}

func writeEvent(dbPath string, actor string, eventType string, payload any) error {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return fmt.Errorf("open audit db: %w", err)
	}
	defer func() {
		_ = db.Close()
	}()

	if err := ensureSchema(db); err != nil {
		return err
	}

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	_, err = db.Exec(
		"INSERT INTO events (ts, actor, type, payload_json) VALUES (?, ?, ?, ?)",
		time.Now().UTC().Format(tsLayout),
		actor,
		eventType,
		string(payloadJSON),
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}

	return nil
}
