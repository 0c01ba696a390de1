// Package runstore persists experiment sessions and every dispatched run in
// SQLite so a session can be inspected after the fact.
package runstore

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"labloop/internal/runner"
)

// ErrNotFound is returned when a session does not exist.
var ErrNotFound = errors.New("not found")

// Session statuses.
const (
	SessionRunning   = "running"
	SessionCompleted = "completed"
	SessionFailed    = "failed"
)

// Store manages the run ledger.
type Store struct {
	DBPath string
	db     *sql.DB
}

// Session is one invocation of the experiment pipeline.
type Session struct {
	ID         string     `json:"id"`
	Folder     string     `json:"folder"`
	Title      string     `json:"title"`
	Status     string     `json:"status"`
	StopReason string     `json:"stop_reason,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// RunRecord is one dispatched attempt at a numbered run.
type RunRecord struct {
	ID         int64         `json:"id"`
	SessionID  string        `json:"session_id"`
	Run        int           `json:"run"`
	Iteration  int           `json:"iteration"`
	Folder     string        `json:"folder"`
	Status     runner.Status `json:"status"`
	ReturnCode int           `json:"return_code"`
	Diagnostic string        `json:"diagnostic,omitempty"`
	Snapshot   string        `json:"snapshot"`
	Diff       string        `json:"diff,omitempty"`
	// ResultsJSON holds the reduced means for succeeded runs.
	ResultsJSON string     `json:"results,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
}

// Open opens or creates the ledger database.
func Open(path string) (*Store, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve ledger path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return nil, fmt.Errorf("ensure ledger dir: %w", err)
	}

	db, err := sql.Open("sqlite", absPath)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}

	store := &Store{
		DBPath: absPath,
		db:     db,
	}
	if err := store.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) ensureSchema() error {
	schema := `
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	folder TEXT NOT NULL,
	title TEXT NOT NULL,
	status TEXT NOT NULL,
	stop_reason TEXT,
	started_at TEXT NOT NULL,
	finished_at TEXT
);

CREATE TABLE IF NOT EXISTS runs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	run INTEGER NOT NULL,
	iteration INTEGER NOT NULL,
	folder TEXT NOT NULL,
	status TEXT NOT NULL,
	return_code INTEGER NOT NULL,
	diagnostic TEXT,
	snapshot TEXT,
	diff TEXT,
	results_json TEXT,
	started_at TEXT NOT NULL,
	finished_at TEXT
);

CREATE INDEX IF NOT EXISTS idx_runs_session ON runs(session_id, id);
`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("create ledger schema: %w", err)
	}
	return nil
}

// StartSession inserts a new running session.
func (s *Store) StartSession(sess Session) error {
	if sess.ID == "" {
		return errors.New("session id is required")
	}
	if sess.StartedAt.IsZero() {
		sess.StartedAt = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO sessions (id, folder, title, status, started_at)
		VALUES (?, ?, ?, ?, ?)
	`, sess.ID, sess.Folder, sess.Title, SessionRunning, formatTime(sess.StartedAt))
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// FinishSession records the final status of a session.
func (s *Store) FinishSession(id, status, stopReason string) error {
	res, err := s.db.Exec(`
		UPDATE sessions
		SET status = ?,
		    stop_reason = ?,
		    finished_at = ?
		WHERE id = ?
	`, status, stopReason, formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return nil
}

// GetSession retrieves a session by ID.
func (s *Store) GetSession(id string) (*Session, error) {
	row := s.db.QueryRow(`
		SELECT id, folder, title, status, stop_reason, started_at, finished_at
		FROM sessions
		WHERE id = ?
	`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

// LatestSession returns the most recently started session.
func (s *Store) LatestSession() (*Session, error) {
	row := s.db.QueryRow(`
		SELECT id, folder, title, status, stop_reason, started_at, finished_at
		FROM sessions
		ORDER BY started_at DESC, rowid DESC
		LIMIT 1
	`)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("latest session: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get latest session: %w", err)
	}
	return sess, nil
}

// RecordRun inserts a finished run attempt and sets rec.ID.
func (s *Store) RecordRun(rec *RunRecord) error {
	if rec == nil {
		return errors.New("run record is nil")
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = time.Now()
	}
	var finishedAt any
	if rec.FinishedAt != nil {
		finishedAt = formatTime(*rec.FinishedAt)
	}
	res, err := s.db.Exec(`
		INSERT INTO runs (session_id, run, iteration, folder, status, return_code,
		                  diagnostic, snapshot, diff, results_json, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.SessionID, rec.Run, rec.Iteration, rec.Folder, string(rec.Status), rec.ReturnCode,
		rec.Diagnostic, rec.Snapshot, rec.Diff, rec.ResultsJSON, formatTime(rec.StartedAt), finishedAt)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("run id: %w", err)
	}
	rec.ID = id
	return nil
}

// ListRuns returns every attempt of a session in dispatch order.
func (s *Store) ListRuns(sessionID string) ([]RunRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, session_id, run, iteration, folder, status, return_code,
		       diagnostic, snapshot, diff, results_json, started_at, finished_at
		FROM runs
		WHERE session_id = ?
		ORDER BY id ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var rec RunRecord
		var status string
		var diagnostic, snapshot, diff, resultsJSON, finishedAt sql.NullString
		var startedAt string
		err := rows.Scan(
			&rec.ID, &rec.SessionID, &rec.Run, &rec.Iteration, &rec.Folder, &status, &rec.ReturnCode,
			&diagnostic, &snapshot, &diff, &resultsJSON, &startedAt, &finishedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		rec.Status = runner.Status(status)
		rec.Diagnostic = diagnostic.String
		rec.Snapshot = snapshot.String
		rec.Diff = diff.String
		rec.ResultsJSON = resultsJSON.String
		rec.StartedAt = parseTime(startedAt)
		if finishedAt.Valid {
			t := parseTime(finishedAt.String)
			rec.FinishedAt = &t
		}
		runs = append(runs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	var sess Session
	var stopReason, finishedAt sql.NullString
	var startedAt string
	if err := row.Scan(&sess.ID, &sess.Folder, &sess.Title, &sess.Status, &stopReason, &startedAt, &finishedAt); err != nil {
		return nil, err
	}
	sess.StopReason = stopReason.String
	sess.StartedAt = parseTime(startedAt)
	if finishedAt.Valid {
		t := parseTime(finishedAt.String)
		sess.FinishedAt = &t
	}
	return &sess, nil
}

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) time.Time {
	t, _ := time.Parse(timeLayout, value)
	return t
}
