// Package audit records verification sessions and challenge completions in sqlite.
// Only metadata is stored, never frames or landmarks.
package audit

import (
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/MrCodeEU/livecheck/internal/liveness"
	"github.com/MrCodeEU/livecheck/internal/session"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

// SessionRecord is one verification session
type SessionRecord struct {
	ID         string            `json:"id"`
	StartedAt  time.Time         `json:"started_at"`
	StoppedAt  *time.Time        `json:"stopped_at,omitempty"`
	Verified   bool              `json:"verified"`
	Challenges []ChallengeRecord `json:"challenges"`
}

// ChallengeRecord is one challenge completion inside a session
type ChallengeRecord struct {
	SessionID string                 `json:"session_id"`
	Challenge liveness.ChallengeType `json:"challenge"`
	Label     string                 `json:"label"`
	CreatedAt time.Time              `json:"created_at"`
}

// Store provides persistent storage for verification history
type Store struct {
	db     *sql.DB
	logger *logrus.Logger
}

var _ session.Observer = (*Store)(nil)

// NewStore opens or creates the audit database
func NewStore(dbPath string, logger *logrus.Logger) (*Store, error) {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Observer callbacks arrive from the processing goroutine and HTTP handlers read concurrently
	db.SetMaxOpenConns(1)

	store := &Store{db: db, logger: logger}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		started_at DATETIME NOT NULL,
		stopped_at DATETIME,
		verified BOOLEAN NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON sessions(started_at);

	CREATE TABLE IF NOT EXISTS challenge_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		challenge_id TEXT NOT NULL,
		label TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (session_id) REFERENCES sessions(id)
	);

	CREATE INDEX IF NOT EXISTS idx_challenge_events_session_id ON challenge_events(session_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// RecordStart inserts a new session row
func (s *Store) RecordStart(id string, at time.Time) error {
	_, err := s.db.Exec(`INSERT INTO sessions (id, started_at) VALUES (?, ?)`, id, at.UTC())
	if err != nil {
		return fmt.Errorf("failed to record session start: %w", err)
	}
	return nil
}

// RecordChallenge appends a completion event to a session
func (s *Store) RecordChallenge(sessionID string, id liveness.ChallengeID, label string, at time.Time) error {
	_, err := s.db.Exec(
		`INSERT INTO challenge_events (session_id, challenge_id, label, created_at) VALUES (?, ?, ?, ?)`,
		sessionID, string(id.Type()), label, at.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record challenge: %w", err)
	}
	return nil
}

// RecordStop closes a session
func (s *Store) RecordStop(id string, at time.Time, verified bool) error {
	result, err := s.db.Exec(
		`UPDATE sessions SET stopped_at = ?, verified = ? WHERE id = ?`,
		at.UTC(), verified, id,
	)
	if err != nil {
		return fmt.Errorf("failed to record session stop: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("session not found: %s", id)
	}
	return nil
}

// GetSession returns a session with its challenge events
func (s *Store) GetSession(id string) (*SessionRecord, error) {
	var rec SessionRecord
	var stoppedAt sql.NullTime

	err := s.db.QueryRow(
		`SELECT id, started_at, stopped_at, verified FROM sessions WHERE id = ?`, id,
	).Scan(&rec.ID, &rec.StartedAt, &stoppedAt, &rec.Verified)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("session not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if stoppedAt.Valid {
		rec.StoppedAt = &stoppedAt.Time
	}

	rec.Challenges, err = s.challenges(id)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListSessions returns the most recent sessions, newest first
func (s *Store) ListSessions(limit int) ([]SessionRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, started_at, stopped_at, verified
		 FROM sessions
		 ORDER BY started_at DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	var records []SessionRecord
	for rows.Next() {
		var rec SessionRecord
		var stoppedAt sql.NullTime
		if err := rows.Scan(&rec.ID, &rec.StartedAt, &stoppedAt, &rec.Verified); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		if stoppedAt.Valid {
			rec.StoppedAt = &stoppedAt.Time
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	// Release the single connection before the per-session queries
	_ = rows.Close()

	for i := range records {
		if records[i].Challenges, err = s.challenges(records[i].ID); err != nil {
			return nil, err
		}
	}
	return records, nil
}

func (s *Store) challenges(sessionID string) ([]ChallengeRecord, error) {
	rows, err := s.db.Query(
		`SELECT session_id, challenge_id, label, created_at
		 FROM challenge_events
		 WHERE session_id = ?
		 ORDER BY id`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get challenges: %w", err)
	}
	defer func() { _ = rows.Close() }()

	events := []ChallengeRecord{}
	for rows.Next() {
		var ev ChallengeRecord
		var challenge string
		if err := rows.Scan(&ev.SessionID, &challenge, &ev.Label, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan challenge: %w", err)
		}
		ev.Challenge = liveness.ChallengeType(challenge)
		events = append(events, ev)
	}
	return events, rows.Err()
}

// SessionStarted implements session.Observer
func (s *Store) SessionStarted(id string, at time.Time) {
	if err := s.RecordStart(id, at); err != nil {
		s.logger.Warnf("Audit: %v", err)
	}
}

// ChallengeCompleted implements session.Observer
func (s *Store) ChallengeCompleted(ev session.CaptureEvent) {
	if err := s.RecordChallenge(ev.SessionID, ev.Challenge, ev.Label, ev.At); err != nil {
		s.logger.Warnf("Audit: %v", err)
	}
}

// SessionStopped implements session.Observer
func (s *Store) SessionStopped(id string, at time.Time, verified bool) {
	if err := s.RecordStop(id, at, verified); err != nil {
		s.logger.Warnf("Audit: %v", err)
	}
}
