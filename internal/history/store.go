package history

import (
	"context"
	"fmt"
	"time"

	"github.com/hfi-neuro/wss-core/internal/infrastructure/database"
	"github.com/hfi-neuro/wss-core/internal/stim"
)

const (
	defaultEventLimit = 50
	maxEventLimit     = 500
)

// schema is applied at construction. Additive changes only.
const schema = `
CREATE TABLE IF NOT EXISTS session_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	kind TEXT NOT NULL,
	name TEXT NOT NULL,
	channel INTEGER NOT NULL DEFAULT 0,
	detail TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
);
CREATE INDEX IF NOT EXISTS idx_session_events_session ON session_events(session_id);
CREATE INDEX IF NOT EXISTS idx_session_events_created ON session_events(created_at);
`

// Entry is one persisted session event.
type Entry struct {
	ID        int64
	SessionID string
	Kind      string
	Name      string
	Channel   int
	Detail    string
	CreatedAt time.Time
}

// Store records session events in SQLite. Implements stim.Recorder.
type Store struct {
	db *database.DB
}

// NewStore creates a session event store and applies the schema.
func NewStore(db *database.DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("history: database is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("applying session event schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Record inserts one session event. Events without a session identifier
// are dropped silently; they can only come from log traffic emitted
// outside a live session.
func (s *Store) Record(ctx context.Context, e stim.Event) error {
	if e.SessionID == "" {
		return nil
	}
	if e.Kind == "" || e.Name == "" {
		return fmt.Errorf("history: kind and name are required")
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO session_events (session_id, kind, name, channel, detail) VALUES (?, ?, ?, ?, ?)",
		e.SessionID,
		e.Kind,
		e.Name,
		e.Channel,
		e.Detail,
	)
	if err != nil {
		return fmt.Errorf("inserting session event: %w", err)
	}

	return nil
}

// EventsForSession returns events for one session, ordered oldest first.
// limit defaults to 50 and is capped at 500.
func (s *Store) EventsForSession(ctx context.Context, sessionID string, limit int) ([]Entry, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("history: session id is required")
	}
	if limit <= 0 {
		limit = defaultEventLimit
	}
	if limit > maxEventLimit {
		limit = maxEventLimit
	}

	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT id, session_id, kind, name, channel, detail, created_at
		 FROM session_events
		 WHERE session_id = ?
		 ORDER BY id ASC
		 LIMIT ?`,
		sessionID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying session events: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var entry Entry
		var createdAt string

		if err := rows.Scan(&entry.ID, &entry.SessionID, &entry.Kind, &entry.Name, &entry.Channel, &entry.Detail, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning session event: %w", err)
		}

		timestamp, err := parseEventTimestamp(createdAt)
		if err != nil {
			return nil, err
		}
		entry.CreatedAt = timestamp

		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating session events: %w", err)
	}

	return entries, nil
}

// PruneBefore deletes events older than the given duration and reports how
// many rows were removed.
func (s *Store) PruneBefore(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("history: olderThan must be positive")
	}

	cutoff := time.Now().UTC().Add(-olderThan).Format(time.RFC3339)
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM session_events WHERE created_at < ?",
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("deleting session events: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}

	return rowsAffected, nil
}

// parseEventTimestamp parses a timestamp stored in SQLite.
func parseEventTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("created_at is empty")
	}

	timestamp, err := time.Parse(time.RFC3339, value)
	if err == nil {
		return timestamp, nil
	}

	fallback, fallbackErr := time.Parse("2006-01-02T15:04:05Z", value)
	if fallbackErr == nil {
		return fallback, nil
	}

	return time.Time{}, fmt.Errorf("parsing created_at: %w", err)
}
