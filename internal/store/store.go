// Package store is Conductor's embedded relational store: a single sqlite
// database holding sessions, commands, auto-response rules, and events.
//
// Writes are serialized behind an internal mutex (the single-writer pattern);
// readers run concurrently against the WAL. Busy errors retry a few times
// with jitter before surfacing.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/DaveXRouz/conductor/internal/logging"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
    id TEXT PRIMARY KEY,
    number INTEGER NOT NULL,
    alias TEXT NOT NULL,
    type TEXT NOT NULL CHECK(type IN ('claude-code', 'shell', 'one-off')),
    working_dir TEXT NOT NULL,
    tmux_session TEXT NOT NULL,
    tmux_pane_id TEXT,
    pid INTEGER,
    status TEXT NOT NULL DEFAULT 'running'
        CHECK(status IN ('running', 'paused', 'waiting', 'error', 'exited', 'rate_limited')),
    color_emoji TEXT NOT NULL DEFAULT '🔵',
    token_used INTEGER DEFAULT 0,
    token_limit INTEGER DEFAULT 45,
    last_activity TEXT,
    last_summary TEXT,
    created_at TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS commands (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT REFERENCES sessions(id) ON DELETE CASCADE,
    source TEXT NOT NULL CHECK(source IN ('user', 'auto', 'system')),
    input TEXT NOT NULL,
    context TEXT,
    timestamp TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS auto_rules (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    pattern TEXT NOT NULL,
    response TEXT NOT NULL,
    match_type TEXT NOT NULL DEFAULT 'contains'
        CHECK(match_type IN ('regex', 'contains', 'exact')),
    enabled INTEGER NOT NULL DEFAULT 1,
    hit_count INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT REFERENCES sessions(id) ON DELETE CASCADE,
    event_type TEXT NOT NULL
        CHECK(event_type IN ('input_required', 'token_warning', 'error', 'completed',
                             'rate_limit', 'auto_response', 'system')),
    message TEXT NOT NULL,
    acknowledged INTEGER NOT NULL DEFAULT 0,
    telegram_message_id INTEGER,
    timestamp TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);
CREATE INDEX IF NOT EXISTS idx_commands_session ON commands(session_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_events_session ON events(session_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_events_type ON events(event_type, acknowledged);
`

const timeFormat = "2006-01-02 15:04:05"

// Store wraps the sqlite database.
type Store struct {
	db  *sql.DB
	wmu sync.Mutex // serializes writers
	log *slog.Logger
}

// Open opens (creating if needed) the database at path with WAL mode,
// a 5 s busy timeout, and the schema applied.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)",
		path,
	)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db, log: logging.ForComponent(logging.CompStore)}, nil
}

// Close closes the underlying database. Call last during shutdown.
func (s *Store) Close() error {
	return s.db.Close()
}

// write serializes a mutation and retries busy errors up to 3 times with
// 100 ms jittered backoff before failing.
func (s *Store) write(ctx context.Context, fn func() error) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	var err error
	for attempt := 0; attempt < 3; attempt++ {
		err = fn()
		if err == nil || !isBusy(err) {
			return err
		}
		delay := time.Duration(100+rand.Intn(100)) * time.Millisecond
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func isBusy(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "busy")
}

// PruneOldRecords deletes commands and events older than maxAge. Runs at
// boot and daily thereafter. Returns the number of rows removed.
func (s *Store) PruneOldRecords(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-maxAge).Format(timeFormat)
	var total int64
	err := s.write(ctx, func() error {
		for _, table := range []string{"commands", "events"} {
			res, err := s.db.ExecContext(ctx,
				fmt.Sprintf("DELETE FROM %s WHERE timestamp < ?", table), cutoff)
			if err != nil {
				return fmt.Errorf("prune %s: %w", table, err)
			}
			n, _ := res.RowsAffected()
			total += n
		}
		return nil
	})
	return total, err
}

func parseTime(raw sql.NullString) time.Time {
	if !raw.Valid || raw.String == "" {
		return time.Time{}
	}
	for _, layout := range []string{timeFormat, time.RFC3339, time.RFC3339Nano} {
		if t, err := time.Parse(layout, raw.String); err == nil {
			return t
		}
	}
	return time.Time{}
}
