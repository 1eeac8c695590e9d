package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

const sessionColumns = `id, number, alias, type, working_dir, tmux_session,
	tmux_pane_id, pid, status, color_emoji, token_used, token_limit,
	last_activity, last_summary, created_at, updated_at`

// CreateSession inserts a new session row.
func (s *Store) CreateSession(ctx context.Context, sess *Session) error {
	now := time.Now().UTC()
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = now
	}
	sess.UpdatedAt = now
	return s.write(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO sessions (id, number, alias, type, working_dir, tmux_session,
				tmux_pane_id, pid, status, color_emoji, token_used, token_limit,
				last_activity, last_summary, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			sess.ID, sess.Number, sess.Alias, sess.Type, sess.WorkingDir,
			sess.TmuxSession, sess.TmuxPaneID, nullInt(sess.PID), sess.Status,
			sess.ColorEmoji, sess.TokenUsed, sess.TokenLimit,
			nullTime(sess.LastActivity), nullStr(sess.LastSummary),
			sess.CreatedAt.Format(timeFormat), sess.UpdatedAt.Format(timeFormat))
		if err != nil {
			return fmt.Errorf("create session: %w", err)
		}
		return nil
	})
}

// GetSession fetches one session by id.
func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+sessionColumns+" FROM sessions WHERE id = ?", id)
	return scanSession(row)
}

// GetSessionByNumber fetches one session by its user-facing number.
func (s *Store) GetSessionByNumber(ctx context.Context, number int) (*Session, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+sessionColumns+" FROM sessions WHERE number = ?", number)
	return scanSession(row)
}

// ListSessions returns sessions ordered by number. With activeOnly, exited
// sessions are excluded.
func (s *Store) ListSessions(ctx context.Context, activeOnly bool) ([]*Session, error) {
	q := "SELECT " + sessionColumns + " FROM sessions"
	if activeOnly {
		q += " WHERE status != 'exited'"
	}
	q += " ORDER BY number"
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []*Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// UpdateSessionStatus sets a session's status.
func (s *Store) UpdateSessionStatus(ctx context.Context, id, status string) error {
	return s.updateSession(ctx, id, "status = ?", status)
}

// UpdateSessionAlias renames a session.
func (s *Store) UpdateSessionAlias(ctx context.Context, id, alias string) error {
	return s.updateSession(ctx, id, "alias = ?", alias)
}

// UpdateSessionSummary stores the latest AI summary for a session.
func (s *Store) UpdateSessionSummary(ctx context.Context, id, summary string) error {
	return s.updateSession(ctx, id, "last_summary = ?", summary)
}

// UpdateSessionActivity stamps the last observed activity time.
func (s *Store) UpdateSessionActivity(ctx context.Context, id string, at time.Time) error {
	return s.updateSession(ctx, id, "last_activity = ?", at.UTC().Format(timeFormat))
}

// UpdateSessionTokens records estimator usage against a session.
func (s *Store) UpdateSessionTokens(ctx context.Context, id string, used, limit int) error {
	return s.write(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			"UPDATE sessions SET token_used = ?, token_limit = ?, updated_at = ? WHERE id = ?",
			used, limit, time.Now().UTC().Format(timeFormat), id)
		return err
	})
}

func (s *Store) updateSession(ctx context.Context, id, set string, val any) error {
	return s.write(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			"UPDATE sessions SET "+set+", updated_at = ? WHERE id = ?",
			val, time.Now().UTC().Format(timeFormat), id)
		if err != nil {
			return fmt.Errorf("update session: %w", err)
		}
		return nil
	})
}

// DeleteSession removes a session row (cascading its commands and events).
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	return s.write(ctx, func() error {
		_, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id)
		return err
	})
}

// NextSessionNumber returns the lowest positive number not used by any
// non-exited session, so numbers are reused after teardown.
func (s *Store) NextSessionNumber(ctx context.Context) (int, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT number FROM sessions WHERE status != 'exited' ORDER BY number")
	if err != nil {
		return 0, fmt.Errorf("next session number: %w", err)
	}
	defer rows.Close()

	used := map[int]bool{}
	for rows.Next() {
		var n int
		if err := rows.Scan(&n); err != nil {
			return 0, err
		}
		used[n] = true
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}
	for n := 1; ; n++ {
		if !used[n] {
			return n, nil
		}
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	var sess Session
	var paneID, lastActivity, lastSummary, createdAt, updatedAt sql.NullString
	var pid sql.NullInt64
	err := row.Scan(&sess.ID, &sess.Number, &sess.Alias, &sess.Type,
		&sess.WorkingDir, &sess.TmuxSession, &paneID, &pid, &sess.Status,
		&sess.ColorEmoji, &sess.TokenUsed, &sess.TokenLimit,
		&lastActivity, &lastSummary, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}
	sess.TmuxPaneID = paneID.String
	sess.PID = int(pid.Int64)
	sess.LastSummary = lastSummary.String
	sess.LastActivity = parseTime(lastActivity)
	sess.CreatedAt = parseTime(createdAt)
	sess.UpdatedAt = parseTime(updatedAt)
	return &sess, nil
}

func nullInt(n int) any {
	if n == 0 {
		return nil
	}
	return n
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(timeFormat)
}
