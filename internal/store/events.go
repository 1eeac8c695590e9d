package store

import (
	"context"
	"database/sql"
	"fmt"
)

// LogEvent records a notification event and returns its id.
func (s *Store) LogEvent(ctx context.Context, ev *Event) (int64, error) {
	var id int64
	err := s.write(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO events (session_id, event_type, message, telegram_message_id)
			VALUES (?, ?, ?, ?)`,
			nullStr(ev.SessionID), ev.EventType, ev.Message, nullInt64(ev.TelegramMessageID))
		if err != nil {
			return fmt.Errorf("log event: %w", err)
		}
		id, err = res.LastInsertId()
		return err
	})
	return id, err
}

// ListEvents returns recent events, newest first. An empty sessionID returns
// events across all sessions.
func (s *Store) ListEvents(ctx context.Context, sessionID string, limit int) ([]*Event, error) {
	q := `SELECT id, session_id, event_type, message, acknowledged, telegram_message_id, timestamp
		FROM events`
	args := []any{}
	if sessionID != "" {
		q += " WHERE session_id = ?"
		args = append(args, sessionID)
	}
	q += " ORDER BY timestamp DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []*Event
	for rows.Next() {
		var ev Event
		var sid, ts sql.NullString
		var ack int
		var msgID sql.NullInt64
		if err := rows.Scan(&ev.ID, &sid, &ev.EventType, &ev.Message, &ack, &msgID, &ts); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.SessionID = sid.String
		ev.Acknowledged = ack != 0
		ev.TelegramMessageID = msgID.Int64
		ev.Timestamp = parseTime(ts)
		out = append(out, &ev)
	}
	return out, rows.Err()
}

// AcknowledgeEvent marks an event as seen by the user.
func (s *Store) AcknowledgeEvent(ctx context.Context, id int64) error {
	return s.write(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			"UPDATE events SET acknowledged = 1 WHERE id = ?", id)
		return err
	})
}

func nullInt64(n int64) any {
	if n == 0 {
		return nil
	}
	return n
}
