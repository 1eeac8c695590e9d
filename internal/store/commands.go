package store

import (
	"context"
	"database/sql"
	"fmt"
)

// LogCommand appends an audit record of input sent to a pane.
func (s *Store) LogCommand(ctx context.Context, cmd *Command) error {
	return s.write(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			"INSERT INTO commands (session_id, source, input, context) VALUES (?, ?, ?, ?)",
			cmd.SessionID, cmd.Source, cmd.Input, nullStr(cmd.Context))
		if err != nil {
			return fmt.Errorf("log command: %w", err)
		}
		return nil
	})
}

// ListCommands returns the most recent commands for a session, newest first.
func (s *Store) ListCommands(ctx context.Context, sessionID string, limit int) ([]*Command, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, source, input, context, timestamp
		FROM commands WHERE session_id = ?
		ORDER BY timestamp DESC, id DESC LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("list commands: %w", err)
	}
	defer rows.Close()

	var out []*Command
	for rows.Next() {
		var cmd Command
		var sid, cctx, ts sql.NullString
		if err := rows.Scan(&cmd.ID, &sid, &cmd.Source, &cmd.Input, &cctx, &ts); err != nil {
			return nil, fmt.Errorf("scan command: %w", err)
		}
		cmd.SessionID = sid.String
		cmd.Context = cctx.String
		cmd.Timestamp = parseTime(ts)
		out = append(out, &cmd)
	}
	return out, rows.Err()
}
