package session

import (
	"context"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/DaveXRouz/conductor/internal/logging"
	"github.com/DaveXRouz/conductor/internal/store"
	"github.com/DaveXRouz/conductor/internal/tmux"
)

// Recover scans the tmux server for conductor-* sessions left over from a
// previous daemon run and adopts the live ones. Returns the adopted sessions.
func Recover(ctx context.Context, server *tmux.Server, mgr *Manager) ([]*store.Session, error) {
	log := logging.ForComponent(logging.CompSession)

	names, err := server.ListSessions()
	if err != nil {
		return nil, err
	}

	existing := mgr.Numbers()
	var recovered []*store.Session
	for _, name := range names {
		numStr, ok := strings.CutPrefix(name, "conductor-")
		if !ok {
			continue
		}
		number, err := strconv.Atoi(numStr)
		if err != nil {
			continue
		}
		if existing[number] {
			continue
		}

		pane, err := server.AttachPane(name)
		if err != nil {
			continue
		}
		pid, err := pane.PID()
		if err != nil {
			continue
		}
		if !mgr.PIDAlive(pid) {
			log.Info("skipping dead recovered session", "name", name)
			continue
		}
		dir, err := pane.CurrentPath()
		if err != nil || dir == "" {
			dir = "~"
		}

		sess := &store.Session{
			ID:          uuid.NewString(),
			Number:      number,
			Alias:       GuessAlias(dir),
			Type:        store.TypeClaudeCode,
			WorkingDir:  dir,
			TmuxSession: name,
			TmuxPaneID:  pane.ID,
			PID:         pid,
			Status:      store.StatusRunning,
			TokenLimit:  45,
		}
		if err := mgr.Adopt(ctx, sess, pane); err != nil {
			log.Warn("failed to adopt session", "name", name, "error", err)
			continue
		}
		recovered = append(recovered, sess)
		log.Info("recovered session", "number", number, "alias", sess.Alias)
	}
	return recovered, nil
}
