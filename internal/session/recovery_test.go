package session

import (
	"context"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DaveXRouz/conductor/internal/config"
	"github.com/DaveXRouz/conductor/internal/store"
	"github.com/DaveXRouz/conductor/internal/tmux"
)

func recoveryRunner(sessions map[string]int) tmux.Runner {
	return func(args ...string) (string, error) {
		switch args[0] {
		case "list-sessions":
			out := ""
			for name := range sessions {
				out += name + "\n"
			}
			return out, nil
		case "display-message":
			switch args[len(args)-1] {
			case "#{pane_id}":
				return "%9\n", nil
			case "#{pane_pid}":
				return "7777\n", nil
			case "#{pane_current_path}":
				return "/home/u/projects/legacy-app\n", nil
			}
			return "", nil
		default:
			return "", nil
		}
	}
}

func TestRecoverAdoptsUntrackedConductorSessions(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	srv := tmux.NewServerWithRunner(recoveryRunner(map[string]int{
		"conductor-4": 7777,
		"unrelated":   1,
	}))
	mgr := NewManager(srv, st, config.SessionSettings{MaxConcurrent: 5})
	mgr.signal = func(pid int, sig syscall.Signal) error { return nil }

	recovered, err := Recover(context.Background(), srv, mgr)
	require.NoError(t, err)
	require.Len(t, recovered, 1)

	sess := recovered[0]
	assert.Equal(t, 4, sess.Number)
	assert.Equal(t, "conductor-4", sess.TmuxSession)
	assert.Equal(t, "Legacy-App", sess.Alias)
	assert.Equal(t, 7777, sess.PID)
	assert.Equal(t, store.StatusRunning, sess.Status)

	// Persisted and tracked.
	persisted, err := st.GetSession(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, persisted.Number)
	assert.NotNil(t, mgr.Get(sess.ID))
}

func TestRecoverSkipsDeadAndTracked(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	srv := tmux.NewServerWithRunner(recoveryRunner(map[string]int{"conductor-2": 1}))
	mgr := NewManager(srv, st, config.SessionSettings{MaxConcurrent: 5})

	// Dead process: signal probe fails.
	mgr.signal = func(pid int, sig syscall.Signal) error { return syscall.ESRCH }
	recovered, err := Recover(context.Background(), srv, mgr)
	require.NoError(t, err)
	assert.Empty(t, recovered)
}
