package session

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DaveXRouz/conductor/internal/config"
	"github.com/DaveXRouz/conductor/internal/store"
	"github.com/DaveXRouz/conductor/internal/tmux"
)

// fakeTmux answers the tmux invocations the manager makes.
func fakeTmux(t *testing.T) tmux.Runner {
	t.Helper()
	return func(args ...string) (string, error) {
		switch args[0] {
		case "new-session":
			return "%7\n", nil
		case "send-keys":
			return "", nil
		case "display-message":
			if args[len(args)-1] == "#{pane_pid}" {
				return "4321\n", nil
			}
			return "", nil
		case "kill-session", "has-session":
			return "", nil
		default:
			return "", fmt.Errorf("unexpected tmux call: %v", args)
		}
	}
}

func newTestManager(t *testing.T) (*Manager, string) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	dir := t.TempDir()
	cfg := config.SessionSettings{
		MaxConcurrent: 3,
		DefaultType:   store.TypeClaudeCode,
		DefaultDir:    dir,
	}
	m := NewManager(tmux.NewServerWithRunner(fakeTmux(t)), st, cfg)
	m.signal = func(pid int, sig syscall.Signal) error { return nil }
	return m, dir
}

func TestGuessAlias(t *testing.T) {
	assert.Equal(t, "My-App", GuessAlias("/home/u/projects/my-app"))
	assert.Equal(t, "Api-Server", GuessAlias("/srv/api_server/"))
	assert.Equal(t, "Web", GuessAlias("web"))
}

func TestCreateSession(t *testing.T) {
	m, dir := newTestManager(t)
	sess, err := m.Create(context.Background(), "", "", "")
	require.NoError(t, err)

	assert.Equal(t, 1, sess.Number)
	assert.Equal(t, store.TypeClaudeCode, sess.Type)
	assert.Equal(t, dir, sess.WorkingDir)
	assert.Equal(t, "conductor-1", sess.TmuxSession)
	assert.Equal(t, "%7", sess.TmuxPaneID)
	assert.Equal(t, 4321, sess.PID)
	assert.Equal(t, store.StatusRunning, sess.Status)
	assert.Equal(t, ColorPalette[0], sess.ColorEmoji)
}

func TestCreateRejectsMissingDir(t *testing.T) {
	m, _ := newTestManager(t)
	_, err := m.Create(context.Background(), "", "/does/not/exist", "")
	assert.Error(t, err)
}

func TestCreateEnforcesConcurrencyCap(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := m.Create(ctx, "", "", fmt.Sprintf("s%d", i))
		require.NoError(t, err)
	}
	_, err := m.Create(ctx, "", "", "one-too-many")
	assert.ErrorContains(t, err, "max 3 concurrent")
}

func TestColorsAssignedAndReused(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	a, err := m.Create(ctx, "", "", "a")
	require.NoError(t, err)
	b, err := m.Create(ctx, "", "", "b")
	require.NoError(t, err)
	assert.NotEqual(t, a.ColorEmoji, b.ColorEmoji)

	_, err = m.Kill(ctx, a.ID)
	require.NoError(t, err)
	c, err := m.Create(ctx, "", "", "c")
	require.NoError(t, err)
	assert.Equal(t, a.ColorEmoji, c.ColorEmoji, "freed color should be reused")
}

func TestNumbersReusedAfterKill(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	a, _ := m.Create(ctx, "", "", "a")
	b, _ := m.Create(ctx, "", "", "b")
	require.Equal(t, 1, a.Number)
	require.Equal(t, 2, b.Number)

	_, err := m.Kill(ctx, a.ID)
	require.NoError(t, err)
	c, err := m.Create(ctx, "", "", "c")
	require.NoError(t, err)
	assert.Equal(t, 1, c.Number)
}

func TestCreateDeduplicatesAliases(t *testing.T) {
	m, dir := newTestManager(t)
	ctx := context.Background()

	a, err := m.Create(ctx, "", dir, "")
	require.NoError(t, err)
	b, err := m.Create(ctx, "", dir, "")
	require.NoError(t, err)

	assert.NotEqual(t, a.Alias, b.Alias)
	assert.Equal(t, a.Alias+"-2", b.Alias)
}

func TestKillMarksExited(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	sess, _ := m.Create(ctx, "", "", "a")
	killed, err := m.Kill(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusExited, killed.Status)
	assert.Nil(t, m.Get(sess.ID))
	assert.Empty(t, m.List())
}

func TestPauseResume(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	var signals []syscall.Signal
	m.signal = func(pid int, sig syscall.Signal) error {
		signals = append(signals, sig)
		return nil
	}

	sess, _ := m.Create(ctx, "", "", "a")
	paused, err := m.Pause(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusPaused, paused.Status)

	resumed, err := m.Resume(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusRunning, resumed.Status)
	assert.Equal(t, []syscall.Signal{syscall.SIGSTOP, syscall.SIGCONT}, signals)
}

func TestPauseDeadProcessMarksExited(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	sess, _ := m.Create(ctx, "", "", "a")
	m.signal = func(pid int, sig syscall.Signal) error { return syscall.ESRCH }

	got, err := m.Pause(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusExited, got.Status)
}

func TestRenameValidation(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	a, _ := m.Create(ctx, "", "", "alpha")
	_, _ = m.Create(ctx, "", "", "beta")

	_, err := m.Rename(ctx, a.ID, "")
	assert.Error(t, err)
	_, err = m.Rename(ctx, a.ID, strings.Repeat("x", 51))
	assert.Error(t, err)
	_, err = m.Rename(ctx, a.ID, "BETA")
	assert.ErrorContains(t, err, "already in use")

	renamed, err := m.Rename(ctx, a.ID, "gamma")
	require.NoError(t, err)
	assert.Equal(t, "gamma", renamed.Alias)
}

func TestResolve(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	a, _ := m.Create(ctx, "", "", "Backend-API")
	b, _ := m.Create(ctx, "", "", "Frontend")

	assert.Equal(t, a.ID, m.Resolve("1").ID, "by number")
	assert.Equal(t, b.ID, m.Resolve("#2").ID, "by #number")
	assert.Equal(t, a.ID, m.Resolve("backend-api").ID, "by alias, case-insensitive")
	assert.Equal(t, a.ID, m.Resolve(a.ID).ID, "by id")
	assert.Equal(t, b.ID, m.Resolve("front").ID, "by fuzzy alias")
	assert.Nil(t, m.Resolve("nonexistent-zzz"))
}

func TestSendInputLogsCommand(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	sess, _ := m.Create(ctx, "", "", "a")
	require.NoError(t, m.SendInput(ctx, sess.ID, "y", store.SourceAuto, "rule 1"))

	cmds, err := m.store.ListCommands(ctx, sess.ID, 10)
	require.NoError(t, err)
	require.Len(t, cmds, 1)
	assert.Equal(t, "y", cmds[0].Input)
	assert.Equal(t, store.SourceAuto, cmds[0].Source)
	assert.Equal(t, "rule 1", cmds[0].Context)
}

func TestCommandLoggingToggleSkipsUserCommands(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	sess, _ := m.Create(ctx, "", "", "a")
	m.SetCommandLogging(false)

	require.NoError(t, m.SendInput(ctx, sess.ID, "ls", store.SourceUser, ""))
	require.NoError(t, m.SendInput(ctx, sess.ID, "y", store.SourceAuto, "rule 1"))

	cmds, err := m.store.ListCommands(ctx, sess.ID, 10)
	require.NoError(t, err)
	require.Len(t, cmds, 1, "auto commands are always audited, user ones only when enabled")
	assert.Equal(t, store.SourceAuto, cmds[0].Source)
}

func TestLoadFromStoreRestoresActiveSessions(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	sess, _ := m.Create(ctx, "", "", "a")
	fresh := NewManager(tmux.NewServerWithRunner(fakeTmux(t)), m.store, m.cfg)
	require.NoError(t, fresh.LoadFromStore(ctx))

	got := fresh.Get(sess.ID)
	require.NotNil(t, got)
	assert.Equal(t, "a", got.Alias)
	assert.NotNil(t, fresh.Pane(sess.ID))
}
