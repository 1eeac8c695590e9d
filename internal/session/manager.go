// Package session owns the lifecycle of managed tmux sessions: creation,
// teardown, pause/resume, resolution, and the per-pane monitors that watch
// their output.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/sahilm/fuzzy"

	"github.com/DaveXRouz/conductor/internal/config"
	"github.com/DaveXRouz/conductor/internal/logging"
	"github.com/DaveXRouz/conductor/internal/store"
	"github.com/DaveXRouz/conductor/internal/tmux"
)

// ColorPalette is the fixed set of session color tokens. Colors are reused
// once their session exits.
var ColorPalette = []string{"🔵", "🟣", "🟠", "🟢", "🔴", "🟤"}

var aliasSplit = regexp.MustCompile(`[-_]`)

// GuessAlias derives a readable alias from a working directory:
// "/home/u/projects/my-app" becomes "My-App".
func GuessAlias(workingDir string) string {
	base := filepath.Base(strings.TrimRight(workingDir, "/"))
	parts := aliasSplit.Split(base, -1)
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, "-")
}

// Signaller delivers a signal to a pid. Injectable for tests.
type Signaller func(pid int, sig syscall.Signal) error

// Manager tracks active sessions and their panes. All mutations persist to
// the store before returning.
type Manager struct {
	server *tmux.Server
	store  *store.Store
	cfg    config.SessionSettings
	log    *slog.Logger
	signal Signaller

	// logUserCommands controls whether user-sourced input is audited.
	// Auto and system commands are always recorded.
	logUserCommands bool

	mu       sync.Mutex
	sessions map[string]*store.Session
	panes    map[string]*tmux.Pane
}

// NewManager creates a session manager.
func NewManager(server *tmux.Server, st *store.Store, cfg config.SessionSettings) *Manager {
	return &Manager{
		server:          server,
		store:           st,
		cfg:             cfg,
		log:             logging.ForComponent(logging.CompSession),
		signal:          syscall.Kill,
		logUserCommands: true,
		sessions:        make(map[string]*store.Session),
		panes:           make(map[string]*tmux.Pane),
	}
}

// SetCommandLogging toggles auditing of user-sourced commands
// (security.log_all_commands).
func (m *Manager) SetCommandLogging(enabled bool) {
	m.logUserCommands = enabled
}

// SetSignaller overrides how process signals are delivered (tests).
func (m *Manager) SetSignaller(s Signaller) {
	m.signal = s
}

// LoadFromStore populates the in-memory map from persisted active sessions.
// Called once at startup, before recovery.
func (m *Manager) LoadFromStore(ctx context.Context) error {
	sessions, err := m.store.ListSessions(ctx, true)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range sessions {
		m.sessions[s.ID] = s
		if s.TmuxSession != "" {
			m.panes[s.ID] = m.adoptPane(s)
		}
	}
	return nil
}

func (m *Manager) adoptPane(s *store.Session) *tmux.Pane {
	if pane, err := m.server.AttachPane(s.TmuxSession); err == nil {
		return pane
	}
	return nil
}

func (m *Manager) nextColor() string {
	used := map[string]bool{}
	for _, s := range m.sessions {
		used[s.ColorEmoji] = true
	}
	for _, c := range ColorPalette {
		if !used[c] {
			return c
		}
	}
	return ColorPalette[0]
}

func expandHome(path string) string {
	if path == "~" {
		if home, err := os.UserHomeDir(); err == nil {
			return home
		}
	}
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}

// Create starts a new tmux session and persists it. sessionType defaults to
// the configured default; workingDir defaults likewise.
func (m *Manager) Create(ctx context.Context, sessionType, workingDir, alias string) (*store.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.sessions) >= m.cfg.MaxConcurrent {
		return nil, fmt.Errorf("max %d concurrent sessions reached", m.cfg.MaxConcurrent)
	}

	if sessionType == "" {
		sessionType = m.cfg.DefaultType
	}
	if workingDir == "" {
		workingDir = m.cfg.DefaultDir
	}
	workingDir = expandHome(workingDir)
	if info, err := os.Stat(workingDir); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("directory does not exist: %s", workingDir)
	}

	if alias == "" {
		for pattern, mapped := range m.cfg.Aliases {
			if sameDir(workingDir, expandHome(pattern)) {
				alias = mapped
				break
			}
		}
	}
	if alias == "" {
		alias = GuessAlias(workingDir)
	}
	alias = m.uniqueAlias(alias)

	number, err := m.store.NextSessionNumber(ctx)
	if err != nil {
		return nil, err
	}
	name := fmt.Sprintf("conductor-%d", number)

	pane, err := m.server.NewSession(name, workingDir)
	if err != nil {
		return nil, err
	}
	if sessionType == store.TypeClaudeCode {
		if err := pane.Send("claude", true); err != nil {
			return nil, err
		}
	}
	pid, _ := pane.PID()

	sess := &store.Session{
		ID:          uuid.NewString(),
		Number:      number,
		Alias:       alias,
		Type:        sessionType,
		WorkingDir:  workingDir,
		TmuxSession: name,
		TmuxPaneID:  pane.ID,
		PID:         pid,
		Status:      store.StatusRunning,
		ColorEmoji:  m.nextColor(),
		TokenLimit:  45,
	}
	if err := m.store.CreateSession(ctx, sess); err != nil {
		_ = pane.Kill()
		return nil, err
	}

	m.sessions[sess.ID] = sess
	m.panes[sess.ID] = pane
	m.log.Info("created session", "number", number, "alias", alias, "type", sessionType, "dir", workingDir)
	return sess, nil
}

// uniqueAlias suffixes a numeric counter until the alias is unused among
// active sessions. Caller holds m.mu.
func (m *Manager) uniqueAlias(alias string) string {
	taken := func(a string) bool {
		for _, s := range m.sessions {
			if strings.EqualFold(s.Alias, a) {
				return true
			}
		}
		return false
	}
	base := alias
	for i := 2; taken(alias); i++ {
		alias = fmt.Sprintf("%s-%d", base, i)
	}
	return alias
}

func sameDir(a, b string) bool {
	aa, err1 := filepath.Abs(a)
	bb, err2 := filepath.Abs(b)
	return err1 == nil && err2 == nil && aa == bb
}

// Kill tears a session down and marks it exited.
func (m *Manager) Kill(ctx context.Context, id string) (*store.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if pane := m.panes[id]; pane != nil {
		if err := pane.Kill(); err != nil {
			m.log.Warn("kill tmux session failed", "alias", sess.Alias, "error", err)
		}
	}
	sess.Status = store.StatusExited
	if err := m.store.UpdateSessionStatus(ctx, id, store.StatusExited); err != nil {
		return nil, err
	}
	delete(m.sessions, id)
	delete(m.panes, id)
	m.log.Info("killed session", "number", sess.Number, "alias", sess.Alias)
	return sess, nil
}

// Pause stops a session's process with SIGSTOP.
func (m *Manager) Pause(ctx context.Context, id string) (*store.Session, error) {
	return m.signalStatus(ctx, id, syscall.SIGSTOP, store.StatusPaused)
}

// Resume continues a paused session's process with SIGCONT.
func (m *Manager) Resume(ctx context.Context, id string) (*store.Session, error) {
	return m.signalStatus(ctx, id, syscall.SIGCONT, store.StatusRunning)
}

func (m *Manager) signalStatus(ctx context.Context, id string, sig syscall.Signal, status string) (*store.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if sess.PID == 0 {
		return nil, fmt.Errorf("session %s has no pid", sess.Alias)
	}
	if err := m.signal(sess.PID, sig); err != nil {
		// Process already gone; the session is effectively dead.
		sess.Status = store.StatusExited
		_ = m.store.UpdateSessionStatus(ctx, id, store.StatusExited)
		return sess, nil
	}
	sess.Status = status
	if err := m.store.UpdateSessionStatus(ctx, id, status); err != nil {
		return nil, err
	}
	return sess, nil
}

// MarkStatus updates a session's status in memory and the store.
func (m *Manager) MarkStatus(ctx context.Context, id, status string) error {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	if ok {
		sess.Status = status
		if status == store.StatusExited {
			delete(m.sessions, id)
			delete(m.panes, id)
		}
	}
	m.mu.Unlock()
	if !ok {
		return store.ErrNotFound
	}
	return m.store.UpdateSessionStatus(ctx, id, status)
}

// Rename updates a session's alias after validation.
func (m *Manager) Rename(ctx context.Context, id, alias string) (*store.Session, error) {
	alias = strings.TrimSpace(alias)
	if alias == "" {
		return nil, fmt.Errorf("alias cannot be empty")
	}
	if len(alias) > 50 {
		return nil, fmt.Errorf("alias too long (max 50 chars)")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	for _, other := range m.sessions {
		if other.ID != id && strings.EqualFold(other.Alias, alias) {
			return nil, fmt.Errorf("alias %q already in use", alias)
		}
	}
	sess.Alias = alias
	if err := m.store.UpdateSessionAlias(ctx, id, alias); err != nil {
		return nil, err
	}
	return sess, nil
}

// List returns active sessions ordered by number.
func (m *Manager) List() []*store.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*store.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	sortByNumber(out)
	return out
}

func sortByNumber(sessions []*store.Session) {
	for i := 1; i < len(sessions); i++ {
		for j := i; j > 0 && sessions[j-1].Number > sessions[j].Number; j-- {
			sessions[j-1], sessions[j] = sessions[j], sessions[j-1]
		}
	}
}

// Get returns a session by id.
func (m *Manager) Get(id string) *store.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[id]
}

// Pane returns the tmux pane backing a session, or nil.
func (m *Manager) Pane(id string) *tmux.Pane {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.panes[id]
}

// Resolve finds a session by number ("3" or "#3"), alias (exact then fuzzy,
// case-insensitive), or id.
func (m *Manager) Resolve(identifier string) *store.Session {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	numStr := strings.TrimPrefix(identifier, "#")
	if n, err := strconv.Atoi(numStr); err == nil {
		for _, s := range m.sessions {
			if s.Number == n {
				return s
			}
		}
	}
	for _, s := range m.sessions {
		if strings.EqualFold(s.Alias, identifier) {
			return s
		}
	}
	if s, ok := m.sessions[identifier]; ok {
		return s
	}

	// Fuzzy alias match as a last resort; only accept an unambiguous winner.
	var aliases []string
	var byAlias []*store.Session
	for _, s := range m.sessions {
		aliases = append(aliases, s.Alias)
		byAlias = append(byAlias, s)
	}
	matches := fuzzy.Find(identifier, aliases)
	if len(matches) == 1 || (len(matches) > 1 && matches[0].Score > matches[1].Score) {
		return byAlias[matches[0].Index]
	}
	return nil
}

// SendInput delivers text (plus Enter) to a session's pane and records the
// command in the audit log.
func (m *Manager) SendInput(ctx context.Context, id, text, source, auditContext string) error {
	m.mu.Lock()
	pane := m.panes[id]
	m.mu.Unlock()
	if pane == nil {
		return tmux.ErrPaneGone
	}
	if err := pane.Send(text, true); err != nil {
		return err
	}
	if source != store.SourceUser || m.logUserCommands {
		if err := m.store.LogCommand(ctx, &store.Command{
			SessionID: id,
			Source:    source,
			Input:     text,
			Context:   auditContext,
		}); err != nil {
			m.log.Warn("command audit write failed", "error", err)
		}
	}
	_ = m.store.UpdateSessionActivity(ctx, id, time.Now())
	return nil
}

// SendInterrupt delivers Ctrl-C to a session's pane (auto-response undo).
func (m *Manager) SendInterrupt(ctx context.Context, id string) error {
	m.mu.Lock()
	pane := m.panes[id]
	m.mu.Unlock()
	if pane == nil {
		return tmux.ErrPaneGone
	}
	if err := pane.SendInterrupt(); err != nil {
		return err
	}
	return m.store.LogCommand(ctx, &store.Command{
		SessionID: id,
		Source:    store.SourceSystem,
		Input:     "^C",
		Context:   "auto-response undo",
	})
}

// PIDAlive reports whether a process still exists.
func (m *Manager) PIDAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	return m.signal(pid, syscall.Signal(0)) == nil
}

// Adopt registers an externally discovered session (recovery path).
func (m *Manager) Adopt(ctx context.Context, sess *store.Session, pane *tmux.Pane) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sessions) >= m.cfg.MaxConcurrent {
		return fmt.Errorf("max %d concurrent sessions reached", m.cfg.MaxConcurrent)
	}
	if sess.ColorEmoji == "" {
		sess.ColorEmoji = m.nextColor()
	}
	if err := m.store.CreateSession(ctx, sess); err != nil {
		return err
	}
	m.sessions[sess.ID] = sess
	m.panes[sess.ID] = pane
	return nil
}

// Numbers returns the set of numbers used by active sessions.
func (m *Manager) Numbers() map[int]bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[int]bool, len(m.sessions))
	for _, s := range m.sessions {
		out[s.Number] = true
	}
	return out
}
