package tmux

import (
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// ErrPaneGone is returned when tmux reports the target session or pane no
// longer exists. Monitors treat this as terminal and mark the session exited.
var ErrPaneGone = errors.New("tmux pane gone")

// Runner executes a tmux command and returns its stdout. Injectable so tests
// can fake the tmux binary.
type Runner func(args ...string) (string, error)

func execRunner(args ...string) (string, error) {
	out, err := exec.Command("tmux", args...).Output()
	if err != nil {
		return "", fmt.Errorf("tmux %s: %w", strings.Join(args, " "), err)
	}
	return string(out), nil
}

// Server is a handle to the local tmux server.
type Server struct {
	run Runner
}

// NewServer returns a Server that shells out to the tmux binary.
func NewServer() *Server {
	return &Server{run: execRunner}
}

// NewServerWithRunner returns a Server using a custom runner (tests).
func NewServerWithRunner(run Runner) *Server {
	return &Server{run: run}
}

// NewSession creates a detached tmux session rooted at dir and returns a Pane
// for its single pane.
func (s *Server) NewSession(name, dir string) (*Pane, error) {
	out, err := s.run("new-session", "-d", "-s", name, "-c", dir, "-P", "-F", "#{pane_id}")
	if err != nil {
		return nil, fmt.Errorf("create session %q: %w", name, err)
	}
	paneID := strings.TrimSpace(out)
	if paneID == "" {
		return nil, fmt.Errorf("create session %q: no pane id returned", name)
	}
	return &Pane{Session: name, ID: paneID, run: s.run}, nil
}

// ListSessions returns the names of all sessions on the server. A missing
// server (no sessions at all) is reported as an empty list, not an error.
func (s *Server) ListSessions() ([]string, error) {
	out, err := s.run("list-sessions", "-F", "#{session_name}")
	if err != nil {
		return nil, nil
	}
	var names []string
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line != "" {
			names = append(names, line)
		}
	}
	return names, nil
}

// AttachPane returns a Pane handle for an existing session's active pane.
func (s *Server) AttachPane(session string) (*Pane, error) {
	out, err := s.run("display-message", "-p", "-t", session, "#{pane_id}")
	if err != nil {
		return nil, ErrPaneGone
	}
	return &Pane{Session: session, ID: strings.TrimSpace(out), run: s.run}, nil
}

// Pane addresses one tmux pane. All operations go through the tmux binary;
// any failure is surfaced as ErrPaneGone so callers can tear down cleanly.
type Pane struct {
	Session string
	ID      string

	run Runner
}

// NewPaneForTest builds a Pane over a custom runner. Test helper.
func NewPaneForTest(session, id string, run Runner) *Pane {
	return &Pane{Session: session, ID: id, run: run}
}

func (p *Pane) target() string {
	if p.ID != "" {
		return p.ID
	}
	return p.Session
}

// CaptureRecent returns the last maxLines lines of the pane's visible
// content and scrollback, oldest first.
func (p *Pane) CaptureRecent(maxLines int) ([]string, error) {
	out, err := p.run("capture-pane", "-p", "-t", p.target(), "-S", fmt.Sprintf("-%d", maxLines))
	if err != nil {
		return nil, ErrPaneGone
	}
	return strings.Split(strings.TrimSuffix(out, "\n"), "\n"), nil
}

// Send delivers text into the pane as literal keystrokes, optionally followed
// by Enter.
func (p *Pane) Send(text string, enter bool) error {
	if text != "" {
		if _, err := p.run("send-keys", "-t", p.target(), "-l", text); err != nil {
			return ErrPaneGone
		}
	}
	if enter {
		if _, err := p.run("send-keys", "-t", p.target(), "Enter"); err != nil {
			return ErrPaneGone
		}
	}
	return nil
}

// SendInterrupt delivers Ctrl-C to the pane. Used by the auto-response undo
// path; its effect on a command already in flight is best effort.
func (p *Pane) SendInterrupt() error {
	if _, err := p.run("send-keys", "-t", p.target(), "C-c"); err != nil {
		return ErrPaneGone
	}
	return nil
}

// Exists reports whether the pane's session is still known to the server.
func (p *Pane) Exists() bool {
	_, err := p.run("has-session", "-t", p.Session)
	return err == nil
}

// Kill destroys the pane's session.
func (p *Pane) Kill() error {
	if _, err := p.run("kill-session", "-t", p.Session); err != nil {
		return ErrPaneGone
	}
	return nil
}

// PID returns the pid of the process running in the pane.
func (p *Pane) PID() (int, error) {
	out, err := p.run("display-message", "-p", "-t", p.target(), "#{pane_pid}")
	if err != nil {
		return 0, ErrPaneGone
	}
	pid, err := strconv.Atoi(strings.TrimSpace(out))
	if err != nil {
		return 0, fmt.Errorf("parse pane pid: %w", err)
	}
	return pid, nil
}

// CurrentPath returns the pane's current working directory.
func (p *Pane) CurrentPath() (string, error) {
	out, err := p.run("display-message", "-p", "-t", p.target(), "#{pane_current_path}")
	if err != nil {
		return "", ErrPaneGone
	}
	return strings.TrimSpace(out), nil
}
