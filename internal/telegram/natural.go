package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/DaveXRouz/conductor/internal/store"
	"github.com/DaveXRouz/conductor/internal/tmux"
)

// menuRoutes maps reply-keyboard button text to commands.
var menuRoutes = map[string]string{
	"menu":   "menu",
	"status": "status",
	"output": "output",
	"tokens": "tokens",
	"help":   "help",
}

// handleText processes a non-command message. Order: pending one-shot input,
// menu button taps, picked session, then the session resolution ladder.
func (b *Bot) handleText(ctx context.Context, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	// One-shot collectors armed by a previous button tap come first, so that
	// typing "Status" as a rename value doesn't trigger menu dispatch.
	if kind, sid := b.takePending(); kind != pendingNone {
		b.handlePendingText(ctx, kind, sid, text)
		return
	}

	if route, ok := menuRoutes[strings.ToLower(text)]; ok {
		switch route {
		case "menu":
			b.cmdMenu(ctx)
		case "status":
			b.cmdStatus(ctx, "")
		case "output":
			b.cmdOutput(ctx, "")
		case "tokens":
			b.cmdTokens(ctx, "")
		case "help":
			b.cmdHelp(ctx)
		}
		return
	}

	if picked := b.takePicked(); picked != "" {
		if sess := b.d.Manager.Get(picked); sess != nil {
			b.guardedSend(ctx, sess, text)
			return
		}
	}

	// Quick reply to the most recent prompt, explicit reference, or sole
	// active session.
	if sess := b.d.Dispatcher.ResolveTarget(ctx, text); sess != nil {
		if parsed := b.tryNLCommand(ctx, text, sess); parsed {
			return
		}
		b.guardedSend(ctx, sess, text)
		return
	}

	// No target session. The message may still be a command ("show status").
	if b.tryNLCommand(ctx, text, nil) {
		return
	}
	b.askPick(ctx)
}

// guardedSend relays free text into a pane, refusing destructive content;
// /input exists for deliberate sends.
func (b *Bot) guardedSend(ctx context.Context, sess *store.Session, text string) {
	if tmux.HasDestructiveKeyword(text) {
		b.reply(ctx, "⚠️ Blocked: destructive keyword detected. Use /input to send explicitly.")
		return
	}
	b.sendToSession(ctx, sess, text)
}

// tryNLCommand checks whether the message parses into a bot command rather
// than pane input. Only high-confidence, non-input commands divert.
func (b *Bot) tryNLCommand(ctx context.Context, text string, _ *store.Session) bool {
	sessions := b.d.Manager.List()
	type entry struct {
		Number int    `json:"number"`
		Alias  string `json:"alias"`
		Status string `json:"status"`
	}
	list := make([]entry, len(sessions))
	for i, s := range sessions {
		list[i] = entry{s.Number, s.Alias, s.Status}
	}
	listJSON, _ := json.Marshal(list)
	_, promptCtx, _ := b.d.Dispatcher.LastPrompt()

	parsed := b.d.Brain.ParseNL(ctx, text, string(listJSON), promptCtx)
	if parsed.Confidence < 0.8 || parsed.Command == "unknown" || parsed.Command == "input" {
		return false
	}

	switch parsed.Command {
	case "status":
		b.cmdStatus(ctx, parsed.Session)
	case "output":
		b.cmdOutput(ctx, parsed.Session)
	case "log":
		b.cmdLog(ctx, parsed.Session)
	case "tokens":
		b.cmdTokens(ctx, parsed.Session)
	case "kill":
		b.cmdDestructive(ctx, "kill", parsed.Session)
	case "restart":
		b.cmdDestructive(ctx, "restart", parsed.Session)
	case "pause":
		b.cmdPause(ctx, parsed.Session)
	case "resume":
		b.cmdResume(ctx, parsed.Session)
	case "digest":
		b.cmdDigest(ctx)
	case "help":
		b.cmdHelp(ctx)
	case "shell":
		b.cmdShell(ctx, parsed.Args["command"])
	case "run":
		if cmd := parsed.Args["command"]; cmd != "" && parsed.Session != "" {
			b.cmdRun(ctx, fmt.Sprintf("%s %s", parsed.Session, cmd))
		} else {
			return false
		}
	default:
		return false
	}
	return true
}

func (b *Bot) handlePendingText(ctx context.Context, kind pendingKind, sessionID, text string) {
	switch kind {
	case pendingInput:
		sess := b.d.Manager.Get(sessionID)
		if sess == nil {
			b.reply(ctx, "❌ Session no longer exists.")
			return
		}
		b.guardedSend(ctx, sess, text)

	case pendingRename:
		sess := b.d.Manager.Get(sessionID)
		if sess == nil {
			b.reply(ctx, "❌ Session no longer exists.")
			return
		}
		b.cmdRename(ctx, fmt.Sprintf("#%d %s", sess.Number, text))

	case pendingNewDir:
		b.cmdNew(ctx, text)
	}
}
