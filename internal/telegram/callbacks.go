package telegram

import (
	"context"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/DaveXRouz/conductor/internal/store"
)

// handleCallback dispatches inline button taps by their data prefix.
func (b *Bot) handleCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	// Ack first so the client stops its spinner.
	if _, err := b.api.Request(tgbotapi.NewCallback(cq.ID, "")); err != nil {
		b.log.Debug("callback ack failed", "error", err)
	}

	data := cq.Data
	switch {
	case data == "status:refresh":
		b.cmdStatus(ctx, "")

	case data == "new:ask":
		b.setPending(pendingNewDir, "")
		b.reply(ctx, "➕ Type the new session: <code>[cc|sh] &lt;directory&gt;</code>")

	case strings.HasPrefix(data, "perm:"):
		b.onPermCallback(ctx, strings.TrimPrefix(data, "perm:"))

	case strings.HasPrefix(data, "confirm:"):
		b.onConfirmCallback(ctx, strings.TrimPrefix(data, "confirm:"))

	case strings.HasPrefix(data, "rate:"):
		b.onRateCallback(ctx, strings.TrimPrefix(data, "rate:"))

	case strings.HasPrefix(data, "comp:"):
		b.onCompCallback(ctx, strings.TrimPrefix(data, "comp:"))

	case strings.HasPrefix(data, "suggest:"):
		b.onSuggestCallback(ctx, strings.TrimPrefix(data, "suggest:"))

	case strings.HasPrefix(data, "undo:"):
		b.onUndoCallback(ctx, strings.TrimPrefix(data, "undo:"))

	case strings.HasPrefix(data, "pick:"):
		b.onPickCallback(ctx, strings.TrimPrefix(data, "pick:"))

	default:
		b.log.Warn("unknown callback", "data", data)
	}
}

func (b *Bot) onPermCallback(ctx context.Context, rest string) {
	action, sessionID, ok := strings.Cut(rest, ":")
	if !ok {
		return
	}
	sess := b.d.Manager.Get(sessionID)
	if sess == nil {
		b.reply(ctx, "❌ Session no longer exists.")
		return
	}
	switch action {
	case "allow":
		if err := b.d.Manager.SendInput(ctx, sessionID, "y", store.SourceUser, "permission allow"); err != nil {
			b.reply(ctx, "⚠️ Failed to send — session pane not found.")
			return
		}
		b.reply(ctx, fmt.Sprintf("✅ Allowed in %s.", sessionLabel(sess)))
	case "deny":
		if err := b.d.Manager.SendInput(ctx, sessionID, "n", store.SourceUser, "permission deny"); err != nil {
			b.reply(ctx, "⚠️ Failed to send — session pane not found.")
			return
		}
		b.reply(ctx, fmt.Sprintf("❌ Denied in %s.", sessionLabel(sess)))
	case "context":
		_, text, fresh := b.d.Dispatcher.LastPrompt()
		if !fresh || text == "" {
			b.cmdLog(ctx, sessionID)
			return
		}
		b.reply(ctx, fmt.Sprintf("📄 %s\n\n%s", sessionLabel(sess), mono(text)))
	}
}

func (b *Bot) onConfirmCallback(ctx context.Context, rest string) {
	if cancelRest, ok := strings.CutPrefix(rest, "cancel:"); ok {
		action, sessionID, ok := strings.Cut(cancelRest, ":")
		if !ok {
			return
		}
		b.d.Confirm.Cancel(b.userID, action, sessionID)
		b.reply(ctx, "Cancelled.")
		return
	}
	action, sessionID, ok := strings.Cut(rest, ":")
	if !ok {
		return
	}
	if !b.d.Confirm.Confirm(b.userID, action, sessionID) {
		b.reply(ctx, "⏰ Confirmation expired — run the command again.")
		return
	}
	b.executeDestructive(ctx, action, sessionID)
}

func (b *Bot) onRateCallback(ctx context.Context, rest string) {
	action, sessionID, ok := strings.Cut(rest, ":")
	if !ok {
		return
	}
	switch action {
	case "resume":
		b.cmdResume(ctx, sessionID)
	case "wait":
		sess := b.d.Manager.Get(sessionID)
		if sess == nil {
			b.reply(ctx, "❌ Session no longer exists.")
			return
		}
		b.reply(ctx, fmt.Sprintf("⏰ %s will auto-resume in 15 minutes.", sessionLabel(sess)))
		time.AfterFunc(15*time.Minute, func() {
			rctx := context.Background()
			if resumed, err := b.d.Manager.Resume(rctx, sessionID); err == nil {
				b.reply(rctx, fmt.Sprintf("▶️ Auto-resumed %s after rate-limit pause.", sessionLabel(resumed)))
			}
		})
	case "switch":
		b.askPick(ctx)
	}
}

func (b *Bot) onCompCallback(ctx context.Context, rest string) {
	action, sessionID, ok := strings.Cut(rest, ":")
	if !ok {
		return
	}
	switch action {
	case "output":
		b.cmdOutput(ctx, sessionID)
	case "input":
		sess := b.d.Manager.Get(sessionID)
		if sess == nil {
			b.reply(ctx, "❌ Session no longer exists.")
			return
		}
		b.setPending(pendingInput, sessionID)
		b.reply(ctx, fmt.Sprintf("✍️ Type the next task for %s:", sessionLabel(sess)))
	}
}

func (b *Bot) onSuggestCallback(ctx context.Context, rest string) {
	sessionID, idxStr, ok := strings.Cut(rest, ":")
	if !ok {
		return
	}
	suggestions := b.d.Dispatcher.Suggestions(sessionID)
	idx := -1
	fmt.Sscanf(idxStr, "%d", &idx)
	if idx < 0 || idx >= len(suggestions) {
		b.reply(ctx, "⏰ That suggestion is no longer available.")
		return
	}
	sess := b.d.Manager.Get(sessionID)
	if sess == nil {
		b.reply(ctx, "❌ Session no longer exists.")
		return
	}
	b.sendToSession(ctx, sess, suggestions[idx].Command)
}

func (b *Bot) onUndoCallback(ctx context.Context, sessionID string) {
	if b.d.Dispatcher.Undo(ctx, sessionID) {
		b.reply(ctx, "↩️ Auto-response cancelled (best effort).")
		return
	}
	b.reply(ctx, "⏰ Undo window passed — nothing cancelled.")
}

func (b *Bot) onPickCallback(ctx context.Context, rest string) {
	// Two forms: "pick:<sessionID>" selects a target for the next message,
	// "pick:<sessionID>:<n>" answers a numbered choice prompt directly.
	sessionID, option, hasOption := strings.Cut(rest, ":")
	sess := b.d.Manager.Get(sessionID)
	if sess == nil {
		b.reply(ctx, "❌ Session no longer exists.")
		return
	}
	if hasOption {
		if err := b.d.Manager.SendInput(ctx, sessionID, option, store.SourceUser, "option pick"); err != nil {
			b.reply(ctx, "⚠️ Failed to send — session pane not found.")
			return
		}
		b.reply(ctx, fmt.Sprintf("📤 Sent option %s to %s.", option, sessionLabel(sess)))
		return
	}
	b.setPicked(sessionID)
	b.reply(ctx, fmt.Sprintf("🎯 Next message goes to %s.", sessionLabel(sess)))
}
