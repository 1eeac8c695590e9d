package telegram

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/DaveXRouz/conductor/internal/notify"
	"github.com/DaveXRouz/conductor/internal/store"
	"github.com/DaveXRouz/conductor/internal/tmux"
)

const shellTimeout = 30 * time.Second

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	args := strings.TrimSpace(msg.CommandArguments())
	switch msg.Command() {
	case "start", "menu":
		b.cmdMenu(ctx)
	case "help":
		b.cmdHelp(ctx)
	case "status":
		b.cmdStatus(ctx, args)
	case "new":
		b.cmdNew(ctx, args)
	case "output":
		b.cmdOutput(ctx, args)
	case "log":
		b.cmdLog(ctx, args)
	case "tokens":
		b.cmdTokens(ctx, args)
	case "input":
		b.cmdInput(ctx, args)
	case "run":
		b.cmdRun(ctx, args)
	case "shell":
		b.cmdShell(ctx, args)
	case "kill":
		b.cmdDestructive(ctx, "kill", args)
	case "restart":
		b.cmdDestructive(ctx, "restart", args)
	case "pause":
		b.cmdPause(ctx, args)
	case "resume":
		b.cmdResume(ctx, args)
	case "rename":
		b.cmdRename(ctx, args)
	case "auto":
		b.cmdAuto(ctx, args)
	case "quiet":
		b.cmdQuiet(ctx)
	case "settings":
		b.cmdSettings(ctx)
	case "digest":
		b.cmdDigest(ctx)
	default:
		b.reply(ctx, "Unknown command. See /help.")
	}
}

func (b *Bot) resolveOrComplain(ctx context.Context, ref string) *store.Session {
	if ref == "" {
		sessions := b.d.Manager.List()
		if len(sessions) == 1 {
			return sessions[0]
		}
		b.askPick(ctx)
		return nil
	}
	sess := b.d.Manager.Resolve(ref)
	if sess == nil {
		b.reply(ctx, fmt.Sprintf("❌ No session matching %s.", mono(ref)))
	}
	return sess
}

func (b *Bot) askPick(ctx context.Context) {
	sessions := b.d.Manager.List()
	if len(sessions) == 0 {
		b.reply(ctx, "No active sessions. Create one with /new.")
		return
	}
	ids := make([]string, len(sessions))
	labels := make([]string, len(sessions))
	for i, s := range sessions {
		ids[i] = s.ID
		labels[i] = fmt.Sprintf("%s #%d %s", s.ColorEmoji, s.Number, s.Alias)
	}
	b.replyKB(ctx, "Which session?", notify.PickKeyboard(ids, labels))
}

func (b *Bot) cmdMenu(ctx context.Context) {
	kb := notify.Keyboard{
		{{Label: "🔄 Status", Data: "status:refresh"}},
		{{Label: "➕ New session", Data: "new:ask"}},
	}
	b.replyKB(ctx, "🎛️ <b>Conductor</b>\n\nPick an action or type a command.", kb)
}

func (b *Bot) cmdHelp(ctx context.Context) {
	b.reply(ctx, `🎛️ <b>Conductor commands</b>

<b>Sessions</b>
/status [s] — dashboard
/new [cc|sh] [dir] — create session
/kill [s], /restart [s] — teardown (confirmed)
/pause [s], /resume [s] — stop/continue process
/rename [s] &lt;name&gt; — change alias

<b>I/O</b>
/input [s] &lt;text&gt; — send text + Enter
/run [s] &lt;cmd&gt; — run command in session
/shell &lt;cmd&gt; — one-off shell command
/output [s] — AI summary of recent output
/log [s] — raw recent output

<b>Other</b>
/tokens — usage estimate
/auto — auto-responder rules
/quiet — quiet hours
/settings — configuration
/digest — everything at once

Free text goes to the matching session; short replies answer the last prompt.`)
}

func (b *Bot) cmdStatus(ctx context.Context, args string) {
	if args != "" {
		sess := b.resolveOrComplain(ctx, args)
		if sess == nil {
			return
		}
		text := fmt.Sprintf("%s\n%s\nStatus: %s\nDir: %s",
			sessionLabel(sess), strings.Repeat("─", 20), sess.Status, mono(sess.WorkingDir))
		if sess.LastSummary != "" {
			text += "\n\n📋 " + sess.LastSummary
		}
		b.replyKB(ctx, text, notify.StatusKeyboard())
		return
	}

	sessions := b.d.Manager.List()
	if len(sessions) == 0 {
		b.reply(ctx, "No active sessions. Create one with /new.")
		return
	}
	var sb strings.Builder
	sb.WriteString("🎛️ <b>Sessions</b>\n\n")
	for _, s := range sessions {
		sb.WriteString(formatSessionLine(s))
		sb.WriteString("\n")
	}
	usage := b.d.Estimator.Usage("")
	fmt.Fprintf(&sb, "\n🎫 %s %d%% (%d/%d, %s tier)",
		usageBar(usage.Percentage), usage.Percentage, usage.Used, usage.Limit, usage.Tier)
	b.replyKB(ctx, sb.String(), notify.StatusKeyboard())
}

func (b *Bot) cmdNew(ctx context.Context, args string) {
	sessionType := ""
	dir := ""
	if args != "" {
		head, rest := firstWord(args)
		switch head {
		case "cc", "claude":
			sessionType = store.TypeClaudeCode
			dir = rest
		case "sh", "shell":
			sessionType = store.TypeShell
			dir = rest
		default:
			dir = args
		}
	}
	sess, err := b.d.CreateSession(ctx, sessionType, dir, "")
	if err != nil {
		b.reply(ctx, "❌ "+err.Error())
		return
	}
	b.reply(ctx, fmt.Sprintf("✅ Created %s\nType: %s\nDir: %s",
		sessionLabel(sess), sess.Type, mono(sess.WorkingDir)))
}

func (b *Bot) cmdOutput(ctx context.Context, args string) {
	sess := b.resolveOrComplain(ctx, args)
	if sess == nil {
		return
	}
	pane := b.d.Manager.Pane(sess.ID)
	if pane == nil {
		b.reply(ctx, "❌ Session pane not found.")
		return
	}
	lines, err := pane.CaptureRecent(100)
	if err != nil {
		b.reply(ctx, "❌ Could not capture pane output.")
		return
	}
	for i, l := range lines {
		lines[i] = tmux.StripANSI(l)
	}
	summary := b.d.Brain.Summarize(ctx, strings.Join(lines, "\n"))
	b.reply(ctx, fmt.Sprintf("📋 %s\n\n%s", sessionLabel(sess), summary))
}

func (b *Bot) cmdLog(ctx context.Context, args string) {
	sess := b.resolveOrComplain(ctx, args)
	if sess == nil {
		return
	}
	pane := b.d.Manager.Pane(sess.ID)
	if pane == nil {
		b.reply(ctx, "❌ Session pane not found.")
		return
	}
	lines, err := pane.CaptureRecent(50)
	if err != nil {
		b.reply(ctx, "❌ Could not capture pane output.")
		return
	}
	for i, l := range lines {
		lines[i] = tmux.StripANSI(l)
	}
	b.reply(ctx, fmt.Sprintf("📜 %s\n\n%s", sessionLabel(sess), mono(strings.Join(lines, "\n"))))
}

func (b *Bot) cmdTokens(ctx context.Context, args string) {
	sessionID := ""
	if args != "" {
		if sess := b.d.Manager.Resolve(args); sess != nil {
			sessionID = sess.ID
		}
	}
	usage := b.d.Estimator.Usage(sessionID)
	text := fmt.Sprintf("🎫 <b>Token usage</b>\n\n%s %d%%\n%d / %d messages (%s tier)",
		usageBar(usage.Percentage), usage.Percentage, usage.Used, usage.Limit, usage.Tier)
	if usage.ResetIn > 0 {
		text += fmt.Sprintf("\nWindow resets in %s", formatDuration(usage.ResetIn))
	}
	b.reply(ctx, text)
}

func (b *Bot) cmdInput(ctx context.Context, args string) {
	ref, text := firstWord(args)
	if ref == "" || text == "" {
		b.reply(ctx, "Usage: /input &lt;session&gt; &lt;text&gt;")
		return
	}
	sess := b.resolveOrComplain(ctx, ref)
	if sess == nil {
		return
	}
	b.sendToSession(ctx, sess, text)
}

func (b *Bot) sendToSession(ctx context.Context, sess *store.Session, text string) {
	if err := b.d.Manager.SendInput(ctx, sess.ID, text, store.SourceUser, ""); err != nil {
		b.reply(ctx, "⚠️ Failed to send — session pane not found.")
		return
	}
	b.reply(ctx, fmt.Sprintf("📤 Sent to %s: %s", sessionLabel(sess), mono(text)))
}

func (b *Bot) cmdRun(ctx context.Context, args string) {
	ref, command := firstWord(args)
	if ref == "" || command == "" {
		b.reply(ctx, "Usage: /run &lt;session&gt; &lt;command&gt;")
		return
	}
	sess := b.resolveOrComplain(ctx, ref)
	if sess == nil {
		return
	}
	b.sendToSession(ctx, sess, command)
}

func (b *Bot) cmdShell(ctx context.Context, args string) {
	if args == "" {
		b.reply(ctx, "Usage: /shell &lt;command&gt;")
		return
	}
	cctx, cancel := context.WithTimeout(ctx, shellTimeout)
	defer cancel()
	out, err := exec.CommandContext(cctx, "sh", "-c", args).CombinedOutput()
	text := strings.TrimSpace(string(out))
	if len(text) > 3000 {
		text = text[:3000] + "…"
	}
	if err != nil {
		b.reply(ctx, fmt.Sprintf("🔴 %s\n%s", err, mono(text)))
		return
	}
	if text == "" {
		text = "(no output)"
	}
	b.reply(ctx, mono(text))
}

// cmdDestructive runs the two-tap confirmation flow for kill and restart.
func (b *Bot) cmdDestructive(ctx context.Context, action, args string) {
	sess := b.resolveOrComplain(ctx, args)
	if sess == nil {
		return
	}
	if !b.prefs.Security.ConfirmDestructive {
		b.executeDestructive(ctx, action, sess.ID)
		return
	}
	b.d.Confirm.Request(b.userID, action, sess.ID)
	b.replyKB(ctx, fmt.Sprintf("⚠️ Really %s %s?", action, sessionLabel(sess)),
		notify.ConfirmKeyboard(action, sess.ID))
}

func (b *Bot) executeDestructive(ctx context.Context, action, sessionID string) {
	switch action {
	case "kill":
		sess, err := b.d.KillSession(ctx, sessionID)
		if err != nil {
			b.reply(ctx, "❌ "+err.Error())
			return
		}
		b.reply(ctx, fmt.Sprintf("💀 Killed %s.", sessionLabel(sess)))
	case "restart":
		sess, err := b.d.RestartSession(ctx, sessionID)
		if err != nil {
			b.reply(ctx, "❌ "+err.Error())
			return
		}
		b.reply(ctx, fmt.Sprintf("🔄 Restarted as %s.", sessionLabel(sess)))
	}
}

func (b *Bot) cmdPause(ctx context.Context, args string) {
	sess := b.resolveOrComplain(ctx, args)
	if sess == nil {
		return
	}
	got, err := b.d.Manager.Pause(ctx, sess.ID)
	if err != nil {
		b.reply(ctx, "❌ "+err.Error())
		return
	}
	b.reply(ctx, fmt.Sprintf("⏸️ Paused %s.", sessionLabel(got)))
}

func (b *Bot) cmdResume(ctx context.Context, args string) {
	sess := b.resolveOrComplain(ctx, args)
	if sess == nil {
		return
	}
	got, err := b.d.Manager.Resume(ctx, sess.ID)
	if err != nil {
		b.reply(ctx, "❌ "+err.Error())
		return
	}
	b.reply(ctx, fmt.Sprintf("▶️ Resumed %s.", sessionLabel(got)))
}

func (b *Bot) cmdRename(ctx context.Context, args string) {
	ref, alias := firstWord(args)
	if ref == "" || alias == "" {
		b.reply(ctx, "Usage: /rename &lt;session&gt; &lt;new name&gt;")
		return
	}
	sess := b.resolveOrComplain(ctx, ref)
	if sess == nil {
		return
	}
	old := sess.Alias
	renamed, err := b.d.Manager.Rename(ctx, sess.ID, alias)
	if err != nil {
		b.reply(ctx, "❌ "+err.Error())
		return
	}
	b.reply(ctx, fmt.Sprintf("✏️ Renamed %s #%d: %s → <b>%s</b>",
		renamed.ColorEmoji, renamed.Number, old, alias))
}

func (b *Bot) cmdAuto(ctx context.Context, args string) {
	sub, rest := firstWord(args)
	switch sub {
	case "", "list":
		rules, err := b.d.Store.ListRules(ctx, false)
		if err != nil {
			b.reply(ctx, "❌ Could not load rules.")
			return
		}
		if len(rules) == 0 {
			b.reply(ctx, "No auto-response rules. Add one with /auto add &lt;pattern&gt; =&gt; &lt;response&gt;")
			return
		}
		var sb strings.Builder
		state := "enabled"
		if b.d.Responder.Paused() {
			state = "paused"
		}
		fmt.Fprintf(&sb, "🤖 <b>Auto-responder</b> (%s)\n\n", state)
		for _, r := range rules {
			mark := "✅"
			if !r.Enabled {
				mark = "🚫"
			}
			fmt.Fprintf(&sb, "%s #%d [%s] %s → %s (%d hits)\n",
				mark, r.ID, r.MatchType, mono(r.Pattern), mono(r.Response), r.HitCount)
		}
		b.reply(ctx, sb.String())

	case "add":
		pattern, response, ok := strings.Cut(rest, "=>")
		if !ok {
			b.reply(ctx, "Usage: /auto add &lt;pattern&gt; =&gt; &lt;response&gt;")
			return
		}
		id, err := b.d.Store.AddRule(ctx, &store.AutoRule{
			Pattern:   strings.TrimSpace(pattern),
			Response:  strings.TrimSpace(response),
			MatchType: store.MatchContains,
		})
		if err != nil {
			b.reply(ctx, "❌ "+err.Error())
			return
		}
		b.reply(ctx, fmt.Sprintf("✅ Rule #%d added.", id))

	case "del", "remove":
		id, err := strconv.ParseInt(strings.TrimSpace(rest), 10, 64)
		if err != nil {
			b.reply(ctx, "Usage: /auto del &lt;rule id&gt;")
			return
		}
		ok, err := b.d.Store.DeleteRule(ctx, id)
		if err != nil || !ok {
			b.reply(ctx, fmt.Sprintf("❌ No rule #%d.", id))
			return
		}
		b.reply(ctx, fmt.Sprintf("🗑️ Rule #%d removed.", id))

	case "pause":
		b.d.Responder.SetPaused(true)
		b.reply(ctx, "⏸️ Auto-responder paused.")

	case "resume":
		b.d.Responder.SetPaused(false)
		b.reply(ctx, "▶️ Auto-responder resumed.")

	default:
		b.reply(ctx, "Usage: /auto [list|add|del|pause|resume]")
	}
}

func (b *Bot) cmdQuiet(ctx context.Context) {
	q := b.prefs.Notifications.QuietHours
	if !q.Enabled {
		b.reply(ctx, "🔔 Quiet hours disabled. Enable them in config.toml ([notifications.quiet_hours]).")
		return
	}
	b.reply(ctx, fmt.Sprintf("🔕 Quiet hours: %s–%s (%s)\nCompletion and token warnings are held during this window.",
		q.Start, q.End, q.Timezone))
}

func (b *Bot) cmdSettings(ctx context.Context) {
	p := b.prefs
	b.reply(ctx, fmt.Sprintf(`⚙️ <b>Settings</b>

Sessions: max %d, default %s in %s
Tokens: %s tier, warn %d%% / danger %d%% / critical %d%%, %dh window
Monitor: %d/%d/%d ms polls, completion after %ds idle
Notifications: %ds batch window, %ds confirmation TTL
AI: %s, %ds timeout
Auto-responder: enabled=%t`,
		p.Sessions.MaxConcurrent, p.Sessions.DefaultType, mono(p.Sessions.DefaultDir),
		p.Tokens.PlanTier, p.Tokens.WarningPct, p.Tokens.DangerPct, p.Tokens.CriticalPct, p.Tokens.WindowHours,
		p.Monitor.ActivePollIntervalMs, p.Monitor.PollIntervalMs, p.Monitor.IdlePollIntervalMs,
		p.Monitor.CompletionIdleThresholdS,
		p.Notifications.BatchWindowS, p.Notifications.ConfirmationTimeoutS,
		p.AI.Model, p.AI.TimeoutSeconds,
		!b.d.Responder.Paused()))
}

func (b *Bot) cmdDigest(ctx context.Context) {
	sessions := b.d.Manager.List()
	var sb strings.Builder
	sb.WriteString("📊 <b>Digest</b>\n\n")
	if len(sessions) == 0 {
		sb.WriteString("No active sessions.\n")
	}
	for _, s := range sessions {
		sb.WriteString(formatSessionLine(s))
		sb.WriteString("\n")
		if s.LastSummary != "" {
			sb.WriteString("   📋 " + s.LastSummary + "\n")
		}
	}
	usage := b.d.Estimator.Usage("")
	fmt.Fprintf(&sb, "\n🎫 %d/%d messages (%d%%)", usage.Used, usage.Limit, usage.Percentage)
	if b.d.Notifier.QueuedOffline() > 0 {
		fmt.Fprintf(&sb, "\n📡 %d notifications queued offline", b.d.Notifier.QueuedOffline())
	}
	b.reply(ctx, sb.String())
}
