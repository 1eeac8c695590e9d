package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/DaveXRouz/conductor/internal/ai"
	"github.com/DaveXRouz/conductor/internal/autoresponder"
	"github.com/DaveXRouz/conductor/internal/logging"
	"github.com/DaveXRouz/conductor/internal/notify"
	"github.com/DaveXRouz/conductor/internal/session"
	"github.com/DaveXRouz/conductor/internal/store"
	"github.com/DaveXRouz/conductor/internal/tmux"
	"github.com/DaveXRouz/conductor/internal/tokens"
)

const (
	lastPromptTTL = 60 * time.Second
	undoTTL       = 30 * time.Second
)

// Dispatcher consumes classified monitor events and orchestrates every other
// component. It is the only piece that knows them all; each pane's events are
// processed serially in arrival order.
type Dispatcher struct {
	mgr       *session.Manager
	st        *store.Store
	notifier  *notify.Notifier
	responder *autoresponder.Responder
	brain     *ai.Brain
	estimator *tokens.Estimator
	escalator *Escalator
	events    chan session.Event
	log       *slog.Logger

	mu              sync.Mutex
	lastPromptID    string
	lastPromptText  string
	lastPromptAt    time.Time
	lastSuggestions map[string][]ai.Suggestion
	undoDeadline    map[string]time.Time

	now func() time.Time
}

// NewDispatcher wires the event pipeline together.
func NewDispatcher(mgr *session.Manager, st *store.Store, notifier *notify.Notifier,
	responder *autoresponder.Responder, brain *ai.Brain, estimator *tokens.Estimator,
	escalator *Escalator) *Dispatcher {

	return &Dispatcher{
		mgr:             mgr,
		st:              st,
		notifier:        notifier,
		responder:       responder,
		brain:           brain,
		estimator:       estimator,
		escalator:       escalator,
		events:          make(chan session.Event, 64),
		log:             logging.ForComponent(logging.CompDispatch),
		lastSuggestions: make(map[string][]ai.Suggestion),
		undoDeadline:    make(map[string]time.Time),
		now:             time.Now,
	}
}

// Events returns the channel monitors emit into.
func (d *Dispatcher) Events() chan<- session.Event {
	return d.events
}

// Run consumes events until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-d.events:
			d.Handle(ctx, ev)
		}
	}
}

// Handle processes one classified event.
func (d *Dispatcher) Handle(ctx context.Context, ev session.Event) {
	switch ev.Result.Type {
	case tmux.DetectPermissionPrompt:
		d.handlePermissionPrompt(ctx, ev)
	case tmux.DetectInputPrompt:
		d.handleInputPrompt(ctx, ev)
	case tmux.DetectRateLimit:
		d.handleRateLimit(ctx, ev)
	case tmux.DetectError:
		d.handleError(ctx, ev)
	case tmux.DetectCompletion:
		d.handleCompletion(ctx, ev)
	case tmux.DetectNone:
		// Monitors do not emit these.
	}
	_ = d.st.UpdateSessionActivity(ctx, ev.Session.ID, d.now())
}

func tail(lines []string, n int) string {
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

func clip(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func (d *Dispatcher) label(sess *store.Session) string {
	return fmt.Sprintf("%s #%d %s", sess.ColorEmoji, sess.Number, sess.Alias)
}

func (d *Dispatcher) handlePermissionPrompt(ctx context.Context, ev session.Event) {
	text := tail(ev.Lines, 10)
	msg := fmt.Sprintf("❓ %s — waiting for approval:\n\n%s", d.label(ev.Session), clip(text, 500))
	msgID := d.notifier.SendImmediate(ctx, msg, notify.PermissionKeyboard(ev.Session.ID))

	_ = d.mgr.MarkStatus(ctx, ev.Session.ID, store.StatusWaiting)
	d.rememberPrompt(ev.Session.ID, text)
	d.logEvent(ctx, ev.Session.ID, store.EventInputRequired, text, msgID)
}

func (d *Dispatcher) handleInputPrompt(ctx context.Context, ev session.Event) {
	text := tail(ev.Lines, 10)

	rules, err := d.st.ListRules(ctx, true)
	if err != nil {
		d.escalator.Record(ctx, "store", err)
		rules = nil
	}
	decision := d.responder.Decide(text, rules)
	if decision.Respond {
		d.autoRespond(ctx, ev, decision)
		return
	}

	msg := fmt.Sprintf("❓ %s — waiting for input:\n\n%s", d.label(ev.Session), clip(text, 500))
	msgID := d.notifier.SendImmediate(ctx, msg, notify.InputKeyboard(ev.Session.ID, ev.Lines))

	_ = d.mgr.MarkStatus(ctx, ev.Session.ID, store.StatusWaiting)
	d.rememberPrompt(ev.Session.ID, text)
	d.logEvent(ctx, ev.Session.ID, store.EventInputRequired, text, msgID)
}

func (d *Dispatcher) autoRespond(ctx context.Context, ev session.Event, decision autoresponder.Decision) {
	ruleCtx := fmt.Sprintf("rule %d", decision.RuleID)
	if err := d.mgr.SendInput(ctx, ev.Session.ID, decision.Response, store.SourceAuto, ruleCtx); err != nil {
		d.log.Warn("auto-response failed", "alias", ev.Session.Alias, "error", err)
		return
	}
	go func() {
		if err := d.st.IncrementRuleHit(context.Background(), decision.RuleID); err != nil {
			d.log.Warn("rule hit increment failed", "rule_id", decision.RuleID, "error", err)
		}
	}()

	d.mu.Lock()
	d.undoDeadline[ev.Session.ID] = d.now().Add(undoTTL)
	d.mu.Unlock()

	shown := decision.Response
	if shown == "" {
		shown = "(enter)"
	}
	msg := fmt.Sprintf("🤖 %s — auto-responded: %s", d.label(ev.Session), shown)
	d.notifier.Send(ctx, notify.KindAutoResponse, msg, notify.UndoKeyboard(ev.Session.ID), true)
	d.logEvent(ctx, ev.Session.ID, store.EventAutoResponse, "Auto: "+decision.Response, 0)
}

// Undo cancels a recent auto-response with an interrupt keystroke. Best
// effort: the response may already have taken effect.
func (d *Dispatcher) Undo(ctx context.Context, sessionID string) bool {
	d.mu.Lock()
	deadline, ok := d.undoDeadline[sessionID]
	delete(d.undoDeadline, sessionID)
	d.mu.Unlock()
	if !ok || d.now().After(deadline) {
		return false
	}
	if err := d.mgr.SendInterrupt(ctx, sessionID); err != nil {
		d.log.Warn("undo interrupt failed", "session", sessionID, "error", err)
		return false
	}
	return true
}

func (d *Dispatcher) handleRateLimit(ctx context.Context, ev session.Event) {
	if _, err := d.mgr.Pause(ctx, ev.Session.ID); err != nil {
		d.log.Warn("rate-limit pause failed", "alias", ev.Session.Alias, "error", err)
	}
	_ = d.mgr.MarkStatus(ctx, ev.Session.ID, store.StatusRateLimited)

	msg := fmt.Sprintf("⚠️ %s — rate limited, paused automatically.\n\n%s",
		d.label(ev.Session), clip(ev.Result.MatchedText, 200))
	msgID := d.notifier.SendImmediate(ctx, msg, notify.RateLimitKeyboard(ev.Session.ID))
	d.logEvent(ctx, ev.Session.ID, store.EventRateLimit, ev.Result.MatchedText, msgID)
}

func (d *Dispatcher) handleError(ctx context.Context, ev session.Event) {
	text := tail(ev.Lines, 10)
	msg := fmt.Sprintf("🔴 %s — error detected:\n\n%s", d.label(ev.Session), clip(text, 500))
	msgID := d.notifier.SendImmediate(ctx, msg, nil)

	_ = d.mgr.MarkStatus(ctx, ev.Session.ID, store.StatusError)
	d.logEvent(ctx, ev.Session.ID, store.EventError, clip(text, 500), msgID)
}

func (d *Dispatcher) handleCompletion(ctx context.Context, ev session.Event) {
	output := tail(ev.Lines, 50)
	summary := d.brain.Summarize(ctx, output)
	suggestions := d.brain.Suggest(ctx, output, ev.Session.Alias, ev.Session.Type, ev.Session.WorkingDir)

	d.mu.Lock()
	d.lastSuggestions[ev.Session.ID] = suggestions
	d.mu.Unlock()

	if err := d.st.UpdateSessionSummary(ctx, ev.Session.ID, summary); err != nil {
		d.escalator.Record(ctx, "store", err)
	}
	ev.Session.LastSummary = summary

	kb := notify.CompletionKeyboard(ev.Session.ID)
	msg := fmt.Sprintf("✅ %s — task complete\n\n%s", d.label(ev.Session), summary)
	if len(suggestions) > 0 {
		labels := make([]string, len(suggestions))
		for i, s := range suggestions {
			labels[i] = s.Label
		}
		kb = notify.SuggestionKeyboard(ev.Session.ID, labels)
		msg += "\n\n💡 Suggested: " + strings.Join(labels, ", ")
	}
	d.notifier.Send(ctx, notify.KindCompleted, msg, kb, true)
	d.logEvent(ctx, ev.Session.ID, store.EventCompleted, summary, 0)

	d.countResponse(ctx, ev)
}

// countResponse feeds the token estimator and reacts to crossed thresholds.
// A critical reading force-pauses the session in the same dispatcher tick.
func (d *Dispatcher) countResponse(ctx context.Context, ev session.Event) {
	d.estimator.OnResponse(ev.Session.ID)
	usage := d.estimator.Usage(ev.Session.ID)
	_ = d.st.UpdateSessionTokens(ctx, ev.Session.ID, usage.Used, usage.Limit)

	level := d.estimator.CheckThresholds()
	if level == tokens.LevelNone {
		return
	}
	total := d.estimator.Usage("")
	msg := fmt.Sprintf("⚠️ %s — token usage at %d%% (%s)", d.label(ev.Session), total.Percentage, level)
	d.logEvent(ctx, ev.Session.ID, store.EventTokenWarning, fmt.Sprintf("%d%%", total.Percentage), 0)

	if level == tokens.LevelCritical {
		if _, err := d.mgr.Pause(ctx, ev.Session.ID); err == nil {
			_ = d.mgr.MarkStatus(ctx, ev.Session.ID, store.StatusRateLimited)
		}
		d.notifier.SendImmediate(ctx, msg+" — session paused", notify.RateLimitKeyboard(ev.Session.ID))
		return
	}
	d.notifier.Send(ctx, notify.KindTokenWarning, msg, nil, level == tokens.LevelWarning)
}

func (d *Dispatcher) logEvent(ctx context.Context, sessionID, eventType, message string, msgID int64) {
	if _, err := d.st.LogEvent(ctx, &store.Event{
		SessionID:         sessionID,
		EventType:         eventType,
		Message:           message,
		TelegramMessageID: msgID,
	}); err != nil {
		d.escalator.Record(ctx, "store", err)
	}
}

func (d *Dispatcher) rememberPrompt(sessionID, text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastPromptID = sessionID
	d.lastPromptText = text
	d.lastPromptAt = d.now()
}

// LastPrompt returns the most recent prompting session if it is still fresh.
func (d *Dispatcher) LastPrompt() (sessionID, text string, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lastPromptID == "" || d.now().Sub(d.lastPromptAt) > lastPromptTTL {
		return "", "", false
	}
	return d.lastPromptID, d.lastPromptText, true
}

// Suggestions returns the suggestions last produced for a session.
func (d *Dispatcher) Suggestions(sessionID string) []ai.Suggestion {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastSuggestions[sessionID]
}

// looksLikeReply reports whether a user message reads as an answer to a
// prompt rather than a new instruction.
func looksLikeReply(text string) bool {
	t := strings.TrimSpace(strings.ToLower(text))
	if len(t) == 0 || len(t) > 10 {
		return false
	}
	switch t {
	case "y", "n", "yes", "no", "a", "always", "ok":
		return true
	}
	for _, r := range t {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// ResolveTarget picks the session a free-text user message is aimed at,
// walking the resolution ladder: fresh prompt reply, explicit reference,
// sole active session, then an AI guess above the confidence bar. A nil
// result means the caller should ask the user to pick.
func (d *Dispatcher) ResolveTarget(ctx context.Context, text string) *store.Session {
	if id, _, ok := d.LastPrompt(); ok && looksLikeReply(text) {
		if sess := d.mgr.Get(id); sess != nil && sess.Status == store.StatusWaiting {
			return sess
		}
	}

	for _, token := range strings.Fields(text) {
		if strings.HasPrefix(token, "#") {
			if sess := d.mgr.Resolve(token); sess != nil {
				return sess
			}
		}
	}
	if sess := d.mgr.Resolve(text); sess != nil {
		return sess
	}

	active := d.mgr.List()
	if len(active) == 1 {
		return active[0]
	}

	type entry struct {
		Number int    `json:"number"`
		Alias  string `json:"alias"`
		Status string `json:"status"`
	}
	list := make([]entry, len(active))
	for i, s := range active {
		list[i] = entry{Number: s.Number, Alias: s.Alias, Status: s.Status}
	}
	listJSON, _ := json.Marshal(list)
	_, promptCtx, _ := d.LastPrompt()

	parsed := d.brain.ParseNL(ctx, text, string(listJSON), promptCtx)
	if parsed.Confidence > 0.8 && parsed.Session != "" {
		if sess := d.mgr.Resolve(parsed.Session); sess != nil {
			return sess
		}
	}
	return nil
}
