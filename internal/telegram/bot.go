package telegram

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/DaveXRouz/conductor/internal/config"
	"github.com/DaveXRouz/conductor/internal/daemon"
	"github.com/DaveXRouz/conductor/internal/logging"
	"github.com/DaveXRouz/conductor/internal/notify"
)

// pendingKind marks what the next free-text message should be used for after
// a button tap (send input, rename, new-session directory).
type pendingKind string

const (
	pendingNone    pendingKind = ""
	pendingInput   pendingKind = "input"
	pendingRename  pendingKind = "rename"
	pendingNewDir  pendingKind = "new_dir"
)

// Bot is the chat front-end. Exactly one numeric user id is authorized;
// every other update is dropped.
type Bot struct {
	api    *tgbotapi.BotAPI
	d      *daemon.Daemon
	userID int64
	prefs  config.Preferences
	log    *slog.Logger

	mu             sync.Mutex
	pending        pendingKind
	pendingSession string
	pickedSession  string
}

// NewBot creates the front-end over an authenticated API client.
func NewBot(api *tgbotapi.BotAPI, d *daemon.Daemon, userID int64, prefs config.Preferences) *Bot {
	return &Bot{
		api:    api,
		d:      d,
		userID: userID,
		prefs:  prefs,
		log:    logging.ForComponent(logging.CompTelegram),
	}
}

// Run long-polls for updates until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) {
	b.registerCommands()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update := <-updates:
			b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		if update.CallbackQuery.From == nil || update.CallbackQuery.From.ID != b.userID {
			b.log.Warn("callback from unauthorized user", "user", callbackUserID(update))
			return
		}
		b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		if update.Message.From == nil || update.Message.From.ID != b.userID {
			b.log.Warn("message from unauthorized user", "user", messageUserID(update))
			return
		}
		if update.Message.IsCommand() {
			b.handleCommand(ctx, update.Message)
		} else if update.Message.Text != "" {
			b.handleText(ctx, update.Message.Text)
		}
	}
}

func callbackUserID(u tgbotapi.Update) int64 {
	if u.CallbackQuery != nil && u.CallbackQuery.From != nil {
		return u.CallbackQuery.From.ID
	}
	return 0
}

func messageUserID(u tgbotapi.Update) int64 {
	if u.Message != nil && u.Message.From != nil {
		return u.Message.From.ID
	}
	return 0
}

// reply sends a direct response to the user, outside the notifier's batch
// path (these are answers to explicit requests, never queued).
func (b *Bot) reply(ctx context.Context, text string) {
	b.replyKB(ctx, text, nil)
}

func (b *Bot) replyKB(ctx context.Context, text string, kb notify.Keyboard) {
	if _, err := NewTransport(b.api, b.userID).Send(ctx, text, kb, false); err != nil {
		b.log.Warn("reply failed", "error", err)
	}
}

func (b *Bot) registerCommands() {
	commands := []tgbotapi.BotCommand{
		{Command: "status", Description: "Session dashboard"},
		{Command: "new", Description: "Create session (cc|sh <dir>)"},
		{Command: "output", Description: "AI summary of output"},
		{Command: "tokens", Description: "Token usage overview"},
		{Command: "log", Description: "Recent session output"},
		{Command: "input", Description: "Send text to session"},
		{Command: "run", Description: "Run command in session"},
		{Command: "shell", Description: "One-off shell command"},
		{Command: "kill", Description: "Kill a session"},
		{Command: "restart", Description: "Restart a session"},
		{Command: "pause", Description: "Pause a session"},
		{Command: "resume", Description: "Resume a session"},
		{Command: "rename", Description: "Rename a session"},
		{Command: "auto", Description: "Auto-responder rules"},
		{Command: "quiet", Description: "Quiet hours settings"},
		{Command: "settings", Description: "View configuration"},
		{Command: "digest", Description: "Full status digest"},
		{Command: "menu", Description: "Main menu"},
		{Command: "help", Description: "Command reference"},
	}
	if _, err := b.api.Request(tgbotapi.NewSetMyCommands(commands...)); err != nil {
		b.log.Warn("failed to register command menu", "error", err)
	}
}

// setPending arms the one-shot free-text collector.
func (b *Bot) setPending(kind pendingKind, sessionID string) {
	b.mu.Lock()
	b.pending = kind
	b.pendingSession = sessionID
	b.mu.Unlock()
}

func (b *Bot) takePending() (pendingKind, string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	kind, sid := b.pending, b.pendingSession
	b.pending, b.pendingSession = pendingNone, ""
	return kind, sid
}

func (b *Bot) setPicked(sessionID string) {
	b.mu.Lock()
	b.pickedSession = sessionID
	b.mu.Unlock()
}

func (b *Bot) takePicked() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	picked := b.pickedSession
	b.pickedSession = ""
	return picked
}

func firstWord(s string) (string, string) {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, " \t"); i >= 0 {
		return s[:i], strings.TrimSpace(s[i+1:])
	}
	return s, ""
}
