// Package telegram bridges the single authorized chat to the daemon: it
// implements the notifier's transport, long-polls for updates, and handles
// slash commands, inline button callbacks, and free-text messages.
package telegram

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/DaveXRouz/conductor/internal/notify"
)

const maxMessageLen = 4096

// Transport implements notify.Transport over the Bot API.
type Transport struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewTransport wraps an authenticated bot targeting one chat.
func NewTransport(bot *tgbotapi.BotAPI, chatID int64) *Transport {
	return &Transport{bot: bot, chatID: chatID}
}

// Send delivers one message, splitting it if it exceeds the platform cap.
// Returns the id of the last chunk sent.
func (t *Transport) Send(ctx context.Context, text string, kb notify.Keyboard, silent bool) (int64, error) {
	var lastID int64
	parts := splitMessage(text)
	for i, part := range parts {
		msg := tgbotapi.NewMessage(t.chatID, part)
		msg.ParseMode = tgbotapi.ModeHTML
		msg.DisableNotification = silent
		if kb != nil && i == len(parts)-1 {
			msg.ReplyMarkup = toMarkup(kb)
		}
		sent, err := t.bot.Send(msg)
		if err != nil {
			// HTML that fails to parse is retried as plain text.
			msg.ParseMode = ""
			sent, err = t.bot.Send(msg)
			if err != nil {
				return 0, fmt.Errorf("telegram send: %w", err)
			}
		}
		lastID = int64(sent.MessageID)
	}
	return lastID, nil
}

// Ping calls the trivial getMe endpoint to probe reachability.
func (t *Transport) Ping(ctx context.Context) error {
	if _, err := t.bot.GetMe(); err != nil {
		return fmt.Errorf("telegram getMe: %w", err)
	}
	return nil
}

func toMarkup(kb notify.Keyboard) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(kb))
	for _, row := range kb {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Label, b.Data))
		}
		rows = append(rows, buttons)
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func splitMessage(text string) []string {
	if len(text) <= maxMessageLen {
		return []string{text}
	}
	var parts []string
	for len(text) > 0 {
		end := maxMessageLen
		if end > len(text) {
			end = len(text)
		}
		parts = append(parts, text[:end])
		text = text[end:]
	}
	return parts
}
