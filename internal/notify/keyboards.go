package notify

import (
	"fmt"
	"regexp"
	"strings"
)

// Inline keyboard builders. Callback data uses fixed prefixes that the
// telegram callback handler dispatches on: confirm:, perm:, rate:, comp:,
// suggest:, undo:, pick:, status:refresh.

// PermissionKeyboard offers allow / deny / show-context for a permission
// prompt.
func PermissionKeyboard(sessionID string) Keyboard {
	return Keyboard{{
		{Label: "✅ Allow", Data: "perm:allow:" + sessionID},
		{Label: "❌ Deny", Data: "perm:deny:" + sessionID},
		{Label: "📄 Context", Data: "perm:context:" + sessionID},
	}}
}

var numberedOption = regexp.MustCompile(`^\s*(\d+)[\.\)]\s+(\S.*)`)

// InputKeyboard builds numbered option buttons synthesized from a detected
// choice list, falling back to the permission layout when the prompt has no
// numbered choices.
func InputKeyboard(sessionID string, lines []string) Keyboard {
	var row []Button
	var kb Keyboard
	for _, line := range lines {
		m := numberedOption.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		label := m[2]
		if len(label) > 24 {
			label = label[:24] + "…"
		}
		row = append(row, Button{
			Label: fmt.Sprintf("%s. %s", m[1], strings.TrimSpace(label)),
			Data:  fmt.Sprintf("pick:%s:%s", sessionID, m[1]),
		})
		if len(row) == 2 {
			kb = append(kb, row)
			row = nil
		}
	}
	if row != nil {
		kb = append(kb, row)
	}
	if len(kb) == 0 {
		return PermissionKeyboard(sessionID)
	}
	kb = append(kb, []Button{{Label: "📄 Context", Data: "perm:context:" + sessionID}})
	return kb
}

// RateLimitKeyboard offers recovery choices after an auto-pause.
func RateLimitKeyboard(sessionID string) Keyboard {
	return Keyboard{{
		{Label: "▶️ Resume now", Data: "rate:resume:" + sessionID},
		{Label: "⏰ In 15m", Data: "rate:wait:" + sessionID},
	}, {
		{Label: "🔀 Switch task", Data: "rate:switch:" + sessionID},
	}}
}

// CompletionKeyboard follows a task-complete notice.
func CompletionKeyboard(sessionID string) Keyboard {
	return Keyboard{{
		{Label: "📄 Output", Data: "comp:output:" + sessionID},
		{Label: "✍️ New task", Data: "comp:input:" + sessionID},
	}}
}

// SuggestionKeyboard renders up to three suggested next actions.
func SuggestionKeyboard(sessionID string, labels []string) Keyboard {
	var kb Keyboard
	for i, label := range labels {
		if i >= 3 {
			break
		}
		if len(label) > 32 {
			label = label[:32] + "…"
		}
		kb = append(kb, []Button{{
			Label: "💡 " + label,
			Data:  fmt.Sprintf("suggest:%s:%d", sessionID, i),
		}})
	}
	kb = append(kb, []Button{{Label: "📄 Output", Data: "comp:output:" + sessionID}})
	return kb
}

// UndoKeyboard offers the time-limited undo for an auto-response.
func UndoKeyboard(sessionID string) Keyboard {
	return Keyboard{{{Label: "↩️ Undo", Data: "undo:" + sessionID}}}
}

// ConfirmKeyboard is the second-tap keyboard for destructive actions.
func ConfirmKeyboard(action, sessionID string) Keyboard {
	return Keyboard{{
		{Label: "⚠️ Confirm", Data: fmt.Sprintf("confirm:%s:%s", action, sessionID)},
		{Label: "Cancel", Data: fmt.Sprintf("confirm:cancel:%s:%s", action, sessionID)},
	}}
}

// PickKeyboard asks the user to choose a target session.
func PickKeyboard(ids []string, labels []string) Keyboard {
	var kb Keyboard
	for i, id := range ids {
		label := labels[i]
		if len(label) > 32 {
			label = label[:32] + "…"
		}
		kb = append(kb, []Button{{Label: label, Data: "pick:" + id}})
	}
	return kb
}

// StatusKeyboard carries the refresh control on the dashboard.
func StatusKeyboard() Keyboard {
	return Keyboard{{{Label: "🔄 Refresh", Data: "status:refresh"}}}
}
