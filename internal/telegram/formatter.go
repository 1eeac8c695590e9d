package telegram

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/DaveXRouz/conductor/internal/store"
)

func mono(s string) string {
	return "<code>" + html.EscapeString(s) + "</code>"
}

func sessionLabel(s *store.Session) string {
	return fmt.Sprintf("%s #%d %s", s.ColorEmoji, s.Number, html.EscapeString(s.Alias))
}

var statusIcons = map[string]string{
	store.StatusRunning:     "▶️",
	store.StatusPaused:      "⏸️",
	store.StatusWaiting:     "❓",
	store.StatusError:       "🔴",
	store.StatusExited:      "💀",
	store.StatusRateLimited: "⚠️",
}

func statusIcon(status string) string {
	if icon, ok := statusIcons[status]; ok {
		return icon
	}
	return "•"
}

func formatSessionLine(s *store.Session) string {
	line := fmt.Sprintf("%s %s %s — %s", statusIcon(s.Status), sessionLabel(s), mono(shortenPath(s.WorkingDir)), s.Status)
	if !s.LastActivity.IsZero() {
		line += fmt.Sprintf(" · %s ago", humanSince(s.LastActivity))
	}
	return line
}

func shortenPath(path string) string {
	const max = 32
	if len(path) <= max {
		return path
	}
	return "…" + path[len(path)-max:]
}

func humanSince(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	default:
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	}
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Minute)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh %dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}

func usageBar(pct int) string {
	const width = 10
	filled := pct * width / 100
	if filled > width {
		filled = width
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}
