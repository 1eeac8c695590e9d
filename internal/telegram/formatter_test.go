package telegram

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/DaveXRouz/conductor/internal/store"
)

func TestSessionLabelEscapesHTML(t *testing.T) {
	s := &store.Session{Number: 2, Alias: "a<b>", ColorEmoji: "🟢"}
	label := sessionLabel(s)
	assert.Contains(t, label, "#2")
	assert.NotContains(t, label, "<b>")
	assert.Contains(t, label, "&lt;b&gt;")
}

func TestFormatSessionLine(t *testing.T) {
	s := &store.Session{
		Number:       1,
		Alias:        "Proj",
		ColorEmoji:   "🔵",
		Status:       store.StatusWaiting,
		WorkingDir:   "/home/u/proj",
		LastActivity: time.Now().Add(-2 * time.Minute),
	}
	line := formatSessionLine(s)
	assert.Contains(t, line, "❓")
	assert.Contains(t, line, "waiting")
	assert.Contains(t, line, "2m ago")
}

func TestUsageBar(t *testing.T) {
	assert.Equal(t, strings.Repeat("░", 10), usageBar(0))
	assert.Equal(t, strings.Repeat("█", 10), usageBar(100))
	bar := usageBar(50)
	assert.Equal(t, 5, strings.Count(bar, "█"))
}

func TestSplitMessage(t *testing.T) {
	assert.Len(t, splitMessage("short"), 1)

	long := strings.Repeat("x", maxMessageLen+100)
	parts := splitMessage(long)
	assert.Len(t, parts, 2)
	assert.Len(t, parts[0], maxMessageLen)
	assert.Len(t, parts[1], 100)
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "2h 5m", formatDuration(2*time.Hour+5*time.Minute))
	assert.Equal(t, "45m", formatDuration(45*time.Minute))
}
