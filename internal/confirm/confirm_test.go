package confirm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestManager() (*Manager, *time.Time) {
	m := NewManager(30 * time.Second)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	return m, &now
}

func TestConfirmWithinTTL(t *testing.T) {
	m, now := newTestManager()
	m.Request(1, "kill", "sess-1")
	*now = now.Add(10 * time.Second)
	assert.True(t, m.Confirm(1, "kill", "sess-1"))
}

func TestConfirmIsSingleUse(t *testing.T) {
	m, _ := newTestManager()
	m.Request(1, "kill", "sess-1")
	assert.True(t, m.Confirm(1, "kill", "sess-1"))
	assert.False(t, m.Confirm(1, "kill", "sess-1"), "second confirm must fail")
}

func TestExpiredConfirmationRejected(t *testing.T) {
	m, now := newTestManager()
	m.Request(1, "kill", "sess-1")
	*now = now.Add(31 * time.Second)
	assert.False(t, m.Confirm(1, "kill", "sess-1"))
}

func TestConfirmWrongKeyFails(t *testing.T) {
	m, _ := newTestManager()
	m.Request(1, "kill", "sess-1")
	assert.False(t, m.Confirm(1, "restart", "sess-1"))
	assert.False(t, m.Confirm(2, "kill", "sess-1"))
	assert.False(t, m.Confirm(1, "kill", "sess-2"))
}

func TestRequestReplacesExisting(t *testing.T) {
	m, now := newTestManager()
	m.Request(1, "kill", "sess-1")
	*now = now.Add(25 * time.Second)
	// Re-request restarts the TTL clock.
	m.Request(1, "kill", "sess-1")
	*now = now.Add(20 * time.Second)
	assert.True(t, m.Confirm(1, "kill", "sess-1"))
}

func TestCancel(t *testing.T) {
	m, _ := newTestManager()
	m.Request(1, "kill", "sess-1")
	assert.True(t, m.Cancel(1, "kill", "sess-1"))
	assert.False(t, m.Cancel(1, "kill", "sess-1"))
	assert.False(t, m.Confirm(1, "kill", "sess-1"))
}

func TestSweepExpired(t *testing.T) {
	m, now := newTestManager()
	m.Request(1, "kill", "sess-1")
	m.Request(1, "restart", "sess-2")
	*now = now.Add(31 * time.Second)
	m.Request(1, "kill", "sess-3")

	assert.Equal(t, 2, m.SweepExpired())
	assert.True(t, m.Confirm(1, "kill", "sess-3"))
}
