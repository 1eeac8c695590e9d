package tokens

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestEstimator(tier string) (*Estimator, *time.Time) {
	e := NewEstimator(tier, 5, DefaultThresholds())
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return now }
	return e, &now
}

func TestUsageCountsPerSession(t *testing.T) {
	e, _ := newTestEstimator("pro")
	e.OnResponse("a")
	e.OnResponse("a")
	e.OnResponse("b")

	assert.Equal(t, 2, e.Usage("a").Used)
	assert.Equal(t, 1, e.Usage("b").Used)
	assert.Equal(t, 3, e.Usage("").Used)
	assert.Equal(t, 45, e.Usage("").Limit)
}

func TestUsagePercentageCapped(t *testing.T) {
	e, _ := newTestEstimator("pro")
	for i := 0; i < 100; i++ {
		e.OnResponse("a")
	}
	assert.Equal(t, 100, e.Usage("").Percentage)
}

func TestUnknownTierFallsBackToPro(t *testing.T) {
	e, _ := newTestEstimator("enterprise")
	assert.Equal(t, 45, e.Limit())
}

func TestWindowAutoReset(t *testing.T) {
	e, now := newTestEstimator("pro")
	e.OnResponse("a")
	assert.Equal(t, 1, e.Usage("").Used)

	*now = now.Add(5*time.Hour + time.Minute)
	e.OnResponse("a")
	assert.Equal(t, 1, e.Usage("").Used, "expired window should reset counts")
}

func TestResetInCountsDown(t *testing.T) {
	e, now := newTestEstimator("pro")
	e.OnResponse("a")
	*now = now.Add(2 * time.Hour)
	assert.Equal(t, 3*time.Hour, e.Usage("").ResetIn)
}

func TestCheckThresholds(t *testing.T) {
	e, _ := newTestEstimator("pro")
	assert.Equal(t, LevelNone, e.CheckThresholds())

	// pro limit is 45: warning at 80% = 36, danger at 90% = 41, critical 95% = 43.
	for i := 0; i < 36; i++ {
		e.OnResponse("a")
	}
	assert.Equal(t, LevelWarning, e.CheckThresholds())

	for i := 0; i < 5; i++ {
		e.OnResponse("a")
	}
	assert.Equal(t, LevelDanger, e.CheckThresholds())

	for i := 0; i < 3; i++ {
		e.OnResponse("a")
	}
	assert.Equal(t, LevelCritical, e.CheckThresholds())
}

func TestIsResponseBoundary(t *testing.T) {
	e, _ := newTestEstimator("pro")
	assert.True(t, e.IsResponseBoundary(8*time.Second, 12))
	assert.False(t, e.IsResponseBoundary(2*time.Second, 12), "too little idle")
	assert.False(t, e.IsResponseBoundary(8*time.Second, 3), "too few lines")
}

func TestResetWindow(t *testing.T) {
	e, _ := newTestEstimator("pro")
	e.OnResponse("a")
	e.ResetWindow()
	assert.Equal(t, 0, e.Usage("").Used)
	assert.Equal(t, time.Duration(0), e.Usage("").ResetIn)
}
