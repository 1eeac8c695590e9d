// Package tokens estimates plan usage from observable response cycles.
// No real counter is available from the assistant CLI, so the estimator
// counts idle-then-burst transitions as message exchanges and accepts drift.
package tokens

import (
	"sync"
	"time"
)

// Plan tier limits, in messages per rolling window.
var tierLimits = map[string]int{
	"pro":     45,
	"max_5x":  225,
	"max_20x": 900,
}

// Response-boundary heuristic: a burst of more than boundaryLines new lines
// after more than boundaryIdle of silence counts as one exchange.
const (
	boundaryIdle  = 3 * time.Second
	boundaryLines = 5
)

// Level is a crossed usage threshold.
type Level string

const (
	LevelNone     Level = ""
	LevelWarning  Level = "warning"
	LevelDanger   Level = "danger"
	LevelCritical Level = "critical"
)

// Usage is a point-in-time usage report.
type Usage struct {
	Used       int
	Limit      int
	Percentage int
	ResetIn    time.Duration
	Tier       string
}

// Thresholds are the percentage cut-offs for each warning level.
type Thresholds struct {
	Warning  int
	Danger   int
	Critical int
}

// DefaultThresholds returns the standard 80/90/95 cut-offs.
func DefaultThresholds() Thresholds {
	return Thresholds{Warning: 80, Danger: 90, Critical: 95}
}

// Estimator tracks per-session response-cycle counts inside a rolling window.
// Safe for concurrent use.
type Estimator struct {
	mu          sync.Mutex
	tier        string
	window      time.Duration
	thresholds  Thresholds
	counts      map[string]int
	windowStart time.Time

	now func() time.Time
}

// NewEstimator creates an estimator for the given plan tier. An unknown tier
// falls back to the pro limit. windowHours of 0 uses the default 5 h window.
func NewEstimator(tier string, windowHours int, thresholds Thresholds) *Estimator {
	if windowHours <= 0 {
		windowHours = 5
	}
	if thresholds == (Thresholds{}) {
		thresholds = DefaultThresholds()
	}
	return &Estimator{
		tier:       tier,
		window:     time.Duration(windowHours) * time.Hour,
		thresholds: thresholds,
		counts:     make(map[string]int),
		now:        time.Now,
	}
}

// Limit returns the message limit for the configured tier.
func (e *Estimator) Limit() int {
	if limit, ok := tierLimits[e.tier]; ok {
		return limit
	}
	return tierLimits["pro"]
}

// OnResponse records one observed response cycle for a session. The first
// response starts the window; a window past its end resets all counts.
func (e *Estimator) OnResponse(sessionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	if !e.windowStart.IsZero() && now.Sub(e.windowStart) >= e.window {
		e.counts = make(map[string]int)
		e.windowStart = time.Time{}
	}
	if e.windowStart.IsZero() {
		e.windowStart = now
	}
	e.counts[sessionID]++
}

// Usage reports estimated usage. An empty sessionID aggregates all sessions.
func (e *Estimator) Usage(sessionID string) Usage {
	e.mu.Lock()
	defer e.mu.Unlock()

	limit := e.Limit()
	used := 0
	if sessionID != "" {
		used = e.counts[sessionID]
	} else {
		for _, n := range e.counts {
			used += n
		}
	}

	pct := 0
	if limit > 0 {
		pct = used * 100 / limit
		if pct > 100 {
			pct = 100
		}
	}

	var resetIn time.Duration
	if !e.windowStart.IsZero() {
		resetIn = e.window - e.now().Sub(e.windowStart)
		if resetIn < 0 {
			resetIn = 0
		}
	}

	return Usage{Used: used, Limit: limit, Percentage: pct, ResetIn: resetIn, Tier: e.tier}
}

// CheckThresholds reports the highest threshold crossed by aggregate usage.
func (e *Estimator) CheckThresholds() Level {
	pct := e.Usage("").Percentage
	switch {
	case pct >= e.thresholds.Critical:
		return LevelCritical
	case pct >= e.thresholds.Danger:
		return LevelDanger
	case pct >= e.thresholds.Warning:
		return LevelWarning
	}
	return LevelNone
}

// IsResponseBoundary reports whether an idle gap followed by a line burst
// looks like the end of one assistant response.
func (e *Estimator) IsResponseBoundary(idle time.Duration, newLines int) bool {
	return idle > boundaryIdle && newLines > boundaryLines
}

// ResetWindow clears all counts and the window start.
func (e *Estimator) ResetWindow() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.counts = make(map[string]int)
	e.windowStart = time.Time{}
}
