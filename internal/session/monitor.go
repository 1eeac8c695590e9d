package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/DaveXRouz/conductor/internal/config"
	"github.com/DaveXRouz/conductor/internal/logging"
	"github.com/DaveXRouz/conductor/internal/store"
	"github.com/DaveXRouz/conductor/internal/tmux"
)

// CompletionIdlePattern marks synthetic completion events produced by the
// idle timer rather than a matched pattern.
const CompletionIdlePattern = "completion_idle"

const captureLines = 1000

// Event is one classified observation from a pane, delivered to the
// dispatcher channel.
type Event struct {
	Session    *store.Session
	Result     tmux.DetectionResult
	Lines      []string
	IdleBefore time.Duration
}

// Monitor polls one pane, deduplicates its output, and classifies new lines.
// Exactly one monitor runs per session; the monitor owns its buffer.
type Monitor struct {
	pane     *tmux.Pane
	session  *store.Session
	buffer   *tmux.OutputBuffer
	detector *tmux.Detector
	events   chan<- Event
	onGone   func(*store.Session)
	log      *slog.Logger

	pollDefault  time.Duration
	pollActive   time.Duration
	pollIdle     time.Duration
	idleAfter    time.Duration
	completionAt time.Duration

	idle         time.Duration
	activeOutput bool
	lastEmitted  tmux.DetectionType
}

// NewMonitor creates a monitor for one session's pane. onGone is invoked
// (once) when the pane disappears; the monitor stops afterwards.
func NewMonitor(pane *tmux.Pane, sess *store.Session, detector *tmux.Detector,
	cfg config.MonitorSettings, events chan<- Event, onGone func(*store.Session)) *Monitor {

	ms := func(v, def int) time.Duration {
		if v <= 0 {
			v = def
		}
		return time.Duration(v) * time.Millisecond
	}
	completion := cfg.CompletionIdleThresholdS
	if completion <= 0 {
		completion = 30
	}
	return &Monitor{
		pane:         pane,
		session:      sess,
		buffer:       tmux.NewOutputBuffer(cfg.OutputBufferMaxLines),
		detector:     detector,
		events:       events,
		onGone:       onGone,
		log:          logging.ForComponent(logging.CompMonitor),
		pollDefault:  ms(cfg.PollIntervalMs, 500),
		pollActive:   ms(cfg.ActivePollIntervalMs, 300),
		pollIdle:     ms(cfg.IdlePollIntervalMs, 2000),
		idleAfter:    5 * time.Minute,
		completionAt: time.Duration(completion) * time.Second,
	}
}

// pollInterval adapts the capture cadence to session state: fast while
// output is flowing, slow when idle or paused.
func (m *Monitor) pollInterval() time.Duration {
	switch {
	case m.session.Status == store.StatusPaused:
		return 5 * time.Second
	case m.idle > m.idleAfter:
		return m.pollIdle
	case m.activeOutput:
		return m.pollActive
	default:
		return m.pollDefault
	}
}

// Run executes the polling loop until the context is cancelled or the pane
// disappears.
func (m *Monitor) Run(ctx context.Context) {
	m.log.Info("monitor started", "number", m.session.Number, "alias", m.session.Alias)
	defer m.log.Info("monitor stopped", "number", m.session.Number)

	for {
		interval := m.pollInterval()
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}

		raw, err := m.pane.CaptureRecent(captureLines)
		if err != nil {
			if errors.Is(err, tmux.ErrPaneGone) {
				m.log.Warn("pane gone", "alias", m.session.Alias)
				if m.onGone != nil {
					m.onGone(m.session)
				}
				return
			}
			m.log.Warn("capture failed", "alias", m.session.Alias, "error", err)
			continue
		}

		fresh := m.buffer.Ingest(raw)
		if len(fresh) > 0 {
			idleBefore := m.idle
			m.idle = 0
			m.activeOutput = true
			m.processOutput(ctx, fresh, idleBefore)
			continue
		}

		m.idle += interval
		if m.activeOutput && m.idle >= m.completionAt {
			m.activeOutput = false
			m.checkCompletion(ctx)
		}
	}
}

func (m *Monitor) processOutput(ctx context.Context, lines []string, idleBefore time.Duration) {
	result := m.detector.Classify(strings.Join(lines, "\n"))
	if result.Type == tmux.DetectNone {
		m.lastEmitted = tmux.DetectNone
		return
	}
	m.lastEmitted = result.Type
	m.emit(ctx, Event{
		Session:    m.session,
		Result:     result,
		Lines:      lines,
		IdleBefore: idleBefore,
	})
}

// checkCompletion emits a synthetic completion event after sustained silence
// following a burst of output. If the burst itself already classified as a
// completion, the idle timer stays quiet to avoid double reporting.
func (m *Monitor) checkCompletion(ctx context.Context) {
	if m.lastEmitted == tmux.DetectCompletion {
		return
	}
	recent := m.buffer.Recent(10)
	if len(recent) == 0 {
		return
	}
	result := m.detector.Classify(strings.Join(recent, "\n"))
	if result.Type != tmux.DetectCompletion {
		result = tmux.DetectionResult{
			Type:       tmux.DetectCompletion,
			Pattern:    CompletionIdlePattern,
			Confidence: 0.5,
		}
	}
	m.lastEmitted = tmux.DetectCompletion
	m.emit(ctx, Event{
		Session:    m.session,
		Result:     result,
		Lines:      recent,
		IdleBefore: m.idle,
	})
}

func (m *Monitor) emit(ctx context.Context, ev Event) {
	select {
	case m.events <- ev:
	case <-ctx.Done():
	}
}
