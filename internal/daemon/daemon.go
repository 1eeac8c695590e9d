// Package daemon hosts Conductor's long-lived loops: the dispatcher, the
// per-session monitors, the notifier's flusher and connectivity checker, the
// confirmation sweeper, the sleep detector, and periodic maintenance.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/DaveXRouz/conductor/internal/ai"
	"github.com/DaveXRouz/conductor/internal/autoresponder"
	"github.com/DaveXRouz/conductor/internal/config"
	"github.com/DaveXRouz/conductor/internal/confirm"
	"github.com/DaveXRouz/conductor/internal/logging"
	"github.com/DaveXRouz/conductor/internal/notify"
	"github.com/DaveXRouz/conductor/internal/session"
	"github.com/DaveXRouz/conductor/internal/store"
	"github.com/DaveXRouz/conductor/internal/tmux"
	"github.com/DaveXRouz/conductor/internal/tokens"
)

const (
	pruneMaxAge       = 30 * 24 * time.Hour
	healthInterval    = 60 * time.Second
	confirmSweepEvery = 30 * time.Second
)

// Daemon owns the cooperating background loops and the monitor registry.
type Daemon struct {
	Store      *store.Store
	Manager    *session.Manager
	Notifier   *notify.Notifier
	Brain      *ai.Brain
	Responder  *autoresponder.Responder
	Estimator  *tokens.Estimator
	Confirm    *confirm.Manager
	Dispatcher *Dispatcher
	Escalator  *Escalator
	Detector   *tmux.Detector

	monitorCfg config.MonitorSettings
	log        *slog.Logger
	cron       *cron.Cron

	monMu    sync.Mutex
	monitors map[string]context.CancelFunc
	runCtx   context.Context
}

// New assembles the daemon from its components.
func New(st *store.Store, mgr *session.Manager, notifier *notify.Notifier,
	brain *ai.Brain, responder *autoresponder.Responder, estimator *tokens.Estimator,
	confirmMgr *confirm.Manager, detector *tmux.Detector, monitorCfg config.MonitorSettings,
	escalator *Escalator) *Daemon {

	d := &Daemon{
		Store:      st,
		Manager:    mgr,
		Notifier:   notifier,
		Brain:      brain,
		Responder:  responder,
		Estimator:  estimator,
		Confirm:    confirmMgr,
		Escalator:  escalator,
		Detector:   detector,
		monitorCfg: monitorCfg,
		log:        logging.ForComponent(logging.CompDaemon),
		cron:       cron.New(),
		monitors:   make(map[string]context.CancelFunc),
	}
	d.Dispatcher = NewDispatcher(mgr, st, notifier, responder, brain, estimator, escalator)
	return d
}

// Bootstrap runs the startup sequence: prune old rows, seed default rules,
// load persisted sessions, recover orphaned tmux sessions, start monitors.
func (d *Daemon) Bootstrap(ctx context.Context, server *tmux.Server, defaults []config.DefaultRule) error {
	pruned, err := d.Store.PruneOldRecords(ctx, pruneMaxAge)
	if err != nil {
		return fmt.Errorf("prune old records: %w", err)
	}
	if pruned > 0 {
		d.log.Info("pruned old records", "rows", pruned)
	}

	seed := make([]*store.AutoRule, len(defaults))
	for i, r := range defaults {
		seed[i] = &store.AutoRule{Pattern: r.Pattern, Response: r.Response, MatchType: r.MatchType}
	}
	if err := d.Store.SeedDefaultRules(ctx, seed); err != nil {
		return fmt.Errorf("seed default rules: %w", err)
	}

	if err := d.Manager.LoadFromStore(ctx); err != nil {
		return fmt.Errorf("load sessions: %w", err)
	}
	recovered, err := session.Recover(ctx, server, d.Manager)
	if err != nil {
		d.log.Warn("session recovery failed", "error", err)
	}
	if len(recovered) > 0 {
		d.Notifier.SendImmediate(ctx,
			fmt.Sprintf("🔄 Conductor restarted — recovered %d session(s).", len(recovered)), nil)
	}
	return nil
}

// Run starts every long-lived loop and blocks until ctx is cancelled and the
// loops have drained. The caller closes the store afterwards.
func (d *Daemon) Run(ctx context.Context) error {
	d.runCtx = ctx

	// Daily re-run of the boot pruner keeps the 30-day retention honest on
	// hosts that stay up for weeks.
	if _, err := d.cron.AddFunc("30 3 * * *", func() {
		if n, err := d.Store.PruneOldRecords(context.Background(), pruneMaxAge); err != nil {
			d.log.Warn("scheduled prune failed", "error", err)
		} else if n > 0 {
			d.log.Info("scheduled prune", "rows", n)
		}
	}); err != nil {
		return fmt.Errorf("schedule prune: %w", err)
	}
	d.cron.Start()
	defer d.cron.Stop()

	for _, sess := range d.Manager.List() {
		d.StartMonitor(sess)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { d.Dispatcher.Run(gctx); return nil })
	g.Go(func() error { d.Notifier.RunBatchFlusher(gctx); return nil })
	g.Go(func() error { d.Notifier.RunConnectivityChecker(gctx); return nil })
	g.Go(func() error { d.Confirm.RunSweeper(gctx, confirmSweepEvery); return nil })
	g.Go(func() error { d.Escalator.RunReset(gctx); return nil })
	g.Go(func() error { d.runHealthLoop(gctx); return nil })
	g.Go(func() error {
		NewSleepDetector(func(cbCtx context.Context, gap time.Duration) {
			d.onWake(cbCtx, gap)
		}).Run(gctx)
		return nil
	})
	err := g.Wait()

	d.monMu.Lock()
	for _, cancel := range d.monitors {
		cancel()
	}
	d.monMu.Unlock()
	return err
}

// StartMonitor launches the polling loop for a session's pane.
func (d *Daemon) StartMonitor(sess *store.Session) {
	pane := d.Manager.Pane(sess.ID)
	if pane == nil {
		d.log.Warn("no pane for session, monitor not started", "alias", sess.Alias)
		return
	}
	parent := d.runCtx
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	d.monMu.Lock()
	if old, ok := d.monitors[sess.ID]; ok {
		old()
	}
	d.monitors[sess.ID] = cancel
	d.monMu.Unlock()

	mon := session.NewMonitor(pane, sess, d.Detector, d.monitorCfg, d.Dispatcher.Events(),
		func(s *store.Session) { d.onPaneGone(s) })
	go func() {
		mon.Run(ctx)
		d.monMu.Lock()
		delete(d.monitors, sess.ID)
		d.monMu.Unlock()
	}()
}

// StopMonitor cancels a session's monitor if one is running.
func (d *Daemon) StopMonitor(sessionID string) {
	d.monMu.Lock()
	if cancel, ok := d.monitors[sessionID]; ok {
		cancel()
		delete(d.monitors, sessionID)
	}
	d.monMu.Unlock()
}

func (d *Daemon) onPaneGone(sess *store.Session) {
	ctx := context.Background()
	_ = d.Manager.MarkStatus(ctx, sess.ID, store.StatusExited)
	d.Notifier.SendImmediate(ctx,
		fmt.Sprintf("💀 %s #%d %s — pane disappeared, session marked exited.",
			sess.ColorEmoji, sess.Number, sess.Alias), nil)
	if _, err := d.Store.LogEvent(ctx, &store.Event{
		SessionID: sess.ID,
		EventType: store.EventSystem,
		Message:   "pane lost",
	}); err != nil {
		d.Escalator.Record(ctx, "store", err)
	}
}

// runHealthLoop periodically verifies session processes are still alive.
func (d *Daemon) runHealthLoop(ctx context.Context) {
	ticker := time.NewTicker(healthInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.HealthSweep(ctx)
		}
	}
}

// HealthSweep marks sessions whose pane or process has vanished as exited.
func (d *Daemon) HealthSweep(ctx context.Context) {
	for _, sess := range d.Manager.List() {
		pane := d.Manager.Pane(sess.ID)
		paneOK := pane != nil && pane.Exists()
		pidOK := sess.PID == 0 || d.Manager.PIDAlive(sess.PID)
		if paneOK && pidOK {
			continue
		}
		d.log.Warn("health sweep: session dead", "alias", sess.Alias, "pane_ok", paneOK, "pid_ok", pidOK)
		d.StopMonitor(sess.ID)
		_ = d.Manager.MarkStatus(ctx, sess.ID, store.StatusExited)
		d.Notifier.SendImmediate(ctx,
			fmt.Sprintf("💀 %s #%d %s — session died, marked exited.",
				sess.ColorEmoji, sess.Number, sess.Alias), nil)
	}
}

func (d *Daemon) onWake(ctx context.Context, gap time.Duration) {
	mins := int(gap.Minutes())
	secs := int(gap.Seconds()) % 60
	d.log.Info("host woke up", "slept", gap.Round(time.Second))
	d.HealthSweep(ctx)
	d.Notifier.SendImmediate(ctx,
		fmt.Sprintf("💤 Host slept for %dm %ds — session health check done.", mins, secs), nil)
}

// CreateSession creates a session and starts its monitor.
func (d *Daemon) CreateSession(ctx context.Context, sessionType, workingDir, alias string) (*store.Session, error) {
	sess, err := d.Manager.Create(ctx, sessionType, workingDir, alias)
	if err != nil {
		return nil, err
	}
	d.StartMonitor(sess)
	return sess, nil
}

// KillSession stops the monitor and tears the session down.
func (d *Daemon) KillSession(ctx context.Context, id string) (*store.Session, error) {
	d.StopMonitor(id)
	return d.Manager.Kill(ctx, id)
}

// RestartSession kills a session and recreates it in the same directory with
// the same type and alias.
func (d *Daemon) RestartSession(ctx context.Context, id string) (*store.Session, error) {
	old, err := d.KillSession(ctx, id)
	if err != nil {
		return nil, err
	}
	return d.CreateSession(ctx, old.Type, old.WorkingDir, old.Alias)
}
