package daemon

import (
	"context"
	"log/slog"
	"time"

	"github.com/DaveXRouz/conductor/internal/logging"
)

// SleepDetector notices host suspension by watching for wall-clock gaps
// between ticks. A tick that arrives more than the threshold late means the
// host slept; the wake callback then runs a session health sweep.
type SleepDetector struct {
	interval  time.Duration
	threshold time.Duration
	onWake    func(ctx context.Context, gap time.Duration)
	log       *slog.Logger

	now func() time.Time
}

// NewSleepDetector creates a detector with a 1 s check interval and a 15 s
// gap threshold.
func NewSleepDetector(onWake func(ctx context.Context, gap time.Duration)) *SleepDetector {
	return &SleepDetector{
		interval:  time.Second,
		threshold: 15 * time.Second,
		onWake:    onWake,
		log:       logging.ForComponent(logging.CompDaemon),
		now:       time.Now,
	}
}

// Run loops until ctx is cancelled. Wall time is compared with the monotonic
// reading stripped, since the monotonic clock can pause during suspend.
func (d *SleepDetector) Run(ctx context.Context) {
	last := d.now().Round(0)
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := d.now().Round(0)
			elapsed := now.Sub(last)
			last = now
			if elapsed > d.threshold {
				gap := elapsed - d.interval
				d.log.Warn("wake detected", "slept", gap.Round(time.Second))
				if d.onWake != nil {
					d.onWake(ctx, gap)
				}
			}
		}
	}
}
