package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/DaveXRouz/conductor/internal/logging"
	"github.com/DaveXRouz/conductor/internal/notify"
)

const (
	escalateAt    = 5
	escalateReset = 5 * time.Minute
)

// Escalator counts errors by kind inside 5-minute windows and alerts the
// user once when a kind recurs, instead of once per failure.
type Escalator struct {
	notifier *notify.Notifier
	log      *slog.Logger

	mu     sync.Mutex
	counts map[string]int
}

// NewEscalator creates an escalator that alerts through the notifier.
func NewEscalator(notifier *notify.Notifier) *Escalator {
	return &Escalator{
		notifier: notifier,
		log:      logging.ForComponent(logging.CompDaemon),
		counts:   make(map[string]int),
	}
}

// Record counts one error of the given kind. On the fifth occurrence within
// the window it sends a single system alert and resets that kind's count.
func (e *Escalator) Record(ctx context.Context, kind string, err error) {
	e.mu.Lock()
	e.counts[kind]++
	count := e.counts[kind]
	if count >= escalateAt {
		e.counts[kind] = 0
	}
	e.mu.Unlock()

	e.log.Error("error recorded", "kind", kind, "count", count, "error", err)
	if count >= escalateAt && e.notifier != nil {
		e.notifier.SendImmediate(ctx, fmt.Sprintf(
			"🔴 Repeated error: %s (%d times in the last few minutes). Check the daemon log.",
			kind, count), nil)
	}
}

// RunReset clears all counts every window until ctx is cancelled.
func (e *Escalator) RunReset(ctx context.Context) {
	ticker := time.NewTicker(escalateReset)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.mu.Lock()
			e.counts = make(map[string]int)
			e.mu.Unlock()
		}
	}
}
