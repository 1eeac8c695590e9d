// Package notify delivers messages to the chat surface with batching for
// low-urgency events and a durable FIFO queue for offline periods. Every
// outbound text passes the redaction gate exactly once, on entry.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/DaveXRouz/conductor/internal/logging"
	"github.com/DaveXRouz/conductor/internal/redact"
)

// Button is one inline keyboard button; Data is the callback payload.
type Button struct {
	Label string
	Data  string
}

// Keyboard is rows of buttons.
type Keyboard [][]Button

// Transport is the platform the notifier talks to.
type Transport interface {
	// Send delivers one message and returns its platform message id.
	Send(ctx context.Context, text string, kb Keyboard, silent bool) (int64, error)

	// Ping probes reachability (the platform's "who am I" endpoint).
	Ping(ctx context.Context) error
}

// Kind labels a message for quiet-hours filtering.
type Kind string

const (
	KindInputRequired Kind = "input_required"
	KindTokenWarning  Kind = "token_warning"
	KindError         Kind = "error"
	KindCompleted     Kind = "completed"
	KindRateLimit     Kind = "rate_limit"
	KindAutoResponse  Kind = "auto_response"
	KindSystem        Kind = "system"
)

// quietDropped are the kinds suppressed during quiet hours. Only batched
// sends consult this; immediate sends always go through.
var quietDropped = map[Kind]bool{
	KindCompleted:    true,
	KindTokenWarning: true,
}

type message struct {
	text     string
	keyboard Keyboard
	silent   bool
}

// Notifier batches non-urgent messages, absorbs transport failures into an
// offline queue, and drains that queue when connectivity returns.
type Notifier struct {
	transport   Transport
	batchWindow time.Duration
	quiet       QuietWindow
	limiter     *rate.Limiter // paces offline-queue drains
	log         *slog.Logger

	mu      sync.Mutex
	batch   []message
	offline []message
	online  bool
	sounds  map[Kind]bool

	now     func() time.Time
	backoff func(attempt int) time.Duration
}

const (
	maxSendAttempts = 4
	probeInterval   = 30 * time.Second
)

// NewNotifier creates a notifier over the given transport. batchWindow of 0
// disables batching (every Send goes direct).
func NewNotifier(transport Transport, batchWindow time.Duration, quiet QuietWindow) *Notifier {
	return &Notifier{
		transport:   transport,
		batchWindow: batchWindow,
		quiet:       quiet,
		limiter:     rate.NewLimiter(rate.Every(100*time.Millisecond), 1),
		log:         logging.ForComponent(logging.CompNotify),
		online:      true,
		now:         time.Now,
		backoff: func(attempt int) time.Duration {
			d := time.Second << (attempt - 1)
			if d > 30*time.Second {
				d = 30 * time.Second
			}
			return d
		},
	}
}

// SetSounds configures which kinds ring the device; kinds absent from the
// map keep the caller's silent flag.
func (n *Notifier) SetSounds(sounds map[Kind]bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sounds = sounds
}

// Online reports whether the last transport interaction succeeded.
func (n *Notifier) Online() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.online
}

// QueuedOffline returns the current offline-queue depth.
func (n *Notifier) QueuedOffline() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.offline)
}

// Send queues a non-urgent message for batched delivery. During quiet hours,
// kinds in the dropped set are silently discarded (their events are still
// persisted by the caller).
func (n *Notifier) Send(ctx context.Context, kind Kind, text string, kb Keyboard, silent bool) {
	if n.quiet.Contains(n.now()) && quietDropped[kind] {
		n.log.Debug("quiet hours, dropping notification", "kind", string(kind))
		return
	}
	msg := message{text: redact.Redact(text), keyboard: kb, silent: silent}
	n.mu.Lock()
	if loud, ok := n.sounds[kind]; ok {
		msg.silent = !loud
	}
	n.mu.Unlock()
	if n.batchWindow <= 0 {
		n.sendDirect(ctx, msg)
		return
	}
	n.mu.Lock()
	n.batch = append(n.batch, msg)
	n.mu.Unlock()
}

// SendImmediate bypasses batching (but not redaction or the offline queue)
// and returns the platform message id, or 0 if the message was queued.
func (n *Notifier) SendImmediate(ctx context.Context, text string, kb Keyboard) int64 {
	return n.sendDirect(ctx, message{text: redact.Redact(text), keyboard: kb})
}

// sendDirect attempts delivery with backoff on throttling; other failures
// push the message onto the offline queue.
func (n *Notifier) sendDirect(ctx context.Context, msg message) int64 {
	for attempt := 1; attempt <= maxSendAttempts; attempt++ {
		id, err := n.transport.Send(ctx, msg.text, msg.keyboard, msg.silent)
		if err == nil {
			n.setOnline(ctx, true)
			return id
		}
		if isThrottled(err) {
			delay := n.backoff(attempt)
			n.log.Warn("transport throttled", "attempt", attempt, "backoff", delay)
			select {
			case <-time.After(delay):
				continue
			case <-ctx.Done():
			}
		} else {
			n.log.Warn("transport send failed, queueing offline", "error", err)
		}
		break
	}
	n.enqueueOffline(msg)
	n.setOnline(ctx, false)
	return 0
}

func isThrottled(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "429") || strings.Contains(msg, "Too Many Requests")
}

func (n *Notifier) enqueueOffline(msg message) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.offline = append(n.offline, msg)
}

func (n *Notifier) setOnline(ctx context.Context, online bool) {
	n.mu.Lock()
	wasOffline := !n.online
	n.online = online
	n.mu.Unlock()
	if online && wasOffline {
		n.drainOffline(ctx)
	}
}

// drainOffline sends queued messages in FIFO order, pacing each send.
// On failure the message goes back to the front and draining stops until
// the next connectivity probe succeeds.
func (n *Notifier) drainOffline(ctx context.Context) {
	for {
		n.mu.Lock()
		if len(n.offline) == 0 {
			n.mu.Unlock()
			return
		}
		msg := n.offline[0]
		n.offline = n.offline[1:]
		n.mu.Unlock()

		if err := n.limiter.Wait(ctx); err != nil {
			n.requeueFront(msg)
			return
		}
		if _, err := n.transport.Send(ctx, msg.text, msg.keyboard, msg.silent); err != nil {
			n.log.Warn("offline drain interrupted", "error", err)
			n.requeueFront(msg)
			n.mu.Lock()
			n.online = false
			n.mu.Unlock()
			return
		}
	}
}

func (n *Notifier) requeueFront(msg message) {
	n.mu.Lock()
	n.offline = append([]message{msg}, n.offline...)
	n.mu.Unlock()
}

// FlushBatch delivers everything buffered so far: a single message goes out
// as-is; two or more plain messages are combined into one compound message in
// arrival order, while keyboard-bearing ones are sent individually so their
// buttons survive.
func (n *Notifier) FlushBatch(ctx context.Context) {
	n.mu.Lock()
	items := n.batch
	n.batch = nil
	n.mu.Unlock()

	if len(items) == 0 {
		return
	}
	if len(items) == 1 {
		n.sendDirect(ctx, items[0])
		return
	}

	var plain, keyed []message
	for _, m := range items {
		if m.keyboard != nil {
			keyed = append(keyed, m)
		} else {
			plain = append(plain, m)
		}
	}
	if len(plain) == 1 {
		n.sendDirect(ctx, plain[0])
	} else if len(plain) > 1 {
		var sb strings.Builder
		fmt.Fprintf(&sb, "📬 %d Updates:\n\n", len(plain))
		for i, m := range plain {
			if i > 0 {
				sb.WriteString("\n\n")
			}
			sb.WriteString(m.text)
		}
		n.sendDirect(ctx, message{text: sb.String(), silent: plain[0].silent})
	}
	for _, m := range keyed {
		n.sendDirect(ctx, m)
	}
}

// RunBatchFlusher flushes the batch buffer on every window tick until ctx is
// cancelled, then drains once more (bounded) on the way out.
func (n *Notifier) RunBatchFlusher(ctx context.Context) {
	if n.batchWindow <= 0 {
		<-ctx.Done()
		return
	}
	ticker := time.NewTicker(n.batchWindow)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			n.FlushBatch(ctx)
		case <-ctx.Done():
			drainCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			n.FlushBatch(drainCtx)
			cancel()
			return
		}
	}
}

// RunConnectivityChecker probes the transport every 30 s while offline and
// drains the offline queue when the probe succeeds.
func (n *Notifier) RunConnectivityChecker(ctx context.Context) {
	ticker := time.NewTicker(probeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.CheckConnectivity(ctx)
		}
	}
}

// CheckConnectivity performs one probe-and-drain cycle.
func (n *Notifier) CheckConnectivity(ctx context.Context) {
	n.mu.Lock()
	needsProbe := !n.online || len(n.offline) > 0
	n.mu.Unlock()
	if !needsProbe {
		return
	}
	if err := n.transport.Ping(ctx); err != nil {
		n.log.Debug("connectivity probe failed", "error", err)
		return
	}
	n.setOnline(ctx, true)
	n.drainOffline(ctx)
}
