package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

type fakeTransport struct {
	mu       sync.Mutex
	sent     []string
	failNext int
	pingErr  error
	nextID   int64
}

func (f *fakeTransport) Send(ctx context.Context, text string, kb Keyboard, silent bool) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext > 0 {
		f.failNext--
		return 0, errors.New("network unreachable")
	}
	f.sent = append(f.sent, text)
	f.nextID++
	return f.nextID, nil
}

func (f *fakeTransport) Ping(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pingErr
}

func (f *fakeTransport) sentCopy() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func newTestNotifier(tr *fakeTransport) *Notifier {
	n := NewNotifier(tr, 5*time.Second, QuietWindow{})
	n.limiter = rate.NewLimiter(rate.Inf, 1)
	n.backoff = func(int) time.Duration { return time.Millisecond }
	return n
}

func TestSendImmediate(t *testing.T) {
	tr := &fakeTransport{}
	n := newTestNotifier(tr)
	id := n.SendImmediate(context.Background(), "urgent", nil)
	assert.Equal(t, int64(1), id)
	assert.Equal(t, []string{"urgent"}, tr.sentCopy())
}

func TestSendImmediate_Redacts(t *testing.T) {
	tr := &fakeTransport{}
	n := newTestNotifier(tr)
	n.SendImmediate(context.Background(), "key is sk-ant-api03-secret123", nil)
	sent := tr.sentCopy()
	require.Len(t, sent, 1)
	assert.NotContains(t, sent[0], "sk-ant-api03")
	assert.Contains(t, sent[0], "[REDACTED:ANTHROPIC_KEY]")
}

func TestBatchedSendCombinesInArrivalOrder(t *testing.T) {
	tr := &fakeTransport{}
	n := newTestNotifier(tr)
	ctx := context.Background()

	n.Send(ctx, KindCompleted, "first done", nil, true)
	n.Send(ctx, KindCompleted, "second done", nil, true)
	n.Send(ctx, KindCompleted, "third done", nil, true)
	n.FlushBatch(ctx)

	sent := tr.sentCopy()
	require.Len(t, sent, 1, "three batched events must produce one message")
	assert.Contains(t, sent[0], "3 Updates")
	first := strings.Index(sent[0], "first done")
	second := strings.Index(sent[0], "second done")
	third := strings.Index(sent[0], "third done")
	assert.True(t, first < second && second < third, "arrival order not preserved: %q", sent[0])
}

func TestBatchedSingleMessageSentAsIs(t *testing.T) {
	tr := &fakeTransport{}
	n := newTestNotifier(tr)
	ctx := context.Background()

	n.Send(ctx, KindCompleted, "only one", nil, false)
	n.FlushBatch(ctx)

	sent := tr.sentCopy()
	require.Len(t, sent, 1)
	assert.Equal(t, "only one", sent[0])
}

func TestBatchedKeyboardMessagesSentIndividually(t *testing.T) {
	tr := &fakeTransport{}
	n := newTestNotifier(tr)
	ctx := context.Background()

	kb := Keyboard{{{Label: "Retry", Data: "suggest:0"}}}
	n.Send(ctx, KindCompleted, "plain a", nil, false)
	n.Send(ctx, KindCompleted, "with buttons", kb, false)
	n.Send(ctx, KindCompleted, "plain b", nil, false)
	n.FlushBatch(ctx)

	sent := tr.sentCopy()
	require.Len(t, sent, 2)
	assert.Contains(t, sent[0], "plain a")
	assert.Contains(t, sent[0], "plain b")
	assert.Equal(t, "with buttons", sent[1])
}

func TestEmptyFlushSendsNothing(t *testing.T) {
	tr := &fakeTransport{}
	n := newTestNotifier(tr)
	n.FlushBatch(context.Background())
	assert.Empty(t, tr.sentCopy())
}

func TestOfflineQueueDrainPreservesFIFO(t *testing.T) {
	tr := &fakeTransport{failNext: 3}
	n := newTestNotifier(tr)
	ctx := context.Background()

	// Three sends fail and queue up.
	n.SendImmediate(ctx, "msg 1", nil)
	n.SendImmediate(ctx, "msg 2", nil)
	n.SendImmediate(ctx, "msg 3", nil)
	assert.False(t, n.Online())
	assert.Equal(t, 3, n.QueuedOffline())
	assert.Empty(t, tr.sentCopy())

	// Connectivity returns; the probe drains the queue in order.
	n.CheckConnectivity(ctx)
	assert.Equal(t, []string{"msg 1", "msg 2", "msg 3"}, tr.sentCopy())
	assert.Equal(t, 0, n.QueuedOffline())
	assert.True(t, n.Online())
}

func TestOfflineDrainAcrossMultipleReconnects(t *testing.T) {
	tr := &fakeTransport{failNext: 2}
	n := newTestNotifier(tr)
	ctx := context.Background()

	n.SendImmediate(ctx, "a", nil)
	n.SendImmediate(ctx, "b", nil)

	// First reconnect delivers one message then fails again.
	tr.mu.Lock()
	tr.failNext = 0
	tr.mu.Unlock()
	n.CheckConnectivity(ctx)
	// Everything already delivered in one drain here; simulate split drains
	// by queueing more and failing again.
	tr.mu.Lock()
	tr.failNext = 1
	tr.mu.Unlock()
	n.SendImmediate(ctx, "c", nil)
	n.CheckConnectivity(ctx)

	assert.Equal(t, []string{"a", "b", "c"}, tr.sentCopy())
}

func TestProbeFailureLeavesQueueIntact(t *testing.T) {
	tr := &fakeTransport{failNext: 1, pingErr: errors.New("still down")}
	n := newTestNotifier(tr)
	ctx := context.Background()

	n.SendImmediate(ctx, "queued", nil)
	n.CheckConnectivity(ctx)
	assert.Equal(t, 1, n.QueuedOffline())
	assert.Empty(t, tr.sentCopy())
}

func TestThrottledSendRetriesThenSucceeds(t *testing.T) {
	calls := 0
	tr := &throttlingTransport{failures: 2}
	n := NewNotifier(tr, 0, QuietWindow{})
	n.backoff = func(int) time.Duration { calls++; return time.Millisecond }

	id := n.SendImmediate(context.Background(), "hello", nil)
	assert.Equal(t, int64(1), id)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 0, n.QueuedOffline())
}

type throttlingTransport struct {
	failures int
	sent     int64
}

func (f *throttlingTransport) Send(ctx context.Context, text string, kb Keyboard, silent bool) (int64, error) {
	if f.failures > 0 {
		f.failures--
		return 0, errors.New("telegram: 429 Too Many Requests")
	}
	f.sent++
	return f.sent, nil
}

func (f *throttlingTransport) Ping(ctx context.Context) error { return nil }

func TestQuietHoursDropLowUrgency(t *testing.T) {
	tr := &fakeTransport{}
	quiet := QuietWindow{Enabled: true, Start: 0, End: 24 * 60, Location: time.UTC}
	n := NewNotifier(tr, 5*time.Second, quiet)
	ctx := context.Background()

	n.Send(ctx, KindCompleted, "done", nil, false)
	n.Send(ctx, KindTokenWarning, "80%", nil, false)
	n.FlushBatch(ctx)
	assert.Empty(t, tr.sentCopy(), "completed/token warnings must be dropped in quiet hours")

	// Immediate sends are unaffected.
	n.SendImmediate(ctx, "error!", nil)
	assert.Equal(t, []string{"error!"}, tr.sentCopy())

	// Non-dropped kinds still batch through.
	n.Send(ctx, KindAutoResponse, "auto: y", nil, true)
	n.FlushBatch(ctx)
	assert.Len(t, tr.sentCopy(), 2)
}

func TestQuietWindowWrapsMidnight(t *testing.T) {
	w := QuietWindow{Enabled: true, Start: 23 * 60, End: 7 * 60, Location: time.UTC}
	assert.True(t, w.Contains(time.Date(2025, 6, 1, 23, 30, 0, 0, time.UTC)))
	assert.True(t, w.Contains(time.Date(2025, 6, 1, 3, 0, 0, 0, time.UTC)))
	assert.False(t, w.Contains(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)))
}

func TestParseQuietWindow(t *testing.T) {
	w, err := ParseQuietWindow(true, "23:00", "07:30", "UTC")
	require.NoError(t, err)
	assert.Equal(t, 23*60, w.Start)
	assert.Equal(t, 7*60+30, w.End)

	_, err = ParseQuietWindow(true, "25:00", "07:00", "")
	assert.Error(t, err)

	w, err = ParseQuietWindow(false, "", "", "")
	require.NoError(t, err)
	assert.False(t, w.Contains(time.Now()))
}
