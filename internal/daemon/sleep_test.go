package daemon

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSleepDetectorFiresOnWallClockGap(t *testing.T) {
	var mu sync.Mutex
	offset := time.Duration(0)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	wake := make(chan time.Duration, 1)
	d := NewSleepDetector(func(ctx context.Context, gap time.Duration) {
		select {
		case wake <- gap:
		default:
		}
	})
	d.interval = 5 * time.Millisecond
	d.threshold = 20 * time.Millisecond
	d.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return base.Add(offset).Add(time.Since(base))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	// Let a few normal ticks pass, then jump the wall clock.
	time.Sleep(30 * time.Millisecond)
	mu.Lock()
	offset = 45 * time.Second
	mu.Unlock()

	select {
	case gap := <-wake:
		assert.Greater(t, gap, 40*time.Second)
	case <-time.After(time.Second):
		t.Fatal("wake callback not fired after clock gap")
	}
}

func TestSleepDetectorQuietOnNormalTicks(t *testing.T) {
	fired := make(chan struct{}, 1)
	d := NewSleepDetector(func(ctx context.Context, gap time.Duration) {
		select {
		case fired <- struct{}{}:
		default:
		}
	})
	d.interval = 5 * time.Millisecond
	d.threshold = 500 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	select {
	case <-fired:
		t.Fatal("wake fired without a clock gap")
	case <-time.After(60 * time.Millisecond):
	}
}
