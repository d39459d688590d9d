package typing

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/verte-zerg/tuirace/internal/model"
)

func startDriver(t *testing.T, limit int, words ...string) (*Driver, *clockwork.FakeClock, <-chan Snapshot, context.CancelFunc) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	session := NewFixedSession(model.Preferences{TimeLimitSeconds: limit, Mode: model.ModeWords}, words)
	d := NewDriver(session, clock)
	sub := d.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = d.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	waitFor(t, sub, func(s Snapshot) bool { return s.CurrentWord == words[0] })
	return d, clock, sub, cancel
}

func waitFor(t *testing.T, sub <-chan Snapshot, match func(Snapshot) bool) Snapshot {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case snap, ok := <-sub:
			if !ok {
				t.Fatalf("subscription closed")
			}
			if match(snap) {
				return snap
			}
		case <-timeout:
			t.Fatalf("timed out waiting for snapshot")
		}
	}
}

func blockUntil(t *testing.T, clock *clockwork.FakeClock, n int) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := clock.BlockUntilContext(ctx, n); err != nil {
		t.Fatalf("waiting for %d timers: %v", n, err)
	}
}

func TestDriverCountdown(t *testing.T) {
	d, clock, sub, _ := startDriver(t, 3, "hello", "world")

	d.Key("h", false)
	waitFor(t, sub, func(s Snapshot) bool { return s.State == Running && s.TypedWord == "h" })
	blockUntil(t, clock, 2)

	for remaining := 2; remaining >= 0; remaining-- {
		clock.Advance(time.Second)
		want := remaining
		waitFor(t, sub, func(s Snapshot) bool { return s.TimerRemaining == want })
	}
	snap := waitFor(t, sub, func(s Snapshot) bool { return s.Finished() })
	if snap.Results == nil || snap.Results.WPM != 4 || snap.Results.Accuracy != 100 {
		t.Fatalf("unexpected results: %+v", snap.Results)
	}

	d.Key("e", false)
	clock.Advance(time.Second)
	if got := d.Snapshot(); got.TypedWord != "h" || got.TimerRemaining != 0 {
		t.Fatalf("finished driver changed state: %+v", got)
	}
}

func TestDriverCaretBlink(t *testing.T) {
	d, clock, sub, _ := startDriver(t, 30, "hello")
	if !d.Snapshot().CaretBlink {
		t.Fatalf("caret should blink while idle")
	}

	d.Key("h", false)
	waitFor(t, sub, func(s Snapshot) bool { return s.TypedWord == "h" && !s.CaretBlink })
	blockUntil(t, clock, 2)

	clock.Advance(caretDelay)
	waitFor(t, sub, func(s Snapshot) bool { return s.CaretBlink })
}

func TestDriverStartWithoutKey(t *testing.T) {
	d, clock, sub, _ := startDriver(t, 2, "race", "words")

	d.Start()
	waitFor(t, sub, func(s Snapshot) bool { return s.State == Running })
	blockUntil(t, clock, 1)
	clock.Advance(time.Second)
	waitFor(t, sub, func(s Snapshot) bool { return s.TimerRemaining == 1 })
	clock.Advance(time.Second)
	snap := waitFor(t, sub, func(s Snapshot) bool { return s.Finished() })
	if snap.Results.WPM != 0 || snap.Results.Accuracy != 0 {
		t.Fatalf("unexpected results: %+v", snap.Results)
	}
}

func TestDriverRestart(t *testing.T) {
	d, clock, sub, _ := startDriver(t, 10, "one", "two")

	d.Key("o", false)
	waitFor(t, sub, func(s Snapshot) bool { return s.State == Running })
	blockUntil(t, clock, 2)
	clock.Advance(time.Second)
	waitFor(t, sub, func(s Snapshot) bool { return s.TimerRemaining == 9 })

	d.Restart()
	snap := waitFor(t, sub, func(s Snapshot) bool { return s.State == Idle })
	if snap.TypedWord != "" || snap.TimerRemaining != 10 || !snap.CaretBlink {
		t.Fatalf("unexpected snapshot after restart: %+v", snap)
	}
	blockUntil(t, clock, 0)
}

func TestDriverClosesSubscribers(t *testing.T) {
	_, _, sub, cancel := startDriver(t, 5, "bye")
	cancel()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-sub:
			if !ok {
				return
			}
		case <-timeout:
			t.Fatalf("subscription not closed")
		}
	}
}

func TestSubscribeReceivesLatest(t *testing.T) {
	d, _, _, _ := startDriver(t, 5, "late")
	d.Key("l", false)
	first := d.Subscribe()
	snap := waitFor(t, first, func(s Snapshot) bool { return s.TypedWord == "l" })
	if snap.CurrentWord != "late" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}
