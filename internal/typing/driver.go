package typing

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

const (
	tickInterval = time.Second
	caretDelay   = 500 * time.Millisecond
	eventBuffer  = 64
)

// Driver owns a Session on a single goroutine. Key presses, countdown ticks
// and caret timers are all applied from Run, and every change is published
// to subscribers as a Snapshot.
type Driver struct {
	session *Session
	clock   clockwork.Clock

	events chan func()
	done   chan struct{}

	ticker     clockwork.Ticker
	blink      clockwork.Timer
	caretBlink bool

	mu        sync.Mutex
	subs      []chan Snapshot
	last      Snapshot
	published bool
	closed    bool
}

// NewDriver wraps session. A nil clock uses the real clock.
func NewDriver(session *Session, clock clockwork.Clock) *Driver {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Driver{
		session:    session,
		clock:      clock,
		events:     make(chan func(), eventBuffer),
		done:       make(chan struct{}),
		caretBlink: true,
	}
}

// Run initialises the session and processes events until ctx is cancelled.
// Timers are stopped and subscriber channels closed on return.
func (d *Driver) Run(ctx context.Context) error {
	defer d.shutdown()

	d.session.Init()
	if !d.session.Startable() {
		log.Warn().Str("mode", string(d.session.prefs.Mode)).Msg("typing session has no words")
	}
	d.publish()

	for {
		var tick <-chan time.Time
		if d.ticker != nil {
			tick = d.ticker.Chan()
		}
		select {
		case <-ctx.Done():
			return nil
		case fn := <-d.events:
			fn()
		case <-tick:
			d.onTick()
		}
	}
}

// Subscribe returns a channel receiving the latest snapshot after each change.
// Intermediate snapshots are dropped for slow readers; the newest always arrives.
func (d *Driver) Subscribe() <-chan Snapshot {
	ch := make(chan Snapshot, 1)
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		close(ch)
		return ch
	}
	d.subs = append(d.subs, ch)
	if d.published {
		ch <- d.last
	}
	return ch
}

// Snapshot returns the most recently published state.
func (d *Driver) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last
}

// Key forwards a key press to the session.
func (d *Driver) Key(key string, ctrl bool) {
	d.submit(func() {
		before := d.session.State()
		if !d.session.HandleKey(key, ctrl) {
			return
		}
		d.afterTransition(before)
		if d.session.State() != Finished {
			d.restartCaret()
		}
		d.publish()
	})
}

// Start begins the countdown without waiting for a key press.
func (d *Driver) Start() {
	d.submit(func() {
		before := d.session.State()
		if d.session.Start() {
			d.afterTransition(before)
			d.publish()
		}
	})
}

// Restart stops all timers and resets the session to Idle.
func (d *Driver) Restart() {
	d.submit(func() {
		d.stopTimers()
		d.session.Restart()
		d.caretBlink = true
		d.publish()
	})
}

func (d *Driver) submit(fn func()) {
	select {
	case d.events <- fn:
	case <-d.done:
	}
}

func (d *Driver) onTick() {
	if d.session.Tick() {
		d.stopTimers()
		log.Debug().Int("wpm", d.session.results.WPM).Msg("typing session finished")
	}
	d.publish()
}

func (d *Driver) afterTransition(before State) {
	after := d.session.State()
	if before == Idle && after == Running {
		d.ticker = d.clock.NewTicker(tickInterval)
	}
	if after == Finished {
		d.stopTimers()
	}
}

func (d *Driver) restartCaret() {
	if d.blink != nil {
		d.blink.Stop()
	}
	d.caretBlink = false
	var timer clockwork.Timer
	timer = d.clock.AfterFunc(caretDelay, func() {
		d.submit(func() {
			if d.blink != timer {
				return
			}
			d.caretBlink = true
			d.blink = nil
			d.publish()
		})
	})
	d.blink = timer
}

func (d *Driver) stopTimers() {
	if d.ticker != nil {
		d.ticker.Stop()
		d.ticker = nil
	}
	if d.blink != nil {
		d.blink.Stop()
		d.blink = nil
	}
}

func (d *Driver) publish() {
	snap := d.session.Snapshot()
	snap.CaretBlink = d.caretBlink

	d.mu.Lock()
	defer d.mu.Unlock()
	d.last = snap
	d.published = true
	for _, ch := range d.subs {
		select {
		case ch <- snap:
		default:
			// Replace the unread snapshot with the newer one.
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
}

func (d *Driver) shutdown() {
	d.stopTimers()
	close(d.done)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	for _, ch := range d.subs {
		close(ch)
	}
	d.subs = nil
}
