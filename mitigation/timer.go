// File: mitigation/timer.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package mitigation

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/momentics/hioload-kctx/api"
	"github.com/momentics/hioload-kctx/control"
	"github.com/momentics/hioload-kctx/internal/concurrency"
	"github.com/momentics/hioload-kctx/internal/logging"
	"github.com/sirupsen/logrus"
)

// DefaultWindow is the minimum spacing between deliveries when none is configured.
const DefaultWindow = 10 * time.Microsecond

// Consumer receives ring notifications. Notify may be called from the
// producer's goroutine and from the scheduler's, possibly concurrently.
type Consumer interface {
	Notify(ring int)
}

// Gate is optionally implemented by a Consumer. While Enabled reports
// false deliveries are dropped, but the timer keeps its schedule.
type Gate interface {
	Enabled() bool
}

// Config tunes a Timer.
type Config struct {
	Window    time.Duration
	Scheduler api.Scheduler
	Logger    logrus.FieldLogger
	Metrics   *control.Metrics
}

// Stats counts timer activity. Coalesced counts every arrival that found
// the timer armed.
type Stats struct {
	Immediate uint64
	Expired   uint64
	Coalesced uint64
	Skipped   uint64
}

// Timer is the mitigation state of one ring.
type Timer struct {
	consumer Consumer
	gate     Gate
	ring     int
	sched    api.Scheduler
	log      logrus.FieldLogger
	metrics  *control.RingMetrics

	mu      sync.Mutex
	window  time.Duration
	armed   bool
	pending bool
	closed  bool
	handle  api.Cancelable

	// inflight tracks scheduled expiries and running deliveries.
	inflight sync.WaitGroup

	immediate atomic.Uint64
	expired   atomic.Uint64
	coalesced atomic.Uint64
	skipped   atomic.Uint64
}

// New returns an idle timer delivering to consumer for ring.
func New(consumer Consumer, ring int, cfg Config) (*Timer, error) {
	if consumer == nil {
		return nil, api.NewError(api.ErrCodeInvalidConfig, "mitigation", errors.New("nil consumer"))
	}
	if cfg.Window < 0 {
		return nil, api.NewError(api.ErrCodeInvalidConfig, "mitigation", errors.New("negative window"))
	}
	if cfg.Window == 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.Scheduler == nil {
		cfg.Scheduler = concurrency.TimerScheduler{}
	}
	t := &Timer{
		consumer: consumer,
		ring:     ring,
		sched:    cfg.Scheduler,
		window:   cfg.Window,
		log:      logging.OrDefault(cfg.Logger).WithField("ring", ring),
		metrics:  cfg.Metrics.Ring(ring),
	}
	t.gate, _ = consumer.(Gate)
	return t, nil
}

// MarkPending records that new data arrived on the ring. An idle timer
// delivers on the calling goroutine before returning; an armed one defers
// the delivery to its next expiry. Calls after Cleanup are ignored.
func (t *Timer) MarkPending() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	if t.armed {
		t.pending = true
		t.coalesced.Add(1)
		t.metrics.Pending()
		t.mu.Unlock()
		return
	}
	t.armed = true
	t.armLocked()
	t.inflight.Add(1)
	t.mu.Unlock()

	defer t.inflight.Done()
	t.deliver(true)
}

// armLocked schedules the next expiry. t.mu must be held.
func (t *Timer) armLocked() {
	t.inflight.Add(1)
	t.handle = t.sched.Schedule(t.window, func() {
		defer t.inflight.Done()
		t.expire()
	})
}

func (t *Timer) expire() {
	t.mu.Lock()
	if t.closed || !t.armed {
		t.mu.Unlock()
		return
	}
	if !t.pending {
		t.armed = false
		t.handle = nil
		t.mu.Unlock()
		return
	}
	t.pending = false
	t.armLocked()
	t.inflight.Add(1)
	t.mu.Unlock()

	defer t.inflight.Done()
	t.deliver(false)
}

func (t *Timer) deliver(immediate bool) {
	if t.gate != nil && !t.gate.Enabled() {
		t.skipped.Add(1)
		t.metrics.Skip()
		return
	}
	if immediate {
		t.immediate.Add(1)
	} else {
		t.expired.Add(1)
	}
	t.metrics.Delivered(immediate)
	t.consumer.Notify(t.ring)
}

// Cleanup cancels the timer. When it returns no delivery is running and
// none will start. It must not be called from the consumer's Notify.
func (t *Timer) Cleanup() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	t.pending = false
	t.armed = false
	h := t.handle
	t.handle = nil
	t.mu.Unlock()

	if h != nil && h.Cancel() {
		t.inflight.Done()
	}
	t.inflight.Wait()
	t.log.Debug("mitigation timer cleaned up")
}

// Active reports whether the timer is armed.
func (t *Timer) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.armed
}

// Pending reports whether an arrival awaits the next expiry.
func (t *Timer) Pending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending
}

// Window returns the current window.
func (t *Timer) Window() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.window
}

// SetWindow changes the window used from the next arm on. Non-positive
// values restore DefaultWindow.
func (t *Timer) SetWindow(d time.Duration) {
	if d <= 0 {
		d = DefaultWindow
	}
	t.mu.Lock()
	old := t.window
	t.window = d
	t.mu.Unlock()
	if old != d {
		t.log.WithFields(logrus.Fields{"old": old, "new": d}).Info("mitigation window changed")
	}
}

// Ring returns the ring id the timer delivers for.
func (t *Timer) Ring() int { return t.ring }

// Stats returns the timer counters.
func (t *Timer) Stats() Stats {
	return Stats{
		Immediate: t.immediate.Load(),
		Expired:   t.expired.Load(),
		Coalesced: t.coalesced.Load(),
		Skipped:   t.skipped.Load(),
	}
}
