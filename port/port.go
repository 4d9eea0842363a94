// File: port/port.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package port

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"
	"github.com/momentics/hioload-kctx/api"
	"github.com/momentics/hioload-kctx/control"
	"github.com/momentics/hioload-kctx/internal/concurrency"
	"github.com/momentics/hioload-kctx/internal/logging"
	"github.com/momentics/hioload-kctx/mitigation"
	"github.com/momentics/hioload-kctx/worker"
	"github.com/sirupsen/logrus"
)

var (
	ErrDown      = errors.New("port: down")
	ErrQueueFull = errors.New("port: tx queue full")
	ErrClosed    = errors.New("port: closed")
)

// Handler receives frames arriving on a port.
type Handler func(port string, frame []byte)

// Config describes a port.
type Config struct {
	Name     string
	Ring     int
	Category int64
	UseTask  bool
	// CPU binds the worker task when Pin is set.
	CPU      int
	Pin      bool
	Channels Channels
	QueueLen int
	// Caller, when set, is borrowed by the worker while the port is up.
	Caller    api.ContextProvider
	Window    time.Duration
	Scheduler api.Scheduler
	Handler   Handler
	Logger    logrus.FieldLogger
	Metrics   *control.Metrics
}

// Stats is a snapshot of port counters.
type Stats struct {
	Name        string
	Up          bool
	Transmitted uint64
	Received    uint64
	Dropped     uint64
	Completions uint64
	Notified    uint64
	TxQueued    int
	RxQueued    int
	Worker      worker.Stats
	Mitigation  mitigation.Stats
}

// Port is one end of a loopback link.
type Port struct {
	cfg Config
	log logrus.FieldLogger

	txMu sync.Mutex
	tx   *queue.Queue

	rxIn  sync.Mutex // producers of rx
	rxOut sync.Mutex // consumers of rx
	rx    *concurrency.RingBuffer[[]byte]

	workMu sync.Mutex
	peer   *Port

	links   *links
	w       *worker.Context
	rxTimer *mitigation.Timer

	life   sync.Mutex
	up     atomic.Bool
	closed bool

	transmitted atomic.Uint64
	received    atomic.Uint64
	dropped     atomic.Uint64
	completions atomic.Uint64
	notified    atomic.Uint64
}

var (
	_ mitigation.Consumer = (*Port)(nil)
	_ mitigation.Gate     = (*Port)(nil)
)

// New creates a port that is down and looped back to itself.
func New(cfg Config) (*Port, error) {
	if cfg.Name == "" {
		return nil, api.NewError(api.ErrCodeInvalidConfig, "port", errors.New("name required"))
	}
	if cfg.QueueLen <= 0 {
		cfg.QueueLen = 1024
	}
	if cfg.Channels == "" {
		cfg.Channels = ChannelsEvent
	}
	p := &Port{
		cfg: cfg,
		log: logging.OrDefault(cfg.Logger).WithField("port", cfg.Name),
		tx:  queue.New(),
		rx:  concurrency.NewRingBuffer[[]byte](uint64(cfg.QueueLen)),
	}
	p.peer = p

	timer, err := mitigation.New(p, cfg.Ring, mitigation.Config{
		Window:    cfg.Window,
		Scheduler: cfg.Scheduler,
		Logger:    p.log,
		Metrics:   cfg.Metrics,
	})
	if err != nil {
		return nil, err
	}
	p.rxTimer = timer

	l, err := openLinks(cfg.Channels, p.onCompletion, p.log)
	if err != nil {
		return nil, err
	}
	p.links = l

	wcfg := worker.Config{
		Work:     p.work,
		State:    p,
		Notify:   p.notifyInline,
		Category: cfg.Category,
		UseTask:  cfg.UseTask,
		Logger:   p.log,
		Metrics:  cfg.Metrics,
	}
	if cfg.Pin {
		wcfg.CPU, wcfg.Pin = cfg.CPU, true
	}
	if cfg.Caller != nil {
		wcfg.AttachCaller, wcfg.Caller = true, cfg.Caller
	}
	w, err := worker.Create(wcfg, l.handles, l.resolver)
	if err != nil {
		l.close()
		return nil, err
	}
	p.w = w
	return p, nil
}

// Connect wires a and b back to back. Both ports must be down.
func Connect(a, b *Port) error {
	if a.up.Load() || b.up.Load() {
		return fmt.Errorf("port: connect %s<->%s: %w", a.cfg.Name, b.cfg.Name, errors.New("port is up"))
	}
	a.workMu.Lock()
	a.peer = b
	a.workMu.Unlock()
	b.workMu.Lock()
	b.peer = a
	b.workMu.Unlock()
	return nil
}

// Name returns the port name.
func (p *Port) Name() string { return p.cfg.Name }

// Peer returns the port frames are delivered to.
func (p *Port) Peer() *Port {
	p.workMu.Lock()
	defer p.workMu.Unlock()
	return p.peer
}

// Up starts the worker and opens the port for Transmit.
func (p *Port) Up() error {
	p.life.Lock()
	defer p.life.Unlock()
	if p.closed {
		return ErrClosed
	}
	if err := p.w.Start(); err != nil {
		return fmt.Errorf("port %s: %w", p.cfg.Name, err)
	}
	p.up.Store(true)
	p.log.Debug("port up")
	return nil
}

// Down stops the worker. Queued TX frames stay queued; deliveries to the
// handler are suppressed until the port is up again.
func (p *Port) Down() {
	p.life.Lock()
	defer p.life.Unlock()
	p.down()
}

func (p *Port) down() {
	if !p.up.Swap(false) {
		return
	}
	p.w.Stop()
	p.log.Debug("port down")
}

// Close takes the port down and releases the worker, the timer and the
// channels. Idempotent.
func (p *Port) Close() {
	p.life.Lock()
	defer p.life.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	p.down()
	p.rxTimer.Cleanup()
	p.w.Destroy()
	p.links.close()
}

// Transmit queues frame and rings the worker.
func (p *Port) Transmit(frame []byte) error {
	if !p.up.Load() {
		return ErrDown
	}
	p.txMu.Lock()
	if p.tx.Length() >= p.cfg.QueueLen {
		p.txMu.Unlock()
		p.dropped.Add(1)
		return ErrQueueFull
	}
	p.tx.Add(frame)
	p.txMu.Unlock()
	p.transmitted.Add(1)

	if p.links.doorbell != nil {
		if err := p.links.doorbell.Signal(); err != nil {
			return fmt.Errorf("port %s: doorbell: %w", p.cfg.Name, err)
		}
		return nil
	}
	p.w.Kick()
	return nil
}

// work moves every queued TX frame to the peer's RX ring.
func (p *Port) work(_ any, _ bool) {
	p.workMu.Lock()
	peer := p.peer
	moved := 0
	for {
		p.txMu.Lock()
		if p.tx.Length() == 0 {
			p.txMu.Unlock()
			break
		}
		f := p.tx.Remove().([]byte)
		p.txMu.Unlock()
		if peer.receive(f) {
			moved++
		} else {
			p.dropped.Add(1)
		}
	}
	p.workMu.Unlock()

	if moved > 0 {
		peer.rxTimer.MarkPending()
		p.w.SendCompletion()
	}
}

// notifyInline is the worker's notify function in inline mode: a kick
// drains on the kicking goroutine.
func (p *Port) notifyInline(state any) {
	p.work(state, false)
}

func (p *Port) receive(f []byte) bool {
	p.rxIn.Lock()
	defer p.rxIn.Unlock()
	return p.rx.Enqueue(f)
}

func (p *Port) onCompletion() {
	p.completions.Add(1)
}

// Notify drains the RX ring into the handler. Called by the mitigation timer.
func (p *Port) Notify(int) {
	p.notified.Add(1)
	p.rxOut.Lock()
	defer p.rxOut.Unlock()
	for {
		f, ok := p.rx.Dequeue()
		if !ok {
			return
		}
		p.received.Add(1)
		if h := p.cfg.Handler; h != nil {
			h(p.cfg.Name, f)
		}
	}
}

// Enabled reports whether the port is up.
func (p *Port) Enabled() bool {
	return p.up.Load()
}

// SetWindow updates the RX mitigation window.
func (p *Port) SetWindow(d time.Duration) {
	p.rxTimer.SetWindow(d)
}

// Window returns the RX mitigation window.
func (p *Port) Window() time.Duration {
	return p.rxTimer.Window()
}

// Stats returns port counters.
func (p *Port) Stats() Stats {
	p.txMu.Lock()
	txq := p.tx.Length()
	p.txMu.Unlock()
	return Stats{
		Name:        p.cfg.Name,
		Up:          p.up.Load(),
		Transmitted: p.transmitted.Load(),
		Received:    p.received.Load(),
		Dropped:     p.dropped.Load(),
		Completions: p.completions.Load(),
		Notified:    p.notified.Load(),
		TxQueued:    txq,
		RxQueued:    p.rx.Len(),
		Worker:      p.w.Stats(),
		Mitigation:  p.rxTimer.Stats(),
	}
}

// Generate transmits sequence-numbered frames at rate frames per second
// until ctx is done. Full queues drop the frame and continue.
func (p *Port) Generate(ctx context.Context, rate int) error {
	if rate <= 0 {
		<-ctx.Done()
		return nil
	}
	every := time.Second / time.Duration(rate)
	if every <= 0 {
		every = time.Nanosecond
	}
	tick := time.NewTicker(every)
	defer tick.Stop()
	var seq uint64
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick.C:
		}
		seq++
		f := make([]byte, 8)
		binary.BigEndian.PutUint64(f, seq)
		switch err := p.Transmit(f); {
		case err == nil, errors.Is(err, ErrQueueFull):
		case errors.Is(err, ErrDown):
			return nil
		default:
			return err
		}
	}
}
