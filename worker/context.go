// File: worker/context.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package worker

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/momentics/hioload-kctx/api"
	"github.com/momentics/hioload-kctx/control"
	"github.com/momentics/hioload-kctx/internal/concurrency"
	"github.com/momentics/hioload-kctx/internal/logging"
	"github.com/sirupsen/logrus"
)

// Context is a worker context: one execution strategy, its kick counter and
// the borrowed channels and execution context.
type Context struct {
	cfg      Config
	log      logrus.FieldLogger
	metrics  *control.WorkerMetrics
	strategy api.Strategy

	// scheduled counts kicks. Only inequality matters, so wrapping is harmless.
	scheduled atomic.Uint32

	inbound  api.Channel
	outbound api.Channel

	mu        sync.Mutex // serializes Start, Stop and Destroy
	started   atomic.Bool
	cpu       int
	lease     api.Lease
	reg       api.Registration
	destroyed atomic.Bool

	kicks       atomic.Uint64
	invocations atomic.Uint64
	spurious    atomic.Uint64
	completions atomic.Uint64
}

// Stats is a point-in-time view of a context.
type Stats struct {
	Category    int64
	Dedicated   bool
	Running     bool
	Scheduled   uint32
	Kicks       uint64
	Invocations uint64
	Spurious    uint64
	Completions uint64
}

// Create validates cfg, resolves the channel handles and returns a stopped
// context. handles may be nil when no channels are used. Nothing is left
// referenced when Create fails.
func Create(cfg Config, handles *Handles, resolver api.ChannelResolver) (*Context, error) {
	if err := cfg.validate(); err != nil {
		return nil, api.NewError(api.ErrCodeInvalidConfig, "create", err)
	}
	c := &Context{
		cfg:     cfg,
		log:     logging.OrDefault(cfg.Logger).WithField("category", cfg.Category),
		metrics: cfg.Metrics.Worker(cfg.Category),
		cpu:     NoAffinity,
	}
	if cfg.Pin {
		c.cpu = cfg.CPU
	}
	if handles != nil {
		if err := c.openChannels(handles, resolver); err != nil {
			return nil, err
		}
	}
	if cfg.UseTask {
		c.strategy = newTaskStrategy(c)
	} else {
		c.strategy = &inlineStrategy{c: c}
	}
	c.log.WithField("dedicated", cfg.UseTask).Debug("worker context created")
	return c, nil
}

func (c *Context) openChannels(h *Handles, resolver api.ChannelResolver) error {
	if h.Kind != HandleKindEvent {
		return api.NewError(api.ErrCodeInvalidConfig, "create",
			fmt.Errorf("unsupported handle kind %d", h.Kind))
	}
	if h.Inbound == api.NoHandle && h.Outbound == api.NoHandle {
		return nil
	}
	if resolver == nil {
		return api.NewError(api.ErrCodeInvalidConfig, "create", errors.New("channel handles without resolver"))
	}
	if h.Inbound != api.NoHandle {
		ch, err := resolver.Resolve(h.Inbound)
		if err != nil {
			return api.NewError(api.ErrCodeChannelUnavailable, "create", err).
				WithContext("handle", int(h.Inbound))
		}
		c.inbound = ch
	}
	if h.Outbound != api.NoHandle {
		ch, err := resolver.Resolve(h.Outbound)
		if err != nil {
			c.closeChannels()
			return api.NewError(api.ErrCodeChannelUnavailable, "create", err).
				WithContext("handle", int(h.Outbound))
		}
		c.outbound = ch
	}
	return nil
}

func (c *Context) closeChannels() {
	if c.inbound != nil {
		if err := c.inbound.Release(); err != nil {
			c.log.WithError(err).Warn("inbound channel release failed")
		}
		c.inbound = nil
	}
	if c.outbound != nil {
		if err := c.outbound.Release(); err != nil {
			c.log.WithError(err).Warn("outbound channel release failed")
		}
		c.outbound = nil
	}
}

// Start acquires the borrowed execution context if requested, launches the
// execution strategy and registers on the inbound channel. Every effect is
// undone when a step fails.
func (c *Context) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.destroyed.Load() {
		return api.NewError(api.ErrCodeInvalidConfig, "start", errors.New("context destroyed"))
	}
	if c.started.Load() {
		return api.NewError(api.ErrCodeAlreadyRunning, "start", nil)
	}

	if c.cfg.AttachCaller {
		if c.cfg.Caller == nil {
			return api.NewError(api.ErrCodeContextUnavailable, "start", errors.New("no context provider"))
		}
		lease, err := c.cfg.Caller.Acquire()
		if err != nil {
			return api.NewError(api.ErrCodeContextUnavailable, "start", err)
		}
		c.lease = lease
	}

	if err := c.strategy.Start(); err != nil {
		c.releaseLease()
		c.log.WithError(err).Warn("worker start rolled back")
		return err
	}

	if c.inbound != nil {
		reg, err := c.inbound.Watch(c.strategy.Wakeup)
		if err != nil {
			c.strategy.Stop()
			c.releaseLease()
			c.log.WithError(err).Warn("worker start rolled back")
			return api.NewError(api.ErrCodeChannelUnavailable, "start", err)
		}
		c.reg = reg
	}

	c.started.Store(true)
	c.metrics.SetRunning(true)
	c.log.WithFields(logrus.Fields{
		"dedicated": c.strategy.Dedicated(),
		"cpu":       c.cpu,
		"channel":   c.inbound != nil,
	}).Debug("worker started")
	return nil
}

// Kick requests another pass of the work function. In dedicated mode it
// bumps the counter and wakes the task; in inline mode it calls Notify on
// the caller's goroutine. Kick never blocks on the engine and is ignored
// once the context is destroyed.
func (c *Context) Kick() {
	if c == nil || c.destroyed.Load() {
		return
	}
	c.kicks.Add(1)
	c.metrics.Kick()
	c.strategy.Kick()
}

// SendCompletion signals the outbound channel, if any. It is meant to be
// called by the work function.
func (c *Context) SendCompletion() {
	ch := c.outbound
	if ch == nil {
		return
	}
	if err := ch.Signal(); err != nil {
		c.log.WithError(err).Warn("completion signal failed")
		return
	}
	c.completions.Add(1)
	c.metrics.Completion()
}

// Stop unregisters from the inbound channel, joins the dedicated task and
// releases the borrowed execution context. No work function invocation
// happens after Stop returns. Stop must not be called from the work
// function.
func (c *Context) Stop() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

func (c *Context) stopLocked() {
	if c.reg != nil {
		c.reg.Cancel()
		c.reg = nil
	}
	if !c.started.Load() {
		return
	}
	c.strategy.Stop()
	c.releaseLease()
	c.started.Store(false)
	c.metrics.SetRunning(false)
	c.log.Debug("worker stopped")
}

func (c *Context) releaseLease() {
	if c.lease != nil {
		c.lease.Release()
		c.lease = nil
	}
}

// Destroy stops the context if needed and drops its channel references.
// It is safe on a nil, never started or already destroyed context.
func (c *Context) Destroy() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed.Load() {
		return
	}
	c.stopLocked()
	c.closeChannels()
	c.destroyed.Store(true)
	c.log.Debug("worker context destroyed")
}

// SetAffinity changes the CPU the dedicated task binds to on the next Start.
// NoAffinity leaves it unbound.
func (c *Context) SetAffinity(cpu int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cpu < 0 {
		cpu = NoAffinity
	}
	c.cpu = cpu
}

// Running reports whether the context is started.
func (c *Context) Running() bool {
	return c.started.Load()
}

// Stats returns counters for the context.
func (c *Context) Stats() Stats {
	return Stats{
		Category:    c.cfg.Category,
		Dedicated:   c.strategy.Dedicated(),
		Running:     c.Running(),
		Scheduled:   c.scheduled.Load(),
		Kicks:       c.kicks.Load(),
		Invocations: c.invocations.Load(),
		Spurious:    c.spurious.Load(),
		Completions: c.completions.Load(),
	}
}

// invoke runs the work function once.
func (c *Context) invoke(inTask bool) {
	c.invocations.Add(1)
	c.metrics.Invoked(inTask)
	c.cfg.Work(c.cfg.State, inTask)
}

// NumCPU returns the number of logical CPUs usable for affinity.
func NumCPU() int {
	return concurrency.NumCPUs()
}
