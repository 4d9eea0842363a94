// File: worker/strategy.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// The two execution strategies behind a worker context.

package worker

import (
	"context"
	"fmt"
	"os"
	"runtime/pprof"

	"github.com/momentics/hioload-kctx/api"
	"github.com/momentics/hioload-kctx/internal/concurrency"
)

// taskStrategy owns a dedicated task.
type taskStrategy struct {
	c      *Context
	parker *concurrency.Parker

	// guarded by c.mu
	stopCh  chan struct{}
	done    chan struct{}
	running bool
}

var _ api.Strategy = (*taskStrategy)(nil)

func newTaskStrategy(c *Context) *taskStrategy {
	return &taskStrategy{c: c, parker: concurrency.NewParker()}
}

func (t *taskStrategy) Dedicated() bool { return true }

// Start spawns the task and kicks it once for an initial pass.
func (t *taskStrategy) Start() error {
	if t.running {
		return api.NewError(api.ErrCodeAlreadyRunning, "start", nil)
	}
	t.stopCh = make(chan struct{})
	t.done = make(chan struct{})
	t.parker.Drain()

	ready := make(chan error, 1)
	go t.run(t.c.cpu, t.c.lease, t.stopCh, t.done, ready)
	if err := <-ready; err != nil {
		<-t.done
		return api.NewError(api.ErrCodeTaskSpawnFailed, "start", err).WithContext("cpu", t.c.cpu)
	}
	t.running = true
	t.c.Kick()
	return nil
}

func (t *taskStrategy) run(cpu int, lease api.Lease, stop <-chan struct{}, done chan<- struct{}, ready chan<- error) {
	defer close(done)
	// a pinned thread is retired with the goroutine, never unlocked
	if err := concurrency.PinCurrentThread(cpu); err != nil {
		ready <- err
		return
	}
	if cpu == concurrency.NoCPU {
		defer concurrency.UnpinCurrentThread()
	}
	name := fmt.Sprintf("kctx:%d:%d", os.Getpid(), t.c.cfg.Category)
	pprof.SetGoroutineLabels(pprof.WithLabels(context.Background(), pprof.Labels("task", name)))

	last := t.c.scheduled.Load()
	ready <- nil

	if lease != nil {
		lease.Attach()
		defer lease.Detach()
	}
	if t.c.inbound == nil {
		t.c.pollLoop(stop)
		return
	}
	t.c.eventLoop(stop, t.parker, last)
}

// Kick bumps the counter, then unparks. The order matters: a task that
// consumes the token must find the new counter value.
func (t *taskStrategy) Kick() {
	t.c.scheduled.Add(1)
	t.parker.Unpark()
}

// Wakeup turns an inbound signal into a kick.
func (t *taskStrategy) Wakeup() {
	t.c.Kick()
}

// Stop requests termination and joins the task.
func (t *taskStrategy) Stop() {
	if !t.running {
		return
	}
	close(t.stopCh)
	<-t.done
	t.running = false
}

// inlineStrategy has no task: kicks go to the caller's notify function and
// inbound signals run the work function on the signalling goroutine.
type inlineStrategy struct {
	c *Context
}

var _ api.Strategy = (*inlineStrategy)(nil)

func (s *inlineStrategy) Dedicated() bool { return false }
func (s *inlineStrategy) Start() error    { return nil }
func (s *inlineStrategy) Stop()           {}

func (s *inlineStrategy) Kick() {
	s.c.cfg.Notify(s.c.cfg.State)
}

func (s *inlineStrategy) Wakeup() {
	s.c.invoke(false)
}
