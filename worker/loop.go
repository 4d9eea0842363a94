// File: worker/loop.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Dedicated task loops.

package worker

import (
	"runtime"

	"github.com/momentics/hioload-kctx/internal/concurrency"
)

// pollLoop runs the work function back to back when no inbound channel
// exists, yielding the processor between passes.
func (c *Context) pollLoop(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}
		c.invoke(true)
		runtime.Gosched()
	}
}

// eventLoop runs the work function once per observed change of the kick
// counter.
//
// The parker holds the wait state: a kick always increments the counter
// before unparking, so a kick that lands after the counter was read leaves
// a token and the following Park returns at once. Kicks that pile up while
// the work function runs collapse into a single extra pass.
func (c *Context) eventLoop(stop <-chan struct{}, p *concurrency.Parker, last uint32) {
	woken := false
	for {
		select {
		case <-stop:
			return
		default:
		}

		if cur := c.scheduled.Load(); cur != last {
			last = cur
			woken = false
			c.invoke(true)
			continue
		}
		if woken {
			c.spurious.Add(1)
			c.metrics.SpuriousWakeup()
		}
		if !p.Park(stop) {
			return
		}
		woken = true
	}
}
