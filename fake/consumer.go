// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package fake

import (
	"sync"
	"sync/atomic"
	"time"
)

// Clock is the part of api.Scheduler a Consumer uses to stamp deliveries.
type Clock interface {
	Now() time.Time
}

// Delivery is one recorded notification.
type Delivery struct {
	Ring int
	At   time.Time
}

// Consumer records mitigation deliveries. It reports itself enabled until
// SetEnabled(false) is called.
type Consumer struct {
	clock    Clock
	disabled atomic.Bool

	mu         sync.Mutex
	deliveries []Delivery
	onNotify   func(ring int)
}

// NewConsumer creates a consumer stamping deliveries with clock. A nil
// clock records zero times.
func NewConsumer(clock Clock) *Consumer {
	return &Consumer{clock: clock}
}

// Notify records a delivery for ring.
func (c *Consumer) Notify(ring int) {
	var at time.Time
	if c.clock != nil {
		at = c.clock.Now()
	}
	c.mu.Lock()
	c.deliveries = append(c.deliveries, Delivery{Ring: ring, At: at})
	hook := c.onNotify
	c.mu.Unlock()
	if hook != nil {
		hook(ring)
	}
}

// Enabled reports whether deliveries should reach the consumer.
func (c *Consumer) Enabled() bool {
	return !c.disabled.Load()
}

// SetEnabled toggles Enabled.
func (c *Consumer) SetEnabled(on bool) {
	c.disabled.Store(!on)
}

// OnNotify installs a hook run after every recorded delivery.
func (c *Consumer) OnNotify(fn func(ring int)) {
	c.mu.Lock()
	c.onNotify = fn
	c.mu.Unlock()
}

// Deliveries returns a copy of the recorded deliveries.
func (c *Consumer) Deliveries() []Delivery {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Delivery, len(c.deliveries))
	copy(out, c.deliveries)
	return out
}

// Count returns the number of recorded deliveries.
func (c *Consumer) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.deliveries)
}
