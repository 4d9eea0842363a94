// File: notify/event.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package notify

import (
	"sync/atomic"

	"github.com/momentics/hioload-kctx/api"
)

// Event is an in-process counting signal. Signal runs every watcher
// synchronously on the caller's goroutine.
type Event struct {
	count    atomic.Uint64
	watchers watcherSet
}

var _ api.Channel = (*Event)(nil)

// NewEvent returns an unsignalled event.
func NewEvent() *Event {
	return &Event{}
}

// Signal adds one to the counter and runs all watchers.
func (e *Event) Signal() error {
	e.count.Add(1)
	e.watchers.fireAll()
	return nil
}

// Watch registers fn. A pending count fires fn once before Watch returns.
func (e *Event) Watch(fn func()) (api.Registration, error) {
	w := e.watchers.add(fn)
	if e.count.Load() > 0 {
		w.fire()
	}
	return w, nil
}

// Count returns the counter without resetting it.
func (e *Event) Count() uint64 {
	return e.count.Load()
}

// Take returns the counter and resets it to zero, like a read(2) on an eventfd.
func (e *Event) Take() uint64 {
	return e.count.Swap(0)
}

// Watchers returns the number of registered watchers.
func (e *Event) Watchers() int {
	return e.watchers.len()
}

// Release is a no-op for an unreferenced event.
func (e *Event) Release() error { return nil }
