// File: notify/table.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Handle table for in-process events with reference-counted resolution.

package notify

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/momentics/hioload-kctx/api"
)

// ErrUnknownHandle is returned when a handle does not name an open channel.
var ErrUnknownHandle = errors.New("notify: unknown handle")

type tableEntry struct {
	ev   *Event
	refs int
}

// Table owns in-process events and hands out references by handle.
// An event stays alive while its owner has not closed it or any
// resolved reference is outstanding.
type Table struct {
	mu      sync.Mutex
	next    api.Handle
	entries map[api.Handle]*tableEntry
	open    map[api.Handle]bool
}

var _ api.ChannelResolver = (*Table)(nil)

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{
		entries: make(map[api.Handle]*tableEntry),
		open:    make(map[api.Handle]bool),
	}
}

// Open creates a new event and returns its handle. The owner reference is
// dropped with Close.
func (t *Table) Open() (api.Handle, *Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	h := t.next
	t.next++
	ev := NewEvent()
	t.entries[h] = &tableEntry{ev: ev, refs: 1}
	t.open[h] = true
	return h, ev
}

// Close drops the owner reference. Resolve fails for h afterwards.
func (t *Table) Close(h api.Handle) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.open[h] {
		return fmt.Errorf("%w: %d", ErrUnknownHandle, h)
	}
	delete(t.open, h)
	t.put(h)
	return nil
}

// Resolve implements api.ChannelResolver.
func (t *Table) Resolve(h api.Handle) (api.Channel, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[h]
	if !ok || !t.open[h] {
		return nil, fmt.Errorf("%w: %d", ErrUnknownHandle, h)
	}
	e.refs++
	return &eventRef{Event: e.ev, table: t, handle: h}, nil
}

// Refs reports the outstanding references on h, including the owner's.
func (t *Table) Refs(h api.Handle) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[h]; ok {
		return e.refs
	}
	return 0
}

// put drops one reference; t.mu must be held.
func (t *Table) put(h api.Handle) {
	e, ok := t.entries[h]
	if !ok {
		return
	}
	e.refs--
	if e.refs == 0 {
		delete(t.entries, h)
	}
}

// eventRef is one resolved reference on a table event.
type eventRef struct {
	*Event
	table    *Table
	handle   api.Handle
	released atomic.Bool
}

// Release drops the reference once.
func (r *eventRef) Release() error {
	if !r.released.CompareAndSwap(false, true) {
		return nil
	}
	r.table.mu.Lock()
	r.table.put(r.handle)
	r.table.mu.Unlock()
	return nil
}
