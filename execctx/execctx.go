// Package execctx
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Borrowable execution contexts. An Owner stands for the caller's execution
// context, for instance the address space of the process that drives a
// virtual port. Engines borrow it through leases: acquired on start,
// attached by the dedicated task while it runs, released on stop.

package execctx

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/momentics/hioload-kctx/api"
)

// ErrOwnerGone is returned by Acquire once the owner has been closed.
var ErrOwnerGone = errors.New("execctx: owner has exited")

// Owner is a reference-counted execution context.
type Owner struct {
	name     string
	mu       sync.Mutex
	refs     int
	closed   bool
	attached atomic.Int32
}

var _ api.ContextProvider = (*Owner)(nil)

// NewOwner returns an open owner.
func NewOwner(name string) *Owner {
	return &Owner{name: name}
}

// Name returns the owner name.
func (o *Owner) Name() string { return o.name }

// Acquire takes a lease on the owner.
func (o *Owner) Acquire() (api.Lease, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil, fmt.Errorf("%w: %s", ErrOwnerGone, o.name)
	}
	o.refs++
	return &lease{owner: o}, nil
}

// Close marks the owner as exited. Outstanding leases stay valid until
// released; new acquisitions fail.
func (o *Owner) Close() {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
}

// Refs returns the number of unreleased leases.
func (o *Owner) Refs() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.refs
}

// Attached returns how many tasks currently run inside the context.
func (o *Owner) Attached() int {
	return int(o.attached.Load())
}

type lease struct {
	owner    *Owner
	released atomic.Bool
}

func (l *lease) Attach() { l.owner.attached.Add(1) }
func (l *lease) Detach() { l.owner.attached.Add(-1) }

func (l *lease) Release() {
	if !l.released.CompareAndSwap(false, true) {
		return
	}
	l.owner.mu.Lock()
	l.owner.refs--
	l.owner.mu.Unlock()
}

// ProviderFunc adapts a function to api.ContextProvider.
type ProviderFunc func() (api.Lease, error)

// Acquire calls f.
func (f ProviderFunc) Acquire() (api.Lease, error) { return f() }
