// Package fake
// Author: momentics <momentics@gmail.com>
//
// Fake implementations for testing and development.
// Provides predictable, controllable behavior for the engine contracts.

package fake

import (
	"fmt"
	"sync"

	"github.com/momentics/hioload-kctx/api"
)

// Channel is a fake api.Channel with injectable failures. Watchers run
// synchronously inside Signal.
type Channel struct {
	mu         sync.Mutex
	signals    int
	watchers   map[int]func()
	nextID     int
	releases   int
	signalErr  error
	watchErr   error
	releaseErr error
}

var _ api.Channel = (*Channel)(nil)

// NewChannel creates a new fake channel.
func NewChannel() *Channel {
	return &Channel{watchers: make(map[int]func())}
}

// Signal implements api.Channel.Signal.
func (c *Channel) Signal() error {
	c.mu.Lock()
	if c.signalErr != nil {
		err := c.signalErr
		c.mu.Unlock()
		return err
	}
	c.signals++
	fns := make([]func(), 0, len(c.watchers))
	for _, fn := range c.watchers {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
	return nil
}

// Watch implements api.Channel.Watch. Pending signals are not replayed.
func (c *Channel) Watch(fn func()) (api.Registration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.watchErr != nil {
		return nil, c.watchErr
	}
	id := c.nextID
	c.nextID++
	c.watchers[id] = fn
	return &registration{c: c, id: id}, nil
}

// Release implements api.Channel.Release.
func (c *Channel) Release() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.releases++
	return c.releaseErr
}

// Signals returns how many signals succeeded.
func (c *Channel) Signals() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.signals
}

// Watchers returns the number of live registrations.
func (c *Channel) Watchers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.watchers)
}

// Releases returns how many times Release was called.
func (c *Channel) Releases() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.releases
}

// SetSignalError makes subsequent Signal calls fail with err.
func (c *Channel) SetSignalError(err error) {
	c.mu.Lock()
	c.signalErr = err
	c.mu.Unlock()
}

// SetWatchError makes subsequent Watch calls fail with err.
func (c *Channel) SetWatchError(err error) {
	c.mu.Lock()
	c.watchErr = err
	c.mu.Unlock()
}

// SetReleaseError makes Release report err.
func (c *Channel) SetReleaseError(err error) {
	c.mu.Lock()
	c.releaseErr = err
	c.mu.Unlock()
}

type registration struct {
	c  *Channel
	id int
}

func (r *registration) Cancel() {
	r.c.mu.Lock()
	delete(r.c.watchers, r.id)
	r.c.mu.Unlock()
}

// Resolver maps handles to fake channels. Unknown handles fail to resolve.
type Resolver struct {
	mu       sync.Mutex
	channels map[api.Handle]*Channel
}

var _ api.ChannelResolver = (*Resolver)(nil)

// NewResolver creates an empty resolver.
func NewResolver() *Resolver {
	return &Resolver{channels: make(map[api.Handle]*Channel)}
}

// Add registers ch under h.
func (r *Resolver) Add(h api.Handle, ch *Channel) {
	r.mu.Lock()
	r.channels[h] = ch
	r.mu.Unlock()
}

// Resolve implements api.ChannelResolver.
func (r *Resolver) Resolve(h api.Handle) (api.Channel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.channels[h]
	if !ok {
		return nil, fmt.Errorf("fake: unknown handle %d", h)
	}
	return ch, nil
}
