// File: api/channel.go
// Package api
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Notification channel contracts. The engine borrows channels from the
// caller: an inbound channel it waits on for "work arrived" and an outbound
// channel it signals for "work completed".

package api

// Handle is an opaque channel identifier resolved by a ChannelResolver.
type Handle int

// NoHandle marks an absent channel.
const NoHandle Handle = -1

// Channel is a counting signal primitive (eventfd-like).
type Channel interface {
	// Signal adds one to the channel counter and wakes all watchers.
	Signal() error

	// Watch registers fn to be called after every Signal. If the channel
	// is already signalled when Watch is called, fn runs once right away.
	Watch(fn func()) (Registration, error)

	// Release drops the reference obtained from a ChannelResolver.
	Release() error
}

// Registration links a watcher to a Channel.
type Registration interface {
	// Cancel removes the watcher. Idempotent. Once Cancel returns the
	// watcher callback is neither running nor scheduled to run.
	// It must not be called from within the callback itself.
	Cancel()
}

// ChannelResolver turns caller handles into referenced channels.
type ChannelResolver interface {
	// Resolve returns a new reference to the channel behind h.
	Resolve(h Handle) (Channel, error)
}
