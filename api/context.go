// File: api/context.go
// Package api
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Borrowed execution context contract. The caller's execution context is an
// external capability: it is acquired as a lease when the engine starts and
// released when it stops, never held outside that window.

package api

// ContextProvider hands out leases on the caller's execution context.
type ContextProvider interface {
	// Acquire takes a reference on the context. It fails once the owner
	// has gone away.
	Acquire() (Lease, error)
}

// Lease is a scoped reference on a borrowed execution context.
type Lease interface {
	// Attach makes the context current for the calling task.
	Attach()
	// Detach undoes Attach.
	Detach()
	// Release drops the reference. Idempotent.
	Release()
}
