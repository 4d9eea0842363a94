// File: api/worker.go
// Package api
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Worker engine contracts.

package api

// WorkFunc performs the backend I/O work. inTask reports whether it runs on
// the engine's dedicated task (true) or inline on a signalling goroutine.
// It is expected to drain all pending input per call.
type WorkFunc func(state any, inTask bool)

// NotifyFunc propagates a kick to the caller when no dedicated task exists.
type NotifyFunc func(state any)

// Strategy is the execution strategy behind a worker context: either it owns
// a background task, or it runs work inline on notify.
type Strategy interface {
	// Start launches the strategy. Called once per engine start.
	Start() error
	// Kick requests one more pass of the work function. Never blocks.
	Kick()
	// Wakeup handles a signal from the inbound channel.
	Wakeup()
	// Stop terminates the strategy and waits until no work runs.
	Stop()
	// Dedicated reports whether the strategy owns a task.
	Dedicated() bool
}
