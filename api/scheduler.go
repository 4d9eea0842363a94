// Package api
// Author: momentics
//
// Scheduler contract for one-shot timed callbacks.

package api

import "time"

// Scheduler abstracts timer scheduling for coalescing and delayed work.
type Scheduler interface {
	// Schedule runs fn once after d elapses.
	Schedule(d time.Duration, fn func()) Cancelable

	// Now returns the scheduler's notion of current time.
	Now() time.Time
}
