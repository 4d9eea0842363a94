// Package api
// Author: momentics@gmail.com
//
// Cancellation handle for scheduled callbacks.

package api

// Cancelable is any scheduled operation that may be canceled.
type Cancelable interface {
	// Cancel prevents the callback from firing if it has not started yet.
	// It reports whether the callback was stopped before running.
	Cancel() bool
}
