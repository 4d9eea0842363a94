// File: internal/concurrency/parker.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package concurrency

// Parker is a single-token wait primitive.
//
// Unpark deposits a wake token; at most one token is held, extra calls are
// absorbed. Park consumes the token, blocking until one is available or done
// is closed. A token deposited after the waiter last looked at shared state
// but before it parks is still observed, which is what makes
// "read state, then park" free of lost wakeups.
type Parker struct {
	token chan struct{}
}

// NewParker returns a parker with no token.
func NewParker() *Parker {
	return &Parker{token: make(chan struct{}, 1)}
}

// Unpark wakes the parked goroutine, or the next one to park. Never blocks.
func (p *Parker) Unpark() {
	select {
	case p.token <- struct{}{}:
	default:
	}
}

// Park blocks until a token is available (true) or done is closed (false).
func (p *Parker) Park(done <-chan struct{}) bool {
	select {
	case <-p.token:
		return true
	case <-done:
		return false
	}
}

// Drain discards a pending token, if any.
func (p *Parker) Drain() {
	select {
	case <-p.token:
	default:
	}
}
