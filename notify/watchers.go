// File: notify/watchers.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package notify

import "sync"

// watcher is one registered callback. Firing and cancelling are serialized
// on mu, so after Cancel returns the callback is not running.
type watcher struct {
	mu     sync.Mutex
	fn     func()
	active bool
	set    *watcherSet
	onDone func()
}

func (w *watcher) fire() {
	w.mu.Lock()
	if w.active {
		w.fn()
	}
	w.mu.Unlock()
}

// Cancel implements api.Registration.
func (w *watcher) Cancel() {
	w.mu.Lock()
	wasActive := w.active
	if wasActive {
		w.active = false
		w.set.remove(w)
	}
	w.mu.Unlock()
	if wasActive && w.onDone != nil {
		w.onDone()
	}
}

// watcherSet is a copy-on-write list of watchers.
type watcherSet struct {
	mu   sync.Mutex
	list []*watcher
}

func (s *watcherSet) add(fn func()) *watcher {
	w := &watcher{fn: fn, active: true, set: s}
	s.mu.Lock()
	next := make([]*watcher, len(s.list), len(s.list)+1)
	copy(next, s.list)
	s.list = append(next, w)
	s.mu.Unlock()
	return w
}

func (s *watcherSet) remove(w *watcher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := make([]*watcher, 0, len(s.list))
	for _, x := range s.list {
		if x != w {
			next = append(next, x)
		}
	}
	s.list = next
}

func (s *watcherSet) snapshot() []*watcher {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.list
}

func (s *watcherSet) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.list)
}

func (s *watcherSet) fireAll() {
	for _, w := range s.snapshot() {
		w.fire()
	}
}
