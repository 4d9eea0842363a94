// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package fake

import (
	"sync"
	"time"

	"github.com/momentics/hioload-kctx/api"
)

// Scheduler is a manual api.Scheduler. Time only moves with Advance, and
// due callbacks run synchronously on the goroutine calling Advance, in
// deadline order.
type Scheduler struct {
	mu     sync.Mutex
	now    time.Time
	seq    uint64
	timers []*timer
}

var _ api.Scheduler = (*Scheduler)(nil)

type timer struct {
	s        *Scheduler
	at       time.Time
	seq      uint64
	fn       func()
	done     bool
	canceled bool
}

// NewScheduler returns a scheduler whose clock starts at start.
func NewScheduler(start time.Time) *Scheduler {
	return &Scheduler{now: start}
}

// Schedule implements api.Scheduler.
func (s *Scheduler) Schedule(d time.Duration, fn func()) api.Cancelable {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	t := &timer{s: s, at: s.now.Add(d), seq: s.seq, fn: fn}
	s.timers = append(s.timers, t)
	return t
}

// Now implements api.Scheduler.
func (s *Scheduler) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// Since returns the time elapsed since start on the manual clock.
func (s *Scheduler) Since(start time.Time) time.Duration {
	return s.Now().Sub(start)
}

// Advance moves the clock forward by d, firing every timer that falls due,
// including timers scheduled by callbacks within the same interval.
func (s *Scheduler) Advance(d time.Duration) {
	s.mu.Lock()
	target := s.now.Add(d)
	for {
		t := s.nextDue(target)
		if t == nil {
			break
		}
		s.now = t.at
		t.done = true
		s.mu.Unlock()
		t.fn()
		s.mu.Lock()
	}
	s.now = target
	s.mu.Unlock()
}

// Pending returns the number of timers neither fired nor canceled.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// nextDue removes and returns the earliest timer due by target. s.mu held.
func (s *Scheduler) nextDue(target time.Time) *timer {
	idx := -1
	for i, t := range s.timers {
		if t.at.After(target) {
			continue
		}
		if idx < 0 || t.at.Before(s.timers[idx].at) ||
			(t.at.Equal(s.timers[idx].at) && t.seq < s.timers[idx].seq) {
			idx = i
		}
	}
	if idx < 0 {
		return nil
	}
	t := s.timers[idx]
	s.timers = append(s.timers[:idx], s.timers[idx+1:]...)
	return t
}

// Cancel implements api.Cancelable.
func (t *timer) Cancel() bool {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.done || t.canceled {
		return false
	}
	t.canceled = true
	for i, x := range s.timers {
		if x == t {
			s.timers = append(s.timers[:i], s.timers[i+1:]...)
			break
		}
	}
	return true
}
