// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Timer-backed implementation of api.Scheduler.

package concurrency

import (
	"time"

	"github.com/momentics/hioload-kctx/api"
)

// TimerScheduler schedules callbacks on runtime timers. The zero value is ready.
type TimerScheduler struct{}

var _ api.Scheduler = TimerScheduler{}

// Schedule runs fn on its own goroutine once d elapses.
func (TimerScheduler) Schedule(d time.Duration, fn func()) api.Cancelable {
	return timerHandle{t: time.AfterFunc(d, fn)}
}

// Now returns wall-clock time with a monotonic reading.
func (TimerScheduler) Now() time.Time {
	return time.Now()
}

type timerHandle struct {
	t *time.Timer
}

func (h timerHandle) Cancel() bool {
	return h.t.Stop()
}
