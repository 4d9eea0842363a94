package mitigation

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/momentics/hioload-kctx/api"
	"github.com/momentics/hioload-kctx/control"
	"github.com/momentics/hioload-kctx/fake"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const us = time.Microsecond

func newManual(t *testing.T, window time.Duration) (*Timer, *fake.Scheduler, *fake.Consumer, time.Time) {
	t.Helper()
	start := time.Unix(1000, 0)
	sched := fake.NewScheduler(start)
	cons := fake.NewConsumer(sched)
	tm, err := New(cons, 7, Config{Window: window, Scheduler: sched})
	require.NoError(t, err)
	return tm, sched, cons, start
}

func offsets(ds []fake.Delivery, start time.Time) []time.Duration {
	out := make([]time.Duration, len(ds))
	for i, d := range ds {
		out[i] = d.At.Sub(start)
	}
	return out
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, 0, Config{})
	assert.ErrorIs(t, err, api.ErrInvalidConfig)

	_, err = New(fake.NewConsumer(nil), 0, Config{Window: -time.Second})
	assert.ErrorIs(t, err, api.ErrInvalidConfig)

	tm, err := New(fake.NewConsumer(nil), 3, Config{})
	require.NoError(t, err)
	assert.Equal(t, DefaultWindow, tm.Window())
	assert.Equal(t, 3, tm.Ring())
	assert.False(t, tm.Active())
}

func TestMarkPending_IdleDeliversImmediately(t *testing.T) {
	tm, sched, cons, _ := newManual(t, 100*us)

	tm.MarkPending()
	require.Equal(t, 1, cons.Count(), "idle timer delivers before MarkPending returns")
	assert.Equal(t, 7, cons.Deliveries()[0].Ring)
	assert.True(t, tm.Active())
	assert.False(t, tm.Pending())
	assert.Equal(t, 1, sched.Pending())

	sched.Advance(100 * us)
	assert.False(t, tm.Active(), "no arrivals during the window: back to idle")
	assert.Equal(t, 1, cons.Count())
	assert.Zero(t, sched.Pending())
}

func TestMarkPending_CoalescesWithinWindow(t *testing.T) {
	tm, sched, cons, start := newManual(t, 100*us)

	tm.MarkPending() // t=0
	sched.Advance(10 * us)
	tm.MarkPending() // t=10
	assert.True(t, tm.Pending())
	sched.Advance(30 * us)
	tm.MarkPending() // t=40

	sched.Advance(60 * us) // t=100: pending delivered, re-armed
	assert.True(t, tm.Active())
	assert.False(t, tm.Pending())

	sched.Advance(100 * us) // t=200: nothing new, idle
	assert.False(t, tm.Active())

	assert.Equal(t, []time.Duration{0, 100 * us}, offsets(cons.Deliveries(), start))
	assert.Equal(t, Stats{Immediate: 1, Expired: 1, Coalesced: 2}, tm.Stats())
}

func TestMarkPending_SteadyStreamBoundedRate(t *testing.T) {
	tm, sched, cons, start := newManual(t, 100*us)

	for i := 0; i < 50; i++ { // one arrival every 10us for 500us
		tm.MarkPending()
		sched.Advance(10 * us)
	}
	sched.Advance(300 * us)

	got := offsets(cons.Deliveries(), start)
	assert.Equal(t, []time.Duration{0, 100 * us, 200 * us, 300 * us, 400 * us, 500 * us}, got)
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i]-got[i-1], 100*us)
	}
	assert.False(t, tm.Active())
	assert.Equal(t, uint64(49), tm.Stats().Coalesced, "every arrival after the first lands in an armed window")
}

func TestMarkPending_AfterIdleDeliversImmediatelyAgain(t *testing.T) {
	tm, sched, cons, start := newManual(t, 100*us)

	tm.MarkPending()
	sched.Advance(250 * us)
	assert.False(t, tm.Active())
	tm.MarkPending()

	assert.Equal(t, []time.Duration{0, 250 * us}, offsets(cons.Deliveries(), start))
}

func TestCleanup(t *testing.T) {
	tm, sched, cons, _ := newManual(t, 100*us)

	tm.MarkPending()
	tm.MarkPending()
	tm.Cleanup()
	assert.False(t, tm.Active())
	assert.False(t, tm.Pending())
	assert.Zero(t, sched.Pending(), "armed expiry canceled")

	sched.Advance(time.Second)
	tm.MarkPending()
	assert.Equal(t, 1, cons.Count(), "nothing delivered after cleanup")

	assert.NotPanics(t, tm.Cleanup)
}

func TestCleanup_Idle(t *testing.T) {
	tm, sched, cons, _ := newManual(t, 100*us)
	tm.Cleanup()
	tm.MarkPending()
	sched.Advance(time.Second)
	assert.Zero(t, cons.Count())
}

func TestGate_SkipsButKeepsSchedule(t *testing.T) {
	tm, sched, cons, start := newManual(t, 100*us)
	cons.SetEnabled(false)

	tm.MarkPending()
	sched.Advance(50 * us)
	tm.MarkPending()
	cons.SetEnabled(true)
	sched.Advance(50 * us)

	assert.Equal(t, []time.Duration{100 * us}, offsets(cons.Deliveries(), start))
	assert.EqualValues(t, 1, tm.Stats().Skipped)
}

func TestSetWindow_AppliesOnNextArm(t *testing.T) {
	tm, sched, cons, start := newManual(t, 100*us)

	tm.MarkPending()
	tm.SetWindow(20 * us)
	tm.MarkPending()
	sched.Advance(100 * us) // expiry of the old window, re-armed with 20us
	tm.MarkPending()
	sched.Advance(20 * us)

	assert.Equal(t, []time.Duration{0, 100 * us, 120 * us}, offsets(cons.Deliveries(), start))

	tm.SetWindow(0)
	assert.Equal(t, DefaultWindow, tm.Window())
}

func TestMetrics(t *testing.T) {
	m, err := control.NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	sched := fake.NewScheduler(time.Unix(0, 0))
	cons := fake.NewConsumer(sched)
	tm, err := New(cons, 2, Config{Window: 100 * us, Scheduler: sched, Metrics: m})
	require.NoError(t, err)

	tm.MarkPending()
	tm.MarkPending()
	tm.MarkPending()
	sched.Advance(100 * us)

	rm := m.Ring(2)
	assert.Equal(t, 1.0, testutil.ToFloat64(rm.Immediate))
	assert.Equal(t, 1.0, testutil.ToFloat64(rm.Expiry))
	assert.Equal(t, 2.0, testutil.ToFloat64(rm.Coalesced))
}

func TestRealTimer_ConvergesToIdle(t *testing.T) {
	cons := fake.NewConsumer(nil)
	tm, err := New(cons, 0, Config{Window: 50 * time.Millisecond})
	require.NoError(t, err)
	defer tm.Cleanup()

	for i := 0; i < 5; i++ {
		tm.MarkPending()
	}
	assert.Equal(t, 1, cons.Count())
	require.Eventually(t, func() bool { return !tm.Active() }, 2*time.Second, time.Millisecond)
	assert.Equal(t, 2, cons.Count())
}

func TestRealTimer_CleanupIsSynchronous(t *testing.T) {
	var inNotify atomic.Bool
	var after atomic.Int64
	var closed atomic.Bool
	cons := fake.NewConsumer(nil)
	cons.OnNotify(func(int) {
		inNotify.Store(true)
		if closed.Load() {
			after.Add(1)
		}
		time.Sleep(100 * us)
		inNotify.Store(false)
	})
	tm, err := New(cons, 0, Config{Window: 50 * us})
	require.NoError(t, err)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					tm.MarkPending()
					time.Sleep(10 * us)
				}
			}
		}()
	}

	time.Sleep(20 * time.Millisecond)
	tm.Cleanup()
	closed.Store(true)
	assert.False(t, inNotify.Load(), "delivery still running after cleanup")

	time.Sleep(5 * time.Millisecond)
	close(stop)
	wg.Wait()
	assert.Zero(t, after.Load(), "delivery after cleanup")
}
