package notify

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvent_SignalRunsWatchers(t *testing.T) {
	ev := NewEvent()
	var a, b atomic.Int32
	ra, err := ev.Watch(func() { a.Add(1) })
	require.NoError(t, err)
	_, err = ev.Watch(func() { b.Add(1) })
	require.NoError(t, err)

	require.NoError(t, ev.Signal())
	require.NoError(t, ev.Signal())
	assert.EqualValues(t, 2, a.Load())
	assert.EqualValues(t, 2, b.Load())
	assert.EqualValues(t, 2, ev.Count())

	ra.Cancel()
	ra.Cancel()
	require.NoError(t, ev.Signal())
	assert.EqualValues(t, 2, a.Load(), "cancelled watcher must not fire")
	assert.EqualValues(t, 3, b.Load())
	assert.Equal(t, 1, ev.Watchers())
}

func TestEvent_WatchFiresWhenAlreadySignalled(t *testing.T) {
	ev := NewEvent()
	require.NoError(t, ev.Signal())

	var fired atomic.Int32
	_, err := ev.Watch(func() { fired.Add(1) })
	require.NoError(t, err)
	assert.EqualValues(t, 1, fired.Load())

	assert.EqualValues(t, 1, ev.Take())
	assert.EqualValues(t, 0, ev.Count())
}

func TestEvent_CancelWaitsForRunningCallback(t *testing.T) {
	ev := NewEvent()
	entered := make(chan struct{})
	release := make(chan struct{})
	var finished atomic.Bool
	reg, err := ev.Watch(func() {
		close(entered)
		<-release
		finished.Store(true)
	})
	require.NoError(t, err)

	go func() { _ = ev.Signal() }()
	<-entered

	cancelled := make(chan struct{})
	go func() {
		reg.Cancel()
		close(cancelled)
	}()

	select {
	case <-cancelled:
		t.Fatal("Cancel returned while the callback was still running")
	case <-time.After(20 * time.Millisecond):
	}
	close(release)
	<-cancelled
	assert.True(t, finished.Load())
}

func TestEvent_ConcurrentSignalsSerializePerWatcher(t *testing.T) {
	ev := NewEvent()
	var inside, maxInside, calls atomic.Int32
	_, err := ev.Watch(func() {
		n := inside.Add(1)
		if n > maxInside.Load() {
			maxInside.Store(n)
		}
		calls.Add(1)
		inside.Add(-1)
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = ev.Signal()
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 800, calls.Load())
	assert.EqualValues(t, 1, maxInside.Load())
}
