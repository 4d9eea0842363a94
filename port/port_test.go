package port

import (
	"context"
	"encoding/binary"
	"sync"
	"testing"
	"time"

	"github.com/momentics/hioload-kctx/execctx"
	"github.com/momentics/hioload-kctx/fake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second

type sink struct {
	mu     sync.Mutex
	frames map[string][][]byte
}

func newSink() *sink { return &sink{frames: make(map[string][][]byte)} }

func (s *sink) handle(port string, f []byte) {
	s.mu.Lock()
	s.frames[port] = append(s.frames[port], f)
	s.mu.Unlock()
}

func (s *sink) count(port string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames[port])
}

func (s *sink) get(port string) [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.frames[port]...)
}

func frame(n uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, n)
	return b
}

func TestParseChannels(t *testing.T) {
	c, err := ParseChannels("")
	require.NoError(t, err)
	assert.Equal(t, ChannelsEvent, c)
	c, err = ParseChannels("eventfd")
	require.NoError(t, err)
	assert.Equal(t, ChannelsEventFD, c)
	_, err = ParseChannels("pipe")
	assert.Error(t, err)
}

func TestNew_RequiresName(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestSelfLoop_TaskOverEvents(t *testing.T) {
	s := newSink()
	p, err := New(Config{Name: "p0", UseTask: true, Channels: ChannelsEvent, Handler: s.handle})
	require.NoError(t, err)
	defer p.Close()
	require.NoError(t, p.Up())
	assert.Same(t, p, p.Peer())

	for i := uint64(1); i <= 100; i++ {
		require.NoError(t, p.Transmit(frame(i)))
	}
	require.Eventually(t, func() bool { return s.count("p0") == 100 }, waitFor, time.Millisecond)

	got := s.get("p0")
	for i, f := range got {
		assert.Equal(t, uint64(i+1), binary.BigEndian.Uint64(f), "frames arrive in order")
	}
	require.Eventually(t, func() bool { return p.Stats().Completions > 0 }, waitFor, time.Millisecond)
	st := p.Stats()
	assert.EqualValues(t, 100, st.Transmitted)
	assert.EqualValues(t, 100, st.Received)
	assert.True(t, st.Worker.Dedicated)
}

func TestPair_InlineDeterministicMitigation(t *testing.T) {
	start := time.Unix(0, 0)
	sched := fake.NewScheduler(start)
	s := newSink()
	mk := func(name string, ring int) *Port {
		p, err := New(Config{
			Name: name, Ring: ring, Channels: ChannelsNone,
			Window: 100 * time.Microsecond, Scheduler: sched, Handler: s.handle,
		})
		require.NoError(t, err)
		t.Cleanup(p.Close)
		return p
	}
	a, b := mk("a", 0), mk("b", 1)
	require.NoError(t, Connect(a, b))
	require.NoError(t, a.Up())
	require.NoError(t, b.Up())

	require.NoError(t, a.Transmit(frame(1)))
	assert.Equal(t, 1, s.count("b"), "first frame is delivered at once")

	require.NoError(t, a.Transmit(frame(2)))
	require.NoError(t, a.Transmit(frame(3)))
	assert.Equal(t, 1, s.count("b"), "later frames wait for the window")
	assert.Equal(t, 2, b.Stats().RxQueued)

	sched.Advance(100 * time.Microsecond)
	assert.Equal(t, 3, s.count("b"))
	assert.Zero(t, s.count("a"))

	ms := b.Stats().Mitigation
	assert.EqualValues(t, 1, ms.Immediate)
	assert.EqualValues(t, 1, ms.Expired)
}

func TestDownPeer_SkipsDeliveryUntilUp(t *testing.T) {
	sched := fake.NewScheduler(time.Unix(0, 0))
	s := newSink()
	a, err := New(Config{Name: "a", Channels: ChannelsNone, Scheduler: sched, Window: time.Millisecond, Handler: s.handle})
	require.NoError(t, err)
	defer a.Close()
	b, err := New(Config{Name: "b", Channels: ChannelsNone, Scheduler: sched, Window: time.Millisecond, Handler: s.handle})
	require.NoError(t, err)
	defer b.Close()
	require.NoError(t, Connect(a, b))
	require.NoError(t, a.Up())

	require.NoError(t, a.Transmit(frame(1)))
	assert.Zero(t, s.count("b"))
	assert.EqualValues(t, 1, b.Stats().Mitigation.Skipped)
	assert.Equal(t, 1, b.Stats().RxQueued)

	require.NoError(t, b.Up())
	require.NoError(t, a.Transmit(frame(2)))
	sched.Advance(time.Millisecond)
	assert.Equal(t, 2, s.count("b"), "queued frames drain once the port is up")
}

func TestTransmit_DownAndQueueFull(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	s := newSink()
	handler := func(port string, f []byte) {
		once.Do(func() {
			close(entered)
			<-release
		})
		s.handle(port, f)
	}

	p, err := New(Config{Name: "p", UseTask: true, QueueLen: 2, Handler: handler})
	require.NoError(t, err)
	defer p.Close()

	assert.ErrorIs(t, p.Transmit(frame(0)), ErrDown)
	require.NoError(t, p.Up())

	// the first delivery blocks the worker inside the handler
	require.NoError(t, p.Transmit(frame(1)))
	<-entered
	require.NoError(t, p.Transmit(frame(2)))
	require.NoError(t, p.Transmit(frame(3)))
	assert.ErrorIs(t, p.Transmit(frame(4)), ErrQueueFull)
	assert.EqualValues(t, 1, p.Stats().Dropped)

	close(release)
	require.Eventually(t, func() bool { return s.count("p") == 3 }, waitFor, time.Millisecond)
}

func TestLifecycle(t *testing.T) {
	owner := execctx.NewOwner("vm0")
	p, err := New(Config{Name: "p", UseTask: true, Caller: owner})
	require.NoError(t, err)

	require.NoError(t, p.Up())
	assert.Equal(t, 1, owner.Refs())
	assert.True(t, p.Stats().Up)
	assert.Error(t, Connect(p, p), "cannot rewire an up port")

	p.Down()
	p.Down()
	assert.Equal(t, 0, owner.Refs())
	assert.ErrorIs(t, p.Transmit(frame(1)), ErrDown)

	require.NoError(t, p.Up())
	p.Close()
	p.Close()
	assert.Equal(t, 0, owner.Refs())
	assert.ErrorIs(t, p.Up(), ErrClosed)
}

func TestUp_FailsWhenCallerGone(t *testing.T) {
	owner := execctx.NewOwner("vm0")
	owner.Close()
	p, err := New(Config{Name: "p", UseTask: true, Caller: owner})
	require.NoError(t, err)
	defer p.Close()
	assert.Error(t, p.Up())
	assert.False(t, p.Enabled())
}

func TestGenerate(t *testing.T) {
	s := newSink()
	p, err := New(Config{Name: "g", UseTask: true, Handler: s.handle})
	require.NoError(t, err)
	defer p.Close()
	require.NoError(t, p.Up())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, p.Generate(ctx, 1000))
	require.Eventually(t, func() bool { return s.count("g") > 0 }, waitFor, time.Millisecond)

	got := s.get("g")
	assert.Equal(t, uint64(1), binary.BigEndian.Uint64(got[0]))
}

func TestGenerate_StopsWhenDown(t *testing.T) {
	p, err := New(Config{Name: "g", UseTask: true})
	require.NoError(t, err)
	defer p.Close()
	assert.NoError(t, p.Generate(context.Background(), 1000), "a down port ends generation")
}
