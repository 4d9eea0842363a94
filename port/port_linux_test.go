//go:build linux

package port

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelfLoop_TaskOverEventFDs(t *testing.T) {
	s := newSink()
	p, err := New(Config{Name: "efd", UseTask: true, Channels: ChannelsEventFD, Handler: s.handle})
	require.NoError(t, err)
	defer p.Close()
	require.NoError(t, p.Up())

	for i := uint64(1); i <= 50; i++ {
		require.NoError(t, p.Transmit(frame(i)))
	}
	require.Eventually(t, func() bool { return s.count("efd") == 50 }, waitFor, time.Millisecond)
	require.Eventually(t, func() bool { return p.Stats().Completions > 0 }, waitFor, time.Millisecond)
	assert.EqualValues(t, 50, p.Stats().Received)
}
