//go:build linux
// +build linux

// File: notify/eventfd_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// eventfd(2) backed channel. Watchers are driven by a private goroutine
// blocked in epoll_wait on the descriptor plus a stop eventfd.

package notify

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/momentics/hioload-kctx/api"
	"github.com/momentics/hioload-kctx/internal/logging"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// EventFD wraps an eventfd descriptor as an api.Channel.
type EventFD struct {
	fd       int
	log      logrus.FieldLogger
	watchers watcherSet

	mu       sync.Mutex // guards poller
	poller   *fdPoller
	released atomic.Bool
}

var _ api.Channel = (*EventFD)(nil)

// NewEventFD creates a fresh non-blocking eventfd owned by the returned channel.
func NewEventFD() (*EventFD, error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return nil, fmt.Errorf("notify: eventfd: %w", err)
	}
	return &EventFD{fd: fd, log: logging.OrDefault(nil)}, nil
}

// SetLogger replaces the logger used by the poller. Call before Watch.
func (e *EventFD) SetLogger(l logrus.FieldLogger) {
	e.log = logging.OrDefault(l).WithField("fd", e.fd)
}

// FD returns the underlying descriptor, e.g. to hand to another process.
func (e *EventFD) FD() int { return e.fd }

// Signal adds one to the eventfd counter.
func (e *EventFD) Signal() error {
	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], 1)
	_, err := unix.Write(e.fd, buf[:])
	if errors.Is(err, unix.EAGAIN) {
		// counter saturated: the descriptor is readable already
		return nil
	}
	if err != nil {
		return fmt.Errorf("notify: eventfd write: %w", err)
	}
	return nil
}

// Read consumes the counter. It returns 0 when nothing is pending on a
// non-blocking descriptor.
func (e *EventFD) Read() (uint64, error) {
	var buf [8]byte
	_, err := unix.Read(e.fd, buf[:])
	if errors.Is(err, unix.EAGAIN) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("notify: eventfd read: %w", err)
	}
	return binary.NativeEndian.Uint64(buf[:]), nil
}

// Watch registers fn. The first watcher starts the poller goroutine; the
// poller consumes the counter before running watchers.
func (e *EventFD) Watch(fn func()) (api.Registration, error) {
	if e.released.Load() {
		return nil, errors.New("notify: eventfd released")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	w := e.watchers.add(fn)
	w.onDone = e.maybeStopPoller
	if e.poller == nil {
		p, err := startPoller(e)
		if err != nil {
			w.mu.Lock()
			w.active = false
			e.watchers.remove(w)
			w.mu.Unlock()
			return nil, err
		}
		e.poller = p
	}
	return w, nil
}

func (e *EventFD) maybeStopPoller() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.poller != nil && e.watchers.len() == 0 {
		e.poller.stop()
		e.poller = nil
	}
}

// Release stops polling and closes the descriptor. Idempotent.
func (e *EventFD) Release() error {
	if !e.released.CompareAndSwap(false, true) {
		return nil
	}
	e.mu.Lock()
	if e.poller != nil {
		e.poller.stop()
		e.poller = nil
	}
	e.mu.Unlock()
	return unix.Close(e.fd)
}

// fdPoller waits on the channel fd and a private stop fd.
type fdPoller struct {
	epfd   int
	stopfd int
	done   chan struct{}
}

func startPoller(e *EventFD) (*fdPoller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("notify: epoll create: %w", err)
	}
	stopfd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		unix.Close(epfd)
		return nil, fmt.Errorf("notify: stop eventfd: %w", err)
	}
	for _, fd := range []int{e.fd, stopfd} {
		ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
		if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
			unix.Close(stopfd)
			unix.Close(epfd)
			return nil, fmt.Errorf("notify: epoll ctl add %d: %w", fd, err)
		}
	}
	p := &fdPoller{epfd: epfd, stopfd: stopfd, done: make(chan struct{})}
	go p.run(e)
	return p, nil
}

func (p *fdPoller) run(e *EventFD) {
	defer close(p.done)
	var events [2]unix.EpollEvent
	for {
		n, err := unix.EpollWait(p.epfd, events[:], -1)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			e.log.WithError(err).Error("eventfd poller: epoll wait failed, watchers stopped")
			return
		}
		ready := false
		for i := 0; i < n; i++ {
			fd := int(events[i].Fd)
			if fd == p.stopfd {
				return
			}
			if fd != e.fd {
				continue
			}
			if events[i].Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
				e.log.WithField("events", events[i].Events).Error("eventfd poller: descriptor error, watchers stopped")
				return
			}
			ready = true
		}
		if ready && !e.consume(e.Read) {
			return
		}
	}
}

// consume reads the counter and fires watchers when it was non-zero. It
// reports false when the read failed and the poller must stop; level
// triggered epoll would otherwise spin on the unread descriptor.
func (e *EventFD) consume(read func() (uint64, error)) bool {
	v, err := read()
	if err != nil {
		e.log.WithError(err).Error("eventfd poller: read failed, watchers stopped")
		return false
	}
	if v > 0 {
		e.watchers.fireAll()
	}
	return true
}

// stop wakes the poller goroutine, waits for it and releases its fds.
func (p *fdPoller) stop() {
	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], 1)
	_, _ = unix.Write(p.stopfd, buf[:])
	<-p.done
	unix.Close(p.stopfd)
	unix.Close(p.epfd)
}

// FDResolver resolves handles that are raw eventfd descriptors of the
// calling process. Each resolution duplicates the descriptor, so releasing
// the channel never closes the caller's fd.
type FDResolver struct {
	// Logger is handed to every resolved channel. Nil uses the standard logger.
	Logger logrus.FieldLogger
}

var _ api.ChannelResolver = FDResolver{}

// Resolve validates h as an eventfd and returns an owned duplicate.
func (r FDResolver) Resolve(h api.Handle) (api.Channel, error) {
	fd := int(h)
	if fd < 0 {
		return nil, fmt.Errorf("%w: %d", ErrUnknownHandle, fd)
	}
	target, err := readlinkFD(fd)
	if err != nil {
		return nil, fmt.Errorf("notify: fd %d: %w", fd, err)
	}
	if target != "anon_inode:[eventfd]" {
		return nil, fmt.Errorf("notify: fd %d is %q, not an eventfd", fd, target)
	}
	dup, err := unix.FcntlInt(uintptr(fd), unix.F_DUPFD_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("notify: dup fd %d: %w", fd, err)
	}
	ch := &EventFD{fd: dup}
	ch.SetLogger(r.Logger)
	return ch, nil
}

func readlinkFD(fd int) (string, error) {
	buf := make([]byte, 64)
	n, err := unix.Readlink(fmt.Sprintf("/proc/self/fd/%d", fd), buf)
	if err != nil {
		return "", err
	}
	return string(buf[:n]), nil
}
