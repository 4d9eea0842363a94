// File: port/links.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package port

import (
	"fmt"

	"github.com/momentics/hioload-kctx/api"
	"github.com/momentics/hioload-kctx/notify"
	"github.com/momentics/hioload-kctx/worker"
	"github.com/sirupsen/logrus"
)

// Channels selects how a port's producer and worker are linked.
type Channels string

const (
	// ChannelsEvent links through in-process events.
	ChannelsEvent Channels = "event"
	// ChannelsEventFD links through Linux eventfds.
	ChannelsEventFD Channels = "eventfd"
	// ChannelsNone links nothing: transmit kicks the worker directly, and a
	// dedicated task polls.
	ChannelsNone Channels = "none"
)

// ParseChannels maps a configuration string to Channels.
func ParseChannels(s string) (Channels, error) {
	switch c := Channels(s); c {
	case ChannelsEvent, ChannelsEventFD, ChannelsNone:
		return c, nil
	case "":
		return ChannelsEvent, nil
	}
	return "", fmt.Errorf("port: unknown channels %q", s)
}

// links holds the owner side of a port's doorbell (inbound) and
// completion (outbound) channels plus what the worker needs to resolve
// its own references.
type links struct {
	handles  *worker.Handles
	resolver api.ChannelResolver

	doorbell api.Channel
	compReg  api.Registration
	closeFns []func()
}

func openLinks(kind Channels, onCompletion func(), log logrus.FieldLogger) (*links, error) {
	l := &links{}
	switch kind {
	case ChannelsNone:
		return l, nil

	case ChannelsEvent:
		tab := notify.NewTable()
		in, inEv := tab.Open()
		out, outEv := tab.Open()
		l.closeFns = append(l.closeFns, func() {
			_ = tab.Close(in)
			_ = tab.Close(out)
		})
		reg, err := outEv.Watch(onCompletion)
		if err != nil {
			l.close()
			return nil, err
		}
		l.compReg = reg
		l.doorbell = inEv
		l.handles = worker.EventHandles(in, out)
		l.resolver = tab
		return l, nil

	case ChannelsEventFD:
		in, err := notify.NewEventFD()
		if err != nil {
			return nil, api.NewError(api.ErrCodeChannelUnavailable, "port", err)
		}
		in.SetLogger(log.WithField("eventfd", "doorbell"))
		l.closeFns = append(l.closeFns, func() { _ = in.Release() })
		out, err := notify.NewEventFD()
		if err != nil {
			l.close()
			return nil, api.NewError(api.ErrCodeChannelUnavailable, "port", err)
		}
		out.SetLogger(log.WithField("eventfd", "completion"))
		l.closeFns = append(l.closeFns, func() { _ = out.Release() })
		reg, err := out.Watch(onCompletion)
		if err != nil {
			l.close()
			return nil, api.NewError(api.ErrCodeChannelUnavailable, "port", err)
		}
		l.compReg = reg
		l.doorbell = in
		l.handles = worker.EventHandles(api.Handle(in.FD()), api.Handle(out.FD()))
		l.resolver = notify.FDResolver{Logger: log}
		return l, nil
	}
	return nil, api.NewError(api.ErrCodeInvalidConfig, "port", fmt.Errorf("unknown channels %q", kind))
}

// close cancels the completion watch and drops the owner references.
func (l *links) close() {
	if l.compReg != nil {
		l.compReg.Cancel()
		l.compReg = nil
	}
	for i := len(l.closeFns) - 1; i >= 0; i-- {
		l.closeFns[i]()
	}
	l.closeFns = nil
}
