//go:build !linux
// +build !linux

// File: notify/eventfd_other.go
// Author: momentics <momentics@gmail.com>
//
// Stub for platforms without eventfd(2).

package notify

import (
	"errors"

	"github.com/momentics/hioload-kctx/api"
	"github.com/sirupsen/logrus"
)

var errNoEventFD = errors.New("notify: eventfd not supported on this platform")

// EventFD is unavailable on this platform.
type EventFD struct{}

// NewEventFD always fails on this platform.
func NewEventFD() (*EventFD, error) { return nil, errNoEventFD }

func (e *EventFD) SetLogger(logrus.FieldLogger)           {}
func (e *EventFD) FD() int                                { return -1 }
func (e *EventFD) Signal() error                          { return errNoEventFD }
func (e *EventFD) Read() (uint64, error)                  { return 0, errNoEventFD }
func (e *EventFD) Watch(func()) (api.Registration, error) { return nil, errNoEventFD }
func (e *EventFD) Release() error                         { return nil }

// FDResolver cannot resolve descriptors on this platform.
type FDResolver struct {
	Logger logrus.FieldLogger
}

// Resolve always fails on this platform.
func (FDResolver) Resolve(api.Handle) (api.Channel, error) { return nil, errNoEventFD }
