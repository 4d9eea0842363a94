// File: worker/config.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package worker

import (
	"errors"
	"fmt"

	"github.com/momentics/hioload-kctx/api"
	"github.com/momentics/hioload-kctx/control"
	"github.com/sirupsen/logrus"
)

// NoAffinity leaves the dedicated task unbound.
const NoAffinity = -1

// Config is the caller-supplied worker configuration. It is copied by
// Create and not modified afterwards.
type Config struct {
	// Work is invoked for every pass. Required.
	Work api.WorkFunc
	// State is passed to Work and Notify. The engine never owns it.
	State any
	// Notify receives kicks when UseTask is false. Required in that mode.
	Notify api.NotifyFunc
	// Category tags the context in logs, metrics and task labels.
	Category int64
	// UseTask selects a dedicated task over inline invocation.
	UseTask bool
	// AttachCaller borrows the caller's execution context from Caller
	// for as long as the context runs.
	AttachCaller bool
	Caller       api.ContextProvider
	// CPU binds the dedicated task to a logical CPU when Pin is set.
	CPU int
	Pin bool

	Logger  logrus.FieldLogger
	Metrics *control.Metrics
}

func (c *Config) validate() error {
	if c.Work == nil {
		return errors.New("work function missing")
	}
	if !c.UseTask && c.Notify == nil {
		return errors.New("notify function missing with dedicated task disabled")
	}
	if c.Pin && c.CPU < 0 {
		return fmt.Errorf("invalid cpu %d", c.CPU)
	}
	return nil
}

// HandleKind names the kind of channel handles passed to Create.
type HandleKind int

const (
	// HandleKindNone is the zero value and is rejected.
	HandleKindNone HandleKind = iota
	// HandleKindEvent handles name counting event channels (in-process
	// events or eventfds, depending on the resolver).
	HandleKindEvent
)

// Handles names the channels a context borrows. api.NoHandle marks a
// missing direction.
type Handles struct {
	Kind     HandleKind
	Inbound  api.Handle
	Outbound api.Handle
}

// EventHandles is a convenience constructor for HandleKindEvent handles.
func EventHandles(inbound, outbound api.Handle) *Handles {
	return &Handles{Kind: HandleKindEvent, Inbound: inbound, Outbound: outbound}
}
