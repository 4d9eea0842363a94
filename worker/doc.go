// Package worker
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Worker contexts run a backend's work function either on a dedicated task
// (a goroutine locked to its own OS thread, optionally pinned to a CPU) or
// inline on whichever goroutine signals it.
//
// A context bridges two notification channels: an inbound channel whose
// signals mean "work arrived" and an outbound channel the work function
// signals through SendCompletion to announce "work completed".
//
// Dedicated tasks track kicks with a wrap-tolerant counter. Many kicks that
// land while the work function runs collapse into one further invocation,
// so the work function must drain all pending input each time it is called.
//
// Lifecycle:
//
//	c, err := worker.Create(cfg, handles, resolver)
//	err = c.Start()
//	c.Kick()          // from any goroutine
//	c.Stop()          // joins the task; no work runs after it returns
//	c.Destroy()       // releases channel references; nil-safe, idempotent
package worker
