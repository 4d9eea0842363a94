// File: internal/concurrency/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Low-level concurrency primitives for the worker engine: thread pinning,
// a single-token parker used by dedicated tasks to wait for kicks, a
// timer-backed scheduler and a bounded SPSC ring.
package concurrency
