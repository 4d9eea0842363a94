// Package notify
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Notification channels for the worker engine.
//
// Two api.Channel implementations are provided:
//   - Event: an in-process counting signal, watchers run on the signalling goroutine
//   - EventFD (Linux): an eventfd(2) descriptor polled with epoll(7) by a private
//     goroutine, so signals may come from another process or a hypervisor
//
// Table and FDResolver map caller handles to referenced channels.
package notify
