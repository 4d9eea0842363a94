// Package control
// Author: momentics <momentics@gmail.com>
//
// Runtime metrics, hot-reloadable settings and debug introspection for the
// worker engine and mitigation timers.
//
// Provides concurrent-safe state handling primitives including:
//   - Prometheus collectors for kicks, work invocations and deliveries
//   - Snapshot config reads with reload listeners
//   - Debug probe registration and state export
package control
