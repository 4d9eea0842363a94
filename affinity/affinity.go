// File: affinity/affinity.go
// Author: momentics <momentics@gmail.com>
//
// Platform-neutral API for CPU affinity. Platform-specific implementations are located
// in separate files (affinity_linux.go, affinity_windows.go, etc.) guarded by build tags.

package affinity

import "fmt"

// SetAffinity pins the current OS thread to a given logical CPU on supported platforms.
// The caller must hold the thread with runtime.LockOSThread for the pin to stick.
// On unsupported platforms returns an error.
func SetAffinity(cpuID int) error {
	if cpuID < 0 {
		return fmt.Errorf("affinity: invalid cpu %d", cpuID)
	}
	return setAffinityPlatform(cpuID)
}

// ClearAffinity lets the current OS thread run on every logical CPU again.
func ClearAffinity() error {
	return clearAffinityPlatform()
}
