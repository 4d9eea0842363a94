// File: internal/concurrency/pin.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Thread pinning for dedicated tasks.

package concurrency

import (
	"runtime"

	"github.com/momentics/hioload-kctx/affinity"
)

// NoCPU requests an unbound thread.
const NoCPU = -1

// PinCurrentThread locks the calling goroutine to its OS thread and, when
// cpuID is not NoCPU, binds that thread to the logical CPU.
//
// A goroutine that exits without UnpinCurrentThread takes its thread down
// with it, so a pinned thread is never handed back to the runtime pool.
func PinCurrentThread(cpuID int) error {
	runtime.LockOSThread()
	if cpuID == NoCPU {
		return nil
	}
	if err := affinity.SetAffinity(cpuID); err != nil {
		runtime.UnlockOSThread()
		return err
	}
	return nil
}

// UnpinCurrentThread releases the OS thread lock taken by PinCurrentThread.
func UnpinCurrentThread() {
	runtime.UnlockOSThread()
}

// NumCPUs returns the number of logical CPUs.
func NumCPUs() int {
	return runtime.NumCPU()
}
