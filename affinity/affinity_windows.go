//go:build windows
// +build windows

// File: affinity/affinity_windows.go
// Author: momentics <momentics@gmail.com>
//
// Windows-specific implementation for setting thread CPU affinity.

package affinity

import (
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/sys/windows"
)

var (
	modkernel32               = windows.NewLazySystemDLL("kernel32.dll")
	procSetThreadAffinityMask = modkernel32.NewProc("SetThreadAffinityMask")
)

// setAffinityPlatform sets thread affinity to a given CPU for Windows.
func setAffinityPlatform(cpuID int) error {
	if cpuID >= 64 {
		return fmt.Errorf("affinity: cpu %d beyond single processor group", cpuID)
	}
	return setMask(uintptr(1) << uint(cpuID))
}

func clearAffinityPlatform() error {
	total := runtime.NumCPU()
	if total >= 64 {
		return setMask(^uintptr(0))
	}
	return setMask((uintptr(1) << uint(total)) - 1)
}

func setMask(mask uintptr) error {
	old, _, err := procSetThreadAffinityMask.Call(uintptr(windows.CurrentThread()), mask)
	if old == 0 {
		return fmt.Errorf("affinity: SetThreadAffinityMask: %v", err)
	}
	return nil
}

// Current is not implemented on Windows.
func Current() ([]int, error) {
	return nil, errors.New("affinity: query not supported on windows")
}
