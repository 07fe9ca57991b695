//go:build windows

package cpu

import (
	"runtime"

	"golang.org/x/sys/windows"
)

var (
	kernel32              = windows.NewLazySystemDLL("kernel32.dll")
	setThreadAffinityMask = kernel32.NewProc("SetThreadAffinityMask")
)

// Pin locks the goroutine to its OS thread and restricts that thread to the
// core chosen for workerID.
func Pin(workerID int) (release func(), err error) {
	runtime.LockOSThread()

	thread := windows.CurrentThread()
	mask := uintptr(1) << uint(Core(workerID))

	prev, _, callErr := setThreadAffinityMask.Call(uintptr(thread), mask)
	if prev == 0 {
		runtime.UnlockOSThread()
		return func() {}, callErr
	}

	return func() {
		_, _, _ = setThreadAffinityMask.Call(uintptr(thread), prev)
		runtime.UnlockOSThread()
	}, nil
}
