//go:build !linux && !windows

package cpu

import "runtime"

// Pin only locks the goroutine to its OS thread; this platform has no
// per-thread affinity call.
func Pin(int) (release func(), err error) {
	runtime.LockOSThread()
	return runtime.UnlockOSThread, nil
}
