//go:build linux

package cpu

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// Pin locks the goroutine to its OS thread and restricts that thread to the
// core chosen for workerID. The returned func undoes the lock; the thread's
// mask is restored to what it was before.
func Pin(workerID int) (release func(), err error) {
	runtime.LockOSThread()

	var prev unix.CPUSet
	if err := unix.SchedGetaffinity(0, &prev); err != nil {
		runtime.UnlockOSThread()
		return func() {}, err
	}

	var mask unix.CPUSet
	mask.Zero()
	mask.Set(Core(workerID))

	// 0 = calling thread
	if err := unix.SchedSetaffinity(0, &mask); err != nil {
		runtime.UnlockOSThread()
		return func() {}, err
	}

	return func() {
		_ = unix.SchedSetaffinity(0, &prev)
		runtime.UnlockOSThread()
	}, nil
}
