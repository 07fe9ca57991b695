// Package cpu pins the calling goroutine's OS thread to a CPU core.
//
// Pinning is best effort. Platforms without a thread affinity API still lock
// the goroutine to its thread so callers see the same lifecycle everywhere.
package cpu

import "runtime"

// Core maps a worker id onto a logical CPU index.
func Core(workerID int) int {
	n := runtime.NumCPU()
	if n <= 0 {
		return 0
	}
	c := workerID % n
	if c < 0 {
		c += n
	}
	return c
}
