// Package scheduler decides which worker processes which item of a batch.
//
// A batch is fixed before any worker starts, so schedulers deal only in item
// indices. Every strategy hands out each index in [0, items) exactly once;
// they differ in how the indices are spread across workers.
package scheduler

import (
	"fmt"
	"strings"
)

// Strategy names a distribution policy.
type Strategy int

const (
	// Shared lets every worker pull the next free index from one cursor.
	// Fast workers naturally take more items.
	Shared Strategy = iota

	// RoundRobin statically assigns index i to worker i % workers.
	RoundRobin

	// WorkStealing splits the batch into one contiguous block per worker.
	// A worker that runs dry steals half of another worker's remaining block.
	WorkStealing
)

func (s Strategy) String() string {
	switch s {
	case Shared:
		return "shared"
	case RoundRobin:
		return "round-robin"
	case WorkStealing:
		return "work-stealing"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// ParseStrategy maps a configuration string onto a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "shared", "dynamic":
		return Shared, nil
	case "round-robin", "roundrobin", "static":
		return RoundRobin, nil
	case "work-stealing", "workstealing", "steal":
		return WorkStealing, nil
	default:
		return 0, fmt.Errorf("unknown scheduling strategy %q", s)
	}
}

// Queue hands out item indices to workers.
//
// Next must only be called by the worker whose id it is given, and worker
// ids must be in [0, workers). Different workers may call Next concurrently.
type Queue interface {
	// Next returns the next index for worker. ok is false once the worker
	// has nothing left to do.
	Next(worker int) (index int, ok bool)
}

// New builds a Queue distributing items indices over workers.
func New(s Strategy, items, workers int) (Queue, error) {
	if items < 0 {
		return nil, fmt.Errorf("scheduler: negative item count %d", items)
	}
	if workers <= 0 {
		return nil, fmt.Errorf("scheduler: worker count must be positive, got %d", workers)
	}

	switch s {
	case Shared:
		return newSharedQueue(items), nil
	case RoundRobin:
		return newRoundRobinQueue(items, workers), nil
	case WorkStealing:
		return newStealingQueue(items, workers), nil
	default:
		return nil, fmt.Errorf("scheduler: unsupported strategy %v", s)
	}
}
