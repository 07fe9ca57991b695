package scheduler

import (
	"sync"
	"sync/atomic"
)

// span is the half-open index range [lo, hi) still owned by one worker.
// Owners consume from lo; thieves cut from hi.
type span struct {
	mu     sync.Mutex
	lo, hi int
	_      [40]byte
}

type stealingQueue struct {
	spans  []span
	steals atomic.Int64
}

func newStealingQueue(items, workers int) *stealingQueue {
	q := &stealingQueue{spans: make([]span, workers)}

	block, rest := items/workers, items%workers
	lo := 0
	for w := range q.spans {
		size := block
		if w < rest {
			size++
		}
		q.spans[w].lo, q.spans[w].hi = lo, lo+size
		lo += size
	}
	return q
}

func (q *stealingQueue) Next(worker int) (int, bool) {
	own := &q.spans[worker]

	own.mu.Lock()
	if own.lo < own.hi {
		i := own.lo
		own.lo++
		own.mu.Unlock()
		return i, true
	}
	own.mu.Unlock()

	return q.steal(worker)
}

// steal scans the other workers starting after worker and takes the back
// half of the first non-empty span it finds. The first stolen index is
// returned; the remainder becomes the thief's own span.
func (q *stealingQueue) steal(worker int) (int, bool) {
	n := len(q.spans)
	for k := 1; k < n; k++ {
		victim := &q.spans[(worker+k)%n]

		victim.mu.Lock()
		remaining := victim.hi - victim.lo
		if remaining == 0 {
			victim.mu.Unlock()
			continue
		}
		take := (remaining + 1) / 2
		lo, hi := victim.hi-take, victim.hi
		victim.hi = lo
		victim.mu.Unlock()

		q.steals.Add(1)

		own := &q.spans[worker]
		own.mu.Lock()
		own.lo, own.hi = lo+1, hi
		own.mu.Unlock()
		return lo, true
	}
	return 0, false
}

// Steals reports how many successful steals have happened.
func (q *stealingQueue) Steals() int64 {
	return q.steals.Load()
}
