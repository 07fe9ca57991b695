package scheduler

// roundRobinQueue gives worker w the indices w, w+n, w+2n, ...
// Each slot of next is touched only by its owning worker.
type roundRobinQueue struct {
	items   int
	workers int
	next    []paddedInt
}

// paddedInt keeps per-worker cursors on separate cache lines.
type paddedInt struct {
	v int
	_ [56]byte
}

func newRoundRobinQueue(items, workers int) *roundRobinQueue {
	q := &roundRobinQueue{
		items:   items,
		workers: workers,
		next:    make([]paddedInt, workers),
	}
	for w := range q.next {
		q.next[w].v = w
	}
	return q
}

func (q *roundRobinQueue) Next(worker int) (int, bool) {
	i := q.next[worker].v
	if i >= q.items {
		return 0, false
	}
	q.next[worker].v = i + q.workers
	return i, true
}
