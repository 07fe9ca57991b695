package scheduler

import "sync/atomic"

type sharedQueue struct {
	items  int64
	cursor atomic.Int64
}

func newSharedQueue(items int) *sharedQueue {
	return &sharedQueue{items: int64(items)}
}

func (q *sharedQueue) Next(int) (int, bool) {
	i := q.cursor.Add(1) - 1
	if i >= q.items {
		return 0, false
	}
	return int(i), true
}
