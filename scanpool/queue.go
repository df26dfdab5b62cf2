package scanpool

import (
	"sync"

	"github.com/fileguard/fileguard/types"
)

// queue is an unbounded FIFO with blocking dequeue, giving Enqueue the
// non-blocking contract §4.3 requires without an artificial capacity
// limit on top of the worker-count bound.
type queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []types.ScanTask
	closed bool
}

func newQueue() *queue {
	q := &queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *queue) push(t types.ScanTask) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.items = append(q.items, t)
	q.cond.Signal()
}

// pop blocks until an item is available or the queue is closed and
// drained, matching wait_dequeue's contract.
func (q *queue) pop() (types.ScanTask, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return types.ScanTask{}, false
	}
	t := q.items[0]
	q.items = q.items[1:]
	return t, true
}

func (q *queue) closeAndDrain() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}

func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
