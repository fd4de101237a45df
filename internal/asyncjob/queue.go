package asyncjob

import "sync"

// taskQueue is an unbounded FIFO of calls destined for the supervising loop.
// Producers never block; wake holds at most one pending signal.
type taskQueue struct {
	mu     sync.Mutex
	tasks  []func()
	closed bool
	wake   chan struct{}
}

func newTaskQueue() *taskQueue {
	return &taskQueue{wake: make(chan struct{}, 1)}
}

// push appends fn and signals the loop. It reports false once closed.
func (q *taskQueue) push(fn func()) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.tasks = append(q.tasks, fn)
	q.mu.Unlock()
	select {
	case q.wake <- struct{}{}:
	default:
	}
	return true
}

func (q *taskQueue) take() []func() {
	q.mu.Lock()
	defer q.mu.Unlock()
	batch := q.tasks
	q.tasks = nil
	return batch
}

// runPending executes the tasks queued so far. Tasks pushed meanwhile are
// left for the next wake.
func (q *taskQueue) runPending() {
	for _, fn := range q.take() {
		fn()
	}
}

// runAll executes tasks until the queue is empty.
func (q *taskQueue) runAll() {
	for {
		batch := q.take()
		if len(batch) == 0 {
			return
		}
		for _, fn := range batch {
			fn()
		}
	}
}

// close drops pending tasks and rejects new ones.
func (q *taskQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.tasks = nil
}

func (q *taskQueue) isClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
