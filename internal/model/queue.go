package model

import (
	"sync"

	"github.com/emirpasic/gods/v2/queues/linkedlistqueue"
)

type task struct {
	fn func()
}

// serialQueue runs tasks one at a time in submission order on a single
// goroutine. Submitting never blocks.
type serialQueue struct {
	mu     sync.Mutex
	tasks  *linkedlistqueue.Queue[*task]
	closed bool

	wake chan struct{}
	done chan struct{}
}

func newSerialQueue() *serialQueue {
	q := &serialQueue{
		tasks: linkedlistqueue.New[*task](),
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
	go q.loop()
	return q
}

// async enqueues fn. It reports false if the queue is closed.
func (q *serialQueue) async(fn func()) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.tasks.Enqueue(&task{fn: fn})
	q.mu.Unlock()

	q.signal()
	return true
}

// close stops accepting tasks. Tasks already queued still run.
func (q *serialQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	q.signal()
}

func (q *serialQueue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *serialQueue) loop() {
	defer close(q.done)

	for {
		q.mu.Lock()
		t, ok := q.tasks.Dequeue()
		closed := q.closed
		q.mu.Unlock()

		switch {
		case ok:
			t.fn()
		case closed:
			return
		default:
			<-q.wake
		}
	}
}
