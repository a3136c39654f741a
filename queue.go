package amplitude

import (
	"context"
	"sync"
)

// serialQueue hands pushed items to handle one at a time, in push order.
// A worker goroutine is started on demand and exits once the queue drains,
// so an idle queue costs nothing. push never blocks on handle.
type serialQueue[T any] struct {
	handle func(T)

	mu      sync.Mutex
	items   []T
	running bool
	// idle is closed when the current worker exits.
	idle chan struct{}
}

func newSerialQueue[T any](handle func(T)) *serialQueue[T] {
	return &serialQueue[T]{handle: handle}
}

// push appends item and starts a worker if none is running.
func (q *serialQueue[T]) push(item T) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, item)
	if !q.running {
		q.running = true
		q.idle = make(chan struct{})
		go q.drain(q.idle)
	}
}

func (q *serialQueue[T]) drain(idle chan struct{}) {
	for {
		q.mu.Lock()
		if len(q.items) == 0 {
			q.running = false
			close(idle)
			q.mu.Unlock()
			return
		}
		item := q.items[0]
		var zero T
		q.items[0] = zero
		q.items = q.items[1:]
		q.mu.Unlock()

		q.handle(item)
	}
}

// pending reports the number of items not yet handed to handle.
func (q *serialQueue[T]) pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// wait blocks until the queue is idle or ctx is done. Items pushed while
// waiting are waited for as well.
func (q *serialQueue[T]) wait(ctx context.Context) error {
	for {
		q.mu.Lock()
		if !q.running {
			q.mu.Unlock()
			return nil
		}
		idle := q.idle
		q.mu.Unlock()

		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
