package bus

import (
	"context"
	"sync/atomic"

	"github.com/yanun0323/errors"
)

var (
	ErrQueueFull   = errors.New("event queue full")
	ErrQueueClosed = errors.New("event queue closed")
)

// Queue is a bounded, non-blocking handoff between the core and its
// collaborators. Publishing never blocks: a full queue drops the event
// and reports it, so the hot path is never held up by a slow consumer.
type Queue[T any] struct {
	ch     chan T
	closed uint32
	drops  uint64
}

// NewQueue allocates a queue with the given capacity.
func NewQueue[T any](capacity int) *Queue[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue[T]{ch: make(chan T, capacity)}
}

// TryPublish enqueues an event without blocking.
func (q *Queue[T]) TryPublish(e T) error {
	if atomic.LoadUint32(&q.closed) != 0 {
		return ErrQueueClosed
	}
	select {
	case q.ch <- e:
		return nil
	default:
		atomic.AddUint64(&q.drops, 1)
		return ErrQueueFull
	}
}

// Drops returns how many events were dropped on a full queue.
func (q *Queue[T]) Drops() uint64 {
	return atomic.LoadUint64(&q.drops)
}

// Len returns the number of buffered events.
func (q *Queue[T]) Len() int {
	return len(q.ch)
}

// Close stops the queue from accepting new events.
func (q *Queue[T]) Close() {
	if atomic.CompareAndSwapUint32(&q.closed, 0, 1) {
		close(q.ch)
	}
}

// Run consumes events until the context is done or the queue is closed.
func (q *Queue[T]) Run(ctx context.Context, handler func(T)) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-q.ch:
			if !ok {
				return
			}
			handler(e)
		}
	}
}
