// Package queue carries triggers from their sources to the dispatcher loop.
//
// Producers never block: a full or closed queue rejects the trigger so the
// hardware side is never held up by a slow critical section.
package queue

import (
	"context"
	"sync"

	"github.com/okian/sectorclock/internal/domain/model"
	"github.com/okian/sectorclock/pkg/metrics"
)

const defaultQueueCapacity = 1024

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a trigger. It returns ErrFull or ErrClosed when rejected.
	Enqueue(ctx context.Context, t model.Trigger) error

	// Dequeue returns the receive side; it is closed, after draining, by Close.
	Dequeue() <-chan model.Trigger

	// Len returns the current number of queued triggers.
	Len() int

	// Close stops accepting triggers.
	Close() error
}

// InMemoryQueue implements Queue with a buffered channel. Order is FIFO.
type InMemoryQueue struct {
	triggers chan model.Trigger
	capacity int

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a queue.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: defaultQueueCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.triggers = make(chan model.Trigger, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	return q
}

// Enqueue adds a trigger without blocking.
func (q *InMemoryQueue) Enqueue(ctx context.Context, t model.Trigger) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueDropped("closed")
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		metrics.RecordQueueDropped("context_cancelled")
		return err
	}

	select {
	case q.triggers <- t:
		metrics.UpdateQueueSize(len(q.triggers))
		return nil
	default:
		metrics.RecordQueueDropped("full")
		return ErrFull
	}
}

// Dequeue returns the receive side of the queue.
func (q *InMemoryQueue) Dequeue() <-chan model.Trigger {
	return q.triggers
}

// Len returns the current number of queued triggers.
func (q *InMemoryQueue) Len() int {
	size := len(q.triggers)
	metrics.UpdateQueueSize(size)
	return size
}

// Capacity returns the configured capacity.
func (q *InMemoryQueue) Capacity() int { return q.capacity }

// Close stops accepting triggers. Triggers already queued stay readable.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.triggers)
	q.closed = true
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
