// Package memory provides a bounded in-process feed task queue.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/newsgraph/internal/content"
)

// Queue is a bounded in-memory queue with context-aware operations.
type Queue struct {
	ch     chan content.FeedTask
	mu     sync.RWMutex
	closed bool
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	if capacity < 0 {
		capacity = 0
	}
	return &Queue{ch: make(chan content.FeedTask, capacity)}
}

// Enqueue pushes a task, blocking while the queue is full.
func (q *Queue) Enqueue(ctx context.Context, task content.FeedTask) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return content.ErrQueueClosed
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- task:
		return nil
	}
}

// Dequeue pops the next task. Once closed and drained it returns content.ErrQueueClosed.
func (q *Queue) Dequeue(ctx context.Context) (content.FeedTask, error) {
	select {
	case <-ctx.Done():
		return content.FeedTask{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case task, ok := <-q.ch:
		if !ok {
			return content.FeedTask{}, content.ErrQueueClosed
		}
		return task, nil
	}
}

// Close stops accepting tasks. Queued tasks remain available to Dequeue.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}
