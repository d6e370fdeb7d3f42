package uploader

import (
	"context"
	"sync"

	"vigil/internal/artifact"
)

// Queue is an unbounded FIFO of artifacts pending delivery. Multiple
// producers (capture and detection paths) append concurrently; a single
// worker drains it. Retried artifacts re-enter at the tail.
type Queue struct {
	mu    sync.Mutex
	cond  *sync.Cond
	items []artifact.Artifact
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	q := &Queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Enqueue appends an artifact at the tail and wakes the worker.
func (q *Queue) Enqueue(a artifact.Artifact) {
	q.mu.Lock()
	q.items = append(q.items, a)
	q.mu.Unlock()
	q.cond.Signal()
}

// Pop removes and returns the head, blocking until an artifact is available
// or ctx is cancelled.
func (q *Queue) Pop(ctx context.Context) (artifact.Artifact, error) {
	// Broadcast under the mutex so cancellation cannot slip between the
	// waiter's ctx check and its cond.Wait.
	stop := context.AfterFunc(ctx, func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		q.cond.Broadcast()
	})
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 {
		if err := ctx.Err(); err != nil {
			return artifact.Artifact{}, err
		}
		q.cond.Wait()
	}
	head := q.items[0]
	q.items = q.items[1:]
	return head, nil
}

// Len reports the number of queued artifacts.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Paths returns the local paths of queued artifacts in order, for the debug
// surface and tests.
func (q *Queue) Paths() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	paths := make([]string, len(q.items))
	for i, a := range q.items {
		paths[i] = a.LocalPath
	}
	return paths
}
