// Package tasks runs fire-and-forget background work on a bounded queue.
// Submission never blocks the caller; when the queue is full the work is
// dropped and the caller decides whether that matters.
package tasks

import (
	"context"
	"log"
	"sync"
	"time"
)

const defaultTaskTimeout = 30 * time.Second

type task struct {
	name string
	fn   func(context.Context) error
}

// Queue is a fixed-capacity task queue drained by a small worker pool.
type Queue struct {
	tasks   chan task
	timeout time.Duration

	startOnce sync.Once
	wg        sync.WaitGroup
}

// NewQueue creates a queue holding up to capacity pending tasks.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 64
	}
	return &Queue{
		tasks:   make(chan task, capacity),
		timeout: defaultTaskTimeout,
	}
}

// Start launches workers that drain the queue until ctx is done.
func (q *Queue) Start(ctx context.Context, workers int) {
	if workers <= 0 {
		workers = 2
	}
	q.startOnce.Do(func() {
		for i := 0; i < workers; i++ {
			q.wg.Add(1)
			go q.worker(ctx)
		}
	})
}

// Submit enqueues a task. It returns false, without blocking, when the queue
// is full.
func (q *Queue) Submit(name string, fn func(context.Context) error) bool {
	select {
	case q.tasks <- task{name: name, fn: fn}:
		return true
	default:
		return false
	}
}

// Wait blocks until all workers have exited. Call after the Start context is
// cancelled.
func (q *Queue) Wait() {
	q.wg.Wait()
}

func (q *Queue) worker(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-q.tasks:
			q.run(ctx, t)
		}
	}
}

func (q *Queue) run(ctx context.Context, t task) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[tasks] %s panicked: %v", t.name, r)
		}
	}()
	taskCtx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()
	if err := t.fn(taskCtx); err != nil {
		log.Printf("[tasks] %s failed: %v", t.name, err)
	}
}
