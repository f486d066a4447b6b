// Package queue provides the cross-context work queue that moves deferred
// work from the link callback context into the cooperative main loop.
//
// Two classes of task exist: keyed tasks deduplicate (latest push for a key
// wins, at most one pending task per key) and unkeyed tasks run FIFO with no
// deduplication. The internal collections are guarded by a single mutex held
// only for the duration of a push or the drain swap, never while a task runs.
package queue

import (
	"sync"

	"go.uber.org/zap"
)

// Task is one unit of deferred work.
type Task func()

// Queue is safe for concurrent use from the callback context and the main
// loop. The zero value is not usable; use New.
type Queue struct {
	mu    sync.Mutex
	keyed map[string]Task
	fifo  []Task
	log   *zap.Logger
}

// New creates an empty queue.
func New(log *zap.Logger) *Queue {
	if log == nil {
		log = zap.NewNop()
	}
	return &Queue{
		keyed: make(map[string]Task),
		log:   log,
	}
}

// Push enqueues an unkeyed task. Every unkeyed task executes on drain.
func (q *Queue) Push(task Task) {
	if task == nil {
		return
	}
	q.mu.Lock()
	q.fifo = append(q.fifo, task)
	q.mu.Unlock()
}

// PushKeyed enqueues a task under a key, replacing any undrained task with
// the same key. An empty key degrades to Push.
func (q *Queue) PushKeyed(key string, task Task) {
	if task == nil {
		return
	}
	if key == "" {
		q.Push(task)
		return
	}
	q.mu.Lock()
	q.keyed[key] = task
	q.mu.Unlock()
}

// Len returns the number of pending tasks across both collections.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.fifo) + len(q.keyed)
}

// Drain atomically swaps out both internal collections under the lock, then
// executes every drained task without holding the lock, so new work can be
// enqueued concurrently while draining runs. FIFO tasks run first in push
// order, then keyed tasks in unspecified order. Returns the number of tasks
// executed.
func (q *Queue) Drain() int {
	q.mu.Lock()
	fifo := q.fifo
	keyed := q.keyed
	q.fifo = nil
	q.keyed = make(map[string]Task)
	q.mu.Unlock()

	n := 0
	for _, task := range fifo {
		q.run("", task)
		n++
	}
	for key, task := range keyed {
		q.run(key, task)
		n++
	}
	return n
}

// run executes one task, containing panics so a single bad task cannot take
// down the main loop.
func (q *Queue) run(key string, task Task) {
	defer func() {
		if r := recover(); r != nil {
			q.log.Error("deferred task panicked",
				zap.String("key", key),
				zap.Any("panic", r))
		}
	}()
	task()
}
