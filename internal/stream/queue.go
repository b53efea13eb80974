// Package stream keeps long-lived relay subscriptions and hands their
// events to a callback one at a time, in arrival order.
package stream

import (
	"log/slog"
	"sync"
)

// TaskQueue runs tasks one at a time in push order on a single worker.
type TaskQueue struct {
	mu     sync.Mutex
	tasks  []func()
	closed bool
	notify chan struct{}
	done   chan struct{}
	once   sync.Once
}

func NewTaskQueue() *TaskQueue {
	q := &TaskQueue{
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go q.worker()
	return q
}

// Push appends a task without blocking. It reports false once the queue is closed.
func (q *TaskQueue) Push(task func()) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.tasks = append(q.tasks, task)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return true
}

// Len returns the number of tasks waiting to run.
func (q *TaskQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// Close stops the worker after the running task and drops pending ones.
func (q *TaskQueue) Close() {
	q.once.Do(func() {
		q.mu.Lock()
		q.closed = true
		q.tasks = nil
		q.mu.Unlock()
		close(q.done)
	})
}

func (q *TaskQueue) worker() {
	for {
		select {
		case <-q.done:
			return
		case <-q.notify:
		}
		for {
			q.mu.Lock()
			if q.closed || len(q.tasks) == 0 {
				q.mu.Unlock()
				break
			}
			task := q.tasks[0]
			q.tasks[0] = nil
			q.tasks = q.tasks[1:]
			q.mu.Unlock()

			q.run(task)
		}
	}
}

func (q *TaskQueue) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("stream: task panicked", "panic", r)
		}
	}()
	task()
}
