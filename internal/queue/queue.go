package queue

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

var (
	ErrQueueEmpty  = errors.New("queue is empty")
	ErrQueueClosed = errors.New("queue is closed")
)

// Task is one queued crawl request.
type Task struct {
	ID        string
	Query     string
	MaxPages  int
	Priority  int
	CreatedAt time.Time
}

type Queue interface {
	Push(task *Task) error
	Pop(ctx context.Context) (*Task, error)
	TryPop() (*Task, error)
	Size() int
	Close() error
}

// InMemoryQueue is a FIFO ordered by descending priority. Tasks of equal
// priority keep their insertion order.
type InMemoryQueue struct {
	tasks  []*Task
	mu     sync.Mutex
	notify chan struct{}
	closed bool
}

func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{
		tasks:  make([]*Task, 0),
		notify: make(chan struct{}, 1),
	}
}

func (q *InMemoryQueue) Push(task *Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}

	q.tasks = append(q.tasks, task)
	sort.SliceStable(q.tasks, func(i, j int) bool {
		return q.tasks[i].Priority > q.tasks[j].Priority
	})
	q.signal()

	return nil
}

// Pop blocks until a task is available, the queue is closed, or ctx is done.
// Remaining tasks are still handed out after Close.
func (q *InMemoryQueue) Pop(ctx context.Context) (*Task, error) {
	for {
		task, err := q.TryPop()
		if !errors.Is(err, ErrQueueEmpty) {
			return task, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.notify:
		}
	}
}

// TryPop returns the head task without blocking.
func (q *InMemoryQueue) TryPop() (*Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.tasks) == 0 {
		if q.closed {
			return nil, ErrQueueClosed
		}
		return nil, ErrQueueEmpty
	}

	task := q.tasks[0]
	q.tasks[0] = nil
	q.tasks = q.tasks[1:]
	if len(q.tasks) > 0 {
		q.signal()
	}

	return task, nil
}

func (q *InMemoryQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true
	close(q.notify)

	return nil
}

// signal must be called with q.mu held.
func (q *InMemoryQueue) signal() {
	if q.closed {
		return
	}
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
