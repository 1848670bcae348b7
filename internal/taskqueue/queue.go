package taskqueue

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
)

var (
	// ErrQueueFull is returned when the pending backlog is at capacity
	ErrQueueFull = errors.New("task queue is full")

	// ErrQueueStopped is returned once the queue has been closed
	ErrQueueStopped = errors.New("task queue is stopped")

	// ErrTaskNotFound is returned for unknown task ids
	ErrTaskNotFound = errors.New("task not found")
)

// QueueStatus represents the current queue status
type QueueStatus struct {
	IsRunning      bool `json:"isRunning"`
	RunningTasks   int  `json:"runningTasks"`
	TotalTasks     int  `json:"totalTasks"`
	CompletedTasks int  `json:"completedTasks"`
	FailedTasks    int  `json:"failedTasks"`
	PendingTasks   int  `json:"pendingTasks"`
}

// TaskExecutor runs one task. It must return promptly once ctx is cancelled.
type TaskExecutor interface {
	ExecuteTask(ctx context.Context, task Task) error
}

// QueueManager runs queued tasks on a fixed number of workers,
// highest priority first, then in submission order
type QueueManager struct {
	tasks     map[string]*Task
	taskOrder []string // maintains queue order
	mu        sync.Mutex
	cond      *sync.Cond

	isRunning bool
	stopped   bool
	cancels   map[string]context.CancelFunc

	executor       TaskExecutor
	onTaskComplete func(task Task, err error)

	maxConcurrent int
	maxPending    int
	workerWg      sync.WaitGroup
}

// NewQueueManager creates a new queue manager. maxPending bounds the
// backlog of tasks that have not started yet; zero means unbounded.
func NewQueueManager(executor TaskExecutor, maxConcurrent, maxPending int) *QueueManager {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	if maxConcurrent > 5 {
		maxConcurrent = 5
	}

	qm := &QueueManager{
		tasks:         make(map[string]*Task),
		taskOrder:     make([]string, 0),
		cancels:       make(map[string]context.CancelFunc),
		executor:      executor,
		maxConcurrent: maxConcurrent,
		maxPending:    maxPending,
	}
	qm.cond = sync.NewCond(&qm.mu)
	return qm
}

// SetOnTaskComplete sets a callback invoked after every finished task
func (qm *QueueManager) SetOnTaskComplete(fn func(task Task, err error)) {
	qm.mu.Lock()
	defer qm.mu.Unlock()
	qm.onTaskComplete = fn
}

// StartQueue begins processing tasks
func (qm *QueueManager) StartQueue() error {
	qm.mu.Lock()
	defer qm.mu.Unlock()

	if qm.stopped {
		return ErrQueueStopped
	}
	if qm.isRunning {
		return fmt.Errorf("queue is already running")
	}
	qm.isRunning = true

	for i := 0; i < qm.maxConcurrent; i++ {
		qm.workerWg.Add(1)
		go qm.worker()
	}

	log.Printf("[TaskQueue] Queue started with %d workers", qm.maxConcurrent)
	return nil
}

// AddTask adds a new task to the queue
func (qm *QueueManager) AddTask(task *Task) error {
	qm.mu.Lock()
	defer qm.mu.Unlock()

	if qm.stopped {
		return ErrQueueStopped
	}
	if _, exists := qm.tasks[task.ID]; exists {
		return fmt.Errorf("task already queued: %s", task.ID)
	}
	if qm.maxPending > 0 && qm.countLocked(TaskStatusPending) >= qm.maxPending {
		return ErrQueueFull
	}

	task.Status = TaskStatusPending
	qm.tasks[task.ID] = task
	qm.taskOrder = append(qm.taskOrder, task.ID)

	// Signal worker
	qm.cond.Signal()

	log.Printf("[TaskQueue] Added task: %s (%s)", task.POI, task.ID)
	return nil
}

// GetTask returns a snapshot of a task by ID
func (qm *QueueManager) GetTask(id string) (Task, error) {
	qm.mu.Lock()
	defer qm.mu.Unlock()

	task, exists := qm.tasks[id]
	if !exists {
		return Task{}, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return *task, nil
}

// GetAllTasks returns snapshots of all tasks in submission order
func (qm *QueueManager) GetAllTasks() []Task {
	qm.mu.Lock()
	defer qm.mu.Unlock()

	result := make([]Task, 0, len(qm.taskOrder))
	for _, id := range qm.taskOrder {
		if task, exists := qm.tasks[id]; exists {
			result = append(result, *task)
		}
	}
	return result
}

// CancelTask cancels a running or pending task
func (qm *QueueManager) CancelTask(id string) error {
	qm.mu.Lock()
	defer qm.mu.Unlock()

	task, exists := qm.tasks[id]
	if !exists {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	if task.Status.Finished() {
		return fmt.Errorf("task already finished")
	}

	// A running task is marked when its executor returns
	if cancel, ok := qm.cancels[id]; ok {
		cancel()
	} else {
		task.MarkCancelled()
	}

	log.Printf("[TaskQueue] Cancelled task: %s", id)
	return nil
}

// ClearFinished removes all completed, failed and cancelled tasks
func (qm *QueueManager) ClearFinished() int {
	qm.mu.Lock()
	defer qm.mu.Unlock()

	removed := 0
	newOrder := make([]string, 0, len(qm.taskOrder))
	for _, id := range qm.taskOrder {
		if qm.tasks[id].Status.Finished() {
			delete(qm.tasks, id)
			removed++
			continue
		}
		newOrder = append(newOrder, id)
	}
	qm.taskOrder = newOrder
	return removed
}

// GetStatus returns the current queue status
func (qm *QueueManager) GetStatus() QueueStatus {
	qm.mu.Lock()
	defer qm.mu.Unlock()

	return QueueStatus{
		IsRunning:      qm.isRunning,
		RunningTasks:   qm.countLocked(TaskStatusRunning),
		TotalTasks:     len(qm.tasks),
		CompletedTasks: qm.countLocked(TaskStatusCompleted),
		FailedTasks:    qm.countLocked(TaskStatusFailed),
		PendingTasks:   qm.countLocked(TaskStatusPending),
	}
}

func (qm *QueueManager) countLocked(status TaskStatus) int {
	n := 0
	for _, task := range qm.tasks {
		if task.Status == status {
			n++
		}
	}
	return n
}

// Close stops the workers, cancels running tasks and waits for them to return.
// Pending tasks are marked cancelled.
func (qm *QueueManager) Close() {
	qm.mu.Lock()
	qm.stopped = true
	qm.isRunning = false
	for _, cancel := range qm.cancels {
		cancel()
	}
	for _, task := range qm.tasks {
		if task.Status == TaskStatusPending {
			task.MarkCancelled()
		}
	}
	qm.cond.Broadcast()
	qm.mu.Unlock()

	qm.workerWg.Wait()
	log.Printf("[TaskQueue] Queue stopped")
}

// next blocks until a pending task is available or the queue stops
func (qm *QueueManager) next() (*Task, context.Context) {
	qm.mu.Lock()
	defer qm.mu.Unlock()

	for {
		if !qm.isRunning {
			return nil, nil
		}

		// Find next pending task (respecting priority)
		var nextTask *Task
		for _, id := range qm.taskOrder {
			task := qm.tasks[id]
			if task.Status == TaskStatusPending {
				if nextTask == nil || task.Priority > nextTask.Priority {
					nextTask = task
				}
			}
		}

		if nextTask != nil {
			ctx, cancel := context.WithCancel(context.Background())
			qm.cancels[nextTask.ID] = cancel
			nextTask.MarkStarted()
			return nextTask, ctx
		}

		qm.cond.Wait()
	}
}

// worker processes tasks in the background
func (qm *QueueManager) worker() {
	defer qm.workerWg.Done()

	for {
		task, ctx := qm.next()
		if task == nil {
			return
		}

		qm.mu.Lock()
		snapshot := *task
		qm.mu.Unlock()

		log.Printf("[TaskQueue] Executing task: %s (%s)", snapshot.POI, snapshot.ID)

		var execErr error
		if qm.executor != nil {
			execErr = qm.executor.ExecuteTask(ctx, snapshot)
		} else {
			execErr = fmt.Errorf("no executor configured")
		}

		qm.mu.Lock()
		qm.cancels[task.ID]()
		delete(qm.cancels, task.ID)
		switch {
		case execErr != nil && ctx.Err() != nil:
			task.MarkCancelled()
		case execErr != nil:
			task.MarkFailed(execErr)
			log.Printf("[TaskQueue] Task failed: %s - %v", task.ID, execErr)
		default:
			task.MarkCompleted()
			log.Printf("[TaskQueue] Task completed: %s", task.ID)
		}
		snapshot = *task
		onComplete := qm.onTaskComplete
		qm.mu.Unlock()

		if onComplete != nil {
			onComplete(snapshot, execErr)
		}
	}
}
