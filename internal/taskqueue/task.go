package taskqueue

import (
	"time"
)

// TaskStatus represents the current status of a task
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusCancelled TaskStatus = "cancelled"
)

// Finished reports whether the task will not run again
func (s TaskStatus) Finished() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed || s == TaskStatusCancelled
}

// Task is one queued recon request
type Task struct {
	ID          string     `json:"id"`
	POI         string     `json:"poi"`
	Location    string     `json:"location,omitempty"`
	Status      TaskStatus `json:"status"`
	Priority    int        `json:"priority"`  // Higher = more urgent (default 0)
	CreatedAt   string     `json:"createdAt"` // ISO 8601 format
	StartedAt   string     `json:"startedAt,omitempty"`
	CompletedAt string     `json:"completedAt,omitempty"`

	// Error message if failed
	Error string `json:"error,omitempty"`
}

// NewTask creates a pending task; id is normally the mission id
func NewTask(id, poi, location string) *Task {
	return &Task{
		ID:        id,
		POI:       poi,
		Location:  location,
		Status:    TaskStatusPending,
		CreatedAt: time.Now().Format(time.RFC3339),
	}
}

// MarkStarted marks the task as started
func (t *Task) MarkStarted() {
	t.StartedAt = time.Now().Format(time.RFC3339)
	t.Status = TaskStatusRunning
}

// MarkCompleted marks the task as completed
func (t *Task) MarkCompleted() {
	t.CompletedAt = time.Now().Format(time.RFC3339)
	t.Status = TaskStatusCompleted
}

// MarkFailed marks the task as failed with an error
func (t *Task) MarkFailed(err error) {
	t.CompletedAt = time.Now().Format(time.RFC3339)
	t.Status = TaskStatusFailed
	if err != nil {
		t.Error = err.Error()
	}
}

// MarkCancelled marks the task as cancelled
func (t *Task) MarkCancelled() {
	t.CompletedAt = time.Now().Format(time.RFC3339)
	t.Status = TaskStatusCancelled
}
