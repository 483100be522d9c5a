// Package task persists search task progress so any process can poll it.
package task

import (
	"context"
	"errors"
	"time"
)

// Status is the lifecycle state of a search task.
type Status string

// Task statuses. Completed and Failed are terminal.
const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether s can no longer change.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

var (
	// ErrNotFound is returned when a task id is unknown.
	ErrNotFound = errors.New("task not found")
	// ErrExists is returned when creating a task whose id is taken.
	ErrExists = errors.New("task already exists")
)

// Task is the polled view of one pipeline run.
type Task struct {
	ID          string    `json:"id"`
	Status      Status    `json:"status"`
	Progress    int       `json:"progress"`
	Message     string    `json:"message"`
	ResultCount *int      `json:"result_count,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Patch carries the fields an update sets. Nil fields are left alone.
type Patch struct {
	Status      *Status
	Progress    *int
	Message     *string
	ResultCount *int
}

// Progressed builds a patch that moves a running task forward.
func Progressed(pct int, msg string) Patch {
	running := StatusRunning
	return Patch{Status: &running, Progress: &pct, Message: &msg}
}

// Completed builds the terminal success patch.
func Completed(msg string, count int) Patch {
	done := StatusCompleted
	return Patch{Status: &done, Message: &msg, ResultCount: &count}
}

// Failed builds the terminal failure patch.
func Failed(msg string) Patch {
	failed := StatusFailed
	return Patch{Status: &failed, Message: &msg}
}

// Store persists tasks.
type Store interface {
	Create(ctx context.Context, t Task) error
	Update(ctx context.Context, id string, p Patch) (Task, error)
	Get(ctx context.Context, id string) (Task, error)
}

// apply merges p into t. Progress never decreases, a terminal task keeps
// its status and fields, and completion pins progress at 100.
func apply(t Task, p Patch, now time.Time) Task {
	if t.Status.Terminal() {
		return t
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.Progress != nil && *p.Progress > t.Progress {
		t.Progress = min(*p.Progress, 100)
	}
	if p.Message != nil {
		t.Message = *p.Message
	}
	if p.ResultCount != nil {
		n := *p.ResultCount
		t.ResultCount = &n
	}
	if t.Status == StatusCompleted {
		t.Progress = 100
	}
	t.UpdatedAt = now
	return t
}
