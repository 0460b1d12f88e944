package models

import "time"

// Task statuses
const (
	TaskStatusTodo       = "todo"
	TaskStatusInProgress = "in_progress"
	TaskStatusDone       = "done"
)

// Task priorities
const (
	TaskPriorityLow    = "low"
	TaskPriorityMedium = "medium"
	TaskPriorityHigh   = "high"
)

// Task is a single to-do item owned by one user of the identity provider.
type Task struct {
	ID        string
	OwnerID   string
	ClientID  *string // id the task had in browser storage before migration
	ProjectID *string
	Title     string
	Notes     string
	Status    string
	Priority  string
	DueAt     *time.Time
	Tags      []string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsValidTaskStatus reports whether s is a known task status.
func IsValidTaskStatus(s string) bool {
	switch s {
	case TaskStatusTodo, TaskStatusInProgress, TaskStatusDone:
		return true
	}
	return false
}

// IsValidTaskPriority reports whether p is a known task priority.
func IsValidTaskPriority(p string) bool {
	switch p {
	case TaskPriorityLow, TaskPriorityMedium, TaskPriorityHigh:
		return true
	}
	return false
}
