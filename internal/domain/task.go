package domain

import "time"

type TaskStatus string

const (
	StatusNotStarted TaskStatus = "not_started"
	StatusInProgress TaskStatus = "in_progress"
	StatusPaused     TaskStatus = "paused"
	StatusCompleted  TaskStatus = "completed"
)

// Valid 只检查枚举成员，状态之间的迁移不做限制
func (s TaskStatus) Valid() bool {
	switch s {
	case StatusNotStarted, StatusInProgress, StatusPaused, StatusCompleted:
		return true
	}
	return false
}

// Label 返回给人看的状态名，用于动态和通知的文案
func (s TaskStatus) Label() string {
	switch s {
	case StatusNotStarted:
		return "Not Started"
	case StatusInProgress:
		return "In Progress"
	case StatusPaused:
		return "Paused"
	case StatusCompleted:
		return "Completed"
	}
	return string(s)
}

type TaskPriority string

const (
	PriorityHigh   TaskPriority = "high"
	PriorityMedium TaskPriority = "medium"
	PriorityLow    TaskPriority = "low"
)

func (p TaskPriority) Valid() bool {
	return p == PriorityHigh || p == PriorityMedium || p == PriorityLow
}

func (p TaskPriority) Label() string {
	switch p {
	case PriorityHigh:
		return "High"
	case PriorityMedium:
		return "Medium"
	case PriorityLow:
		return "Low"
	}
	return string(p)
}

type Task struct {
	ID             string       `json:"id" db:"id"`
	Title          string       `json:"title" db:"title"`
	Description    string       `json:"description" db:"description"`
	Priority       TaskPriority `json:"priority" db:"priority"`
	Status         TaskStatus   `json:"status" db:"status"`
	AssignedTo     *string      `json:"assigned_to" db:"assigned_to"`
	AssignedBy     string       `json:"assigned_by" db:"assigned_by"`
	CreatedAt      time.Time    `json:"created_at" db:"created_at"`
	DueDate        *time.Time   `json:"due_date" db:"due_date"`
	CompletedAt    *time.Time   `json:"completed_at" db:"completed_at"`
	EstimatedHours *float64     `json:"estimated_hours" db:"estimated_hours"`
	ActualHours    *float64     `json:"actual_hours" db:"actual_hours"`
	UpdatedAt      time.Time    `json:"updated_at" db:"updated_at"`
}

func (t *Task) IsAssignedTo(userID string) bool {
	return t.AssignedTo != nil && *t.AssignedTo == userID
}

// TaskFilter 为空时表示不过滤
type TaskFilter struct {
	AssignedTo *string
	Status     *TaskStatus
}

type TaskStats struct {
	TotalTasks     int  `json:"total_tasks"`
	CompletedTasks int  `json:"completed_tasks"`
	PendingTasks   int  `json:"pending_tasks"`
	TotalEmployees *int `json:"total_employees,omitempty"`
}
