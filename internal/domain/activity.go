package domain

import "time"

type ActivityAction string

const (
	ActionTaskCreated       ActivityAction = "task_created"
	ActionTaskStatusChanged ActivityAction = "task_status_changed"
	ActionTaskDeleted       ActivityAction = "task_deleted"
	ActionUserRegistered    ActivityAction = "user_registered"
)

// Activity 只追加，不修改也不删除
type Activity struct {
	ID          string         `json:"id" db:"id"`
	UserID      string         `json:"user_id" db:"user_id"`
	UserName    string         `json:"user_name" db:"user_name"`
	Action      ActivityAction `json:"action" db:"action"`
	Description string         `json:"description" db:"description"`
	TaskID      *string        `json:"task_id,omitempty" db:"task_id"`
	CreatedAt   time.Time      `json:"created_at" db:"created_at"`
}
