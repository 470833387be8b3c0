package domain

import (
	"bytes"
	"encoding/json"
	"time"
)

// Optional 区分三种情况：字段未出现、显式为 null、有值
type Optional[T any] struct {
	Set   bool
	Value *T
}

func Some[T any](v T) Optional[T] {
	return Optional[T]{Set: true, Value: &v}
}

func Null[T any]() Optional[T] {
	return Optional[T]{Set: true}
}

func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		o.Value = nil
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	o.Value = &v
	return nil
}

type TaskField string

const (
	FieldTitle          TaskField = "title"
	FieldDescription    TaskField = "description"
	FieldPriority       TaskField = "priority"
	FieldStatus         TaskField = "status"
	FieldAssignedTo     TaskField = "assigned_to"
	FieldDueDate        TaskField = "due_date"
	FieldEstimatedHours TaskField = "estimated_hours"
	FieldActualHours    TaskField = "actual_hours"
	FieldCompletedAt    TaskField = "completed_at"
	FieldUpdatedAt      TaskField = "updated_at"
)

// EmployeeWritableFields 是员工可以修改的全部字段
var EmployeeWritableFields = []TaskField{FieldStatus, FieldActualHours}

// TaskPatch 是一次部分更新请求；id 和 assigned_by 不在其中，任何人都不能修改
type TaskPatch struct {
	Title          Optional[string]       `json:"title"`
	Description    Optional[string]       `json:"description"`
	Priority       Optional[TaskPriority] `json:"priority"`
	Status         Optional[TaskStatus]   `json:"status"`
	AssignedTo     Optional[string]       `json:"assigned_to"`
	DueDate        Optional[time.Time]    `json:"due_date"`
	EstimatedHours Optional[float64]      `json:"estimated_hours"`
	ActualHours    Optional[float64]      `json:"actual_hours"`
}

// Restrict 返回只保留 allowed 中字段的副本，其余字段视为未提交
func (p TaskPatch) Restrict(allowed []TaskField) TaskPatch {
	keep := make(map[TaskField]bool, len(allowed))
	for _, f := range allowed {
		keep[f] = true
	}

	var out TaskPatch
	if keep[FieldTitle] {
		out.Title = p.Title
	}
	if keep[FieldDescription] {
		out.Description = p.Description
	}
	if keep[FieldPriority] {
		out.Priority = p.Priority
	}
	if keep[FieldStatus] {
		out.Status = p.Status
	}
	if keep[FieldAssignedTo] {
		out.AssignedTo = p.AssignedTo
	}
	if keep[FieldDueDate] {
		out.DueDate = p.DueDate
	}
	if keep[FieldEstimatedHours] {
		out.EstimatedHours = p.EstimatedHours
	}
	if keep[FieldActualHours] {
		out.ActualHours = p.ActualHours
	}
	return out
}

type Change struct {
	Field TaskField `json:"field"`
	Old   any       `json:"old"`
	New   any       `json:"new"`
}

type ChangeSet []Change

func (cs ChangeSet) Get(field TaskField) (Change, bool) {
	for _, c := range cs {
		if c.Field == field {
			return c, true
		}
	}
	return Change{}, false
}

func (cs ChangeSet) Has(field TaskField) bool {
	_, ok := cs.Get(field)
	return ok
}

func (cs ChangeSet) Fields() []TaskField {
	fields := make([]TaskField, 0, len(cs))
	for _, c := range cs {
		fields = append(fields, c.Field)
	}
	return fields
}
