package task

import (
	"strings"
	"time"

	"github.com/sysu-ecnc-dev/task-vision/backend/internal/domain"
)

func validatePatch(p domain.TaskPatch) error {
	if p.Title.Set && (p.Title.Value == nil || strings.TrimSpace(*p.Title.Value) == "") {
		return domain.NewValidationError(string(domain.FieldTitle), "标题不能为空")
	}
	if p.Description.Set && p.Description.Value == nil {
		return domain.NewValidationError(string(domain.FieldDescription), "不能为 null")
	}
	if p.Priority.Set && (p.Priority.Value == nil || !p.Priority.Value.Valid()) {
		return domain.NewValidationError(string(domain.FieldPriority), "无效的优先级")
	}
	if p.Status.Set && (p.Status.Value == nil || !p.Status.Value.Valid()) {
		return domain.NewValidationError(string(domain.FieldStatus), "无效的状态")
	}
	if p.EstimatedHours.Set && p.EstimatedHours.Value != nil && *p.EstimatedHours.Value < 0 {
		return domain.NewValidationError(string(domain.FieldEstimatedHours), "不能为负数")
	}
	if p.ActualHours.Set && p.ActualHours.Value != nil && *p.ActualHours.Value < 0 {
		return domain.NewValidationError(string(domain.FieldActualHours), "不能为负数")
	}
	return nil
}

// applyPatch 把已校验的 patch 写入 t，返回真正改变了值的字段；与当前值相同的字段不算变化
func applyPatch(t *domain.Task, p domain.TaskPatch) domain.ChangeSet {
	var cs domain.ChangeSet

	if p.Title.Set && *p.Title.Value != t.Title {
		cs = append(cs, domain.Change{Field: domain.FieldTitle, Old: t.Title, New: *p.Title.Value})
		t.Title = *p.Title.Value
	}
	if p.Description.Set && *p.Description.Value != t.Description {
		cs = append(cs, domain.Change{Field: domain.FieldDescription, Old: t.Description, New: *p.Description.Value})
		t.Description = *p.Description.Value
	}
	if p.Priority.Set && *p.Priority.Value != t.Priority {
		cs = append(cs, domain.Change{Field: domain.FieldPriority, Old: t.Priority, New: *p.Priority.Value})
		t.Priority = *p.Priority.Value
	}
	if p.Status.Set && *p.Status.Value != t.Status {
		cs = append(cs, domain.Change{Field: domain.FieldStatus, Old: t.Status, New: *p.Status.Value})
		t.Status = *p.Status.Value
	}
	if p.AssignedTo.Set && !equalPtr(t.AssignedTo, p.AssignedTo.Value) {
		cs = append(cs, domain.Change{Field: domain.FieldAssignedTo, Old: deref(t.AssignedTo), New: deref(p.AssignedTo.Value)})
		t.AssignedTo = p.AssignedTo.Value
	}
	if p.DueDate.Set {
		due := normalizeTime(p.DueDate.Value)
		if !equalTime(t.DueDate, due) {
			cs = append(cs, domain.Change{Field: domain.FieldDueDate, Old: deref(t.DueDate), New: deref(due)})
			t.DueDate = due
		}
	}
	if p.EstimatedHours.Set && !equalPtr(t.EstimatedHours, p.EstimatedHours.Value) {
		cs = append(cs, domain.Change{Field: domain.FieldEstimatedHours, Old: deref(t.EstimatedHours), New: deref(p.EstimatedHours.Value)})
		t.EstimatedHours = p.EstimatedHours.Value
	}
	if p.ActualHours.Set && !equalPtr(t.ActualHours, p.ActualHours.Value) {
		cs = append(cs, domain.Change{Field: domain.FieldActualHours, Old: deref(t.ActualHours), New: deref(p.ActualHours.Value)})
		t.ActualHours = p.ActualHours.Value
	}

	return cs
}

// 空字符串等同于取消分配
func normalizeAssignee(id *string) *string {
	if id == nil || strings.TrimSpace(*id) == "" {
		return nil
	}
	v := strings.TrimSpace(*id)
	return &v
}

func normalizeTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC().Truncate(time.Microsecond)
	return &v
}

func equalPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func equalTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func deref[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}
