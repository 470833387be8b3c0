// Package task 实现任务的创建、按角色过滤的部分更新和删除。
//
// 任务写入是唯一的持久性边界：写入成功后，动态记录、通知和广播作为相互独立的
// 提交后步骤依次执行，任何一步失败都只记日志，不会回滚任务本身，也不会返回给调用方。
// 并发修改同一任务时以最后一次写入为准，不做乐观锁检查。
package task

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sysu-ecnc-dev/task-vision/backend/internal/activity"
	"github.com/sysu-ecnc-dev/task-vision/backend/internal/auth"
	"github.com/sysu-ecnc-dev/task-vision/backend/internal/domain"
	"github.com/sysu-ecnc-dev/task-vision/backend/internal/hub"
)

const (
	EventTaskCreated = "task-created"
	EventTaskUpdated = "task-updated"
	EventTaskDeleted = "task-deleted"
)

type Store interface {
	CreateTask(ctx context.Context, task *domain.Task) error
	GetTask(ctx context.Context, id string) (*domain.Task, error)
	// UpdateTask 以任务 ID 为键原子地覆盖可变字段，并返回写入后的记录
	UpdateTask(ctx context.Context, task *domain.Task) (*domain.Task, error)
	DeleteTask(ctx context.Context, id string) error
	ListTasks(ctx context.Context, filter domain.TaskFilter) ([]*domain.Task, error)
	TaskStats(ctx context.Context, assignedTo *string) (domain.TaskStats, error)
}

type UserStore interface {
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
	CountUsersByRole(ctx context.Context, role domain.Role) (int, error)
}

type ActivityRecorder interface {
	Record(ctx context.Context, actor *domain.User, action domain.ActivityAction, description string, taskID *string) (*domain.Activity, error)
}

type Notifier interface {
	NotifyAssignment(ctx context.Context, assignee *domain.User, task *domain.Task) error
	NotifyStatusChange(ctx context.Context, actor *domain.User, task *domain.Task, newStatus domain.TaskStatus) error
}

type Broadcaster interface {
	BroadcastGlobal(event string, payload any)
	BroadcastRoom(room, event string, payload any)
}

type Service struct {
	tasks       Store
	users       UserStore
	activities  ActivityRecorder
	notifier    Notifier
	broadcaster Broadcaster
	logger      *slog.Logger

	Now func() time.Time
}

func NewService(tasks Store, users UserStore, activities ActivityRecorder, notifier Notifier, broadcaster Broadcaster, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		tasks:       tasks,
		users:       users,
		activities:  activities,
		notifier:    notifier,
		broadcaster: broadcaster,
		logger:      logger,
		Now:         time.Now,
	}
}

// postgres 的时间精度是微秒，统一截断避免读回后比较不相等
func (s *Service) now() time.Time {
	return s.Now().UTC().Truncate(time.Microsecond)
}

type CreateRequest struct {
	Title          string
	Description    string
	Priority       domain.TaskPriority
	AssignedTo     *string
	DueDate        *time.Time
	EstimatedHours *float64
}

func (s *Service) Create(ctx context.Context, caller *domain.User, req CreateRequest) (*domain.Task, error) {
	if err := auth.RequireRole(caller, domain.RoleAdmin); err != nil {
		return nil, err
	}

	if strings.TrimSpace(req.Title) == "" {
		return nil, domain.NewValidationError(string(domain.FieldTitle), "标题不能为空")
	}
	if !req.Priority.Valid() {
		return nil, domain.NewValidationError(string(domain.FieldPriority), "无效的优先级 %q", req.Priority)
	}
	if req.EstimatedHours != nil && *req.EstimatedHours < 0 {
		return nil, domain.NewValidationError(string(domain.FieldEstimatedHours), "不能为负数")
	}

	var assignee *domain.User
	assignedTo := normalizeAssignee(req.AssignedTo)
	if assignedTo != nil {
		u, err := s.resolveAssignee(ctx, *assignedTo)
		if err != nil {
			return nil, err
		}
		assignee = u
	}

	now := s.now()
	task := &domain.Task{
		ID:             uuid.NewString(),
		Title:          req.Title,
		Description:    req.Description,
		Priority:       req.Priority,
		Status:         domain.StatusNotStarted,
		AssignedTo:     assignedTo,
		AssignedBy:     caller.ID,
		CreatedAt:      now,
		DueDate:        normalizeTime(req.DueDate),
		EstimatedHours: req.EstimatedHours,
		UpdatedAt:      now,
	}

	if err := s.tasks.CreateTask(ctx, task); err != nil {
		return nil, err
	}

	steps := []step{
		s.recordStep(caller, domain.ActionTaskCreated, task.ID, activity.DescribeTaskCreated(caller, task)),
	}
	if assignee != nil {
		steps = append(steps, step{name: "notify-assignment", run: func(ctx context.Context) error {
			return s.notifier.NotifyAssignment(ctx, assignee, task)
		}})
	}
	steps = append(steps, s.broadcastStep(EventTaskCreated, task, false))
	s.runPostCommit(ctx, task.ID, steps)

	return task, nil
}

// Update 按调用者角色过滤字段后应用部分更新。员工只能修改分配给自己的任务的 status 和 actual_hours，
// 其他字段被静默丢弃；管理员可以修改除 ID 和创建者之外的所有字段。
// 没有实际变化时直接返回当前记录，不写库也不触发任何后续步骤。
func (s *Service) Update(ctx context.Context, taskID string, caller *domain.User, patch domain.TaskPatch) (*domain.Task, domain.ChangeSet, error) {
	if caller == nil {
		return nil, nil, domain.ErrUnauthenticated
	}

	task, err := s.tasks.GetTask(ctx, taskID)
	if err != nil {
		return nil, nil, err
	}

	switch caller.Role {
	case domain.RoleAdmin:
	case domain.RoleEmployee:
		if !task.IsAssignedTo(caller.ID) {
			return nil, nil, domain.ErrForbidden
		}
		patch = patch.Restrict(domain.EmployeeWritableFields)
	default:
		return nil, nil, domain.ErrForbidden
	}

	if err := validatePatch(patch); err != nil {
		return nil, nil, err
	}
	if patch.AssignedTo.Set {
		patch.AssignedTo.Value = normalizeAssignee(patch.AssignedTo.Value)
		if patch.AssignedTo.Value != nil && !task.IsAssignedTo(*patch.AssignedTo.Value) {
			if _, err := s.resolveAssignee(ctx, *patch.AssignedTo.Value); err != nil {
				return nil, nil, err
			}
		}
	}

	previousStatus := task.Status
	changes := applyPatch(task, patch)
	if len(changes) == 0 {
		return task, nil, nil
	}

	now := s.now()
	// 只在进入 completed 时写一次完成时间；离开 completed 时保留原值
	if changes.Has(domain.FieldStatus) && task.Status == domain.StatusCompleted && previousStatus != domain.StatusCompleted {
		changes = append(changes, domain.Change{Field: domain.FieldCompletedAt, Old: deref(task.CompletedAt), New: now})
		task.CompletedAt = &now
	}
	task.UpdatedAt = now

	updated, err := s.tasks.UpdateTask(ctx, task)
	if err != nil {
		return nil, nil, err
	}

	var steps []step
	if change, ok := changes.Get(domain.FieldStatus); ok {
		from, to := change.Old.(domain.TaskStatus), change.New.(domain.TaskStatus)
		steps = append(steps,
			s.recordStep(caller, domain.ActionTaskStatusChanged, updated.ID, activity.DescribeStatusChange(caller, updated, from, to)),
			step{name: "notify-status-change", run: func(ctx context.Context) error {
				return s.notifier.NotifyStatusChange(ctx, caller, updated, to)
			}},
		)
	}
	steps = append(steps, s.broadcastStep(EventTaskUpdated, updated, true))
	s.runPostCommit(ctx, updated.ID, steps)

	return updated, changes, nil
}

func (s *Service) Delete(ctx context.Context, taskID string, caller *domain.User) error {
	if err := auth.RequireRole(caller, domain.RoleAdmin); err != nil {
		return err
	}

	task, err := s.tasks.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if err := s.tasks.DeleteTask(ctx, taskID); err != nil {
		return err
	}

	s.runPostCommit(ctx, taskID, []step{
		s.recordStep(caller, domain.ActionTaskDeleted, task.ID, activity.DescribeTaskDeleted(caller, task)),
		s.broadcastStep(EventTaskDeleted, map[string]string{"id": taskID}, false),
	})

	return nil
}

// Get 要求员工只能查看分配给自己的任务
func (s *Service) Get(ctx context.Context, taskID string, caller *domain.User) (*domain.Task, error) {
	task, err := s.tasks.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if caller.Role != domain.RoleAdmin && !task.IsAssignedTo(caller.ID) {
		return nil, domain.ErrForbidden
	}
	return task, nil
}

// List 对员工强制只返回分配给自己的任务
func (s *Service) List(ctx context.Context, caller *domain.User, filter domain.TaskFilter) ([]*domain.Task, error) {
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, domain.NewValidationError(string(domain.FieldStatus), "无效的状态 %q", *filter.Status)
	}
	if caller.Role != domain.RoleAdmin {
		filter.AssignedTo = &caller.ID
	}
	return s.tasks.ListTasks(ctx, filter)
}

func (s *Service) Stats(ctx context.Context, caller *domain.User) (domain.TaskStats, error) {
	if caller.Role != domain.RoleAdmin {
		return s.tasks.TaskStats(ctx, &caller.ID)
	}

	stats, err := s.tasks.TaskStats(ctx, nil)
	if err != nil {
		return domain.TaskStats{}, err
	}
	employees, err := s.users.CountUsersByRole(ctx, domain.RoleEmployee)
	if err != nil {
		return domain.TaskStats{}, err
	}
	stats.TotalEmployees = &employees
	return stats, nil
}

func (s *Service) resolveAssignee(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.NewValidationError(string(domain.FieldAssignedTo), "负责人 %s 不存在", userID)
		}
		return nil, err
	}
	if user.Role != domain.RoleEmployee {
		return nil, domain.NewValidationError(string(domain.FieldAssignedTo), "负责人必须是员工")
	}
	return user, nil
}

func (s *Service) recordStep(actor *domain.User, action domain.ActivityAction, taskID, description string) step {
	return step{name: "record-activity", run: func(ctx context.Context) error {
		_, err := s.activities.Record(ctx, actor, action, description, &taskID)
		return err
	}}
}

// broadcastStep 总是全局广播；withRoom 为 true 时同时发往任务房间
func (s *Service) broadcastStep(event string, payload any, withRoom bool) step {
	return step{name: "broadcast", run: func(ctx context.Context) error {
		s.broadcaster.BroadcastGlobal(event, payload)
		if withRoom {
			if t, ok := payload.(*domain.Task); ok {
				s.broadcaster.BroadcastRoom(hub.TaskRoom(t.ID), event, payload)
			}
		}
		return nil
	}}
}
