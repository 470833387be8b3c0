// Package activity 追加记录任务与账号相关的动态，并把新动态广播给所有在线连接
package activity

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/sysu-ecnc-dev/task-vision/backend/internal/domain"
)

const EventActivityCreated = "activity-created"

const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

type Store interface {
	CreateActivity(ctx context.Context, activity *domain.Activity) error
	ListActivities(ctx context.Context, limit int) ([]*domain.Activity, error)
}

type Broadcaster interface {
	BroadcastGlobal(event string, payload any)
}

type Recorder struct {
	store       Store
	broadcaster Broadcaster
	logger      *slog.Logger

	Now func() time.Time
}

func NewRecorder(store Store, broadcaster Broadcaster, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		store:       store,
		broadcaster: broadcaster,
		logger:      logger,
		Now:         time.Now,
	}
}

// Record 持久化一条动态后再广播；广播是尽力而为的，不影响已写入的记录
func (r *Recorder) Record(ctx context.Context, actor *domain.User, action domain.ActivityAction, description string, taskID *string) (*domain.Activity, error) {
	activity := &domain.Activity{
		ID:          uuid.NewString(),
		UserID:      actor.ID,
		UserName:    actor.Name,
		Action:      action,
		Description: description,
		TaskID:      taskID,
		CreatedAt:   r.Now().UTC().Truncate(time.Microsecond),
	}

	if err := r.store.CreateActivity(ctx, activity); err != nil {
		return nil, fmt.Errorf("记录动态失败: %w", err)
	}

	if r.broadcaster != nil {
		r.broadcaster.BroadcastGlobal(EventActivityCreated, activity)
	}

	return activity, nil
}

// List 返回最新的动态，limit 超出范围时取默认值或上限
func (r *Recorder) List(ctx context.Context, limit int) ([]*domain.Activity, error) {
	switch {
	case limit <= 0:
		limit = DefaultListLimit
	case limit > MaxListLimit:
		limit = MaxListLimit
	}
	return r.store.ListActivities(ctx, limit)
}

func DescribeTaskCreated(actor *domain.User, task *domain.Task) string {
	return fmt.Sprintf("%s created task \"%s\"", actor.Name, task.Title)
}

func DescribeStatusChange(actor *domain.User, task *domain.Task, from, to domain.TaskStatus) string {
	return fmt.Sprintf("%s changed \"%s\" from %s to %s", actor.Name, task.Title, from.Label(), to.Label())
}

func DescribeTaskDeleted(actor *domain.User, task *domain.Task) string {
	return fmt.Sprintf("%s deleted task \"%s\"", actor.Name, task.Title)
}

func DescribeUserRegistered(user *domain.User) string {
	return fmt.Sprintf("%s joined as %s", user.Name, user.Role)
}
