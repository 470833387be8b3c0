// Package notify 决定一次任务变更需要通知谁，持久化每条通知，并尝试推送给在线的收件人
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/sysu-ecnc-dev/task-vision/backend/internal/domain"
)

const EventNotification = "notification"

const (
	TitleTaskAssigned      = "New Task Assigned"
	TitleTaskStatusUpdated = "Task Status Updated"
)

type Store interface {
	CreateNotification(ctx context.Context, n *domain.Notification) error
	GetNotification(ctx context.Context, id string) (*domain.Notification, error)
	MarkNotificationRead(ctx context.Context, id string) error
	MarkAllNotificationsRead(ctx context.Context, userID string) (int64, error)
	ListNotifications(ctx context.Context, userID string, unreadOnly bool) ([]*domain.Notification, error)
}

type Directory interface {
	ListUsersByRole(ctx context.Context, role domain.Role) ([]*domain.User, error)
}

// Pusher 只在收件人在线时投递，返回是否投递成功
type Pusher interface {
	PushToIdentity(userID, event string, payload any) bool
}

type MailPublisher interface {
	Publish(ctx context.Context, msg domain.MailMessage) error
}

type Router struct {
	store     Store
	directory Directory
	pusher    Pusher
	mail      MailPublisher
	logger    *slog.Logger

	Now func() time.Time
}

// NewRouter 中 mail 可以为 nil，此时离线收件人只保留持久化的通知
func NewRouter(store Store, directory Directory, pusher Pusher, mail MailPublisher, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		store:     store,
		directory: directory,
		pusher:    pusher,
		mail:      mail,
		logger:    logger,
		Now:       time.Now,
	}
}

func (r *Router) newNotification(recipient *domain.User, title, content string, taskID string) *domain.Notification {
	return &domain.Notification{
		ID:        uuid.NewString(),
		UserID:    recipient.ID,
		Title:     title,
		Content:   content,
		TaskID:    &taskID,
		IsRead:    false,
		CreatedAt: r.Now().UTC().Truncate(time.Microsecond),
	}
}

// NotifyAssignment 给新任务的负责人发一条通知
func (r *Router) NotifyAssignment(ctx context.Context, assignee *domain.User, task *domain.Task) error {
	content := fmt.Sprintf("You have been assigned a new task: \"%s\" (Priority: %s)", task.Title, task.Priority.Label())
	return r.deliver(ctx, assignee, r.newNotification(assignee, TitleTaskAssigned, content, task.ID))
}

// NotifyStatusChange 在员工修改状态时通知每一位管理员；管理员自己改状态不通知任何人
func (r *Router) NotifyStatusChange(ctx context.Context, actor *domain.User, task *domain.Task, newStatus domain.TaskStatus) error {
	if actor.Role != domain.RoleEmployee {
		return nil
	}

	admins, err := r.directory.ListUsersByRole(ctx, domain.RoleAdmin)
	if err != nil {
		return fmt.Errorf("获取管理员列表失败: %w", err)
	}

	content := fmt.Sprintf("%s changed \"%s\" to %s", actor.Name, task.Title, newStatus.Label())

	// 每位管理员的通知互相独立，一条失败不影响其他
	var errs []error
	for _, admin := range admins {
		if err := r.deliver(ctx, admin, r.newNotification(admin, TitleTaskStatusUpdated, content, task.ID)); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (r *Router) deliver(ctx context.Context, recipient *domain.User, n *domain.Notification) error {
	if err := r.store.CreateNotification(ctx, n); err != nil {
		return fmt.Errorf("保存通知失败: %w", err)
	}

	if r.pusher != nil && r.pusher.PushToIdentity(recipient.ID, EventNotification, n) {
		return nil
	}

	// 收件人不在线，通知仍可稍后查询，这里额外尝试发一封邮件
	if r.mail == nil || recipient.Email == "" {
		return nil
	}
	msg := domain.MailMessage{
		Type: domain.MailTypeTaskNotification,
		To:   recipient.Email,
		Data: domain.TaskNotificationMailData{
			Name:    recipient.Name,
			Title:   n.Title,
			Content: n.Content,
			TaskID:  n.TaskID,
		},
	}
	if err := r.mail.Publish(ctx, msg); err != nil {
		r.logger.Error("通知邮件入队失败", "notification", n.ID, "to", recipient.Email, "error", err)
	}

	return nil
}

func (r *Router) List(ctx context.Context, caller *domain.User, unreadOnly bool) ([]*domain.Notification, error) {
	return r.store.ListNotifications(ctx, caller.ID, unreadOnly)
}

// MarkRead 只允许收件人本人标记已读；不属于调用者的通知一律视为不存在
func (r *Router) MarkRead(ctx context.Context, id string, caller *domain.User) (*domain.Notification, error) {
	n, err := r.store.GetNotification(ctx, id)
	if err != nil {
		return nil, err
	}
	if n.UserID != caller.ID {
		return nil, domain.ErrNotFound
	}

	if !n.IsRead {
		if err := r.store.MarkNotificationRead(ctx, id); err != nil {
			return nil, err
		}
		n.IsRead = true
	}

	return n, nil
}

func (r *Router) MarkAllRead(ctx context.Context, caller *domain.User) (int64, error) {
	return r.store.MarkAllNotificationsRead(ctx, caller.ID)
}
