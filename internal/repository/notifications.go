package repository

import (
	"context"

	"github.com/sysu-ecnc-dev/task-vision/backend/internal/domain"
)

const notificationColumns = `id, user_id, title, content, task_id, is_read, created_at`

func (r *Repository) CreateNotification(ctx context.Context, n *domain.Notification) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := `
		INSERT INTO notifications (` + notificationColumns + `)
		VALUES (:id, :user_id, :title, :content, :task_id, :is_read, :created_at)
	`

	if _, err := r.dbpool.NamedExecContext(ctx, query, n); err != nil {
		return translate(err)
	}

	return nil
}

func (r *Repository) GetNotification(ctx context.Context, id string) (*domain.Notification, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	n := &domain.Notification{}
	if err := r.dbpool.GetContext(ctx, n, `SELECT `+notificationColumns+` FROM notifications WHERE id = $1`, id); err != nil {
		return nil, translate(err)
	}

	return n, nil
}

func (r *Repository) MarkNotificationRead(ctx context.Context, id string) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	res, err := r.dbpool.ExecContext(ctx, `UPDATE notifications SET is_read = TRUE WHERE id = $1`, id)
	if err != nil {
		return translate(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}

	return nil
}

func (r *Repository) MarkAllNotificationsRead(ctx context.Context, userID string) (int64, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	res, err := r.dbpool.ExecContext(ctx, `UPDATE notifications SET is_read = TRUE WHERE user_id = $1 AND NOT is_read`, userID)
	if err != nil {
		return 0, translate(err)
	}

	return res.RowsAffected()
}

func (r *Repository) ListNotifications(ctx context.Context, userID string, unreadOnly bool) ([]*domain.Notification, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := `
		SELECT ` + notificationColumns + `
		FROM notifications
		WHERE user_id = $1 AND (NOT $2 OR NOT is_read)
		ORDER BY created_at DESC
	`

	notifications := make([]*domain.Notification, 0)
	if err := r.dbpool.SelectContext(ctx, &notifications, query, userID, unreadOnly); err != nil {
		return nil, translate(err)
	}

	return notifications, nil
}
