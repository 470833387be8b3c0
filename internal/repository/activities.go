package repository

import (
	"context"

	"github.com/sysu-ecnc-dev/task-vision/backend/internal/domain"
)

func (r *Repository) CreateActivity(ctx context.Context, activity *domain.Activity) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := `
		INSERT INTO activities (id, user_id, user_name, action, description, task_id, created_at)
		VALUES (:id, :user_id, :user_name, :action, :description, :task_id, :created_at)
	`

	if _, err := r.dbpool.NamedExecContext(ctx, query, activity); err != nil {
		return translate(err)
	}

	return nil
}

// ListActivities 返回最新的 limit 条动态，新的在前
func (r *Repository) ListActivities(ctx context.Context, limit int) ([]*domain.Activity, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := `
		SELECT id, user_id, user_name, action, description, task_id, created_at
		FROM activities
		ORDER BY created_at DESC
		LIMIT $1
	`

	activities := make([]*domain.Activity, 0)
	if err := r.dbpool.SelectContext(ctx, &activities, query, limit); err != nil {
		return nil, translate(err)
	}

	return activities, nil
}
