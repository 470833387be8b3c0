package repository

import (
	"context"

	"github.com/sysu-ecnc-dev/task-vision/backend/internal/domain"
)

const taskColumns = `id, title, description, priority, status, assigned_to, assigned_by, created_at,
	due_date, completed_at, estimated_hours, actual_hours, updated_at`

func (r *Repository) CreateTask(ctx context.Context, task *domain.Task) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := `
		INSERT INTO tasks (` + taskColumns + `)
		VALUES (:id, :title, :description, :priority, :status, :assigned_to, :assigned_by, :created_at,
			:due_date, :completed_at, :estimated_hours, :actual_hours, :updated_at)
	`

	if _, err := r.dbpool.NamedExecContext(ctx, query, task); err != nil {
		return translate(err)
	}

	return nil
}

func (r *Repository) GetTask(ctx context.Context, id string) (*domain.Task, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	task := &domain.Task{}
	if err := r.dbpool.GetContext(ctx, task, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id); err != nil {
		return nil, translate(err)
	}

	return task, nil
}

// UpdateTask 在一条语句中覆盖所有可变字段，id、assigned_by 和 created_at 不会被修改。
// 没有版本检查，并发写入时最后一次写入生效
func (r *Repository) UpdateTask(ctx context.Context, task *domain.Task) (*domain.Task, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := `
		UPDATE tasks
		SET
			title = $1,
			description = $2,
			priority = $3,
			status = $4,
			assigned_to = $5,
			due_date = $6,
			completed_at = $7,
			estimated_hours = $8,
			actual_hours = $9,
			updated_at = $10
		WHERE id = $11
		RETURNING ` + taskColumns

	args := []any{
		task.Title, task.Description, task.Priority, task.Status, task.AssignedTo,
		task.DueDate, task.CompletedAt, task.EstimatedHours, task.ActualHours, task.UpdatedAt,
		task.ID,
	}

	updated := &domain.Task{}
	if err := r.dbpool.QueryRowxContext(ctx, query, args...).StructScan(updated); err != nil {
		return nil, translate(err)
	}

	return updated, nil
}

func (r *Repository) DeleteTask(ctx context.Context, id string) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	res, err := r.dbpool.ExecContext(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return translate(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}

	return nil
}

func (r *Repository) ListTasks(ctx context.Context, filter domain.TaskFilter) ([]*domain.Task, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := `
		SELECT ` + taskColumns + `
		FROM tasks
		WHERE ($1::UUID IS NULL OR assigned_to = $1)
			AND ($2::TEXT IS NULL OR status = $2)
		ORDER BY created_at DESC
	`

	tasks := make([]*domain.Task, 0)
	if err := r.dbpool.SelectContext(ctx, &tasks, query, filter.AssignedTo, filter.Status); err != nil {
		return nil, translate(err)
	}

	return tasks, nil
}

func (r *Repository) TaskStats(ctx context.Context, assignedTo *string) (domain.TaskStats, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'completed'),
			COUNT(*) FILTER (WHERE status <> 'completed')
		FROM tasks
		WHERE ($1::UUID IS NULL OR assigned_to = $1)
	`

	var stats domain.TaskStats
	dst := []any{&stats.TotalTasks, &stats.CompletedTasks, &stats.PendingTasks}
	if err := r.dbpool.QueryRowxContext(ctx, query, assignedTo).Scan(dst...); err != nil {
		return domain.TaskStats{}, translate(err)
	}

	return stats, nil
}
